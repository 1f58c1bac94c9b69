package weather

import "github.com/i474232898/weather-markets/internal/common"

// CelsiusToFahrenheitTenths converts °C to °F tenths with half-up rounding.
func CelsiusToFahrenheitTenths(c float64) int64 {
	return FahrenheitToTenths(c*9/5 + 32)
}

// FahrenheitToTenths converts °F to °F tenths with half-up rounding.
func FahrenheitToTenths(f float64) int64 {
	return common.RoundHalfUp(f * 10)
}
