package weather

import "testing"

func TestCelsiusToFahrenheitTenths(t *testing.T) {
	cases := []struct {
		c    float64
		want int64
	}{
		{0, 320},
		{100, 2120},
		{-40, -400},
		{21.1, 700},
		{0.05, 321},
		{37.5, 995},
	}
	for _, tc := range cases {
		if got := CelsiusToFahrenheitTenths(tc.c); got != tc.want {
			t.Fatalf("CelsiusToFahrenheitTenths(%v) = %d, want %d", tc.c, got, tc.want)
		}
	}
}

func TestFahrenheitToTenths(t *testing.T) {
	if got := FahrenheitToTenths(75); got != 750 {
		t.Fatalf("expected 750, got %d", got)
	}
	if got := FahrenheitToTenths(-3.26); got != -33 {
		t.Fatalf("expected -33, got %d", got)
	}
}
