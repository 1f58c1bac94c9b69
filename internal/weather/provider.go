package weather

import (
	"context"
	"time"
)

// Provider abstracts a weather data source. Decorators (cache, fallback)
// implement the same interface so they can be stacked in any order.
type Provider interface {
	Name() string

	// GetForecast returns the predicted temperature (°F tenths) at or after
	// timestamp (unix seconds).
	GetForecast(ctx context.Context, lat, lon float64, timestamp int64) (int64, error)

	// GetFirstReadingAtOrAfter returns the earliest observed reading at or
	// after timestamp.
	GetFirstReadingAtOrAfter(ctx context.Context, lat, lon float64, timestamp int64) (Reading, error)

	// HealthCheck never fails; problems are reported as HealthRed.
	HealthCheck(ctx context.Context) ProviderHealth
}

// Cache is the backend contract used by CachedProvider.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}
