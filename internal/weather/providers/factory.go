package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-markets/internal/config"
	"github.com/i474232898/weather-markets/internal/store"
	"github.com/i474232898/weather-markets/internal/weather"
)

// Health probes hit a fixed point covered by every provider (Washington, DC).
const (
	healthProbeLat = 38.8894
	healthProbeLon = -77.0352
)

// DefaultOrder is the fallback order; the configured primary moves to the front.
var DefaultOrder = []string{NameNWS, NameMetNo, NameOpenMeteo}

// Order returns the provider names with primary first and the rest in
// default order.
func Order(primary string) []string {
	out := make([]string, 0, len(DefaultOrder))
	for _, name := range DefaultOrder {
		if name == primary {
			out = append(out, name)
		}
	}
	for _, name := range DefaultOrder {
		if name != primary {
			out = append(out, name)
		}
	}
	return out
}

// Stack is the assembled provider chain: Cache(Fallback(members...)).
type Stack struct {
	Provider weather.Provider
	Fallback *weather.FallbackProvider
	Members  []weather.Provider

	closer io.Closer
}

// Close releases the cache backend connection, if any.
func (s *Stack) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func newMember(name string, client *http.Client, cfg config.WeatherConfig) (weather.Provider, error) {
	switch name {
	case NameNWS:
		return NewNWSProvider(client, cfg.NWSUserAgent), nil
	case NameMetNo:
		return NewMetNoProvider(client, cfg.MetNoUserAgent), nil
	case NameOpenMeteo:
		return NewOpenMeteoProvider(client), nil
	default:
		return nil, fmt.Errorf("unknown weather provider %q", name)
	}
}

// NewStack builds the provider chain from configuration. The cache is backed
// by redis when CacheRedisURL is set and by a bounded memory store otherwise.
func NewStack(ctx context.Context, cfg config.WeatherConfig, client *http.Client, logger logrus.FieldLogger) (*Stack, error) {
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	members := make([]weather.Provider, 0, len(DefaultOrder))
	for _, name := range Order(cfg.PrimaryProvider) {
		p, err := newMember(name, client, cfg)
		if err != nil {
			return nil, err
		}
		members = append(members, p)
	}
	fallback := weather.NewFallbackProvider(logger, members...)

	stack := &Stack{Fallback: fallback, Members: members}

	var cache weather.Cache
	if cfg.CacheRedisURL != "" {
		rs, err := store.NewRedisStore(ctx, cfg.CacheRedisURL)
		if err != nil {
			return nil, fmt.Errorf("weather cache: %w", err)
		}
		cache = rs
		stack.closer = rs
	} else {
		cache = store.NewMemoryStore(10000)
	}

	stack.Provider = weather.NewCachedProvider(fallback, cache, weather.CacheOptions{
		Prefix:      cfg.CachePrefix,
		ForecastTTL: cfg.ForecastTTL,
		ReadingTTL:  cfg.ReadingTTL,
	}, logger)

	logger.WithFields(logrus.Fields{
		"providers":   fallback.Name(),
		"redis_cache": cfg.CacheRedisURL != "",
	}).Info("weather provider stack ready")
	return stack, nil
}
