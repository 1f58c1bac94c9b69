package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/i474232898/weather-markets/internal/common"
	"github.com/i474232898/weather-markets/internal/metrics"
)

const (
	DefaultForecastTTL = 180 * time.Second
	DefaultReadingTTL  = 24 * time.Hour
	// DefaultFetchTimeout bounds an upstream call shared by concurrent misses.
	DefaultFetchTimeout = 60 * time.Second

	kindForecast = "forecast"
	kindReading  = "reading"
)

// CacheOptions configures CachedProvider.
type CacheOptions struct {
	Prefix      string
	ForecastTTL time.Duration
	ReadingTTL  time.Duration
	// FetchTimeout bounds a shared upstream call. It is detached from any
	// single caller's cancellation.
	FetchTimeout time.Duration
}

// CachedProvider wraps a Provider with a TTL cache keyed on exact
// coordinates and timestamp. Cache backend errors degrade to a miss.
type CachedProvider struct {
	inner  Provider
	cache  Cache
	opts   CacheOptions
	group  singleflight.Group
	logger logrus.FieldLogger
}

// NewCachedProvider creates a CachedProvider. Zero TTLs fall back to the defaults.
func NewCachedProvider(inner Provider, cache Cache, opts CacheOptions, logger logrus.FieldLogger) *CachedProvider {
	if opts.Prefix == "" {
		opts.Prefix = "weather"
	}
	if opts.ForecastTTL <= 0 {
		opts.ForecastTTL = DefaultForecastTTL
	}
	if opts.ReadingTTL <= 0 {
		opts.ReadingTTL = DefaultReadingTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	return &CachedProvider{
		inner:  inner,
		cache:  cache,
		opts:   opts,
		logger: logger.WithField("component", "weather-cache"),
	}
}

func (p *CachedProvider) Name() string {
	return p.inner.Name()
}

// Key builds prefix:provider:kind:lat:lon:timestamp.
func (p *CachedProvider) Key(kind string, lat, lon float64, timestamp int64) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%d",
		p.opts.Prefix, p.inner.Name(), kind, common.FormatCoord(lat), common.FormatCoord(lon), timestamp)
}

func (p *CachedProvider) GetForecast(ctx context.Context, lat, lon float64, timestamp int64) (int64, error) {
	key := p.Key(kindForecast, lat, lon, timestamp)

	if raw, ok := p.lookup(ctx, kindForecast, key); ok {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			return v, nil
		}
		p.logger.WithField("key", key).WithError(err).Warn("discarding unreadable cached forecast")
	}

	v, err := p.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		temp, err := p.inner.GetForecast(ctx, lat, lon, timestamp)
		if err != nil {
			return nil, err
		}
		p.store(ctx, key, strconv.FormatInt(temp, 10), p.opts.ForecastTTL)
		return temp, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (p *CachedProvider) GetFirstReadingAtOrAfter(ctx context.Context, lat, lon float64, timestamp int64) (Reading, error) {
	key := p.Key(kindReading, lat, lon, timestamp)

	if raw, ok := p.lookup(ctx, kindReading, key); ok {
		var r Reading
		err := json.Unmarshal([]byte(raw), &r)
		if err == nil {
			return r, nil
		}
		p.logger.WithField("key", key).WithError(err).Warn("discarding unreadable cached reading")
	}

	v, err := p.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		r, err := p.inner.GetFirstReadingAtOrAfter(ctx, lat, lon, timestamp)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(r); err == nil {
			p.store(ctx, key, string(data), p.opts.ReadingTTL)
		}
		return r, nil
	})
	if err != nil {
		return Reading{}, err
	}
	return v.(Reading), nil
}

// HealthCheck is never cached.
func (p *CachedProvider) HealthCheck(ctx context.Context) ProviderHealth {
	return p.inner.HealthCheck(ctx)
}

// shared runs fetch once per key across concurrent callers. The upstream call
// keeps running when the caller that started it goes away, so a cancelled
// caller never fails the others waiting on the same key.
func (p *CachedProvider) shared(ctx context.Context, key string, fetch func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ch := p.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.FetchTimeout)
		defer cancel()
		return fetch(callCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (p *CachedProvider) lookup(ctx context.Context, kind, key string) (string, bool) {
	raw, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.WithField("key", key).WithError(err).Warn("cache get failed")
		ok = false
	}
	if ok {
		metrics.CacheLookups.WithLabelValues(kind, metrics.OutcomeHit).Inc()
		return raw, true
	}
	metrics.CacheLookups.WithLabelValues(kind, metrics.OutcomeMiss).Inc()
	return "", false
}

func (p *CachedProvider) store(ctx context.Context, key, value string, ttl time.Duration) {
	if err := p.cache.Set(ctx, key, value, ttl); err != nil {
		p.logger.WithField("key", key).WithError(err).Warn("cache set failed")
	}
}

var _ Provider = (*CachedProvider)(nil)
