package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/weather-markets/internal/logging"
	"github.com/i474232898/weather-markets/internal/store"
)

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache down")
}

func (brokenCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("cache down")
}

type recordingCache struct {
	*store.MemoryStore
	ttls map[string]time.Duration
}

func (c *recordingCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.ttls[key] = ttl
	return c.MemoryStore.Set(ctx, key, value, ttl)
}

func TestCachedProviderForecastHitsUpstreamOnce(t *testing.T) {
	inner := &fakeProvider{name: "nws", forecast: 753}
	p := NewCachedProvider(inner, store.NewMemoryStore(0), CacheOptions{}, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := p.GetForecast(ctx, 40.7128, -74.006, 1_700_000_000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 753 {
			t.Fatalf("expected 753, got %d", got)
		}
	}
	if n := inner.forecastHits.Load(); n != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", n)
	}

	// A different timestamp is a different key.
	if _, err := p.GetForecast(ctx, 40.7128, -74.006, 1_700_000_001); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := inner.forecastHits.Load(); n != 2 {
		t.Fatalf("expected a second upstream call for a new timestamp, got %d", n)
	}
}

func TestCachedProviderReadingRoundTrip(t *testing.T) {
	want := Reading{TempTenths: 684, ObservedTimestamp: 1_700_000_300, Source: "nws"}
	inner := &fakeProvider{name: "nws", reading: want}
	p := NewCachedProvider(inner, store.NewMemoryStore(0), CacheOptions{}, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := p.GetFirstReadingAtOrAfter(ctx, 1, 2, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %+v, got %+v", want, got)
		}
	}
	if n := inner.readingHits.Load(); n != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", n)
	}
}

func TestCachedProviderTTLs(t *testing.T) {
	rc := &recordingCache{MemoryStore: store.NewMemoryStore(0), ttls: map[string]time.Duration{}}
	inner := &fakeProvider{name: "metno", forecast: 1, reading: Reading{TempTenths: 2}}
	p := NewCachedProvider(inner, rc, CacheOptions{Prefix: "wx"}, logging.Discard())
	ctx := context.Background()

	_, _ = p.GetForecast(ctx, 1.5, -2.25, 10)
	_, _ = p.GetFirstReadingAtOrAfter(ctx, 1.5, -2.25, 10)

	if ttl := rc.ttls["wx:metno:forecast:1.5:-2.25:10"]; ttl != 180*time.Second {
		t.Fatalf("unexpected forecast ttl %v (keys %v)", ttl, rc.ttls)
	}
	if ttl := rc.ttls["wx:metno:reading:1.5:-2.25:10"]; ttl != 86400*time.Second {
		t.Fatalf("unexpected reading ttl %v", ttl)
	}
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	inner := &fakeProvider{name: "nws", forecastErr: &NoDataError{Provider: "nws"}}
	p := NewCachedProvider(inner, store.NewMemoryStore(0), CacheOptions{}, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := p.GetForecast(ctx, 1, 2, 3); err == nil {
			t.Fatal("expected error")
		}
	}
	if n := inner.forecastHits.Load(); n != 2 {
		t.Fatalf("expected failures to reach upstream each time, got %d", n)
	}
}

func TestCachedProviderSurvivesBrokenBackend(t *testing.T) {
	inner := &fakeProvider{name: "nws", forecast: 500}
	p := NewCachedProvider(inner, brokenCache{}, CacheOptions{}, logging.Discard())

	got, err := p.GetForecast(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 500 {
		t.Fatalf("expected 500, got %d", got)
	}
}

func TestCachedProviderHealthPassesThrough(t *testing.T) {
	inner := &fakeProvider{name: "nws", health: ProviderHealth{Status: HealthYellow, LatencyMs: 2500}}
	p := NewCachedProvider(inner, store.NewMemoryStore(0), CacheOptions{}, logging.Discard())

	h := p.HealthCheck(context.Background())
	if h.Status != HealthYellow || h.LatencyMs != 2500 {
		t.Fatalf("unexpected health %+v", h)
	}
}

// slowProvider blocks each forecast until release is closed or its context ends.
type slowProvider struct {
	fakeProvider
	started chan struct{}
	release chan struct{}
}

func (s *slowProvider) GetForecast(ctx context.Context, _, _ float64, _ int64) (int64, error) {
	s.forecastHits.Add(1)
	s.started <- struct{}{}
	select {
	case <-s.release:
		return s.forecast, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestCachedProviderCancelledCallerDoesNotFailWaiters(t *testing.T) {
	inner := &slowProvider{
		fakeProvider: fakeProvider{name: "nws", forecast: 612},
		started:      make(chan struct{}, 1),
		release:      make(chan struct{}),
	}
	p := NewCachedProvider(inner, store.NewMemoryStore(0), CacheOptions{}, logging.Discard())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.GetForecast(firstCtx, 1, 2, 3)
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		temp int64
		err  error
	}
	second := make(chan result, 1)
	go func() {
		temp, err := p.GetForecast(context.Background(), 1, 2, 3)
		second <- result{temp, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the cancelled caller to see context.Canceled, got %v", err)
	}

	close(inner.release)
	select {
	case r := <-second:
		if r.err != nil || r.temp != 612 {
			t.Fatalf("expected 612 for the waiting caller, got %d, %v", r.temp, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting caller never returned")
	}
	if n := inner.forecastHits.Load(); n != 1 {
		t.Fatalf("expected one shared upstream call, got %d", n)
	}
}
