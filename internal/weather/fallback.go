package weather

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-markets/internal/metrics"
)

// FallbackProvider tries providers in priority order and returns the first
// success. Health is probed across all providers concurrently.
type FallbackProvider struct {
	providers []Provider
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewFallbackProvider creates a FallbackProvider over providers, in order.
func NewFallbackProvider(logger logrus.FieldLogger, providers ...Provider) *FallbackProvider {
	return &FallbackProvider{
		providers: providers,
		logger:    logger.WithField("component", "weather-fallback"),
		now:       time.Now,
	}
}

func (f *FallbackProvider) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// Providers returns the wrapped providers in priority order.
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}

func (f *FallbackProvider) GetForecast(ctx context.Context, lat, lon float64, timestamp int64) (int64, error) {
	var attempts []Attempt
	for _, p := range f.providers {
		temp, err := p.GetForecast(ctx, lat, lon, timestamp)
		if err == nil {
			return temp, nil
		}
		attempts = append(attempts, f.record(p, "forecast", err))
		if ctx.Err() != nil {
			break
		}
	}
	metrics.FallbackExhausted.WithLabelValues("forecast").Inc()
	return 0, &AggregateError{Op: "forecast", Attempts: attempts}
}

func (f *FallbackProvider) GetFirstReadingAtOrAfter(ctx context.Context, lat, lon float64, timestamp int64) (Reading, error) {
	var attempts []Attempt
	for _, p := range f.providers {
		r, err := p.GetFirstReadingAtOrAfter(ctx, lat, lon, timestamp)
		if err == nil {
			return r, nil
		}
		attempts = append(attempts, f.record(p, "reading", err))
		if ctx.Err() != nil {
			break
		}
	}
	metrics.FallbackExhausted.WithLabelValues("reading").Inc()
	return Reading{}, &AggregateError{Op: "reading", Attempts: attempts}
}

func (f *FallbackProvider) record(p Provider, op string, err error) Attempt {
	f.logger.WithFields(logrus.Fields{
		"provider": p.Name(),
		"op":       op,
	}).WithError(err).Warn("provider failed, trying next")
	return Attempt{Provider: p.Name(), Message: err.Error(), Err: err}
}

// HealthReport probes every provider concurrently. Probes that panic or do
// not answer before ctx is done are left out.
func (f *FallbackProvider) HealthReport(ctx context.Context) []ProviderHealth {
	type result struct {
		idx    int
		health ProviderHealth
	}

	results := make(chan result, len(f.providers))
	var wg sync.WaitGroup
	for i, p := range f.providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					f.logger.WithField("provider", p.Name()).Errorf("health check panicked: %v", r)
				}
			}()
			results <- result{idx: i, health: p.HealthCheck(ctx)}
		}(i, p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	byIdx := make(map[int]ProviderHealth, len(f.providers))
collect:
	for {
		select {
		case r := <-results:
			byIdx[r.idx] = r.health
		case <-done:
			// Drain whatever landed between the last receive and close.
			for {
				select {
				case r := <-results:
					byIdx[r.idx] = r.health
				default:
					break collect
				}
			}
		case <-ctx.Done():
			break collect
		}
	}

	out := make([]ProviderHealth, 0, len(byIdx))
	for i := range f.providers {
		if h, ok := byIdx[i]; ok {
			out = append(out, h)
		}
	}
	return out
}

// HealthCheck reports the worst status and the best latency among the
// providers that answered, or red when none did.
func (f *FallbackProvider) HealthCheck(ctx context.Context) ProviderHealth {
	return f.Summarize(f.HealthReport(ctx))
}

// Summarize folds per-provider reports into the stack's overall health.
func (f *FallbackProvider) Summarize(reports []ProviderHealth) ProviderHealth {
	overall := ProviderHealth{
		Provider:      f.Name(),
		LastCheckedAt: f.now().UTC(),
	}
	if len(reports) == 0 {
		overall.Status = HealthRed
		overall.ErrorMessage = "no provider responded to health check"
		return overall
	}

	overall.Status = HealthGreen
	overall.LatencyMs = reports[0].LatencyMs
	var problems []string
	for _, h := range reports {
		if h.Status.Worse(overall.Status) {
			overall.Status = h.Status
		}
		if h.LatencyMs < overall.LatencyMs {
			overall.LatencyMs = h.LatencyMs
		}
		if h.ErrorMessage != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", h.Provider, h.ErrorMessage))
		}
	}
	overall.ErrorMessage = strings.Join(problems, "; ")
	return overall
}

var _ Provider = (*FallbackProvider)(nil)
