package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-markets/internal/common"
	"github.com/i474232898/weather-markets/internal/metrics"
	"github.com/i474232898/weather-markets/internal/weather"
)

// slowProbe is the latency above which a successful probe reports yellow.
const slowProbe = 2 * time.Second

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client    *http.Client
	Backoff   BackoffConfig
	UserAgent string
	// Limiter paces outbound requests; nil means unpaced.
	Limiter *rate.Limiter
}

func defaultHTTPConfig(client *http.Client, userAgent string, rps float64) HTTPClientConfig {
	return HTTPClientConfig{
		Client: client,
		Backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		UserAgent: userAgent,
		Limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errNotJSON       = errors.New("response is not json")
)

var validate = validator.New()

// statusError is returned from inside the breaker for non-2xx responses.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return http.StatusText(e.code)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.code), e.body)
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	// Transport errors (timeouts, resets) are worth another try.
	return true
}

// doRequestWithResilience executes the HTTP request with pacing, retries,
// exponential backoff, and a circuit breaker. Errors come back as
// *weather.UpstreamHTTPError.
func doRequestWithResilience(
	ctx context.Context,
	provider string,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	for {
		if ctx.Err() != nil {
			return nil, &weather.UpstreamHTTPError{Provider: provider, Err: ctx.Err()}
		}
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return nil, &weather.UpstreamHTTPError{Provider: provider, Err: err}
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)
		if cfg.UserAgent != "" {
			req.Header.Set("User-Agent", cfg.UserAgent)
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
				resp.Body.Close()
				return nil, &statusError{code: resp.StatusCode, body: string(body)}
			}
			return resp, nil
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &weather.UpstreamHTTPError{Provider: provider, Err: fmt.Errorf("%w: %v", errCircuitOpen, err)}
		}

		if !retryable(err) || attempt >= cfg.Backoff.MaxRetries {
			return nil, toUpstreamError(provider, err)
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &weather.UpstreamHTTPError{Provider: provider, Err: ctx.Err()}
		case <-timer.C:
		}

		attempt++
	}
}

func toUpstreamError(provider string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		return &weather.UpstreamHTTPError{Provider: provider, StatusCode: se.code, Err: se}
	}
	return &weather.UpstreamHTTPError{Provider: provider, Err: err}
}

// fetchJSON GETs rawURL, decodes the body into out and validates it against
// the struct's `validate` tags.
func fetchJSON(ctx context.Context, provider, op string, cfg HTTPClientConfig, cb *gobreaker.CircuitBreaker, rawURL string, out interface{}) error {
	start := time.Now()
	err := fetchJSONOnce(ctx, provider, cfg, cb, rawURL, out)
	metrics.ProviderLatency.WithLabelValues(provider, op).Observe(time.Since(start).Seconds())
	metrics.ProviderRequests.WithLabelValues(provider, op, metrics.OutcomeOf(err)).Inc()
	return err
}

func fetchJSONOnce(ctx context.Context, provider string, cfg HTTPClientConfig, cb *gobreaker.CircuitBreaker, rawURL string, out interface{}) error {
	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json, application/geo+json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, provider, cfg, cb, buildRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" && !common.HasAny(ct, "json") {
		return &weather.UpstreamHTTPError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %s", errNotJSON, ct)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &weather.SchemaError{Provider: provider, Err: err}
	}
	if err := validate.Struct(out); err != nil {
		return &weather.SchemaError{Provider: provider, Err: err}
	}
	return nil
}

// probeConfig disables retries so a health probe reflects one round trip.
func probeConfig(cfg HTTPClientConfig) HTTPClientConfig {
	cfg.Backoff.MaxRetries = 0
	cfg.Limiter = nil
	return cfg
}

// probe times fn and maps the outcome to a traffic-light status.
func probe(ctx context.Context, provider string, fn func(ctx context.Context) error) weather.ProviderHealth {
	start := time.Now()
	err := fn(ctx)
	latency := time.Since(start)

	h := weather.ProviderHealth{
		Provider:      provider,
		LatencyMs:     latency.Milliseconds(),
		LastCheckedAt: time.Now().UTC(),
	}
	switch {
	case err != nil:
		h.Status = weather.HealthRed
		h.ErrorMessage = err.Error()
	case latency > slowProbe:
		h.Status = weather.HealthYellow
	default:
		h.Status = weather.HealthGreen
	}
	return h
}

func parseRFC3339(provider, value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &weather.SchemaError{Provider: provider, Err: fmt.Errorf("bad timestamp %q: %w", value, err)}
	}
	return ts.UTC(), nil
}
