package providers

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/i474232898/weather-markets/internal/weather"
)

const metNoBody = `{"properties":{"timeseries":[
	{"time":"2024-06-01T10:00:00Z","data":{"instant":{"details":{"air_temperature":18.0}}}},
	{"time":"2024-06-01T11:00:00Z","data":{"instant":{"details":{}}}},
	{"time":"2024-06-01T12:00:00Z","data":{"instant":{"details":{"air_temperature":20.0}}}},
	{"time":"2024-06-01T13:00:00Z","data":{"instant":{"details":{"air_temperature":25.0}}}}
]}}`

func newMetNoTestProvider(t *testing.T, handler http.HandlerFunc, now time.Time) *MetNoProvider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/compact", handler)
	srv := newServer(t, mux)

	p := NewMetNoProvider(srv.Client(), "test-agent/1.0")
	p.baseURL = srv.URL + "/compact"
	p.httpCfg = fastConfig(p.httpCfg)
	p.now = func() time.Time { return now }
	return p
}

func TestMetNoForecast(t *testing.T) {
	var gotLat string
	p := newMetNoTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotLat = r.URL.Query().Get("lat")
		if r.Header.Get("User-Agent") != "test-agent/1.0" {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		jsonHandler(metNoBody)(w, r)
	}, time.Now())

	target := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC).Unix()
	got, err := p.GetForecast(context.Background(), 59.913868123, 10.752245, target)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 680 {
		t.Fatalf("expected the 12:00 point (20C = 680), got %d", got)
	}
	if gotLat != "59.9139" {
		t.Fatalf("expected four decimal latitude, got %q", gotLat)
	}
}

func TestMetNoReadingOnlyFromPast(t *testing.T) {
	p := newMetNoTestProvider(t, jsonHandler(metNoBody), time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC))

	r, err := p.GetFirstReadingAtOrAfter(context.Background(), 59.91, 10.75, time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC).Unix())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.TempTenths != 680 || r.ObservedTimestamp != time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix() {
		t.Fatalf("unexpected reading %+v", r)
	}

	// 13:00 is still in the future relative to now.
	_, err = p.GetFirstReadingAtOrAfter(context.Background(), 59.91, 10.75, time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC).Unix())
	if !weather.IsNoData(err) {
		t.Fatalf("expected no data for future point, got %v", err)
	}
}

func TestMetNoRetriesServerErrors(t *testing.T) {
	var calls int32
	p := newMetNoTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		jsonHandler(metNoBody)(w, r)
	}, time.Now())

	if _, err := p.GetForecast(context.Background(), 59.91, 10.75, 0); err != nil {
		t.Fatalf("expected retries to succeed, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestMetNoClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	p := newMetNoTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}, time.Now())

	_, err := p.GetForecast(context.Background(), 59.91, 10.75, 0)
	var up *weather.UpstreamHTTPError
	if !errors.As(err, &up) || up.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 UpstreamHTTPError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestMetNoRejectsNonJSON(t *testing.T) {
	p := newMetNoTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}, time.Now())

	_, err := p.GetForecast(context.Background(), 59.91, 10.75, 0)
	var up *weather.UpstreamHTTPError
	if !errors.As(err, &up) || !errors.Is(err, errNotJSON) {
		t.Fatalf("expected non-json UpstreamHTTPError, got %v", err)
	}
}

func TestMetNoHealthCheckRedOnFailure(t *testing.T) {
	p := newMetNoTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}, time.Now())

	h := p.HealthCheck(context.Background())
	if h.Status != weather.HealthRed || h.ErrorMessage == "" {
		t.Fatalf("expected red health with message, got %+v", h)
	}
}
