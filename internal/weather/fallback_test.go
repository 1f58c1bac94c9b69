package weather

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/weather-markets/internal/logging"
)

func TestFallbackReturnsFirstSuccess(t *testing.T) {
	a := &fakeProvider{name: "a", forecastErr: errors.New("boom")}
	b := &fakeProvider{name: "b", forecast: 456}
	c := &fakeProvider{name: "c", forecast: 999}
	f := NewFallbackProvider(logging.Discard(), a, b, c)

	got, err := f.GetForecast(context.Background(), 1, 2, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 456 {
		t.Fatalf("expected 456, got %d", got)
	}
	if a.forecastHits.Load() != 1 || c.forecastHits.Load() != 0 {
		t.Fatalf("expected a tried once and c untouched, got a=%d c=%d", a.forecastHits.Load(), c.forecastHits.Load())
	}
}

func TestFallbackAggregatesAllFailures(t *testing.T) {
	a := &fakeProvider{name: "a", readingErr: &UpstreamHTTPError{Provider: "a", StatusCode: 500, Err: errors.New("down")}}
	b := &fakeProvider{name: "b", readingErr: &SchemaError{Provider: "b", Err: errors.New("missing field")}}
	f := NewFallbackProvider(logging.Discard(), a, b)

	_, err := f.GetFirstReadingAtOrAfter(context.Background(), 1, 2, 3)
	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("expected AggregateError, got %v", err)
	}
	if len(agg.Attempts) != 2 || agg.Attempts[0].Provider != "a" || agg.Attempts[1].Provider != "b" {
		t.Fatalf("unexpected attempts %+v", agg.Attempts)
	}
	if agg.Op != "reading" {
		t.Fatalf("unexpected op %q", agg.Op)
	}
}

func TestFallbackHealthWorstStatusBestLatency(t *testing.T) {
	a := &fakeProvider{name: "a", health: ProviderHealth{Status: HealthGreen, LatencyMs: 300}}
	b := &fakeProvider{name: "b", health: ProviderHealth{Status: HealthYellow, LatencyMs: 120}}
	c := &fakeProvider{name: "c", health: ProviderHealth{Status: HealthGreen, LatencyMs: 800}}
	f := NewFallbackProvider(logging.Discard(), a, b, c)

	h := f.HealthCheck(context.Background())
	if h.Status != HealthYellow {
		t.Fatalf("expected yellow, got %s", h.Status)
	}
	if h.LatencyMs != 120 {
		t.Fatalf("expected best latency 120, got %d", h.LatencyMs)
	}
}

func TestFallbackHealthRedWhenNobodyResponds(t *testing.T) {
	a := &fakeProvider{name: "a", healthBlock: true}
	f := NewFallbackProvider(logging.Discard(), a)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	h := f.HealthCheck(ctx)
	if h.Status != HealthRed {
		t.Fatalf("expected red, got %s", h.Status)
	}
	if h.ErrorMessage == "" {
		t.Fatal("expected an error message")
	}
}

func TestFallbackHealthReportKeepsOrder(t *testing.T) {
	a := &fakeProvider{name: "a", health: ProviderHealth{Status: HealthRed, ErrorMessage: "x"}}
	b := &fakeProvider{name: "b", health: ProviderHealth{Status: HealthGreen}}
	f := NewFallbackProvider(logging.Discard(), a, b)

	reports := f.HealthReport(context.Background())
	if len(reports) != 2 || reports[0].Provider != "a" || reports[1].Provider != "b" {
		t.Fatalf("unexpected reports %+v", reports)
	}
}
