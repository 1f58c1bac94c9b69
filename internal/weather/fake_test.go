package weather

import (
	"context"
	"sync/atomic"
	"time"
)

type fakeProvider struct {
	name         string
	forecast     int64
	forecastErr  error
	reading      Reading
	readingErr   error
	health       ProviderHealth
	healthBlock  bool
	forecastHits atomic.Int32
	readingHits  atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) GetForecast(_ context.Context, _, _ float64, _ int64) (int64, error) {
	f.forecastHits.Add(1)
	if f.forecastErr != nil {
		return 0, f.forecastErr
	}
	return f.forecast, nil
}

func (f *fakeProvider) GetFirstReadingAtOrAfter(_ context.Context, _, _ float64, _ int64) (Reading, error) {
	f.readingHits.Add(1)
	if f.readingErr != nil {
		return Reading{}, f.readingErr
	}
	return f.reading, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) ProviderHealth {
	if f.healthBlock {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
	}
	h := f.health
	h.Provider = f.name
	return h
}
