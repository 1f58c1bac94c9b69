package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-markets/internal/weather"
)

const (
	NameMetNo = "metno"

	defaultMetNoUserAgent = "weather-markets/1.0 github.com/i474232898/weather-markets"
)

// MetNoProvider implements weather.Provider for the MET Norway
// locationforecast gridded model. The service requires an identifying
// User-Agent and has no observation feed, so readings are taken from
// timeseries points that are already in the past.
type MetNoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewMetNoProvider(client *http.Client, userAgent string) *MetNoProvider {
	if userAgent == "" {
		userAgent = defaultMetNoUserAgent
	}
	return &MetNoProvider{
		name:    NameMetNo,
		baseURL: "https://api.met.no/weatherapi/locationforecast/2.0/compact",
		httpCfg: defaultHTTPConfig(client, userAgent, 10),
		circuit: newBreaker(NameMetNo),
		now:     time.Now,
	}
}

func (p *MetNoProvider) Name() string {
	return p.name
}

type metNoPayload struct {
	Properties struct {
		Timeseries []struct {
			Time string `json:"time" validate:"required"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature *float64 `json:"air_temperature"`
					} `json:"details"`
				} `json:"instant"`
			} `json:"data"`
		} `json:"timeseries" validate:"required,dive"`
	} `json:"properties"`
}

type metNoPoint struct {
	at    time.Time
	tempC float64
}

func (p *MetNoProvider) timeseries(ctx context.Context, op string, cfg HTTPClientConfig, lat, lon float64) ([]metNoPoint, error) {
	values := url.Values{}
	// The API refuses more than four decimals.
	values.Set("lat", fmt.Sprintf("%.4f", lat))
	values.Set("lon", fmt.Sprintf("%.4f", lon))

	var payload metNoPayload
	if err := fetchJSON(ctx, p.name, op, cfg, p.circuit, p.baseURL+"?"+values.Encode(), &payload); err != nil {
		return nil, err
	}

	points := make([]metNoPoint, 0, len(payload.Properties.Timeseries))
	for _, ts := range payload.Properties.Timeseries {
		if ts.Data.Instant.Details.AirTemperature == nil {
			continue
		}
		at, err := parseRFC3339(p.name, ts.Time)
		if err != nil {
			return nil, err
		}
		points = append(points, metNoPoint{at: at, tempC: *ts.Data.Instant.Details.AirTemperature})
	}
	return points, nil
}

func (p *MetNoProvider) GetForecast(ctx context.Context, lat, lon float64, timestamp int64) (int64, error) {
	points, err := p.timeseries(ctx, "forecast", p.httpCfg, lat, lon)
	if err != nil {
		return 0, err
	}
	target := time.Unix(timestamp, 0).UTC()
	for _, pt := range points {
		if !pt.at.Before(target) {
			return weather.CelsiusToFahrenheitTenths(pt.tempC), nil
		}
	}
	return 0, &weather.NoDataError{Provider: p.name, Timestamp: timestamp}
}

func (p *MetNoProvider) GetFirstReadingAtOrAfter(ctx context.Context, lat, lon float64, timestamp int64) (weather.Reading, error) {
	points, err := p.timeseries(ctx, "reading", p.httpCfg, lat, lon)
	if err != nil {
		return weather.Reading{}, err
	}
	target := time.Unix(timestamp, 0).UTC()
	now := p.now().UTC()
	for _, pt := range points {
		if pt.at.Before(target) {
			continue
		}
		if pt.at.After(now) {
			break // still a prediction
		}
		return weather.Reading{
			TempTenths:        weather.CelsiusToFahrenheitTenths(pt.tempC),
			ObservedTimestamp: pt.at.Unix(),
			Source:            p.name,
		}, nil
	}
	return weather.Reading{}, &weather.NoDataError{Provider: p.name, Timestamp: timestamp}
}

func (p *MetNoProvider) HealthCheck(ctx context.Context) weather.ProviderHealth {
	return probe(ctx, p.name, func(ctx context.Context) error {
		_, err := p.timeseries(ctx, "health", probeConfig(p.httpCfg), healthProbeLat, healthProbeLon)
		return err
	})
}

var _ weather.Provider = (*MetNoProvider)(nil)
