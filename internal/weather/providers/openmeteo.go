package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-markets/internal/weather"
)

const NameOpenMeteo = "openmeteo"

// OpenMeteoProvider implements weather.Provider for Open-Meteo: the hourly
// forecast API for predictions and the archive API for readings.
type OpenMeteoProvider struct {
	name       string
	baseURL    string
	archiveURL string
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
	now        func() time.Time
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:       NameOpenMeteo,
		baseURL:    "https://api.open-meteo.com/v1/forecast",
		archiveURL: "https://archive-api.open-meteo.com/v1/archive",
		httpCfg:    defaultHTTPConfig(client, "", 5),
		circuit:    newBreaker(NameOpenMeteo),
		now:        time.Now,
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

type openMeteoPayload struct {
	Hourly struct {
		Time        []int64    `json:"time" validate:"required"`
		Temperature []*float64 `json:"temperature_2m" validate:"required"`
	} `json:"hourly"`
}

var errSeriesMismatch = errors.New("hourly time and temperature lengths differ")

func (p *OpenMeteoProvider) hourly(ctx context.Context, op, base string, cfg HTTPClientConfig, values url.Values) (openMeteoPayload, error) {
	values.Set("hourly", "temperature_2m")
	values.Set("timeformat", "unixtime")
	values.Set("timezone", "GMT")

	var payload openMeteoPayload
	if err := fetchJSON(ctx, p.name, op, cfg, p.circuit, base+"?"+values.Encode(), &payload); err != nil {
		return payload, err
	}
	if len(payload.Hourly.Time) != len(payload.Hourly.Temperature) {
		return payload, &weather.SchemaError{Provider: p.name, Err: errSeriesMismatch}
	}
	return payload, nil
}

func coordValues(lat, lon float64) url.Values {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", lat))
	values.Set("longitude", fmt.Sprintf("%f", lon))
	return values
}

func (p *OpenMeteoProvider) GetForecast(ctx context.Context, lat, lon float64, timestamp int64) (int64, error) {
	values := coordValues(lat, lon)
	values.Set("forecast_days", "7")

	payload, err := p.hourly(ctx, "forecast", p.baseURL, p.httpCfg, values)
	if err != nil {
		return 0, err
	}
	for i, at := range payload.Hourly.Time {
		if at < timestamp || payload.Hourly.Temperature[i] == nil {
			continue
		}
		return weather.CelsiusToFahrenheitTenths(*payload.Hourly.Temperature[i]), nil
	}
	return 0, &weather.NoDataError{Provider: p.name, Timestamp: timestamp}
}

func (p *OpenMeteoProvider) GetFirstReadingAtOrAfter(ctx context.Context, lat, lon float64, timestamp int64) (weather.Reading, error) {
	target := time.Unix(timestamp, 0).UTC()
	values := coordValues(lat, lon)
	values.Set("start_date", target.Format("2006-01-02"))
	values.Set("end_date", target.Add(24*time.Hour).Format("2006-01-02"))

	payload, err := p.hourly(ctx, "reading", p.archiveURL, p.httpCfg, values)
	if err != nil {
		return weather.Reading{}, err
	}
	now := p.now().Unix()
	for i, at := range payload.Hourly.Time {
		if at < timestamp || payload.Hourly.Temperature[i] == nil {
			continue
		}
		if at > now {
			break
		}
		return weather.Reading{
			TempTenths:        weather.CelsiusToFahrenheitTenths(*payload.Hourly.Temperature[i]),
			ObservedTimestamp: at,
			Source:            p.name,
		}, nil
	}
	return weather.Reading{}, &weather.NoDataError{Provider: p.name, Timestamp: timestamp}
}

func (p *OpenMeteoProvider) HealthCheck(ctx context.Context) weather.ProviderHealth {
	return probe(ctx, p.name, func(ctx context.Context) error {
		values := coordValues(healthProbeLat, healthProbeLon)
		values.Set("forecast_days", "1")
		_, err := p.hourly(ctx, "health", p.baseURL, probeConfig(p.httpCfg), values)
		return err
	})
}

var _ weather.Provider = (*OpenMeteoProvider)(nil)
