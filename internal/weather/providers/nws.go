package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-markets/internal/common"
	"github.com/i474232898/weather-markets/internal/weather"
)

const (
	NameNWS = "nws"

	defaultNWSUserAgent = "weather-markets/1.0 (ops@weather-markets.local)"
	// nwsObservationWindow bounds the observation query after the target time.
	nwsObservationWindow = 3 * time.Hour
)

// NWSProvider implements weather.Provider on top of api.weather.gov: hourly
// gridpoint forecasts and station observations. The API rejects requests
// without a User-Agent.
type NWSProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	// points metadata is stable per coordinate; cache it for the process.
	points sync.Map // "lat,lon" -> nwsPoint
}

type nwsPoint struct {
	ForecastHourly      string
	ObservationStations string
}

func NewNWSProvider(client *http.Client, userAgent string) *NWSProvider {
	if userAgent == "" {
		userAgent = defaultNWSUserAgent
	}
	return &NWSProvider{
		name:    NameNWS,
		baseURL: "https://api.weather.gov",
		httpCfg: defaultHTTPConfig(client, userAgent, 5),
		circuit: newBreaker(NameNWS),
	}
}

func (p *NWSProvider) Name() string {
	return p.name
}

type nwsPointsPayload struct {
	Properties struct {
		ForecastHourly      string `json:"forecastHourly" validate:"required,url"`
		ObservationStations string `json:"observationStations" validate:"required,url"`
	} `json:"properties"`
}

type nwsHourlyPayload struct {
	Properties struct {
		Periods []struct {
			StartTime       string  `json:"startTime" validate:"required"`
			EndTime         string  `json:"endTime" validate:"required"`
			Temperature     float64 `json:"temperature"`
			TemperatureUnit string  `json:"temperatureUnit" validate:"required,oneof=F C"`
		} `json:"periods" validate:"required,dive"`
	} `json:"properties"`
}

type nwsStationsPayload struct {
	Features []struct {
		ID string `json:"id" validate:"required,url"`
	} `json:"features" validate:"required,min=1,dive"`
}

type nwsObservationsPayload struct {
	Features []struct {
		Properties struct {
			Timestamp   string `json:"timestamp" validate:"required"`
			Temperature struct {
				UnitCode string   `json:"unitCode"`
				Value    *float64 `json:"value"`
			} `json:"temperature"`
		} `json:"properties"`
	} `json:"features" validate:"dive"`
}

// point resolves the gridpoint URLs for a location. A 404 means the location
// is outside NWS coverage and is reported as no data.
func (p *NWSProvider) point(ctx context.Context, lat, lon float64, timestamp int64) (nwsPoint, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)
	if v, ok := p.points.Load(key); ok {
		return v.(nwsPoint), nil
	}

	var payload nwsPointsPayload
	u := fmt.Sprintf("%s/points/%s", p.baseURL, key)
	if err := fetchJSON(ctx, p.name, "points", p.httpCfg, p.circuit, u, &payload); err != nil {
		var ue *weather.UpstreamHTTPError
		if errors.As(err, &ue) && ue.StatusCode == http.StatusNotFound {
			return nwsPoint{}, &weather.NoDataError{Provider: p.name, Timestamp: timestamp}
		}
		return nwsPoint{}, err
	}

	pt := nwsPoint{
		ForecastHourly:      payload.Properties.ForecastHourly,
		ObservationStations: payload.Properties.ObservationStations,
	}
	p.points.Store(key, pt)
	return pt, nil
}

func (p *NWSProvider) GetForecast(ctx context.Context, lat, lon float64, timestamp int64) (int64, error) {
	pt, err := p.point(ctx, lat, lon, timestamp)
	if err != nil {
		return 0, err
	}

	var payload nwsHourlyPayload
	if err := fetchJSON(ctx, p.name, "forecast", p.httpCfg, p.circuit, pt.ForecastHourly, &payload); err != nil {
		return 0, err
	}

	target := time.Unix(timestamp, 0).UTC()
	for _, period := range payload.Properties.Periods {
		end, err := parseRFC3339(p.name, period.EndTime)
		if err != nil {
			return 0, err
		}
		// The first period still running at the target (or starting after it).
		if !end.After(target) {
			continue
		}
		if period.TemperatureUnit == "C" {
			return weather.CelsiusToFahrenheitTenths(period.Temperature), nil
		}
		return weather.FahrenheitToTenths(period.Temperature), nil
	}
	return 0, &weather.NoDataError{Provider: p.name, Timestamp: timestamp}
}

func (p *NWSProvider) GetFirstReadingAtOrAfter(ctx context.Context, lat, lon float64, timestamp int64) (weather.Reading, error) {
	pt, err := p.point(ctx, lat, lon, timestamp)
	if err != nil {
		return weather.Reading{}, err
	}

	var stations nwsStationsPayload
	if err := fetchJSON(ctx, p.name, "stations", p.httpCfg, p.circuit, pt.ObservationStations, &stations); err != nil {
		return weather.Reading{}, err
	}

	target := time.Unix(timestamp, 0).UTC()
	values := url.Values{}
	values.Set("start", target.Format(time.RFC3339))
	values.Set("end", target.Add(nwsObservationWindow).Format(time.RFC3339))
	u := fmt.Sprintf("%s/observations?%s", strings.TrimSuffix(stations.Features[0].ID, "/"), values.Encode())

	var obs nwsObservationsPayload
	if err := fetchJSON(ctx, p.name, "observations", p.httpCfg, p.circuit, u, &obs); err != nil {
		return weather.Reading{}, err
	}

	type candidate struct {
		at    time.Time
		tenth int64
	}
	var found []candidate
	for _, f := range obs.Features {
		if f.Properties.Temperature.Value == nil {
			continue // station reported no temperature for this slot
		}
		at, err := parseRFC3339(p.name, f.Properties.Timestamp)
		if err != nil {
			return weather.Reading{}, err
		}
		if at.Before(target) {
			continue
		}
		v := *f.Properties.Temperature.Value
		var tenths int64
		if common.HasAny(f.Properties.Temperature.UnitCode, "degF") {
			tenths = weather.FahrenheitToTenths(v)
		} else {
			tenths = weather.CelsiusToFahrenheitTenths(v)
		}
		found = append(found, candidate{at: at, tenth: tenths})
	}
	if len(found) == 0 {
		return weather.Reading{}, &weather.NoDataError{Provider: p.name, Timestamp: timestamp}
	}

	// Observations come back newest first.
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	return weather.Reading{
		TempTenths:        found[0].tenth,
		ObservedTimestamp: found[0].at.Unix(),
		Source:            p.name,
	}, nil
}

// HealthCheck resolves a fixed gridpoint without retries.
func (p *NWSProvider) HealthCheck(ctx context.Context) weather.ProviderHealth {
	return probe(ctx, p.name, func(ctx context.Context) error {
		var payload nwsPointsPayload
		u := fmt.Sprintf("%s/points/%.4f,%.4f", p.baseURL, healthProbeLat, healthProbeLon)
		return fetchJSON(ctx, p.name, "health", probeConfig(p.httpCfg), p.circuit, u, &payload)
	})
}

var _ weather.Provider = (*NWSProvider)(nil)
