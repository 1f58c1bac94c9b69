package market

import (
	"context"
	"sync"

	"github.com/kelvins/geocoder"
)

// KelvinsGeocoder adapts github.com/kelvins/geocoder (Google Geocoding API).
// The library keys off a package-level ApiKey, so calls are serialized.
type KelvinsGeocoder struct {
	mu     sync.Mutex
	apiKey string
}

func NewKelvinsGeocoder(apiKey string) *KelvinsGeocoder {
	return &KelvinsGeocoder{apiKey: apiKey}
}

func (g *KelvinsGeocoder) Geocode(ctx context.Context, c City) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	geocoder.ApiKey = g.apiKey
	loc, err := geocoder.Geocoding(geocoder.Address{City: c.Name})
	if err != nil {
		return 0, 0, err
	}
	return loc.Latitude, loc.Longitude, nil
}
