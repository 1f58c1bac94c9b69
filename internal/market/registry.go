package market

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrDuplicateCity = errors.New("city already registered")
	ErrInvalidCity   = errors.New("invalid city")
)

// Geocoder resolves a place name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city City) (lat, lon float64, err error)
}

// Registry holds the known cities in rotation order and the reverse map
// from on-chain hash back to City. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	cities   []City
	byHash   map[common.Hash]City
	geocoder Geocoder
}

// NewRegistry builds a registry from cities, preserving their order.
func NewRegistry(cities []City) (*Registry, error) {
	r := &Registry{byHash: make(map[common.Hash]City, len(cities))}
	for _, c := range cities {
		if err := r.add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// WithGeocoder enables coordinate lookup for cities registered without them.
func (r *Registry) WithGeocoder(g Geocoder) *Registry {
	r.geocoder = g
	return r
}

// Cities returns a copy of the rotation list.
func (r *Registry) Cities() []City {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]City, len(r.cities))
	copy(out, r.cities)
	return out
}

// Lookup finds the city behind an on-chain city hash.
func (r *Registry) Lookup(hash common.Hash) (City, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byHash[hash]
	return c, ok
}

// Register appends a city to the rotation. A city with both coordinates at
// zero is geocoded first when a geocoder is configured.
func (r *Registry) Register(ctx context.Context, c City) (City, error) {
	if c.Latitude == 0 && c.Longitude == 0 && r.geocoder != nil {
		lat, lon, err := r.geocoder.Geocode(ctx, c)
		if err != nil {
			return City{}, fmt.Errorf("geocode %s: %w", c.Name, err)
		}
		c.Latitude, c.Longitude = lat, lon
	}
	if err := r.add(c); err != nil {
		return City{}, err
	}
	return c, nil
}

func (r *Registry) add(c City) error {
	if c.ID == "" || c.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidCity)
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: coordinates out of range for %s", ErrInvalidCity, c.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h := c.Hash()
	if _, exists := r.byHash[h]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCity, c.ID)
	}
	r.byHash[h] = c
	r.cities = append(r.cities, c)
	return nil
}
