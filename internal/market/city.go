package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// City is static reference data. Identity is ID; on chain a city is only
// known by keccak256(ID).
type City struct {
	ID        string  `json:"id" yaml:"id" validate:"required"`
	Name      string  `json:"name" yaml:"name" validate:"required"`
	Latitude  float64 `json:"latitude" yaml:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" yaml:"longitude" validate:"gte=-180,lte=180"`
	Timezone  string  `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Hash returns keccak256 of the city id, the on-chain identifier.
func (c City) Hash() common.Hash {
	return CityHash(c.ID)
}

// CityHash returns keccak256(id).
func CityHash(id string) common.Hash {
	return crypto.Keccak256Hash([]byte(id))
}

// DefaultCities is the built-in rotation used when no city file is configured.
func DefaultCities() []City {
	return []City{
		{ID: "new-york", Name: "New York", Latitude: 40.7128, Longitude: -74.0060, Timezone: "America/New_York"},
		{ID: "chicago", Name: "Chicago", Latitude: 41.8781, Longitude: -87.6298, Timezone: "America/Chicago"},
		{ID: "miami", Name: "Miami", Latitude: 25.7617, Longitude: -80.1918, Timezone: "America/New_York"},
		{ID: "denver", Name: "Denver", Latitude: 39.7392, Longitude: -104.9903, Timezone: "America/Denver"},
		{ID: "los-angeles", Name: "Los Angeles", Latitude: 34.0522, Longitude: -118.2437, Timezone: "America/Los_Angeles"},
		{ID: "seattle", Name: "Seattle", Latitude: 47.6062, Longitude: -122.3321, Timezone: "America/Los_Angeles"},
	}
}
