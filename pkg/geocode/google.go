// Package geocode resolves coordinates into human-readable addresses
// for the administrative read path.
package geocode

import (
	"context"
	"time"

	"googlemaps.github.io/maps"
)

// Resolver turns a coordinate pair into a display address. Resolution
// is best effort; an empty string means no address is available.
type Resolver interface {
	Resolve(lat, lon float64) string
}

// GoogleResolver uses the Google Maps reverse geocoding API.
type GoogleResolver struct {
	client *maps.Client
}

// NewGoogleResolver creates a resolver with the given API key.
func NewGoogleResolver(apiKey string) (*GoogleResolver, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &GoogleResolver{client: c}, nil
}

// Resolve reverse-geocodes the coordinates, returning the first
// formatted address or an empty string on any failure.
func (g *GoogleResolver) Resolve(lat, lon float64) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lon},
	})
	if err != nil || len(results) == 0 {
		return ""
	}
	return results[0].FormattedAddress
}

// NoopResolver is used when reverse geocoding is disabled.
type NoopResolver struct{}

// Resolve always returns an empty address.
func (NoopResolver) Resolve(lat, lon float64) string {
	return ""
}
