package domain

import "context"

// GeocodingResult contains location data returned by a geocoding provider.
type GeocodingResult struct {
	Lat              float64
	Lon              float64
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // provider confidence score in [0, 1]
}

// Geocoder resolves coordinates to place details.
type Geocoder interface {
	// ReverseGeocode converts coordinates to place details. lon may be in
	// either [0, 360) or [-180, 180).
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}
