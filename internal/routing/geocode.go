package routing

import (
	"context"
	"errors"
)

// ErrAddressNotFound indicates a geocoder found no match for an address.
var ErrAddressNotFound = errors.New("address not found")

// Place is a geocoded address.
type Place struct {
	Label      string
	Coordinate Coordinate
}

// Geocoder resolves free-text addresses to their best-matching point.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Place, error)
}
