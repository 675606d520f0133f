// Package routing fetches candidate routes from a directions provider and
// filters them down to geometrically distinct alternatives.
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrProviderUnavailable indicates the directions provider is down or its
	// circuit is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates the provider found no route between the points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the provider quota is spent.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates a point outside WGS84 bounds.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnsupportedProfile indicates a travel mode no provider serves.
	ErrUnsupportedProfile = errors.New("unsupported routing profile")
)

// Provider is a directions backend.
type Provider interface {
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	Name() string
}

// RouteProfile selects the travel mode.
type RouteProfile string

const (
	ProfileWalk RouteProfile = "foot-walking"
	ProfileBike RouteProfile = "cycling-regular"
)

// Valid reports whether p is a supported profile.
func (p RouteProfile) Valid() bool {
	return p == ProfileWalk || p == ProfileBike
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate checks that c lies within WGS84 bounds.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}

// DirectionsRequest asks the provider for routes between two points.
// Providers return no alternatives when Waypoints is set.
type DirectionsRequest struct {
	Origin          Coordinate
	Destination     Coordinate
	Waypoints       []Coordinate
	Profile         RouteProfile
	MaxAlternatives int
}

// Validate checks every point in the request.
func (r DirectionsRequest) Validate(provider string) error {
	if err := r.Origin.Validate(); err != nil {
		return &Error{Provider: provider, Code: "INVALID_ORIGIN", Message: "invalid origin coordinates", Err: ErrInvalidCoordinates}
	}
	if err := r.Destination.Validate(); err != nil {
		return &Error{Provider: provider, Code: "INVALID_DESTINATION", Message: "invalid destination coordinates", Err: ErrInvalidCoordinates}
	}
	for i, wp := range r.Waypoints {
		if err := wp.Validate(); err != nil {
			return &Error{Provider: provider, Code: "INVALID_WAYPOINT", Message: fmt.Sprintf("invalid waypoint %d coordinates", i), Err: ErrInvalidCoordinates}
		}
	}
	return nil
}

// DirectionsResponse holds the provider's routes, primary first.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route is one routed geometry with its totals.
type Route struct {
	GeometryPolyline string // precision 5
	DistanceMeters   int
	DurationSeconds  int
	Summary          string
}

// Error carries the provider's error code alongside a sentinel.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
