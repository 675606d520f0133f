package routing

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/saferoute/saferoute/pkg/polyline"
)

// ErrInvalidCandidate indicates a candidate route fails validation.
var ErrInvalidCandidate = errors.New("invalid route candidate")

// CandidateOrigin records how a candidate route was obtained.
type CandidateOrigin string

const (
	// OriginDirect is the provider's primary route.
	OriginDirect CandidateOrigin = "direct"
	// OriginAlternative is an alternative returned alongside the primary route.
	OriginAlternative CandidateOrigin = "alternative"
	// OriginWaypointVariant is routed through a synthesized off-chord waypoint.
	OriginWaypointVariant CandidateOrigin = "waypoint-variant"
	// OriginDetour is routed around the riskiest point of another route.
	OriginDetour CandidateOrigin = "detour"
	// OriginSupplied is provided directly by the caller.
	OriginSupplied CandidateOrigin = "supplied"
)

// Candidate is a route geometry awaiting scoring. Geometry is lon/lat.
type Candidate struct {
	ID              string
	Geometry        orb.LineString
	DistanceMeters  float64
	DurationSeconds float64
	Origin          CandidateOrigin
	Summary         string
}

// Validate checks the geometry and totals.
func (c Candidate) Validate() error {
	if len(c.Geometry) < 2 {
		return fmt.Errorf("%w: %q has %d vertices, need at least 2", ErrInvalidCandidate, c.ID, len(c.Geometry))
	}
	for i, p := range c.Geometry {
		if err := (Coordinate{Lat: p.Lat(), Lon: p.Lon()}).Validate(); err != nil {
			return fmt.Errorf("%w: %q vertex %d out of range", ErrInvalidCandidate, c.ID, i)
		}
	}
	if !(c.DistanceMeters >= 0) || math.IsInf(c.DistanceMeters, 0) {
		return fmt.Errorf("%w: %q distance must be non-negative", ErrInvalidCandidate, c.ID)
	}
	if !(c.DurationSeconds >= 0) || math.IsInf(c.DurationSeconds, 0) {
		return fmt.Errorf("%w: %q duration must be non-negative", ErrInvalidCandidate, c.ID)
	}
	return nil
}

// CandidateFromRoute decodes a provider route into a candidate.
func CandidateFromRoute(id string, route Route, origin CandidateOrigin) (Candidate, error) {
	line, err := polyline.Decode(route.GeometryPolyline)
	if err != nil {
		return Candidate{}, fmt.Errorf("decode geometry for %s: %w", id, err)
	}

	c := Candidate{
		ID:              id,
		Geometry:        line,
		DistanceMeters:  float64(route.DistanceMeters),
		DurationSeconds: float64(route.DurationSeconds),
		Origin:          origin,
		Summary:         route.Summary,
	}
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}
