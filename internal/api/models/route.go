package models

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RouteProfile names a routing profile accepted by the API.
type RouteProfile string

const (
	ProfileWalk RouteProfile = "foot-walking"
	ProfileBike RouteProfile = "cycling-regular"
)

// TimeWindow restricts scoring to crimes from a part of the day. "auto"
// picks the window of the departure time; omitted uses the server default.
type TimeWindow string

// RouteComputeRequest is the request body for POST /v1/routes:compute. Each
// endpoint is given either as a point or as an address to geocode.
type RouteComputeRequest struct {
	Origin             *Point       `json:"origin,omitempty" validate:"required_without=OriginAddress,excluded_with=OriginAddress"`
	OriginAddress      string       `json:"originAddress,omitempty" validate:"max=200"`
	Destination        *Point       `json:"destination,omitempty" validate:"required_without=DestinationAddress,excluded_with=DestinationAddress"`
	DestinationAddress string       `json:"destinationAddress,omitempty" validate:"max=200"`
	DepartureTime      *Timestamp   `json:"departureTime,omitempty"`
	Profile            RouteProfile `json:"profile,omitempty" validate:"omitempty,oneof=foot-walking cycling-regular"`
	TimeWindow         TimeWindow   `json:"timeWindow,omitempty" validate:"omitempty,oneof=all day evening night auto"`
}

// RouteRankRequest is the request body for POST /v1/routes:rank.
type RouteRankRequest struct {
	Candidates []CandidateInput `json:"candidates" validate:"required,min=1,max=20,dive"`
	At         *Timestamp       `json:"at,omitempty"`
	TimeWindow TimeWindow       `json:"timeWindow,omitempty" validate:"omitempty,oneof=all day evening night auto"`
}

// CandidateInput is a caller-supplied route. Coordinates are [lon, lat]
// pairs in GeoJSON order.
type CandidateInput struct {
	ID              string         `json:"id" validate:"required,max=64"`
	Coordinates     orb.LineString `json:"coordinates" validate:"required,min=2"`
	DistanceMeters  float64        `json:"distanceMeters" validate:"gte=0"`
	DurationSeconds float64        `json:"durationSeconds" validate:"gte=0"`
	Summary         string         `json:"summary,omitempty" validate:"max=200"`
}

// RoutesResponse is the response for both compute and rank.
type RoutesResponse struct {
	GeneratedAt    Timestamp             `json:"generatedAt"`
	Origin         *Place                `json:"origin,omitempty"`
	Destination    *Place                `json:"destination,omitempty"`
	ScoredAt       Timestamp             `json:"scoredAt"`
	TimeWindow     TimeWindow            `json:"timeWindow"`
	DatasetVersion int64                 `json:"datasetVersion"`
	Considered     int                   `json:"considered"`
	Detour         *DetourInfo           `json:"detour,omitempty"`
	Routes         []RankedRouteResponse `json:"routes"`
}

// Place is a resolved trip endpoint. Label is set when it was geocoded.
type Place struct {
	Label string `json:"label,omitempty"`
	Point Point  `json:"point"`
}

// DetourInfo reports whether a risk-aware detour was tried and kept.
type DetourInfo struct {
	Attempted bool `json:"attempted"`
	Added     bool `json:"added"`
}

// RankedRouteResponse is one route in the final ordering.
type RankedRouteResponse struct {
	ID              string            `json:"id"`
	Kind            string            `json:"kind"`
	Summary         string            `json:"summary,omitempty"`
	Rank            int               `json:"rank"`
	Recommended     bool              `json:"recommended"`
	CompositeScore  int               `json:"compositeScore"`
	DistanceMeters  float64           `json:"distanceMeters"`
	DurationSeconds float64           `json:"durationSeconds"`
	Geometry        *geojson.Geometry `json:"geometry"`
	Safety          SafetyBlock       `json:"safety"`
}

// SafetyBlock is the crime-exposure assessment of a route.
type SafetyBlock struct {
	Score              int            `json:"score"`
	Interpretation     string         `json:"interpretation"`
	RawExposure        float64        `json:"rawExposure"`
	NormalizedExposure float64        `json:"normalizedExposure"`
	TotalCrimes        int            `json:"totalCrimes"`
	CrimesPerKm        float64        `json:"crimesPerKm"`
	SeverityCounts     SeverityCounts `json:"severityCounts"`
	SampleCount        int            `json:"sampleCount"`
	LengthMeters       float64        `json:"lengthMeters"`
	WorstSample        *SamplePoint   `json:"worstSample,omitempty"`
}

// SeverityCounts tallies nearby crimes by severity.
type SeverityCounts struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// SamplePoint is a sample location with its exposure.
type SamplePoint struct {
	Point    Point   `json:"point"`
	Exposure float64 `json:"exposure"`
}
