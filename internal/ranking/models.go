package ranking

import (
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
)

// ScoredRoute is a candidate with its safety metrics.
type ScoredRoute struct {
	Candidate routing.Candidate
	Metrics   safety.Metrics
}

// RankedRoute is a scored route placed in the final ordering.
type RankedRoute struct {
	Candidate      routing.Candidate
	Metrics        safety.Metrics
	CompositeScore int
	Rank           int
	IsRecommended  bool
}

// Baseline holds the best duration and distance across a candidate set.
type Baseline struct {
	DurationSeconds float64
	DistanceMeters  float64
}
