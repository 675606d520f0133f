package routing

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

const (
	// DefaultSimilarityThreshold is the similarity percentage above which a
	// candidate is considered a duplicate.
	DefaultSimilarityThreshold = 85.0

	// DefaultTargetCount is the number of distinct routes to aim for.
	DefaultTargetCount = 3

	// DefaultWaypointOffsetFraction is the perpendicular offset of synthesized
	// waypoints as a fraction of the origin-destination chord.
	DefaultWaypointOffsetFraction = 0.2

	// MatchToleranceDegrees is the planar distance under which two sampled
	// points are considered the same (~10m).
	MatchToleranceDegrees = 10.0 / 111000

	maxSimilaritySamples = 20
)

// DedupConfig holds configuration for the deduplicator.
type DedupConfig struct {
	// SimilarityThreshold is a percentage in [0, 100] (default: 85).
	SimilarityThreshold float64

	// TargetCount is the number of distinct routes wanted (default: 3).
	TargetCount int

	// WaypointOffsetFraction sizes synthesized waypoint offsets (default: 0.2).
	WaypointOffsetFraction float64

	// Logger for dedup decisions.
	Logger zerolog.Logger
}

// Deduplicator removes near-identical candidate routes.
type Deduplicator struct {
	threshold      float64
	targetCount    int
	offsetFraction float64
	logger         zerolog.Logger
}

// NewDeduplicator creates a deduplicator, filling zero values with defaults.
func NewDeduplicator(cfg DedupConfig) *Deduplicator {
	threshold := cfg.SimilarityThreshold
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}

	target := cfg.TargetCount
	if target == 0 {
		target = DefaultTargetCount
	}

	fraction := cfg.WaypointOffsetFraction
	if fraction == 0 {
		fraction = DefaultWaypointOffsetFraction
	}

	return &Deduplicator{
		threshold:      threshold,
		targetCount:    target,
		offsetFraction: fraction,
		logger:         cfg.Logger,
	}
}

// Filter keeps candidates in order, dropping any whose similarity to an
// already kept candidate exceeds the threshold. Returns ErrNoRouteFound when
// nothing remains.
func (d *Deduplicator) Filter(candidates []Candidate) ([]Candidate, error) {
	kept := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		duplicate := false
		for _, k := range kept {
			sim := Similarity(c.Geometry, k.Geometry)
			if sim > d.threshold {
				d.logger.Debug().
					Str("candidate_id", c.ID).
					Str("duplicate_of", k.ID).
					Float64("similarity", sim).
					Msg("dropping near-duplicate route")
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, c)
		}
	}

	if len(kept) == 0 {
		return nil, ErrNoRouteFound
	}
	return kept, nil
}

// NeedsVariants reports whether fewer than the target number of distinct routes exist.
func (d *Deduplicator) NeedsVariants(distinct int) bool {
	return distinct < d.targetCount
}

// VariantWaypoints returns the two synthesized via points for a trip.
func (d *Deduplicator) VariantWaypoints(origin, destination Coordinate) []Coordinate {
	return OffsetWaypoints(origin, destination, d.offsetFraction)
}

// Similarity returns the percentage of index-aligned sample points of a and b
// that lie within MatchToleranceDegrees of each other. Up to 20 points are
// sampled from each geometry, spread proportionally along its vertices.
func Similarity(a, b orb.LineString) float64 {
	n := min(maxSimilaritySamples, len(a), len(b))
	if n == 0 {
		return 0
	}

	matches := 0
	for k := 0; k < n; k++ {
		pa := a[sampleIndex(k, n, len(a))]
		pb := b[sampleIndex(k, n, len(b))]
		if math.Hypot(pa[0]-pb[0], pa[1]-pb[1]) < MatchToleranceDegrees {
			matches++
		}
	}

	return float64(matches) / float64(n) * 100
}

func sampleIndex(k, n, length int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Round(float64(k) * float64(length-1) / float64(n-1)))
}
