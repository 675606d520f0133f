package ranking

import (
	"cmp"
	"math"
	"slices"
)

// BaselineOf returns the minimum duration and distance across routes.
func BaselineOf(routes []ScoredRoute) Baseline {
	if len(routes) == 0 {
		return Baseline{}
	}

	b := Baseline{
		DurationSeconds: routes[0].Candidate.DurationSeconds,
		DistanceMeters:  routes[0].Candidate.DistanceMeters,
	}
	for _, r := range routes[1:] {
		b.DurationSeconds = math.Min(b.DurationSeconds, r.Candidate.DurationSeconds)
		b.DistanceMeters = math.Min(b.DistanceMeters, r.Candidate.DistanceMeters)
	}
	return b
}

// CompositeScore blends a safety score with time and distance efficiency
// relative to the baseline. The result is rounded and clamped to [0, 100].
func CompositeScore(safetyScore int, durationSeconds, distanceMeters float64, base Baseline, w Weights) int {
	composite := w.Safety*float64(safetyScore) +
		w.Time*efficiency(base.DurationSeconds, durationSeconds) +
		w.Distance*efficiency(base.DistanceMeters, distanceMeters)

	if math.IsNaN(composite) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, composite))))
}

// efficiency is min(100, best/value*100). A non-positive value is already
// the best possible and scores 100.
func efficiency(best, value float64) float64 {
	if value <= 0 {
		return 100
	}
	return math.Min(100, best/value*100)
}

// Order computes composite scores and sorts routes by safety score
// descending, breaking ties by composite score, then shorter distance,
// shorter duration and candidate ID. Ranks start at 1 and only rank 1 is
// recommended. The input slice is not modified.
func Order(routes []ScoredRoute, w Weights) []RankedRoute {
	base := BaselineOf(routes)

	ranked := make([]RankedRoute, len(routes))
	for i, r := range routes {
		ranked[i] = RankedRoute{
			Candidate: r.Candidate,
			Metrics:   r.Metrics,
			CompositeScore: CompositeScore(
				r.Metrics.SafetyScore,
				r.Candidate.DurationSeconds,
				r.Candidate.DistanceMeters,
				base, w,
			),
		}
	}

	slices.SortStableFunc(ranked, func(a, b RankedRoute) int {
		return cmp.Or(
			cmp.Compare(b.Metrics.SafetyScore, a.Metrics.SafetyScore),
			cmp.Compare(b.CompositeScore, a.CompositeScore),
			cmp.Compare(a.Candidate.DistanceMeters, b.Candidate.DistanceMeters),
			cmp.Compare(a.Candidate.DurationSeconds, b.Candidate.DurationSeconds),
			cmp.Compare(a.Candidate.ID, b.Candidate.ID),
		)
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].IsRecommended = i == 0
	}
	return ranked
}
