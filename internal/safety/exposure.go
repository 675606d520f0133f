package safety

import (
	"math"
	"time"

	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/spatial"
)

// PointExposure is the crime exposure at a single location.
type PointExposure struct {
	Exposure       float64
	CrimeCount     int
	SeverityCounts crime.SeverityCounts
}

// DistanceFactor weights a crime by inverse distance. Distances under one
// meter count as one meter.
func DistanceFactor(distanceMeters float64) float64 {
	return 1 / math.Max(distanceMeters, 1)
}

// TimeDecay halves a crime's weight every halfLifeDays and drops it entirely
// once it is maxAgeDays old. Future-dated crimes count as age zero.
func TimeDecay(ageDays, halfLifeDays, maxAgeDays float64) float64 {
	if ageDays >= maxAgeDays {
		return 0
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/halfLifeDays)
}

// AgeDays returns the age of an event at now in fractional days.
func AgeDays(occurredAt, now time.Time) float64 {
	return now.Sub(occurredAt).Hours() / 24
}

// ExposureAt sums severity × distance factor × time decay over every crime
// within cfg.SearchRadiusMeters of the point.
func ExposureAt(lon, lat float64, idx *spatial.Index, cfg Config, now time.Time) PointExposure {
	var pe PointExposure

	for _, m := range idx.Query(lon, lat, cfg.SearchRadiusMeters) {
		rec := m.Record
		if !cfg.TimeWindow.Contains(rec.OccurredAt) {
			continue
		}

		pe.CrimeCount++
		pe.SeverityCounts.Add(rec.Severity)

		decay := TimeDecay(AgeDays(rec.OccurredAt, now), cfg.HalfLifeDays, cfg.MaxAgeDays)
		if decay == 0 {
			continue
		}
		pe.Exposure += rec.SeverityWeight * DistanceFactor(m.DistanceMeters) * decay
	}

	return pe
}
