package safety

import (
	"github.com/paulmach/orb"

	"github.com/saferoute/saferoute/internal/crime"
)

// Interpretation is the human-readable band of a safety score.
type Interpretation string

const (
	InterpretationExcellent Interpretation = "Excellent"
	InterpretationGood      Interpretation = "Good"
	InterpretationFair      Interpretation = "Fair"
	InterpretationCaution   Interpretation = "Caution"
	InterpretationHighRisk  Interpretation = "HighRisk"
)

// Interpret maps a 0-100 score onto its band.
func Interpret(score int) Interpretation {
	switch {
	case score >= 85:
		return InterpretationExcellent
	case score >= 70:
		return InterpretationGood
	case score >= 55:
		return InterpretationFair
	case score >= 40:
		return InterpretationCaution
	default:
		return InterpretationHighRisk
	}
}

// SampleExposure is the exposure observed at one sample point.
type SampleExposure struct {
	Index    int
	Point    orb.Point
	Exposure float64
}

// Metrics is the safety assessment of one route.
type Metrics struct {
	SafetyScore        int
	RawExposure        float64
	NormalizedExposure float64
	// TotalCrimes counts matches per sample, so a crime near two samples is counted twice.
	TotalCrimes    int
	SeverityCounts crime.SeverityCounts
	CrimesPerKm    float64
	Interpretation Interpretation
	SampleCount    int
	LengthMeters   float64
	// WorstSample is the sample with the highest exposure.
	WorstSample SampleExposure
}
