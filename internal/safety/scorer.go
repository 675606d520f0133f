package safety

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/saferoute/saferoute/internal/spatial"
)

// Sentinel errors for route scoring.
var (
	// ErrDegenerateRoute indicates a geometry with fewer than two vertices or zero length.
	ErrDegenerateRoute = errors.New("degenerate route geometry")
	// ErrNoSamples indicates scoring was attempted without sample points.
	ErrNoSamples = errors.New("route has no sample points")
)

// Scorer computes safety metrics for route geometries. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer after validating cfg.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// WithWindow returns a scorer that counts only crimes inside w. The receiver
// is left unchanged.
func (s *Scorer) WithWindow(w TimeWindow) *Scorer {
	if w == s.cfg.TimeWindow {
		return s
	}
	cfg := s.cfg
	cfg.TimeWindow = w
	return &Scorer{cfg: cfg}
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score samples the geometry and aggregates exposure into metrics.
func (s *Scorer) Score(line orb.LineString, idx *spatial.Index, now time.Time) (Metrics, error) {
	if len(line) < 2 {
		return Metrics{}, fmt.Errorf("%w: %d vertices", ErrDegenerateRoute, len(line))
	}
	length := LengthMeters(line)
	if length <= 0 {
		return Metrics{}, fmt.Errorf("%w: zero length", ErrDegenerateRoute)
	}

	return s.ScoreSamples(Sample(line, s.cfg.SampleIntervalMeters), length, idx, now)
}

// ScoreSamples aggregates exposure over precomputed sample points.
func (s *Scorer) ScoreSamples(samples []orb.Point, lengthMeters float64, idx *spatial.Index, now time.Time) (Metrics, error) {
	if len(samples) == 0 {
		return Metrics{}, ErrNoSamples
	}

	m := Metrics{
		SampleCount:  len(samples),
		LengthMeters: lengthMeters,
		WorstSample:  SampleExposure{Index: -1, Exposure: -1},
	}

	for i, p := range samples {
		pe := ExposureAt(p.Lon(), p.Lat(), idx, s.cfg, now)
		m.RawExposure += pe.Exposure
		m.TotalCrimes += pe.CrimeCount
		m.SeverityCounts.Merge(pe.SeverityCounts)

		if pe.Exposure > m.WorstSample.Exposure {
			m.WorstSample = SampleExposure{Index: i, Point: p, Exposure: pe.Exposure}
		}
	}

	m.NormalizedExposure = m.RawExposure / float64(len(samples))
	m.SafetyScore = scoreFromExposure(m.NormalizedExposure, s.cfg.CalibrationFactor)
	m.Interpretation = Interpret(m.SafetyScore)
	if lengthMeters > 0 {
		m.CrimesPerKm = float64(m.TotalCrimes) / (lengthMeters / 1000)
	}

	return m, nil
}

func scoreFromExposure(normalized, calibration float64) int {
	raw := 100 - normalized*calibration
	if math.IsNaN(raw) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, raw))))
}

// LengthMeters returns the haversine length of a lon/lat line.
func LengthMeters(line orb.LineString) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += segmentMeters(line[i-1], line[i])
	}
	return total
}

// sampleEpsilonMeters absorbs rounding so a sample that falls on a vertex is
// emitted once.
const sampleEpsilonMeters = 1e-6

// Sample returns the first vertex, a point every intervalMeters of arc length
// (interpolated within segments), and the last vertex.
func Sample(line orb.LineString, intervalMeters float64) []orb.Point {
	if len(line) == 0 {
		return nil
	}

	samples := []orb.Point{line[0]}
	if len(line) == 1 {
		return samples
	}

	if intervalMeters > 0 {
		next := intervalMeters
		var travelled float64
		for i := 1; i < len(line); i++ {
			a, b := line[i-1], line[i]
			seg := segmentMeters(a, b)
			for seg > 0 && next < travelled+seg-sampleEpsilonMeters {
				t := (next - travelled) / seg
				samples = append(samples, interpolate(a, b, t))
				next += intervalMeters
			}
			travelled += seg
		}
	}

	return append(samples, line[len(line)-1])
}

func segmentMeters(a, b orb.Point) float64 {
	return spatial.Haversine(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

func interpolate(a, b orb.Point, t float64) orb.Point {
	return orb.Point{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
	}
}
