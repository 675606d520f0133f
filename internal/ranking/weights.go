// Package ranking orders scored candidate routes by safety and efficiency.
package ranking

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidWeights indicates composite weights that are negative or do not sum to 1.
var ErrInvalidWeights = errors.New("invalid composite weights")

// weightSumTolerance is the allowed deviation of the weight sum from 1.
const weightSumTolerance = 1e-6

// Weights blend safety, time efficiency and distance efficiency into the
// composite score.
type Weights struct {
	Safety   float64 `json:"safety"`
	Time     float64 `json:"time"`
	Distance float64 `json:"distance"`
}

// DefaultWeights returns 0.4 safety, 0.3 time, 0.3 distance.
func DefaultWeights() Weights {
	return Weights{Safety: 0.4, Time: 0.3, Distance: 0.3}
}

// Validate checks each weight is non-negative and that they sum to 1.
// Weights are never renormalized.
func (w Weights) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"safety", w.Safety}, {"time", w.Time}, {"distance", w.Distance}} {
		name, v := f.name, f.v
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s weight %v must be a non-negative number", ErrInvalidWeights, name, v)
		}
	}
	if sum := w.Safety + w.Time + w.Distance; math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidWeights, sum)
	}
	return nil
}
