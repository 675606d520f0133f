// Package safety scores routes by their exposure to nearby historical crime.
package safety

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig indicates a scoring configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid scoring config")

// Config holds the tunables of the exposure model.
type Config struct {
	// SampleIntervalMeters is the spacing of sample points along a route.
	SampleIntervalMeters float64

	// SearchRadiusMeters is the radius of the nearby-crime query per sample.
	SearchRadiusMeters float64

	// HalfLifeDays is the age at which a crime's contribution halves.
	HalfLifeDays float64

	// MaxAgeDays is the age at which a crime stops contributing.
	MaxAgeDays float64

	// CalibrationFactor maps normalized exposure onto the 0-100 score.
	CalibrationFactor float64

	// TimeWindow restricts scoring to crimes that occurred in a part of the day.
	// Empty means all crimes count.
	TimeWindow TimeWindow
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		SampleIntervalMeters: 50,
		SearchRadiusMeters:   100,
		HalfLifeDays:         90,
		MaxAgeDays:           365,
		CalibrationFactor:    20.0,
	}
}

// Validate checks that every value is finite and positive.
func (c Config) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"sample_interval_meters", c.SampleIntervalMeters},
		{"search_radius_meters", c.SearchRadiusMeters},
		{"half_life_days", c.HalfLifeDays},
		{"max_age_days", c.MaxAgeDays},
		{"calibration_factor", c.CalibrationFactor},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value <= 0 {
			return fmt.Errorf("%w: %s must be a positive number, got %v", ErrInvalidConfig, f.name, f.value)
		}
	}
	if !c.TimeWindow.Valid() {
		return fmt.Errorf("%w: unknown time window %q", ErrInvalidConfig, c.TimeWindow)
	}
	return nil
}
