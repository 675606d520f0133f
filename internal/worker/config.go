// Package worker runs background crime dataset reloads, on a schedule or
// when triggered through Pub/Sub.
package worker

import (
	"time"
)

// ReloadConfig holds configuration for the dataset reload job.
type ReloadConfig struct {
	// Interval between scheduled reloads. Zero disables the schedule; reloads
	// then only happen on demand.
	Interval time.Duration

	// Timeout bounds a single reload.
	// Default: 2 minutes
	Timeout time.Duration
}

// DefaultReloadConfig returns the default reload configuration.
func DefaultReloadConfig() ReloadConfig {
	return ReloadConfig{
		Interval: 0,
		Timeout:  2 * time.Minute,
	}
}

// Scheduled reports whether periodic reloads are enabled.
func (c ReloadConfig) Scheduled() bool {
	return c.Interval > 0
}
