package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/dataset"
)

// ErrReloadInProgress is returned when a reload is requested while another
// one is still running.
var ErrReloadInProgress = errors.New("dataset reload already in progress")

// Reloadable rebuilds and publishes a dataset snapshot. *dataset.Store
// satisfies it.
type Reloadable interface {
	Reload(ctx context.Context) (*dataset.Snapshot, error)
}

// ReloadJob reloads the crime dataset and keeps run statistics.
type ReloadJob struct {
	config ReloadConfig
	store  Reloadable
	logger zerolog.Logger
	clock  func() time.Time

	// running guards against overlapping reloads from the ticker, Pub/Sub
	// and the admin endpoint.
	running chan struct{}

	mu    sync.RWMutex
	stats ReloadStats
}

// ReloadStats tracks reload job statistics.
type ReloadStats struct {
	TotalRuns           int64
	Successful          int64
	Failed              int64
	Skipped             int64
	ConsecutiveFailures int

	LastRunAt     time.Time
	LastSuccessAt time.Time
	LastDuration  time.Duration
	LastVersion   int64
	LastRecords   int
	LastError     string
}

// ReloadJobConfig holds configuration for creating a ReloadJob.
type ReloadJobConfig struct {
	Config ReloadConfig
	Store  Reloadable
	Logger zerolog.Logger

	// Clock returns the current time (default: time.Now).
	Clock func() time.Time
}

// NewReloadJob creates a new reload job.
func NewReloadJob(cfg ReloadJobConfig) *ReloadJob {
	config := cfg.Config
	if config.Timeout <= 0 {
		config.Timeout = DefaultReloadConfig().Timeout
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &ReloadJob{
		config:  config,
		store:   cfg.Store,
		logger:  cfg.Logger,
		clock:   clock,
		running: make(chan struct{}, 1),
	}
}

// Run reloads the dataset once. Concurrent calls fail fast with
// ErrReloadInProgress rather than queueing a second load. On failure the
// previously published snapshot keeps serving.
func (j *ReloadJob) Run(ctx context.Context) (*dataset.Snapshot, error) {
	select {
	case j.running <- struct{}{}:
	default:
		j.mu.Lock()
		j.stats.Skipped++
		j.mu.Unlock()
		return nil, ErrReloadInProgress
	}
	defer func() { <-j.running }()

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	start := j.clock()
	j.logger.Info().Msg("starting dataset reload")

	snap, err := j.store.Reload(ctx)
	duration := j.clock().Sub(start)

	j.record(start, duration, snap, err)

	if err != nil {
		j.logger.Error().Err(err).
			Dur("duration", duration).
			Int("consecutive_failures", j.Stats().ConsecutiveFailures).
			Msg("dataset reload failed")
		return nil, err
	}

	j.logger.Info().
		Dur("duration", duration).
		Int64("version", snap.Version).
		Int("records", snap.Records).
		Int("dropped", snap.Dropped).
		Msg("dataset reload completed")

	return snap, nil
}

// Start runs scheduled reloads until ctx is cancelled. It returns
// immediately when no interval is configured.
func (j *ReloadJob) Start(ctx context.Context) {
	if !j.config.Scheduled() {
		j.logger.Debug().Msg("scheduled dataset reload disabled")
		return
	}

	j.logger.Info().
		Dur("interval", j.config.Interval).
		Msg("scheduled dataset reload started")

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("scheduled dataset reload stopped")
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); errors.Is(err, ErrReloadInProgress) {
				j.logger.Warn().Msg("skipping scheduled reload, previous reload still running")
			}
		}
	}
}

func (j *ReloadJob) record(start time.Time, duration time.Duration, snap *dataset.Snapshot, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.stats.TotalRuns++
	j.stats.LastRunAt = start
	j.stats.LastDuration = duration

	if err != nil {
		j.stats.Failed++
		j.stats.ConsecutiveFailures++
		j.stats.LastError = err.Error()
		return
	}

	j.stats.Successful++
	j.stats.ConsecutiveFailures = 0
	j.stats.LastSuccessAt = start.Add(duration)
	j.stats.LastVersion = snap.Version
	j.stats.LastRecords = snap.Records
	j.stats.LastError = ""
}

// Stats returns a copy of the current statistics.
func (j *ReloadJob) Stats() ReloadStats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}

// StatsSnapshot returns the current statistics as a map for logging.
func (j *ReloadJob) StatsSnapshot() map[string]interface{} {
	s := j.Stats()
	return map[string]interface{}{
		"total_runs":           s.TotalRuns,
		"successful":           s.Successful,
		"failed":               s.Failed,
		"skipped":              s.Skipped,
		"consecutive_failures": s.ConsecutiveFailures,
		"last_run_at":          s.LastRunAt,
		"last_success_at":      s.LastSuccessAt,
		"last_duration":        s.LastDuration.String(),
		"last_version":         s.LastVersion,
		"last_records":         s.LastRecords,
		"last_error":           s.LastError,
	}
}
