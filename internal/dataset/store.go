package dataset

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/spatial"
	"github.com/saferoute/saferoute/internal/telemetry"
)

// Errors returned by the store.
var (
	// ErrNotLoaded indicates no dataset snapshot has been published yet.
	ErrNotLoaded = errors.New("crime dataset not loaded")

	// ErrEmptyDataset indicates a load produced no usable records.
	ErrEmptyDataset = errors.New("crime dataset has no usable records")
)

// Snapshot is an immutable, fully built dataset version.
type Snapshot struct {
	Version     int64
	Source      string
	LoadedAt    time.Time
	Index       *spatial.Index
	Records     int
	Dropped     int
	DropReasons map[string]int
	LoadTime    time.Duration
}

// StoreConfig holds configuration for the store.
type StoreConfig struct {
	// Source loads records on Reload (required for Reload).
	Source Source

	// CellSize is the spatial index cell size in degrees (default: 0.01).
	CellSize float64

	// AllowEmpty publishes snapshots with zero records instead of failing.
	AllowEmpty bool

	// Instruments records reload metrics (optional).
	Instruments *telemetry.Instruments

	// Logger for load operations.
	Logger zerolog.Logger

	// Clock returns the current time (default: time.Now).
	Clock func() time.Time
}

// Store publishes dataset snapshots. Readers take the current snapshot once
// per request and keep using it even if a reload swaps in a newer one.
type Store struct {
	source      Source
	cellSize    float64
	allowEmpty  bool
	instruments *telemetry.Instruments
	logger      zerolog.Logger
	clock       func() time.Time

	current atomic.Pointer[Snapshot]
	version atomic.Int64

	// reloadMu serializes reloads so two loads never race to publish.
	reloadMu sync.Mutex
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	cellSize := cfg.CellSize
	if cellSize <= 0 {
		cellSize = spatial.DefaultCellSize
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Store{
		source:      cfg.Source,
		cellSize:    cellSize,
		allowEmpty:  cfg.AllowEmpty,
		instruments: cfg.Instruments,
		logger:      cfg.Logger,
		clock:       clock,
	}
}

// Current returns the published snapshot or nil before the first load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Snapshot returns the published snapshot or ErrNotLoaded.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	return snap, nil
}

// Ready reports whether a snapshot has been published.
func (s *Store) Ready() bool {
	return s.current.Load() != nil
}

// SourceName returns the configured source name.
func (s *Store) SourceName() string {
	if s.source == nil {
		return ""
	}
	return s.source.Name()
}

// Reload loads the source, builds a new index and swaps it in. On failure
// the previous snapshot stays published.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	if s.source == nil {
		return nil, errors.New("dataset store has no source configured")
	}

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()

	result, err := s.source.Load(ctx)
	if err != nil {
		s.recordReload(ctx, "error")
		return nil, fmt.Errorf("loading %s: %w", s.source.Name(), err)
	}
	if len(result.Records) == 0 && !s.allowEmpty {
		s.recordReload(ctx, "empty")
		return nil, fmt.Errorf("%w: %s (%d rows dropped)", ErrEmptyDataset, s.source.Name(), result.Dropped)
	}

	snap := s.publish(s.source.Name(), result, time.Since(start))
	s.recordReload(ctx, "ok")
	if s.instruments != nil {
		s.instruments.DatasetRecords.Record(ctx, int64(snap.Records))
	}

	s.logger.Info().
		Str("source", snap.Source).
		Int64("version", snap.Version).
		Int("records", snap.Records).
		Int("dropped", snap.Dropped).
		Int("cells", snap.Index.CellCount()).
		Dur("load_time", snap.LoadTime).
		Msg("crime dataset loaded")

	return snap, nil
}

// Replace publishes a snapshot built from records that were loaded elsewhere.
func (s *Store) Replace(source string, records []crime.Record) *Snapshot {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()
	return s.publish(source, crime.ParseResult{Records: records}, 0)
}

func (s *Store) publish(source string, result crime.ParseResult, loadTime time.Duration) *Snapshot {
	idx := spatial.Build(result.Records, s.cellSize)

	snap := &Snapshot{
		Version:     s.version.Add(1),
		Source:      source,
		LoadedAt:    s.clock(),
		Index:       idx,
		Records:     idx.Len(),
		Dropped:     result.Dropped,
		DropReasons: maps.Clone(result.DropReasons),
		LoadTime:    loadTime,
	}
	s.current.Store(snap)
	return snap
}

func (s *Store) recordReload(ctx context.Context, result string) {
	if s.instruments == nil {
		return
	}
	s.instruments.DatasetReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
