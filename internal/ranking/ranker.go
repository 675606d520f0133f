package ranking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/internal/spatial"
	"github.com/saferoute/saferoute/internal/telemetry"
)

const (
	// DefaultWorkers bounds concurrent candidate scoring.
	DefaultWorkers = 4

	// parallelThreshold is the candidate count at which scoring fans out.
	parallelThreshold = 3
)

// Config holds configuration for the ranker.
type Config struct {
	// Scoring configures the safety scorer.
	Scoring safety.Config

	// Weights are the composite weights (default: 0.4/0.3/0.3).
	Weights Weights

	// Workers bounds concurrent scoring (default: 4).
	Workers int

	// Instruments records ranking metrics (optional).
	Instruments *telemetry.Instruments

	// Logger for ranking operations.
	Logger zerolog.Logger
}

// Ranker scores candidate routes against a spatial index and orders them.
// It holds no per-request state and is safe for concurrent use.
type Ranker struct {
	scorer      *safety.Scorer
	weights     Weights
	workers     int
	instruments *telemetry.Instruments
	logger      zerolog.Logger
}

// NewRanker validates the configuration and creates a ranker.
func NewRanker(cfg Config) (*Ranker, error) {
	scorer, err := safety.NewScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	weights := cfg.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Ranker{
		scorer:      scorer,
		weights:     weights,
		workers:     workers,
		instruments: cfg.Instruments,
		logger:      cfg.Logger,
	}, nil
}

// Weights returns the composite weights in use.
func (r *Ranker) Weights() Weights {
	return r.weights
}

// Scorer returns the underlying safety scorer.
func (r *Ranker) Scorer() *safety.Scorer {
	return r.scorer
}

// WithWindow returns a ranker whose scorer counts only crimes inside w.
func (r *Ranker) WithWindow(w safety.TimeWindow) *Ranker {
	scorer := r.scorer.WithWindow(w)
	if scorer == r.scorer {
		return r
	}
	clone := *r
	clone.scorer = scorer
	return &clone
}

// Rank scores every candidate and returns them in ranked order.
// Returns routing.ErrNoRouteFound when candidates is empty.
func (r *Ranker) Rank(ctx context.Context, candidates []routing.Candidate, idx *spatial.Index, now time.Time) ([]RankedRoute, error) {
	start := time.Now()

	scored, err := r.Score(ctx, candidates, idx, now)
	if err != nil {
		return nil, err
	}

	ranked := Order(scored, r.weights)

	if r.instruments != nil {
		attrs := metric.WithAttributes(attribute.Int("candidates", len(candidates)))
		r.instruments.RankingDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		r.instruments.CandidatesScored.Add(ctx, int64(len(candidates)))
	}

	r.logger.Debug().
		Int("candidates", len(candidates)).
		Str("recommended_id", ranked[0].Candidate.ID).
		Int("recommended_score", ranked[0].Metrics.SafetyScore).
		Dur("elapsed", time.Since(start)).
		Msg("ranked candidate routes")

	return ranked, nil
}

// Score computes safety metrics for each candidate, preserving input order.
// With three or more candidates scoring runs on a bounded worker pool.
func (r *Ranker) Score(ctx context.Context, candidates []routing.Candidate, idx *spatial.Index, now time.Time) ([]ScoredRoute, error) {
	if len(candidates) == 0 {
		return nil, routing.ErrNoRouteFound
	}

	scored := make([]ScoredRoute, len(candidates))

	if len(candidates) < parallelThreshold {
		for i, c := range candidates {
			m, err := r.scoreOne(c, idx, now)
			if err != nil {
				return nil, err
			}
			scored[i] = ScoredRoute{Candidate: c, Metrics: m}
		}
		return scored, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, c := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			m, err := r.scoreOne(c, idx, now)
			if err != nil {
				return err
			}
			scored[i] = ScoredRoute{Candidate: c, Metrics: m}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scored, nil
}

func (r *Ranker) scoreOne(c routing.Candidate, idx *spatial.Index, now time.Time) (safety.Metrics, error) {
	m, err := r.scorer.Score(c.Geometry, idx, now)
	if err != nil {
		return safety.Metrics{}, fmt.Errorf("scoring candidate %s: %w", c.ID, err)
	}
	return m, nil
}
