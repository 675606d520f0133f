// Package planner turns an origin and destination into ranked, deduplicated
// candidate routes scored against the current crime dataset.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/saferoute/saferoute/internal/dataset"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
)

const (
	// DefaultDetourOffsetMeters is how far a detour waypoint sits from the route.
	DefaultDetourOffsetMeters = 220.0

	tracerName = "github.com/saferoute/saferoute/internal/planner"
)

var (
	// ErrNoCandidates indicates a ranking request without candidate routes.
	ErrNoCandidates = errors.New("no candidate routes supplied")

	// ErrInvalidTimeWindow indicates an unknown time-of-day window.
	ErrInvalidTimeWindow = errors.New("invalid time window")

	// ErrGeocodingDisabled indicates an address request to a planner without
	// a geocoder.
	ErrGeocodingDisabled = errors.New("address lookup is not configured")
)

// Directions fetches routed geometries. *routing.Service satisfies it.
type Directions interface {
	GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error)
}

// Config holds configuration for the planner.
type Config struct {
	// Directions supplies routed geometries (required for Plan).
	Directions Directions

	// Geocoder resolves origin and destination addresses (optional).
	Geocoder routing.Geocoder

	// Store provides the crime dataset snapshot (required).
	Store *dataset.Store

	// Ranker scores and orders candidates (required).
	Ranker *ranking.Ranker

	// Dedup configures near-duplicate filtering and variant synthesis.
	Dedup routing.DedupConfig

	// Profile is the default routing profile (default: foot-walking).
	Profile routing.RouteProfile

	// MaxAlternatives requested from the provider (default: 2).
	MaxAlternatives int

	// DetourScoreThreshold triggers a detour attempt when the recommended
	// route scores below it. Zero disables detours.
	DetourScoreThreshold int

	// DetourOffsetMeters is the detour waypoint offset (default: 220).
	DetourOffsetMeters float64

	// Tracer for planning spans (default: global tracer).
	Tracer trace.Tracer

	// Logger for planning decisions.
	Logger zerolog.Logger

	// Clock supplies the scoring time when a request has none (default: time.Now).
	Clock func() time.Time

	// Location is the dataset time zone that "auto" time windows are read
	// in (default: UTC).
	Location *time.Location
}

// Request asks for ranked routes between two points. A non-empty address
// replaces the corresponding coordinate and is geocoded first.
type Request struct {
	Origin             routing.Coordinate
	Destination        routing.Coordinate
	OriginAddress      string
	DestinationAddress string
	// At is the departure time crimes are aged against. Zero means now.
	At      time.Time
	Profile routing.RouteProfile
	// TimeWindow overrides the configured scoring window for this trip.
	TimeWindow safety.TimeWindow
}

// RankRequest asks for caller-supplied routes to be ranked.
type RankRequest struct {
	Candidates []routing.Candidate
	// At is the instant crimes are aged against. Zero means now.
	At         time.Time
	TimeWindow safety.TimeWindow
}

// Result is a ranked route set and how it was produced. Origin and
// Destination are only set by Plan.
type Result struct {
	Routes          []ranking.RankedRoute
	Origin          routing.Place
	Destination     routing.Place
	At              time.Time
	TimeWindow      safety.TimeWindow
	DatasetVersion  int64
	Considered      int
	DetourAttempted bool
	DetourAdded     bool
}

// Planner coordinates directions, deduplication, scoring and ranking.
type Planner struct {
	directions      Directions
	geocoder        routing.Geocoder
	store           *dataset.Store
	ranker          *ranking.Ranker
	dedup           *routing.Deduplicator
	profile         routing.RouteProfile
	maxAlternatives int
	detourThreshold int
	detourOffset    float64
	tracer          trace.Tracer
	logger          zerolog.Logger
	clock           func() time.Time
	location        *time.Location
}

// New creates a planner.
func New(cfg Config) *Planner {
	profile := cfg.Profile
	if profile == "" {
		profile = routing.ProfileWalk
	}

	maxAlts := cfg.MaxAlternatives
	if maxAlts <= 0 {
		maxAlts = 2
	}

	offset := cfg.DetourOffsetMeters
	if offset <= 0 {
		offset = DefaultDetourOffsetMeters
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	dedupCfg := cfg.Dedup
	dedupCfg.Logger = cfg.Logger

	return &Planner{
		directions:      cfg.Directions,
		geocoder:        cfg.Geocoder,
		store:           cfg.Store,
		ranker:          cfg.Ranker,
		dedup:           routing.NewDeduplicator(dedupCfg),
		profile:         profile,
		maxAlternatives: maxAlts,
		detourThreshold: cfg.DetourScoreThreshold,
		detourOffset:    offset,
		tracer:          tracer,
		logger:          cfg.Logger,
		clock:           clock,
		location:        location,
	}
}

// Plan fetches candidate routes for the trip, removes near-duplicates, adds
// waypoint variants when too few distinct routes exist, ranks them and, if
// the best route is still risky, tries a detour around its worst point.
func (p *Planner) Plan(ctx context.Context, req Request) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "planner.Plan")
	defer span.End()

	snap, err := p.store.Snapshot()
	if err != nil {
		return nil, err
	}

	at := p.at(req.At)
	profile := req.Profile
	if profile == "" {
		profile = p.profile
	}
	if !profile.Valid() {
		return nil, fmt.Errorf("%w: %q", routing.ErrUnsupportedProfile, profile)
	}
	ranker, window, err := p.rankerFor(req.TimeWindow, at)
	if err != nil {
		return nil, err
	}

	originPlace, destinationPlace, err := p.resolveEndpoints(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "geocoding failed")
		return nil, err
	}
	req.Origin, req.Destination = originPlace.Coordinate, destinationPlace.Coordinate

	resp, err := p.directions.GetDirections(ctx, routing.DirectionsRequest{
		Origin:          req.Origin,
		Destination:     req.Destination,
		Profile:         profile,
		MaxAlternatives: p.maxAlternatives,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directions failed")
		return nil, err
	}

	candidates := p.candidatesFromResponse(resp)
	considered := len(candidates)

	distinct, err := p.dedup.Filter(candidates)
	if err != nil {
		return nil, err
	}

	if p.dedup.NeedsVariants(len(distinct)) {
		variants := p.fetchVariants(ctx, req, profile)
		considered += len(variants)
		distinct, err = p.dedup.Filter(append(distinct, variants...))
		if err != nil {
			return nil, err
		}
	}

	span.SetAttributes(
		attribute.Int("candidates.considered", considered),
		attribute.Int("candidates.distinct", len(distinct)),
		attribute.Int64("dataset.version", snap.Version),
		attribute.String("time_window", string(window)),
	)

	ranked, err := p.rank(ctx, ranker, distinct, snap, at)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Routes:         ranked,
		Origin:         originPlace,
		Destination:    destinationPlace,
		At:             at,
		TimeWindow:     window,
		DatasetVersion: snap.Version,
		Considered:     considered,
	}

	if p.needsDetour(ranked[0]) {
		result.DetourAttempted = true
		if detour, ok := p.fetchDetour(ctx, req, profile, ranker, ranked[0], snap, at); ok {
			withDetour, err := p.dedup.Filter(append(distinct, detour))
			if err == nil && len(withDetour) > len(distinct) {
				reranked, err := p.rank(ctx, ranker, withDetour, snap, at)
				if err != nil {
					return nil, err
				}
				result.Routes = reranked
				result.DetourAdded = true
				result.Considered++
			}
		}
	}

	p.logger.Info().
		Int("considered", result.Considered).
		Int("ranked", len(result.Routes)).
		Str("recommended_id", result.Routes[0].Candidate.ID).
		Int("recommended_score", result.Routes[0].Metrics.SafetyScore).
		Bool("detour_added", result.DetourAdded).
		Msg("route plan computed")

	return result, nil
}

// RankCandidates deduplicates and ranks caller-supplied routes without
// contacting the directions provider.
func (p *Planner) RankCandidates(ctx context.Context, req RankRequest) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "planner.RankCandidates")
	defer span.End()

	candidates := req.Candidates
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	snap, err := p.store.Snapshot()
	if err != nil {
		return nil, err
	}

	distinct, err := p.dedup.Filter(candidates)
	if err != nil {
		return nil, err
	}

	at := p.at(req.At)
	ranker, window, err := p.rankerFor(req.TimeWindow, at)
	if err != nil {
		return nil, err
	}
	ranked, err := p.rank(ctx, ranker, distinct, snap, at)
	if err != nil {
		return nil, err
	}

	return &Result{
		Routes:         ranked,
		At:             at,
		TimeWindow:     window,
		DatasetVersion: snap.Version,
		Considered:     len(candidates),
	}, nil
}

func (p *Planner) at(t time.Time) time.Time {
	if t.IsZero() {
		return p.clock()
	}
	return t
}

// resolveEndpoints geocodes any addressed endpoint, both concurrently.
func (p *Planner) resolveEndpoints(ctx context.Context, req Request) (routing.Place, routing.Place, error) {
	origin := routing.Place{Coordinate: req.Origin}
	destination := routing.Place{Coordinate: req.Destination}
	if req.OriginAddress == "" && req.DestinationAddress == "" {
		return origin, destination, nil
	}
	if p.geocoder == nil {
		return origin, destination, ErrGeocodingDisabled
	}

	ctx, span := p.tracer.Start(ctx, "planner.geocode")
	defer span.End()

	g, gctx := errgroup.WithContext(ctx)
	lookup := func(address, role string, dst *routing.Place) {
		if address == "" {
			return
		}
		g.Go(func() error {
			place, err := p.geocoder.Geocode(gctx, address)
			if err != nil {
				return fmt.Errorf("geocoding %s: %w", role, err)
			}
			*dst = place
			return nil
		})
	}
	lookup(req.OriginAddress, "origin", &origin)
	lookup(req.DestinationAddress, "destination", &destination)
	if err := g.Wait(); err != nil {
		return routing.Place{}, routing.Place{}, err
	}

	p.logger.Debug().
		Str("origin", origin.Label).
		Str("destination", destination.Label).
		Msg("resolved trip addresses")

	return origin, destination, nil
}

// rankerFor resolves the trip's time window, falling back to the configured
// one, and returns a ranker scoring with it.
func (p *Planner) rankerFor(requested safety.TimeWindow, at time.Time) (*ranking.Ranker, safety.TimeWindow, error) {
	window := requested
	if window == safety.WindowAll {
		window = p.ranker.Scorer().Config().TimeWindow
	}
	if !window.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidTimeWindow, requested)
	}
	window = window.Resolve(at, p.location)
	return p.ranker.WithWindow(window), window, nil
}

func (p *Planner) rank(ctx context.Context, ranker *ranking.Ranker, candidates []routing.Candidate, snap *dataset.Snapshot, at time.Time) ([]ranking.RankedRoute, error) {
	ctx, span := p.tracer.Start(ctx, "planner.rank", trace.WithAttributes(
		attribute.Int("candidates", len(candidates)),
	))
	defer span.End()

	ranked, err := ranker.Rank(ctx, candidates, snap.Index, at)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ranking failed")
		return nil, err
	}
	return ranked, nil
}

func (p *Planner) candidatesFromResponse(resp *routing.DirectionsResponse) []routing.Candidate {
	candidates := make([]routing.Candidate, 0, len(resp.Routes))
	for i, route := range resp.Routes {
		id, origin := "direct", routing.OriginDirect
		if i > 0 {
			id, origin = fmt.Sprintf("alt-%d", i), routing.OriginAlternative
		}

		c, err := routing.CandidateFromRoute(id, route, origin)
		if err != nil {
			p.logger.Warn().Err(err).Str("candidate_id", id).Msg("skipping unusable provider route")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// fetchVariants requests one route through each synthesized waypoint.
// Provider failures drop that variant only.
func (p *Planner) fetchVariants(ctx context.Context, req Request, profile routing.RouteProfile) []routing.Candidate {
	ctx, span := p.tracer.Start(ctx, "planner.variants")
	defer span.End()

	waypoints := p.dedup.VariantWaypoints(req.Origin, req.Destination)
	found := make([]*routing.Candidate, len(waypoints))

	var g errgroup.Group
	for i, wp := range waypoints {
		g.Go(func() error {
			id := fmt.Sprintf("via-%d", i+1)
			c, err := p.routeVia(ctx, req, profile, wp, id, routing.OriginWaypointVariant)
			if err != nil {
				p.logger.Warn().Err(err).Str("candidate_id", id).Msg("waypoint variant unavailable")
				return nil
			}
			found[i] = &c
			return nil
		})
	}
	_ = g.Wait()

	variants := make([]routing.Candidate, 0, len(found))
	for _, c := range found {
		if c != nil {
			variants = append(variants, *c)
		}
	}
	span.SetAttributes(attribute.Int("variants", len(variants)))
	return variants
}

func (p *Planner) routeVia(ctx context.Context, req Request, profile routing.RouteProfile, via routing.Coordinate, id string, origin routing.CandidateOrigin) (routing.Candidate, error) {
	resp, err := p.directions.GetDirections(ctx, routing.DirectionsRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		Waypoints:   []routing.Coordinate{via},
		Profile:     profile,
	})
	if err != nil {
		return routing.Candidate{}, err
	}
	if len(resp.Routes) == 0 {
		return routing.Candidate{}, routing.ErrNoRouteFound
	}
	return routing.CandidateFromRoute(id, resp.Routes[0], origin)
}

func (p *Planner) needsDetour(best ranking.RankedRoute) bool {
	return p.detourThreshold > 0 &&
		best.Metrics.SafetyScore < p.detourThreshold &&
		best.Metrics.WorstSample.Index >= 0
}

// fetchDetour routes around the recommended route's worst sample through
// whichever side waypoint has the lower exposure.
func (p *Planner) fetchDetour(ctx context.Context, req Request, profile routing.RouteProfile, ranker *ranking.Ranker, best ranking.RankedRoute, snap *dataset.Snapshot, at time.Time) (routing.Candidate, bool) {
	ctx, span := p.tracer.Start(ctx, "planner.detour")
	defer span.End()

	worst := best.Metrics.WorstSample.Point
	waypoints := routing.DetourWaypoints(best.Candidate.Geometry, worst, p.detourOffset)
	if len(waypoints) == 0 {
		return routing.Candidate{}, false
	}

	via := saferSide(ranker.Scorer().Config(), waypoints, snap, at)

	c, err := p.routeVia(ctx, req, profile, via, "detour", routing.OriginDetour)
	if err != nil {
		span.RecordError(err)
		p.logger.Warn().Err(err).
			Str("around_id", best.Candidate.ID).
			Msg("detour route unavailable")
		return routing.Candidate{}, false
	}

	p.logger.Debug().
		Str("around_id", best.Candidate.ID).
		Float64("worst_lat", worst.Lat()).
		Float64("worst_lon", worst.Lon()).
		Float64("via_lat", via.Lat).
		Float64("via_lon", via.Lon).
		Msg("detour candidate fetched")

	return c, true
}

func saferSide(cfg safety.Config, waypoints []routing.Coordinate, snap *dataset.Snapshot, at time.Time) routing.Coordinate {
	best := waypoints[0]
	bestExposure := safety.ExposureAt(best.Lon, best.Lat, snap.Index, cfg, at).Exposure
	for _, wp := range waypoints[1:] {
		if e := safety.ExposureAt(wp.Lon, wp.Lat, snap.Index, cfg, at).Exposure; e < bestExposure {
			best, bestExposure = wp, e
		}
	}
	return best
}
