package routing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/saferoute/saferoute/internal/telemetry"
)

// Cache lookup results recorded on the directions lookup counter.
const (
	lookupHit   = "hit"
	lookupMiss  = "miss"
	lookupStale = "stale"
)

// ServiceConfig holds configuration for the caching directions service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// CacheTTL is how long a response is served without asking the provider.
	CacheTTL time.Duration

	// CacheGridSize quantizes origin and destination, in degrees. Waypoints
	// are keyed at polyline precision.
	CacheGridSize float64

	// StaleIfErrorTTL is how long an expired response may still be served
	// when the provider fails.
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often entries past StaleIfErrorTTL are evicted.
	CleanupInterval time.Duration

	// Instruments records cache results (optional).
	Instruments *telemetry.Instruments

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Service caches provider directions and collapses concurrent identical
// lookups into one provider call.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration
	instruments     *telemetry.Instruments
	clock           func() time.Time

	flights singleflight.Group

	mu          sync.RWMutex
	cache       map[string]cachedDirections
	lastCleanup time.Time
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
}

// NewService creates a caching directions service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		cacheTTL:        cfg.CacheTTL,
		cacheGridSize:   cfg.CacheGridSize,
		staleIfErrorTTL: cfg.StaleIfErrorTTL,
		cleanupInterval: cfg.CleanupInterval,
		instruments:     cfg.Instruments,
		clock:           cfg.Clock,
		cache:           make(map[string]cachedDirections),
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 5 * time.Minute
	}
	if s.cacheGridSize <= 0 {
		s.cacheGridSize = 0.001
	}
	if s.staleIfErrorTTL < s.cacheTTL {
		s.staleIfErrorTTL = 3 * s.cacheTTL
	}
	if s.cleanupInterval <= 0 {
		s.cleanupInterval = 5 * time.Minute
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	s.lastCleanup = s.clock()
	return s
}

// GetDirections returns routes for req, from cache while fresh. A provider
// failure is masked by an expired entry still inside the stale window.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if err := req.Validate(s.provider.Name()); err != nil {
		return nil, err
	}

	key := s.cacheKey(req)
	if entry, ok := s.lookup(key); ok && s.clock().Sub(entry.fetchedAt) < s.cacheTTL {
		s.record(ctx, lookupHit)
		return entry.response, nil
	}

	v, err, shared := s.flights.Do(key, func() (interface{}, error) {
		return s.fetch(ctx, req, key)
	})
	if shared {
		s.logger.Debug().Str("cache_key", key).Msg("joined in-flight directions lookup")
	}
	if err != nil {
		return nil, err
	}
	return v.(*DirectionsResponse), nil
}

func (s *Service) fetch(ctx context.Context, req DirectionsRequest, key string) (*DirectionsResponse, error) {
	s.logger.Debug().
		Str("cache_key", key).
		Str("profile", string(req.Profile)).
		Int("waypoints", len(req.Waypoints)).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	resp, err := s.provider.GetDirections(ctx, req)
	if err != nil {
		if entry, ok := s.lookup(key); ok && s.clock().Sub(entry.fetchedAt) < s.staleIfErrorTTL {
			s.logger.Warn().
				Err(err).
				Time("fetched_at", entry.fetchedAt).
				Str("cache_key", key).
				Msg("serving stale directions after provider error")
			s.record(ctx, lookupStale)
			return entry.response, nil
		}
		s.logger.Error().
			Err(err).
			Str("cache_key", key).
			Msg("failed to fetch directions")
		return nil, err
	}

	s.record(ctx, lookupMiss)

	now := s.clock()
	s.mu.Lock()
	s.cache[key] = cachedDirections{response: resp, fetchedAt: now}
	s.evictLocked(now)
	s.mu.Unlock()

	return resp, nil
}

func (s *Service) lookup(key string) (cachedDirections, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	return entry, ok
}

// evictLocked drops entries past the stale window once per cleanup interval.
func (s *Service) evictLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	evicted := 0
	for key, entry := range s.cache {
		if now.Sub(entry.fetchedAt) >= s.staleIfErrorTTL {
			delete(s.cache, key)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Debug().Int("evicted", evicted).Msg("evicted expired directions")
	}
}

// cacheKey is {profile}:{alts}:{origin cell}:{destination cell}[:via{lat},{lon}...].
func (s *Service) cacheKey(req DirectionsRequest) string {
	cell := func(v float64) float64 {
		return math.Floor(v/s.cacheGridSize) * s.cacheGridSize
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%.4f,%.4f:%.4f,%.4f",
		req.Profile,
		req.MaxAlternatives,
		cell(req.Origin.Lat), cell(req.Origin.Lon),
		cell(req.Destination.Lat), cell(req.Destination.Lon),
	)
	for _, wp := range req.Waypoints {
		fmt.Fprintf(&b, ":via%.5f,%.5f", wp.Lat, wp.Lon)
	}
	return b.String()
}

func (s *Service) record(ctx context.Context, result string) {
	if s.instruments == nil {
		return
	}
	s.instruments.DirectionsLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("provider", s.provider.Name()),
	))
}

// CacheStats counts cached responses by freshness.
type CacheStats struct {
	Fresh int
	Stale int
}

// Stats returns the current cache occupancy.
func (s *Service) Stats() CacheStats {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats CacheStats
	for _, entry := range s.cache {
		switch age := now.Sub(entry.fetchedAt); {
		case age < s.cacheTTL:
			stats.Fresh++
		case age < s.staleIfErrorTTL:
			stats.Stale++
		}
	}
	return stats
}
