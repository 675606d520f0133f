package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/crime"
	"github.com/saferoute/saferoute/internal/dataset"
	"github.com/saferoute/saferoute/internal/ranking"
	"github.com/saferoute/saferoute/internal/routing"
	"github.com/saferoute/saferoute/internal/safety"
	"github.com/saferoute/saferoute/pkg/polyline"
)

var (
	at          = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	origin      = routing.Coordinate{Lat: 49.2800, Lon: -123.1220}
	destination = routing.Coordinate{Lat: 49.2800, Lon: -123.1140}
)

// densify returns a line through pts with each leg split into steps pieces.
func densify(steps int, pts ...orb.Point) orb.LineString {
	line := orb.LineString{pts[0]}
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		for s := 1; s <= steps; s++ {
			f := float64(s) / float64(steps)
			line = append(line, orb.Point{a[0] + (b[0]-a[0])*f, a[1] + (b[1]-a[1])*f})
		}
	}
	return line
}

var (
	o = orb.Point{origin.Lon, origin.Lat}
	d = orb.Point{destination.Lon, destination.Lat}

	directLine = densify(30, o, d)
	northLine  = densify(10, o, orb.Point{-123.1220, 49.2830}, orb.Point{-123.1140, 49.2830}, d)
	southLine  = densify(10, o, orb.Point{-123.1220, 49.2770}, orb.Point{-123.1140, 49.2770}, d)
)

func route(line orb.LineString, distance, duration int) routing.Route {
	return routing.Route{
		GeometryPolyline: polyline.Encode(line),
		DistanceMeters:   distance,
		DurationSeconds:  duration,
	}
}

type fakeDirections struct {
	mu       sync.Mutex
	direct   []routing.Route
	err      error
	via      func(wp routing.Coordinate) (routing.Route, error)
	requests []routing.DirectionsRequest
}

func (f *fakeDirections) GetDirections(_ context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if len(req.Waypoints) == 0 {
		return &routing.DirectionsResponse{Routes: f.direct, Provider: "fake"}, nil
	}
	if f.via == nil {
		return nil, routing.ErrNoRouteFound
	}
	r, err := f.via(req.Waypoints[0])
	if err != nil {
		return nil, err
	}
	return &routing.DirectionsResponse{Routes: []routing.Route{r}, Provider: "fake"}, nil
}

func (f *fakeDirections) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func northOrSouth(wp routing.Coordinate) (routing.Route, error) {
	if wp.Lat > origin.Lat {
		return route(northLine, 1210, 870), nil
	}
	return route(southLine, 1220, 880), nil
}

// loadedStore holds crimes spread along the direct line.
func loadedStore() *dataset.Store {
	var records []crime.Record
	for lon := -123.1200; lon <= -123.1160; lon += 0.0005 {
		records = append(records, crime.NewRecord("Offence Against a Person", at.Add(-48*time.Hour), 49.2800, lon, "", ""))
	}
	store := dataset.NewStore(dataset.StoreConfig{})
	store.Replace("test", records)
	return store
}

func newPlanner(t *testing.T, dirs Directions, store *dataset.Store, mutate func(*Config)) *Planner {
	t.Helper()
	ranker, err := ranking.NewRanker(ranking.Config{Scoring: safety.DefaultConfig(), Logger: zerolog.Nop()})
	require.NoError(t, err)

	cfg := Config{
		Directions: dirs,
		Store:      store,
		Ranker:     ranker,
		Logger:     zerolog.Nop(),
		Clock:      func() time.Time { return at },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg)
}

func ids(routes []ranking.RankedRoute) []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.Candidate.ID
	}
	return out
}

func TestPlan_DistinctProviderRoutes(t *testing.T) {
	dirs := &fakeDirections{direct: []routing.Route{
		route(directLine, 550, 400),
		route(northLine, 1210, 870),
		route(southLine, 1220, 880),
	}}

	result, err := newPlanner(t, dirs, loadedStore(), nil).Plan(context.Background(), Request{
		Origin: origin, Destination: destination, At: at,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, dirs.requestCount(), "no variants needed with three distinct routes")
	assert.Equal(t, []string{"alt-1", "alt-2", "direct"}, ids(result.Routes))
	assert.Equal(t, 100, result.Routes[0].Metrics.SafetyScore)
	assert.Less(t, result.Routes[2].Metrics.SafetyScore, 100)
	assert.True(t, result.Routes[0].IsRecommended)
	assert.Equal(t, 3, result.Considered)
	assert.Equal(t, at, result.At)
	assert.Equal(t, int64(1), result.DatasetVersion)
	assert.Equal(t, routing.ProfileWalk, dirs.requests[0].Profile)
}

func TestPlan_SynthesizesWaypointVariants(t *testing.T) {
	dirs := &fakeDirections{
		direct: []routing.Route{route(directLine, 550, 400), route(directLine, 552, 401)},
		via:    northOrSouth,
	}

	result, err := newPlanner(t, dirs, loadedStore(), nil).Plan(context.Background(), Request{
		Origin: origin, Destination: destination,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, dirs.requestCount())
	assert.ElementsMatch(t, []string{"direct", "via-1", "via-2"}, ids(result.Routes))
	assert.Equal(t, 4, result.Considered)

	for _, r := range result.Routes {
		if r.Candidate.ID != "direct" {
			assert.Equal(t, routing.OriginWaypointVariant, r.Candidate.Origin)
		}
	}
	for _, req := range dirs.requests[1:] {
		require.Len(t, req.Waypoints, 1)
		assert.Zero(t, req.MaxAlternatives)
	}
}

func TestPlan_VariantFailuresAreTolerated(t *testing.T) {
	dirs := &fakeDirections{
		direct: []routing.Route{route(directLine, 550, 400)},
		via: func(routing.Coordinate) (routing.Route, error) {
			return routing.Route{}, routing.ErrProviderUnavailable
		},
	}

	result, err := newPlanner(t, dirs, loadedStore(), nil).Plan(context.Background(), Request{
		Origin: origin, Destination: destination,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"direct"}, ids(result.Routes))
}

func TestPlan_DetourAroundRiskyRoute(t *testing.T) {
	dirs := &fakeDirections{
		direct: []routing.Route{route(directLine, 550, 400)},
		via:    northOrSouth,
	}

	p := newPlanner(t, dirs, loadedStore(), func(c *Config) {
		c.Dedup = routing.DedupConfig{TargetCount: 1}
		c.DetourScoreThreshold = 100
	})

	result, err := p.Plan(context.Background(), Request{Origin: origin, Destination: destination})
	require.NoError(t, err)

	assert.True(t, result.DetourAttempted)
	assert.True(t, result.DetourAdded)
	require.Len(t, result.Routes, 2)
	assert.Equal(t, "detour", result.Routes[0].Candidate.ID)
	assert.Equal(t, routing.OriginDetour, result.Routes[0].Candidate.Origin)
	assert.Equal(t, 2, dirs.requestCount())
}

func TestPlan_NoDetourForSafeRoute(t *testing.T) {
	dirs := &fakeDirections{direct: []routing.Route{route(northLine, 1210, 870)}}

	p := newPlanner(t, dirs, loadedStore(), func(c *Config) {
		c.Dedup = routing.DedupConfig{TargetCount: 1}
		c.DetourScoreThreshold = 55
	})

	result, err := p.Plan(context.Background(), Request{Origin: origin, Destination: destination})
	require.NoError(t, err)
	assert.False(t, result.DetourAttempted)
	assert.Equal(t, 1, dirs.requestCount())
}

func TestPlan_Errors(t *testing.T) {
	t.Run("dataset not loaded", func(t *testing.T) {
		dirs := &fakeDirections{direct: []routing.Route{route(directLine, 550, 400)}}
		_, err := newPlanner(t, dirs, dataset.NewStore(dataset.StoreConfig{}), nil).Plan(context.Background(), Request{
			Origin: origin, Destination: destination,
		})
		assert.ErrorIs(t, err, dataset.ErrNotLoaded)
		assert.Zero(t, dirs.requestCount())
	})

	t.Run("provider failure", func(t *testing.T) {
		dirs := &fakeDirections{err: &routing.Error{Provider: "fake", Code: "SERVER_503", Err: routing.ErrProviderUnavailable}}
		_, err := newPlanner(t, dirs, loadedStore(), nil).Plan(context.Background(), Request{
			Origin: origin, Destination: destination,
		})
		assert.ErrorIs(t, err, routing.ErrProviderUnavailable)
	})

	t.Run("unsupported profile", func(t *testing.T) {
		dirs := &fakeDirections{direct: []routing.Route{route(directLine, 550, 400)}}
		_, err := newPlanner(t, dirs, loadedStore(), nil).Plan(context.Background(), Request{
			Origin: origin, Destination: destination, Profile: "driving-car",
		})
		assert.ErrorIs(t, err, routing.ErrUnsupportedProfile)
		assert.Zero(t, dirs.requestCount())
	})

	t.Run("no usable routes", func(t *testing.T) {
		dirs := &fakeDirections{direct: []routing.Route{{GeometryPolyline: "_p~iF~ps|U"}}}
		_, err := newPlanner(t, dirs, loadedStore(), nil).Plan(context.Background(), Request{
			Origin: origin, Destination: destination,
		})
		assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	})
}

func TestRankCandidates(t *testing.T) {
	p := newPlanner(t, nil, loadedStore(), nil)

	candidates := []routing.Candidate{
		{ID: "a", Geometry: directLine, DistanceMeters: 550, DurationSeconds: 400, Origin: routing.OriginSupplied},
		{ID: "a-copy", Geometry: directLine, DistanceMeters: 550, DurationSeconds: 400, Origin: routing.OriginSupplied},
		{ID: "b", Geometry: southLine, DistanceMeters: 1220, DurationSeconds: 880, Origin: routing.OriginSupplied},
	}

	result, err := p.RankCandidates(context.Background(), RankRequest{Candidates: candidates})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(result.Routes))
	assert.Equal(t, 3, result.Considered)
	assert.Equal(t, at, result.At)
}

func TestRankCandidates_Errors(t *testing.T) {
	p := newPlanner(t, nil, loadedStore(), nil)

	_, err := p.RankCandidates(context.Background(), RankRequest{At: at})
	assert.ErrorIs(t, err, ErrNoCandidates)

	_, err = p.RankCandidates(context.Background(), RankRequest{
		Candidates: []routing.Candidate{{ID: "x", Geometry: orb.LineString{{0, 0}}}},
		At:         at,
	})
	assert.ErrorIs(t, err, routing.ErrInvalidCandidate)

	empty := newPlanner(t, nil, dataset.NewStore(dataset.StoreConfig{}), nil)
	_, err = empty.RankCandidates(context.Background(), RankRequest{
		Candidates: []routing.Candidate{{ID: "a", Geometry: directLine, DistanceMeters: 1, DurationSeconds: 1}},
		At:         at,
	})
	assert.True(t, errors.Is(err, dataset.ErrNotLoaded))
}

func totalCrimes(routes []ranking.RankedRoute) int {
	n := 0
	for _, r := range routes {
		n += r.Metrics.TotalCrimes
	}
	return n
}

func TestRankCandidates_TimeWindow(t *testing.T) {
	candidates := []routing.Candidate{
		{ID: "a", Geometry: directLine, DistanceMeters: 550, DurationSeconds: 400},
	}

	// The fixture crimes happened at noon UTC.
	tests := []struct {
		name       string
		configured safety.TimeWindow
		location   *time.Location
		requested  safety.TimeWindow
		want       safety.TimeWindow
		counted    bool
	}{
		{name: "default counts everything", want: safety.WindowAll, counted: true},
		{name: "configured window applies", configured: safety.WindowNight, want: safety.WindowNight},
		{name: "request overrides configured", configured: safety.WindowNight, requested: safety.WindowDay, want: safety.WindowDay, counted: true},
		{name: "request widens to all", configured: safety.WindowNight, requested: safety.WindowAnyTime, want: safety.WindowAnyTime, counted: true},
		{name: "auto uses departure hour", requested: safety.WindowAuto, want: safety.WindowDay, counted: true},
		{name: "auto reads dataset zone", requested: safety.WindowAuto, location: time.FixedZone("JST", 9*60*60), want: safety.WindowEvening},
		{name: "configured auto", configured: safety.WindowAuto, location: time.FixedZone("CEST", 2*60*60), want: safety.WindowDay, counted: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scoring := safety.DefaultConfig()
			scoring.TimeWindow = tt.configured
			ranker, err := ranking.NewRanker(ranking.Config{Scoring: scoring, Logger: zerolog.Nop()})
			require.NoError(t, err)
			p := newPlanner(t, nil, loadedStore(), func(c *Config) {
				c.Ranker = ranker
				c.Location = tt.location
			})

			result, err := p.RankCandidates(context.Background(), RankRequest{
				Candidates: candidates,
				At:         at,
				TimeWindow: tt.requested,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.want, result.TimeWindow)
			if tt.counted {
				assert.Positive(t, totalCrimes(result.Routes))
			} else {
				assert.Zero(t, totalCrimes(result.Routes))
				assert.Equal(t, 100, result.Routes[0].Metrics.SafetyScore)
			}
			assert.Equal(t, tt.configured, ranker.Scorer().Config().TimeWindow)
		})
	}
}

func TestRankCandidates_InvalidTimeWindow(t *testing.T) {
	p := newPlanner(t, nil, loadedStore(), nil)

	_, err := p.RankCandidates(context.Background(), RankRequest{
		Candidates: []routing.Candidate{{ID: "a", Geometry: directLine, DistanceMeters: 550, DurationSeconds: 400}},
		TimeWindow: "dawn",
	})

	assert.ErrorIs(t, err, ErrInvalidTimeWindow)
}

func TestPlan_TimeWindow(t *testing.T) {
	dirs := &fakeDirections{direct: []routing.Route{route(directLine, 550, 400)}, via: northOrSouth}
	p := newPlanner(t, dirs, loadedStore(), nil)

	day, err := p.Plan(context.Background(), Request{Origin: origin, Destination: destination, TimeWindow: safety.WindowDay})
	require.NoError(t, err)
	night, err := p.Plan(context.Background(), Request{Origin: origin, Destination: destination, TimeWindow: safety.WindowNight})
	require.NoError(t, err)

	assert.Equal(t, safety.WindowDay, day.TimeWindow)
	assert.Equal(t, safety.WindowNight, night.TimeWindow)
	assert.Positive(t, totalCrimes(day.Routes))
	assert.Zero(t, totalCrimes(night.Routes))
}

type fakeGeocoder struct {
	places map[string]routing.Place
}

func (f *fakeGeocoder) Geocode(_ context.Context, address string) (routing.Place, error) {
	place, ok := f.places[address]
	if !ok {
		return routing.Place{}, routing.ErrAddressNotFound
	}
	return place, nil
}

func TestPlan_Addresses(t *testing.T) {
	geocoder := &fakeGeocoder{places: map[string]routing.Place{
		"Harbour Centre":  {Label: "555 West Hastings Street", Coordinate: origin},
		"Gastown Steamer": {Label: "305 Water Street", Coordinate: destination},
	}}
	dirs := &fakeDirections{direct: []routing.Route{route(directLine, 550, 400)}, via: northOrSouth}
	p := newPlanner(t, dirs, loadedStore(), func(c *Config) { c.Geocoder = geocoder })

	result, err := p.Plan(context.Background(), Request{
		OriginAddress:      "Harbour Centre",
		DestinationAddress: "Gastown Steamer",
	})
	require.NoError(t, err)

	assert.Equal(t, "555 West Hastings Street", result.Origin.Label)
	assert.Equal(t, "305 Water Street", result.Destination.Label)
	require.NotEmpty(t, dirs.requests)
	assert.Equal(t, origin, dirs.requests[0].Origin)
	assert.Equal(t, destination, dirs.requests[0].Destination)
	for _, r := range dirs.requests[1:] {
		assert.Equal(t, origin, r.Origin)
		assert.Equal(t, destination, r.Destination)
	}
}

func TestPlan_MixedAddressAndCoordinate(t *testing.T) {
	geocoder := &fakeGeocoder{places: map[string]routing.Place{
		"Gastown Steamer": {Label: "305 Water Street", Coordinate: destination},
	}}
	dirs := &fakeDirections{direct: []routing.Route{route(directLine, 550, 400)}, via: northOrSouth}
	p := newPlanner(t, dirs, loadedStore(), func(c *Config) { c.Geocoder = geocoder })

	result, err := p.Plan(context.Background(), Request{Origin: origin, DestinationAddress: "Gastown Steamer"})
	require.NoError(t, err)

	assert.Empty(t, result.Origin.Label)
	assert.Equal(t, origin, result.Origin.Coordinate)
	assert.Equal(t, destination, dirs.requests[0].Destination)
}

func TestPlan_AddressErrors(t *testing.T) {
	dirs := &fakeDirections{direct: []routing.Route{route(directLine, 550, 400)}}

	t.Run("unknown address", func(t *testing.T) {
		p := newPlanner(t, dirs, loadedStore(), func(c *Config) { c.Geocoder = &fakeGeocoder{} })

		_, err := p.Plan(context.Background(), Request{OriginAddress: "Atlantis", Destination: destination})

		assert.ErrorIs(t, err, routing.ErrAddressNotFound)
		assert.ErrorContains(t, err, "geocoding origin")
	})

	t.Run("no geocoder", func(t *testing.T) {
		p := newPlanner(t, dirs, loadedStore(), nil)

		_, err := p.Plan(context.Background(), Request{Origin: origin, DestinationAddress: "Gastown Steamer"})

		assert.ErrorIs(t, err, ErrGeocodingDisabled)
	})

	assert.Zero(t, dirs.requestCount())
}
