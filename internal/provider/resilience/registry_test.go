package resilience_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/provider/resilience"
)

func TestRegistry_Register(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := fastConfig("openrouteservice", 0)
	cfg.Registry = registry
	resilience.NewClient(cfg)

	h, ok := registry.Health("openrouteservice")
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateClosed, h.State)
	assert.True(t, h.Closed())
	assert.Nil(t, h.LastSuccessAt)
	assert.False(t, registry.Degraded())

	_, ok = registry.Health("graphhopper")
	assert.False(t, ok)
}

func TestRegistry_SnapshotSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"valhalla", "openrouteservice", "graphhopper"} {
		cfg := fastConfig(name, 0)
		cfg.Registry = registry
		resilience.NewClient(cfg)
	}

	var names []string
	for _, h := range registry.Snapshot() {
		names = append(names, h.Name)
	}

	assert.Equal(t, []string{"graphhopper", "openrouteservice", "valhalla"}, names)
}

func TestRegistry_RecordsOutcomes(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	registry := resilience.NewRegistry()
	cfg := fastConfig("openrouteservice", 1)
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	resp, err := get(t, client, ok.URL)
	require.NoError(t, err)
	resp.Body.Close()

	h, _ := registry.Health("openrouteservice")
	require.NotNil(t, h.LastSuccessAt)
	assert.Nil(t, h.LastFailureAt)

	resp, err = get(t, client, failing.URL)
	require.NoError(t, err)
	resp.Body.Close()

	h, _ = registry.Health("openrouteservice")
	require.NotNil(t, h.LastFailureAt)
	assert.Equal(t, "server error: Bad Gateway", h.LastError)
	assert.Equal(t, uint32(2), h.Counts.ConsecutiveFailures)
}

func TestRegistry_DegradedWhenOpen(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	registry := resilience.NewRegistry()
	cfg := fastConfig("openrouteservice", 0)
	cfg.Breaker.ConsecutiveFailures = 1
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	resp, err := get(t, client, failing.URL)
	require.NoError(t, err)
	resp.Body.Close()

	h, _ := registry.Health("openrouteservice")
	assert.True(t, h.Open())
	assert.False(t, h.HalfOpen())
	assert.True(t, registry.Degraded())
}
