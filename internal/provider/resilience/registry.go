package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health is a point-in-time view of one provider.
type Health struct {
	Name          string
	State         gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Closed reports whether requests flow normally.
func (h Health) Closed() bool { return h.State == gobreaker.StateClosed }

// HalfOpen reports whether the circuit is probing after a cooldown.
func (h Health) HalfOpen() bool { return h.State == gobreaker.StateHalfOpen }

// Open reports whether requests are being rejected.
func (h Health) Open() bool { return h.State == gobreaker.StateOpen }

// Registry tracks guarded provider clients and their last outcomes.
type Registry struct {
	mu      sync.RWMutex
	clock   func() time.Time
	entries map[string]*entry
}

type entry struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clock:   time.Now,
		entries: make(map[string]*entry),
	}
}

// Register adds client under its name, replacing any previous entry.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[client.Name()] = &entry{client: client}
}

func (r *Registry) recordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.clock()
		e.lastSuccessAt = &now
	}
}

func (r *Registry) recordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		now := r.clock()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Health returns the named provider's health.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Health{}, false
	}
	return e.health(name), true
}

// Snapshot returns every provider's health ordered by name.
func (r *Registry) Snapshot() []Health {
	r.mu.RLock()
	out := make([]Health, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.health(name))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Degraded reports whether any provider circuit is not closed.
func (r *Registry) Degraded() bool {
	for _, h := range r.Snapshot() {
		if !h.Closed() {
			return true
		}
	}
	return false
}

func (e *entry) health(name string) Health {
	return Health{
		Name:          name,
		State:         e.client.State(),
		Counts:        e.client.Counts(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
