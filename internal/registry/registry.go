package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("source not found")
	ErrValidation = errors.New("invalid source registry operation")
)

// Source describes one weather provider together with its last-call telemetry.
type Source struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Weight        float64 `json:"weight"`
	Active        bool    `json:"active"`
	LastError     *string `json:"last_error"`
	LastLatencyMs *int64  `json:"last_latency_ms"`
}

// Registry holds the ordered provider list. The order given to New is the
// iteration order of every read operation.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	sources map[string]*Source
}

func New(sources []Source) (*Registry, error) {
	r := &Registry{
		order:   make([]string, 0, len(sources)),
		sources: make(map[string]*Source, len(sources)),
	}

	active := 0
	for i, src := range sources {
		if src.ID == "" {
			return nil, fmt.Errorf("%w: source %d has an empty id", ErrValidation, i)
		}
		if _, dup := r.sources[src.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate source id %q", ErrValidation, src.ID)
		}
		if src.Weight <= 0 {
			return nil, fmt.Errorf("%w: source %q must have a positive weight", ErrValidation, src.ID)
		}
		if src.Active {
			active++
		}

		s := src
		r.sources[src.ID] = &s
		r.order = append(r.order, src.ID)
	}

	if active == 0 {
		return nil, fmt.Errorf("%w: at least one source must be active", ErrValidation)
	}

	return r, nil
}

// List returns a snapshot of every descriptor.
func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id].clone())
	}
	return out
}

func (r *Registry) Get(id string) (Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[id]
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return src.clone(), nil
}

// SetActive toggles a source and returns the updated descriptor. Deactivating
// the last active source is rejected and leaves the registry untouched.
func (r *Registry) SetActive(id string, active bool) (Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return Source{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if !active && src.Active && r.activeCountLocked() == 1 {
		return Source{}, fmt.Errorf("%w: cannot disable the last active source %q", ErrValidation, id)
	}

	src.Active = active
	return src.clone(), nil
}

// RecordOutcome overwrites the telemetry of one source. Unknown ids are ignored.
func (r *Registry) RecordOutcome(id string, latency time.Duration, err error) {
	ms := latency.Milliseconds()

	var msg *string
	if err != nil {
		m := err.Error()
		msg = &m
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return
	}
	src.LastLatencyMs = &ms
	src.LastError = msg
}

func (r *Registry) ActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if r.sources[id].Active {
			ids = append(ids, id)
		}
	}
	return ids
}

// Active returns snapshots of the active descriptors, in registry order.
func (r *Registry) Active() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Source, 0, len(r.order))
	for _, id := range r.order {
		if src := r.sources[id]; src.Active {
			out = append(out, src.clone())
		}
	}
	return out
}

func (r *Registry) activeCountLocked() int {
	n := 0
	for _, src := range r.sources {
		if src.Active {
			n++
		}
	}
	return n
}

func (s *Source) clone() Source {
	c := *s
	if s.LastError != nil {
		e := *s.LastError
		c.LastError = &e
	}
	if s.LastLatencyMs != nil {
		l := *s.LastLatencyMs
		c.LastLatencyMs = &l
	}
	return c
}
