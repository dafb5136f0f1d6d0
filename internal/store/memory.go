package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
)

// MemoryStore keeps snapshots in process. Retention is applied on every Save:
// at most maxHistory snapshots per location and none older than maxAge.
type MemoryStore struct {
	mu         sync.RWMutex
	snapshots  []Snapshot
	radiusKm   float64
	maxHistory int
	maxAge     time.Duration
	clock      clock.Clock
}

func NewMemoryStore(cfg config.StorageConfig) *MemoryStore {
	return &MemoryStore{
		radiusKm:   matchRadius(cfg),
		maxHistory: cfg.MaxHistory,
		maxAge:     time.Duration(cfg.MaxAge) * time.Second,
		clock:      clock.NewClock(),
	}
}

func (m *MemoryStore) SetClock(c clock.Clock) {
	m.clock = c
}

func (m *MemoryStore) Save(_ context.Context, forecast *weather.Forecast) error {
	if forecast == nil {
		return nil
	}

	snap := Snapshot{
		ID:         uuid.NewString(),
		Location:   forecast.Location,
		RecordedAt: recordedAt(forecast, m.clock.Now()),
		Forecast:   forecast,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots = append(m.snapshots, snap)
	sort.SliceStable(m.snapshots, func(i, j int) bool {
		return m.snapshots[i].RecordedAt.Before(m.snapshots[j].RecordedAt)
	})
	m.pruneLocked(snap.Location)

	return nil
}

func (m *MemoryStore) pruneLocked(loc weather.Coordinates) {
	cutoff := time.Time{}
	if m.maxAge > 0 {
		cutoff = m.clock.Now().Add(-m.maxAge)
	}

	expired := func(s Snapshot) bool {
		return !cutoff.IsZero() && s.RecordedAt.Before(cutoff)
	}

	nearby := 0
	for _, s := range m.snapshots {
		if !expired(s) && distanceKm(s.Location, loc) <= m.radiusKm {
			nearby++
		}
	}
	excess := 0
	if m.maxHistory > 0 && nearby > m.maxHistory {
		excess = nearby - m.maxHistory
	}

	kept := m.snapshots[:0]
	for _, s := range m.snapshots {
		if expired(s) {
			continue
		}
		// Snapshots are oldest first, so the first matches are the oldest.
		if excess > 0 && distanceKm(s.Location, loc) <= m.radiusKm {
			excess--
			continue
		}
		kept = append(kept, s)
	}
	m.snapshots = kept
}

func (m *MemoryStore) Latest(ctx context.Context, lat, lon float64) (*Snapshot, error) {
	snaps, err := m.Range(ctx, lat, lon, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	latest := snaps[len(snaps)-1]
	return &latest, nil
}

func (m *MemoryStore) Range(_ context.Context, lat, lon float64, from, to time.Time) ([]Snapshot, error) {
	center := weather.Coordinates{Lat: lat, Lon: lon}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Snapshot
	for _, s := range m.snapshots {
		if !inWindow(s.RecordedAt, from, to) {
			continue
		}
		if distanceKm(s.Location, center) > m.radiusKm {
			continue
		}
		out = append(out, s)
	}

	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}

func (m *MemoryStore) Close(context.Context) error {
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}
