package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.uber.org/zap"
)

//go:embed sql/schema.sql
var schemaSQL string

// PostgresStore keeps snapshots in a single table with the forecast as JSONB.
type PostgresStore struct {
	db         *sql.DB
	radiusKm   float64
	maxHistory int
	maxAge     time.Duration
	clock      clock.Clock
	logger     *zap.Logger
}

func NewPostgresStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("postgres storage requires a uri")
	}

	db, err := sql.Open("postgres", cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	s, err := newPostgresStore(ctx, db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Forecast history stored in PostgreSQL")
	return s, nil
}

func newPostgresStore(ctx context.Context, db *sql.DB, cfg config.StorageConfig, logger *zap.Logger) (*PostgresStore, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &PostgresStore{
		db:         db,
		radiusKm:   matchRadius(cfg),
		maxHistory: cfg.MaxHistory,
		maxAge:     time.Duration(cfg.MaxAge) * time.Second,
		clock:      clock.NewClock(),
		logger:     logger,
	}, nil
}

func (s *PostgresStore) Save(ctx context.Context, forecast *weather.Forecast) error {
	if forecast == nil {
		return nil
	}

	payload, err := json.Marshal(forecast)
	if err != nil {
		return fmt.Errorf("failed to encode forecast: %w", err)
	}

	query := `
        INSERT INTO forecast_snapshots (id, lat, lon, recorded_at, payload)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err = s.db.ExecContext(ctx, query,
		uuid.New(),
		forecast.Location.Lat,
		forecast.Location.Lon,
		recordedAt(forecast, s.clock.Now()),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert forecast snapshot: %w", err)
	}

	if err := s.prune(ctx, forecast.Location); err != nil {
		s.logger.Warn("Failed to prune forecast history", zap.Error(err))
	}
	return nil
}

func (s *PostgresStore) prune(ctx context.Context, loc weather.Coordinates) error {
	if s.maxAge > 0 {
		cutoff := s.clock.Now().Add(-s.maxAge).UTC()
		if _, err := s.db.ExecContext(ctx, `DELETE FROM forecast_snapshots WHERE recorded_at < $1`, cutoff); err != nil {
			return err
		}
	}

	if s.maxHistory > 0 {
		box := boxAround(loc, s.radiusKm)
		query := `
            DELETE FROM forecast_snapshots WHERE id IN (
                SELECT id FROM forecast_snapshots
                WHERE lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4
                ORDER BY recorded_at DESC
                OFFSET $5
            )
        `
		if _, err := s.db.ExecContext(ctx, query, box.minLat, box.maxLat, box.minLon, box.maxLon, s.maxHistory); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Latest(ctx context.Context, lat, lon float64) (*Snapshot, error) {
	snaps, err := s.query(ctx, lat, lon, time.Time{}, time.Time{}, "DESC")
	if err != nil {
		return nil, err
	}
	return &snaps[0], nil
}

func (s *PostgresStore) Range(ctx context.Context, lat, lon float64, from, to time.Time) ([]Snapshot, error) {
	return s.query(ctx, lat, lon, from, to, "ASC")
}

func (s *PostgresStore) query(ctx context.Context, lat, lon float64, from, to time.Time, order string) ([]Snapshot, error) {
	center := weather.Coordinates{Lat: lat, Lon: lon}
	box := boxAround(center, s.radiusKm)

	var fromArg, toArg interface{}
	if !from.IsZero() {
		fromArg = from.UTC()
	}
	if !to.IsZero() {
		toArg = to.UTC()
	}

	query := `
        SELECT id, lat, lon, recorded_at, payload
        FROM forecast_snapshots
        WHERE lat BETWEEN $1 AND $2 AND lon BETWEEN $3 AND $4
          AND ($5::timestamptz IS NULL OR recorded_at >= $5)
          AND ($6::timestamptz IS NULL OR recorded_at <= $6)
        ORDER BY recorded_at ` + order

	rows, err := s.db.QueryContext(ctx, query, box.minLat, box.maxLat, box.minLon, box.maxLon, fromArg, toArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		var payload []byte

		if err := rows.Scan(&snap.ID, &snap.Location.Lat, &snap.Location.Lon, &snap.RecordedAt, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan forecast snapshot: %w", err)
		}
		if distanceKm(snap.Location, center) > s.radiusKm {
			continue
		}

		snap.Forecast = &weather.Forecast{}
		if err := json.Unmarshal(payload, snap.Forecast); err != nil {
			return nil, fmt.Errorf("failed to decode forecast snapshot %s: %w", snap.ID, err)
		}
		snap.RecordedAt = snap.RecordedAt.UTC()
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return snaps, nil
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
