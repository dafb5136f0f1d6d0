package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/vzahanych/smart-meteo/internal/config"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const (
	forecastsCollection = "forecasts"
	mongoOpTimeout      = 5 * time.Second
	mongoConnectTimeout = 10 * time.Second
)

// MongoStore keeps snapshots in a MongoDB collection. Age retention is
// delegated to a TTL index on recorded_at.
type MongoStore struct {
	client   *mongo.Client
	coll     *mongo.Collection
	radiusKm float64
	clock    clock.Clock
	logger   *zap.Logger
}

func NewMongoStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo storage requires a uri")
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctxWithTimeout, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	if err := client.Ping(ctxWithTimeout, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "smart_meteo"
	}

	s := &MongoStore{
		client:   client,
		coll:     client.Database(database).Collection(forecastsCollection),
		radiusKm: matchRadius(cfg),
		clock:    clock.NewClock(),
		logger:   logger,
	}

	if err := s.createIndexes(ctxWithTimeout, cfg.MaxAge); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("Forecast history stored in MongoDB",
		zap.String("database", database),
		zap.String("collection", forecastsCollection))

	return s, nil
}

func (s *MongoStore) createIndexes(ctx context.Context, maxAge int) error {
	recorded := options.Index()
	if maxAge > 0 {
		recorded.SetExpireAfterSeconds(int32(maxAge))
	}

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "recorded_at", Value: 1}}, Options: recorded},
		{Keys: bson.D{{Key: "location.lat", Value: 1}, {Key: "location.lon", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create forecast indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Save(ctx context.Context, forecast *weather.Forecast) error {
	if forecast == nil {
		return nil
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	snap := Snapshot{
		ID:         uuid.NewString(),
		Location:   forecast.Location,
		RecordedAt: recordedAt(forecast, s.clock.Now()),
		Forecast:   forecast,
	}

	if _, err := s.coll.InsertOne(ctxWithTimeout, snap); err != nil {
		return fmt.Errorf("failed to insert forecast snapshot: %w", err)
	}
	return nil
}

func (s *MongoStore) filter(lat, lon float64, from, to time.Time) bson.M {
	box := boxAround(weather.Coordinates{Lat: lat, Lon: lon}, s.radiusKm)

	filter := bson.M{
		"location.lat": bson.M{"$gte": box.minLat, "$lte": box.maxLat},
		"location.lon": bson.M{"$gte": box.minLon, "$lte": box.maxLon},
	}

	window := bson.M{}
	if !from.IsZero() {
		window["$gte"] = from.UTC()
	}
	if !to.IsZero() {
		window["$lte"] = to.UTC()
	}
	if len(window) > 0 {
		filter["recorded_at"] = window
	}
	return filter
}

func (s *MongoStore) Latest(ctx context.Context, lat, lon float64) (*Snapshot, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: -1}})

	snaps, err := s.find(ctxWithTimeout, lat, lon, s.filter(lat, lon, time.Time{}, time.Time{}), opts)
	if err != nil {
		return nil, err
	}
	return &snaps[0], nil
}

func (s *MongoStore) Range(ctx context.Context, lat, lon float64, from, to time.Time) ([]Snapshot, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})
	return s.find(ctxWithTimeout, lat, lon, s.filter(lat, lon, from, to), opts)
}

func (s *MongoStore) find(ctx context.Context, lat, lon float64, filter bson.M, opts *options.FindOptions) ([]Snapshot, error) {
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecast snapshots: %w", err)
	}
	defer cur.Close(ctx)

	center := weather.Coordinates{Lat: lat, Lon: lon}

	var snaps []Snapshot
	for cur.Next(ctx) {
		var snap Snapshot
		if err := cur.Decode(&snap); err != nil {
			return nil, fmt.Errorf("failed to decode forecast snapshot: %w", err)
		}
		if distanceKm(snap.Location, center) > s.radiusKm {
			continue
		}
		snap.RecordedAt = snap.RecordedAt.UTC()
		snaps = append(snaps, snap)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}

	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return snaps, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}
