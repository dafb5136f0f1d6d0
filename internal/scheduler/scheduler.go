package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/vzahanych/smart-meteo/internal/aggregator"
	"github.com/vzahanych/smart-meteo/internal/config"
	"go.uber.org/zap"
)

const (
	defaultInterval = 15 * time.Minute
	runTimeout      = 30 * time.Second
)

// Submitter queues aggregations on the worker pool.
type Submitter interface {
	Submit(ctx context.Context, lat, lon float64) (*aggregator.Task, error)
}

// Scheduler periodically refreshes the configured locations. Results reach the
// cache and history store through the aggregator's observers.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pool      Submitter
	locations []config.LocationConfig
	interval  time.Duration
	logger    *zap.Logger
}

func New(cfg config.SchedulerConfig, pool Submitter, logger *zap.Logger) *Scheduler {
	interval := time.Duration(cfg.Interval) * time.Second
	if interval <= 0 {
		interval = defaultInterval
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		pool:      pool,
		locations: cfg.Locations,
		interval:  interval,
		logger:    logger.With(zap.String("component", "scheduler")),
	}
}

// Start schedules the refresh job, first run immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Info("No locations configured, nothing to schedule")
		return nil
	}

	if _, err := s.scheduler.Every(s.interval).Do(func() { s.runOnce() }); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("locations", len(s.locations)))
	return nil
}

func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// runOnce refreshes every location and reports how many succeeded.
func (s *Scheduler) runOnce() int {
	s.logger.Debug("Running refresh job")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for _, loc := range s.locations {
		wg.Add(1)
		go func(loc config.LocationConfig) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
			defer cancel()

			locLogger := s.logger.With(
				zap.String("location", loc.Name),
				zap.Float64("lat", loc.Lat),
				zap.Float64("lon", loc.Lon))

			task, err := s.pool.Submit(ctx, loc.Lat, loc.Lon)
			if err != nil {
				locLogger.Warn("Failed to queue refresh", zap.Error(err))
				return
			}

			forecast, err := task.Wait(ctx)
			if err != nil {
				locLogger.Warn("Refresh failed", zap.Error(err))
				return
			}

			locLogger.Debug("Refresh completed", zap.Strings("sources_used", forecast.SourcesUsed))

			mu.Lock()
			succeeded++
			mu.Unlock()
		}(loc)
	}
	wg.Wait()

	s.logger.Info("Refresh job completed",
		zap.Int("succeeded", succeeded),
		zap.Int("locations", len(s.locations)))

	return succeeded
}
