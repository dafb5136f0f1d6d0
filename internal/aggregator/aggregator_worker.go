package aggregator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vzahanych/smart-meteo/internal/weather"
	"github.com/vzahanych/smart-meteo/pkg/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrQueueFull  = errors.New("aggregation queue is full")
	ErrNotRunning = errors.New("aggregation pool is not running")
)

// Task is a queued aggregation. Its Context carries request scoped values
// such as the request id into the worker.
type Task struct {
	ID        string
	Lat       float64
	Lon       float64
	Context   context.Context
	ResultCh  chan TaskResult
	CreatedAt time.Time
}

type TaskResult struct {
	Forecast *weather.Forecast
	Error    error
}

// Wait blocks until the task has a result or ctx is done.
func (t *Task) Wait(ctx context.Context) (*weather.Forecast, error) {
	select {
	case res := <-t.ResultCh:
		return res.Forecast, res.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Task) complete(res TaskResult) {
	select {
	case t.ResultCh <- res:
	default:
	}
}

// Start launches the worker pool. Calling it on a running pool is a no-op.
// Cancelling ctx stops the pool the same way Stop does.
func (a *Aggregator) Start(ctx context.Context) error {
	a.poolMu.Lock()
	defer a.poolMu.Unlock()

	if a.running {
		return nil
	}

	a.taskQueue = make(chan *Task, a.queueSize)
	a.shutdownCh = make(chan struct{})
	a.running = true

	for i := 0; i < a.workers; i++ {
		a.workerWg.Add(1)
		worker := NewAggregatorWorker(a, i+1)
		go worker.Start(ctx)
	}
	go a.stopOnCancel(ctx, a.shutdownCh)

	a.logger.Info("Aggregation pool started",
		zap.Int("workers", a.workers),
		zap.Int("queue_size", a.queueSize))

	return nil
}

// Stop signals the workers, waits for in-flight tasks and fails every task
// still queued with ErrNotRunning.
func (a *Aggregator) Stop(ctx context.Context) error {
	a.poolMu.Lock()
	if !a.running {
		a.poolMu.Unlock()
		return nil
	}
	a.running = false
	close(a.shutdownCh)
	queue := a.taskQueue
	a.poolMu.Unlock()

	done := make(chan struct{})
	go func() {
		a.workerWg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		a.logger.Info("Aggregation pool stopped")
	case <-ctx.Done():
		err = ctx.Err()
		a.logger.Warn("Aggregation pool stop timed out", zap.Error(err))
	}

	drainQueue(queue)
	return err
}

// stopOnCancel marks the pool stopped once ctx ends, unless Stop got there
// first, and fails whatever the workers left queued.
func (a *Aggregator) stopOnCancel(ctx context.Context, shutdownCh chan struct{}) {
	select {
	case <-shutdownCh:
		return
	case <-ctx.Done():
	}

	a.poolMu.Lock()
	if !a.running || a.shutdownCh != shutdownCh {
		a.poolMu.Unlock()
		return
	}
	a.running = false
	close(a.shutdownCh)
	queue := a.taskQueue
	a.poolMu.Unlock()

	a.logger.Info("Aggregation pool stopped", zap.Error(ctx.Err()))
	drainQueue(queue)
}

func drainQueue(queue chan *Task) {
	for {
		select {
		case task := <-queue:
			task.complete(TaskResult{Error: ErrNotRunning})
		default:
			return
		}
	}
}

// Submit queues an aggregation without blocking. The returned task delivers
// exactly one result.
func (a *Aggregator) Submit(ctx context.Context, lat, lon float64) (*Task, error) {
	task := &Task{
		ID:        uuid.NewString(),
		Lat:       lat,
		Lon:       lon,
		Context:   ctx,
		ResultCh:  make(chan TaskResult, 1),
		CreatedAt: a.clock.Now(),
	}

	a.poolMu.Lock()
	defer a.poolMu.Unlock()

	if !a.running {
		return nil, ErrNotRunning
	}

	select {
	case a.taskQueue <- task:
		return task, nil
	default:
		return nil, ErrQueueFull
	}
}

// AggregatorWorker serves the queue of the pool generation it was created
// for, so a restarted pool never shares channels with old workers.
type AggregatorWorker struct {
	aggregator *Aggregator
	workerID   int
	logger     *zap.Logger
	queue      <-chan *Task
	shutdown   <-chan struct{}
}

func NewAggregatorWorker(aggregator *Aggregator, workerID int) *AggregatorWorker {
	return &AggregatorWorker{
		aggregator: aggregator,
		workerID:   workerID,
		logger:     aggregator.logger.With(zap.Int("worker_id", workerID)),
		queue:      aggregator.taskQueue,
		shutdown:   aggregator.shutdownCh,
	}
}

func (w *AggregatorWorker) Start(ctx context.Context) {
	defer w.aggregator.workerWg.Done()

	w.logger.Debug("Worker started")

	for {
		// Shutdown wins over queued work.
		select {
		case <-w.shutdown:
			w.logger.Debug("Shutdown signal received, worker stopping")
			return
		case <-ctx.Done():
			w.logger.Debug("Context cancelled, worker stopping")
			return
		default:
		}

		select {
		case <-w.shutdown:
			w.logger.Debug("Shutdown signal received, worker stopping")
			return
		case <-ctx.Done():
			w.logger.Debug("Context cancelled, worker stopping")
			return
		case task := <-w.queue:
			w.processTask(task)
		}
	}
}

func (w *AggregatorWorker) processTask(task *Task) {
	ctx := task.Context
	if ctx == nil {
		ctx = context.Background()
	}

	if err := ctx.Err(); err != nil {
		task.complete(TaskResult{Error: err})
		return
	}

	tracer := w.aggregator.tele.GetTracer()
	ctx, span := tracer.Start(ctx, "aggregator.processTask")
	defer span.End()

	span.SetAttributes(
		attribute.String("task_id", task.ID),
		attribute.Float64("lat", task.Lat),
		attribute.Float64("lon", task.Lon),
		attribute.Int("worker_id", w.workerID),
	)

	taskLogger := logger.ForContext(ctx, w.logger).With(zap.String("task_id", task.ID))
	taskLogger.Debug("Processing task",
		zap.Duration("queued_for", w.aggregator.clock.Since(task.CreatedAt)))

	forecast, err := w.aggregator.Aggregate(ctx, task.Lat, task.Lon)
	if err != nil {
		taskLogger.Warn("Task failed", zap.Error(err))
	} else {
		taskLogger.Debug("Task completed successfully")
	}

	task.complete(TaskResult{Forecast: forecast, Error: err})
}
