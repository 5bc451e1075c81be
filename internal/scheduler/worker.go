package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	schedmetrics "shelterops/internal/scheduler/metrics"
	"shelterops/internal/scheduler/models"
	"shelterops/internal/store"
	"shelterops/pkg/platform/sentinel"
	"shelterops/pkg/requestcontext"
)

const (
	DefaultTickInterval = 15 * time.Second
	DefaultLockTTL      = 60 * time.Second
	DefaultMaxAttempts  = 3
	DefaultBatchSize    = 50

	tickLockKey = "scheduler:tick"
)

// ErrNoHandler is recorded on tasks whose name has no registered handler.
var ErrNoHandler = errors.New("no handler registered")

// Handler executes one task. It runs as the system actor with the task
// timeout applied to ctx.
type Handler func(ctx context.Context, task *models.Task) error

// Worker polls for due tasks and executes them.
type Worker struct {
	store       store.Store
	locker      Locker
	logger      *slog.Logger
	metrics     *schedmetrics.Metrics
	interval    time.Duration
	lockTTL     time.Duration
	maxAttempts int
	batchSize   int
	clock       func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
}

type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithWorkerMetrics(m *schedmetrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithLocker(l Locker) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.locker = l
		}
	}
}

func WithTickInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLockTTL(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTTL = d
		}
	}
}

func WithMaxAttempts(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithClock(clock func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.clock = clock
	}
}

func NewWorker(st store.Store, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:       st,
		locker:      NewMemoryLocker(),
		logger:      slog.Default(),
		interval:    DefaultTickInterval,
		lockTTL:     DefaultLockTTL,
		maxAttempts: DefaultMaxAttempts,
		batchSize:   DefaultBatchSize,
		clock:       time.Now,
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Register binds a handler to a task name, replacing any previous binding.
func (w *Worker) Register(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

func (w *Worker) handler(name string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

// Run ticks until ctx is cancelled. Tick errors are logged and the loop continues.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "scheduler worker started", "interval", w.interval.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "scheduler tick failed", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "scheduler worker stopped")
			return ctx.Err()
		}
	}
}

// Tick claims due tasks under the tick lock and runs them sequentially.
// It returns the number of tasks executed.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	release, ok, err := w.locker.Acquire(ctx, tickLockKey, w.lockTTL)
	if err != nil {
		return 0, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		if w.metrics != nil {
			w.metrics.IncrementTicksSkipped()
		}
		return 0, nil
	}
	defer release()

	now := w.clock()
	var tasks []*models.Task
	err = w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		tasks, err = tx.ClaimDueTasks(ctx, now, w.maxAttempts, w.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("claim due tasks: %w", err)
	}

	executed := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return executed, ctx.Err()
		}
		owned, err := w.begin(ctx, task)
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to renew task lease",
				"task", task.Name, "task_id", task.ID.String(), "error", err)
			continue
		}
		if !owned {
			w.logger.InfoContext(ctx, "task no longer owned, skipping",
				"task", task.Name, "task_id", task.ID.String())
			continue
		}
		w.execute(ctx, task)
		executed++
	}
	return executed, nil
}

// begin renews the lease right before the run so tasks waiting behind a slow
// batch member are not reclaimed early. It reports false when the task was
// cancelled or claimed again by another worker in the meantime.
func (w *Worker) begin(ctx context.Context, task *models.Task) (bool, error) {
	now := w.clock()
	owned := false
	err := w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetTask(ctx, task.ID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !owns(current, task) {
			return nil
		}
		current.UpdatedAt = now
		owned = true
		return tx.UpdateTask(ctx, current)
	})
	return owned, err
}

// owns reports whether current is still the run this worker claimed. A
// reclaim after lease expiry bumps Attempts.
func owns(current, claimed *models.Task) bool {
	return current.Status == models.TaskRunning && current.Attempts == claimed.Attempts
}

func (w *Worker) execute(ctx context.Context, task *models.Task) {
	ctx, span := otel.Tracer("shelterops/scheduler").Start(ctx, "scheduler.task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.name", task.Name),
		attribute.String("task.id", task.ID.String()),
		attribute.Int("task.attempt", task.Attempts),
	)

	start := time.Now()
	runErr := w.invoke(ctx, task)
	outcome := "completed"
	if runErr != nil {
		outcome = "failed"
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		w.logger.ErrorContext(ctx, "task failed",
			"task", task.Name, "task_id", task.ID.String(), "attempt", task.Attempts, "error", runErr)
	} else {
		w.logger.InfoContext(ctx, "task completed", "task", task.Name, "task_id", task.ID.String())
	}
	if w.metrics != nil {
		w.metrics.ObserveRun(task.Name, outcome, start)
	}

	if err := w.finish(ctx, task, runErr); err != nil {
		w.logger.ErrorContext(ctx, "failed to record task outcome",
			"task", task.Name, "task_id", task.ID.String(), "error", err)
	}
}

func (w *Worker) invoke(ctx context.Context, task *models.Task) (err error) {
	h, ok := w.handler(task.Name)
	if !ok {
		return fmt.Errorf("%w for %q", ErrNoHandler, task.Name)
	}

	runCtx := requestcontext.WithActor(ctx, requestcontext.SystemActor)
	runCtx = requestcontext.WithTime(runCtx, w.clock())
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, task.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()

	err = h(runCtx, task)
	if err == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("task exceeded timeout of %s", task.Timeout)
	}
	return err
}

// finish records the outcome. A task deleted while it ran (for example
// cancelled by its own handler) or reclaimed after its lease expired has
// nothing left to record.
func (w *Worker) finish(ctx context.Context, task *models.Task, runErr error) error {
	now := w.clock()
	return w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetTask(ctx, task.ID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !owns(current, task) {
			return nil
		}
		current.LastRunTime = &now
		current.UpdatedAt = now
		if runErr != nil {
			current.Status = models.TaskFailed
			current.LastError = runErr.Error()
			return tx.UpdateTask(ctx, current)
		}
		current.TimesRun++
		current.LastError = ""
		if current.Repeats > 0 && current.TimesRun >= current.Repeats {
			current.Status = models.TaskCompleted
		} else {
			current.Status = models.TaskQueued
			current.Attempts = 0
		}
		return tx.UpdateTask(ctx, current)
	})
}
