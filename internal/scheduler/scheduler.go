// Package scheduler stores deferred tasks and runs them from a polling worker.
//
// A task is identified by its name plus the canonical JSON of its arguments and
// variables. Scheduling an identical task twice never creates a duplicate.
// Delivery is at-least-once, so handlers must be idempotent.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	schedmetrics "shelterops/internal/scheduler/metrics"
	"shelterops/internal/scheduler/models"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/platform/sentinel"
	"shelterops/pkg/requestcontext"
)

// DefaultTaskTimeout applies when a TaskSpec carries no timeout.
const DefaultTaskTimeout = models.DefaultTimeout

// TaskSpec describes a task to schedule.
type TaskSpec struct {
	Name      string
	Args      []any
	Vars      map[string]any
	StartTime time.Time
	Timeout   time.Duration
	Repeats   int
	CreatedBy string
}

// Scheduler registers, reschedules and cancels tasks.
type Scheduler struct {
	store   store.Store
	logger  *slog.Logger
	metrics *schedmetrics.Metrics
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *schedmetrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

func New(st store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleOnce creates the task or, when an identical task exists, moves its
// start time if it differs. Completed, stopped and exhausted tasks are re-armed,
// as are running tasks whose lease expired.
func (s *Scheduler) ScheduleOnce(ctx context.Context, spec TaskSpec) (id.TaskID, error) {
	key, err := models.NewKey(spec.Name, spec.Args, spec.Vars)
	if err != nil {
		return id.TaskID{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid task arguments")
	}
	if spec.Name == "" {
		return id.TaskID{}, dErrors.New(dErrors.CodeBadRequest, "task name is required")
	}
	if spec.Timeout <= 0 {
		spec.Timeout = DefaultTaskTimeout
	}
	if spec.Repeats <= 0 {
		spec.Repeats = 1
	}

	var (
		taskID  id.TaskID
		changed bool
	)
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := requestcontext.Now(ctx)
		existing, err := tx.FindTask(ctx, key)
		switch {
		case err == nil:
			taskID = existing.ID
			if !existing.StartTime.Equal(spec.StartTime) {
				existing.StartTime = spec.StartTime
				changed = true
			}
			inFlight := existing.Status == models.TaskRunning && !existing.LeaseExpired(now)
			if existing.Status != models.TaskQueued && !inFlight {
				existing.Status = models.TaskQueued
				existing.Attempts = 0
				existing.TimesRun = 0
				existing.LastError = ""
				changed = true
			}
			if !changed {
				return nil
			}
			existing.UpdatedAt = now
			return tx.UpdateTask(ctx, existing)
		case errors.Is(err, sentinel.ErrNotFound):
			task := &models.Task{
				ID:        id.NewTaskID(),
				Name:      key.Name,
				Args:      key.Args,
				Vars:      key.Vars,
				StartTime: spec.StartTime,
				Timeout:   spec.Timeout,
				Repeats:   spec.Repeats,
				Status:    models.TaskQueued,
				CreatedBy: spec.CreatedBy,
				CreatedAt: now,
				UpdatedAt: now,
			}
			taskID = task.ID
			changed = true
			return tx.InsertTask(ctx, task)
		default:
			return err
		}
	})
	if err != nil {
		return id.TaskID{}, wrapStoreErr(err, "failed to schedule task")
	}
	if changed {
		s.logger.InfoContext(ctx, "task scheduled",
			"task", key.Name, "task_id", taskID.String(), "start_time", spec.StartTime)
		if s.metrics != nil {
			s.metrics.IncrementScheduled()
		}
	}
	return taskID, nil
}

// Cancel deletes the matching task. Cancelling a task that does not exist is
// not an error.
func (s *Scheduler) Cancel(ctx context.Context, name string, args []any, vars map[string]any) error {
	key, err := models.NewKey(name, args, vars)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid task arguments")
	}
	var cancelled bool
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		task, err := tx.FindTask(ctx, key)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cancelled = true
		return tx.DeleteTask(ctx, task.ID)
	})
	if err != nil {
		return wrapStoreErr(err, "failed to cancel task")
	}
	if cancelled {
		s.logger.InfoContext(ctx, "task cancelled", "task", name, "args", key.Args)
		if s.metrics != nil {
			s.metrics.IncrementCancelled()
		}
	}
	return nil
}

// RunAsync enqueues the task to run on the next worker tick.
func (s *Scheduler) RunAsync(ctx context.Context, name string, args []any, vars map[string]any) (id.TaskID, error) {
	return s.ScheduleOnce(ctx, TaskSpec{
		Name:      name,
		Args:      args,
		Vars:      vars,
		StartTime: requestcontext.Now(ctx),
		CreatedBy: requestcontext.ActorFrom(ctx).UserID,
	})
}

// Get returns a task by id.
func (s *Scheduler) Get(ctx context.Context, taskID id.TaskID) (*models.Task, error) {
	var task *models.Task
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		task, err = tx.GetTask(ctx, taskID)
		return err
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load task")
	}
	return task, nil
}

// Find returns the task with the given identity.
func (s *Scheduler) Find(ctx context.Context, name string, args []any, vars map[string]any) (*models.Task, error) {
	key, err := models.NewKey(name, args, vars)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid task arguments")
	}
	var task *models.Task
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		task, err = tx.FindTask(ctx, key)
		return err
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to load task")
	}
	return task, nil
}

func wrapStoreErr(err error, msg string) error {
	switch {
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "task not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "task was modified concurrently")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
