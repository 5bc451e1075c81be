package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	schedmetrics "shelterops/internal/scheduler/metrics"
	"shelterops/internal/scheduler/models"
	"shelterops/internal/store"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/requestcontext"
)

type SchedulerSuite struct {
	suite.Suite
	store     *store.MemoryStore
	scheduler *Scheduler
	metrics   *schedmetrics.Metrics
	ctx       context.Context
	now       time.Time
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerSuite))
}

func (s *SchedulerSuite) SetupTest() {
	s.store = store.NewMemory()
	s.metrics = schedmetrics.NewWithRegisterer(prometheus.NewRegistry())
	s.scheduler = New(s.store, WithMetrics(s.metrics))
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *SchedulerSuite) spec(start time.Time) TaskSpec {
	return TaskSpec{
		Name:      "anonymise_task",
		Args:      []any{"shelter-1", "tag-1"},
		StartTime: start,
		Timeout:   300 * time.Second,
		Repeats:   1,
	}
}

func (s *SchedulerSuite) TestScheduleOnce() {
	start := s.now.Add(30 * 24 * time.Hour)

	s.Run("creates a queued task", func() {
		taskID, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(start))
		s.Require().NoError(err)

		task, err := s.scheduler.Get(s.ctx, taskID)
		s.Require().NoError(err)
		s.Equal(models.TaskQueued, task.Status)
		s.Equal(`["shelter-1","tag-1"]`, task.Args)
		s.Equal(`{}`, task.Vars)
		s.Equal(300*time.Second, task.Timeout)
		s.True(task.StartTime.Equal(start))
	})

	s.Run("identical schedule is a no-op", func() {
		first, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(start))
		s.Require().NoError(err)
		second, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(start))
		s.Require().NoError(err)
		s.Equal(first, second)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.TasksScheduled))
	})

	s.Run("different start time moves the task", func() {
		later := start.Add(time.Hour)
		taskID, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(later))
		s.Require().NoError(err)

		task, err := s.scheduler.Get(s.ctx, taskID)
		s.Require().NoError(err)
		s.True(task.StartTime.Equal(later))
	})
}

func (s *SchedulerSuite) TestScheduleOnceRearmsCompletedTask() {
	taskID, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(s.now))
	s.Require().NoError(err)

	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		task.Status = models.TaskCompleted
		task.TimesRun = 1
		return tx.UpdateTask(ctx, task)
	}))

	again, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(s.now))
	s.Require().NoError(err)
	s.Equal(taskID, again)

	task, err := s.scheduler.Get(s.ctx, taskID)
	s.Require().NoError(err)
	s.Equal(models.TaskQueued, task.Status)
	s.Zero(task.TimesRun)
}

func (s *SchedulerSuite) TestScheduleOnceRearmsAbandonedRun() {
	taskID, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(s.now))
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.ClaimDueTasks(ctx, s.now, 3, 0)
		return err
	}))
	later := s.now.Add(time.Hour)

	s.Run("an in-flight run is left alone", func() {
		_, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(later))
		s.Require().NoError(err)
		task, err := s.scheduler.Get(s.ctx, taskID)
		s.Require().NoError(err)
		s.Equal(models.TaskRunning, task.Status)
		s.Equal(1, task.Attempts)
	})

	s.Run("a run past its lease is re-armed", func() {
		ctx := requestcontext.WithTime(context.Background(), s.now.Add(24*time.Hour))
		_, err := s.scheduler.ScheduleOnce(ctx, s.spec(later))
		s.Require().NoError(err)
		task, err := s.scheduler.Get(ctx, taskID)
		s.Require().NoError(err)
		s.Equal(models.TaskQueued, task.Status)
		s.Zero(task.Attempts)
		s.True(task.StartTime.Equal(later))
	})
}

func (s *SchedulerSuite) TestCancel() {
	s.Run("deletes the matching task", func() {
		_, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(s.now))
		s.Require().NoError(err)

		s.Require().NoError(s.scheduler.Cancel(s.ctx, "anonymise_task", []any{"shelter-1", "tag-1"}, nil))

		_, err = s.scheduler.Find(s.ctx, "anonymise_task", []any{"shelter-1", "tag-1"}, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("missing task is not an error", func() {
		s.NoError(s.scheduler.Cancel(s.ctx, "anonymise_task", []any{"nope"}, nil))
	})

	s.Run("joins a surrounding transaction", func() {
		_, err := s.scheduler.ScheduleOnce(s.ctx, s.spec(s.now))
		s.Require().NoError(err)

		boom := dErrors.New(dErrors.CodeConflict, "rolled back")
		err = s.store.RunInTx(s.ctx, func(ctx context.Context, _ store.Tx) error {
			s.Require().NoError(s.scheduler.Cancel(ctx, "anonymise_task", []any{"shelter-1", "tag-1"}, nil))
			return boom
		})
		s.Require().ErrorIs(err, boom)

		_, err = s.scheduler.Find(s.ctx, "anonymise_task", []any{"shelter-1", "tag-1"}, nil)
		s.NoError(err, "cancel must roll back with the outer transaction")
	})
}

func (s *SchedulerSuite) TestRunAsync() {
	ctx := requestcontext.WithActor(s.ctx, requestcontext.Actor{UserID: "officer-1"})
	taskID, err := s.scheduler.RunAsync(ctx, "notify", []any{1}, map[string]any{"b": 2, "a": 1})
	s.Require().NoError(err)

	task, err := s.scheduler.Get(s.ctx, taskID)
	s.Require().NoError(err)
	s.True(task.StartTime.Equal(s.now))
	s.Equal(`{"a":1,"b":2}`, task.Vars)
	s.Equal("officer-1", task.CreatedBy)
	s.Equal(DefaultTaskTimeout, task.Timeout)
}

func (s *SchedulerSuite) TestRejectsEmptyName() {
	_, err := s.scheduler.ScheduleOnce(s.ctx, TaskSpec{StartTime: s.now})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}
