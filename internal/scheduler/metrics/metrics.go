package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for scheduled task execution.
type Metrics struct {
	TasksScheduled prometheus.Counter
	TasksCancelled prometheus.Counter
	TaskRuns       *prometheus.CounterVec
	TaskDuration   *prometheus.HistogramVec
	TicksSkipped   prometheus.Counter
}

// New registers the scheduler metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TasksScheduled: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_scheduler_tasks_scheduled_total",
			Help: "Total number of tasks created or re-armed",
		}),
		TasksCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_scheduler_tasks_cancelled_total",
			Help: "Total number of tasks cancelled",
		}),
		TaskRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "shelterd_scheduler_task_runs_total",
			Help: "Task executions by task name and outcome",
		}, []string{"task", "outcome"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shelterd_scheduler_task_duration_seconds",
			Help:    "Duration of task handler executions",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"task"}),
		TicksSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "shelterd_scheduler_ticks_skipped_total",
			Help: "Ticks skipped because another worker held the tick lock",
		}),
	}
}

func (m *Metrics) IncrementScheduled() {
	m.TasksScheduled.Inc()
}

func (m *Metrics) IncrementCancelled() {
	m.TasksCancelled.Inc()
}

func (m *Metrics) IncrementTicksSkipped() {
	m.TicksSkipped.Inc()
}

// ObserveRun records one handler execution.
// Call with time.Now() at the start of the execution.
func (m *Metrics) ObserveRun(task, outcome string, start time.Time) {
	m.TaskRuns.WithLabelValues(task, outcome).Inc()
	m.TaskDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}
