// Package models holds the scheduled task record shared by the scheduler and the entity store.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	id "shelterops/pkg/domain"
)

type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskStopped   TaskStatus = "stopped"
)

const (
	// DefaultTimeout bounds a run when a task carries no timeout.
	DefaultTimeout = 5 * time.Minute
	// LeaseGrace is added to the timeout before a running task counts as
	// abandoned by its worker.
	LeaseGrace = 30 * time.Second
)

// LeaseExpiredError is recorded on tasks whose worker stopped reporting
// before the lease ran out.
const LeaseExpiredError = "lease expired before the run finished"

// IsTerminal reports whether the task will not run again without being re-armed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskStopped
}

// Key identifies a task. Args and Vars are canonical JSON so identical
// argument tuples always produce identical keys.
type Key struct {
	Name string
	Args string
	Vars string
}

// NewKey canonicalises args and vars. Nil args encode as [] and nil vars as {}.
func NewKey(name string, args []any, vars map[string]any) (Key, error) {
	if args == nil {
		args = []any{}
	}
	if vars == nil {
		vars = map[string]any{}
	}
	a, err := json.Marshal(args)
	if err != nil {
		return Key{}, fmt.Errorf("encode task args: %w", err)
	}
	// encoding/json sorts map keys, which keeps vars canonical.
	v, err := json.Marshal(vars)
	if err != nil {
		return Key{}, fmt.Errorf("encode task vars: %w", err)
	}
	return Key{Name: name, Args: string(a), Vars: string(v)}, nil
}

func (k Key) String() string {
	return k.Name + k.Args + k.Vars
}

// Task is a deferred unit of work. Repeats counts remaining runs; 0 means
// unlimited and is not used by the engine.
type Task struct {
	ID          id.TaskID     `json:"id"`
	Name        string        `json:"name"`
	Args        string        `json:"args"`
	Vars        string        `json:"vars"`
	StartTime   time.Time     `json:"start_time"`
	Timeout     time.Duration `json:"timeout"`
	Repeats     int           `json:"repeats"`
	TimesRun    int           `json:"times_run"`
	Status      TaskStatus    `json:"status"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	CreatedBy   string        `json:"created_by,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	LastRunTime *time.Time    `json:"last_run_time,omitempty"`
}

func (t *Task) Key() Key {
	return Key{Name: t.Name, Args: t.Args, Vars: t.Vars}
}

// DecodeArgs unmarshals the positional arguments into dst.
func (t *Task) DecodeArgs(dst any) error {
	return json.Unmarshal([]byte(t.Args), dst)
}

// Lease is how long a claim stays valid after UpdatedAt.
func (t *Task) Lease() time.Duration {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return timeout + LeaseGrace
}

// LeaseExpired reports whether a running task outlived its lease, which
// means the worker that claimed it is gone.
func (t *Task) LeaseExpired(now time.Time) bool {
	return t.Status == TaskRunning && !t.UpdatedAt.Add(t.Lease()).After(now)
}

// IsAbandoned reports whether an expired running task has no attempts left.
func (t *Task) IsAbandoned(now time.Time, maxAttempts int) bool {
	return t.LeaseExpired(now) && t.Attempts >= maxAttempts
}

// IsDue reports whether the task may be claimed at now. Running tasks are
// claimable again once their lease expires.
func (t *Task) IsDue(now time.Time, maxAttempts int) bool {
	switch t.Status {
	case TaskQueued:
	case TaskFailed:
		if t.Attempts >= maxAttempts {
			return false
		}
	case TaskRunning:
		if !t.LeaseExpired(now) || t.Attempts >= maxAttempts {
			return false
		}
	default:
		return false
	}
	return !t.StartTime.After(now)
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.LastRunTime != nil {
		lr := *t.LastRunTime
		cp.LastRunTime = &lr
	}
	return &cp
}
