package workqueue

import (
	"context"
	"fmt"
	"time"
)

// WorkItem is a unit of runnable work handed to the queue.
//
// The queue never constructs work items. It only stamps TimeQueued on
// Add and routes by IsSystem. Once a consumer removes an item the queue
// keeps no reference to it.
type WorkItem interface {
	// Execute runs the item. The pool passes its own context.
	Execute(ctx context.Context) error

	// String describes the item for DumpStatus.
	String() string

	// IsSystem reports whether the item is runtime-internal work
	// that belongs in the system lane.
	IsSystem() bool

	// TimeQueued returns the enqueue timestamp set by the queue.
	TimeQueued() time.Time

	// SetTimeQueued is called exactly once, by Add.
	SetTimeQueued(t time.Time)
}

// TaskFunc is the function executed for a Task.
type TaskFunc func(ctx context.Context) error

// Task is a general purpose WorkItem.
//
// Name is used for diagnostics only. Retry, when set, overrides the
// pool's default retry policy for this task.
type Task struct {
	Name   string
	System bool
	Fn     TaskFunc
	Retry  *RetryPolicy

	queuedAt time.Time
}

// NewTask returns an application task.
func NewTask(name string, fn TaskFunc) *Task {
	return &Task{Name: name, Fn: fn}
}

// NewSystemTask returns a task routed to the system lane.
func NewSystemTask(name string, fn TaskFunc) *Task {
	return &Task{Name: name, System: true, Fn: fn}
}

func (t *Task) Execute(ctx context.Context) error {
	if t.Fn == nil {
		return ErrNilFunc
	}
	return t.Fn(ctx)
}

func (t *Task) IsSystem() bool             { return t.System }
func (t *Task) TimeQueued() time.Time      { return t.queuedAt }
func (t *Task) SetTimeQueued(at time.Time) { t.queuedAt = at }

func (t *Task) String() string {
	kind := "app"
	if t.System {
		kind = "system"
	}
	if t.queuedAt.IsZero() {
		return fmt.Sprintf("task %q (%s)", t.Name, kind)
	}
	return fmt.Sprintf("task %q (%s) queued at %s", t.Name, kind, t.queuedAt.Format(time.RFC3339Nano))
}

// retryOverrider is implemented by items that carry their own retry policy.
type retryOverrider interface {
	RetryPolicy() *RetryPolicy
}

// RetryPolicy returns the per-task override, or nil.
func (t *Task) RetryPolicy() *RetryPolicy { return t.Retry }
