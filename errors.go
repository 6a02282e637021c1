package workqueue

import "errors"

var (
	// ErrPoolClosed is returned when submitting to a pool that is shutting down.
	ErrPoolClosed = errors.New("workqueue: pool closed")

	// ErrPoolStarted is returned by Start on a pool that already runs.
	ErrPoolStarted = errors.New("workqueue: pool already started")

	// ErrNilItem is returned when submitting a nil work item.
	ErrNilItem = errors.New("workqueue: nil work item")

	// ErrNilFunc is returned when a Task has a nil Fn.
	ErrNilFunc = errors.New("workqueue: task func is nil")

	// ErrPinUnsupported is returned by PinToCPU on platforms without affinity support.
	ErrPinUnsupported = errors.New("workqueue: cpu pinning not supported on this platform")
)
