package workqueue

import (
	"runtime"
	"time"
)

// DefaultPollTimeout bounds a single Get/GetSystem wait inside a worker.
const DefaultPollTimeout = 100 * time.Millisecond

// PoolOptions configure a Pool.
//
// All zero values are replaced with sensible defaults in FillDefaults.
type PoolOptions struct {
	// Workers is the number of ordinary workers. They dequeue with Get
	// and therefore serve both lanes, system first.
	Workers int

	// SystemWorkers is the number of workers reserved for system work.
	// They dequeue with GetSystem only, so runtime-internal items make
	// progress even when application work saturates the main lane.
	SystemWorkers int

	// PollTimeout bounds each wait, so workers notice shutdown.
	PollTimeout time.Duration

	// Retry is the default policy for failing items.
	Retry RetryPolicy

	// PinWorkers locks each worker to an OS thread pinned to one CPU (Linux only).
	PinWorkers bool

	// StrictPinning makes a pinning failure fatal: the worker exits with
	// the error and the remaining workers are cancelled. Otherwise the
	// failure is reported and the worker runs unpinned.
	StrictPinning bool
}

func (o *PoolOptions) FillDefaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.SystemWorkers < 0 {
		o.SystemWorkers = 0
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	o.Retry.fillDefaults()
}
