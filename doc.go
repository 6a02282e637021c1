// Package workqueue provides the dispatch queue of an actor-runtime
// scheduler: a two-lane priority work queue between producers and a
// pool of workers.
//
// # Lanes
//
// The queue holds a system lane for runtime-internal work (heartbeats,
// membership, cleanup) and a main lane for application work. Add routes
// an item by WorkItem.IsSystem and stamps its enqueue time.
//
// A lane is an unordered multi-producer/multi-consumer container. It is
// split into bounded shards; producers spread items round-robin and a
// consumer takes the newest item of a random shard, falling back to a
// per-lane overflow queue and then stealing the oldest item of another
// shard. Retrieval order within a lane is unspecified, and in general
// neither FIFO nor LIFO.
//
// # Dequeue
//
// Get waits on both lanes and always probes the system lane first, so
// system work wins whenever both lanes have ready items. Under
// sustained system load the main lane can starve; this is accepted.
// GetSystem waits on the system lane only and is meant for workers
// reserved for system work.
//
// Both accept a timeout and a context. Timeout, cancellation and
// shutdown with empty lanes all yield the same result: no item, no
// error.
//
// # Shutdown
//
//	q.RunDownApplication() // application adds are dropped, system still accepted
//	q.RunDown()            // all adds dropped, queued items still drain
//	q.Dispose()            // after workers have stopped
//
// Adds racing with shutdown are dropped silently.
//
// # Statistics
//
// With Options.CollectStats the queue reports enqueue depth per lane and
// global enqueue/dequeue counts to a StatsSink. AtomicStats keeps them
// in process; OTelStats records OpenTelemetry instruments. With
// statistics off the queue does not call into a sink at all.
//
// # Pool
//
// Pool is a reference worker pool driving the queue: ordinary workers
// call Get, reserved system workers call GetSystem. It recovers panics,
// retries failing items with exponential backoff and can pin workers to
// CPUs on Linux. DrainApplication and Shutdown map onto the queue's two
// shutdown phases.
package workqueue
