package workqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Lane names used for statistics and DumpStatus.
const (
	SystemLaneName = "System"
	MainLaneName   = "Main"
)

// PriorityWorkQueue buffers work items between producers and workers.
//
// It holds two lanes. System items go to the system lane, everything
// else to the main lane. Get waits on both and always probes the system
// lane first, so system work wins whenever both lanes have ready items.
// There is no starvation protection for the main lane.
//
// Shutdown is two-phase: RunDownApplication stops application adds,
// RunDown stops all adds. Queued items stay retrievable until drained.
// Dispose releases the lanes; workers must be stopped before it.
//
// All methods are safe for concurrent use.
type PriorityWorkQueue struct {
	system *lane
	main   *lane

	// combined-wait views, in probe order
	getLanes    []*lane
	systemLanes []*lane

	prioritize bool

	// nil when statistics are disabled
	stats         StatsSink
	systemTracker LaneTracker
	mainTracker   LaneTracker

	log *zap.Logger

	runDownOnce sync.Once
	disposeOnce sync.Once
	disposed    atomic.Bool
}

// New creates a queue. Trackers are started here when opts.CollectStats is set.
func New(opts Options) *PriorityWorkQueue {
	opts.FillDefaults()

	q := &PriorityWorkQueue{
		system:     newLane(SystemLaneName, opts.Shards, opts.ShardCapacity),
		main:       newLane(MainLaneName, opts.Shards, opts.ShardCapacity),
		prioritize: opts.PrioritizeSystemWork,
		log:        opts.Logger.With(zap.String("component", "workqueue")),
	}
	q.systemLanes = []*lane{q.system}
	if q.prioritize {
		q.getLanes = []*lane{q.system, q.main}
	} else {
		q.getLanes = []*lane{q.main}
	}

	if opts.CollectStats {
		q.stats = opts.Stats
		q.systemTracker = opts.Stats.Tracker(SystemLaneName)
		q.mainTracker = opts.Stats.Tracker(MainLaneName)
		q.systemTracker.Start()
		q.mainTracker.Start()
	}
	return q
}

// Add stamps item.TimeQueued and inserts it. It never blocks.
//
// Adding to a lane that no longer accepts items is a shutdown race,
// not an error: the item is dropped.
func (q *PriorityWorkQueue) Add(item WorkItem) {
	if item == nil || q.disposed.Load() {
		return
	}
	item.SetTimeQueued(time.Now())

	l, tracker := q.main, q.mainTracker
	if q.prioritize && item.IsSystem() {
		l, tracker = q.system, q.systemTracker
	}

	depth, ok := l.push(item)
	if !ok {
		q.log.Debug("lane closed, item dropped",
			zap.String("lane", l.name),
			zap.Stringer("item", item),
		)
		return
	}
	if tracker != nil {
		tracker.OnEnqueue(1, depth)
		q.stats.IncEnqueued()
	}
}

// Get removes an item, preferring the system lane.
//
// It waits up to timeout for work. timeout == 0 only probes; a negative
// timeout waits until work arrives, both lanes complete, or ctx is done.
// The boolean is false when nothing was retrieved for any of these
// reasons.
func (q *PriorityWorkQueue) Get(ctx context.Context, timeout time.Duration) (WorkItem, bool) {
	return q.take(ctx, timeout, q.getLanes)
}

// GetSystem is Get restricted to the system lane. It never returns an
// application item.
func (q *PriorityWorkQueue) GetSystem(ctx context.Context, timeout time.Duration) (WorkItem, bool) {
	return q.take(ctx, timeout, q.systemLanes)
}

// take is the combined wait over at most two lanes. The probe order of
// lanes is the priority order.
func (q *PriorityWorkQueue) take(ctx context.Context, timeout time.Duration, lanes []*lane) (WorkItem, bool) {
	if q.disposed.Load() {
		return nil, false
	}
	if item, ok := tryTakeAny(lanes); ok {
		return q.dequeued(item)
	}
	if timeout == 0 || allCompleted(lanes) {
		return nil, false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		return nil, false
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for _, l := range lanes {
		l.waiters.Add(1)
	}
	defer func() {
		for _, l := range lanes {
			l.waiters.Add(-1)
		}
	}()

	// a nil channel never fires, covering the single-lane case
	var wake [2]<-chan struct{}
	for {
		for i, l := range lanes {
			wake[i] = l.waitChan()
		}
		if item, ok := tryTakeAny(lanes); ok {
			return q.dequeued(item)
		}
		if allCompleted(lanes) {
			return nil, false
		}

		select {
		case <-wake[0]:
		case <-wake[1]:
		case <-expired:
			return nil, false
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *PriorityWorkQueue) dequeued(item WorkItem) (WorkItem, bool) {
	if q.stats != nil {
		q.stats.IncDequeued()
	}
	return item, true
}

func tryTakeAny(lanes []*lane) (WorkItem, bool) {
	for _, l := range lanes {
		if item, ok := l.tryTake(); ok {
			return item, true
		}
	}
	return nil, false
}

func allCompleted(lanes []*lane) bool {
	for _, l := range lanes {
		if !l.isCompleted() {
			return false
		}
	}
	return true
}

// Length is the best-effort number of queued items across both lanes.
// Use it for diagnostics and back-pressure heuristics only.
func (q *PriorityWorkQueue) Length() int {
	return int(q.system.len() + q.main.len())
}

// IsCompleted reports whether both lanes stopped accepting adds and
// are empty. Workers use it to leave their loop once drained.
func (q *PriorityWorkQueue) IsCompleted() bool {
	return q.system.isCompleted() && q.main.isCompleted()
}

// RunDownApplication closes the main lane to further adds. System work
// is still accepted.
func (q *PriorityWorkQueue) RunDownApplication() {
	if q.main.complete() {
		q.log.Info("application lane closed", zap.Int64("pending", q.main.len()))
	}
}

// RunDown closes both lanes to further adds and stops the trackers.
func (q *PriorityWorkQueue) RunDown() {
	q.runDownOnce.Do(func() {
		q.system.complete()
		q.main.complete()
		if q.systemTracker != nil {
			q.systemTracker.Stop()
			q.mainTracker.Stop()
		}
		q.log.Info("queue run down",
			zap.Int64("pending_system", q.system.len()),
			zap.Int64("pending_main", q.main.len()),
		)
	})
}

// Dispose releases both lanes. It runs RunDown first when that has not
// happened yet. Items still queued are discarded. Must not be called
// while a consumer may be blocked in Get or GetSystem.
func (q *PriorityWorkQueue) Dispose() {
	q.disposeOnce.Do(func() {
		q.RunDown()
		dropped := q.Length()
		q.disposed.Store(true)
		q.system.dispose()
		q.main.dispose()
		q.log.Info("queue disposed", zap.Int("dropped", dropped))
	})
}
