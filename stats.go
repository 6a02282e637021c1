package workqueue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// LaneTracker receives per-lane queue observations.
//
// Implementations must be safe for concurrent use.
// All methods are expected to be lightweight and non-blocking.
type LaneTracker interface {
	// OnEnqueue records n items added, with the lane depth observed
	// right after the insert.
	OnEnqueue(n int, depth int64)

	// Start is called once when the queue is constructed.
	Start()

	// Stop is called once from RunDown.
	Stop()
}

// StatsSink is the statistics backend used by the queue when
// Options.CollectStats is set.
//
// The queue does not call a sink at all when statistics are disabled,
// so there is no no-op implementation.
type StatsSink interface {
	// Tracker returns the tracker for the named lane.
	Tracker(lane string) LaneTracker

	// IncEnqueued increments the global enqueue counter.
	IncEnqueued()

	// IncDequeued increments the global dequeue counter.
	IncDequeued()
}

// AtomicStats is a lock-free StatsSink backed by atomics.
//
// Writes are optimized for hot paths.
// Reads are intended for cold-path observation.
type AtomicStats struct {
	enqueued atomic.Uint64

	_ cachePad

	dequeued atomic.Uint64

	mu    sync.Mutex
	lanes map[string]*AtomicLaneTracker
}

// NewAtomicStats returns an empty AtomicStats.
func NewAtomicStats() *AtomicStats {
	return &AtomicStats{lanes: make(map[string]*AtomicLaneTracker)}
}

// Tracker returns the tracker for lane, creating it on first use.
func (s *AtomicStats) Tracker(lane string) LaneTracker {
	return s.lane(lane)
}

func (s *AtomicStats) lane(name string) *AtomicLaneTracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lanes == nil {
		s.lanes = make(map[string]*AtomicLaneTracker)
	}
	t, ok := s.lanes[name]
	if !ok {
		t = &AtomicLaneTracker{}
		s.lanes[name] = t
	}
	return t
}

func (s *AtomicStats) IncEnqueued() { s.enqueued.Add(1) }
func (s *AtomicStats) IncDequeued() { s.dequeued.Add(1) }

// Enqueued returns the total number of accepted adds.
func (s *AtomicStats) Enqueued() uint64 { return s.enqueued.Load() }

// Dequeued returns the total number of items handed to consumers.
func (s *AtomicStats) Dequeued() uint64 { return s.dequeued.Load() }

// Lane returns a snapshot of the named lane's tracker.
func (s *AtomicStats) Lane(name string) LaneSnapshot {
	return s.lane(name).Snapshot()
}

// String renders all counters, lanes sorted by name.
func (s *AtomicStats) String() string {
	s.mu.Lock()
	names := make([]string, 0, len(s.lanes))
	for name := range s.lanes {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "enqueued=%d dequeued=%d", s.Enqueued(), s.Dequeued())
	for _, name := range names {
		fmt.Fprintf(&b, "\n  %s: %s", name, s.Lane(name))
	}
	return b.String()
}

// AtomicLaneTracker is the LaneTracker handed out by AtomicStats.
type AtomicLaneTracker struct {
	enqueued  atomic.Uint64
	lastDepth atomic.Int64
	maxDepth  atomic.Int64
	running   atomic.Bool
	stops     atomic.Int32
}

// LaneSnapshot is a copy of a lane tracker's counters.
type LaneSnapshot struct {
	Enqueued  uint64
	LastDepth int64
	MaxDepth  int64
	Running   bool
	Stops     int32
}

func (t *AtomicLaneTracker) OnEnqueue(n int, depth int64) {
	t.enqueued.Add(uint64(n))
	t.lastDepth.Store(depth)
	for {
		cur := t.maxDepth.Load()
		if depth <= cur || t.maxDepth.CompareAndSwap(cur, depth) {
			return
		}
	}
}

func (t *AtomicLaneTracker) Start() { t.running.Store(true) }

func (t *AtomicLaneTracker) Stop() {
	t.running.Store(false)
	t.stops.Add(1)
}

func (t *AtomicLaneTracker) Snapshot() LaneSnapshot {
	return LaneSnapshot{
		Enqueued:  t.enqueued.Load(),
		LastDepth: t.lastDepth.Load(),
		MaxDepth:  t.maxDepth.Load(),
		Running:   t.running.Load(),
		Stops:     t.stops.Load(),
	}
}

func (s LaneSnapshot) String() string {
	return fmt.Sprintf("enqueued=%d depth=%d max_depth=%d running=%t",
		s.Enqueued, s.LastDepth, s.MaxDepth, s.Running)
}
