package workqueue

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"golang.org/x/sys/cpu"
)

// cachePad is used to prevent false sharing between hot fields.
type cachePad = cpu.CacheLinePad

// laneShard is one partition of a lane: a bounded stack. Pushes and
// local pops work on the tail, steals take from the head.
type laneShard struct {
	mu    sync.Mutex
	items []WorkItem
	_     cachePad
}

// lane is an unordered multi-producer/multi-consumer container.
//
// Producers spread items over shards round-robin. A consumer starts at
// a random shard and takes its newest item; when that shard is empty it
// falls back to the overflow queue and then steals the oldest item of
// another shard. Shards hold at most capacity items; the rest go to
// overflow. Retrieval order is unspecified and in general not FIFO.
//
// count is incremented before an item becomes visible and decremented
// after it is removed, so it never goes negative but may briefly
// overstate the depth.
type lane struct {
	name     string
	shards   []laneShard
	capacity int

	overflowMu sync.Mutex
	overflow   *queue.Queue

	pushNext atomic.Uint32
	_        cachePad
	count    atomic.Int64

	closed atomic.Bool

	// wake protocol: waiters register in waiters, take the current
	// wake channel and re-probe before blocking. Producers broadcast
	// only when someone is registered.
	waiters atomic.Int32
	mu      sync.Mutex
	wake    chan struct{}
}

func newLane(name string, shards, capacity int) *lane {
	if shards <= 0 {
		shards = runtime.GOMAXPROCS(0)
	}
	if capacity <= 0 {
		capacity = DefaultShardCapacity
	}
	return &lane{
		name:     name,
		shards:   make([]laneShard, shards),
		capacity: capacity,
		overflow: queue.New(),
	}
}

// push inserts item. It reports false when the lane no longer accepts
// adds; the item is then dropped by the caller.
func (l *lane) push(item WorkItem) (int64, bool) {
	// count goes up before closed is checked, so a consumer that sees
	// the lane completed cannot miss an add in flight.
	depth := l.count.Add(1)
	if l.closed.Load() {
		l.undoPush()
		return 0, false
	}

	idx := int(l.pushNext.Add(1) % uint32(len(l.shards)))
	sh := &l.shards[idx]
	sh.mu.Lock()
	if len(sh.items) < l.capacity {
		sh.items = append(sh.items, item)
		sh.mu.Unlock()
	} else {
		sh.mu.Unlock()
		l.overflowMu.Lock()
		if l.overflow == nil {
			// disposed underneath us
			l.overflowMu.Unlock()
			l.undoPush()
			return 0, false
		}
		l.overflow.Add(item)
		l.overflowMu.Unlock()
	}

	if l.waiters.Load() > 0 {
		l.broadcast()
	}
	return depth, true
}

// undoPush reverts the count of a rejected add. Waiters are woken so
// they re-check completion.
func (l *lane) undoPush() {
	l.count.Add(-1)
	if l.waiters.Load() > 0 {
		l.broadcast()
	}
}

// tryTake removes some item without blocking.
func (l *lane) tryTake() (WorkItem, bool) {
	if l.count.Load() <= 0 {
		return nil, false
	}
	n := len(l.shards)
	start := rand.IntN(n)

	if item, ok := l.shards[start].popTail(); ok {
		l.count.Add(-1)
		return item, true
	}

	l.overflowMu.Lock()
	if l.overflow != nil && l.overflow.Length() > 0 {
		v := l.overflow.Remove()
		l.overflowMu.Unlock()
		l.count.Add(-1)
		return v.(WorkItem), true
	}
	l.overflowMu.Unlock()

	for i := 1; i < n; i++ {
		if item, ok := l.shards[(start+i)%n].popHead(); ok {
			l.count.Add(-1)
			laneStatSteal()
			return item, true
		}
	}
	laneStatEmptyScan()
	return nil, false
}

func (sh *laneShard) popTail() (WorkItem, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	n := len(sh.items)
	if n == 0 {
		return nil, false
	}
	item := sh.items[n-1]
	sh.items[n-1] = nil
	sh.items = sh.items[:n-1]
	return item, true
}

func (sh *laneShard) popHead() (WorkItem, bool) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if len(sh.items) == 0 {
		return nil, false
	}
	item := sh.items[0]
	sh.items[0] = nil
	sh.items = sh.items[1:]
	return item, true
}

func (l *lane) len() int64 {
	if n := l.count.Load(); n > 0 {
		return n
	}
	return 0
}

// complete stops the lane from accepting adds and wakes blocked
// consumers so they can observe completion.
func (l *lane) complete() bool {
	if !l.closed.CompareAndSwap(false, true) {
		return false
	}
	l.broadcast()
	return true
}

// isCompleted reports whether the lane is closed for adding and empty.
func (l *lane) isCompleted() bool {
	return l.closed.Load() && l.count.Load() <= 0
}

func (l *lane) waitChan() <-chan struct{} {
	l.mu.Lock()
	if l.wake == nil {
		l.wake = make(chan struct{})
	}
	ch := l.wake
	l.mu.Unlock()
	return ch
}

func (l *lane) broadcast() {
	l.mu.Lock()
	if l.wake != nil {
		close(l.wake)
		l.wake = nil
	}
	l.mu.Unlock()
}

// snapshot describes every queued item. Shards are visited one at a
// time, so the result is not a point-in-time view.
func (l *lane) snapshot() []string {
	var out []string
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		for _, item := range sh.items {
			out = append(out, item.String())
		}
		sh.mu.Unlock()
	}

	l.overflowMu.Lock()
	if l.overflow != nil {
		for j := 0; j < l.overflow.Length(); j++ {
			out = append(out, l.overflow.Get(j).(WorkItem).String())
		}
	}
	l.overflowMu.Unlock()
	return out
}

// dispose drops shard storage. Items still queued are released.
func (l *lane) dispose() {
	l.complete()
	for i := range l.shards {
		sh := &l.shards[i]
		sh.mu.Lock()
		clear(sh.items)
		sh.items = nil
		sh.mu.Unlock()
	}
	l.overflowMu.Lock()
	l.overflow = nil
	l.overflowMu.Unlock()
	l.count.Store(0)
	l.broadcast()
}
