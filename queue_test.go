package workqueue_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	wq "github.com/azargarov/workqueue"
)

// -----------------------------------------------------------------------------
// Options defaults
// -----------------------------------------------------------------------------

func TestDefaultOptions(t *testing.T) {
	o := wq.DefaultOptions()

	if !o.PrioritizeSystemWork {
		t.Fatal("expected system prioritization on by default")
	}
	if o.CollectStats || o.Stats != nil {
		t.Fatal("expected statistics off by default")
	}
	if o.Shards <= 0 || o.Logger == nil {
		t.Fatal("expected Shards and Logger to be set")
	}
}

func TestFillDefaults_CollectStatsCreatesSink(t *testing.T) {
	o := wq.Options{CollectStats: true}
	o.FillDefaults()

	if _, ok := o.Stats.(*wq.AtomicStats); !ok {
		t.Fatalf("Stats = %T; want *AtomicStats", o.Stats)
	}
}

// -----------------------------------------------------------------------------
// Add / Get
// -----------------------------------------------------------------------------

func TestAdd_StampsTimeQueued(t *testing.T) {
	q := newDefaultQueue(t)
	task := appTask("a")

	before := time.Now()
	q.Add(task)
	after := time.Now()

	at := task.TimeQueued()
	if at.Before(before) || at.After(after) {
		t.Fatalf("TimeQueued = %v; want within [%v, %v]", at, before, after)
	}
}

func TestAdd_NilIgnored(t *testing.T) {
	q := newDefaultQueue(t)
	q.Add(nil)

	if got := q.Length(); got != 0 {
		t.Fatalf("Length = %d; want 0", got)
	}
}

func TestGet_SystemThenMainThenTimeout(t *testing.T) {
	orders := []struct {
		name        string
		systemFirst bool
	}{
		{"SystemAddedFirst", true},
		{"MainAddedFirst", false},
	}

	for _, tc := range orders {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			q := newDefaultQueue(t)
			a, b := systemTask("A"), appTask("B")
			if tc.systemFirst {
				q.Add(a)
				q.Add(b)
			} else {
				q.Add(b)
				q.Add(a)
			}

			ctx := context.Background()
			if got, ok := q.Get(ctx, time.Second); !ok || got != a {
				t.Fatalf("first Get = %v, %t; want A", got, ok)
			}
			if got, ok := q.Get(ctx, time.Second); !ok || got != b {
				t.Fatalf("second Get = %v, %t; want B", got, ok)
			}

			start := time.Now()
			got, ok := q.Get(ctx, 50*time.Millisecond)
			elapsed := time.Since(start)
			if ok || got != nil {
				t.Fatalf("third Get = %v; want no item", got)
			}
			if elapsed < 45*time.Millisecond {
				t.Fatalf("third Get returned after %v; want ~50ms", elapsed)
			}
		})
	}
}

func TestGet_PrefersSystemWhenBothReady(t *testing.T) {
	q := newDefaultQueue(t)

	const n = 100
	for i := range n {
		q.Add(appTask(fmt.Sprintf("app-%d", i)))
		q.Add(systemTask(fmt.Sprintf("sys-%d", i)))
	}

	ctx := context.Background()
	for i := range n {
		item, ok := q.Get(ctx, 0)
		if !ok {
			t.Fatalf("Get %d: no item", i)
		}
		if !item.IsSystem() {
			t.Fatalf("Get %d returned %v while system work was ready", i, item)
		}
	}
	for i := range n {
		item, ok := q.Get(ctx, 0)
		if !ok || item.IsSystem() {
			t.Fatalf("Get %d after system drained = %v, %t; want app item", i, item, ok)
		}
	}
}

func TestGet_OrderIsNotFIFO(t *testing.T) {
	opts := wq.DefaultOptions()
	opts.Shards = 1
	q := newTestQueue(t, opts)
	ctx := context.Background()

	const n = 20
	for i := range n {
		q.Add(appTask(strconv.Itoa(i)))
	}

	var order []string
	for range n {
		item, ok := q.Get(ctx, 0)
		if !ok {
			t.Fatal("expected an item")
		}
		order = append(order, item.(*wq.Task).Name)
	}

	// a single shard hands out its newest item first
	if order[0] != strconv.Itoa(n-1) || order[n-1] != "0" {
		t.Fatalf("order = %v; want newest first", order)
	}
}

func TestGetSystem_NeverReturnsApplicationWork(t *testing.T) {
	q := newDefaultQueue(t)
	ctx := context.Background()

	for i := range 10 {
		q.Add(appTask(fmt.Sprintf("app-%d", i)))
	}
	if item, ok := q.GetSystem(ctx, 20*time.Millisecond); ok {
		t.Fatalf("GetSystem returned %v from main lane", item)
	}

	sys := systemTask("heartbeat")
	q.Add(sys)
	item, ok := q.GetSystem(ctx, time.Second)
	if !ok || item != sys {
		t.Fatalf("GetSystem = %v, %t; want heartbeat", item, ok)
	}
	if got := q.Length(); got != 10 {
		t.Fatalf("Length = %d; want 10 application items left", got)
	}
}

func TestGet_ZeroTimeoutDoesNotBlock(t *testing.T) {
	q := newDefaultQueue(t)

	start := time.Now()
	item, ok := q.Get(context.Background(), 0)
	if ok || item != nil {
		t.Fatalf("Get on empty queue = %v; want no item", item)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Fatalf("Get(0) took %v", elapsed)
	}
}

func TestLength(t *testing.T) {
	q := newDefaultQueue(t)

	q.Add(appTask("a"))
	q.Add(appTask("b"))
	q.Add(systemTask("c"))
	if got := q.Length(); got != 3 {
		t.Fatalf("Length = %d; want 3", got)
	}

	if _, ok := q.Get(context.Background(), 0); !ok {
		t.Fatal("expected an item")
	}
	if got := q.Length(); got != 2 {
		t.Fatalf("Length = %d; want 2", got)
	}
}

// -----------------------------------------------------------------------------
// Blocking, cancellation
// -----------------------------------------------------------------------------

func TestGet_BlockedWakes(t *testing.T) {
	tests := []struct {
		name   string
		system bool
		item   func() *wq.Task
	}{
		{"GetOnMainAdd", false, func() *wq.Task { return appTask("late-app") }},
		{"GetOnSystemAdd", false, func() *wq.Task { return systemTask("late-sys") }},
		{"GetSystemOnSystemAdd", true, func() *wq.Task { return systemTask("late-sys") }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			q := newDefaultQueue(t)
			get := q.Get
			if tc.system {
				get = q.GetSystem
			}

			ch := getAsync(context.Background(), get, 5*time.Second)
			time.Sleep(20 * time.Millisecond)

			task := tc.item()
			q.Add(task)

			r := waitResult(t, ch, time.Second)
			if !r.ok || r.item != task {
				t.Fatalf("blocked Get = %v, %t; want %v", r.item, r.ok, task)
			}
		})
	}
}

func TestGet_BlockedReturnsOnRunDown(t *testing.T) {
	q := newDefaultQueue(t)

	ch := getAsync(context.Background(), q.Get, -1)
	sys := getAsync(context.Background(), q.GetSystem, -1)
	time.Sleep(20 * time.Millisecond)

	q.RunDown()

	if r := waitResult(t, ch, time.Second); r.ok {
		t.Fatalf("Get after RunDown = %v; want no item", r.item)
	}
	if r := waitResult(t, sys, time.Second); r.ok {
		t.Fatalf("GetSystem after RunDown = %v; want no item", r.item)
	}
}

func TestGet_Cancellation(t *testing.T) {
	q := newDefaultQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch := getAsync(ctx, q.Get, 10*time.Second)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	cancel()

	if r := waitResult(t, ch, time.Second); r.ok {
		t.Fatalf("canceled Get = %v; want no item", r.item)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("canceled Get returned after %v", elapsed)
	}
}

func TestGet_CanceledContextStillTakesReadyItem(t *testing.T) {
	q := newDefaultQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := q.Get(ctx, time.Second); ok {
		t.Fatal("expected no item on empty queue with canceled context")
	}

	task := appTask("ready")
	q.Add(task)
	if item, ok := q.Get(ctx, time.Second); !ok || item != task {
		t.Fatalf("Get = %v, %t; want ready item", item, ok)
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func TestRunDownApplication(t *testing.T) {
	q := newDefaultQueue(t)
	ctx := context.Background()

	q.RunDownApplication()

	c := appTask("C")
	q.Add(c)
	if got := q.Length(); got != 0 {
		t.Fatalf("Length after dropped add = %d; want 0", got)
	}

	d := systemTask("D")
	q.Add(d)
	item, ok := q.GetSystem(ctx, time.Second)
	if !ok || item != d {
		t.Fatalf("GetSystem = %v, %t; want D", item, ok)
	}

	if item, ok := q.Get(ctx, 20*time.Millisecond); ok {
		t.Fatalf("Get yielded %v; C must have been dropped", item)
	}
	if q.IsCompleted() {
		t.Fatal("queue must not be completed while the system lane is open")
	}

	// idempotent
	q.RunDownApplication()
}

func TestRunDown_DrainsThenReportsAbsence(t *testing.T) {
	q := newDefaultQueue(t)
	ctx := context.Background()

	queued := map[wq.WorkItem]bool{}
	for _, task := range []*wq.Task{appTask("a"), appTask("b"), systemTask("s")} {
		q.Add(task)
		queued[task] = false
	}

	q.RunDown()
	q.Add(appTask("late-app"))
	q.Add(systemTask("late-sys"))

	if got := q.Length(); got != 3 {
		t.Fatalf("Length after RunDown = %d; want 3", got)
	}
	if q.IsCompleted() {
		t.Fatal("queue completed before drain")
	}

	for range 3 {
		item, ok := q.Get(ctx, time.Second)
		if !ok {
			t.Fatal("queued item not retrievable after RunDown")
		}
		seen, known := queued[item]
		if !known || seen {
			t.Fatalf("unexpected item %v", item)
		}
		queued[item] = true
	}

	start := time.Now()
	if item, ok := q.Get(ctx, 5*time.Second); ok {
		t.Fatalf("Get after drain = %v; want no item", item)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Get on completed queue waited %v", elapsed)
	}
	if _, ok := q.GetSystem(ctx, -1); ok {
		t.Fatal("GetSystem after drain returned an item")
	}
	if !q.IsCompleted() {
		t.Fatal("expected IsCompleted after drain")
	}

	// idempotent
	q.RunDown()
}

func TestDispose(t *testing.T) {
	q := wq.New(wq.DefaultOptions())
	q.Add(appTask("left-behind"))

	q.Dispose()
	q.Dispose()

	q.Add(appTask("after-dispose"))
	if got := q.Length(); got != 0 {
		t.Fatalf("Length after Dispose = %d; want 0", got)
	}
	if _, ok := q.Get(context.Background(), 10*time.Millisecond); ok {
		t.Fatal("Get after Dispose returned an item")
	}
}

func TestNoPrioritization(t *testing.T) {
	opts := wq.DefaultOptions()
	opts.PrioritizeSystemWork = false
	q := newTestQueue(t, opts)
	ctx := context.Background()

	a := appTask("A")
	s := systemTask("S")
	q.Add(a)
	q.Add(s)

	if item, ok := q.GetSystem(ctx, 0); ok {
		t.Fatalf("GetSystem = %v; system lane must stay empty without prioritization", item)
	}

	got := map[wq.WorkItem]bool{}
	for range 2 {
		item, ok := q.Get(ctx, time.Second)
		if !ok {
			t.Fatal("expected item from main lane")
		}
		got[item] = true
	}
	if !got[a] || !got[s] {
		t.Fatalf("Get returned %v; want both items", got)
	}
}

// -----------------------------------------------------------------------------
// Diagnostics
// -----------------------------------------------------------------------------

func TestDumpStatus(t *testing.T) {
	q := newDefaultQueue(t)

	q.Add(appTask("app-1"))
	q.Add(systemTask("heartbeat"))
	q.Add(appTask("app-2"))

	dump := q.DumpStatus()

	sysAt := strings.Index(dump, "System Queue:")
	hbAt := strings.Index(dump, `"heartbeat"`)
	mainAt := strings.Index(dump, "Main Queue:")
	app1At := strings.Index(dump, `"app-1"`)
	app2At := strings.Index(dump, `"app-2"`)

	if sysAt != 0 {
		t.Fatalf("dump must start with the system lane:\n%s", dump)
	}
	if !(sysAt < hbAt && hbAt < mainAt && mainAt < app1At && mainAt < app2At) {
		t.Fatalf("unexpected dump layout:\n%s", dump)
	}
	if got := strings.Count(dump, "\n"); got != 5 {
		t.Fatalf("dump has %d lines; want 5:\n%s", got, dump)
	}
	if got := q.Length(); got != 3 {
		t.Fatalf("DumpStatus mutated the queue: Length = %d", got)
	}
}

func TestDumpStatus_Empty(t *testing.T) {
	q := newDefaultQueue(t)

	if got, want := q.DumpStatus(), "System Queue:\nMain Queue:\n"; got != want {
		t.Fatalf("DumpStatus = %q; want %q", got, want)
	}
}

// -----------------------------------------------------------------------------
// Concurrency
// -----------------------------------------------------------------------------

func TestConcurrent_NoLossNoDuplication(t *testing.T) {
	opts := wq.DefaultOptions()
	opts.Shards = 4
	q := newTestQueue(t, opts)

	const producers = 8
	const perProducer = 2000
	const consumers = 8
	const total = producers * perProducer

	var (
		mu   sync.Mutex
		seen = make(map[string]int, total)
		got  atomic.Int64
	)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				name := fmt.Sprintf("%d-%d", p, i)
				if i%5 == 0 {
					q.Add(systemTask(name))
				} else {
					q.Add(appTask(name))
				}
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var cwg sync.WaitGroup
	for c := range consumers {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			get := q.Get
			if c == 0 {
				get = q.GetSystem
			}
			for got.Load() < total && ctx.Err() == nil {
				item, ok := get(ctx, 10*time.Millisecond)
				if !ok {
					continue
				}
				mu.Lock()
				seen[item.(*wq.Task).Name]++
				mu.Unlock()
				got.Add(1)
			}
		}()
	}

	wg.Wait()
	cwg.Wait()

	if ctx.Err() != nil {
		t.Fatalf("consumers timed out with %d/%d items", got.Load(), total)
	}
	if len(seen) != total {
		t.Fatalf("received %d distinct items; want %d", len(seen), total)
	}
	for name, n := range seen {
		if n != 1 {
			t.Fatalf("item %s received %d times", name, n)
		}
	}
	if l := q.Length(); l != 0 {
		t.Fatalf("Length after drain = %d; want 0", l)
	}
}
