package workqueue_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	wq "github.com/azargarov/workqueue"
)

func newTestQueue(t testing.TB, opts wq.Options) *wq.PriorityWorkQueue {
	t.Helper()

	q := wq.New(opts)
	t.Cleanup(q.Dispose)
	return q
}

func newDefaultQueue(t testing.TB) *wq.PriorityWorkQueue {
	t.Helper()
	return newTestQueue(t, wq.DefaultOptions())
}

func appTask(name string) *wq.Task {
	return wq.NewTask(name, func(context.Context) error { return nil })
}

func systemTask(name string) *wq.Task {
	return wq.NewSystemTask(name, func(context.Context) error { return nil })
}

type getResult struct {
	item wq.WorkItem
	ok   bool
}

// getAsync runs get in a goroutine and delivers its result.
func getAsync(ctx context.Context, get func(context.Context, time.Duration) (wq.WorkItem, bool), timeout time.Duration) <-chan getResult {
	ch := make(chan getResult, 1)
	go func() {
		item, ok := get(ctx, timeout)
		ch <- getResult{item, ok}
	}()
	return ch
}

func waitResult(t *testing.T, ch <-chan getResult, timeout time.Duration) getResult {
	t.Helper()

	select {
	case r := <-ch:
		return r
	case <-time.After(timeout):
		t.Fatal("blocked Get did not return")
		return getResult{}
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not satisfied before timeout")
}
