package workqueue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	lg "github.com/Andrej220/go-utils/zlog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Pool runs workers over a PriorityWorkQueue.
//
// Ordinary workers call Get, reserved system workers call GetSystem.
// Shutdown follows the queue's lifecycle: adds are cut off, workers
// drain what is queued and exit, then the queue is disposed.
type Pool struct {
	q    *PriorityWorkQueue
	opts PoolOptions

	// OnJobError receives errors returned by items after their last
	// attempt, and recovered panics.
	OnJobError func(error)

	// OnInternalError receives failures of the pool itself, such as
	// CPU pinning errors.
	OnInternalError func(error)

	activeWorkers atomic.Int32
	executed      atomic.Uint64
	appClosed     atomic.Bool
	closed        atomic.Bool

	// pin is PinToCPU, replaced in tests.
	pin func(cpu int) error

	mu      sync.Mutex
	started bool
	errs    error
	done    chan struct{}
	waitErr error
}

// NewPool creates a pool over q. Workers are not started until Start.
func NewPool(q *PriorityWorkQueue, opts PoolOptions) *Pool {
	opts.FillDefaults()
	return &Pool{
		q:    q,
		opts: opts,
		pin:  PinToCPU,
		done: make(chan struct{}),
	}
}

// Start launches the workers. Cancelling ctx stops them without
// draining the queue. A worker that fails with StrictPinning set
// cancels the others; its error is returned by Shutdown.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrPoolStarted
	}
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.started = true

	g, gctx := errgroup.WithContext(ctx)
	id := 0
	for range p.opts.SystemWorkers {
		wid := id
		g.Go(func() error { return p.worker(gctx, wid, true) })
		id++
	}
	for range p.opts.Workers {
		wid := id
		g.Go(func() error { return p.worker(gctx, wid, false) })
		id++
	}

	go func() {
		err := g.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	lg.FromContext(ctx).Info("pool started",
		lg.Int("workers", p.opts.Workers),
		lg.Int("system_workers", p.opts.SystemWorkers),
	)
	return nil
}

// Submit enqueues item. Application items are refused once
// DrainApplication ran, all items once Shutdown ran.
func (p *Pool) Submit(item WorkItem) error {
	if item == nil {
		return ErrNilItem
	}
	if p.closed.Load() || (p.appClosed.Load() && !item.IsSystem()) {
		return ErrPoolClosed
	}
	p.q.Add(item)
	return nil
}

// DrainApplication is the first shutdown phase: application items are
// refused while system items are still accepted. Workers keep draining
// both lanes. Idempotent.
func (p *Pool) DrainApplication() {
	if p.appClosed.CompareAndSwap(false, true) {
		p.q.RunDownApplication()
	}
}

// Shutdown stops accepting items, lets workers drain the queue and
// disposes it. It runs DrainApplication first when that has not
// happened yet. If ctx expires first, ctx.Err() is returned and workers
// keep draining; Shutdown may be called again.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.DrainApplication()
	p.closed.Store(true)
	p.q.RunDown()

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if started {
		select {
		case <-p.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.q.Dispose()

	p.mu.Lock()
	defer p.mu.Unlock()
	return multierr.Append(p.waitErr, p.errs)
}

// Stop is a blocking Shutdown.
func (p *Pool) Stop() { _ = p.Shutdown(context.Background()) }

func (p *Pool) worker(ctx context.Context, id int, system bool) error {
	if p.opts.PinWorkers {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		cpu := id % runtime.NumCPU()
		if err := p.pin(cpu); err != nil {
			err = fmt.Errorf("workqueue: worker %d: pin to cpu %d: %w", id, cpu, err)
			if p.opts.StrictPinning {
				p.reportInternalError(err)
				return err
			}
			p.internalError(err)
		}
	}

	get, drained := p.q.Get, p.q.IsCompleted
	if system {
		get, drained = p.q.GetSystem, p.q.system.isCompleted
	}

	for {
		item, ok := get(ctx, p.opts.PollTimeout)
		if !ok {
			if ctx.Err() != nil || drained() {
				return nil
			}
			continue
		}
		p.run(ctx, item)
	}
}

func (p *Pool) run(ctx context.Context, item WorkItem) {
	p.activeWorkers.Add(1)
	defer p.activeWorkers.Add(-1)
	defer p.executed.Add(1)
	defer func() {
		if r := recover(); r != nil {
			lg.FromContext(ctx).Error("work item panicked",
				lg.String("item", item.String()),
				lg.Any("panic", r),
			)
			p.reportJobError(fmt.Errorf("workqueue: %s panicked: %v", item, r))
		}
	}()
	p.execute(ctx, item)
}

func (p *Pool) execute(ctx context.Context, item WorkItem) {
	err := item.Execute(ctx)
	if err == nil {
		return
	}

	pol := p.opts.Retry
	if o, ok := item.(retryOverrider); ok {
		pol = pol.merge(o.RetryPolicy())
	}
	p.retry(ctx, item, pol, err)
}

// retry re-executes item after a failed first attempt.
func (p *Pool) retry(ctx context.Context, item WorkItem, pol RetryPolicy, err error) {
	logger := lg.FromContext(ctx).With(lg.String("item", item.String()))
	bo := boff.New(pol.Initial, pol.Max, time.Now().UnixNano())

	for attempt := 1; ; attempt++ {
		if attempt >= pol.Attempts {
			logger.Error("work item failed", lg.Int("attempt", attempt), lg.Any("error", err))
			p.reportJobError(fmt.Errorf("workqueue: %s: %w", item, err))
			return
		}

		delay := bo.Next()
		logger.Warn("work item attempt failed; backing off",
			lg.Int("attempt", attempt),
			lg.String("sleep", delay.String()),
			lg.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("work item canceled", lg.Any("reason", ctx.Err()))
			p.reportJobError(fmt.Errorf("workqueue: %s: %w", item, ctx.Err()))
			return
		}

		if err = item.Execute(ctx); err == nil {
			return
		}
	}
}

func (p *Pool) internalError(err error) {
	p.mu.Lock()
	p.errs = multierr.Append(p.errs, err)
	p.mu.Unlock()
	p.reportInternalError(err)
}

// reportInternalError reports a failure of the pool itself.
// If no handler is registered, the error is only aggregated for Shutdown.
func (p *Pool) reportInternalError(err error) {
	if p.OnInternalError != nil {
		p.OnInternalError(err)
	}
}

// reportJobError reports an error returned by an item or produced by
// panic recovery. Job errors do not stop the worker.
func (p *Pool) reportJobError(err error) {
	if p.OnJobError != nil {
		p.OnJobError(err)
	}
}

// Done is closed once every worker launched by Start has exited.
func (p *Pool) Done() <-chan struct{} { return p.done }

func (p *Pool) ActiveWorkers() int32 { return p.activeWorkers.Load() }
func (p *Pool) Executed() uint64     { return p.executed.Load() }
func (p *Pool) QueueLength() int     { return p.q.Length() }
