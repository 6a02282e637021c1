// Command wqsoak drives a PriorityWorkQueue with paced producers and a
// worker pool, then prints queue statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	wq "github.com/azargarov/workqueue"
)

type soakConfig struct {
	producers     int
	rate          float64
	systemEvery   int
	duration      time.Duration
	workers       int
	systemWorkers int
	work          time.Duration
	noPriority    bool
	pin           bool
	dump          bool
	dev           bool
}

func main() {
	var cfg soakConfig

	rootCmd := &cobra.Command{
		Use:   "wqsoak",
		Short: "Soak test the priority work queue",
		Long:  "wqsoak runs paced producers against a worker pool and reports lane statistics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := rootCmd.Flags()
	f.IntVar(&cfg.producers, "producers", 4, "number of producer goroutines")
	f.Float64Var(&cfg.rate, "rate", 1000, "items per second per producer")
	f.IntVar(&cfg.systemEvery, "system-every", 10, "every n-th item is system work (0 disables)")
	f.DurationVar(&cfg.duration, "duration", 10*time.Second, "how long producers run")
	f.IntVar(&cfg.workers, "workers", 0, "ordinary workers (0 = GOMAXPROCS)")
	f.IntVar(&cfg.systemWorkers, "system-workers", 1, "workers reserved for system work")
	f.DurationVar(&cfg.work, "work", 50*time.Microsecond, "simulated execution time per item")
	f.BoolVar(&cfg.noPriority, "no-priority", false, "disable system prioritization")
	f.BoolVar(&cfg.pin, "pin", false, "pin workers to CPUs (linux)")
	f.BoolVar(&cfg.dump, "dump", false, "print queue contents when producers stop")
	f.BoolVar(&cfg.dev, "dev", false, "development logging")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg soakConfig) error {
	logger, err := newLogger(cfg.dev)
	if err != nil {
		return fmt.Errorf("wqsoak: logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	stats := wq.NewAtomicStats()
	q := wq.New(wq.Options{
		PrioritizeSystemWork: !cfg.noPriority,
		CollectStats:         true,
		Stats:                stats,
		Logger:               logger,
	})

	var executed, failed atomic.Uint64
	var latency atomic.Int64
	pool := wq.NewPool(q, wq.PoolOptions{
		Workers:       cfg.workers,
		SystemWorkers: cfg.systemWorkers,
		PinWorkers:    cfg.pin,
	})
	pool.OnJobError = func(error) { failed.Add(1) }
	pool.OnInternalError = func(err error) { logger.Warn("pool internal error", zap.Error(err)) }

	if err := pool.Start(ctx); err != nil {
		return err
	}

	prodCtx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	var wg sync.WaitGroup
	for p := range cfg.producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			lim := rate.NewLimiter(rate.Limit(cfg.rate), 1)
			for n := 0; ; n++ {
				if err := lim.Wait(prodCtx); err != nil {
					return
				}
				system := cfg.systemEvery > 0 && n%cfg.systemEvery == 0
				t := &wq.Task{
					Name:   fmt.Sprintf("p%d-%d", p, n),
					System: system,
				}
				t.Fn = func(context.Context) error {
					latency.Add(int64(time.Since(t.TimeQueued())))
					if cfg.work > 0 {
						time.Sleep(cfg.work)
					}
					executed.Add(1)
					return nil
				}
				_ = pool.Submit(t)
			}
		}(p)
	}
	wg.Wait()

	if cfg.dump {
		fmt.Print(q.DumpStatus())
	}
	pool.DrainApplication()
	logger.Info("producers stopped, draining", zap.Int("queued", q.Length()))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}

	n := executed.Load()
	var avg time.Duration
	if n > 0 {
		avg = time.Duration(latency.Load() / int64(n))
	}
	fmt.Printf("run %s: executed=%d failed=%d avg_queue_latency=%s\n", runID, n, failed.Load(), avg)
	fmt.Println(stats)
	return nil
}
