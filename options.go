package workqueue

import (
	"runtime"

	"go.uber.org/zap"
)

// DefaultShardCapacity is the per-partition bound used when
// Options.ShardCapacity is not set.
const DefaultShardCapacity = 1024

// Options configure a PriorityWorkQueue.
//
// Both toggles are resolved once, at construction. Zero values other
// than the toggles are replaced with defaults in FillDefaults.
type Options struct {
	// PrioritizeSystemWork routes system items to the system lane and
	// makes Get prefer it. When false every item goes to the main lane.
	PrioritizeSystemWork bool

	// CollectStats enables per-lane trackers and global counters.
	CollectStats bool

	// Stats is the backend used when CollectStats is set.
	// Defaults to a fresh AtomicStats.
	Stats StatsSink

	// Shards is the number of partitions per lane.
	Shards int

	// ShardCapacity bounds each partition. Adds beyond it spill into a
	// per-lane overflow queue.
	ShardCapacity int

	Logger *zap.Logger
}

// DefaultOptions returns Options with system prioritization on and
// statistics off.
func DefaultOptions() Options {
	o := Options{PrioritizeSystemWork: true}
	o.FillDefaults()
	return o
}

func (o *Options) FillDefaults() {
	if o.Shards <= 0 {
		o.Shards = runtime.GOMAXPROCS(0)
	}
	if o.ShardCapacity <= 0 {
		o.ShardCapacity = DefaultShardCapacity
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.CollectStats && o.Stats == nil {
		o.Stats = NewAtomicStats()
	}
}
