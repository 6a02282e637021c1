//go:build debug

package workqueue

import (
	"fmt"
	"sync/atomic"
)

var (
	steals     atomic.Int64
	emptyScans atomic.Int64
)

// LaneStats holds lane contention counters collected in debug builds.
type LaneStats struct {
	Steals     int64
	EmptyScans int64
}

func laneStatSteal()     { steals.Add(1) }
func laneStatEmptyScan() { emptyScans.Add(1) }

func SnapshotLaneStats() LaneStats {
	return LaneStats{
		Steals:     steals.Load(),
		EmptyScans: emptyScans.Load(),
	}
}

func (s LaneStats) String() string {
	return fmt.Sprintf("steals=%d empty_scans=%d", s.Steals, s.EmptyScans)
}
