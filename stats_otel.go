package workqueue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for queue metrics.
const meterName = "github.com/azargarov/workqueue"

// OTelStats is a StatsSink that records into OpenTelemetry instruments.
//
// Instruments:
//   - workqueue.enqueued (Int64Counter): accepted adds
//   - workqueue.dequeued (Int64Counter): items handed to consumers
//   - workqueue.lane.enqueued (Int64Counter): accepted adds, attribute lane
//   - workqueue.lane.depth (Int64Histogram): lane depth observed on add, attribute lane
//   - workqueue.lane.active (Int64UpDownCounter): started minus stopped trackers, attribute lane
type OTelStats struct {
	enqueued     metric.Int64Counter
	dequeued     metric.Int64Counter
	laneEnqueued metric.Int64Counter
	depth        metric.Int64Histogram
	active       metric.Int64UpDownCounter
}

// NewOTelStats uses the global MeterProvider. With no provider
// configured the instruments are noops.
func NewOTelStats() *OTelStats {
	return NewOTelStatsWithMeter(otel.Meter(meterName))
}

// NewOTelStatsWithMeter builds the sink on the given meter.
func NewOTelStatsWithMeter(meter metric.Meter) *OTelStats {
	// On error the API returns noop instruments.
	enqueued, _ := meter.Int64Counter(
		"workqueue.enqueued",
		metric.WithDescription("Work items accepted by the queue"),
		metric.WithUnit("{item}"),
	)
	dequeued, _ := meter.Int64Counter(
		"workqueue.dequeued",
		metric.WithDescription("Work items handed to consumers"),
		metric.WithUnit("{item}"),
	)
	laneEnqueued, _ := meter.Int64Counter(
		"workqueue.lane.enqueued",
		metric.WithDescription("Work items accepted per lane"),
		metric.WithUnit("{item}"),
	)
	depth, _ := meter.Int64Histogram(
		"workqueue.lane.depth",
		metric.WithDescription("Lane depth observed when an item is added"),
		metric.WithUnit("{item}"),
	)
	active, _ := meter.Int64UpDownCounter(
		"workqueue.lane.active",
		metric.WithDescription("Lanes with a running tracker"),
	)
	return &OTelStats{
		enqueued:     enqueued,
		dequeued:     dequeued,
		laneEnqueued: laneEnqueued,
		depth:        depth,
		active:       active,
	}
}

func (s *OTelStats) Tracker(lane string) LaneTracker {
	return &otelLaneTracker{
		s:     s,
		attrs: metric.WithAttributes(attribute.String("lane", lane)),
	}
}

func (s *OTelStats) IncEnqueued() {
	s.enqueued.Add(context.Background(), 1)
}

func (s *OTelStats) IncDequeued() {
	s.dequeued.Add(context.Background(), 1)
}

type otelLaneTracker struct {
	s     *OTelStats
	attrs metric.MeasurementOption
}

func (t *otelLaneTracker) OnEnqueue(n int, depth int64) {
	ctx := context.Background()
	t.s.laneEnqueued.Add(ctx, int64(n), t.attrs)
	t.s.depth.Record(ctx, depth, t.attrs)
}

func (t *otelLaneTracker) Start() { t.s.active.Add(context.Background(), 1, t.attrs) }
func (t *otelLaneTracker) Stop()  { t.s.active.Add(context.Background(), -1, t.attrs) }
