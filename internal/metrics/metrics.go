// Package metrics exposes optimizer and preview counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixelmorph.ai/internal/sim/drawing"
)

const namespace = "pixelmorph"

// Metrics implements drawing.BatchLogger and the supervisor's run recorder so
// it can sit next to the file and sqlite sinks.
type Metrics struct {
	gatherer prometheus.Gatherer

	batches       prometheus.Counter
	swaps         prometheus.Counter
	batchDuration prometheus.Histogram
	cost          prometheus.Gauge
	generation    prometheus.Gauge
	runsStarted   prometheus.Counter
	runsEnded     *prometheus.CounterVec
	staleDropped  prometheus.Counter
	subscribers   prometheus.Gauge
	slowDrops     prometheus.Counter
}

// New registers every collector on reg. A nil reg gets a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "batches_total",
			Help:      "Completed optimizer batches.",
		}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "swaps_total",
			Help:      "Accepted pixel swaps.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms .. ~2.5s
		}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "cost",
			Help:      "Total cached cost after the latest batch.",
		}),
		generation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "generation",
			Help:      "Generation of the most recently started run.",
		}),
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "runs_started_total",
			Help:      "Worker launches.",
		}),
		runsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimizer",
			Name:      "runs_ended_total",
			Help:      "Worker exits by reason.",
		}, []string{"reason"}),
		staleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "stale_messages_dropped_total",
			Help:      "Progress messages discarded because their generation was superseded.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "subscribers",
			Help:      "Connected preview subscribers.",
		}),
		slowDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "subscriber_drops_total",
			Help:      "Frames replaced in a slow subscriber's queue.",
		}),
	}
	reg.MustRegister(
		m.batches, m.swaps, m.batchDuration, m.cost, m.generation,
		m.runsStarted, m.runsEnded, m.staleDropped, m.subscribers, m.slowDrops,
	)
	return m
}

func (m *Metrics) WriteBatch(e drawing.BatchLogEntry) error {
	m.batches.Inc()
	m.swaps.Add(float64(e.Swaps))
	m.batchDuration.Observe(e.DurationMS / 1000)
	m.cost.Set(float64(e.Cost))
	return nil
}

func (m *Metrics) RecordRun(info drawing.RunInfo) error {
	if info.EndedAt.IsZero() {
		m.runsStarted.Inc()
		m.generation.Set(float64(info.Generation))
		return nil
	}
	m.runsEnded.WithLabelValues(info.Reason).Inc()
	return nil
}

func (m *Metrics) StaleDropped()        { m.staleDropped.Inc() }
func (m *Metrics) SubscriberDropped()   { m.slowDrops.Inc() }
func (m *Metrics) SetSubscribers(n int) { m.subscribers.Set(float64(n)) }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
