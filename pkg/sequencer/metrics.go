package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the control loop's Prometheus collectors.
type Metrics struct {
	FramesEmitted prometheus.Counter
	SendErrors    prometheus.Counter
	TickOverruns  prometheus.Counter
	Interrupts    prometheus.Counter
	Runs          *prometheus.CounterVec
	Authority     prometheus.Gauge
	Segment       prometheus.Gauge
	TickLateness  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "armseq_frames_emitted_total",
			Help: "Command frames handed to the outbound channel.",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "armseq_send_errors_total",
			Help: "Frames the outbound channel refused.",
		}),
		TickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "armseq_tick_overruns_total",
			Help: "Times the loop fell more than one tick behind and re-anchored its schedule.",
		}),
		Interrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "armseq_interrupts_total",
			Help: "Runs cancelled before completion.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "armseq_runs_total",
			Help: "Finished program runs by outcome.",
		}, []string{"outcome"}),
		Authority: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "armseq_authority",
			Help: "Authority carried by the last emitted frame.",
		}),
		Segment: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "armseq_segment_index",
			Help: "Index of the segment being executed, -1 when idle.",
		}),
		TickLateness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "armseq_tick_lateness_seconds",
			Help:    "How late each tick started relative to its deadline.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 12), // 10us to ~20ms
		}),
	}
	m.Segment.Set(-1)

	if reg != nil {
		reg.MustRegister(
			m.FramesEmitted,
			m.SendErrors,
			m.TickOverruns,
			m.Interrupts,
			m.Runs,
			m.Authority,
			m.Segment,
			m.TickLateness,
		)
	}
	return m
}
