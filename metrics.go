package mavftp

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes transfer health as Prometheus counters/gauges, grounded
// on the exporter pattern in runZeroInc-sockstats/pkg/exporter. Passing a
// *Metrics to NewEngine is optional; a nil Metrics disables collection
// entirely (all methods on a nil *Metrics are no-ops).
type Metrics struct {
	framesSent       prometheus.Counter
	framesRetried    prometheus.Counter
	duplicates       prometheus.Counter
	gapCount         prometheus.Gauge
	bytesTransferred prometheus.Counter
}

// NewMetrics creates a Metrics instance and registers it with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mavftp_frames_sent_total",
			Help: "Total FTP frames sent.",
		}),
		framesRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mavftp_frames_retried_total",
			Help: "Total FTP frames retransmitted (burst stall, open retry).",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mavftp_duplicates_total",
			Help: "Total duplicate burst/gap replies observed.",
		}),
		gapCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mavftp_gap_count",
			Help: "Outstanding unfilled byte ranges in the active read.",
		}),
		bytesTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mavftp_bytes_transferred_total",
			Help: "Total bytes transferred (get + put).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.framesSent, m.framesRetried, m.duplicates, m.gapCount, m.bytesTransferred)
	}
	return m
}

func (m *Metrics) incFramesSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

func (m *Metrics) incFramesRetried() {
	if m != nil {
		m.framesRetried.Inc()
	}
}

func (m *Metrics) incDuplicates() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) setGapCount(n int) {
	if m != nil {
		m.gapCount.Set(float64(n))
	}
}

func (m *Metrics) addBytesTransferred(n int64) {
	if m != nil {
		m.bytesTransferred.Add(float64(n))
	}
}
