package promexporter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BenchMetrics records the progress of a reader benchmark run.
type BenchMetrics struct {
	iterationDuration *prometheus.HistogramVec
	responses         *prometheus.CounterVec
	bytesRead         *prometheus.CounterVec
}

// NewBenchMetrics creates the benchmark metrics and registers them.
func NewBenchMetrics(registry prometheus.Registerer) *BenchMetrics {
	m := &BenchMetrics{
		iterationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linebuf_bench_iteration_duration_seconds",
				Help:    "Duration of one benchmark iteration: a batch of requests and their responses.",
				Buckets: prometheus.ExponentialBuckets(10e-6, 2, 16), // 10µs to ~330ms
			},
			[]string{"reader"},
		),
		responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebuf_bench_responses_total",
				Help: "Responses read.",
			},
			[]string{"reader"},
		),
		bytesRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linebuf_bench_read_bytes_total",
				Help: "Response bytes read.",
			},
			[]string{"reader"},
		),
	}

	registry.MustRegister(m.iterationDuration, m.responses, m.bytesRead)
	return m
}

// ObserveIteration records one iteration of the given reader ("linebuf" or
// "bufio").
func (m *BenchMetrics) ObserveIteration(reader string, d time.Duration, responses int, bytes int) {
	m.iterationDuration.WithLabelValues(reader).Observe(d.Seconds())
	m.responses.WithLabelValues(reader).Add(float64(responses))
	m.bytesRead.WithLabelValues(reader).Add(float64(bytes))
}
