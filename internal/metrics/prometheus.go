package metrics

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "attrsync"

// PrometheusCollector implements Collector backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	stageRows     *prometheus.GaugeVec
	calls         *prometheus.CounterVec
	callLatency   prometheus.Histogram
	retries       *prometheus.CounterVec
	retryBackoff  *prometheus.HistogramVec
	batchOutcomes *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements Collector.
var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "attrsync" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.stageRows = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "pipeline",
			Name:      "stage_rows",
			Help:      "Rows written by each pipeline stage in the last run.",
		}, []string{"stage"})

		p.calls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "executor",
			Name:      "calls_total",
			Help:      "Remote calls by response status (HTTP code or transport-error).",
		}, []string{"status"})

		p.callLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "executor",
			Name:      "call_latency_seconds",
			Help:      "Latency of remote calls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		})

		p.retries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "executor",
			Name:      "retries_total",
			Help:      "Scheduled retries by reason (status, transport).",
		}, []string{"reason"})

		p.retryBackoff = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "executor",
			Name:      "retry_backoff_seconds",
			Help:      "Delays slept before retries in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 180, 240, 300},
		}, []string{"reason"})

		p.batchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "executor",
			Name:      "batches_total",
			Help:      "Batches by final outcome (succeeded, exhausted, terminal, not_attempted).",
		}, []string{"outcome"})

		p.reg.MustRegister(p.stageRows)
		p.reg.MustRegister(p.calls)
		p.reg.MustRegister(p.callLatency)
		p.reg.MustRegister(p.retries)
		p.reg.MustRegister(p.retryBackoff)
		p.reg.MustRegister(p.batchOutcomes)
	})
}

// RecordStage sets the row gauge for stage.
func (p *PrometheusCollector) RecordStage(stage string, rows int) {
	p.ensureRegistered()
	p.stageRows.WithLabelValues(stage).Set(float64(rows))
}

// RecordCall counts one remote call and observes its latency.
func (p *PrometheusCollector) RecordCall(status string, seconds float64) {
	p.ensureRegistered()
	p.calls.WithLabelValues(status).Inc()
	p.callLatency.Observe(seconds)
}

// RecordRetry counts a retry and observes its delay.
func (p *PrometheusCollector) RecordRetry(reason string, delaySeconds float64) {
	p.ensureRegistered()
	p.retries.WithLabelValues(reason).Inc()
	p.retryBackoff.WithLabelValues(reason).Observe(delaySeconds)
}

// RecordBatchOutcome counts a batch outcome.
func (p *PrometheusCollector) RecordBatchOutcome(outcome string) {
	p.ensureRegistered()
	p.batchOutcomes.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format, replacing the file atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
