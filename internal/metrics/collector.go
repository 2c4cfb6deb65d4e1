// Package metrics records run metrics for a sync run.
//
// Components depend on the Collector interface. NopMetrics is the default;
// PrometheusCollector backs it with a Prometheus registry that the run
// command writes out as a node_exporter textfile when a metrics file is
// configured.
package metrics

// Batch outcomes reported through RecordBatchOutcome.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeExhausted    = "exhausted"
	OutcomeTerminal     = "terminal"
	OutcomeNotAttempted = "not_attempted"
)

// Retry reasons reported through RecordRetry.
const (
	RetryReasonStatus    = "status"
	RetryReasonTransport = "transport"
)

// Collector receives pipeline and executor observations.
type Collector interface {
	// RecordStage reports the number of rows a stage wrote.
	RecordStage(stage string, rows int)

	// RecordCall reports one remote call: its status label and latency.
	RecordCall(status string, seconds float64)

	// RecordRetry reports a scheduled retry and the delay before it.
	RecordRetry(reason string, delaySeconds float64)

	// RecordBatchOutcome reports the final outcome of one batch.
	RecordBatchOutcome(outcome string)
}
