package metrics

// NopMetrics implements a no-op metrics collector.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements Collector.
var _ Collector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordStage is a no-op.
func (n *NopMetrics) RecordStage(_ /* stage */ string, _ /* rows */ int) {}

// RecordCall is a no-op.
func (n *NopMetrics) RecordCall(_ /* status */ string, _ /* seconds */ float64) {}

// RecordRetry is a no-op.
func (n *NopMetrics) RecordRetry(_ /* reason */ string, _ /* delaySeconds */ float64) {}

// RecordBatchOutcome is a no-op.
func (n *NopMetrics) RecordBatchOutcome(_ /* outcome */ string) {}
