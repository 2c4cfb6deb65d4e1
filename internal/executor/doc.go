// Package executor delivers materialized batches to the remote asset API.
//
// Delivery is split in two:
//
//   - Decide is a pure function from (policy, attempt, outcome) to the next
//     state and the delay before it. It never sleeps or performs I/O.
//   - Executor is the driver. It is the only code that calls the network
//     (through a Doer) or waits (through a Sleeper), and it hands exactly one
//     ExecutionRecord per batch to a RecordSink, in input order.
//
// Batches are sent strictly one at a time. Retries block the caller; this
// self-throttles against a rate limited service.
//
// A retryable status that survives every attempt is recorded and the run
// continues. A non-retryable status, transport failures on every attempt,
// or a canceled context end the run with an *Error after the batch's record
// has been written and the sink flushed.
package executor
