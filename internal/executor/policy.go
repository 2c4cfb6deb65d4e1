package executor

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Default retry policy values.
const (
	DefaultMaxRetries = 10
	DefaultMinDelay   = 30 * time.Second
	DefaultMaxDelay   = 300 * time.Second
)

// RetryPolicy bounds the attempts made for one batch and the delays
// between them.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts per batch.
	MaxRetries int

	// MinDelay is the delay after the first attempt.
	MinDelay time.Duration

	// MaxDelay caps every delay.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns 10 attempts with delays from 30s to 300s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		MinDelay:   DefaultMinDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Validate reports every bound that is out of range.
func (p RetryPolicy) Validate() error {
	var errs []error
	if p.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max retries must be at least 1 (got %d)", p.MaxRetries))
	}
	if p.MinDelay < 0 {
		errs = append(errs, fmt.Errorf("min delay must not be negative (got %s)", p.MinDelay))
	}
	if p.MaxDelay < p.MinDelay {
		errs = append(errs, fmt.Errorf("max delay %s is less than min delay %s", p.MaxDelay, p.MinDelay))
	}
	return errors.Join(errs...)
}

// Delay returns the wait after attempt n (1-based) failed.
//
// Delays grow linearly from MinDelay after the first attempt toward
// MaxDelay, in MaxRetries-1 equal steps, and never exceed MaxDelay.
// A policy with a single attempt always yields MinDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.MaxRetries <= 1 {
		return p.MinDelay
	}
	attempt = max(attempt, 1)

	step := (p.MaxDelay - p.MinDelay) / time.Duration(p.MaxRetries-1)
	return min(p.MinDelay+time.Duration(attempt-1)*step, p.MaxDelay)
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxRetries, 1)
}

// State is the delivery state of one batch.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateSucceeded
	StateFailedExhausted
	StateFailedTerminal
)

var stateNames = map[State]string{
	StatePending:         "pending",
	StateAttempting:      "attempting",
	StateSucceeded:       "succeeded",
	StateFailedExhausted: "failed-exhausted",
	StateFailedTerminal:  "failed-terminal",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Final reports whether no further attempt follows s.
func (s State) Final() bool {
	return s == StateSucceeded || s == StateFailedExhausted || s == StateFailedTerminal
}

// Outcome is the result of one attempt: an HTTP status code, or a
// transport error when Err is set.
type Outcome struct {
	StatusCode int
	Err        error
}

// Transport reports whether the attempt failed below HTTP.
func (o Outcome) Transport() bool {
	return o.Err != nil
}

// Decision is the state after an attempt, and the delay to wait before the
// next attempt when the state is StateAttempting.
type Decision struct {
	State State
	Delay time.Duration
}

// IsRetryableStatus reports whether code is 409, 429 or 5xx.
func IsRetryableStatus(code int) bool {
	return code == http.StatusConflict ||
		code == http.StatusTooManyRequests ||
		(code >= 500 && code <= 599)
}

// Decide returns the transition taken after attempt (1-based) produced
// outcome.
//
//   - 200: succeeded.
//   - retryable status: retry after Delay(attempt), or failed-exhausted on
//     the last attempt.
//   - transport error: retry after Delay(attempt), or failed-terminal on
//     the last attempt.
//   - any other status: failed-terminal.
func Decide(policy RetryPolicy, attempt int, outcome Outcome) Decision {
	last := attempt >= policy.attempts()

	switch {
	case outcome.Transport():
		if last {
			return Decision{State: StateFailedTerminal}
		}
		return Decision{State: StateAttempting, Delay: policy.Delay(attempt)}

	case outcome.StatusCode == http.StatusOK:
		return Decision{State: StateSucceeded}

	case IsRetryableStatus(outcome.StatusCode):
		if last {
			return Decision{State: StateFailedExhausted}
		}
		return Decision{State: StateAttempting, Delay: policy.Delay(attempt)}

	default:
		return Decision{State: StateFailedTerminal}
	}
}
