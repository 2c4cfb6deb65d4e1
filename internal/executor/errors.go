package executor

import (
	"errors"
	"fmt"

	"github.com/roach88/attrsync/internal/ir"
)

// ErrorCode categorizes run-stopping delivery failures.
type ErrorCode string

const (
	// ErrCodeTerminalStatus indicates a non-200, non-retryable response.
	ErrCodeTerminalStatus ErrorCode = "TERMINAL_STATUS"

	// ErrCodeTransportExhausted indicates every attempt failed below HTTP.
	ErrCodeTransportExhausted ErrorCode = "TRANSPORT_EXHAUSTED"

	// ErrCodeInvalidRequest indicates the request for a batch could not be
	// built. Nothing was sent.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeCanceled indicates the run context was canceled.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Error is a delivery failure that stops the run. The batch it names has
// already been recorded.
type Error struct {
	Code        ErrorCode
	Message     string
	GroupNumber int
	BatchNumber int
	Status      ir.Status
	Attempts    int
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (group=%d, batch=%d, status=%s, attempts=%d)",
		e.Code, e.Message, e.GroupNumber, e.BatchNumber, e.Status, e.Attempts)
}

// Unwrap returns the underlying transport or context error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, rec ir.ExecutionRecord, msg string, err error) *Error {
	return &Error{
		Code:        code,
		Message:     msg,
		GroupNumber: rec.Batch.GroupNumber,
		BatchNumber: rec.Batch.BatchNumber,
		Status:      rec.Status,
		Attempts:    rec.Attempts,
		Err:         err,
	}
}

func isCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsTerminalStatus reports whether err is a non-retryable status failure.
// Uses errors.As to handle wrapped errors.
func IsTerminalStatus(err error) bool {
	return isCode(err, ErrCodeTerminalStatus)
}

// IsTransportExhausted reports whether err is a transport failure on the
// last attempt.
func IsTransportExhausted(err error) bool {
	return isCode(err, ErrCodeTransportExhausted)
}

// IsCanceled reports whether err is a canceled run.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// IsInvalidRequest reports whether err is a request that could not be built.
func IsInvalidRequest(err error) bool {
	return isCode(err, ErrCodeInvalidRequest)
}
