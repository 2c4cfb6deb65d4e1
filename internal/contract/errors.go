package contract

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
)

// ErrorCode categorizes contract errors.
type ErrorCode string

const (
	// ErrCodeRead indicates the contract file could not be read.
	ErrCodeRead ErrorCode = "CONTRACT_READ"

	// ErrCodeCUE indicates the contract failed to compile or unify with
	// the schema.
	ErrCodeCUE ErrorCode = "CONTRACT_CUE"

	// ErrCodeMissing indicates the file has no top-level contract field.
	ErrCodeMissing ErrorCode = "CONTRACT_MISSING"

	// ErrCodeDuplicate indicates a repeated source column or attribute key.
	ErrCodeDuplicate ErrorCode = "CONTRACT_DUPLICATE"

	// ErrCodeBlank indicates a field that is empty after cleaning.
	ErrCodeBlank ErrorCode = "CONTRACT_BLANK"
)

// Error is a contract loading or validation failure.
type Error struct {
	Code    ErrorCode
	Field   string
	Message string
	Pos     token.Pos
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsContractError reports whether err is, or wraps, a *Error.
func IsContractError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}
