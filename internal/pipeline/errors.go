package pipeline

import (
	"errors"
	"fmt"
)

// WorkflowError reports the stage that stopped a run. Err is the cause:
// an *executor.Error for remote failures, a *normalize.ContractError for
// a bad input header, or a store error.
type WorkflowError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow failed at %s: %v", e.Stage, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// IsWorkflowError checks if an error is a WorkflowError.
func IsWorkflowError(err error) bool {
	var we *WorkflowError
	return errors.As(err, &we)
}

// FailedStage returns the stage named by a WorkflowError in err's chain.
func FailedStage(err error) (Stage, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Stage, true
	}
	return "", false
}
