package cli

import (
	"errors"

	"github.com/ppiankov/curator/internal/model"
)

// Process exit codes
const (
	ExitOK                  = 0
	ExitFailure             = 1 // Usage and internal errors
	ExitInsufficientContent = 2
	ExitExtractionFailed    = 3
	ExitExtractionTimeout   = 4
	ExitInvariantViolation  = 5
	ExitRubricMismatch      = 6
	ExitInvalidInput        = 7
	ExitNotFound            = 8
)

var exitCodes = map[model.Reason]int{
	model.ReasonInsufficientContent: ExitInsufficientContent,
	model.ReasonExtractionFailed:    ExitExtractionFailed,
	model.ReasonExtractionTimeout:   ExitExtractionTimeout,
	model.ReasonInvariantViolation:  ExitInvariantViolation,
	model.ReasonTierDowngrade:       ExitInvariantViolation,
	model.ReasonRubricMismatch:      ExitRubricMismatch,
	model.ReasonInvalidInput:        ExitInvalidInput,
	model.ReasonNotFound:            ExitNotFound,
}

// ExitCode maps an error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if code, ok := exitCodes[model.ReasonOf(err)]; ok {
		return code
	}
	return ExitFailure
}

// reportedError is a failure already shown to the user, for example as a
// rejection summary; Execute only turns it into an exit code
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func reported(err error) error {
	if err == nil {
		return nil
	}
	var already *reportedError
	if errors.As(err, &already) {
		return err
	}
	return &reportedError{err: err}
}
