package model

import (
	"errors"
	"fmt"
)

// Reason is the machine-readable code carried by every rejection
type Reason string

const (
	ReasonInsufficientContent Reason = "InsufficientContent"
	ReasonExtractionFailed    Reason = "ExtractionFailed"
	ReasonExtractionTimeout   Reason = "ExtractionTimeout"
	ReasonRubricMismatch      Reason = "RubricMismatch"
	ReasonNoMatchingRule      Reason = "NoMatchingRule" // Warning only
	ReasonInvariantViolation  Reason = "InvariantViolation"
	ReasonTierDowngrade       Reason = "TierDowngrade"
	ReasonInvalidInput        Reason = "InvalidInput"
	ReasonNotFound            Reason = "NotFound"
	ReasonCanceled            Reason = "Canceled"
	ReasonInternal            Reason = "Internal"
)

// Sentinels for errors.Is matching by reason
var (
	ErrInsufficientContent = &Error{Reason: ReasonInsufficientContent}
	ErrExtractionFailed    = &Error{Reason: ReasonExtractionFailed}
	ErrExtractionTimeout   = &Error{Reason: ReasonExtractionTimeout}
	ErrRubricMismatch      = &Error{Reason: ReasonRubricMismatch}
	ErrInvariantViolation  = &Error{Reason: ReasonInvariantViolation}
	ErrTierDowngrade       = &Error{Reason: ReasonTierDowngrade}
	ErrInvalidInput        = &Error{Reason: ReasonInvalidInput}
	ErrNotFound            = &Error{Reason: ReasonNotFound}
	ErrCanceled            = &Error{Reason: ReasonCanceled}
)

// Error is a classified failure with a reason code and a human explanation
type Error struct {
	Reason  Reason
	Message string
	Err     error // Underlying cause, may be nil
}

// Errorf builds an Error with a formatted message
func Errorf(reason Reason, format string, args ...interface{}) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around a cause
func Wrap(reason Reason, err error, message string) *Error {
	return &Error{Reason: reason, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Reason, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	default:
		return string(e.Reason)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same reason
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// Retryable reports whether the caller may resubmit unchanged input
func (e *Error) Retryable() bool {
	return e.Reason == ReasonExtractionFailed || e.Reason == ReasonExtractionTimeout
}

// ReasonOf returns the reason code of err, or ReasonInternal for unclassified errors
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonInternal
}

// MessageOf returns the human explanation of err
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Message != "" {
			if e.Err != nil {
				return fmt.Sprintf("%s: %v", e.Message, e.Err)
			}
			return e.Message
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Reason)
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
