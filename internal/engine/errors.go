package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a step failed.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindUnresolvedReference ErrorKind = "unresolved_reference"
	KindSubmission          ErrorKind = "submission"
	KindProviderFailure     ErrorKind = "provider_failure"
	KindTimeout             ErrorKind = "timeout"
	KindCanceled            ErrorKind = "canceled"
)

// Request-level errors returned by Execute before any event is emitted.
var (
	ErrEmptyPlan             = errors.New("plan has no steps")
	ErrUnknownStep           = errors.New("unknown step")
	ErrMissingPreviousOutput = errors.New("missing previous output")
)

// StepError is the single failure recorded for a step.
type StepError struct {
	Kind       ErrorKind
	StepID     string
	Message    string
	LastStatus string // last provider state seen, for timeouts
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %s: %s", e.StepID, e.Kind, e.Message)
}

func (e *StepError) Unwrap() error { return e.Err }

// UnresolvedReferenceError reports an input that reads a step whose output is
// not available.
type UnresolvedReferenceError struct {
	StepID string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("output of step %q is not available", e.StepID)
}

// ValidationError lists the required-field problems of one step.
type ValidationError struct {
	Tool     string
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	msg := e.Problems[0]
	for _, p := range e.Problems[1:] {
		msg += "; " + p
	}
	return msg
}

// KindOf returns the kind of a step error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
