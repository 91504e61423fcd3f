package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrTrackNotFound    = errors.New("analysis track not found")
	ErrConflict         = errors.New("conflicting analysis state")
	ErrConfiguration    = errors.New("configuration failure")
	ErrTemporary        = errors.New("temporary failure")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrFatal            = errors.New("fatal failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorClass is the retry policy verdict for a failed collaborator call.
type ErrorClass string

const (
	ErrorClassTransient     ErrorClass = "transient"
	ErrorClassConfiguration ErrorClass = "configuration"
	ErrorClassFatal         ErrorClass = "fatal"
)

// SequenceError is returned by the category sequencer when a category could not be
// classified. It carries everything needed to resume from exactly that category.
type SequenceError struct {
	Class        ErrorClass
	Resumable    bool
	Category     string
	Cursor       int
	DocumentText string
	AlreadyKnown []string
	Err          error
}

func (e *SequenceError) Error() string {
	if e == nil {
		return "sequence error"
	}
	return fmt.Sprintf("classify category %s (cursor=%d, %s): %v", e.Category, e.Cursor, e.Class, e.Err)
}

func (e *SequenceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsSequenceError extracts a SequenceError from an error chain.
func AsSequenceError(err error) (*SequenceError, bool) {
	var seqErr *SequenceError
	if errors.As(err, &seqErr) {
		return seqErr, true
	}
	return nil, false
}

// DeepAnalysisError stops the deep analysis when elaboration cannot proceed without a
// fix. Cursor is the number of findings already elaborated.
type DeepAnalysisError struct {
	Class     ErrorClass
	FindingID string
	Cursor    int
	Err       error
}

func (e *DeepAnalysisError) Error() string {
	if e == nil {
		return "deep analysis error"
	}
	return fmt.Sprintf("elaborate finding %s (cursor=%d, %s): %v", e.FindingID, e.Cursor, e.Class, e.Err)
}

func (e *DeepAnalysisError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func AsDeepAnalysisError(err error) (*DeepAnalysisError, bool) {
	var stepErr *DeepAnalysisError
	if errors.As(err, &stepErr) {
		return stepErr, true
	}
	return nil, false
}
