package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrReadOnly        = errors.New("collection is in read-only mode")
)

// NotFoundError reports a failed lookup by identity, or an update that
// touched no document.
type NotFoundError struct {
	Name string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Name, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError reports an insert that collided with an existing identity.
type ConflictError struct {
	Name string
	ID   any
	Err  error
}

func (e *ConflictError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("%s %v already exists", e.Name, e.ID)
	}
	return fmt.Sprintf("%s already exists", e.Name)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.Err }

// ValidationError wraps a rejection by the validation hook.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Name, e.Err)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func (e *ValidationError) Unwrap() error { return e.Err }

// InvalidArgumentError reports a malformed call, detected before any I/O.
type InvalidArgumentError struct {
	Arg    string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Arg, e.Reason)
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// ItemError is the failure of one model inside a batch.
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

// BatchValidationError aggregates every invalid model of a batch.
type BatchValidationError struct {
	Items []ItemError
}

func (e *BatchValidationError) Error() string {
	parts := make([]string, len(e.Items))
	for i, item := range e.Items {
		parts[i] = item.Error()
	}
	return fmt.Sprintf("%d invalid item(s): %s", len(e.Items), strings.Join(parts, "; "))
}

func (e *BatchValidationError) Is(target error) bool { return target == ErrValidation }

// Unwrap exposes the per-item errors to errors.Is / errors.As.
func (e *BatchValidationError) Unwrap() []error {
	errs := make([]error, len(e.Items))
	for i, item := range e.Items {
		errs[i] = item.Err
	}
	return errs
}

// duplicateKeyPatterns are the textual markers backing stores use for
// unique-index violations.
var duplicateKeyPatterns = []string{
	"duplicate key",
	"E11000",
	"UNIQUE constraint failed",
}

// IsDuplicateKey reports whether err is a unique-identity violation.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateKey) {
		return true
	}
	msg := err.Error()
	for _, p := range duplicateKeyPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
