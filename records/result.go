package records

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a record lookup misses.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write raced with another writer.
	ErrConflict = errors.New("record conflict")
)

// FieldError describes a validation failure on one field of one record.
type FieldError struct {
	FieldLabel string `json:"fieldLabel"`
	Message    string `json:"message"`
}

// Result reports the outcome of writing a single record.
type Result struct {
	Success bool         `json:"success"`
	Data    Record       `json:"data,omitempty"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// PlatformError is a call-level failure reported by the record platform.
type PlatformError struct {
	Operation  string
	Collection string
	StatusCode int
	Message    string
}

func (e *PlatformError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d)", e.Operation, e.Collection, msg, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %s", e.Operation, e.Collection, msg)
}

// BatchError lists the records of a batch write that failed.
type BatchError struct {
	Operation  string
	Collection string
	Failed     []Result
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("failed to %s %d %s records: %s", e.Operation, len(e.Failed), e.Collection, strings.Join(e.Messages(), "; "))
}

// Is reports ErrNotFound when every failed record was missing.
func (e *BatchError) Is(target error) bool {
	if target != ErrNotFound || len(e.Failed) == 0 {
		return false
	}
	for _, r := range e.Failed {
		if r.Message != ErrNotFound.Error() {
			return false
		}
	}
	return true
}

// Messages flattens the per-record and per-field messages.
func (e *BatchError) Messages() []string {
	var out []string
	for _, r := range e.Failed {
		for _, fe := range r.Errors {
			out = append(out, fe.FieldLabel+": "+fe.Message)
		}
		if r.Message != "" {
			out = append(out, r.Message)
		}
	}
	return out
}

// Split separates successful records from failures. The error is nil when
// every result succeeded.
func Split(operation, collection string, results []Result) ([]Record, error) {
	ok := make([]Record, 0, len(results))
	var failed []Result
	for _, r := range results {
		if r.Success {
			ok = append(ok, r.Data)
			continue
		}
		failed = append(failed, r)
	}
	if len(failed) > 0 {
		return ok, &BatchError{Operation: operation, Collection: collection, Failed: failed}
	}
	return ok, nil
}
