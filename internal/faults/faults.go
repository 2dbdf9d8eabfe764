// Package faults defines the error taxonomy shared by ingestion and the
// guarded external calls it makes.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedSource marks input that cannot be fetched or parsed.
	ErrUnsupportedSource = errors.New("unsupported source")
	// ErrDuplicateSource marks content whose hash is already stored.
	ErrDuplicateSource = errors.New("duplicate source")
	// ErrResilience marks exhausted retries or an open circuit.
	ErrResilience = errors.New("resilience fault")
	// ErrMissingErrorMetadata is returned when a pipeline failed without
	// any stage recording why.
	ErrMissingErrorMetadata = errors.New("pipeline failed: missing error metadata")
)

// UnsupportedSourceError describes why a source was rejected.
type UnsupportedSourceError struct {
	Source string // path or URL
	Reason string
	Err    error
}

func Unsupported(source, reason string, err error) *UnsupportedSourceError {
	return &UnsupportedSourceError{Source: source, Reason: reason, Err: err}
}

func (e *UnsupportedSourceError) Error() string {
	msg := fmt.Sprintf("unsupported source %s: %s", e.Source, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedSourceError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUnsupportedSource, e.Err}
	}
	return []error{ErrUnsupportedSource}
}

// DuplicateSourceError carries the id of the document already holding the
// same content hash.
type DuplicateSourceError struct {
	ContentHash string
	ExistingID  string
}

func (e *DuplicateSourceError) Error() string {
	return fmt.Sprintf("duplicate source: content %s already ingested as %s", shortHash(e.ContentHash), e.ExistingID)
}

func (e *DuplicateSourceError) Unwrap() error { return ErrDuplicateSource }

// CircuitState is the breaker state observed when a ResilienceFault fired.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
	CircuitNone     CircuitState = "none"
)

// ResilienceFault reports a guarded call that gave up.
type ResilienceFault struct {
	Operation string
	Attempts  int
	Category  string // "timeout", "rate_limited", "server_error", "circuit_open", ...
	Circuit   CircuitState
	Err       error
}

func (e *ResilienceFault) Error() string {
	msg := fmt.Sprintf("%s failed after %d attempt(s) [%s, circuit %s]", e.Operation, e.Attempts, e.Category, e.Circuit)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResilienceFault) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrResilience, e.Err}
	}
	return []error{ErrResilience}
}

// Attempts extracts the attempt count from a ResilienceFault in err's
// chain, or returns fallback.
func Attempts(err error, fallback int) int {
	var rf *ResilienceFault
	if errors.As(err, &rf) && rf.Attempts > 0 {
		return rf.Attempts
	}
	return fallback
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
