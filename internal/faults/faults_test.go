package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaxonomyIsDistinguishable(t *testing.T) {
	dup := fmt.Errorf("fetch: %w", &DuplicateSourceError{ContentHash: "abcdef0123456789", ExistingID: "doc-1"})
	unsup := fmt.Errorf("parse: %w", Unsupported("a.pdf", "encrypted pdf", errors.New("bad xref")))

	assert.ErrorIs(t, dup, ErrDuplicateSource)
	assert.NotErrorIs(t, dup, ErrUnsupportedSource)
	assert.ErrorIs(t, unsup, ErrUnsupportedSource)
	assert.NotErrorIs(t, unsup, ErrDuplicateSource)

	var d *DuplicateSourceError
	assert.True(t, errors.As(dup, &d))
	assert.Equal(t, "doc-1", d.ExistingID)
	assert.Contains(t, dup.Error(), "abcdef012345")
}

func TestResilienceFault(t *testing.T) {
	err := fmt.Errorf("persist: %w", &ResilienceFault{
		Operation: "embed",
		Attempts:  4,
		Category:  "timeout",
		Circuit:   CircuitOpen,
		Err:       context.DeadlineExceeded,
	})

	assert.ErrorIs(t, err, ErrResilience)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 4, Attempts(err, 1))
	assert.Equal(t, 1, Attempts(errors.New("plain"), 1))
	assert.Contains(t, err.Error(), "circuit open")
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryClassification(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
		category  string
	}{
		{&RetryableError{StatusCode: 429}, true, "rate_limited"},
		{fmt.Errorf("embed: %w", &RetryableError{StatusCode: 503}), true, "server_error"},
		{fmt.Errorf("fetch: %w", timeoutErr{}), true, "timeout"},
		{errors.New("bad request"), false, "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.retryable, IsRetryable(tt.err), tt.err.Error())
		assert.Equal(t, tt.category, Category(tt.err), tt.err.Error())
	}
}

func TestBackoff(t *testing.T) {
	unit := 10 * time.Millisecond
	for attempt := range 8 {
		d := Backoff(attempt, unit)
		base := min(unit<<uint(attempt), 30*unit)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2+1)
	}
}
