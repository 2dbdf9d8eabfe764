package embed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/versegest/internal/faults"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// scripted fails with errs in order, then delegates to the hashing backend.
type scripted struct {
	mu    sync.Mutex
	errs  []error
	calls int
	seen  [][]string
	inner *HashingBackend
}

func (s *scripted) Name() string    { return "scripted" }
func (s *scripted) Dimensions() int { return s.inner.Dimensions() }

func (s *scripted) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls++
	s.seen = append(s.seen, append([]string(nil), texts...))
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.inner.Embed(ctx, texts)
}

func fastOpts() Options {
	return Options{RetryUnit: time.Millisecond, MaxAttempts: 3, BreakerThreshold: 10}
}

func TestServicePreservesOrderAndCaches(t *testing.T) {
	backend := &scripted{inner: NewHashingBackend(64)}
	svc := NewService(backend, fastOpts(), quiet)
	defer svc.Close()

	texts := []string{"grace and peace", "love your enemies", "grace and peace"}
	vecs, err := svc.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])
	require.Len(t, backend.seen, 1)
	assert.Equal(t, []string{"grace and peace", "love your enemies"}, backend.seen[0])

	again, err := svc.Embed(context.Background(), []string{"love your enemies"})
	require.NoError(t, err)
	assert.Equal(t, vecs[1], again[0])
	assert.Equal(t, 1, backend.calls, "second call should be served from cache")
}

func TestServiceReturnsPrivateVectors(t *testing.T) {
	backend := &scripted{inner: NewHashingBackend(16)}
	svc := NewService(backend, fastOpts(), quiet)
	defer svc.Close()

	first, err := svc.Embed(context.Background(), []string{"grace", "grace"})
	require.NoError(t, err)
	want := append([]float32(nil), first[0]...)

	// Scribbling on one result must not reach its twin or the cache.
	for i := range first[0] {
		first[0][i] = 99
	}
	assert.Equal(t, want, first[1])

	again, err := svc.Embed(context.Background(), []string{"grace"})
	require.NoError(t, err)
	assert.Equal(t, want, again[0])
	again[0][0] = -1

	third, err := svc.Embed(context.Background(), []string{"grace"})
	require.NoError(t, err)
	assert.Equal(t, want, third[0])
	assert.Equal(t, 1, backend.calls)
}

func TestServiceBatches(t *testing.T) {
	backend := &scripted{inner: NewHashingBackend(16)}
	opts := fastOpts()
	opts.BatchSize = 2
	svc := NewService(backend, opts, quiet)

	_, err := svc.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Equal(t, 3, backend.calls)
}

func TestServiceRetriesTransientFailures(t *testing.T) {
	backend := &scripted{
		errs:  []error{&faults.RetryableError{StatusCode: 503}, &faults.RetryableError{StatusCode: 429}},
		inner: NewHashingBackend(16),
	}
	svc := NewService(backend, fastOpts(), quiet)

	vecs, err := svc.Embed(context.Background(), []string{"selah"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, faults.CircuitClosed, svc.Circuit())
}

func TestServiceRaisesResilienceFault(t *testing.T) {
	boom := &faults.RetryableError{StatusCode: 500, Message: "down"}
	backend := &scripted{errs: []error{boom, boom, boom}, inner: NewHashingBackend(16)}
	svc := NewService(backend, fastOpts(), quiet)

	_, err := svc.Embed(context.Background(), []string{"selah"})
	require.Error(t, err)
	var rf *faults.ResilienceFault
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, 3, rf.Attempts)
	assert.Equal(t, "server_error", rf.Category)
	assert.Equal(t, faults.CircuitClosed, rf.Circuit)
	assert.ErrorIs(t, err, faults.ErrResilience)
}

func TestServiceDoesNotRetryPermanentErrors(t *testing.T) {
	backend := &scripted{errs: []error{errors.New("400 bad model")}, inner: NewHashingBackend(16)}
	svc := NewService(backend, fastOpts(), quiet)

	_, err := svc.Embed(context.Background(), []string{"selah"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, faults.ErrResilience)
	assert.Equal(t, 1, backend.calls)
}

func TestServiceCircuitOpens(t *testing.T) {
	boom := &faults.RetryableError{StatusCode: 502}
	backend := &scripted{errs: []error{boom, boom}, inner: NewHashingBackend(16)}
	svc := NewService(backend, Options{MaxAttempts: 1, BreakerThreshold: 2, BreakerCooldown: time.Hour}, quiet)
	now := time.Now()
	svc.breaker.now = func() time.Time { return now }

	for i := range 2 {
		_, err := svc.Embed(context.Background(), []string{"x"})
		require.Error(t, err, "call %d", i)
	}
	assert.Equal(t, faults.CircuitOpen, svc.Circuit())

	_, err := svc.Embed(context.Background(), []string{"x"})
	var rf *faults.ResilienceFault
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, "circuit_open", rf.Category)
	assert.Equal(t, faults.CircuitOpen, rf.Circuit)
	assert.Equal(t, 2, backend.calls, "open circuit must not reach the backend")

	// After the cooldown one probe goes through and closes the circuit.
	svc.breaker.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = svc.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, faults.CircuitClosed, svc.Circuit())
}

func TestServiceClose(t *testing.T) {
	svc := NewService(NewHashingBackend(8), Options{}, quiet)
	svc.Close()
	svc.Close()
	_, err := svc.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHTTPBackend(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req embeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		// Answer out of order; the backend must reorder by index.
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		var data []item
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Embedding: []float32{float32(i), 1}, Index: i})
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL, "sk-test", "text-embedding-3-small", 0)
	defer b.Close()

	vecs, err := b.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}, {2, 1}}, vecs)

	fail.Store(true)
	_, err = b.Embed(context.Background(), []string{"a"})
	var re *faults.RetryableError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusServiceUnavailable, re.StatusCode)
}

func TestHashingSimilarity(t *testing.T) {
	b := NewHashingBackend(256)
	vecs, err := b.Embed(context.Background(), []string{
		"For God so loved the world",
		"God so loved the world that he gave",
		"Blessed are the meek",
	})
	require.NoError(t, err)
	near := Cosine(vecs[0], vecs[1])
	far := Cosine(vecs[0], vecs[2])
	assert.Greater(t, near, far)
	assert.InDelta(t, 1.0, Cosine(vecs[0], vecs[0]), 1e-6)
}

func TestEncodeDecode(t *testing.T) {
	v := []float32{0.25, -1.5, 3}
	got, err := Decode(Encode(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = Decode([]byte{1, 2, 3})
	assert.Error(t, err)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
}
