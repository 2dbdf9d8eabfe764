package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/zeebo/blake3"

	"github.com/dgallion1/versegest/internal/faults"
)

// ErrClosed is returned by Embed after Close.
var ErrClosed = errors.New("embedding service closed")

// Options tune a Service. Zero values take the defaults noted.
type Options struct {
	CacheSize        int           // 4096 entries
	BatchSize        int           // 64 texts per backend call
	MaxAttempts      int           // 3
	RetryUnit        time.Duration // 1s, doubled per attempt
	BreakerThreshold int           // 5 consecutive failures
	BreakerCooldown  time.Duration // 30s
}

func (o Options) withDefaults() Options {
	if o.CacheSize <= 0 {
		o.CacheSize = 4096
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryUnit <= 0 {
		o.RetryUnit = time.Second
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = 5
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	return o
}

// Service is the shared embedding handle. It is safe for concurrent use;
// construct one per process and Close it on shutdown.
type Service struct {
	backend Embedder
	opts    Options
	log     *slog.Logger
	breaker *breaker

	mu     sync.Mutex
	cache  *lru.Cache
	closed bool
}

func NewService(backend Embedder, opts Options, log *slog.Logger) *Service {
	opts = opts.withDefaults()
	return &Service{
		backend: backend,
		opts:    opts,
		log:     log,
		breaker: newBreaker(opts.BreakerThreshold, opts.BreakerCooldown),
		cache:   lru.New(opts.CacheSize),
	}
}

func (s *Service) Name() string    { return s.backend.Name() }
func (s *Service) Dimensions() int { return s.backend.Dimensions() }

// Circuit reports the breaker state.
func (s *Service) Circuit() faults.CircuitState { return s.breaker.current() }

type cacheKey [32]byte

// Embed returns one vector per text in input order. Cached texts skip the
// backend; the rest are sent in batches. A backend that keeps failing
// surfaces as *faults.ResilienceFault.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]cacheKey, len(texts))
	pending := map[cacheKey][]int{}
	var missing []string

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	for i, t := range texts {
		keys[i] = blake3.Sum256([]byte(t))
		if v, ok := s.cache.Get(keys[i]); ok {
			out[i] = slices.Clone(v.([]float32))
			continue
		}
		if _, seen := pending[keys[i]]; !seen {
			missing = append(missing, t)
		}
		pending[keys[i]] = append(pending[keys[i]], i)
	}
	s.mu.Unlock()

	for start := 0; start < len(missing); start += s.opts.BatchSize {
		batch := missing[start:min(start+s.opts.BatchSize, len(missing))]
		vecs, err := s.call(ctx, batch)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		for j, t := range batch {
			k := cacheKey(blake3.Sum256([]byte(t)))
			// Callers own what they get back; the cache keeps its own copy.
			s.cache.Add(k, slices.Clone(vecs[j]))
			for _, i := range pending[k] {
				out[i] = slices.Clone(vecs[j])
			}
		}
		s.mu.Unlock()
	}
	return out, nil
}

func (s *Service) call(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		state, ok := s.breaker.allow()
		if !ok {
			return nil, &faults.ResilienceFault{
				Operation: "embed",
				Attempts:  attempt - 1,
				Category:  "circuit_open",
				Circuit:   state,
				Err:       lastErr,
			}
		}

		vecs, err := s.backend.Embed(ctx, batch)
		if err == nil && len(vecs) != len(batch) {
			err = fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), len(batch))
		}
		if err == nil {
			s.breaker.success()
			return vecs, nil
		}
		if ctx.Err() != nil {
			s.breaker.release()
			return nil, fmt.Errorf("embed: %w", ctx.Err())
		}
		if !faults.IsRetryable(err) {
			s.breaker.release()
			return nil, fmt.Errorf("embed: %w", err)
		}

		lastErr = err
		state = s.breaker.failure()
		if attempt == s.opts.MaxAttempts {
			return nil, &faults.ResilienceFault{
				Operation: "embed",
				Attempts:  attempt,
				Category:  faults.Category(err),
				Circuit:   state,
				Err:       err,
			}
		}

		delay := faults.Backoff(attempt-1, s.opts.RetryUnit)
		s.log.Warn("embedding call failed, retrying",
			"backend", s.backend.Name(), "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("embed: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// Close drops the cache and releases the backend. Later Embed calls fail
// with ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cache.Clear()
	if c, ok := s.backend.(interface{ Close() }); ok {
		c.Close()
	}
}
