// Package stats is the instrumentation sink for ingestion: rolling latency
// windows per named operation, plus outcome counters.
package stats

import (
	"slices"
	"sort"
	"sync"
	"time"
)

type sample struct {
	at time.Time
	ms int64
}

// Snapshot aggregates the samples currently inside a window.
type Snapshot struct {
	Count int     `json:"count" yaml:"count"`
	MinMs int64   `json:"min_ms" yaml:"min_ms"`
	MaxMs int64   `json:"max_ms" yaml:"max_ms"`
	AvgMs float64 `json:"avg_ms" yaml:"avg_ms"`
	P50Ms float64 `json:"p50_ms" yaml:"p50_ms"`
	P95Ms float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms float64 `json:"p99_ms" yaml:"p99_ms"`
}

// Window keeps latency samples younger than maxAge.
type Window struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewWindow(maxAge time.Duration) *Window {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Window{samples: make([]sample, 0, 64), maxAge: maxAge}
}

func (w *Window) Observe(d time.Duration) {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	w.samples = append(w.samples, sample{at: now, ms: ms})
}

func (w *Window) Snapshot() Snapshot {
	now := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pruneLocked(now)
	if len(w.samples) == 0 {
		return Snapshot{}
	}

	values := make([]int64, 0, len(w.samples))
	var sum int64
	for _, s := range w.samples {
		values = append(values, s.ms)
		sum += s.ms
	}
	slices.Sort(values)

	return Snapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	keep := w.samples[:0]
	for _, s := range w.samples {
		if !s.at.Before(cutoff) {
			keep = append(keep, s)
		}
	}
	w.samples = keep
}

func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}
	index := float64(len(sorted)-1) * pct / 100.0
	lower := int(index)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	weight := index - float64(lower)
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*weight
}

// Sink records per-operation latencies and outcome counts. The zero value
// is not usable; construct with NewSink.
type Sink struct {
	mu       sync.Mutex
	maxAge   time.Duration
	windows  map[string]*Window
	outcomes map[string]map[string]int
}

func NewSink(maxAge time.Duration) *Sink {
	return &Sink{
		maxAge:   maxAge,
		windows:  make(map[string]*Window),
		outcomes: make(map[string]map[string]int),
	}
}

// Record stores one run of op with the given outcome ("success", "failed").
func (s *Sink) Record(op, outcome string, d time.Duration) {
	s.mu.Lock()
	w, ok := s.windows[op]
	if !ok {
		w = NewWindow(s.maxAge)
		s.windows[op] = w
	}
	if s.outcomes[op] == nil {
		s.outcomes[op] = make(map[string]int)
	}
	s.outcomes[op][outcome]++
	s.mu.Unlock()

	w.Observe(d)
}

// Report is a point-in-time view of one operation.
type Report struct {
	Op       string         `json:"op" yaml:"op"`
	Latency  Snapshot       `json:"latency" yaml:"latency"`
	Outcomes map[string]int `json:"outcomes" yaml:"outcomes"`
}

// Reports returns one report per operation, sorted by name.
func (s *Sink) Reports() []Report {
	s.mu.Lock()
	ops := make([]string, 0, len(s.windows))
	for op := range s.windows {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	out := make([]Report, 0, len(ops))
	windows := make([]*Window, 0, len(ops))
	for _, op := range ops {
		windows = append(windows, s.windows[op])
		counts := make(map[string]int, len(s.outcomes[op]))
		for k, v := range s.outcomes[op] {
			counts[k] = v
		}
		out = append(out, Report{Op: op, Outcomes: counts})
	}
	s.mu.Unlock()

	for i := range out {
		out[i].Latency = windows[i].Snapshot()
	}
	return out
}
