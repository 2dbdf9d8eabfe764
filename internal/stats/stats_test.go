package stats

import (
	"testing"
	"time"
)

func TestWindowSnapshotPercentiles(t *testing.T) {
	w := NewWindow(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		w.Observe(time.Duration(ms) * time.Millisecond)
	}

	snap := w.Snapshot()
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 || snap.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestWindowPrunesExpiredSamples(t *testing.T) {
	w := NewWindow(10 * time.Millisecond)
	w.Observe(100 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	if snap := w.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Count)
	}
	w.Observe(200 * time.Millisecond)
	if snap := w.Snapshot(); snap.Count != 1 || snap.MinMs != 200 {
		t.Fatalf("expected one fresh 200ms sample, got %+v", snap)
	}
}

func TestWindowClampsNegativeDuration(t *testing.T) {
	w := NewWindow(time.Hour)
	w.Observe(-10 * time.Millisecond)
	if snap := w.Snapshot(); snap.Count != 1 || snap.MaxMs != 0 {
		t.Fatalf("expected one clamped sample, got %+v", snap)
	}
}

func TestSinkReports(t *testing.T) {
	s := NewSink(time.Hour)
	s.Record("parse", "success", 5*time.Millisecond)
	s.Record("fetch", "success", 10*time.Millisecond)
	s.Record("fetch", "failed", 30*time.Millisecond)

	reports := s.Reports()
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].Op != "fetch" || reports[1].Op != "parse" {
		t.Fatalf("expected reports sorted by op, got %s, %s", reports[0].Op, reports[1].Op)
	}
	if reports[0].Outcomes["success"] != 1 || reports[0].Outcomes["failed"] != 1 {
		t.Errorf("unexpected fetch outcomes: %v", reports[0].Outcomes)
	}
	if reports[0].Latency.Count != 2 || reports[0].Latency.MaxMs != 30 {
		t.Errorf("unexpected fetch latency: %+v", reports[0].Latency)
	}
}
