package recorder

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"MarketScreener/internal/model"
)

func newTestRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func reportAt(started time.Time) *model.ScreenReport {
	match := func(code, name string, close, width float64) model.ScreenResult {
		return model.ScreenResult{
			Symbol: code,
			Name:   name,
			Date:   started,
			Close:  close,
			Liquidity: model.LiquidityEvidence{
				Passed: true, Window: 5, AvgVolume: 12_000_000,
				AvgVolumeLots: 12_000, ThresholdLots: 2000,
			},
			Trend: model.TrendEvidence{Passed: true},
			Convergence: model.ConvergenceEvidence{
				Passed: true, Windows: []int{5, 10, 20},
				Metric: model.MetricRelative, Width: width, Limit: 3,
			},
		}
	}
	nonMatch := match("1101", "台泥", 32.5, 1.2)
	nonMatch.Trend.Passed = false
	nonMatch.Convergence.Passed = false
	nonMatch.Convergence.Width = math.NaN()

	return &model.ScreenReport{
		StartedAt:    started,
		FinishedAt:   started.Add(42 * time.Second),
		UniverseSize: 4,
		Results: []model.ScreenResult{
			match("2330", "台積電", 612, 0.8),
			match("2317", "鴻海", 104.5, 1.5),
			nonMatch,
		},
		Skipped: []model.SkippedSymbol{
			{Symbol: "9999", Reason: model.SkipSymbolUnavailable, Detail: "status 404"},
		},
	}
}

func TestRecordScanAndRecentRuns(t *testing.T) {
	r := newTestRecorder(t)

	first := time.Date(2026, 2, 2, 15, 30, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	if err := r.RecordScan(reportAt(first), "threshold=2000 lots, windows=[5 10 20 60]"); err != nil {
		t.Fatalf("RecordScan first: %v", err)
	}
	if err := r.RecordScan(reportAt(second), "threshold=2000 lots, windows=[5 10 20 60]"); err != nil {
		t.Fatalf("RecordScan second: %v", err)
	}

	runs, err := r.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].StartedAt.Unix() != second.Unix() {
		t.Errorf("runs not newest-first: got %v", runs[0].StartedAt)
	}
	got := runs[0]
	if got.UniverseSize != 4 || got.Evaluated != 3 || got.Skipped != 1 || got.Matched != 2 {
		t.Errorf("summary counts wrong: %+v", got)
	}
	if got.DurationMS != 42_000 {
		t.Errorf("duration = %d ms, want 42000", got.DurationMS)
	}
	if got.Screen != "threshold=2000 lots, windows=[5 10 20 60]" {
		t.Errorf("screen description not stored: %q", got.Screen)
	}
	if runs[0].ID == runs[1].ID {
		t.Errorf("run ids not distinct: %d", runs[0].ID)
	}
}

func TestRecentRunsHonorsLimit(t *testing.T) {
	r := newTestRecorder(t)

	base := time.Date(2026, 2, 2, 15, 30, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := r.RecordScan(reportAt(base.Add(time.Duration(i)*time.Hour)), "s"); err != nil {
			t.Fatalf("RecordScan %d: %v", i, err)
		}
	}

	runs, err := r.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected limit of 2 runs, got %d", len(runs))
	}
}

func TestPruneBeforeRemovesRunAndChildren(t *testing.T) {
	r := newTestRecorder(t)

	old := time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC)
	recent := time.Date(2026, 2, 2, 15, 30, 0, 0, time.UTC)
	if err := r.RecordScan(reportAt(old), "s"); err != nil {
		t.Fatalf("RecordScan old: %v", err)
	}
	if err := r.RecordScan(reportAt(recent), "s"); err != nil {
		t.Fatalf("RecordScan recent: %v", err)
	}

	n, err := r.PruneBefore(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d runs, want 1", n)
	}

	runs, err := r.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].StartedAt.Unix() != recent.Unix() {
		t.Fatalf("expected only the recent run to survive, got %+v", runs)
	}

	var matches, skips int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM scan_matches`).Scan(&matches); err != nil {
		t.Fatalf("count matches: %v", err)
	}
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM scan_skips`).Scan(&skips); err != nil {
		t.Fatalf("count skips: %v", err)
	}
	if matches != 2 || skips != 1 {
		t.Errorf("children not pruned with run: %d matches, %d skips", matches, skips)
	}
}

func TestNoopRecorder(t *testing.T) {
	n := NewNoopRecorder()
	if err := n.RecordScan(reportAt(time.Now()), "s"); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}
	runs, err := n.RecentRuns(5)
	if err != nil || runs != nil {
		t.Fatalf("RecentRuns = %v, %v; want nil, nil", runs, err)
	}
	pruned, err := n.PruneBefore(time.Now())
	if err != nil || pruned != 0 {
		t.Fatalf("PruneBefore = %d, %v; want 0, nil", pruned, err)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
