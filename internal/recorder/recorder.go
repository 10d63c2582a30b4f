package recorder

import (
	"time"

	"MarketScreener/internal/model"
)

// RunSummary is one row of scan history.
type RunSummary struct {
	ID           int64
	StartedAt    time.Time
	DurationMS   int64
	UniverseSize int
	Evaluated    int
	Skipped      int
	Matched      int
	Screen       string
}

// Recorder persists completed screen runs for history and analysis.
type Recorder interface {
	RecordScan(rep *model.ScreenReport, screenDesc string) error
	RecentRuns(limit int) ([]RunSummary, error)
	PruneBefore(cutoff time.Time) (int64, error)
	Close() error
}
