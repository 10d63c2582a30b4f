package recorder

import (
	"time"

	"MarketScreener/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordScan(_ *model.ScreenReport, _ string) error { return nil }
func (n *NoopRecorder) RecentRuns(_ int) ([]RunSummary, error)           { return nil, nil }
func (n *NoopRecorder) PruneBefore(_ time.Time) (int64, error)           { return 0, nil }
func (n *NoopRecorder) Close() error                                     { return nil }
