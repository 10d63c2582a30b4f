package gateway

import (
	"time"

	"MarketScreener/internal/model"
)

// MatchPayload is one matched symbol in wire form. Matched symbols passed
// every filter, so all values here are defined.
type MatchPayload struct {
	Rank          int     `json:"rank"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name,omitempty"`
	Close         float64 `json:"close"`
	AvgVolumeLots float64 `json:"avg_volume_lots"`
	Width         float64 `json:"width"`
	Metric        string  `json:"metric"`
}

// ProgressPayload accompanies scan_progress events.
type ProgressPayload struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// ReportPayload is the wire form of a completed run: the match list in rank
// order plus aggregate counts. Evidence for non-matching symbols stays
// internal, which also keeps undefined values away from the JSON encoder.
type ReportPayload struct {
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	DurationMS   int64          `json:"duration_ms"`
	UniverseSize int            `json:"universe_size"`
	Evaluated    int            `json:"evaluated"`
	Skipped      map[string]int `json:"skipped"`
	Matches      []MatchPayload `json:"matches"`
}

// BuildReportPayload converts a completed report into its wire form.
func BuildReportPayload(rep *model.ScreenReport) *ReportPayload {
	skipped := make(map[string]int)
	for reason, n := range rep.SkipCounts() {
		skipped[string(reason)] = n
	}

	matches := rep.Matches()
	out := make([]MatchPayload, len(matches))
	for i, m := range matches {
		out[i] = MatchPayload{
			Rank:          i + 1,
			Symbol:        m.Symbol,
			Name:          m.Name,
			Close:         m.Close,
			AvgVolumeLots: m.Liquidity.AvgVolumeLots,
			Width:         m.Convergence.Width,
			Metric:        string(m.Convergence.Metric),
		}
	}

	return &ReportPayload{
		StartedAt:    rep.StartedAt,
		FinishedAt:   rep.FinishedAt,
		DurationMS:   rep.Duration().Milliseconds(),
		UniverseSize: rep.UniverseSize,
		Evaluated:    len(rep.Results),
		Skipped:      skipped,
		Matches:      out,
	}
}
