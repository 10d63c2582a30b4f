package notifier

import (
	"fmt"
	"strings"
	"time"

	"MarketScreener/internal/model"
)

var skipLabels = map[model.SkipReason]string{
	model.SkipSymbolUnavailable:   "取得失敗",
	model.SkipInsufficientHistory: "資料不足",
	model.SkipMalformedSeries:     "資料異常",
}

func skipLabel(r model.SkipReason) string {
	if label, ok := skipLabels[r]; ok {
		return label
	}
	return string(r)
}

func widthText(ev model.ConvergenceEvidence) string {
	if ev.Metric == model.MetricAbsolute {
		return fmt.Sprintf("%.2f", ev.Width)
	}
	return fmt.Sprintf("%.2f%%", ev.Width)
}

// FormatScanReport formats a completed screen run into a Telegram message.
// At most limit matches are listed in full.
func FormatScanReport(rep *model.ScreenReport, limit int) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 <b>台股均線糾結掃描</b> | %s\n\n", rep.FinishedAt.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("掃描範圍 %d 檔,完成評估 %d 檔,略過 %d 檔\n",
		rep.UniverseSize, len(rep.Results), len(rep.Skipped)))

	matches := rep.Matches()
	if len(matches) == 0 {
		b.WriteString("\n今日無符合條件的標的\n")
	} else {
		b.WriteString(fmt.Sprintf("🎯 符合條件 %d 檔:\n\n", len(matches)))
		shown := matches
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}
		for i, m := range shown {
			b.WriteString(fmt.Sprintf("%d. <b>%s %s</b>\n", i+1, m.Symbol, m.Name))
			b.WriteString(fmt.Sprintf("   收盤 %.2f | %d日均量 %.0f 張 | 糾結 %s\n",
				m.Close, m.Liquidity.Window, m.Liquidity.AvgVolumeLots, widthText(m.Convergence)))
		}
		if len(matches) > len(shown) {
			b.WriteString(fmt.Sprintf("(另有 %d 檔未列出)\n", len(matches)-len(shown)))
		}
	}

	if len(rep.Skipped) > 0 {
		counts := rep.SkipCounts()
		var parts []string
		for _, reason := range []model.SkipReason{
			model.SkipSymbolUnavailable,
			model.SkipInsufficientHistory,
			model.SkipMalformedSeries,
		} {
			if n := counts[reason]; n > 0 {
				parts = append(parts, fmt.Sprintf("%s %d", skipLabel(reason), n))
			}
		}
		b.WriteString(fmt.Sprintf("\n⚠️ 略過明細:%s\n", strings.Join(parts, "、")))
	}

	return b.String()
}

// FormatScanSummary formats a one-line result for quick status replies.
func FormatScanSummary(rep *model.ScreenReport) string {
	return fmt.Sprintf("✅ 掃描完成 | 範圍 %d 檔 | 符合 %d 檔 | 耗時 %s",
		rep.UniverseSize, len(rep.Matches()), rep.Duration().Round(time.Second))
}

// FormatScanFailure formats a failed run for notification.
func FormatScanFailure(err error) string {
	return fmt.Sprintf("❌ <b>掃描失敗</b>\n%v", err)
}
