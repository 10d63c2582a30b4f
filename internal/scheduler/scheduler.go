package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"MarketScreener/internal/gateway"
	"MarketScreener/internal/metrics"
	"MarketScreener/internal/model"
	"MarketScreener/internal/notifier"
	"MarketScreener/internal/recorder"
	"MarketScreener/internal/screener"

	"github.com/robfig/cron/v3"
)

// notifyLimit caps how many matches a Telegram report lists in full.
const notifyLimit = 10

// progressEvery throttles scan_progress events so large universes don't
// flood the WebSocket.
const progressEvery = 25

// Scheduler runs the screen on a cron schedule and fans the outcome out to
// Telegram, the WebSocket hub, the recorder and the health tracker.
type Scheduler struct {
	Cron      *cron.Cron
	Runner    *screener.Runner
	Notifier  *notifier.TelegramNotifier
	Recorder  recorder.Recorder
	Health    *metrics.Health
	Hub       *gateway.Hub
	Retention time.Duration
	Ctx       context.Context

	mu        sync.Mutex
	running   bool
	last      *model.ScreenReport
	startedAt time.Time
}

// NewScheduler creates a Scheduler whose cron fires in the given timezone.
// An unknown timezone falls back to local time.
func NewScheduler(ctx context.Context, runner *screener.Runner, tn *notifier.TelegramNotifier,
	rec recorder.Recorder, health *metrics.Health, hub *gateway.Hub,
	timezone string, retention time.Duration) *Scheduler {

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Printf("[WARN] load timezone %q: %v, using local time", timezone, err)
		loc = time.Local
	}

	s := &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Runner:    runner,
		Notifier:  tn,
		Recorder:  rec,
		Health:    health,
		Hub:       hub,
		Retention: retention,
		Ctx:       ctx,
		startedAt: time.Now(),
	}

	runner.Progress = func(done, total int, _ model.Symbol) {
		if done%progressEvery == 0 || done == total {
			s.Hub.Broadcast(gateway.EventScanProgress, gateway.ProgressPayload{Done: done, Total: total})
		}
	}
	return s
}

// RegisterAll registers the scan and history-prune tasks.
func (s *Scheduler) RegisterAll(scanCron, pruneCron string) error {
	if _, err := s.Cron.AddFunc(scanCron, s.scanTask); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	if _, err := s.Cron.AddFunc(pruneCron, s.pruneTask); err != nil {
		return fmt.Errorf("register prune task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	log.Println("[INFO] scheduler stopped")
}

// RunScanNow executes the scan task immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunScanNow() {
	s.scanTask()
}

// LastReport returns the most recent completed report, nil before the first.
func (s *Scheduler) LastReport() *model.ScreenReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) scanTask() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("[WARN] scan already in progress, trigger ignored")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log.Println("[INFO] running scan task")
	s.Hub.Broadcast(gateway.EventScanStarted, nil)
	s.Health.SetScanning(true)
	rep, err := s.Runner.Run(s.Ctx)
	s.Health.SetScanning(false)

	if err != nil {
		log.Printf("[ERROR] scan task: %v", err)
		s.Hub.Broadcast(gateway.EventScanFailed, map[string]string{"error": err.Error()})
		matches, universe := 0, 0
		if rep != nil {
			matches, universe = len(rep.Matches()), rep.UniverseSize
		}
		s.Health.SetLastScan(time.Now(), matches, universe, err)
		s.trySend(notifier.FormatScanFailure(err))
		return
	}

	s.mu.Lock()
	s.last = rep
	s.mu.Unlock()

	s.Health.SetLastScan(rep.FinishedAt, len(rep.Matches()), rep.UniverseSize, nil)
	s.Hub.PublishReport(gateway.BuildReportPayload(rep))
	if err := s.Recorder.RecordScan(rep, s.Runner.Screen.Describe()); err != nil {
		log.Printf("[ERROR] record scan: %v", err)
	}
	s.trySend(notifier.FormatScanReport(rep, notifyLimit))
}

func (s *Scheduler) pruneTask() {
	if s.Retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.Retention)
	n, err := s.Recorder.PruneBefore(cutoff)
	if err != nil {
		log.Printf("[ERROR] prune history: %v", err)
		return
	}
	log.Printf("[INFO] history prune removed %d runs older than %s", n, cutoff.Format("2006-01-02"))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	switch command {
	case "/scan", "立即掃描":
		go s.scanTask()
		return "已觸發立即掃描,完成後將推送結果"
	case "/last", "最新結果":
		last := s.LastReport()
		if last == nil {
			return "尚無掃描結果,請先執行 /scan"
		}
		return notifier.FormatScanReport(last, notifyLimit)
	case "/history", "掃描歷史":
		runs, err := s.Recorder.RecentRuns(5)
		if err != nil {
			return fmt.Sprintf("讀取歷史失敗: %v", err)
		}
		if len(runs) == 0 {
			return "尚無掃描歷史"
		}
		return formatHistory(runs)
	case "/status", "服務狀態":
		return s.statusReply()
	default:
		return "可用命令:\n• /scan 立即掃描\n• /last 最新結果\n• /history 掃描歷史\n• /status 服務狀態"
	}
}

func (s *Scheduler) statusReply() string {
	last := s.LastReport()
	var b strings.Builder
	b.WriteString("ℹ️ <b>服務狀態</b>\n\n")
	b.WriteString(fmt.Sprintf("運行時間:%s\n", time.Since(s.startedAt).Round(time.Second)))
	b.WriteString(fmt.Sprintf("篩選條件:%s\n", s.Runner.Screen.Describe()))
	if last != nil {
		b.WriteString(fmt.Sprintf("上次掃描:%s(符合 %d 檔)\n",
			last.FinishedAt.Format("2006-01-02 15:04"), len(last.Matches())))
	} else {
		b.WriteString("上次掃描:尚未執行\n")
	}
	return b.String()
}

func formatHistory(runs []recorder.RunSummary) string {
	var b strings.Builder
	b.WriteString("🗂 <b>最近掃描</b>\n\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("%s | 範圍 %d 檔 | 符合 %d 檔 | 略過 %d 檔\n",
			r.StartedAt.Format("01-02 15:04"), r.UniverseSize, r.Matched, r.Skipped))
	}
	return b.String()
}

func (s *Scheduler) trySend(text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(s.Ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
