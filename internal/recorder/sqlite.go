package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"MarketScreener/internal/model"
)

// SQLiteRecorder persists screen runs to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so history reads don't block the post-scan write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			duration_ms   INTEGER NOT NULL,
			universe_size INTEGER NOT NULL,
			evaluated     INTEGER NOT NULL,
			skipped       INTEGER NOT NULL,
			matched       INTEGER NOT NULL,
			screen        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON scan_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS scan_matches (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          INTEGER NOT NULL,
			rank            INTEGER NOT NULL,
			symbol          TEXT NOT NULL,
			name            TEXT,
			close           REAL,
			avg_volume_lots REAL,
			width           REAL,
			metric          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_run ON scan_matches(run_id)`,

		`CREATE TABLE IF NOT EXISTS scan_skips (
			id     INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			name   TEXT,
			reason TEXT NOT NULL,
			detail TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_skips_run ON scan_skips(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordScan writes one completed run with its matches and skips in a single
// transaction.
func (r *SQLiteRecorder) RecordScan(rep *model.ScreenReport, screenDesc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	matches := rep.Matches()
	res, err := tx.Exec(`INSERT INTO scan_runs
		(started_at, finished_at, duration_ms, universe_size, evaluated, skipped, matched, screen)
		VALUES (?,?,?,?,?,?,?,?)`,
		rep.StartedAt.Unix(), rep.FinishedAt.Unix(), rep.Duration().Milliseconds(),
		rep.UniverseSize, len(rep.Results), len(rep.Skipped), len(matches), screenDesc,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("run id: %w", err)
	}

	matchStmt, err := tx.Prepare(`INSERT INTO scan_matches
		(run_id, rank, symbol, name, close, avg_volume_lots, width, metric)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare match insert: %w", err)
	}
	defer matchStmt.Close()
	for i, m := range matches {
		if _, err := matchStmt.Exec(runID, i+1, m.Symbol, m.Name, m.Close,
			m.Liquidity.AvgVolumeLots, m.Convergence.Width, string(m.Convergence.Metric)); err != nil {
			return fmt.Errorf("insert match %s: %w", m.Symbol, err)
		}
	}

	skipStmt, err := tx.Prepare(`INSERT INTO scan_skips
		(run_id, symbol, name, reason, detail)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare skip insert: %w", err)
	}
	defer skipStmt.Close()
	for _, s := range rep.Skipped {
		if _, err := skipStmt.Exec(runID, s.Symbol, s.Name, string(s.Reason), s.Detail); err != nil {
			return fmt.Errorf("insert skip %s: %w", s.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RecentRuns returns the latest run summaries, newest first.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(`SELECT id, started_at, duration_ms, universe_size, evaluated, skipped, matched, screen
		FROM scan_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var startedAt int64
		if err := rows.Scan(&s.ID, &startedAt, &s.DurationMS, &s.UniverseSize,
			&s.Evaluated, &s.Skipped, &s.Matched, &s.Screen); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		s.StartedAt = time.Unix(startedAt, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneBefore deletes runs started before cutoff together with their matches
// and skips, and returns the number of runs removed.
func (r *SQLiteRecorder) PruneBefore(cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := cutoff.Unix()
	if _, err := tx.Exec(`DELETE FROM scan_matches WHERE run_id IN
		(SELECT id FROM scan_runs WHERE started_at < ?)`, ts); err != nil {
		return 0, fmt.Errorf("prune matches: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM scan_skips WHERE run_id IN
		(SELECT id FROM scan_runs WHERE started_at < ?)`, ts); err != nil {
		return 0, fmt.Errorf("prune skips: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM scan_runs WHERE started_at < ?`, ts)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	if n > 0 {
		log.Printf("[INFO] sqlite recorder pruned %d runs before %s", n, cutoff.Format("2006-01-02"))
	}
	return n, nil
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
