package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"MarketBackfill/internal/model"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists coverage and fetch history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so reporting tools can read while a backfill writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coverage (
			symbol     TEXT NOT NULL,
			timeframe  TEXT NOT NULL,
			source     TEXT NOT NULL,
			start_date TEXT,
			end_date   TEXT,
			adjusted   INTEGER NOT NULL DEFAULT 1,
			row_count  INTEGER NOT NULL DEFAULT 0,
			path       TEXT,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (symbol, timeframe)
		)`,

		`CREATE TABLE IF NOT EXISTS fetch_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			run_id      TEXT,
			symbol      TEXT NOT NULL,
			timeframe   TEXT NOT NULL,
			source      TEXT,
			row_count   INTEGER,
			start_date  TEXT,
			end_date    TEXT,
			fetched     INTEGER,
			error       TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_ts ON fetch_history(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_run ON fetch_history(run_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) Coverage(ctx context.Context, symbol string, tf model.Timeframe) (model.CoverageRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT symbol, timeframe, source, start_date, end_date,
		adjusted, row_count, path, updated_at
		FROM coverage WHERE symbol = ? AND timeframe = ?`,
		normalizeSymbol(symbol), string(tf))

	var (
		rec        model.CoverageRecord
		tfText     string
		srcText    string
		start, end sql.NullString
		path       sql.NullString
		adjusted   int
		updated    int64
	)
	err := row.Scan(&rec.Symbol, &tfText, &srcText, &start, &end, &adjusted, &rec.Rows, &path, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CoverageRecord{}, false, nil
	}
	if err != nil {
		return model.CoverageRecord{}, false, fmt.Errorf("query coverage: %w", err)
	}
	rec.Timeframe = model.Timeframe(tfText)
	rec.Source = model.SourceKind(srcText)
	rec.Start = start.String
	rec.End = end.String
	rec.Path = path.String
	rec.Adjusted = adjusted != 0
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	return rec, true, nil
}

// RecordCoverage upserts the record keyed by (symbol, timeframe).
func (r *SQLiteRecorder) RecordCoverage(ctx context.Context, rec model.CoverageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = r.now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO coverage
		(symbol, timeframe, source, start_date, end_date, adjusted, row_count, path, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, timeframe) DO UPDATE SET
			source = excluded.source,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			adjusted = excluded.adjusted,
			row_count = excluded.row_count,
			path = excluded.path,
			updated_at = excluded.updated_at`,
		normalizeSymbol(rec.Symbol), string(rec.Timeframe), string(rec.Source),
		rec.Start, rec.End, boolInt(rec.Adjusted), rec.Rows, rec.Path,
		updated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert coverage: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetch(ctx context.Context, evt *FetchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO fetch_history
		(timestamp, run_id, symbol, timeframe, source, row_count, start_date, end_date, fetched, error, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.RunID, normalizeSymbol(evt.Symbol), string(evt.Timeframe),
		string(evt.Source), evt.Rows, evt.Start, evt.End, boolInt(evt.Fetched),
		evt.Error, evt.Duration.Milliseconds(),
	)
	return err
}

// FetchCount returns how many history rows carry runID.
func (r *SQLiteRecorder) FetchCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fetch_history WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
