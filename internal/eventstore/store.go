// Package eventstore keeps an audit trail of relay outcomes in SQLite. It
// never stores audio or transcript text.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/relay"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite-backed outcome table.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	log = log.With(slog.String("component", "eventstore"))
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if _, err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS relay_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    outcome TEXT NOT NULL,
    status INTEGER NOT NULL,
    upstream_status INTEGER NOT NULL DEFAULT 0,
    filename TEXT,
    media_type TEXT,
    bytes INTEGER NOT NULL DEFAULT 0,
    text_length INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relay_outcomes_created ON relay_outcomes(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) disabled() bool {
	return s.cfg.RetentionMode == "ephemeral" || s.db == nil
}

// AppendOutcome records one relay call.
func (s *Store) AppendOutcome(ctx context.Context, o relay.Outcome) error {
	if s.disabled() {
		return nil
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO relay_outcomes(request_id, outcome, status, upstream_status, filename, media_type, bytes, text_length, duration_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RequestID, o.Kind.String(), o.Status, o.UpstreamStatus, o.Filename, o.MediaType,
		o.Bytes, o.TextLength, o.Duration.Milliseconds(), o.Timestamp.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// ObserveOutcome lets the store be registered as a relay observer.
func (s *Store) ObserveOutcome(ctx context.Context, o relay.Outcome) error {
	return s.AppendOutcome(ctx, o)
}

// Record is a stored outcome.
type Record struct {
	ID             int64         `json:"id"`
	RequestID      string        `json:"request_id"`
	Outcome        string        `json:"outcome"`
	Status         int           `json:"status"`
	UpstreamStatus int           `json:"upstream_status,omitempty"`
	Filename       string        `json:"filename,omitempty"`
	MediaType      string        `json:"media_type,omitempty"`
	Bytes          int           `json:"bytes"`
	TextLength     int           `json:"text_length"`
	Duration       time.Duration `json:"duration_ns"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ListOutcomes returns up to limit outcomes, newest first.
func (s *Store) ListOutcomes(ctx context.Context, limit int) ([]Record, error) {
	if s.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, outcome, status, upstream_status, filename, media_type, bytes, text_length, duration_ms, created_at
		 FROM relay_outcomes ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var filename, mediaType sql.NullString
		var durationMS, created int64
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Outcome, &r.Status, &r.UpstreamStatus,
			&filename, &mediaType, &r.Bytes, &r.TextLength, &durationMS, &created); err != nil {
			return nil, err
		}
		r.Filename = filename.String
		r.MediaType = mediaType.String
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.CreatedAt = time.UnixMilli(created).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByOutcome returns how many stored calls ended in each outcome.
func (s *Store) CountByOutcome(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{}
	if s.disabled() {
		return counts, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM relay_outcomes GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Prune applies configured retention (called on startup and on schedule)
// and returns the number of rows removed.
func (s *Store) Prune(ctx context.Context) (removed int64, err error) {
	if s.disabled() {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		res, execErr := tx.ExecContext(ctx, `DELETE FROM relay_outcomes WHERE created_at < ?`, cutoff.UTC().UnixMilli())
		if execErr != nil {
			return 0, execErr
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if s.cfg.MaxEvents > 0 {
		res, execErr := tx.ExecContext(ctx, `DELETE FROM relay_outcomes WHERE id IN (
			SELECT id FROM relay_outcomes ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxEvents)
		if execErr != nil {
			return 0, execErr
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	if removed > 0 {
		s.log.Info("pruned relay outcomes", slog.Int64("removed", removed))
	}
	return removed, nil
}
