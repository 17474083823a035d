package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	group_id   INTEGER NOT NULL DEFAULT 0,
	user_id    INTEGER NOT NULL DEFAULT 0,
	actor_id   INTEGER NOT NULL DEFAULT 0,
	detail     TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_group_time ON audit_events(group_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_events(created_at);
`

// SQLiteSink stores events in a local SQLite database.
type SQLiteSink struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	logger     *slog.Logger
}

// NewSQLiteSink opens (creating if needed) the database at path.
func NewSQLiteSink(path string, busyTimeout time.Duration) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT OR IGNORE INTO audit_events
		(id, type, group_id, user_id, actor_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare audit insert: %w", err)
	}

	return &SQLiteSink{
		db:         db,
		insertStmt: stmt,
		logger:     slog.Default().With("component", "audit.sqlite"),
	}, nil
}

// Write inserts e. Duplicate ids are ignored.
func (s *SQLiteSink) Write(ctx context.Context, e Event) error {
	var detail []byte
	if len(e.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(e.Detail); err != nil {
			return fmt.Errorf("failed to encode audit detail: %w", err)
		}
	}

	_, err := s.insertStmt.ExecContext(ctx,
		e.ID, string(e.Type), e.GroupID, e.UserID, e.ActorID, nullString(detail), e.Time.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Recent returns matching events, newest first. Limit defaults to 50.
func (s *SQLiteSink) Recent(ctx context.Context, q Query) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if q.GroupID != 0 {
		where = append(where, "group_id = ?")
		args = append(args, q.GroupID)
	}
	if q.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := "SELECT id, type, group_id, user_id, actor_id, detail, created_at FROM audit_events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			typ     string
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &typ, &e.GroupID, &e.UserID, &e.ActorID, &detail, &created); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = Type(typ)
		e.Time = time.UnixMilli(created).UTC()
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				s.logger.Warn("corrupt audit detail", "id", e.ID, "error", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes events older than olderThan and returns how many were removed.
func (s *SQLiteSink) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE created_at < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit events: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	s.insertStmt.Close()
	return s.db.Close()
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
