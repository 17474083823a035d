package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteBackend implements Backend on a single SQLite file.
//
// The database runs in WAL mode with a single connection; a background
// goroutine checkpoints the WAL periodically.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once
	logger             *slog.Logger

	getStmt       *sql.Stmt
	upsertStmt    *sql.Stmt
	deleteStmt    *sql.Stmt
	listStmt      *sql.Stmt
	registerStmt  *sql.Stmt
	listUsersStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.DBPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, newStorageError("sqlite", "open", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
		logger:             slog.Default().With("component", "store.sqlite"),
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, newStorageError("sqlite", "init_schema", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, newStorageError("sqlite", "prepare", err)
	}

	go s.checkpointLoop()

	s.logger.Info("sqlite store opened", "path", cfg.DBPath)
	return s, nil
}

func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS group_policies (
		group_id INTEGER PRIMARY KEY,
		channels TEXT NOT NULL,
		channel_ids TEXT NOT NULL DEFAULT '{}',
		mute_seconds INTEGER NOT NULL DEFAULT 0,
		updated_by INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS registered_users (
		user_id INTEGER PRIMARY KEY,
		registered_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(`
		SELECT channels, channel_ids, mute_seconds, updated_by, created_at, updated_at
		FROM group_policies
		WHERE group_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare get statement: %w", err)
	}

	s.upsertStmt, err = s.db.Prepare(`
		INSERT INTO group_policies (group_id, channels, channel_ids, mute_seconds, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id) DO UPDATE SET
			channels = excluded.channels,
			channel_ids = excluded.channel_ids,
			mute_seconds = excluded.mute_seconds,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
		RETURNING created_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert statement: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(`DELETE FROM group_policies WHERE group_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}

	s.listStmt, err = s.db.Prepare(`SELECT group_id FROM group_policies ORDER BY group_id`)
	if err != nil {
		return fmt.Errorf("failed to prepare list statement: %w", err)
	}

	s.registerStmt, err = s.db.Prepare(`
		INSERT INTO registered_users (user_id, registered_at)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare register statement: %w", err)
	}

	s.listUsersStmt, err = s.db.Prepare(`SELECT user_id FROM registered_users ORDER BY user_id`)
	if err != nil {
		return fmt.Errorf("failed to prepare list users statement: %w", err)
	}

	return nil
}

// GetPolicy returns the group's policy or ErrNotFound.
func (s *SQLiteBackend) GetPolicy(ctx context.Context, groupID int64) (*GroupPolicy, error) {
	var (
		channelsJSON   string
		channelIDsJSON string
		muteSeconds    int64
		updatedBy      int64
		createdAt      int64
		updatedAt      int64
	)

	err := s.getStmt.QueryRowContext(ctx, groupID).Scan(
		&channelsJSON, &channelIDsJSON, &muteSeconds, &updatedBy, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newStorageError("sqlite", "get_policy", err)
	}

	var rec policyRecord
	if err := json.Unmarshal([]byte(channelsJSON), &rec.Channels); err != nil {
		return nil, newStorageError("sqlite", "decode_channels", err)
	}
	if err := json.Unmarshal([]byte(channelIDsJSON), &rec.ChannelIDs); err != nil {
		return nil, newStorageError("sqlite", "decode_channel_ids", err)
	}
	refs, err := decodeChannels(rec.Channels)
	if err != nil {
		return nil, newStorageError("sqlite", "decode_channels", err)
	}

	return &GroupPolicy{
		GroupID:      groupID,
		Channels:     refs,
		ChannelIDs:   rec.ChannelIDs,
		MuteDuration: time.Duration(muteSeconds) * time.Second,
		UpdatedBy:    updatedBy,
		CreatedAt:    time.Unix(createdAt, 0),
		UpdatedAt:    time.Unix(updatedAt, 0),
	}, nil
}

// SetPolicy upserts the group's policy.
func (s *SQLiteBackend) SetPolicy(ctx context.Context, policy *GroupPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	rec := encodePolicy(policy)
	channelsJSON, err := json.Marshal(rec.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal channels: %w", err)
	}
	if rec.ChannelIDs == nil {
		rec.ChannelIDs = map[string]int64{}
	}
	channelIDsJSON, err := json.Marshal(rec.ChannelIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal channel ids: %w", err)
	}

	now := time.Now()
	var createdAt int64
	err = s.upsertStmt.QueryRowContext(ctx,
		policy.GroupID,
		string(channelsJSON),
		string(channelIDsJSON),
		int64(policy.MuteDuration/time.Second),
		policy.UpdatedBy,
		now.Unix(),
		now.Unix(),
	).Scan(&createdAt)
	if err != nil {
		return newStorageError("sqlite", "set_policy", err)
	}

	policy.CreatedAt = time.Unix(createdAt, 0)
	policy.UpdatedAt = time.Unix(now.Unix(), 0)
	return nil
}

// DeletePolicy removes the group's policy.
func (s *SQLiteBackend) DeletePolicy(ctx context.Context, groupID int64) (bool, error) {
	res, err := s.deleteStmt.ExecContext(ctx, groupID)
	if err != nil {
		return false, newStorageError("sqlite", "delete_policy", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, newStorageError("sqlite", "delete_policy", err)
	}
	return n > 0, nil
}

// ListGroups returns every enforced group.
func (s *SQLiteBackend) ListGroups(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, s.listStmt, "list_groups")
}

// RegisterUser records a user for broadcasts.
func (s *SQLiteBackend) RegisterUser(ctx context.Context, userID int64) error {
	if _, err := s.registerStmt.ExecContext(ctx, userID, time.Now().Unix()); err != nil {
		return newStorageError("sqlite", "register_user", err)
	}
	return nil
}

// ListUsers returns every registered user.
func (s *SQLiteBackend) ListUsers(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx, s.listUsersStmt, "list_users")
}

func (s *SQLiteBackend) queryIDs(ctx context.Context, stmt *sql.Stmt, op string) ([]int64, error) {
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, newStorageError("sqlite", op, err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, newStorageError("sqlite", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, newStorageError("sqlite", op, err)
	}
	return ids, nil
}

// Ping checks the database is reachable.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// checkpointLoop periodically checkpoints the WAL.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

// Close stops the checkpoint loop and closes the database.
func (s *SQLiteBackend) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		for _, stmt := range []*sql.Stmt{
			s.getStmt, s.upsertStmt, s.deleteStmt, s.listStmt, s.registerStmt, s.listUsersStmt,
		} {
			if stmt != nil {
				stmt.Close()
			}
		}

		if _, cpErr := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); cpErr != nil {
			s.logger.Warn("final wal checkpoint failed", "error", cpErr)
		}
		err = s.db.Close()
	})
	return err
}
