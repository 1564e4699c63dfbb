package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openomni/omni/schema"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	run_id        TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	parent_run_id TEXT NOT NULL DEFAULT '',
	runner_type   TEXT NOT NULL DEFAULT '',
	runner_name   TEXT NOT NULL DEFAULT '',
	task          TEXT NOT NULL DEFAULT '',
	response      TEXT NOT NULL DEFAULT '',
	success       INTEGER NOT NULL DEFAULT 0,
	steps         INTEGER NOT NULL DEFAULT 0,
	timestamp     INTEGER NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
`

// SQLStore persists sessions in SQLite. AddRun runs in one transaction so
// a run insert and the session touch are atomic.
type SQLStore struct {
	db  *sql.DB
	log *slog.Logger
}

// SQLOption customizes a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLLogger sets the logger used for maintenance operations.
func WithSQLLogger(log *slog.Logger) SQLOption {
	return func(s *SQLStore) { s.log = log }
}

// NewSQLStore opens (and migrates) the database at path. Use ":memory:"
// for an ephemeral store.
func NewSQLStore(path string, opts ...SQLOption) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	s := &SQLStore{db: db, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Session, error) {
	var (
		sess      Session
		stateJSON string
		created   int64
		updated   int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, name, state, created_at, updated_at FROM sessions WHERE id = ?", id).
		Scan(&sess.ID, &sess.UserID, &sess.Name, &stateJSON, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", schema.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	sess.CreatedAt = time.Unix(0, created)
	sess.UpdatedAt = time.Unix(0, updated)
	if stateJSON != "" && stateJSON != "{}" {
		if err := json.Unmarshal([]byte(stateJSON), &sess.State); err != nil {
			return nil, fmt.Errorf("decode session state: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, parent_run_id, runner_type, runner_name, task, response,
		        success, steps, timestamp, metadata
		   FROM runs WHERE session_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			run      RunRecord
			success  int
			ts       int64
			metaJSON string
		)
		if err := rows.Scan(&run.RunID, &run.ParentRunID, &run.RunnerType, &run.RunnerName,
			&run.Task, &run.Response, &success, &run.Steps, &ts, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Success = success != 0
		run.Timestamp = time.Unix(0, ts)
		if metaJSON != "" && metaJSON != "{}" {
			if err := json.Unmarshal([]byte(metaJSON), &run.Metadata); err != nil {
				return nil, fmt.Errorf("decode run metadata: %w", err)
			}
		}
		sess.Runs = append(sess.Runs, run)
	}
	return &sess, rows.Err()
}

func (s *SQLStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("save session: missing id")
	}
	sess.UpdatedAt = time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}
	stateJSON, err := json.Marshal(sess.State)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, name, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   user_id = excluded.user_id,
		   name = excluded.name,
		   state = excluded.state,
		   updated_at = excluded.updated_at`,
		sess.ID, sess.UserID, sess.Name, string(stateJSON),
		sess.CreatedAt.UnixNano(), sess.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, run := range sess.Runs {
		if err := insertRun(ctx, tx, sess.ID, run); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertRun(ctx context.Context, tx *sql.Tx, sessionID string, run RunRecord) error {
	metaJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	success := 0
	if run.Success {
		success = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, session_id, parent_run_id, runner_type, runner_name,
		                   task, response, success, steps, timestamp, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO NOTHING`,
		run.RunID, sessionID, run.ParentRunID, run.RunnerType, run.RunnerName,
		run.Task, run.Response, success, run.Steps, run.Timestamp.UnixNano(), string(metaJSON))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLStore) AddRun(ctx context.Context, id string, run RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, now, now)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if err := insertRun(ctx, tx, id, run); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM sessions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLStore) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("expired sessions removed", "count", n)
	}
	return int(n), nil
}

func (s *SQLStore) Close() error { return s.db.Close() }
