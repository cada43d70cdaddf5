package deploylock

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/docpublisher/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS deploy_locks (
	group_key TEXT PRIMARY KEY,
	holder TEXT NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);`

// The upsert only fires when the current lease is expired or already ours,
// so a single statement decides ownership across processes.
const acquireSQL = `
INSERT INTO deploy_locks (group_key, holder, acquired_at, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(group_key) DO UPDATE SET
	holder = excluded.holder,
	acquired_at = excluded.acquired_at,
	expires_at = excluded.expires_at
WHERE deploy_locks.expires_at <= ? OR deploy_locks.holder = excluded.holder`

// SQLiteLocker stores leases in a SQLite file shared by every process that
// deploys to the same targets.
type SQLiteLocker struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteLocker opens (creating when needed) the lease database at path.
func NewSQLiteLocker(path string) (*SQLiteLocker, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open lock database: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize lock database: %w", err)
		}
	}
	return &SQLiteLocker{db: db, now: time.Now}, nil
}

// TryAcquire implements Locker.
func (s *SQLiteLocker) TryAcquire(ctx context.Context, group, holder string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, acquireSQL,
		group, holder, now.UnixMilli(), now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("upsert lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Release implements Locker.
func (s *SQLiteLocker) Release(ctx context.Context, group, holder string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM deploy_locks WHERE group_key = ? AND holder = ?", group, holder); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// Holder reports the current unexpired holder of group, if any.
func (s *SQLiteLocker) Holder(ctx context.Context, group string) (string, bool, error) {
	var holder string
	err := s.db.QueryRowContext(ctx,
		"SELECT holder FROM deploy_locks WHERE group_key = ? AND expires_at > ?", group, s.now().UnixMilli()).Scan(&holder)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return holder, true, nil
}

// Close implements Locker.
func (s *SQLiteLocker) Close() error { return s.db.Close() }

// New builds the configured Locker. Relative paths resolve against the
// repository.
func New(cfg *config.Config) (Locker, error) {
	switch cfg.Publish.Lock.Backend {
	case config.LockMemory:
		return NewMemoryLocker(), nil
	default:
		return NewSQLiteLocker(cfg.Resolve(cfg.Publish.Lock.Path))
	}
}
