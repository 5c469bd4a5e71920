// Package lock serializes runs of the same project through MySQL advisory locks.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrLockTimeout is returned when another instance holds the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Timeouts for GET_LOCK, in seconds.
const (
	TimeoutImmediate = 0
	TimeoutShort     = 1
)

// maxLockNameLen is the MySQL limit on lock names.
const maxLockNameLen = 64

// AdvisoryLock is a named MySQL lock held on a dedicated connection.
//
// GET_LOCK is scoped to the session, so the lock pins one connection from the
// pool for as long as it is held. The lock is released by ReleaseLock or when
// that connection closes.
type AdvisoryLock struct {
	db       *sql.DB
	conn     *sql.Conn
	lockName string
}

// NewAdvisoryLock creates a lock named lockName. Nothing is acquired yet.
func NewAdvisoryLock(db *sql.DB, lockName string) *AdvisoryLock {
	return &AdvisoryLock{db: db, lockName: lockName}
}

// AcquireLock waits up to timeoutSeconds for the lock. It reports false when
// the timeout expired because another session holds the lock.
//
// GET_LOCK returns 1 when obtained, 0 on timeout and NULL on error.
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.IsHeld() {
		return true, nil
	}

	conn, err := a.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to reserve connection: %w", err)
	}

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		conn.Close()
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q", a.lockName)
	}

	switch result.Int64 {
	case 1:
		a.conn = conn
		return true, nil
	case 0:
		conn.Close()
		return false, nil
	default:
		conn.Close()
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

// AcquireOrFail acquires the lock with TimeoutShort and returns
// ErrLockTimeout when another instance holds it.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// ReleaseLock releases the lock and returns its connection to the pool.
// It reports false when the lock was not held.
//
// RELEASE_LOCK returns 1 when released, 0 when held by another session and
// NULL when the lock does not exist.
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.IsHeld() {
		return false, nil
	}
	conn := a.conn
	a.conn = nil
	defer conn.Close()

	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result); err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}
	return result.Int64 == 1, nil
}

// IsHeld reports whether this instance holds the lock.
func (a *AdvisoryLock) IsHeld() bool {
	return a.conn != nil
}

// LockName returns the lock name.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// GenerateProjectLockName returns the lock name for a project key, in the
// form "refmetrics:project:<key>". Characters outside [A-Za-z0-9_-] become
// underscores and the name is truncated to the MySQL limit.
func GenerateProjectLockName(projectKey string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, projectKey)

	name := "refmetrics:project:" + sanitized
	if len(name) > maxLockNameLen {
		name = name[:maxLockNameLen]
	}
	return name
}

// NewProjectLock creates the advisory lock guarding runs of projectKey.
func NewProjectLock(db *sql.DB, projectKey string) *AdvisoryLock {
	return NewAdvisoryLock(db, GenerateProjectLockName(projectKey))
}
