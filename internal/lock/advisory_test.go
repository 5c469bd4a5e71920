package lock

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	getLockSQL     = "SELECT GET_LOCK(?, ?)"
	releaseLockSQL = "SELECT RELEASE_LOCK(?)"
)

func newMock(t *testing.T) (*AdvisoryLock, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProjectLock(db, "axiosaxios"), mock
}

func lockRow(v interface{}) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"result"}).AddRow(v)
}

func TestGenerateProjectLockName(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"axiosaxios", "refmetrics:project:axiosaxios"},
		{"my project", "refmetrics:project:my_project"},
		{"a'b;c", "refmetrics:project:a_b_c"},
		{"", "refmetrics:project:"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateProjectLockName(tt.key))
		})
	}

	long := GenerateProjectLockName(strings.Repeat("x", 200))
	assert.Len(t, long, maxLockNameLen)
	assert.True(t, strings.HasPrefix(long, "refmetrics:project:"))
}

func TestAcquireAndRelease(t *testing.T) {
	l, mock := newMock(t)
	ctx := context.Background()

	mock.ExpectQuery(getLockSQL).WithArgs(l.LockName(), TimeoutShort).WillReturnRows(lockRow(1))
	mock.ExpectQuery(releaseLockSQL).WithArgs(l.LockName()).WillReturnRows(lockRow(1))

	require.NoError(t, l.AcquireOrFail(ctx))
	assert.True(t, l.IsHeld())

	// Re-acquiring a held lock does not query again.
	ok, err := l.AcquireLock(ctx, TimeoutShort)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err := l.ReleaseLock(ctx)
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, l.IsHeld())

	released, err = l.ReleaseLock(ctx)
	require.NoError(t, err)
	assert.False(t, released)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireOrFail_HeldElsewhere(t *testing.T) {
	l, mock := newMock(t)

	mock.ExpectQuery(getLockSQL).WithArgs(l.LockName(), TimeoutShort).WillReturnRows(lockRow(0))

	err := l.AcquireOrFail(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.False(t, l.IsHeld())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_Errors(t *testing.T) {
	t.Run("null result", func(t *testing.T) {
		l, mock := newMock(t)
		mock.ExpectQuery(getLockSQL).WillReturnRows(lockRow(nil))

		_, err := l.AcquireLock(context.Background(), TimeoutImmediate)
		assert.Error(t, err)
		assert.False(t, l.IsHeld())
	})

	t.Run("query error", func(t *testing.T) {
		l, mock := newMock(t)
		mock.ExpectQuery(getLockSQL).WillReturnError(errors.New("connection lost"))

		_, err := l.AcquireLock(context.Background(), TimeoutImmediate)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection lost")
	})

	t.Run("unexpected value", func(t *testing.T) {
		l, mock := newMock(t)
		mock.ExpectQuery(getLockSQL).WillReturnRows(lockRow(7))

		_, err := l.AcquireLock(context.Background(), TimeoutImmediate)
		assert.Error(t, err)
	})
}

func TestReleaseLock_Null(t *testing.T) {
	l, mock := newMock(t)
	mock.ExpectQuery(getLockSQL).WillReturnRows(lockRow(1))
	mock.ExpectQuery(releaseLockSQL).WillReturnRows(lockRow(nil))

	require.NoError(t, l.AcquireOrFail(context.Background()))
	_, err := l.ReleaseLock(context.Background())
	assert.Error(t, err)
	assert.False(t, l.IsHeld())
}

