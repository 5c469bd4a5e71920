// Package state persists run progress so an interrupted run can be resumed.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbsmedya/refmetrics/internal/logger"
)

// RunStatus is the state of a project run.
type RunStatus int

const (
	RunStatusIdle      RunStatus = 0
	RunStatusRunning   RunStatus = 1
	RunStatusCompleted RunStatus = 2
	RunStatusAborted   RunStatus = 3
	RunStatusFailed    RunStatus = 4
)

func (s RunStatus) String() string {
	switch s {
	case RunStatusIdle:
		return "idle"
	case RunStatusRunning:
		return "running"
	case RunStatusCompleted:
		return "completed"
	case RunStatusAborted:
		return "aborted"
	case RunStatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("RunStatus(%d)", int(s))
	}
}

// LogStatus is the processing state of one commit.
type LogStatus string

const (
	LogStatusPending   LogStatus = "pending"
	LogStatusCompleted LogStatus = "completed"
	LogStatusAborted   LogStatus = "aborted"
	LogStatusFailed    LogStatus = "failed"
)

const createRunTableSQL = `
CREATE TABLE IF NOT EXISTS refmetrics_run (
	project_key VARCHAR(255) PRIMARY KEY,
	repo_url VARCHAR(1024) NOT NULL,
	run_status TINYINT NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	INDEX idx_status (run_status)
) ENGINE=InnoDB;
`

const createCommitLogTableSQL = `
CREATE TABLE IF NOT EXISTS refmetrics_commit_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	project_key VARCHAR(255) NOT NULL,
	commit_id VARCHAR(64) NOT NULL,
	log_status VARCHAR(20) NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	error_message TEXT,
	UNIQUE KEY uk_project_commit (project_key, commit_id),
	INDEX idx_project_status (project_key, log_status),
	FOREIGN KEY (project_key) REFERENCES refmetrics_run(project_key) ON DELETE CASCADE
) ENGINE=InnoDB;
`

// RunState is the stored state of a project run.
type RunState struct {
	ProjectKey string
	RepoURL    string
	Status     RunStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stats counts commit log entries by status.
type Stats struct {
	Pending   int
	Completed int
	Aborted   int
	Failed    int
}

// Ledger stores runs and per-commit progress in MySQL.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewLedger creates a ledger on db.
func NewLedger(db *sql.DB, log *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Ledger{db: db, logger: log}, nil
}

// InitializeTables creates the ledger tables if they don't exist.
func (l *Ledger) InitializeTables(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, createRunTableSQL); err != nil {
		return fmt.Errorf("failed to create refmetrics_run table: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, createCommitLogTableSQL); err != nil {
		return fmt.Errorf("failed to create refmetrics_commit_log table: %w", err)
	}
	l.logger.Debug("Ledger tables initialized")
	return nil
}

// GetRun returns the stored run of projectKey, or nil when there is none.
func (l *Ledger) GetRun(ctx context.Context, projectKey string) (*RunState, error) {
	var rs RunState
	err := l.db.QueryRowContext(ctx,
		"SELECT project_key, repo_url, run_status, created_at, updated_at FROM refmetrics_run WHERE project_key = ?",
		projectKey,
	).Scan(&rs.ProjectKey, &rs.RepoURL, &rs.Status, &rs.CreatedAt, &rs.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &rs, nil
}

// BeginRun marks the run of projectKey as running, creating it if needed.
// Unless resume is set, the commit log of a previous run is discarded.
func (l *Ledger) BeginRun(ctx context.Context, projectKey, repoURL string, resume bool) (*RunState, error) {
	rs, err := l.GetRun(ctx, projectKey)
	if err != nil {
		return nil, err
	}

	if rs == nil {
		l.logger.Infof("Creating run for project %q", projectKey)
		if _, err := l.db.ExecContext(ctx,
			"INSERT INTO refmetrics_run (project_key, repo_url, run_status) VALUES (?, ?, ?)",
			projectKey, repoURL, RunStatusRunning,
		); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		return &RunState{ProjectKey: projectKey, RepoURL: repoURL, Status: RunStatusRunning}, nil
	}

	if !resume {
		if _, err := l.db.ExecContext(ctx,
			"DELETE FROM refmetrics_commit_log WHERE project_key = ?",
			projectKey,
		); err != nil {
			return nil, fmt.Errorf("failed to reset commit log: %w", err)
		}
	} else {
		l.logger.Infof("Resuming project %q (previous status %s)", projectKey, rs.Status)
	}

	if _, err := l.db.ExecContext(ctx,
		"UPDATE refmetrics_run SET repo_url = ?, run_status = ?, updated_at = CURRENT_TIMESTAMP WHERE project_key = ?",
		repoURL, RunStatusRunning, projectKey,
	); err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}

	rs.RepoURL = repoURL
	rs.Status = RunStatusRunning
	return rs, nil
}

// FinishRun records the final status of the run.
func (l *Ledger) FinishRun(ctx context.Context, projectKey string, status RunStatus) error {
	if _, err := l.db.ExecContext(ctx,
		"UPDATE refmetrics_run SET run_status = ?, updated_at = CURRENT_TIMESTAMP WHERE project_key = ?",
		status, projectKey,
	); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	l.logger.Debugf("Run %q status updated to %s", projectKey, status)
	return nil
}

// GetStats returns commit counts by status for projectKey.
func (l *Ledger) GetStats(ctx context.Context, projectKey string) (Stats, error) {
	var st Stats

	rows, err := l.db.QueryContext(ctx,
		"SELECT log_status, COUNT(*) FROM refmetrics_commit_log WHERE project_key = ? GROUP BY log_status",
		projectKey,
	)
	if err != nil {
		return st, fmt.Errorf("failed to get stats: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	for rows.Next() {
		var status LogStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return st, fmt.Errorf("failed to scan stats: %w", err)
		}
		switch status {
		case LogStatusPending:
			st.Pending = count
		case LogStatusCompleted:
			st.Completed = count
		case LogStatusAborted:
			st.Aborted = count
		case LogStatusFailed:
			st.Failed = count
		}
	}

	return st, rows.Err()
}

// Project returns the checkpointer for projectKey.
func (l *Ledger) Project(projectKey string) *ProjectLog {
	return &ProjectLog{ledger: l, projectKey: projectKey}
}
