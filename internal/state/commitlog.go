package state

import (
	"context"
	"fmt"
)

// ProjectLog records per-commit progress of one project.
type ProjectLog struct {
	ledger     *Ledger
	projectKey string
}

// Completed returns the commits whose rows were fully written.
func (p *ProjectLog) Completed(ctx context.Context) (map[string]bool, error) {
	l := p.ledger
	rows, err := l.db.QueryContext(ctx,
		"SELECT commit_id FROM refmetrics_commit_log WHERE project_key = ? AND log_status = ?",
		p.projectKey, LogStatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed commits: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			l.logger.Warnf("Failed to close rows: %v", err)
		}
	}()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan commit id: %w", err)
		}
		done[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completed commits: %w", err)
	}

	return done, nil
}

// MarkPending records that work on commitID has started.
func (p *ProjectLog) MarkPending(ctx context.Context, commitID string) error {
	_, err := p.ledger.db.ExecContext(ctx,
		"INSERT INTO refmetrics_commit_log (project_key, commit_id, log_status) VALUES (?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE log_status = VALUES(log_status), error_message = NULL",
		p.projectKey, commitID, LogStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to log pending commit %s: %w", commitID, err)
	}
	return nil
}

// MarkCompleted records that both rows of commitID were written.
func (p *ProjectLog) MarkCompleted(ctx context.Context, commitID string) error {
	return p.update(ctx, commitID, LogStatusCompleted, "")
}

// MarkAborted records that the run stopped at commitID for lack of metrics.
func (p *ProjectLog) MarkAborted(ctx context.Context, commitID, reason string) error {
	return p.update(ctx, commitID, LogStatusAborted, reason)
}

// MarkFailed records that commitID failed with reason.
func (p *ProjectLog) MarkFailed(ctx context.Context, commitID, reason string) error {
	if err := p.update(ctx, commitID, LogStatusFailed, reason); err != nil {
		return err
	}
	p.ledger.logger.Warnf("Marked commit %s failed for project %q: %s", commitID, p.projectKey, reason)
	return nil
}

func (p *ProjectLog) update(ctx context.Context, commitID string, status LogStatus, reason string) error {
	var msg interface{}
	if reason != "" {
		msg = reason
	}

	_, err := p.ledger.db.ExecContext(ctx,
		"UPDATE refmetrics_commit_log SET log_status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE project_key = ? AND commit_id = ?",
		status, msg, p.projectKey, commitID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark commit %s %s: %w", commitID, status, err)
	}
	return nil
}
