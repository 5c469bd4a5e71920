// Package pipeline measures code metrics before and after each selected commit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dbsmedya/refmetrics/internal/analysis"
	"github.com/dbsmedya/refmetrics/internal/logger"
	"github.com/dbsmedya/refmetrics/internal/recorder"
	"github.com/dbsmedya/refmetrics/internal/repository"
)

// ErrNoMetrics is the abort reason when the analysis service has no metrics
// for the project.
var ErrNoMetrics = errors.New("no metrics available")

// Repository manages the working copy.
type Repository interface {
	Prepare(ctx context.Context, projectKey, repoURL string) error
	CheckoutExact(ctx context.Context, projectKey, commitID string) error
	CheckoutParent(ctx context.Context, projectKey, commitID string) error
	Head(projectKey string) (string, error)
	Path(projectKey string) string
}

// Analyzer is the analysis service together with its scanner.
type Analyzer interface {
	CreateProject(ctx context.Context, displayName, projectKey string) (string, error)
	IssueToken(ctx context.Context, tokenName string) (string, error)
	WriteProperties(dir, serviceProjectID string) error
	RunScan(ctx context.Context, dir, credential string) analysis.ScanResult
	FetchMetrics(ctx context.Context, serviceProjectID string) analysis.FetchResult
}

// Checkpointer persists per-commit progress so an interrupted run can be
// resumed.
type Checkpointer interface {
	Completed(ctx context.Context) (map[string]bool, error)
	MarkPending(ctx context.Context, commitID string) error
	MarkCompleted(ctx context.Context, commitID string) error
	MarkAborted(ctx context.Context, commitID, reason string) error
	MarkFailed(ctx context.Context, commitID, reason string) error
}

// Dependencies are the collaborators of a Pipeline. Checkpointer and Logger
// are optional.
type Dependencies struct {
	Repository   Repository
	Analyzer     Analyzer
	Checkpointer Checkpointer
	Logger       *logger.Logger
}

// Options configures a Pipeline.
type Options struct {
	RepoURL     string // identifier the project key is derived from
	CloneURL    string // defaults to RepoURL
	InputFile   string // shown in the project summary
	MeasuresDir string
	Delimiter   string
	Resume      bool // append to the existing table and skip completed commits
	FetchPolicy repository.RetryPolicy
}

// RunResult summarizes a run.
type RunResult struct {
	ProjectKey  string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Total       int
	Processed   int
	Skipped     int
	RowsWritten int
	Aborted     bool
	AbortedAt   string
	AbortReason error
}

// Pipeline runs the differential analysis for one project.
type Pipeline struct {
	repo        Repository
	analyzer    Analyzer
	checkpoint  Checkpointer
	logger      *logger.Logger
	opts        Options
	project     *ProjectContext
	recorder    *recorder.Recorder
	tokenName   func() string
	initialized bool
}

// New creates a pipeline. Initialize must be called before Execute.
func New(deps Dependencies, opts Options) (*Pipeline, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("repository is nil")
	}
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is nil")
	}
	if opts.MeasuresDir == "" {
		return nil, fmt.Errorf("measures directory is empty")
	}

	pc, err := NewProjectContext(opts.RepoURL, opts.CloneURL)
	if err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewDefault()
	}

	if opts.FetchPolicy.MaxAttempts <= 0 {
		opts.FetchPolicy.MaxAttempts = 3
	}

	return &Pipeline{
		repo:       deps.Repository,
		analyzer:   deps.Analyzer,
		checkpoint: deps.Checkpointer,
		logger:     log.WithProject(pc.ProjectKey),
		opts:       opts,
		project:    pc,
		tokenName:  uuid.NewString,
	}, nil
}

// Project returns the run's project context.
func (p *Pipeline) Project() *ProjectContext {
	return p.project
}

// OutputPath returns the location of the metrics table.
func (p *Pipeline) OutputPath() string {
	return filepath.Join(p.opts.MeasuresDir, p.project.ProjectKey+".csv")
}

// Initialize clones the repository, registers the project with the analysis
// service, issues a scanner credential and opens the metrics table.
// Project creation and credential failures are logged and tolerated.
func (p *Pipeline) Initialize(ctx context.Context) error {
	if p.initialized {
		return nil
	}

	pc := p.project
	ProjectSummary(p.logger, pc, p.opts.InputFile)

	p.logger.Infow("Cloning repository", "url", pc.CloneURL, "path", p.repo.Path(pc.ProjectKey))
	if err := p.repo.Prepare(ctx, pc.ProjectKey, pc.CloneURL); err != nil {
		return fmt.Errorf("failed to prepare working copy: %w", err)
	}
	p.logger.Info("Repository cloned")

	id, err := p.analyzer.CreateProject(ctx, pc.ProjectKey, pc.ProjectKey)
	if err != nil {
		p.logger.Warnw("Failed to create analysis project", "error", err)
	} else if id != "" {
		pc.ServiceProjectID = id
		p.logger.Infow("Analysis project created", "service_project_id", id)
	}

	pc.TokenName = p.tokenName()
	token, err := p.analyzer.IssueToken(ctx, pc.TokenName)
	if err != nil {
		p.logger.Warnw("Failed to issue scanner token", "token_name", pc.TokenName, "error", err)
	} else {
		pc.Credential = token
		p.logger.Infow("Scanner token issued", "token_name", pc.TokenName)
	}

	opts := recorder.Options{Delimiter: p.opts.Delimiter}
	if p.opts.Resume {
		p.recorder, err = recorder.Open(p.OutputPath(), opts)
	} else {
		p.recorder, err = recorder.Create(p.OutputPath(), opts)
	}
	if err != nil {
		return err
	}
	p.logger.Infow("Metrics table ready", "path", p.OutputPath(), "resume", p.opts.Resume)

	p.initialized = true
	return nil
}

// Execute measures every commit in order. It stops early, without error, the
// first time the analysis service reports no metrics. Rows written before a
// failure remain in the table.
func (p *Pipeline) Execute(ctx context.Context, commits []string) (*RunResult, error) {
	if !p.initialized {
		return nil, fmt.Errorf("pipeline not initialized")
	}

	result := &RunResult{
		ProjectKey: p.project.ProjectKey,
		StartedAt:  time.Now(),
		Total:      len(commits),
	}
	defer func() {
		result.CompletedAt = time.Now()
		result.Duration = result.CompletedAt.Sub(result.StartedAt)
	}()

	done := map[string]bool{}
	if p.checkpoint != nil && p.opts.Resume {
		var err error
		done, err = p.checkpoint.Completed(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load completed commits: %w", err)
		}
		if len(done) > 0 {
			p.logger.Infow("Resuming run", "completed_commits", len(done))
		}
	}

	p.logger.Infow("Starting analysis", "commits", len(commits))

	for i, commitID := range commits {
		select {
		case <-ctx.Done():
			p.logger.Warn("Context cancelled - stopping before next commit")
			return result, ctx.Err()
		default:
		}

		progress := fmt.Sprintf("%d/%d", i+1, len(commits))
		log := p.logger.WithCommit(commitID, progress)

		if done[commitID] {
			log.Info("Commit already measured, skipping")
			result.Skipped++
			continue
		}

		log.Infof("(%s) Analyzing commit %s", progress, commitID)

		if p.checkpoint != nil {
			if err := p.checkpoint.MarkPending(ctx, commitID); err != nil {
				return result, fmt.Errorf("failed to mark %s pending: %w", commitID, err)
			}
		}

		before, after, err := p.measureCommit(ctx, commitID, log)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// Left pending so a resumed run measures it again.
			log.Warnw("Run cancelled while measuring commit", "error", err)
			return result, fmt.Errorf("commit %s: %w", commitID, err)
		}
		if errors.Is(err, ErrNoMetrics) {
			result.Aborted = true
			result.AbortedAt = commitID
			result.AbortReason = err
			log.Warnw("No metrics available, stopping run", "reason", err)
			if p.checkpoint != nil {
				if cerr := p.checkpoint.MarkAborted(ctx, commitID, err.Error()); cerr != nil {
					log.Warnw("Failed to mark commit aborted", "error", cerr)
				}
			}
			break
		}
		if err != nil {
			if p.checkpoint != nil {
				if cerr := p.checkpoint.MarkFailed(ctx, commitID, err.Error()); cerr != nil {
					log.Warnw("Failed to mark commit failed", "error", cerr)
				}
			}
			return result, fmt.Errorf("commit %s: %w", commitID, err)
		}

		if err := p.recorder.Write(
			recorder.MetricsRow{Phase: recorder.Before, CommitID: commitID, Values: before},
			recorder.MetricsRow{Phase: recorder.After, CommitID: commitID, Values: after},
		); err != nil {
			return result, err
		}
		result.RowsWritten = p.recorder.Rows()
		log.Infow("Metrics written", "table", p.OutputPath())

		if p.checkpoint != nil {
			if err := p.checkpoint.MarkCompleted(ctx, commitID); err != nil {
				return result, fmt.Errorf("failed to mark %s completed: %w", commitID, err)
			}
		}

		result.Processed++
		log.Infof("(%s) Commit finished", progress)
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	runSummary(p.logger, result)

	return result, nil
}

// measureCommit returns the snapshots taken at the parent and at the commit.
func (p *Pipeline) measureCommit(ctx context.Context, commitID string, log *logger.Logger) (analysis.Snapshot, analysis.Snapshot, error) {
	key := p.project.ProjectKey

	blog := log.WithPhase(recorder.Before.String())
	blog.Info("Checking out commit")
	if err := p.repo.CheckoutExact(ctx, key, commitID); err != nil {
		return analysis.Snapshot{}, analysis.Snapshot{}, fmt.Errorf("before phase: %w", err)
	}
	blog.Info("Checking out parent")
	if err := p.repo.CheckoutParent(ctx, key, commitID); err != nil {
		return analysis.Snapshot{}, analysis.Snapshot{}, fmt.Errorf("before phase: %w", err)
	}
	p.logHead(blog)
	before, err := p.analyze(ctx, blog)
	if err != nil {
		return analysis.Snapshot{}, analysis.Snapshot{}, fmt.Errorf("before phase: %w", err)
	}

	alog := log.WithPhase(recorder.After.String())
	alog.Info("Checking out commit")
	if err := p.repo.CheckoutExact(ctx, key, commitID); err != nil {
		return analysis.Snapshot{}, analysis.Snapshot{}, fmt.Errorf("after phase: %w", err)
	}
	p.logHead(alog)
	after, err := p.analyze(ctx, alog)
	if err != nil {
		return analysis.Snapshot{}, analysis.Snapshot{}, fmt.Errorf("after phase: %w", err)
	}

	return before, after, nil
}

// logHead records the revision the working copy is at.
func (p *Pipeline) logHead(log *logger.Logger) {
	head, err := p.repo.Head(p.project.ProjectKey)
	if err != nil {
		log.Warnw("Failed to read working copy head", "error", err)
		return
	}
	log.Infow("Working copy ready", "head", head)
}

// analyze scans the current working copy state and fetches its metrics.
func (p *Pipeline) analyze(ctx context.Context, log *logger.Logger) (analysis.Snapshot, error) {
	pc := p.project
	dir := p.repo.Path(pc.ProjectKey)

	if err := p.analyzer.WriteProperties(dir, pc.ServiceProjectID); err != nil {
		return analysis.Snapshot{}, err
	}

	log.Info("Running scanner")
	scan := p.analyzer.RunScan(ctx, dir, pc.Credential)
	if !scan.OK() {
		log.Warnw("Scanner failed, fetching last known metrics",
			"exit_code", scan.ExitCode,
			"error", scan.Err,
		)
	} else {
		log.Infow("Scanner finished", "duration", scan.Duration)
	}

	log.Info("Fetching metrics")
	return p.fetch(ctx, log)
}

// fetch retries transport errors according to the fetch policy. A not-found
// answer is returned as ErrNoMetrics without retrying.
func (p *Pipeline) fetch(ctx context.Context, log *logger.Logger) (analysis.Snapshot, error) {
	var (
		snap     analysis.Snapshot
		notFound bool
	)

	err := repository.Retry(ctx, p.opts.FetchPolicy, log, "fetch metrics", func(ctx context.Context) error {
		res := p.analyzer.FetchMetrics(ctx, p.project.ServiceProjectID)
		switch res.Status {
		case analysis.FetchFound:
			snap = res.Snapshot
			return nil
		case analysis.FetchNotFound:
			notFound = true
			return nil
		default:
			if res.Err == nil {
				return fmt.Errorf("analysis service transport error")
			}
			return res.Err
		}
	})
	if err != nil {
		return analysis.Snapshot{}, err
	}
	if notFound {
		return analysis.Snapshot{}, fmt.Errorf("%w for %s", ErrNoMetrics, p.project.ServiceProjectID)
	}
	return snap, nil
}

// Close closes the metrics table.
func (p *Pipeline) Close() error {
	if p.recorder == nil {
		return nil
	}
	return p.recorder.Close()
}
