package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/refmetrics/internal/analysis"
	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/database"
	"github.com/dbsmedya/refmetrics/internal/lock"
	"github.com/dbsmedya/refmetrics/internal/logger"
	"github.com/dbsmedya/refmetrics/internal/pipeline"
	"github.com/dbsmedya/refmetrics/internal/refactoring"
	"github.com/dbsmedya/refmetrics/internal/repository"
	"github.com/dbsmedya/refmetrics/internal/state"
)

var (
	runResume bool
	runForce  bool
)

var runCmd = &cobra.Command{
	Use:   "run [repo] [source-file]",
	Short: "Measure metrics before and after every refactoring commit",
	Long: `Run clones the repository, selects the commits of the refactoring list
and, for each of them, analyzes the parent state and the commit state with
SonarQube. Both metric snapshots are appended to <paths.measures>/<key>.csv.

The run stops early, without error, as soon as the analysis service has no
metrics for a state. With state.enabled, progress is kept in MySQL and
--resume skips the commits already measured.

Both positional arguments are required together; when omitted, repository.url
and input.file from the configuration are used.

Example:
  refmetrics run axios/axios source/axios.test.csv
  refmetrics run --config refmetrics.yaml --resume`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected [repo] [source-file] or no arguments, got %d argument(s)", len(args))
		}
		return nil
	},
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runResume, "resume", false,
		"Append to the existing table and skip commits already measured (requires state.enabled)")
	runCmd.Flags().BoolVar(&runForce, "force", false,
		"Run even if the project lock cannot be acquired (use with caution)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 2 {
		cfg.ApplyRunArgs(args[0], args[1])
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if runResume && !cfg.State.Enabled {
		return fmt.Errorf("--resume requires state.enabled")
	}

	key := pipeline.ProjectKey(cfg.Repository.URL)
	if key == "" {
		return fmt.Errorf("repository %q yields an empty project key", cfg.Repository.URL)
	}

	log, err := logger.NewRunLogger(&cfg.Logging, filepath.Join(cfg.Paths.Logs, key), time.Now())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	log.Infow("Starting run",
		"project", key,
		"config", GetConfigFile(),
	)

	records, err := refactoring.ReadFile(cfg.Input.File, refactoring.ReadOptions{
		Delimiter: cfg.Input.Delimiter,
		HasHeader: cfg.Input.HasHeader,
	})
	if err != nil {
		return err
	}
	sel := refactoring.Select(records)

	ctx, cancel := database.SetupSignalHandler(cmd.Context(), func(sig os.Signal) {
		log.Warnf("Received %s - stopping after the current step...", sig)
	})
	defer cancel()

	var (
		ledger     *state.Ledger
		checkpoint pipeline.Checkpointer
	)
	if cfg.State.Enabled {
		dbManager := database.NewManager(&cfg.State)
		if err := dbManager.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to state database: %w", err)
		}
		defer dbManager.Close()

		// Test connection
		if err := dbManager.Ping(ctx); err != nil {
			return fmt.Errorf("state database connection failed: %w", err)
		}

		// Acquire advisory lock to prevent concurrent runs of the same project
		if !runForce {
			projectLock := lock.NewProjectLock(dbManager.State, key)
			if err := projectLock.AcquireOrFail(ctx); err != nil {
				if errors.Is(err, lock.ErrLockTimeout) {
					return fmt.Errorf("project '%s' is already running on another instance (use --force to override)", key)
				}
				return fmt.Errorf("failed to acquire project lock: %w", err)
			}
			defer func() {
				// ctx may already be cancelled here
				releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer releaseCancel()
				if _, err := projectLock.ReleaseLock(releaseCtx); err != nil {
					log.Warnw("Failed to release project lock", "lock", projectLock.LockName(), "error", err)
				}
			}()
			log.Infow("Acquired advisory lock for project", "project", key, "lock", projectLock.LockName())
		} else {
			log.Warnw("Skipping advisory lock acquisition (--force flag used)", "project", key)
		}

		ledger, err = state.NewLedger(dbManager.State, log)
		if err != nil {
			return err
		}
		if err := ledger.InitializeTables(ctx); err != nil {
			return err
		}
		if _, err := ledger.BeginRun(ctx, key, cfg.Repository.URL, runResume); err != nil {
			return err
		}
		checkpoint = ledger.Project(key)
	}

	result, err := execute(ctx, cfg, sel, checkpoint, log)

	var stats *state.Stats
	if ledger != nil {
		status := runStatus(result, err)
		if ferr := ledger.FinishRun(context.Background(), key, status); ferr != nil {
			log.Errorw("Failed to record run status", "status", status.String(), "error", ferr)
		}
		if st, serr := ledger.GetStats(context.Background(), key); serr != nil {
			log.Warnw("Failed to read commit log stats", "error", serr)
		} else {
			stats = &st
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Run cancelled by user")
			if result != nil {
				printResult(cmd.OutOrStdout(), result, stats)
			}
			return nil
		}
		return fmt.Errorf("run failed: %w", err)
	}

	printResult(cmd.OutOrStdout(), result, stats)
	return nil
}

// execute builds the pipeline for cfg and runs it over the selection.
func execute(ctx context.Context, cfg *config.Config, sel refactoring.Selection, checkpoint pipeline.Checkpointer, log *logger.Logger) (*pipeline.RunResult, error) {
	driver, err := repository.NewGitDriver(cfg.Paths.Projects, repository.PolicyFromConfig(cfg.Retry), log)
	if err != nil {
		return nil, err
	}

	client, err := analysis.New(cfg.Analysis, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}

	p, err := pipeline.New(pipeline.Dependencies{
		Repository:   driver,
		Analyzer:     client,
		Checkpointer: checkpoint,
		Logger:       log,
	}, pipeline.Options{
		RepoURL:     cfg.Repository.URL,
		CloneURL:    cfg.Repository.ExpandedURL(),
		InputFile:   cfg.Input.File,
		MeasuresDir: cfg.Paths.Measures,
		Delimiter:   cfg.Output.Delimiter,
		Resume:      runResume,
		FetchPolicy: repository.RetryPolicy{
			MaxAttempts:    cfg.Analysis.FetchAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff(),
			MaxBackoff:     cfg.Retry.MaxBackoff(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	if err := p.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("pipeline initialization failed: %w", err)
	}
	pc := p.Project()
	log.Infow("Pipeline initialized",
		"service_project_id", pc.ServiceProjectID,
		"has_credential", pc.Credential != "",
		"table", p.OutputPath(),
	)

	pipeline.CommitsSummary(log, sel)

	return p.Execute(ctx, sel.Commits)
}

// runStatus maps the outcome of a run to the ledger status. A cancelled run
// is left idle so it can be resumed.
func runStatus(result *pipeline.RunResult, err error) state.RunStatus {
	switch {
	case errors.Is(err, context.Canceled):
		return state.RunStatusIdle
	case err != nil:
		return state.RunStatusFailed
	case result != nil && result.Aborted:
		return state.RunStatusAborted
	default:
		return state.RunStatusCompleted
	}
}

// printResult writes the run summary. stats, when set, are the commit log
// counts of the project across all runs.
func printResult(out io.Writer, result *pipeline.RunResult, stats *state.Stats) {
	fmt.Fprintf(out, "\n=== Run Complete ===\n")
	fmt.Fprintf(out, "Project: %s\n", color.Bold.Sprint(result.ProjectKey))
	fmt.Fprintf(out, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Commits: %d\n", result.Total)
	fmt.Fprintf(out, "Processed: %d\n", result.Processed)
	fmt.Fprintf(out, "Skipped: %d\n", result.Skipped)
	fmt.Fprintf(out, "Rows Written: %d\n", result.RowsWritten)
	if stats != nil {
		fmt.Fprintf(out, "Commit Log: %d completed, %d pending, %d aborted, %d failed\n",
			stats.Completed, stats.Pending, stats.Aborted, stats.Failed)
	}

	if result.Aborted {
		fmt.Fprintf(out, "Status: %s\n", color.Yellow.Sprintf("aborted at %s", result.AbortedAt))
		if result.AbortReason != nil {
			fmt.Fprintf(out, "Reason: %v\n", result.AbortReason)
		}
		return
	}
	fmt.Fprintf(out, "Status: %s\n", color.Green.Sprint("completed"))
}
