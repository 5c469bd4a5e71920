package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/refmetrics/internal/analysis"
	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/database"
	"github.com/dbsmedya/refmetrics/internal/logger"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs preflight checks
against the services a run depends on.

Checks performed:
  - Configuration syntax and required fields
  - SonarQube reachability and availability of the measured metrics
  - Scanner executable on PATH
  - State database connectivity (when state.enabled)

Example:
  refmetrics validate --config refmetrics.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting validation checks...")

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(out, "Config file: %s\n\n", GetConfigFile())

	ok := true
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "❌ Configuration: %v\n", err)
		ok = false
	} else {
		fmt.Fprintf(out, "✅ Configuration\n")
	}

	ok = checkSonar(cmd.Context(), out, cfg, log) && ok
	ok = checkScanner(out, cfg, log) && ok
	if cfg.State.Enabled {
		ok = checkState(cmd.Context(), out, cfg) && ok
	}

	if !ok {
		return fmt.Errorf("validation failed")
	}
	fmt.Fprintf(out, "\nAll checks passed\n")
	return nil
}

func checkSonar(ctx context.Context, out io.Writer, cfg *config.Config, log *logger.Logger) bool {
	client, err := analysis.NewSonarClient(cfg.Analysis, log)
	if err != nil {
		fmt.Fprintf(out, "❌ SonarQube: %v\n", err)
		return false
	}

	available, err := client.ListMetrics(ctx)
	if err != nil {
		fmt.Fprintf(out, "❌ SonarQube %s: %v\n", cfg.Analysis.HostURL, err)
		return false
	}

	var missing []string
	for _, k := range analysis.MetricKeys {
		if !slices.Contains(available, k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(out, "❌ SonarQube %s: missing metrics %v\n", cfg.Analysis.HostURL, missing)
		return false
	}

	fmt.Fprintf(out, "✅ SonarQube %s (%d metrics)\n", cfg.Analysis.HostURL, len(available))
	return true
}

func checkScanner(out io.Writer, cfg *config.Config, log *logger.Logger) bool {
	path, err := analysis.NewScanner(cfg.Analysis, log).LookPath()
	if err != nil {
		fmt.Fprintf(out, "❌ Scanner: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "✅ Scanner %s\n", path)
	return true
}

func checkState(ctx context.Context, out io.Writer, cfg *config.Config) bool {
	dbManager := database.NewManager(&cfg.State)
	if err := dbManager.Connect(ctx); err != nil {
		fmt.Fprintf(out, "❌ State database: %v\n", err)
		return false
	}
	defer dbManager.Close()

	if err := dbManager.Ping(ctx); err != nil {
		fmt.Fprintf(out, "❌ State database: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "✅ State database %s\n", cfg.State.Database)
	return true
}
