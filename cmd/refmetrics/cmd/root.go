package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/refmetrics/internal/config"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	maxAttempts int
	sonarURL    string
)

var rootCmd = &cobra.Command{
	Use:   "refmetrics",
	Short: "Code metrics before and after refactoring commits",
	Long: `A CLI tool that measures how refactoring commits change code size and
complexity metrics.

For every commit of a refactoring list, the repository is checked out at the
commit's parent and at the commit itself, each state is analyzed by SonarQube,
and the two metric snapshots are appended to a per-project table.

Features:
  - Refactoring list filtering and commit deduplication
  - Working copy management with retry and backoff
  - SonarQube project, token, scan and measures integration
  - Per-project daily log files
  - Optional MySQL run ledger for resume and project locking`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "refmetrics.yaml",
		"Path to configuration file (defaults apply when it does not exist)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", 0,
		"Override retry attempts for repository operations (0 keeps config, which defaults to unlimited)")
	rootCmd.PersistentFlags().StringVar(&sonarURL, "sonar-url", "",
		"Override SonarQube server URL")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel    string
	LogFormat   string
	MaxAttempts int
	SonarURL    string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:    logLevel,
		LogFormat:   logFormat,
		MaxAttempts: maxAttempts,
		SonarURL:    sonarURL,
	}
}

// loadConfig loads the configuration file and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	o := GetCLIOverrides()
	cfg.ApplyOverrides(o.LogLevel, o.LogFormat, o.MaxAttempts, o.SonarURL)
	return cfg, nil
}
