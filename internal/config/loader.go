package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
// A .env file next to the config file is loaded first; variables already
// present in the environment are not overwritten.
func Load(configPath string) (*Config, error) {
	loadDotEnv(filepath.Dir(configPath))

	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadOptional behaves like Load but falls back to defaults when the file
// does not exist. Environment substitution and .env loading still apply.
func LoadOptional(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		loadDotEnv(".")
		cfg := DefaultConfig()
		if err := substituteEnvVars(cfg); err != nil {
			return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
		}
		return cfg, nil
	}
	return Load(configPath)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := substituteEnvVars(cfg); err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads dir/.env when present. Missing files are ignored.
func loadDotEnv(dir string) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) error {
	cfg.Repository.URL = expandEnvVar(cfg.Repository.URL)
	cfg.Input.File = expandEnvVar(cfg.Input.File)

	cfg.Paths.Projects = expandEnvVar(cfg.Paths.Projects)
	cfg.Paths.Measures = expandEnvVar(cfg.Paths.Measures)
	cfg.Paths.Logs = expandEnvVar(cfg.Paths.Logs)

	cfg.Analysis.HostURL = expandEnvVar(cfg.Analysis.HostURL)
	cfg.Analysis.ScannerHostURL = expandEnvVar(cfg.Analysis.ScannerHostURL)
	cfg.Analysis.User = expandEnvVar(cfg.Analysis.User)
	cfg.Analysis.Password = expandEnvVar(cfg.Analysis.Password)
	cfg.Analysis.ScannerPath = expandEnvVar(cfg.Analysis.ScannerPath)

	cfg.State.Host = expandEnvVar(cfg.State.Host)
	cfg.State.User = expandEnvVar(cfg.State.User)
	cfg.State.Password = expandEnvVar(cfg.State.Password)
	cfg.State.Database = expandEnvVar(cfg.State.Database)

	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(logLevel, logFormat string, maxAttempts int, sonarURL string) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if maxAttempts > 0 {
		c.Retry.MaxAttempts = maxAttempts
	}
	if sonarURL != "" {
		c.Analysis.HostURL = sonarURL
	}
}

// ApplyRunArgs applies the positional repository and input file arguments.
func (c *Config) ApplyRunArgs(repoURL, inputFile string) {
	if repoURL != "" {
		c.Repository.URL = repoURL
	}
	if inputFile != "" {
		c.Input.File = inputFile
	}
}
