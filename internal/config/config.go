// Package config provides configuration structures and loading for refmetrics.
package config

import (
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Repository RepositoryConfig `yaml:"repository" mapstructure:"repository"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Analysis   AnalysisConfig   `yaml:"analysis" mapstructure:"analysis"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	State      StateConfig      `yaml:"state" mapstructure:"state"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// RepositoryConfig identifies the repository whose commits are analyzed.
type RepositoryConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`           // owner/name shorthand, full URL or local path
	BaseURL string `yaml:"base_url" mapstructure:"base_url"` // prefix used to expand owner/name
}

// InputConfig describes the refactoring list table.
type InputConfig struct {
	File      string `yaml:"file" mapstructure:"file"`
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	HasHeader bool   `yaml:"has_header" mapstructure:"has_header"`
}

// PathsConfig holds the directories used by a run.
type PathsConfig struct {
	Projects string `yaml:"projects" mapstructure:"projects"` // working copies, one per project key
	Measures string `yaml:"measures" mapstructure:"measures"` // output tables
	Logs     string `yaml:"logs" mapstructure:"logs"`         // per-project daily log files
}

// AnalysisConfig represents the SonarQube server and scanner settings.
type AnalysisConfig struct {
	HostURL           string   `yaml:"host_url" mapstructure:"host_url"`
	ScannerHostURL    string   `yaml:"scanner_host_url" mapstructure:"scanner_host_url"` // defaults to host_url
	User              string   `yaml:"user" mapstructure:"user"`
	Password          string   `yaml:"password" mapstructure:"password"`
	TimeoutSeconds    int      `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	ScannerPath       string   `yaml:"scanner_path" mapstructure:"scanner_path"`
	ScannerArgs       []string `yaml:"scanner_args" mapstructure:"scanner_args"`
	FetchAttempts     int      `yaml:"fetch_attempts" mapstructure:"fetch_attempts"`
}

// RetryConfig controls retries of working-copy operations.
// MaxAttempts of 0 retries until the operation succeeds.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// OutputConfig describes the metrics table.
type OutputConfig struct {
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
}

// StateConfig represents the optional MySQL run ledger used for resume and
// project locking.
type StateConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	TLS      string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Repository: RepositoryConfig{
			BaseURL: "https://github.com",
		},
		Input: InputConfig{
			Delimiter: ",",
			HasHeader: false,
		},
		Paths: PathsConfig{
			Projects: "projects",
			Measures: "measures",
			Logs:     "logs",
		},
		Analysis: AnalysisConfig{
			HostURL:           "http://localhost:9000",
			User:              "admin",
			TimeoutSeconds:    5,
			RequestsPerSecond: 5,
			ScannerPath:       "sonar-scanner",
			FetchAttempts:     3,
		},
		Retry: RetryConfig{
			MaxAttempts:      0,
			InitialBackoffMs: 500,
			MaxBackoffMs:     30000,
		},
		Output: OutputConfig{
			Delimiter: ";",
		},
		State: StateConfig{
			Enabled: false,
			Port:    3306,
			TLS:     "preferred",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// EffectiveScannerHostURL returns the server URL handed to the scanner.
// The scanner may reach the server on a different address than this process
// (for example a container bridge IP).
func (a *AnalysisConfig) EffectiveScannerHostURL() string {
	if a.ScannerHostURL != "" {
		return a.ScannerHostURL
	}
	return a.HostURL
}

// Timeout returns the per-request timeout for the analysis service.
func (a *AnalysisConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// InitialBackoff returns the delay before the first retry.
func (r *RetryConfig) InitialBackoff() time.Duration {
	return time.Duration(r.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns the upper bound on the delay between retries.
func (r *RetryConfig) MaxBackoff() time.Duration {
	return time.Duration(r.MaxBackoffMs) * time.Millisecond
}

// ExpandedURL returns the clone URL for the configured repository.
// An owner/name shorthand is joined onto BaseURL with a .git suffix; full
// URLs, scp-like addresses and local paths are returned unchanged.
func (r *RepositoryConfig) ExpandedURL() string {
	u := strings.TrimSpace(r.URL)
	if u == "" || strings.Contains(u, "://") || strings.HasPrefix(u, "git@") ||
		strings.HasPrefix(u, "/") || strings.HasPrefix(u, ".") {
		return u
	}
	if strings.Count(u, "/") != 1 {
		return u
	}
	base := strings.TrimSuffix(r.BaseURL, "/")
	if base == "" {
		base = "https://github.com"
	}
	return base + "/" + strings.TrimSuffix(u, ".git") + ".git"
}
