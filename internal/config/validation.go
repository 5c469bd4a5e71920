package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.Repository.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "repository.url",
			Message: "repository url is required",
		})
	}

	if err := c.validateInput(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validatePaths(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateAnalysis(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateRetry(); err != nil {
		errors = append(errors, err...)
	}

	if !isSingleRune(c.Output.Delimiter) {
		errors = append(errors, ValidationError{
			Field:   "output.delimiter",
			Message: "delimiter must be a single character",
		})
	}

	if c.State.Enabled {
		if err := c.validateState(); err != nil {
			errors = append(errors, err...)
		}
	}

	if err := c.validateLogging(); err != nil {
		errors = append(errors, err...)
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateInput() ValidationErrors {
	var errors ValidationErrors

	if c.Input.File == "" {
		errors = append(errors, ValidationError{
			Field:   "input.file",
			Message: "input file is required",
		})
	}

	if !isSingleRune(c.Input.Delimiter) {
		errors = append(errors, ValidationError{
			Field:   "input.delimiter",
			Message: "delimiter must be a single character",
		})
	}

	return errors
}

func (c *Config) validatePaths() ValidationErrors {
	var errors ValidationErrors

	for field, value := range map[string]string{
		"paths.projects": c.Paths.Projects,
		"paths.measures": c.Paths.Measures,
		"paths.logs":     c.Paths.Logs,
	} {
		if value == "" {
			errors = append(errors, ValidationError{
				Field:   field,
				Message: "path is required",
			})
		}
	}

	return errors
}

func (c *Config) validateAnalysis() ValidationErrors {
	var errors ValidationErrors

	if u, err := url.Parse(c.Analysis.HostURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "analysis.host_url",
			Message: "host_url must be an absolute URL",
		})
	}

	if c.Analysis.ScannerHostURL != "" {
		if u, err := url.Parse(c.Analysis.ScannerHostURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "analysis.scanner_host_url",
				Message: "scanner_host_url must be an absolute URL",
			})
		}
	}

	if c.Analysis.ScannerPath == "" {
		errors = append(errors, ValidationError{
			Field:   "analysis.scanner_path",
			Message: "scanner_path is required",
		})
	}

	if c.Analysis.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.timeout_seconds",
			Message: "timeout_seconds cannot be negative",
		})
	}

	if c.Analysis.RequestsPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.requests_per_second",
			Message: "requests_per_second cannot be negative",
		})
	}

	if c.Analysis.FetchAttempts <= 0 {
		errors = append(errors, ValidationError{
			Field:   "analysis.fetch_attempts",
			Message: "fetch_attempts must be positive",
		})
	}

	return errors
}

func (c *Config) validateRetry() ValidationErrors {
	var errors ValidationErrors

	if c.Retry.MaxAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_attempts",
			Message: "max_attempts cannot be negative (0 retries forever)",
		})
	}

	if c.Retry.InitialBackoffMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.initial_backoff_ms",
			Message: "initial_backoff_ms cannot be negative",
		})
	}

	if c.Retry.MaxBackoffMs < c.Retry.InitialBackoffMs {
		errors = append(errors, ValidationError{
			Field:   "retry.max_backoff_ms",
			Message: "max_backoff_ms must not be lower than initial_backoff_ms",
		})
	}

	return errors
}

func (c *Config) validateState() ValidationErrors {
	var errors ValidationErrors

	if c.State.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "state.host",
			Message: "host is required when state is enabled",
		})
	}

	if c.State.Port <= 0 || c.State.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "state.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if c.State.User == "" {
		errors = append(errors, ValidationError{
			Field:   "state.user",
			Message: "user is required when state is enabled",
		})
	}

	if c.State.Database == "" {
		errors = append(errors, ValidationError{
			Field:   "state.database",
			Message: "database name is required when state is enabled",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[c.State.TLS] {
		errors = append(errors, ValidationError{
			Field:   "state.tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}

func isSingleRune(s string) bool {
	return utf8.RuneCountInString(s) == 1
}
