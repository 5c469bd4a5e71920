package analysis

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/logger"
)

// Scanner runs the external source scanner inside a working copy.
type Scanner struct {
	path    string
	hostURL string
	args    []string
	logger  *logger.Logger
}

// NewScanner creates a Scanner from the analysis configuration.
func NewScanner(cfg config.AnalysisConfig, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.NewDefault()
	}
	path := cfg.ScannerPath
	if path == "" {
		path = "sonar-scanner"
	}
	return &Scanner{
		path:    path,
		hostURL: cfg.EffectiveScannerHostURL(),
		args:    append([]string(nil), cfg.ScannerArgs...),
		logger:  log,
	}
}

// LookPath resolves the scanner executable.
func (s *Scanner) LookPath() (string, error) {
	p, err := exec.LookPath(s.path)
	if err != nil {
		return "", fmt.Errorf("scanner %q not found: %w", s.path, err)
	}
	return p, nil
}

// Args returns the command line arguments passed to the scanner.
func (s *Scanner) Args(credential string) []string {
	args := []string{"-Dsonar.login=" + credential}
	if s.hostURL != "" {
		args = append(args, "-Dsonar.host.url="+s.hostURL)
	}
	return append(args, s.args...)
}

// RunScan analyzes dir, authenticating with credential. Failures are reported
// in the returned ScanResult.
func (s *Scanner) RunScan(ctx context.Context, dir, credential string) ScanResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, s.path, s.Args(credential)...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()

	res := ScanResult{
		Duration: time.Since(start),
		Output:   string(out),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			res.Err = fmt.Errorf("scanner exited with code %d", res.ExitCode)
		} else {
			res.ExitCode = -1
			res.Err = fmt.Errorf("failed to run scanner: %w", err)
		}
		s.logger.Debugw("Scanner output", "dir", dir, "output", res.Output)
		return res
	}

	s.logger.Debugw("Scanner finished", "dir", dir, "duration", res.Duration)
	return res
}
