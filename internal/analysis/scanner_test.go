package analysis

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/refmetrics/internal/config"
	"github.com/dbsmedya/refmetrics/internal/logger"
)

// fakeScanner writes a shell script that records its arguments and working
// directory, then exits with code.
func fakeScanner(t *testing.T, code string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}

	path := filepath.Join(t.TempDir(), "sonar-scanner")
	script := "#!/bin/sh\npwd > scan.out\necho \"$@\" >> scan.out\necho scanning\nexit " + code + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestScanner_Args(t *testing.T) {
	s := NewScanner(config.AnalysisConfig{
		HostURL:     "http://localhost:9000",
		ScannerArgs: []string{"-X"},
	}, logger.NewNop())

	assert.Equal(t, []string{
		"-Dsonar.login=tok",
		"-Dsonar.host.url=http://localhost:9000",
		"-X",
	}, s.Args("tok"))

	s = NewScanner(config.AnalysisConfig{
		HostURL:        "http://localhost:9000",
		ScannerHostURL: "http://172.17.0.2:9000",
	}, logger.NewNop())
	assert.Contains(t, s.Args(""), "-Dsonar.host.url=http://172.17.0.2:9000")
	assert.Equal(t, "sonar-scanner", s.path)
}

func TestScanner_RunScanSuccess(t *testing.T) {
	bin := fakeScanner(t, "0")
	dir := t.TempDir()

	s := NewScanner(config.AnalysisConfig{ScannerPath: bin, HostURL: "http://sq:9000"}, logger.NewNop())
	res := s.RunScan(context.Background(), dir, "secret")

	require.True(t, res.OK(), "scan failed: %v", res.Err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Output, "scanning")

	out, err := os.ReadFile(filepath.Join(dir, "scan.out"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	resolved, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[0])
	assert.Equal(t, resolved, gotDir)
	assert.Equal(t, "-Dsonar.login=secret -Dsonar.host.url=http://sq:9000", lines[1])
}

func TestScanner_RunScanExitCode(t *testing.T) {
	bin := fakeScanner(t, "3")

	s := NewScanner(config.AnalysisConfig{ScannerPath: bin}, logger.NewNop())
	res := s.RunScan(context.Background(), t.TempDir(), "")

	assert.False(t, res.OK())
	assert.Equal(t, 3, res.ExitCode)
	assert.Error(t, res.Err)
}

func TestScanner_MissingBinary(t *testing.T) {
	s := NewScanner(config.AnalysisConfig{ScannerPath: filepath.Join(t.TempDir(), "nope")}, logger.NewNop())

	res := s.RunScan(context.Background(), t.TempDir(), "")
	assert.False(t, res.OK())
	assert.Equal(t, -1, res.ExitCode)

	_, err := s.LookPath()
	assert.Error(t, err)
}

func TestScanner_LookPath(t *testing.T) {
	bin := fakeScanner(t, "0")
	s := NewScanner(config.AnalysisConfig{ScannerPath: bin}, logger.NewNop())

	p, err := s.LookPath()
	require.NoError(t, err)
	assert.Equal(t, bin, p)
}
