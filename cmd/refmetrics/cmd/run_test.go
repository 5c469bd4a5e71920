package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/refmetrics/internal/pipeline"
	"github.com/dbsmedya/refmetrics/internal/state"
)

// sourceRepo builds a local repository with one commit per content entry
// and returns its path and commit hashes.
func sourceRepo(t *testing.T, contents ...string) (string, []string) {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "axios")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	var hashes []string
	for i, c := range contents {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(c), 0o644))
		_, err := wt.Add("index.js")
		require.NoError(t, err)

		h, err := wt.Commit(fmt.Sprintf("commit %d", i), &git.CommitOptions{
			Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Unix(int64(1700000000+i), 0)},
		})
		require.NoError(t, err)
		hashes = append(hashes, h.String())
	}
	return dir, hashes
}

func writeRefactorings(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refactorings.csv")
	var data []byte
	for _, l := range lines {
		data = append(data, l+"\n"...)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunCommandStructure(t *testing.T) {
	assert.Equal(t, "run [repo] [source-file]", runCmd.Use)
	assert.NotEmpty(t, runCmd.Short)
	assert.Contains(t, runCmd.Long, "Example:")
	assert.Contains(t, runCmd.Long, "refmetrics run")
	assert.NotNil(t, runCmd.RunE)
}

func TestRunCommandFlags(t *testing.T) {
	resume := runCmd.Flags().Lookup("resume")
	require.NotNil(t, resume)
	assert.Equal(t, "false", resume.DefValue)

	force := runCmd.Flags().Lookup("force")
	require.NotNil(t, force)
	assert.Equal(t, "false", force.DefValue)
}

func TestRunCommandArgs(t *testing.T) {
	assert.NoError(t, runCmd.Args(runCmd, nil))
	assert.NoError(t, runCmd.Args(runCmd, []string{"axios/axios", "axios.csv"}))
	assert.Error(t, runCmd.Args(runCmd, []string{"axios/axios"}))
	assert.Error(t, runCmd.Args(runCmd, []string{"a", "b", "c"}))
}

func TestRunStatus(t *testing.T) {
	tests := []struct {
		name   string
		result *pipeline.RunResult
		err    error
		want   state.RunStatus
	}{
		{"completed", &pipeline.RunResult{}, nil, state.RunStatusCompleted},
		{"aborted", &pipeline.RunResult{Aborted: true}, nil, state.RunStatusAborted},
		{"failed", &pipeline.RunResult{}, errors.New("boom"), state.RunStatusFailed},
		{"failed before start", nil, errors.New("boom"), state.RunStatusFailed},
		{"cancelled", &pipeline.RunResult{}, fmt.Errorf("stop: %w", context.Canceled), state.RunStatusIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runStatus(tt.result, tt.err))
		})
	}
}

func TestRunInvalidConfig(t *testing.T) {
	_, err := executeCommand(t, "run", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository.url")
	assert.Contains(t, err.Error(), "input.file")
}

func TestRunResumeRequiresState(t *testing.T) {
	cfg := testConfig(t, "http://localhost:9000", "sonar-scanner")

	_, err := executeCommand(t, "run", "--config", writeConfig(t, cfg), "--resume", "axios/axios", "axios.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--resume requires state.enabled")
}

func TestRunEndToEnd(t *testing.T) {
	src, hashes := sourceRepo(t, "v1", "v2", "v3")
	sonar := newSonarStub(t, -1)
	cfg := testConfig(t, sonar.URL, fakeScanner(t))
	input := writeRefactorings(t,
		hashes[1]+",RENAME,a.js,b.js",
		hashes[2]+",UNKNOWN,,",
		hashes[1]+",MOVE,b.js,lib/b.js",
		hashes[2]+",EXTRACT,index.js,util.js",
	)

	out, err := executeCommand(t, "run", "--config", writeConfig(t, cfg), src, input)
	require.NoError(t, err)

	key := pipeline.ProjectKey(src)
	assert.Contains(t, out, "=== Run Complete ===")
	assert.Contains(t, out, "Project: "+key)
	assert.Contains(t, out, "Processed: 2")
	assert.Contains(t, out, "Rows Written: 4")
	assert.Contains(t, out, "Status: completed")

	table, err := os.ReadFile(filepath.Join(cfg.Paths.Measures, key+".csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"isAfterCommit;commitId;complexity;comment_lines;lines;statements\n"+
			"false;"+hashes[1]+";1;10;100;40\n"+
			"true;"+hashes[1]+";2;10;100;40\n"+
			"false;"+hashes[2]+";3;10;100;40\n"+
			"true;"+hashes[2]+";4;10;100;40\n",
		string(table))

	// The working copy ends at the last analyzed commit.
	content, err := os.ReadFile(filepath.Join(cfg.Paths.Projects, key, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(content))

	// The scanner descriptor names the project.
	props, err := os.ReadFile(filepath.Join(cfg.Paths.Projects, key, "sonar-project.properties"))
	require.NoError(t, err)
	assert.Equal(t, "sonar.projectKey="+key+"\n", string(props))

	entries, err := os.ReadDir(filepath.Join(cfg.Paths.Logs, key))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}\.log$`, entries[0].Name())
}

func TestRunStopsWhenMetricsRunOut(t *testing.T) {
	src, hashes := sourceRepo(t, "v1", "v2", "v3")
	sonar := newSonarStub(t, 3)
	cfg := testConfig(t, sonar.URL, fakeScanner(t))
	input := writeRefactorings(t,
		hashes[1]+",RENAME,a.js,b.js",
		hashes[2]+",INLINE,b.js,",
	)

	out, err := executeCommand(t, "run", "--config", writeConfig(t, cfg), src, input)
	require.NoError(t, err)

	assert.Contains(t, out, "Processed: 1")
	assert.Contains(t, out, "Rows Written: 2")
	assert.Contains(t, out, "Status: aborted at "+hashes[2])

	key := pipeline.ProjectKey(src)
	table, err := os.ReadFile(filepath.Join(cfg.Paths.Measures, key+".csv"))
	require.NoError(t, err)
	assert.Equal(t,
		"isAfterCommit;commitId;complexity;comment_lines;lines;statements\n"+
			"false;"+hashes[1]+";1;10;100;40\n"+
			"true;"+hashes[1]+";2;10;100;40\n",
		string(table))
}

func TestRunNoQualifyingCommits(t *testing.T) {
	src, hashes := sourceRepo(t, "v1", "v2")
	sonar := newSonarStub(t, -1)
	cfg := testConfig(t, sonar.URL, fakeScanner(t))
	input := writeRefactorings(t, hashes[1]+",UNKNOWN,,")

	out, err := executeCommand(t, "run", "--config", writeConfig(t, cfg), src, input)
	require.NoError(t, err)

	assert.Contains(t, out, "Commits: 0")
	assert.Contains(t, out, "Rows Written: 0")
	assert.Equal(t, int32(0), sonar.measures.Load())
}

func TestPrintResult(t *testing.T) {
	result := &pipeline.RunResult{
		ProjectKey:  "axiosaxios",
		Total:       3,
		Processed:   1,
		Skipped:     1,
		RowsWritten: 2,
		Aborted:     true,
		AbortedAt:   "C3",
		AbortReason: pipeline.ErrNoMetrics,
	}

	var buf bytes.Buffer
	printResult(&buf, result, nil)
	assert.Contains(t, buf.String(), "Project: axiosaxios")
	assert.Contains(t, buf.String(), "Status: aborted at C3")
	assert.Contains(t, buf.String(), "Reason: "+pipeline.ErrNoMetrics.Error())
	assert.NotContains(t, buf.String(), "Commit Log:")

	buf.Reset()
	printResult(&buf, result, &state.Stats{Completed: 2, Aborted: 1})
	assert.Contains(t, buf.String(), "Commit Log: 2 completed, 0 pending, 1 aborted, 0 failed")
}
