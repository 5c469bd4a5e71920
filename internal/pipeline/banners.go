package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/refmetrics/internal/logger"
	"github.com/dbsmedya/refmetrics/internal/refactoring"
)

// box frames title and lines in an asterisk border sized to the widest line.
func box(title string, lines ...string) []string {
	width := runewidth.StringWidth(title)
	for _, l := range lines {
		if w := runewidth.StringWidth(l); w > width {
			width = w
		}
	}

	border := strings.Repeat("*", width+4)
	out := make([]string, 0, len(lines)+4)
	out = append(out, border, "* "+runewidth.FillRight(title, width)+" *")
	out = append(out, "* "+strings.Repeat("-", width)+" *")
	for _, l := range lines {
		out = append(out, "* "+runewidth.FillRight(l, width)+" *")
	}
	return append(out, border)
}

func logBox(log *logger.Logger, title string, lines ...string) {
	for _, l := range box(title, lines...) {
		log.Info(l)
	}
}

// ProjectSummary logs the repository and input of a run.
func ProjectSummary(log *logger.Logger, pc *ProjectContext, inputFile string) {
	logBox(log, "PROJECT SUMMARY",
		"Repository: "+pc.CloneURL,
		"Project key: "+pc.ProjectKey,
		"Source file with commits: "+inputFile,
	)
}

// CommitsSummary logs the outcome of commit selection.
func CommitsSummary(log *logger.Logger, sel refactoring.Selection) {
	logBox(log, "COMMITS SUMMARY",
		fmt.Sprintf("Total extracted refactoring operations: %d", sel.TotalRecords),
		fmt.Sprintf("Total extracted valid refactoring operations: %d", sel.ValidRecords),
		fmt.Sprintf("Total commits with operations: %d", sel.TotalCommits()),
	)
}

func runSummary(log *logger.Logger, r *RunResult) {
	lines := []string{
		fmt.Sprintf("Commits processed: %d/%d", r.Processed, r.Total),
		fmt.Sprintf("Commits skipped: %d", r.Skipped),
		fmt.Sprintf("Rows written: %d", r.RowsWritten),
		fmt.Sprintf("Duration: %s", r.Duration.Round(time.Millisecond)),
	}
	if r.Aborted {
		lines = append(lines, fmt.Sprintf("Stopped at commit %s: %v", r.AbortedAt, r.AbortReason))
	}
	logBox(log, "RUN FINISHED", lines...)
}
