// Package recorder writes before/after metric rows to the output table.
package recorder

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/dbsmedya/refmetrics/internal/analysis"
)

// Phase tells whether a row was measured before or after the commit.
type Phase int

const (
	// Before is the parent checkout.
	Before Phase = iota
	// After is the commit checkout.
	After
)

func (p Phase) String() string {
	if p == After {
		return "after"
	}
	return "before"
}

// IsAfterCommit returns the value written in the first column.
func (p Phase) IsAfterCommit() bool {
	return p == After
}

// MetricsRow is one line of the output table.
type MetricsRow struct {
	Phase    Phase
	CommitID string
	Values   analysis.Snapshot
}

// Options configures the output table layout.
type Options struct {
	Delimiter string // single character, defaults to ";"
}

// Recorder appends rows to a delimited table. The header is derived from the
// first row and written exactly once.
type Recorder struct {
	mu            sync.Mutex
	path          string
	file          *os.File
	comma         rune
	headerWritten bool
	rows          int
}

// Create creates or truncates the table at path, creating parent directories.
func Create(path string, opts Options) (*Recorder, error) {
	return open(path, opts, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

// Open appends to the table at path. A non-empty file is assumed to already
// carry its header.
func Open(path string, opts Options) (*Recorder, error) {
	return open(path, opts, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

func open(path string, opts Options, flag int) (*Recorder, error) {
	comma, err := delimiter(opts.Delimiter)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output table %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat output table %s: %w", path, err)
	}

	return &Recorder{
		path:          path,
		file:          f,
		comma:         comma,
		headerWritten: info.Size() > 0,
	}, nil
}

func delimiter(d string) (rune, error) {
	if d == "" {
		return ';', nil
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", d)
	}
	return r, nil
}

// Path returns the table location.
func (r *Recorder) Path() string {
	return r.path
}

// Rows returns the number of data rows written by this Recorder.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// HeaderWritten reports whether the table already has its header.
func (r *Recorder) HeaderWritten() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.headerWritten
}

// Write appends rows, preceded by the header when the table has none yet.
// The rows of one call reach the file in a single write, so a before/after
// pair is never split by an interrupted run.
func (r *Recorder) Write(rows ...MetricsRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return fmt.Errorf("recorder is closed")
	}
	if len(rows) == 0 {
		return nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = r.comma

	if !r.headerWritten {
		header := append([]string{"isAfterCommit", "commitId"}, rows[0].Values.Names()...)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}

	for _, row := range rows {
		line := append([]string{strconv.FormatBool(row.Phase.IsAfterCommit()), row.CommitID}, row.Values.Values()...)
		if err := w.Write(line); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", row.CommitID, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to encode rows: %w", err)
	}
	if _, err := r.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", r.path, err)
	}

	r.headerWritten = true
	r.rows += len(rows)
	return nil
}

// Close closes the table.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", r.path, err)
	}
	return nil
}
