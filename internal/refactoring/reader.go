package refactoring

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// ReadOptions describes the layout of the refactoring list.
type ReadOptions struct {
	Delimiter string // single character, defaults to ","
	HasHeader bool   // skip the first line
}

// ReadFile reads the refactoring list at path.
func ReadFile(path string, opts ReadOptions) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open refactoring list: %w", err)
	}
	defer f.Close()

	records, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return records, nil
}

// Read parses a refactoring list. Columns are positional: id, kind, source,
// destination. Missing trailing columns are left empty and blank lines are
// skipped.
func Read(r io.Reader, opts ReadOptions) ([]Record, error) {
	delim := opts.Delimiter
	if delim == "" {
		delim = ","
	}
	comma, size := utf8.DecodeRuneInString(delim)
	if size != len(delim) {
		return nil, fmt.Errorf("delimiter must be a single character, got %q", delim)
	}

	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var records []Record
	first := true
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if first && opts.HasHeader {
			first = false
			continue
		}
		first = false

		if isBlank(fields) {
			continue
		}

		records = append(records, Record{
			ID:          field(fields, 0),
			Kind:        Kind(field(fields, 1)),
			Source:      field(fields, 2),
			Destination: field(fields, 3),
		})
	}

	return records, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return strings.TrimSpace(fields[i])
	}
	return ""
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
