// Package refactoring reads the refactoring list and selects the commits to analyze.
package refactoring

// Kind tags the refactoring operation of a record.
type Kind string

// Refactoring kinds analyzed by refmetrics. Anything else is ignored.
const (
	KindMove        Kind = "MOVE"
	KindMoveRename  Kind = "MOVE_RENAME"
	KindRename      Kind = "RENAME"
	KindExtract     Kind = "EXTRACT"
	KindExtractMove Kind = "EXTRACT_MOVE"
	KindInline      Kind = "INLINE"
)

var enabledKinds = map[Kind]struct{}{
	KindMove:        {},
	KindMoveRename:  {},
	KindRename:      {},
	KindExtract:     {},
	KindExtractMove: {},
	KindInline:      {},
}

// IsEnabled reports whether records of kind k are analyzed. Matching is exact.
func IsEnabled(k Kind) bool {
	_, ok := enabledKinds[k]
	return ok
}

// EnabledKinds returns the enabled kinds in declaration order.
func EnabledKinds() []Kind {
	return []Kind{KindMove, KindMoveRename, KindRename, KindExtract, KindExtractMove, KindInline}
}

// Record is one row of the refactoring list. ID is a commit id and is not
// unique across rows.
type Record struct {
	ID          string
	Kind        Kind
	Source      string
	Destination string
}

// Selection is the outcome of Select.
type Selection struct {
	// Commits holds each qualifying commit id once, in first-seen order.
	Commits      []string
	TotalRecords int
	ValidRecords int
}

// TotalCommits returns the number of commits to analyze.
func (s Selection) TotalCommits() int {
	return len(s.Commits)
}

// Select filters records to the enabled kinds and collapses them to unique
// commit ids, preserving the order of first occurrence.
func Select(records []Record) Selection {
	sel := Selection{
		Commits:      make([]string, 0),
		TotalRecords: len(records),
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if !IsEnabled(r.Kind) {
			continue
		}
		sel.ValidRecords++
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		sel.Commits = append(sel.Commits, r.ID)
	}

	return sel
}
