package refactoring

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEnabled(t *testing.T) {
	for _, k := range EnabledKinds() {
		assert.True(t, IsEnabled(k), "kind %s should be enabled", k)
	}

	for _, k := range []Kind{"UNKNOWN", "", "rename", "PULL_UP", "MOVE ", "CHANGE_SIGNATURE"} {
		assert.False(t, IsEnabled(k), "kind %q should not be enabled", k)
	}
}

func TestSelect_Scenario(t *testing.T) {
	records := []Record{
		{ID: "C1", Kind: KindRename},
		{ID: "C1", Kind: KindMove},
		{ID: "C2", Kind: "UNKNOWN"},
	}

	sel := Select(records)

	assert.Equal(t, []string{"C1"}, sel.Commits)
	assert.Equal(t, 3, sel.TotalRecords)
	assert.Equal(t, 2, sel.ValidRecords)
	assert.Equal(t, 1, sel.TotalCommits())
}

func TestSelect_Empty(t *testing.T) {
	sel := Select(nil)

	assert.Empty(t, sel.Commits)
	assert.NotNil(t, sel.Commits)
	assert.Equal(t, 0, sel.TotalRecords)
	assert.Equal(t, 0, sel.ValidRecords)
	assert.Equal(t, 0, sel.TotalCommits())
}

func TestSelect_PreservesFirstSeenOrder(t *testing.T) {
	records := []Record{
		{ID: "C3", Kind: KindExtract},
		{ID: "C1", Kind: KindInline},
		{ID: "C3", Kind: KindMoveRename},
		{ID: "C2", Kind: KindExtractMove},
		{ID: "C1", Kind: KindRename},
	}

	sel := Select(records)

	assert.Equal(t, []string{"C3", "C1", "C2"}, sel.Commits)
	assert.Equal(t, 5, sel.ValidRecords)
}

func TestSelect_DisabledOnlyCommitNeverAppears(t *testing.T) {
	records := []Record{
		{ID: "C1", Kind: "PULL_UP"},
		{ID: "C2", Kind: KindMove},
		{ID: "C1", Kind: "PUSH_DOWN"},
	}

	sel := Select(records)

	assert.Equal(t, []string{"C2"}, sel.Commits)
	assert.NotContains(t, sel.Commits, "C1")
}

func TestSelect_DisabledRecordDoesNotClaimPosition(t *testing.T) {
	// C1 first appears with a disabled kind; its order is set by the first
	// qualifying record.
	records := []Record{
		{ID: "C1", Kind: "UNKNOWN"},
		{ID: "C2", Kind: KindMove},
		{ID: "C1", Kind: KindRename},
	}

	sel := Select(records)

	assert.Equal(t, []string{"C2", "C1"}, sel.Commits)
}

func TestSelect_RandomInputsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	kinds := append(EnabledKinds(), "UNKNOWN", "PULL_UP", "")

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(40)
		records := make([]Record, n)
		for i := range records {
			records[i] = Record{
				ID:   fmt.Sprintf("C%d", rng.Intn(10)),
				Kind: kinds[rng.Intn(len(kinds))],
			}
		}

		sel := Select(records)

		// No duplicates
		seen := map[string]bool{}
		for _, id := range sel.Commits {
			assert.False(t, seen[id], "duplicate commit %s", id)
			seen[id] = true
		}

		// First-seen order among qualifying records, and only qualifying ids
		var expected []string
		expectedSeen := map[string]bool{}
		valid := 0
		for _, r := range records {
			if !IsEnabled(r.Kind) {
				continue
			}
			valid++
			if !expectedSeen[r.ID] {
				expectedSeen[r.ID] = true
				expected = append(expected, r.ID)
			}
		}
		if expected == nil {
			expected = []string{}
		}

		assert.Equal(t, expected, sel.Commits)
		assert.Equal(t, n, sel.TotalRecords)
		assert.Equal(t, valid, sel.ValidRecords)
	}
}
