package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/refmetrics/internal/refactoring"
)

var selectCmd = &cobra.Command{
	Use:   "select [source-file]",
	Short: "List the commits a run would analyze",
	Long: `Select reads the refactoring list, keeps the records whose refactoring
type is enabled and prints the resulting commits in the order they would be
analyzed. Nothing is cloned, scanned or written.

Enabled refactoring types:
  MOVE, MOVE_RENAME, RENAME, EXTRACT, EXTRACT_MOVE, INLINE

Example:
  refmetrics select source/axios.test.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)
}

func runSelect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Input.File = args[0]
	}
	if cfg.Input.File == "" {
		return fmt.Errorf("no refactoring list given (argument or input.file)")
	}

	records, err := refactoring.ReadFile(cfg.Input.File, refactoring.ReadOptions{
		Delimiter: cfg.Input.Delimiter,
		HasHeader: cfg.Input.HasHeader,
	})
	if err != nil {
		return err
	}
	sel := refactoring.Select(records)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== Commit Selection ===\n")
	fmt.Fprintf(out, "Source file: %s\n", cfg.Input.File)
	fmt.Fprintf(out, "Total extracted refactoring operations: %d\n", sel.TotalRecords)
	fmt.Fprintf(out, "Total extracted valid refactoring operations: %d\n", sel.ValidRecords)
	fmt.Fprintf(out, "Total commits with operations: %d\n\n", sel.TotalCommits())

	for i, c := range sel.Commits {
		fmt.Fprintf(out, "%d/%d %s\n", i+1, sel.TotalCommits(), c)
	}
	return nil
}
