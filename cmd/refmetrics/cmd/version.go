package cmd

import (
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/refmetrics/internal/analysis"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display detailed version information including build details and the
metrics collected for every snapshot.`,
	Run: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// buildDetails describes the running binary.
type buildDetails struct {
	Version  string
	Commit   string
	Module   string
	Built    string
	Modified bool
}

// resolveBuild fills the ldflags values from the embedded build info when
// they were left at their defaults.
func resolveBuild(version, commit string, info *debug.BuildInfo) buildDetails {
	d := buildDetails{Version: version, Commit: commit}
	if info == nil {
		return d
	}

	d.Module = info.Main.Path
	if strings.HasSuffix(d.Version, "-dev") && info.Main.Version != "" && info.Main.Version != "(devel)" {
		d.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if d.Commit == "unknown" {
				d.Commit = s.Value
			}
		case "vcs.time":
			d.Built = s.Value
		case "vcs.modified":
			d.Modified = s.Value == "true"
		}
	}
	return d
}

func runVersion(cmd *cobra.Command, args []string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		info = nil
	}
	d := resolveBuild(Version, Commit, info)

	cmd.Printf("refmetrics version %s\n", d.Version)
	if d.Modified {
		cmd.Printf("  Commit: %s (modified)\n", d.Commit)
	} else {
		cmd.Printf("  Commit: %s\n", d.Commit)
	}
	if d.Built != "" {
		cmd.Printf("  Commit time: %s\n", d.Built)
	}
	if d.Module != "" {
		cmd.Printf("  Module: %s\n", d.Module)
	}
	cmd.Printf("  Go version: %s\n", runtime.Version())
	cmd.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	cmd.Printf("  Metrics: %s\n", strings.Join(analysis.MetricKeys, ", "))
}
