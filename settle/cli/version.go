package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	internal "github.com/ZanzyTHEbar/settlewatch/settle"

	"github.com/spf13/cobra"
)

// Build-time values injected via -ldflags.
var (
	version   = "dev"
	gitCommit = "none"
)

// VersionInfo holds the build metadata for the binary.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func getVersionInfo() VersionInfo {
	commit := gitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return VersionInfo{
		Version:   version,
		GitCommit: commit,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func (i VersionInfo) String() string {
	return fmt.Sprintf("%s %s (commit: %s, %s %s)",
		internal.DefaultAppName, i.Version, i.GitCommit, i.GoVersion, i.Platform)
}

func newVersionCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// version needs no config
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := getVersionInfo()

			if jsonOutput {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("marshaling version info: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")

	return cmd
}
