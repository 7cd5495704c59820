// Package cli implements the cobra command tree for settlewatch.
package cli

import (
	"errors"
	"fmt"

	internal "github.com/ZanzyTHEbar/settlewatch/settle"
	"github.com/ZanzyTHEbar/settlewatch/settle/config"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// runtimeState is what PersistentPreRunE hands to the subcommands
type runtimeState struct {
	config *config.Config
	logger zerolog.Logger
}

// Execute builds the command tree, runs it, and returns the exit code.
func Execute() int {
	cmd := NewRootCommand()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}
		return 1
	}
	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	var (
		cfgFile  string
		logLevel string
		pretty   bool
	)
	state := &runtimeState{logger: zerolog.Nop()}

	cmd := &cobra.Command{
		Use:   internal.DefaultAppCMDShortCut,
		Short: "Report files once they have finished changing",
		Long: `settlewatch watches a directory tree and reports each file only after it has
gone quiet for a configurable period and can be opened exclusively.

Once nothing is left to settle it reports the whole batch of changes, so
downstream tools can pick up complete uploads, exports and copies instead of
half-written files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			flags := cmd.Flags()
			if flags.Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if flags.Changed("pretty") {
				cfg.Log.Pretty = pretty
			}

			state.config = cfg
			state.logger = internal.NewLogger(cfg.Log.Level, cfg.Log.Pretty)
			state.logger.Debug().
				Str("log_level", cfg.Log.Level).
				Bool("pretty", cfg.Log.Pretty).
				Msg("Configuration loaded")
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or "+internal.DefaultGlobalConfigFile+")")
	pf.StringVar(&logLevel, "log-level", internal.DefaultLogLevel, "log level: debug, info, warn, error")
	pf.BoolVar(&pretty, "pretty", false, "human-readable log output")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	cmd.AddCommand(
		newVersionCommand(),
		newWatchCommand(state),
	)

	return cmd
}
