package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/watcher"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	include    string
	exclude    string
	quiet      time.Duration
	recursive  bool
	ignoreFile string
	output     string
	raw        bool
	exitOnIdle bool
}

func newWatchCommand(state *runtimeState) *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch [directory]",
		Short: "Watch a directory and report files once they settle",
		Long: `Watch scans the directory, reports every existing file once it settles, and
then keeps reporting files as they finish changing until interrupted.

A file settles after it has seen no activity for the quiet period and can be
opened exclusively. Deleting or renaming a tracked file (or its directory)
settles it immediately.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, state, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.include, "include", "", "only monitor paths matching this regular expression")
	f.StringVar(&opts.exclude, "exclude", "", "never monitor paths matching this regular expression")
	f.DurationVar(&opts.quiet, "quiet", 0, "quiet period before a file settles (default from config)")
	f.BoolVar(&opts.recursive, "recursive", true, "include subdirectories")
	f.StringVar(&opts.ignoreFile, "ignore-file", "", "gitignore-style file with paths to skip")
	f.StringVarP(&opts.output, "output", "o", FormatText, "output format: text, json, yaml")
	f.BoolVar(&opts.raw, "raw", false, "also report raw create, change, delete and rename events")
	f.BoolVar(&opts.exitOnIdle, "exit-on-idle", false, "exit after the first time nothing is left to settle")

	return cmd
}

func runWatch(cmd *cobra.Command, state *runtimeState, args []string, opts *watchOptions) error {
	out, err := newPrinter(cmd.OutOrStdout(), opts.output)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	wc := state.config.WatcherConfig()
	if len(args) == 1 {
		wc.FolderToWatch = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("include") {
		wc.IncludeFilter = opts.include
	}
	if flags.Changed("exclude") {
		wc.ExcludeFilter = opts.exclude
	}
	if flags.Changed("quiet") {
		wc.QuietPeriod = opts.quiet
	}
	if flags.Changed("recursive") {
		wc.IncludeSubdirectories = opts.recursive
	}
	if flags.Changed("ignore-file") {
		wc.IgnoreFile = opts.ignoreFile
	}
	logger := state.logger
	wc.Logger = &logger

	if err := wc.Validate(); err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	err = watcher.Watch(ctx, wc, func(events *watcher.Events) {
		out.subscribe(events, opts.raw)
		if opts.exitOnIdle {
			events.ActivityFinished.Subscribe(func(watcher.ActivityFinished) { cancel() })
		}
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", wc.FolderToWatch, err)
	}
	return nil
}
