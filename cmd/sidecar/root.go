package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sidecar/internal/batch"
	"sidecar/internal/journal"
	"sidecar/internal/logging"
	"sidecar/internal/preflight"
)

type runFlags struct {
	recursive    bool
	dryRun       bool
	fixFilenames bool
	forceJSON    bool
	clean        bool
	noSummary    bool
}

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag, logFormatFlag string
	var flags runFlags

	ctx := newCommandContext(&configFlag, &logLevelFlag, &logFormatFlag)

	rootCmd := &cobra.Command{
		Use:   "sidecar <directory>",
		Short: "Export embedded image metadata to sidecar files",
		Long: `sidecar scans a directory of images, extracts their embedded metadata, and
writes it next to each image: a .json sidecar when the metadata carries a JSON
object, otherwise a .txt sidecar of "key: value" lines. JSON sidecars keep a
processing history that grows by one entry per run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(1)(cmd, args); err != nil {
				printUsage(cmd)
				return err
			}
			return nil
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, ctx, args[0], flags)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFlag, "config", "", "Configuration file path")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.StringVar(&logFormatFlag, "log-format", "", "Log format override (console, json)")

	f := rootCmd.Flags()
	f.BoolVarP(&flags.recursive, "recursive", "r", false, "Process subdirectories")
	f.BoolVarP(&flags.dryRun, "dry-run", "n", false, "Report decisions without changing any file")
	f.BoolVarP(&flags.fixFilenames, "fix-filenames", "f", false, "Pad decimal numbers in file names to two places")
	f.BoolVar(&flags.forceJSON, "force-json", false, "Replace existing JSON sidecars instead of merging")
	f.BoolVarP(&flags.clean, "clean", "c", false, "Delete sidecars whose image no longer exists")
	f.BoolVar(&flags.noSummary, "no-summary", false, "Do not print the summary table")

	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// printUsage writes usage to stderr regardless of where normal output goes.
func printUsage(cmd *cobra.Command) {
	fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
}

func runBatch(cmd *cobra.Command, ctx *commandContext, root string, flags runFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := preflight.Err(preflight.RunAll(cfg, root, flags.dryRun)); err != nil {
		printUsage(cmd)
		return err
	}

	logger, err := ctx.logger()
	if err != nil {
		return err
	}

	var runnerOpts []batch.Option
	if cfg.Journal.Enabled && !flags.dryRun {
		store, err := journal.Open(cfg)
		if err != nil {
			logging.WarnWithContext(logger, "run journal unavailable", "journal_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check journal.path or delete an outdated journal"),
				logging.String(logging.FieldImpact, "run is not recorded in history"),
			)
		} else {
			defer store.Close()
			runnerOpts = append(runnerOpts, batch.WithJournal(store))
		}
	}
	runnerOpts = append(runnerOpts, batch.WithVersion(version))

	runner := batch.NewRunner(cfg, logger, runnerOpts...)
	summary, runErr := runner.Run(cmd.Context(), batch.Options{
		Root:         root,
		Recursive:    flags.recursive,
		DryRun:       flags.dryRun,
		FixFilenames: flags.fixFilenames,
		ForceJSON:    flags.forceJSON,
		Clean:        flags.clean,
		Command:      commandLine(cmd, root),
	})
	if summary != nil && !flags.noSummary {
		fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary))
	}
	return runErr
}

// commandLine rebuilds the invocation from the flags that were set, for the
// history entry written into each sidecar.
func commandLine(cmd *cobra.Command, root string) string {
	parts := []string{cmd.CommandPath()}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if f.Value.Type() == "bool" {
			parts = append(parts, "--"+f.Name)
			return
		}
		parts = append(parts, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	parts = append(parts, root)
	return strings.Join(parts, " ")
}
