package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/goldrun/internal/reporter"
)

func newRunCmd() *cobra.Command {
	var (
		opts   runOptions
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run cases and compare their output with the baseline",
		Long: `Run executes the engine once per configuration file and compares the files
it produces with output/original/<case>. A -c path names either a single
configuration file or a directory whose matching files each form a case.
Relative paths are resolved against the data directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, &opts)
			if err != nil {
				return err
			}
			display, err := resolveDisplay(opts.tuiMode)
			if err != nil {
				return err
			}
			s, err := newSession(settings, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if dryRun {
				textRep := reporter.NewTextReporter(s.out, s.color)
				textRep.PrintHeader(len(s.configs), s.engine.Binary)
				textRep.PrintDryRun(s.cases(s.configs, ""))
				return nil
			}

			release, err := s.preflight()
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			report, runErr := s.runBatch(ctx, s.configs, display)
			if report == nil {
				return runErr
			}
			return batchError(report, runErr)
		},
	}

	addRunFlags(cmd, &opts)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the cases and their directories without running the engine")
	cmd.Flags().StringVar(&opts.tuiMode, "tui", displayAuto, "display mode: full (interactive TUI), minimal (live status), off (one line per case), auto (detect TTY)")

	return cmd
}
