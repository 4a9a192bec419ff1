package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/goldrun/internal/config"
	"github.com/ppiankov/goldrun/internal/harness"
	"github.com/ppiankov/goldrun/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		opts runOptions
		poll bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run cases, then re-run each one when its configuration file changes",
		Long: `Watch runs the whole target once and then keeps watching it. Every time a
configuration file is created or saved, that case alone is run again and its
report is written to a fresh run directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, &opts)
			if err != nil {
				return err
			}
			s, err := newSession(settings, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			release, err := s.preflight()
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runWatch(ctx, s, poll)
		},
	}

	addRunFlags(cmd, &opts)
	cmd.Flags().BoolVar(&poll, "poll", false, "use polling instead of fsnotify")

	return cmd
}

func runWatch(ctx context.Context, s *session, poll bool) error {
	if _, err := s.runBatch(ctx, s.configs, displayOff); err != nil && harness.Fatal(err) {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	w := &watch.Watcher{
		Dir:      s.target.Path,
		Pattern:  s.settings.ConfigPattern,
		Debounce: watch.DefaultDebounce,
		Poll:     poll,
		OnChange: func(ctx context.Context, path string) {
			kept, err := config.FilterCases([]string{path}, s.opts.filter)
			if err != nil || len(kept) == 0 {
				return
			}
			if _, err := s.runBatch(ctx, kept, displayOff); err != nil {
				slog.Error("rerun failed", "config", filepath.Base(path), "error", err)
			}
		},
	}
	if !s.target.Batch {
		w.Dir = filepath.Dir(s.target.Path)
		w.Pattern = filepath.Base(s.target.Path)
	}
	return w.Run(ctx)
}
