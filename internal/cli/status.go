package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/goldrun/internal/config"
	"github.com/ppiankov/goldrun/internal/reporter"
)

func newStatusCmd() *cobra.Command {
	var runDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect results of a completed batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runDir == "" {
				settings, err := config.LoadSettings(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				latest, err := findLatestRunDir(settings.RunDir)
				if err != nil {
					return fmt.Errorf("no --run-dir specified and %w", err)
				}
				runDir = latest
			}
			return showStatus(cmd, runDir)
		},
	}

	cmd.Flags().StringVar(&runDir, "run-dir", "", "path to a <run_dir>/<timestamp> directory (auto-detects latest if omitted)")

	return cmd
}

// findLatestRunDir returns the newest directory under root holding a
// report.json.
func findLatestRunDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("cannot read run directory: %w", err)
	}

	// entries are sorted by name; timestamps sort chronologically
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.IsDir() {
			continue
		}
		candidate := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(candidate, reporter.JSONReportFile)); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no completed batches found in %s", root)
}

func showStatus(cmd *cobra.Command, runDir string) error {
	report, err := reporter.ReadJSONReport(filepath.Join(runDir, reporter.JSONReportFile))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Batch: %s\n", report.Timestamp.Format("2006-01-02 15:04:05"))
	if report.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", report.RunID)
	}
	fmt.Fprintf(w, "Target: %s\n", report.Target)
	fmt.Fprintf(w, "Engine: %s\n", report.Engine)
	if report.Filter != "" {
		fmt.Fprintf(w, "Filter: %s\n", report.Filter)
	}
	fmt.Fprintln(w)

	textRep := reporter.NewTextReporter(w, isTerminal())
	textRep.PrintStatus(report.Results)
	textRep.PrintSummary(report)
	return nil
}
