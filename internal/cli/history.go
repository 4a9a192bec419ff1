package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/goldrun/internal/config"
	"github.com/ppiankov/goldrun/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		caseName string
		limit    int
		batches  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded case outcomes across batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			path, ok := settings.HistoryPath()
			if !ok {
				return fmt.Errorf("history is disabled (history_db: %s)", config.HistoryOff)
			}

			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if batches {
				return printBatches(cmd, store, limit)
			}
			return printCases(cmd, store, history.Query{Case: caseName, Limit: limit})
		},
	}

	cmd.Flags().StringVar(&caseName, "case", "", "only show outcomes of this case")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show (0 = all)")
	cmd.Flags().BoolVar(&batches, "batches", false, "list batches instead of cases")

	return cmd
}

func printCases(cmd *cobra.Command, store *history.Store, q history.Query) error {
	entries, err := store.Cases(context.Background(), q)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(w, "no recorded cases")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCASE\tSTATE\tDURATION\tDETAIL")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Case, e.State, e.Duration, entryDetail(e))
	}
	return tw.Flush()
}

func entryDetail(e history.Entry) string {
	switch {
	case e.Accepted:
		return "baseline accepted"
	case len(e.Differing) > 0:
		return "differing: " + strings.Join(e.Differing, ", ")
	case e.ErrorKind != "":
		return e.ErrorKind
	default:
		return ""
	}
}

func printBatches(cmd *cobra.Command, store *history.Store, limit int) error {
	list, err := store.Batches(context.Background(), limit)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(w, "no recorded batches")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tRUN ID\tTOTAL\tPASSED\tFAILED\tERRORED\tSKIPPED\tTARGET")
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			b.Timestamp.Format("2006-01-02 15:04:05"), b.RunID, b.Total, b.Passed, b.Failed, b.Errored, b.Skipped, b.Target)
	}
	return tw.Flush()
}
