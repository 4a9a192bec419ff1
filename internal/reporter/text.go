package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/goldrun/internal/task"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
)

// maxListed caps how many differing names a case line shows.
const maxListed = 5

// TextReporter writes human-readable output to a writer.
type TextReporter struct {
	w     io.Writer
	color bool
}

// NewTextReporter creates a text reporter.
// If w is nil, defaults to os.Stdout.
// color enables ANSI codes.
func NewTextReporter(w io.Writer, color bool) *TextReporter {
	if w == nil {
		w = os.Stdout
	}
	return &TextReporter{w: w, color: color}
}

// PrintHeader writes the initial banner.
func (r *TextReporter) PrintHeader(totalCases int, engine string) {
	fmt.Fprintf(r.w, "goldrun: %d cases, engine %s\n\n", totalCases, engine)
}

// PrintCase writes the one-line outcome of a finished case.
func (r *TextReporter) PrintCase(res *task.CaseResult) {
	label, color := stateLabel(res.State)
	line := fmt.Sprintf("  %s%-8s%s %-28s", r.c(color), label, r.c(colorReset), res.Case)

	switch res.State {
	case task.StatePassed:
		line += fmt.Sprintf(" %-7s %d files", shortDuration(res.Duration), res.CommonCount)
		if res.Accepted {
			line += " (baseline accepted)"
		}
	case task.StateFailed, task.StateErrored:
		line += fmt.Sprintf(" %-7s ✗ %s", shortDuration(res.Duration), caseDetail(res))
	case task.StateSkipped:
		line += fmt.Sprintf(" %s(%s)%s", r.c(colorDim), res.Error, r.c(colorReset))
	}
	fmt.Fprintln(r.w, strings.TrimRight(line, " "))
}

// PrintStatus writes a snapshot of all case states grouped by state.
func (r *TextReporter) PrintStatus(results []*task.CaseResult) {
	var active, passed, failed, errored, skipped, pending []*task.CaseResult
	for _, res := range results {
		switch res.State {
		case task.StateRunning, task.StateCollecting, task.StateComparing:
			active = append(active, res)
		case task.StatePassed:
			passed = append(passed, res)
		case task.StateFailed:
			failed = append(failed, res)
		case task.StateErrored:
			errored = append(errored, res)
		case task.StateSkipped:
			skipped = append(skipped, res)
		default:
			pending = append(pending, res)
		}
	}
	total := len(results)

	r.printSection("RUNNING", colorCyan, active, total, func(res *task.CaseResult) string {
		elapsed := time.Since(res.StartedAt).Truncate(time.Second)
		return fmt.Sprintf("    %-28s %-11s %s", res.Case, res.State, elapsed)
	})
	r.printSection("PASSED", colorGreen, passed, total, func(res *task.CaseResult) string {
		return fmt.Sprintf("    %-28s %d files", res.Case, res.CommonCount)
	})
	r.printSection("FAILED", colorRed, failed, total, func(res *task.CaseResult) string {
		return fmt.Sprintf("    %-28s ✗ %s", res.Case, caseDetail(res))
	})
	r.printSection("ERRORED", colorRed, errored, total, func(res *task.CaseResult) string {
		return fmt.Sprintf("    %-28s ✗ %s", res.Case, caseDetail(res))
	})
	r.printSection("SKIPPED", colorYellow, skipped, total, func(res *task.CaseResult) string {
		return fmt.Sprintf("    %s%-28s%s (%s)", r.c(colorDim), res.Case, r.c(colorReset), res.Error)
	})
	r.printSection("PENDING", colorDim, pending, total, func(res *task.CaseResult) string {
		return fmt.Sprintf("    %s%s%s", r.c(colorDim), res.Case, r.c(colorReset))
	})
}

// PrintSummary writes the final summary line.
func (r *TextReporter) PrintSummary(report *task.BatchReport) {
	fmt.Fprintf(r.w, "\n%s--- Summary ---%s\n", r.c(colorCyan), r.c(colorReset))
	fmt.Fprintf(r.w, "Total: %d  ", report.TotalCases)
	fmt.Fprintf(r.w, "%sPassed: %d%s  ", r.c(colorGreen), report.Passed, r.c(colorReset))
	fmt.Fprintf(r.w, "%sFailed: %d%s  ", r.c(colorRed), report.Failed, r.c(colorReset))
	fmt.Fprintf(r.w, "%sErrored: %d%s  ", r.c(colorRed), report.Errored, r.c(colorReset))
	fmt.Fprintf(r.w, "%sSkipped: %d%s  ", r.c(colorYellow), report.Skipped, r.c(colorReset))
	if report.Accepted > 0 {
		fmt.Fprintf(r.w, "Accepted: %d  ", report.Accepted)
	}
	fmt.Fprintf(r.w, "Duration: %s\n", report.TotalDuration.Truncate(time.Second))
	if report.Aborted != "" {
		fmt.Fprintf(r.w, "%sAborted: %s%s\n", r.c(colorRed), report.Aborted, r.c(colorReset))
	}
}

// PrintDryRun writes the cases that would run without running anything.
func (r *TextReporter) PrintDryRun(cases []task.Case) {
	fmt.Fprint(r.w, "Execution plan (dry-run):\n\n")
	for i, c := range cases {
		fmt.Fprintf(r.w, "  %d. %s\n", i+1, c.Name)
		fmt.Fprintf(r.w, "     config:   %s\n", c.ConfigPath)
		fmt.Fprintf(r.w, "     new:      %s\n", c.NewDir)
		fmt.Fprintf(r.w, "     baseline: %s\n\n", c.BaselineDir)
	}
}

func (r *TextReporter) printSection(label, color string, items []*task.CaseResult, total int, formatter func(*task.CaseResult) string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(r.w, "  %s%s  [%d/%d]%s\n", r.c(color), label, len(items), total, r.c(colorReset))
	for _, res := range items {
		fmt.Fprintln(r.w, formatter(res))
	}
	fmt.Fprintln(r.w)
}

func (r *TextReporter) c(code string) string {
	if !r.color {
		return ""
	}
	return code
}

func stateLabel(s task.State) (string, string) {
	switch s {
	case task.StatePassed:
		return "PASS", colorGreen
	case task.StateFailed:
		return "FAIL", colorRed
	case task.StateErrored:
		return "ERROR", colorRed
	case task.StateSkipped:
		return "SKIP", colorYellow
	default:
		return s.String(), colorCyan
	}
}

// caseDetail explains why a case did not pass. Mismatches list the
// differing names instead of the raw error text.
func caseDetail(res *task.CaseResult) string {
	if len(res.Differing) > 0 {
		names := res.Differing
		more := ""
		if len(names) > maxListed {
			more = fmt.Sprintf(" (+%d more)", len(names)-maxListed)
			names = names[:maxListed]
		}
		return "differing: " + strings.Join(names, ", ") + more
	}
	if res.Error != "" {
		return res.Error
	}
	return res.State.String()
}

func shortDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(100 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return "0s"
	}
}
