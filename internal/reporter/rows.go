package reporter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/goldrun/internal/task"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// maxDetail caps the detail column of a live row.
const maxDetail = 80

// group orders rows in live displays: problems first, pending last.
type group int

const (
	groupProblem group = iota
	groupActive
	groupPassed
	groupPending
)

func groupOf(s task.State) group {
	switch s {
	case task.StateFailed, task.StateErrored, task.StateSkipped:
		return groupProblem
	case task.StateRunning, task.StateCollecting, task.StateComparing:
		return groupActive
	case task.StatePassed:
		return groupPassed
	default:
		return groupPending
	}
}

// displayOrder groups results for live display, keeping execution order
// within each group.
func displayOrder(results []*task.CaseResult) []*task.CaseResult {
	out := make([]*task.CaseResult, 0, len(results))
	for g := groupProblem; g <= groupPending; g++ {
		for _, r := range results {
			if groupOf(r.State) == g {
				out = append(out, r)
			}
		}
	}
	return out
}

// caseRow renders one unstyled live row.
func caseRow(res *task.CaseResult, spinner string) string {
	var icon, label, detail string
	switch res.State {
	case task.StateFailed, task.StateErrored:
		icon, label, detail = "✗", res.State.String(), caseDetail(res)
	case task.StateSkipped:
		icon, label, detail = "⊘", "skipped", res.Error
	case task.StateRunning, task.StateCollecting, task.StateComparing:
		icon, label = spinner, strings.ToLower(res.State.String())
		if !res.StartedAt.IsZero() {
			detail = time.Since(res.StartedAt).Truncate(time.Second).String()
		}
	case task.StatePassed:
		icon, label = "✓", "passed"
		detail = fmt.Sprintf("%s  %d files", shortDuration(res.Duration), res.CommonCount)
		if res.Accepted {
			detail += " (accepted)"
		}
	default:
		icon, label = "─", "queued"
	}
	if len(detail) > maxDetail {
		detail = detail[:maxDetail] + "..."
	}
	return strings.TrimRight(fmt.Sprintf("  %s %-10s %-28s %s", icon, label, res.Case, detail), " ")
}

type progress struct {
	passed, active, failed, pending int
}

func countProgress(results []*task.CaseResult) progress {
	var p progress
	for _, r := range results {
		switch groupOf(r.State) {
		case groupPassed:
			p.passed++
		case groupActive:
			p.active++
		case groupProblem:
			p.failed++
		default:
			p.pending++
		}
	}
	return p
}

// parts returns the non-zero progress counters with their display group.
func (p progress) parts() ([]string, []group) {
	var text []string
	var groups []group
	add := func(n int, label string, g group) {
		if n > 0 {
			text = append(text, fmt.Sprintf("%d %s", n, label))
			groups = append(groups, g)
		}
	}
	add(p.passed, "passed", groupPassed)
	add(p.active, "running", groupActive)
	add(p.failed, "failed", groupProblem)
	add(p.pending, "queued", groupPending)
	return text, groups
}
