package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/goldrun/internal/task"
)

const maxCaseLines = 20

// LiveReporter redraws a compact case list in place while a batch runs.
type LiveReporter struct {
	w          io.Writer
	color      bool
	getResults func() []*task.CaseResult
	stop       chan struct{}
	done       chan struct{}
	lastLines  int
	frame      int
	mu         sync.Mutex
}

// NewLiveReporter creates a live reporter that polls results via getResults.
func NewLiveReporter(w io.Writer, color bool, getResults func() []*task.CaseResult) *LiveReporter {
	return &LiveReporter{
		w:          w,
		color:      color,
		getResults: getResults,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins the periodic refresh loop.
func (lr *LiveReporter) Start() {
	go lr.loop()
}

// Stop halts the refresh loop and clears the live display.
func (lr *LiveReporter) Stop() {
	close(lr.stop)
	<-lr.done
	lr.clearLastFrame()
}

func (lr *LiveReporter) loop() {
	defer close(lr.done)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-lr.stop:
			return
		case <-ticker.C:
			lr.render()
		}
	}
}

func (lr *LiveReporter) clearLastFrame() {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.lastLines > 0 {
		fmt.Fprintf(lr.w, "\033[%dA", lr.lastLines)
		for i := 0; i < lr.lastLines; i++ {
			fmt.Fprintf(lr.w, "\033[K\n")
		}
		fmt.Fprintf(lr.w, "\033[%dA", lr.lastLines)
	}
}

func (lr *LiveReporter) render() {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	lines := lr.buildLines(lr.getResults())

	// move cursor up to overwrite previous frame
	if lr.lastLines > 0 {
		fmt.Fprintf(lr.w, "\033[%dA", lr.lastLines)
	}
	for _, line := range lines {
		fmt.Fprintf(lr.w, "\033[K%s\n", line)
	}

	lr.lastLines = len(lines)
	lr.frame++
}

// Render produces the display lines for a given results snapshot.
// Exported for testing.
func (lr *LiveReporter) Render(results []*task.CaseResult) []string {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.buildLines(results)
}

func (lr *LiveReporter) buildLines(results []*task.CaseResult) []string {
	spinner := spinnerFrames[lr.frame%len(spinnerFrames)]

	lines := []string{fmt.Sprintf("goldrun: %d cases", len(results)), ""}

	ordered := displayOrder(results)
	shown := ordered
	if len(shown) > maxCaseLines {
		shown = shown[:maxCaseLines]
	}
	for _, res := range shown {
		lines = append(lines, lr.paint(groupOf(res.State), caseRow(res, spinner)))
	}
	if remaining := len(ordered) - len(shown); remaining > 0 {
		lines = append(lines, fmt.Sprintf("  %s... %d more cases%s", lr.c(colorDim), remaining, lr.c(colorReset)))
	}

	text, groups := countProgress(results).parts()
	for i := range text {
		text[i] = lr.paint(groups[i], text[i])
	}
	lines = append(lines, "", "  progress: "+strings.Join(text, ", "))
	return lines
}

func (lr *LiveReporter) paint(g group, s string) string {
	var code string
	switch g {
	case groupProblem:
		code = colorRed
	case groupActive:
		code = colorCyan
	case groupPassed:
		code = colorGreen
	default:
		code = colorDim
	}
	return lr.c(code) + s + lr.c(colorReset)
}

func (lr *LiveReporter) c(code string) string {
	if !lr.color {
		return ""
	}
	return code
}
