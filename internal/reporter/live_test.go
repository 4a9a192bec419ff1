package reporter

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/goldrun/internal/task"
)

func TestLiveReporter_Render(t *testing.T) {
	results := []*task.CaseResult{
		{Case: "bigbutte", State: task.StatePassed, Duration: 30 * time.Second, CommonCount: 4},
		{Case: "ridge", State: task.StateComparing, StartedAt: time.Now().Add(-10 * time.Second)},
		{Case: "canyon", State: task.StatePending},
		{Case: "crash", State: task.StateErrored, Error: "engine run failed: exit code 2"},
	}

	var buf bytes.Buffer
	lr := NewLiveReporter(&buf, false, func() []*task.CaseResult { return results })

	lines := lr.Render(results)
	output := strings.Join(lines, "\n")

	for _, want := range []string{
		"goldrun: 4 cases", "bigbutte", "passed", "4 files",
		"comparing", "ridge", "queued", "canyon",
		"ERRORED", "exit code 2", "progress:",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}

	// problems are listed before everything else
	if strings.Index(output, "crash") > strings.Index(output, "bigbutte") {
		t.Errorf("errored case should be listed first:\n%s", output)
	}
}

func TestLiveReporter_SpinnerAdvances(t *testing.T) {
	results := []*task.CaseResult{
		{Case: "ridge", State: task.StateRunning, StartedAt: time.Now()},
	}

	var buf bytes.Buffer
	lr := NewLiveReporter(&buf, false, func() []*task.CaseResult { return results })

	lines1 := lr.Render(results)
	lr.frame = 1
	lines2 := lr.Render(results)

	find := func(lines []string) string {
		for _, l := range lines {
			if strings.Contains(l, "running") {
				return l
			}
		}
		return ""
	}
	if find(lines1) == find(lines2) {
		t.Error("expected spinner to change between frames")
	}
}

func TestLiveReporter_Overflow(t *testing.T) {
	var results []*task.CaseResult
	for i := 0; i < 30; i++ {
		results = append(results, &task.CaseResult{Case: fmt.Sprintf("case%02d", i), State: task.StatePassed})
	}

	var buf bytes.Buffer
	lr := NewLiveReporter(&buf, false, func() []*task.CaseResult { return results })

	output := strings.Join(lr.Render(results), "\n")
	if !strings.Contains(output, "10 more cases") {
		t.Errorf("expected overflow indicator:\n%s", output)
	}
}

func TestLiveReporter_StartStop(t *testing.T) {
	results := []*task.CaseResult{{Case: "a", State: task.StateRunning, StartedAt: time.Now()}}

	var buf bytes.Buffer
	lr := NewLiveReporter(&buf, false, func() []*task.CaseResult { return results })
	lr.Start()
	time.Sleep(700 * time.Millisecond)
	lr.Stop()

	if !strings.Contains(buf.String(), "goldrun: 1 cases") {
		t.Errorf("expected at least one frame rendered, got %q", buf.String())
	}
}
