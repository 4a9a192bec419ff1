package task

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StatePending, "PENDING"},
		{StateRunning, "RUNNING"},
		{StateCollecting, "COLLECTING"},
		{StateComparing, "COMPARING"},
		{StatePassed, "PASSED"},
		{StateFailed, "FAILED"},
		{StateErrored, "ERRORED"},
		{StateSkipped, "SKIPPED"},
		{State(99), "UNKNOWN"},
		{State(-1), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StatePending, StateRunning, StateCollecting, StateComparing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []State{StatePassed, StateFailed, StateErrored, StateSkipped} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestState_JSONByName(t *testing.T) {
	r := CaseResult{Case: "ridge", State: StateFailed}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["state"] != "FAILED" {
		t.Errorf("expected state encoded as FAILED, got %v", raw["state"])
	}

	var back CaseResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.State != StateFailed {
		t.Errorf("expected FAILED after decode, got %s", back.State)
	}
}

func TestState_UnmarshalUnknown(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("exploded")); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestCaseName(t *testing.T) {
	tests := map[string]string{
		"/data/cases/bigbutte.cfg":     "bigbutte",
		"ridge_point.cfg":              "ridge_point",
		"/data/cases/domain.avg.cfg":   "domain.avg",
		"/data/cases/no_extension":     "no_extension",
		filepath.Join("a", "b", "x.c"): "x",
	}
	for in, want := range tests {
		if got := CaseName(in); got != want {
			t.Errorf("CaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewCase_Layout(t *testing.T) {
	c := NewCase("/data/cases/bigbutte.cfg", "/work/output", "/work/.goldrun/run1")

	if c.Name != "bigbutte" {
		t.Errorf("name = %q", c.Name)
	}
	if want := filepath.Join("/work/output", "new", "bigbutte"); c.NewDir != want {
		t.Errorf("NewDir = %q, want %q", c.NewDir, want)
	}
	if want := filepath.Join("/work/output", "original", "bigbutte"); c.BaselineDir != want {
		t.Errorf("BaselineDir = %q, want %q", c.BaselineDir, want)
	}
	if want := filepath.Join("/work/.goldrun/run1", "bigbutte"); c.LogDir != want {
		t.Errorf("LogDir = %q, want %q", c.LogDir, want)
	}

	if c := NewCase("/data/cases/x.cfg", "/out", ""); c.LogDir != "" {
		t.Errorf("expected empty LogDir without log root, got %q", c.LogDir)
	}
}

func TestBatchReport_Tally(t *testing.T) {
	r := &BatchReport{Results: []*CaseResult{
		{Case: "a", State: StatePassed},
		{Case: "b", State: StatePassed, Accepted: true},
		{Case: "c", State: StateFailed},
		{Case: "d", State: StateErrored},
		{Case: "e", State: StateSkipped},
	}}
	r.Tally()

	if r.TotalCases != 5 || r.Passed != 2 || r.Failed != 1 || r.Errored != 1 || r.Skipped != 1 || r.Accepted != 1 {
		t.Errorf("unexpected tally: %+v", r)
	}
	if r.OK() {
		t.Error("batch with failures should not be OK")
	}
	if r.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", r.ExitCode())
	}
	if got := r.Result("c"); got == nil || got.State != StateFailed {
		t.Errorf("Result(c) = %+v", got)
	}
	if r.Result("missing") != nil {
		t.Error("expected nil for unknown case")
	}
}

func TestBatchReport_ExitCode(t *testing.T) {
	ok := &BatchReport{Results: []*CaseResult{{State: StatePassed}, {State: StatePassed}}}
	ok.Tally()
	if ok.ExitCode() != 0 {
		t.Errorf("all passed: exit code = %d, want 0", ok.ExitCode())
	}

	empty := &BatchReport{}
	empty.Tally()
	if empty.ExitCode() != 1 {
		t.Errorf("empty batch: exit code = %d, want 1", empty.ExitCode())
	}
}
