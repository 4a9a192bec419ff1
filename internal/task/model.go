package task

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// State represents the lifecycle position of a test case.
type State int

const (
	StatePending State = iota
	StateRunning
	StateCollecting
	StateComparing
	StatePassed
	StateFailed
	StateErrored
	StateSkipped // batch aborted or stopped before this case ran
)

var stateNames = [...]string{
	StatePending:    "PENDING",
	StateRunning:    "RUNNING",
	StateCollecting: "COLLECTING",
	StateComparing:  "COMPARING",
	StatePassed:     "PASSED",
	StateFailed:     "FAILED",
	StateErrored:    "ERRORED",
	StateSkipped:    "SKIPPED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s >= StatePassed
}

// MarshalText encodes the state by name so reports stay readable.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	name := strings.ToUpper(string(b))
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// Case is one engine configuration paired with its output locations.
type Case struct {
	Name        string `json:"name"`
	ConfigPath  string `json:"config_path"`
	NewDir      string `json:"new_dir"`
	BaselineDir string `json:"baseline_dir"`
	LogDir      string `json:"log_dir,omitempty"`
}

// Layout subdirectory names under the output root.
const (
	NewSubdir      = "new"
	BaselineSubdir = "original"
)

// CaseName derives the case name from a config path: the file name
// with its final extension removed.
func CaseName(configPath string) string {
	base := filepath.Base(configPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// NewCase builds a case for configPath laid out under outputRoot as
// <outputRoot>/new/<name> and <outputRoot>/original/<name>. Engine logs
// go to <logRoot>/<name> when logRoot is set.
func NewCase(configPath, outputRoot, logRoot string) Case {
	name := CaseName(configPath)
	c := Case{
		Name:        name,
		ConfigPath:  configPath,
		NewDir:      filepath.Join(outputRoot, NewSubdir, name),
		BaselineDir: filepath.Join(outputRoot, BaselineSubdir, name),
	}
	if logRoot != "" {
		c.LogDir = filepath.Join(logRoot, name)
	}
	return c
}

// CaseResult captures the outcome of executing a single case.
type CaseResult struct {
	Case       string        `json:"case"`
	ConfigPath string        `json:"config_path"`
	State      State         `json:"state"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	EndedAt    time.Time     `json:"ended_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`

	ExitCode  int    `json:"exit_code"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	Policy       string   `json:"policy,omitempty"`
	Artifacts    []string `json:"artifacts,omitempty"`
	Differing    []string `json:"differing,omitempty"`
	CommonCount  int      `json:"common_count"`
	OnlyNew      []string `json:"only_new,omitempty"`
	OnlyBaseline []string `json:"only_baseline,omitempty"`
	Accepted     bool     `json:"accepted,omitempty"`

	NewDir      string `json:"new_dir,omitempty"`
	BaselineDir string `json:"baseline_dir,omitempty"`
	StdoutLog   string `json:"stdout_log,omitempty"`
	StderrLog   string `json:"stderr_log,omitempty"`
}

// Passed reports whether the case ended in StatePassed.
func (r *CaseResult) Passed() bool {
	return r != nil && r.State == StatePassed
}

// BatchReport is the persisted summary of one goldrun invocation.
type BatchReport struct {
	RunID      string        `json:"run_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Target     string        `json:"target"`
	DataDir    string        `json:"data_dir"`
	OutputDir  string        `json:"output_dir"`
	Engine     string        `json:"engine"`
	Filter     string        `json:"filter,omitempty"`
	Results    []*CaseResult `json:"results"`
	TotalCases int           `json:"total_cases"`
	Passed     int           `json:"passed"`
	Failed     int           `json:"failed"`
	Errored    int           `json:"errored"`
	Skipped    int           `json:"skipped"`
	Accepted   int           `json:"accepted,omitempty"`
	Aborted    string        `json:"aborted,omitempty"`

	TotalDuration time.Duration `json:"total_duration"`
}

// Tally recomputes the counters from Results.
func (r *BatchReport) Tally() {
	r.TotalCases = len(r.Results)
	r.Passed, r.Failed, r.Errored, r.Skipped, r.Accepted = 0, 0, 0, 0, 0
	for _, res := range r.Results {
		switch res.State {
		case StatePassed:
			r.Passed++
		case StateFailed:
			r.Failed++
		case StateErrored:
			r.Errored++
		case StateSkipped:
			r.Skipped++
		}
		if res.Accepted {
			r.Accepted++
		}
	}
}

// OK reports whether every case passed. A batch without cases is not OK.
func (r *BatchReport) OK() bool {
	return r.TotalCases > 0 && r.Passed == r.TotalCases
}

// ExitCode maps the batch outcome to a process exit status.
func (r *BatchReport) ExitCode() int {
	if r.OK() {
		return 0
	}
	return 1
}

// Result returns the result recorded for the named case.
func (r *BatchReport) Result(name string) *CaseResult {
	for _, res := range r.Results {
		if res.Case == name {
			return res
		}
	}
	return nil
}
