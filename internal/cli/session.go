package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ppiankov/goldrun/internal/config"
	"github.com/ppiankov/goldrun/internal/harness"
	"github.com/ppiankov/goldrun/internal/history"
	"github.com/ppiankov/goldrun/internal/reporter"
	"github.com/ppiankov/goldrun/internal/runner"
	"github.com/ppiankov/goldrun/internal/task"
)

// Display modes for --tui.
const (
	displayAuto    = "auto"
	displayFull    = "full"
	displayMinimal = "minimal"
	displayOff     = "off"
)

// runOptions are the flags shared by run and watch.
type runOptions struct {
	cfg            string
	filter         string
	acceptBaseline bool
	failFast       bool
	maxRuntime     time.Duration
	idleTimeout    time.Duration
	tuiMode        string
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	d := config.Defaults()
	cmd.Flags().StringVarP(&o.cfg, "cfg", "c", "", "configuration file or directory of configuration files, relative to the data directory")
	cmd.Flags().StringVar(&o.filter, "filter", "", "only run cases whose name matches this glob")
	cmd.Flags().BoolVar(&o.acceptBaseline, "accept-baseline", false, "replace each baseline with the new output before comparing")
	cmd.Flags().BoolVar(&o.failFast, "fail-fast", false, "skip remaining cases after the first case that does not pass")
	cmd.Flags().DurationVar(&o.maxRuntime, "max-runtime", d.MaxRuntime, "kill an engine run after this duration (0 disables)")
	cmd.Flags().DurationVar(&o.idleTimeout, "idle-timeout", d.IdleTimeout, "kill an engine run after no stdout for this duration (0 disables)")
	_ = cmd.MarkFlagRequired("cfg")
}

// loadSettings reads the config file and lets explicitly set flags win.
func loadSettings(cmd *cobra.Command, o *runOptions) (*config.Settings, error) {
	s, err := config.LoadSettings(configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: load config: %v", harness.ErrUsage, err)
	}
	if cmd.Flags().Changed("max-runtime") {
		s.MaxRuntime = o.maxRuntime
	}
	if cmd.Flags().Changed("idle-timeout") {
		s.IdleTimeout = o.idleTimeout
	}
	if cmd.Flags().Changed("fail-fast") {
		s.FailFast = o.failFast
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", harness.ErrUsage, err)
	}
	return s, nil
}

// session holds everything resolved before the first case runs.
type session struct {
	settings *config.Settings
	opts     runOptions

	dataDir    string
	target     *config.Target
	configs    []string // after --filter
	outputRoot string
	runRoot    string
	engine     *runner.Engine

	out   io.Writer
	color bool
}

// newSession validates the environment and the -c target. Every error it
// returns wraps harness.ErrUsage.
func newSession(s *config.Settings, o runOptions, out io.Writer) (*session, error) {
	dataDir, err := config.DataDir(s.DataEnv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harness.ErrUsage, err)
	}

	target, err := config.ResolveTarget(dataDir, o.cfg, s.ConfigPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harness.ErrUsage, err)
	}
	configs, err := config.FilterCases(target.Configs, o.filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harness.ErrUsage, err)
	}
	if len(configs) == 0 {
		if o.filter != "" {
			return nil, fmt.Errorf("%w: no cases in %s match filter %q", harness.ErrUsage, target.Path, o.filter)
		}
		return nil, fmt.Errorf("%w: no configuration files matching %q in %s", harness.ErrUsage, s.ConfigPattern, target.Path)
	}

	outputRoot, err := filepath.Abs(s.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve output dir: %v", harness.ErrUsage, err)
	}
	runRoot, err := filepath.Abs(s.RunDir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve run dir: %v", harness.ErrUsage, err)
	}

	// anything written inside a configuration directory during a run
	// would be classified as engine output
	for _, cfg := range configs {
		cfgDir := filepath.Dir(cfg)
		for _, dir := range []string{outputRoot, runRoot} {
			if within(dir, cfgDir) {
				return nil, fmt.Errorf("%w: %s is inside configuration directory %s", harness.ErrUsage, dir, cfgDir)
			}
		}
	}

	return &session{
		settings:   s,
		opts:       o,
		dataDir:    dataDir,
		target:     target,
		configs:    configs,
		outputRoot: outputRoot,
		runRoot:    runRoot,
		engine: &runner.Engine{
			Binary:      s.Engine,
			MaxRuntime:  s.MaxRuntime,
			IdleTimeout: s.IdleTimeout,
			Env:         s.EngineEnv,
		},
		out:   out,
		color: isTerminal(),
	}, nil
}

// within reports whether path is dir or below it.
func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// cases builds the case list for configs with engine logs under runDir.
func (s *session) cases(configs []string, runDir string) []task.Case {
	out := make([]task.Case, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, task.NewCase(cfg, s.outputRoot, runDir))
	}
	return out
}

// preflight resolves the engine binary and claims the output tree. The
// returned func releases the claim.
func (s *session) preflight() (func(), error) {
	path, err := s.engine.Check()
	if err != nil {
		return nil, err
	}
	slog.Debug("engine resolved", "engine", path)

	if err := runner.Lock(s.outputRoot, s.target.Path); err != nil {
		return nil, err
	}
	return func() { runner.Unlock(s.outputRoot) }, nil
}

// runBatch executes configs as one batch, writes the reports, records
// history and prints the outcome. The report is returned even when a
// fatal error stopped the batch early.
func (s *session) runBatch(ctx context.Context, configs []string, display string) (*task.BatchReport, error) {
	runDir, err := newRunDir(s.runRoot, time.Now())
	if err != nil {
		return nil, err
	}

	x := &harness.Executor{
		Engine:         s.engine,
		Extensions:     s.settings.Extensions,
		Granularity:    s.settings.MtimeGranularity,
		AcceptBaseline: s.opts.acceptBaseline,
	}
	cases := s.cases(configs, runDir)
	textRep := reporter.NewTextReporter(s.out, s.color)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := harness.BatchOptions{FailFast: s.settings.FailFast}
	if display == displayOff {
		opts.OnUpdate = func(name string, res *task.CaseResult) {
			slog.Debug("case update", "case", name, "state", res.State)
			if res.State.Terminal() {
				textRep.PrintCase(res)
			}
		}
	}
	batch, err := harness.NewBatch(cases, x, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", harness.ErrUsage, err)
	}

	slog.Info("starting batch", "cases", len(cases), "run_id", batch.RunID, "run_dir", runDir)
	textRep.PrintHeader(len(cases), s.engine.Binary)

	var live *reporter.LiveReporter
	var tuiProgram *tea.Program
	var tuiDone chan struct{}
	switch display {
	case displayFull:
		tuiModel := reporter.NewTUIModel(s.engine.Binary, batch.Results, cancel)
		tuiProgram = tea.NewProgram(tuiModel, tea.WithAltScreen())
		tuiDone = make(chan struct{})
		go func() {
			defer close(tuiDone)
			if _, err := tuiProgram.Run(); err != nil {
				slog.Warn("TUI error", "error", err)
			}
		}()
	case displayMinimal:
		live = reporter.NewLiveReporter(s.out, s.color, batch.Results)
		live.Start()
	}

	report, runErr := batch.Run(ctx)

	if tuiProgram != nil {
		tuiProgram.Send(reporter.DoneMsg{})
		tuiProgram.Quit()
		<-tuiDone
	}
	if live != nil {
		live.Stop()
	}

	report.Target = s.target.Path
	report.DataDir = s.dataDir
	report.OutputDir = s.outputRoot
	report.Engine = s.engine.Binary
	report.Filter = s.opts.filter

	if display != displayOff {
		textRep.PrintStatus(report.Results)
	}
	textRep.PrintSummary(report)

	s.persist(report, runDir)
	return report, runErr
}

// persist writes report.json and report.sarif into runDir and appends the
// batch to the history store. Failures are logged, never fatal.
func (s *session) persist(report *task.BatchReport, runDir string) {
	if err := reporter.WriteJSONReport(report, filepath.Join(runDir, reporter.JSONReportFile)); err != nil {
		slog.Warn("failed to write report", "error", err)
	}
	if err := reporter.WriteSARIFReport(report, filepath.Join(runDir, reporter.SARIFReportFile)); err != nil {
		slog.Warn("failed to write SARIF report", "error", err)
	}
	fmt.Fprintf(s.out, "Report: %s\n", runDir)

	path, ok := s.settings.HistoryPath()
	if !ok {
		return
	}
	store, err := history.Open(path)
	if err != nil {
		slog.Warn("history unavailable", "path", path, "error", err)
		return
	}
	defer func() { _ = store.Close() }()
	if err := store.Record(context.Background(), report); err != nil {
		slog.Warn("failed to record history", "error", err)
	}
}

// newRunDir creates <root>/<timestamp>, adding a numeric suffix when a
// batch already claimed that second.
func newRunDir(root string, now time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	base := filepath.Join(root, now.Format("20060102-150405"))
	dir := base
	for i := 1; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create run dir: %w", err)
		}
		dir = fmt.Sprintf("%s-%d", base, i)
	}
}

// resolveDisplay maps --tui to a concrete mode.
func resolveDisplay(mode string) (string, error) {
	switch mode {
	case "", displayAuto:
		if isTerminal() {
			return displayFull, nil
		}
		return displayOff, nil
	case displayFull, displayMinimal, displayOff:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: unknown --tui mode %q (want auto, full, minimal or off)", harness.ErrUsage, mode)
	}
}

// batchError turns a finished batch into the command's error.
func batchError(report *task.BatchReport, runErr error) error {
	if runErr != nil {
		return runErr
	}
	if report.ExitCode() != 0 {
		return fmt.Errorf("%d of %d cases did not pass", report.TotalCases-report.Passed, report.TotalCases)
	}
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
