package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/goldrun/internal/artifact"
	"github.com/ppiankov/goldrun/internal/compare"
	"github.com/ppiankov/goldrun/internal/runner"
	"github.com/ppiankov/goldrun/internal/task"
)

// EngineRunner launches the engine for one configuration file.
// *runner.Engine satisfies it.
type EngineRunner interface {
	Run(ctx context.Context, configPath, logDir string) (*runner.Invocation, error)
}

// Executor evaluates one case end to end.
type Executor struct {
	Engine     EngineRunner
	Extensions []string // files-policy allow-list; nil means artifact.DefaultExtensions

	// Granularity truncates the reference timestamp so artifacts written in
	// the launch tick survive coarse filesystem mtimes.
	Granularity time.Duration

	// AcceptBaseline replaces the baseline with the new output before
	// comparing. Never applied to an empty artifact set.
	AcceptBaseline bool
}

// Execute runs c and returns its result. The error is non-nil only when
// the batch must stop (engine missing or run interrupted); every other
// failure is recorded in the result. update receives the intermediate
// Collecting and Comparing states and may be nil.
//
// Output of a run that fails is still moved into c.NewDir. When c.LogDir
// is empty the engine logs go to a temporary directory that is removed
// before Execute returns, and the result carries no log paths.
func (x *Executor) Execute(ctx context.Context, c *task.Case, update func(task.State)) (*task.CaseResult, error) {
	if update == nil {
		update = func(task.State) {}
	}
	res := &task.CaseResult{
		Case:        c.Name,
		ConfigPath:  c.ConfigPath,
		State:       task.StateRunning,
		StartedAt:   time.Now(),
		ExitCode:    -1,
		NewDir:      c.NewDir,
		BaselineDir: c.BaselineDir,
	}
	log := slog.With("case", c.Name)

	end := func(state task.State, err error) (*task.CaseResult, error) {
		res.State = state
		res.EndedAt = time.Now()
		res.Duration = res.EndedAt.Sub(res.StartedAt)
		if err != nil {
			res.ErrorKind = Kind(err)
			res.Error = err.Error()
			log.Debug("case finished", "state", state, "error", err)
		}
		if Fatal(err) {
			return res, err
		}
		return res, nil
	}

	configPath, err := filepath.Abs(c.ConfigPath)
	if err != nil {
		return end(task.StateErrored, fmt.Errorf("resolve config path: %w", err))
	}
	if info, err := os.Stat(configPath); err != nil || info.IsDir() {
		return end(task.StateErrored, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath))
	}

	if err := artifact.Reset(c.NewDir); err != nil {
		return end(task.StateErrored, fmt.Errorf("prepare new output: %w", err))
	}
	if err := os.MkdirAll(c.BaselineDir, 0o755); err != nil {
		return end(task.StateErrored, fmt.Errorf("prepare baseline: %w", err))
	}

	logDir := c.LogDir
	if logDir == "" {
		tmp, err := os.MkdirTemp("", "goldrun-"+c.Name+"-")
		if err != nil {
			return end(task.StateErrored, fmt.Errorf("create log dir: %w", err))
		}
		defer func() {
			if err := os.RemoveAll(tmp); err != nil {
				log.Debug("remove log dir", "dir", tmp, "error", err)
			}
			res.StdoutLog, res.StderrLog = "", ""
		}()
		logDir = tmp
	}

	log.Debug("running engine", "config", configPath)
	inv, err := x.Engine.Run(ctx, configPath, logDir)
	if inv != nil {
		res.ExitCode = inv.ExitCode
		res.StdoutLog = inv.StdoutLog
		res.StderrLog = inv.StderrLog
	}
	configDir := filepath.Dir(configPath)
	if err != nil {
		// whatever a failed run left behind is still its own output and
		// must not be picked up by the next case in this directory
		if inv != nil && !inv.StartedAt.IsZero() {
			if _, cerr := x.collect(res, configDir, c.NewDir, inv.StartedAt); cerr != nil {
				log.Warn("failed to clear output of failed run", "dir", configDir, "error", cerr)
			}
		}
		return end(task.StateErrored, err)
	}

	update(task.StateCollecting)
	set, err := x.collect(res, configDir, c.NewDir, inv.StartedAt)
	if err != nil {
		return end(task.StateErrored, err)
	}

	update(task.StateComparing)
	if x.AcceptBaseline {
		if set.Empty() {
			return end(task.StateFailed, fmt.Errorf("%w: engine produced nothing to accept", ErrNoArtifacts))
		}
		if err := acceptBaseline(c.NewDir, c.BaselineDir); err != nil {
			return end(task.StateErrored, err)
		}
		res.Accepted = true
		log.Info("baseline accepted", "dir", c.BaselineDir)
	}

	cmp, err := compare.Dirs(c.NewDir, c.BaselineDir)
	if err != nil {
		return end(task.StateErrored, fmt.Errorf("compare: %w", err))
	}
	res.Differing = cmp.Differing
	res.CommonCount = cmp.CommonCount()
	res.OnlyNew = cmp.OnlyNew
	res.OnlyBaseline = cmp.OnlyBaseline

	switch {
	case cmp.Passed:
		return end(task.StatePassed, nil)
	case len(cmp.Differing) > 0:
		return end(task.StateFailed, fmt.Errorf("%w: %s", ErrMismatch, strings.Join(cmp.Differing, ", ")))
	default:
		return end(task.StateFailed, ErrNoArtifacts)
	}
}

// collect moves the entries of configDir that the run started at started
// produced into newDir and records them on res.
func (x *Executor) collect(res *task.CaseResult, configDir, newDir string, started time.Time) (artifact.Set, error) {
	ref := started
	if x.Granularity > 0 {
		ref = ref.Truncate(x.Granularity)
	}
	exts := x.Extensions
	if exts == nil {
		exts = artifact.DefaultExtensions
	}
	set, err := artifact.Collect(configDir, ref, exts)
	if err != nil {
		return set, fmt.Errorf("collect artifacts: %w", err)
	}
	res.Policy = string(set.Policy())
	res.Artifacts = set.Names()
	slog.Debug("collected artifacts", "case", res.Case, "dir", configDir, "policy", set.Policy(), "count", set.Len())

	if err := artifact.Move(set, configDir, newDir); err != nil {
		return set, fmt.Errorf("move artifacts: %w", err)
	}
	return set, nil
}

func acceptBaseline(newDir, baselineDir string) error {
	if err := artifact.Reset(baselineDir); err != nil {
		return fmt.Errorf("accept baseline: %w", err)
	}
	if err := artifact.CopyTree(newDir, baselineDir); err != nil {
		return fmt.Errorf("accept baseline: %w", err)
	}
	return nil
}
