//go:build !windows

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/goldrun/internal/harness"
	"github.com/ppiankov/goldrun/internal/history"
	"github.com/ppiankov/goldrun/internal/reporter"
	"github.com/ppiankov/goldrun/internal/runner"
	"github.com/ppiankov/goldrun/internal/task"
)

const testDataEnv = "GOLDRUN_TEST_DATA"

// testEnv is a data directory, output tree and settings file for one test.
type testEnv struct {
	root       string
	cases      string
	output     string
	runDir     string
	configPath string
}

// newTestEnv writes a settings file whose engine executes each
// configuration file as a shell script.
func newTestEnv(t *testing.T, engine string, extra string) testEnv {
	t.Helper()
	root := t.TempDir()
	e := testEnv{
		root:       root,
		cases:      filepath.Join(root, "data", "cases"),
		output:     filepath.Join(root, "output"),
		runDir:     filepath.Join(root, ".goldrun"),
		configPath: filepath.Join(root, ".goldrun.yml"),
	}
	require.NoError(t, os.MkdirAll(e.cases, 0o755))

	if engine == "" {
		engine = filepath.Join(root, "fake-engine")
		require.NoError(t, os.WriteFile(engine, []byte("#!/bin/sh\nexec /bin/sh \"$1\"\n"), 0o755))
	}

	settings := fmt.Sprintf("engine: %s\ndata_env: %s\noutput_dir: %s\nrun_dir: %s\n%s",
		engine, testDataEnv, e.output, e.runDir, extra)
	require.NoError(t, os.WriteFile(e.configPath, []byte(settings), 0o644))
	t.Setenv(testDataEnv, filepath.Join(root, "data"))
	return e
}

// addCase writes a config that produces file with content, and a baseline
// holding baseline (skipped when empty).
func (e testEnv) addCase(t *testing.T, name, file, content, baseline string) {
	t.Helper()
	script := fmt.Sprintf("printf '%s' > \"$(dirname \"$0\")/%s\"\n", content, file)
	require.NoError(t, os.WriteFile(filepath.Join(e.cases, name+".cfg"), []byte(script), 0o644))
	if baseline == "" {
		return
	}
	dir := filepath.Join(e.output, task.BaselineSubdir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(baseline), 0o644))
}

func (e testEnv) execute(args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e testEnv) latestReport(t *testing.T) *task.BatchReport {
	t.Helper()
	dir, err := findLatestRunDir(e.runDir)
	require.NoError(t, err)
	report, err := reporter.ReadJSONReport(filepath.Join(dir, reporter.JSONReportFile))
	require.NoError(t, err)
	return report
}

func TestRun_BatchMixedOutcome(t *testing.T) {
	e := newTestEnv(t, "", "")
	e.addCase(t, "flat", "flat.asc", "1 2 3", "1 2 3")
	e.addCase(t, "ridge", "ridge.asc", "1 2 4", "1 2 3")

	out, err := e.execute("run", "-c", "cases", "--tui", "off")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 cases did not pass")
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "differing: ridge.asc")

	report := e.latestReport(t)
	assert.Equal(t, 2, report.TotalCases)
	assert.Equal(t, 1, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, filepath.Join(e.root, "data", "cases"), report.Target)

	dir, err := findLatestRunDir(e.runDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, reporter.SARIFReportFile))
	assert.FileExists(t, filepath.Join(dir, "flat", "stdout.log"))

	assert.FileExists(t, filepath.Join(e.output, task.NewSubdir, "flat", "flat.asc"))
	assert.NoFileExists(t, filepath.Join(e.cases, "flat.asc"), "artifact must be moved out of the config dir")
	assert.NoFileExists(t, filepath.Join(e.output, ".goldrun.lock"))
}

func TestRun_SingleCasePasses(t *testing.T) {
	e := newTestEnv(t, "", "")
	e.addCase(t, "flat", "flat.asc", "1 2 3", "1 2 3")

	out, err := e.execute("run", "-c", filepath.Join("cases", "flat.cfg"), "--tui", "off")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Passed: 1")
}

func TestRun_MissingConfigIsErrored(t *testing.T) {
	e := newTestEnv(t, "", "")

	_, err := e.execute("run", "-c", filepath.Join("cases", "nope.cfg"), "--tui", "off")
	require.Error(t, err)

	report := e.latestReport(t)
	require.Len(t, report.Results, 1)
	assert.Equal(t, task.StateErrored, report.Results[0].State)
	assert.Equal(t, harness.KindConfigNotFound, report.Results[0].ErrorKind)
}

func TestRun_AcceptBaseline(t *testing.T) {
	e := newTestEnv(t, "", "")
	e.addCase(t, "ridge", "ridge.asc", "1 2 4", "1 2 3")

	out, err := e.execute("run", "-c", "cases", "--tui", "off", "--accept-baseline")
	require.NoError(t, err, out)
	assert.Contains(t, out, "baseline accepted")

	data, err := os.ReadFile(filepath.Join(e.output, task.BaselineSubdir, "ridge", "ridge.asc"))
	require.NoError(t, err)
	assert.Equal(t, "1 2 4", string(data))

	// the accepted baseline now passes without the flag
	_, err = e.execute("run", "-c", "cases", "--tui", "off")
	assert.NoError(t, err)
}

func TestRun_FilterAndDryRun(t *testing.T) {
	e := newTestEnv(t, "goldrun-engine-that-does-not-exist", "")
	e.addCase(t, "flat", "flat.asc", "1", "1")
	e.addCase(t, "ridge", "ridge.asc", "1", "1")

	out, err := e.execute("run", "-c", "cases", "--filter", "rid*", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "ridge")
	assert.NotContains(t, out, "flat")
	assert.NoDirExists(t, e.runDir, "dry run must not create a run directory")

	_, err = e.execute("run", "-c", "cases", "--filter", "zzz*", "--dry-run")
	assert.True(t, errors.Is(err, harness.ErrUsage), "got %v", err)
}

func TestRun_UsageErrors(t *testing.T) {
	e := newTestEnv(t, "", "")
	e.addCase(t, "flat", "flat.asc", "1", "1")

	t.Run("data dir unset", func(t *testing.T) {
		t.Setenv(testDataEnv, "")
		_, err := e.execute("run", "-c", "cases")
		assert.True(t, errors.Is(err, harness.ErrUsage), "got %v", err)
	})

	t.Run("empty directory", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(e.root, "data", "empty"), 0o755))
		_, err := e.execute("run", "-c", "empty")
		assert.True(t, errors.Is(err, harness.ErrUsage), "got %v", err)
	})

	t.Run("output inside config dir", func(t *testing.T) {
		settings := fmt.Sprintf("engine: /bin/true\ndata_env: %s\noutput_dir: %s\n",
			testDataEnv, filepath.Join(e.cases, "out"))
		path := filepath.Join(t.TempDir(), "inside.yml")
		require.NoError(t, os.WriteFile(path, []byte(settings), 0o644))

		cmd := NewRootCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"--config", path, "run", "-c", "cases"})
		err := cmd.Execute()
		assert.True(t, errors.Is(err, harness.ErrUsage), "got %v", err)
		assert.Contains(t, err.Error(), "inside configuration directory")
	})

	t.Run("bad tui mode", func(t *testing.T) {
		_, err := e.execute("run", "-c", "cases", "--tui", "fancy")
		assert.True(t, errors.Is(err, harness.ErrUsage), "got %v", err)
	})

	t.Run("missing -c", func(t *testing.T) {
		_, err := e.execute("run")
		assert.Error(t, err)
	})
}

func TestRun_EngineNotFoundBeforeAnyCase(t *testing.T) {
	e := newTestEnv(t, "goldrun-engine-that-does-not-exist", "")
	e.addCase(t, "flat", "flat.asc", "1", "1")

	_, err := e.execute("run", "-c", "cases", "--tui", "off")
	assert.True(t, errors.Is(err, runner.ErrEngineNotFound), "got %v", err)
	assert.NoDirExists(t, e.runDir)
	assert.NoDirExists(t, filepath.Join(e.output, task.NewSubdir))
}

func TestStatusAndHistory(t *testing.T) {
	e := newTestEnv(t, "", "")
	e.addCase(t, "flat", "flat.asc", "1 2 3", "1 2 3")
	e.addCase(t, "ridge", "ridge.asc", "1 2 4", "1 2 3")

	_, err := e.execute("run", "-c", "cases", "--tui", "off")
	require.Error(t, err)
	_, err = e.execute("run", "-c", "cases", "--tui", "off", "--filter", "flat")
	require.NoError(t, err)

	out, err := e.execute("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Run ID:")
	assert.Contains(t, out, "Total: 1")

	out, err = e.execute("history", "--case", "flat")
	require.NoError(t, err)
	assert.Contains(t, out, "PASSED")
	assert.NotContains(t, out, "ridge")

	out, err = e.execute("history", "--batches")
	require.NoError(t, err)
	assert.Contains(t, out, "RUN ID")

	store, err := history.Open(filepath.Join(e.runDir, "history.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	batches, err := store.Batches(t.Context(), 0)
	require.NoError(t, err)
	assert.Len(t, batches, 2)
}

func TestHistory_Disabled(t *testing.T) {
	e := newTestEnv(t, "", "history_db: \"off\"\n")
	e.addCase(t, "flat", "flat.asc", "1", "1")

	_, err := e.execute("run", "-c", "cases", "--tui", "off")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(e.runDir, "history.db"))

	_, err = e.execute("history")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	e := newTestEnv(t, "", "")
	out, err := e.execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "goldrun dev")
}
