package workdir

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	return resolved
}

func realpath(t *testing.T, p string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(p)
	require.NoError(t, err)
	return resolved
}

func TestEnterRestore(t *testing.T) {
	start := getwd(t)
	dir := t.TempDir()

	s, err := Enter(dir)
	require.NoError(t, err)
	assert.Equal(t, realpath(t, dir), getwd(t))
	assert.Equal(t, dir, s.Dir())

	require.NoError(t, s.Restore())
	assert.Equal(t, start, getwd(t))
}

func TestRestore_Idempotent(t *testing.T) {
	start := getwd(t)

	s, err := Enter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Restore())
	require.NoError(t, s.Restore())
	assert.Equal(t, start, getwd(t))

	// lock was released exactly once, so a new scope can be entered
	s2, err := Enter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s2.Restore())
}

func TestEnter_MissingDir(t *testing.T) {
	start := getwd(t)

	_, err := Enter(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, start, getwd(t))

	// failed Enter must not hold the lock
	s, err := Enter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Restore())
}

func TestDo_RestoresOnError(t *testing.T) {
	start := getwd(t)
	boom := errors.New("boom")

	err := Do(t.TempDir(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, start, getwd(t))
}

func TestDo_RestoresOnPanic(t *testing.T) {
	start := getwd(t)
	dir := t.TempDir()

	assert.Panics(t, func() {
		_ = Do(dir, func() error { panic("engine exploded") })
	})
	assert.Equal(t, start, getwd(t))
}

func TestDo_SerializesScopes(t *testing.T) {
	start := getwd(t)
	dirs := []string{t.TempDir(), t.TempDir(), t.TempDir(), t.TempDir()}

	wants := make([]string, len(dirs))
	for i, d := range dirs {
		wants[i] = realpath(t, d)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(dirs))
	for i, d := range dirs {
		wg.Add(1)
		go func(i int, d string) {
			defer wg.Done()
			want := wants[i]
			errs[i] = Do(d, func() error {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				got, err := filepath.EvalSymlinks(wd)
				if err != nil {
					return err
				}
				if got != want {
					return errors.New("working directory changed under active scope")
				}
				return nil
			})
		}(i, d)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, start, getwd(t))
}
