// Package workdir scopes changes to the process working directory.
//
// The engine under test resolves its relative inputs against the current
// directory, which is process-wide state. A Scope holds a package lock from
// Enter until Restore so only one scope can be active at a time; concurrent
// callers block instead of interleaving chdir calls.
package workdir

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

var mu sync.Mutex

// Scope is an active working-directory change.
type Scope struct {
	prev string
	dir  string
	once sync.Once
	err  error
}

// Enter switches the process working directory to dir. The returned scope
// must be restored on every exit path, normally with defer.
func Enter(dir string) (*Scope, error) {
	mu.Lock()

	prev, err := os.Getwd()
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("enter %s: %w", dir, err)
	}

	slog.Debug("entered working directory", "dir", dir, "prev", prev)
	return &Scope{prev: prev, dir: dir}, nil
}

// Dir returns the directory the scope switched to.
func (s *Scope) Dir() string { return s.dir }

// Prev returns the directory that will be restored.
func (s *Scope) Prev() string { return s.prev }

// Restore changes back to the directory that was current before Enter and
// releases the lock. It is idempotent; later calls return the first result.
func (s *Scope) Restore() error {
	s.once.Do(func() {
		defer mu.Unlock()
		if err := os.Chdir(s.prev); err != nil {
			s.err = fmt.Errorf("restore %s: %w", s.prev, err)
			slog.Error("working directory not restored", "dir", s.prev, "error", err)
			return
		}
		slog.Debug("restored working directory", "dir", s.prev)
	})
	return s.err
}

// Do runs fn with dir as the working directory. The previous directory is
// restored even if fn panics; the panic is then propagated.
func Do(dir string, fn func() error) (err error) {
	s, err := Enter(dir)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := s.Restore(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}
