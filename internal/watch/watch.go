// Package watch reruns cases when their configuration files change.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// DefaultDebounce collapses the burst of events an editor save produces.
	DefaultDebounce = 200 * time.Millisecond

	// DefaultPollInterval is used when fsnotify is unavailable.
	DefaultPollInterval = 2 * time.Second
)

// Watcher calls OnChange for every configuration file in Dir that is
// created or modified. Calls are made one at a time from a single
// goroutine, so OnChange may run a case without further locking.
type Watcher struct {
	Dir          string
	Pattern      string // glob on the base name; empty matches all
	Debounce     time.Duration
	Poll         bool
	PollInterval time.Duration
	OnChange     func(ctx context.Context, path string)

	mu     sync.Mutex
	queued []string
	wake   chan struct{}
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if w.OnChange == nil {
		return fmt.Errorf("watch: no change handler")
	}
	if _, err := filepath.Match(w.Pattern, ""); err != nil {
		return fmt.Errorf("watch: bad pattern %q: %w", w.Pattern, err)
	}
	info, err := os.Stat(w.Dir)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch: %s is not a directory", w.Dir)
	}

	w.wake = make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.work(ctx)
	}()

	if w.Poll {
		err = w.poll(ctx)
	} else {
		err = w.notify(ctx)
	}
	<-done
	return err
}

func (w *Watcher) matches(path string) bool {
	if w.Pattern == "" {
		return true
	}
	ok, _ := filepath.Match(w.Pattern, filepath.Base(path))
	return ok
}

// enqueue schedules path for the worker. A path already waiting is not
// queued twice.
func (w *Watcher) enqueue(path string) {
	w.mu.Lock()
	for _, p := range w.queued {
		if p == path {
			w.mu.Unlock()
			return
		}
	}
	w.queued = append(w.queued, path)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Watcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}
		for {
			w.mu.Lock()
			if len(w.queued) == 0 {
				w.mu.Unlock()
				break
			}
			path := w.queued[0]
			w.queued = w.queued[1:]
			w.mu.Unlock()

			if ctx.Err() != nil {
				return
			}
			slog.Info("configuration changed", "file", filepath.Base(path))
			w.OnChange(ctx, path)
		}
	}
}

func (w *Watcher) notify(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch dir: %w", err)
	}
	slog.Info("watching configurations", "mode", "fsnotify", "dir", w.Dir)

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	var mu sync.Mutex
	pending := make(map[string]*time.Timer)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}

			path := event.Name
			mu.Lock()
			if t, exists := pending[path]; exists {
				t.Stop()
			}
			pending[path] = time.AfterFunc(debounce, func() {
				mu.Lock()
				delete(pending, path)
				mu.Unlock()
				if isRegular(path) {
					w.enqueue(path)
				}
			})
			mu.Unlock()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	slog.Info("watching configurations", "mode", "poll", "dir", w.Dir, "interval", interval)

	seen := w.scan()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch stopped")
			return nil
		case <-ticker.C:
			current := w.scan()
			for path, mod := range current {
				if prev, ok := seen[path]; !ok || !prev.Equal(mod) {
					w.enqueue(path)
				}
			}
			seen = current
		}
	}
}

// scan maps every matching regular file in Dir to its modification time.
func (w *Watcher) scan() map[string]time.Time {
	out := make(map[string]time.Time)
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		slog.Debug("poll scan failed", "dir", w.Dir, "error", err)
		return out
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(w.Dir, e.Name())
		if !w.matches(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[path] = info.ModTime()
	}
	return out
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
