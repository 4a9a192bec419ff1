package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const lockFileName = ".goldrun.lock"

// LockInfo identifies the harness process that owns an output tree.
type LockInfo struct {
	PID       int       `json:"pid"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
}

// ErrLocked means another live harness process owns the output tree.
var ErrLocked = errors.New("output tree locked")

// Lock claims outputDir for this process so two harness runs never reset
// and fill the same new-output directories at once. A lock left behind by
// a dead process is reclaimed.
func Lock(outputDir, target string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	lockPath := filepath.Join(outputDir, lockFileName)
	info := LockInfo{PID: os.Getpid(), Target: target, StartedAt: time.Now()}

	err := writeLock(lockPath, &info)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create lock %s: %w", lockPath, err)
	}

	held, readErr := ReadLock(outputDir)
	if readErr != nil {
		return fmt.Errorf("%w: %s (unreadable lock: %v)", ErrLocked, outputDir, readErr)
	}
	if processAlive(held.PID) {
		return fmt.Errorf("%w: %s held by PID %d since %s (%s)",
			ErrLocked, outputDir, held.PID, held.StartedAt.Format(time.RFC3339), held.Target)
	}

	slog.Warn("reclaiming stale output lock", "dir", outputDir, "stale_pid", held.PID)
	if err := os.Remove(lockPath); err != nil {
		return fmt.Errorf("remove stale lock: %w", err)
	}
	if err := writeLock(lockPath, &info); err != nil {
		return fmt.Errorf("lock after stale removal: %w", err)
	}
	return nil
}

// Unlock removes the lock from outputDir. Safe to call more than once.
func Unlock(outputDir string) {
	lockPath := filepath.Join(outputDir, lockFileName)
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to release output lock", "path", lockPath, "error", err)
	}
}

// ReadLock returns the current lock holder of outputDir.
func ReadLock(outputDir string) (*LockInfo, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, lockFileName))
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse lock: %w", err)
	}
	return &info, nil
}

// writeLock creates the lock file with O_EXCL so only one process wins.
func writeLock(path string, info *LockInfo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	encErr := json.NewEncoder(f).Encode(info)
	closeErr := f.Close()
	if encErr != nil {
		return encErr
	}
	return closeErr
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
