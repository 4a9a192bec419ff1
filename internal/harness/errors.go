// Package harness evaluates test cases: one engine run, artifact
// collection, and comparison against the accepted baseline.
package harness

import (
	"context"
	"errors"

	"github.com/ppiankov/goldrun/internal/runner"
)

var (
	// ErrUsage means invalid arguments or environment. Fatal before any
	// case runs.
	ErrUsage = errors.New("usage error")

	// ErrConfigNotFound means a case's configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrMismatch means at least one common entry differs in content.
	ErrMismatch = errors.New("output differs from baseline")

	// ErrNoArtifacts means new output and baseline share no entries.
	ErrNoArtifacts = errors.New("no common artifacts with baseline")
)

// Error kinds recorded in reports and history.
const (
	KindUsage          = "usage"
	KindEngineNotFound = "engine_not_found"
	KindConfigNotFound = "config_not_found"
	KindEngineFailure  = "engine_run_failure"
	KindTimeout        = "timeout"
	KindMismatch       = "comparison_mismatch"
	KindNoArtifacts    = "no_baseline_artifacts"
	KindInterrupted    = "interrupted"
	KindInternal       = "internal"
)

// Kind maps err to its taxonomy label. A nil error has no kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUsage), errors.Is(err, runner.ErrEngineEnv):
		return KindUsage
	case errors.Is(err, runner.ErrEngineNotFound):
		return KindEngineNotFound
	case errors.Is(err, ErrConfigNotFound):
		return KindConfigNotFound
	case errors.Is(err, runner.ErrTimeout):
		return KindTimeout
	case errors.Is(err, runner.ErrEngineFailed):
		return KindEngineFailure
	case errors.Is(err, ErrMismatch):
		return KindMismatch
	case errors.Is(err, ErrNoArtifacts):
		return KindNoArtifacts
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindInterrupted
	default:
		return KindInternal
	}
}

// Fatal reports whether err must stop the whole batch.
func Fatal(err error) bool {
	switch Kind(err) {
	case KindUsage, KindEngineNotFound, KindInterrupted:
		return true
	}
	return false
}
