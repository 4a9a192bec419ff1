package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ExecFn executes a single case. update publishes intermediate states.
// A non-nil error aborts the batch; the returned result is still recorded.
type ExecFn func(ctx context.Context, c *Case, update func(State)) (*CaseResult, error)

// SchedulerConfig holds scheduler parameters.
type SchedulerConfig struct {
	ExecFn   ExecFn
	FailFast bool                                   // stop after the first case that does not pass
	OnUpdate func(name string, result *CaseResult) // called on state changes
}

// Scheduler runs cases one at a time in the order given. Engines write
// into the config directory and resolve paths against the process
// working directory, so cases never overlap.
type Scheduler struct {
	cfg     SchedulerConfig
	cases   []Case
	results []*CaseResult
	index   map[string]int
	mu      sync.Mutex
}

// NewScheduler creates a scheduler over cases. Names must be unique.
func NewScheduler(cases []Case, cfg SchedulerConfig) (*Scheduler, error) {
	s := &Scheduler{
		cfg:     cfg,
		cases:   cases,
		results: make([]*CaseResult, len(cases)),
		index:   make(map[string]int, len(cases)),
	}
	for i, c := range cases {
		if prev, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate case name %q (%s and %s)", c.Name, cases[prev].ConfigPath, c.ConfigPath)
		}
		s.index[c.Name] = i
		s.results[i] = &CaseResult{
			Case:        c.Name,
			ConfigPath:  c.ConfigPath,
			State:       StatePending,
			ExitCode:    -1,
			NewDir:      c.NewDir,
			BaselineDir: c.BaselineDir,
		}
	}
	return s, nil
}

// Run executes every case and returns the ordered results. The error is
// the reason the batch stopped early, if it did.
func (s *Scheduler) Run(ctx context.Context) ([]*CaseResult, error) {
	var abort error
	for i := range s.cases {
		c := &s.cases[i]

		if abort == nil {
			if err := ctx.Err(); err != nil {
				abort = fmt.Errorf("batch interrupted: %w", err)
			}
		}
		if abort != nil {
			s.skip(i, abort.Error())
			continue
		}

		s.update(i, func(r *CaseResult) {
			r.State = StateRunning
			r.StartedAt = time.Now()
		})

		result, err := s.cfg.ExecFn(ctx, c, func(st State) {
			s.update(i, func(r *CaseResult) { r.State = st })
		})
		result = s.finish(i, result)

		switch {
		case err != nil:
			abort = err
		case s.cfg.FailFast && !result.Passed():
			abort = fmt.Errorf("fail-fast: case %q did not pass", c.Name)
		}
	}
	return s.Results(), abort
}

// Results returns a snapshot of all case results in execution order.
func (s *Scheduler) Results() []*CaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]*CaseResult, len(s.results))
	for i, r := range s.results {
		cpy := *r
		cp[i] = &cpy
	}
	return cp
}

// Cases returns the cases in execution order.
func (s *Scheduler) Cases() []Case {
	return s.cases
}

// finish stores result as the terminal outcome of case i and returns
// the stored value.
func (s *Scheduler) finish(i int, result *CaseResult) *CaseResult {
	s.mu.Lock()
	prev := s.results[i]
	if result == nil {
		result = prev
		result.State = StateErrored
		result.Error = "executor returned no result"
	}
	result.Case = prev.Case
	result.ConfigPath = prev.ConfigPath
	if result.StartedAt.IsZero() {
		result.StartedAt = prev.StartedAt
	}
	if result.EndedAt.IsZero() {
		result.EndedAt = time.Now()
	}
	if result.Duration == 0 {
		result.Duration = result.EndedAt.Sub(result.StartedAt)
	}
	s.results[i] = result
	s.mu.Unlock()
	s.notify(i)
	return result
}

func (s *Scheduler) skip(i int, reason string) {
	s.update(i, func(r *CaseResult) {
		r.State = StateSkipped
		r.Error = reason
	})
}

func (s *Scheduler) update(i int, fn func(r *CaseResult)) {
	s.mu.Lock()
	fn(s.results[i])
	s.mu.Unlock()
	s.notify(i)
}

func (s *Scheduler) notify(i int) {
	if s.cfg.OnUpdate != nil {
		s.mu.Lock()
		cpy := *s.results[i]
		s.mu.Unlock()
		s.cfg.OnUpdate(cpy.Case, &cpy)
	}
}
