// Package tracking accumulates client-side working time for a task.
package tracking

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the tick granularity of a running session
const DefaultInterval = time.Second

// State is the accumulator for one task. It is a plain value; every
// operation returns a new State.
type State struct {
	TaskID   string
	Baseline int64 // seconds already persisted on the task
	Elapsed  time.Duration
	Running  bool
	Closed   bool
}

// NewState starts a paused session on top of the task's persisted time
func NewState(taskID string, baselineSeconds int64) State {
	if baselineSeconds < 0 {
		baselineSeconds = 0
	}
	return State{TaskID: taskID, Baseline: baselineSeconds}
}

// Tick accrues elapsed time while the session is running and open
func Tick(s State, elapsed time.Duration) State {
	if !s.Running || s.Closed || elapsed <= 0 {
		return s
	}
	s.Elapsed += elapsed
	return s
}

// Start resumes accrual unless the session is closed
func Start(s State) State {
	if !s.Closed {
		s.Running = true
	}
	return s
}

// Pause stops accrual
func Pause(s State) State {
	s.Running = false
	return s
}

// Close freezes the session for good, e.g. once the task is Done
func Close(s State) State {
	s.Running = false
	s.Closed = true
	return s
}

// TotalSeconds is the persisted baseline plus whole tracked seconds
func (s State) TotalSeconds() int64 {
	return s.Baseline + int64(s.Elapsed/time.Second)
}

// Session is a State shared between a Runner and its readers
type Session struct {
	mu    sync.Mutex
	state State
}

// NewSession wraps a state for concurrent use
func NewSession(state State) *Session {
	return &Session{state: state}
}

// Snapshot returns the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies fn to the state atomically and returns the result
func (s *Session) Update(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state
}

// Runner drives a session from a periodic ticker
type Runner struct {
	Interval time.Duration
	// OnTick, when set, observes every state produced by a tick
	OnTick func(State)
}

// Run ticks the session until ctx is cancelled or the session is closed
func (r Runner) Run(ctx context.Context, session *Session) {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			state := session.Update(func(s State) State { return Tick(s, elapsed) })
			if r.OnTick != nil {
				r.OnTick(state)
			}
			if state.Closed {
				return
			}
		}
	}
}
