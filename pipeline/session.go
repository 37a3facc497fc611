// Package pipeline implements the batch processing engine: sequential
// multi-image runs with per-item retry, exponential backoff on rate
// limits, inter-item cooldowns, and cooperative cancellation.
package pipeline

import (
	"context"
	"sync"
)

// StopMessage is the status text published when a run is cancelled.
const StopMessage = "Operation stopped by user."

// Snapshot is a point-in-time copy of the session state, safe to read
// without holding any lock.
type Snapshot struct {
	// Running reports whether a batch run is in flight.
	Running bool

	// Message is the latest human-readable status line.
	Message string

	// Completed is the number of items that finished successfully.
	Completed int

	// Total is the number of items in the current (or last) run.
	Total int

	// Err is the terminal error of the last run, nil on success or while
	// a run is still in flight.
	Err error
}

// Session tracks the lifecycle of at most one batch run at a time. A UI
// polls Snapshot (or registers OnUpdate) for status, and calls Stop to
// cancel. All methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	running   bool
	message   string
	completed int
	total     int
	lastErr   error
	cancel    context.CancelFunc

	// OnUpdate, if set before the first run, is invoked with a snapshot
	// after every state change. It is called without the session lock
	// held and must not block for long.
	OnUpdate func(Snapshot)
}

// NewSession creates an idle session.
func NewSession() *Session {
	return &Session{}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Running:   s.running,
		Message:   s.message,
		Completed: s.completed,
		Total:     s.total,
		Err:       s.lastErr,
	}
}

// Stop requests cancellation of the in-flight run. It is idempotent and
// a no-op when nothing is running. The stop message is published
// immediately so the UI reflects the request before the run winds down.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.message = StopMessage
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.notify(snap)
}

// begin transitions the session into a running state and returns a
// context cancelled by Stop. It fails when a run is already in flight.
func (s *Session) begin(parent context.Context, total int) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(parent)
	s.running = true
	s.cancel = cancel
	s.message = ""
	s.completed = 0
	s.total = total
	s.lastErr = nil
	return ctx, nil
}

// finish records the terminal state of a run and releases the session.
func (s *Session) finish(err error, message string) {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.lastErr = err
	if message != "" {
		s.message = message
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.notify(snap)
}

// publish updates the status message.
func (s *Session) publish(message string) {
	s.mu.Lock()
	s.message = message
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

// itemDone bumps the completed counter.
func (s *Session) itemDone() {
	s.mu.Lock()
	s.completed++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) notify(snap Snapshot) {
	if s.OnUpdate != nil {
		s.OnUpdate(snap)
	}
}
