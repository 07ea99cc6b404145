package service

import (
	"sync"
	"time"
)

// SyncState is the sync session state machine:
// Idle -> Syncing -> {Completed, Error} -> Idle (after a display timeout).
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncSyncing
	SyncCompleted
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncSyncing:
		return "syncing"
	case SyncCompleted:
		return "completed"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus tracks the current sync session. It is an injected instance,
// not package state, so tests construct isolated copies.
type SyncStatus struct {
	mu      sync.Mutex
	state   SyncState
	lastErr error
	revert  time.Duration
	timer   *time.Timer
	subs    []chan SyncState
}

// NewSyncStatus creates a status tracker whose Completed/Error states revert
// to Idle after the given display timeout.
func NewSyncStatus(revert time.Duration) *SyncStatus {
	return &SyncStatus{state: SyncIdle, revert: revert}
}

// Begin moves Idle -> Syncing. Returns false when a sync is already running,
// so overlapping triggers collapse to one session.
func (s *SyncStatus) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SyncSyncing {
		return false
	}
	s.stopTimerLocked()
	s.setLocked(SyncSyncing, nil)
	return true
}

// Complete moves Syncing -> Completed and schedules the revert to Idle.
func (s *SyncStatus) Complete() {
	s.finish(SyncCompleted, nil)
}

// Fail moves Syncing -> Error and schedules the revert to Idle.
func (s *SyncStatus) Fail(err error) {
	s.finish(SyncError, err)
}

func (s *SyncStatus) finish(state SyncState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(state, err)
	s.stopTimerLocked()
	s.timer = time.AfterFunc(s.revert, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state == state {
			s.setLocked(SyncIdle, nil)
		}
	})
}

// State returns the current state and, for Error, its cause.
func (s *SyncStatus) State() (SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastErr
}

// Subscribe returns a channel receiving every state change. Slow receivers
// miss intermediate states rather than blocking the machine.
func (s *SyncStatus) Subscribe() <-chan SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan SyncState, 8)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *SyncStatus) setLocked(state SyncState, err error) {
	s.state = state
	s.lastErr = err
	for _, ch := range s.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

func (s *SyncStatus) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
