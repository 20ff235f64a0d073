package tutor

import (
	"sync"

	"github.com/abhisek/instructoria/internal/store"
)

// Phase is the lifecycle of a session.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseActive
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseActive:
		return "active"
	case PhaseComplete:
		return "complete"
	}
	return "unknown"
}

// State is the tagged session state. ActivityID is set only when Phase is
// PhaseActive.
type State struct {
	Phase      Phase
	ActivityID string
}

// StateOf derives the lifecycle state from a stored session row.
func StateOf(s *store.Session) State {
	switch {
	case s.CompletedAt != nil:
		return State{Phase: PhaseComplete}
	case s.CurrentActivityID == nil || *s.CurrentActivityID == "":
		return State{Phase: PhaseNotStarted}
	default:
		return State{Phase: PhaseActive, ActivityID: *s.CurrentActivityID}
	}
}

// sessionLocks serializes work on one session within this process.
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func (l *sessionLocks) tryLock(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]struct{})
	}
	if _, busy := l.held[id]; busy {
		return false
	}
	l.held[id] = struct{}{}
	return true
}

func (l *sessionLocks) unlock(id string) {
	l.mu.Lock()
	delete(l.held, id)
	l.mu.Unlock()
}
