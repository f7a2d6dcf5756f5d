package session

import (
	"sync"
)

// State is the lifecycle position of a session.
type State int

const (
	NotStarted State = iota
	Starting
	Active
	StartFailed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "Not started"
	case Starting:
		return "Starting"
	case Active:
		return "Active"
	case StartFailed:
		return "Start failed"
	default:
		return "Unknown"
	}
}

// Key identifies which session a turn belongs to. Changing any field
// requires a new session.
type Key struct {
	ProjectPath string
	Model       string
	Effort      string
}

// Transition describes one state change, delivered to the Observer.
type Transition struct {
	From      State
	To        State
	SessionID string
	Reason    string
}

// Observer is notified of every state change, synchronously and outside the
// session lock.
type Observer func(Transition)

// Session is the resumable identity for one Key. Only this package mutates
// it; callers read it for display.
type Session struct {
	mu       sync.RWMutex
	key      Key
	id       string
	state    State
	booting  bool
	observer Observer
}

// New creates a session in NotStarted. obs may be nil.
func New(key Key, obs Observer) *Session {
	return &Session{key: key, state: NotStarted, observer: obs}
}

// Key returns the session's key.
func (s *Session) Key() Key {
	return s.key
}

// ID returns the agent's thread identity, or "" before one was observed.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Booting reports whether a bootstrap is in flight.
func (s *Session) Booting() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.booting
}

// transitionLocked moves to the given state and returns the transition to
// announce. Caller must hold s.mu for writing.
func (s *Session) transitionLocked(to State, reason string) (Transition, bool) {
	if s.state == to {
		return Transition{}, false
	}
	t := Transition{From: s.state, To: to, SessionID: s.id, Reason: reason}
	s.state = to
	return t, true
}

func (s *Session) notify(t Transition, changed bool) {
	if changed && s.observer != nil {
		s.observer(t)
	}
}

// beginBoot claims the bootstrap guard. It fails when a bootstrap is already
// running or the session is already Active.
func (s *Session) beginBoot() bool {
	s.mu.Lock()
	if s.booting || s.state == Active {
		s.mu.Unlock()
		return false
	}
	s.booting = true
	t, changed := s.transitionLocked(Starting, "bootstrap")
	s.mu.Unlock()
	s.notify(t, changed)
	return true
}

// endBoot releases the guard and settles the bootstrap outcome.
func (s *Session) endBoot(ok bool, reason string) {
	s.mu.Lock()
	s.booting = false
	to := StartFailed
	if ok && s.id != "" {
		to = Active
	}
	t, changed := s.transitionLocked(to, reason)
	s.mu.Unlock()
	s.notify(t, changed)
}

// markStarting moves a session without identity into Starting ahead of a
// new-thread turn.
func (s *Session) markStarting(reason string) {
	s.mu.Lock()
	if s.id != "" {
		s.mu.Unlock()
		return
	}
	t, changed := s.transitionLocked(Starting, reason)
	s.mu.Unlock()
	s.notify(t, changed)
}

// settle resolves Starting after a new-thread turn that produced no identity.
func (s *Session) settle(exitCode int) {
	s.mu.Lock()
	if s.state != Starting || s.booting {
		s.mu.Unlock()
		return
	}
	to := NotStarted
	if exitCode != 0 {
		to = StartFailed
	}
	t, changed := s.transitionLocked(to, "turn ended without a thread")
	s.mu.Unlock()
	s.notify(t, changed)
}

// Adopt records the identity from a thread.started event and makes the
// session Active. Empty identities are ignored. During a bootstrap the state
// change waits for the process to exit.
func (s *Session) Adopt(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.id = id
	if s.booting {
		s.mu.Unlock()
		return
	}
	t, changed := s.transitionLocked(Active, "thread started")
	s.mu.Unlock()
	s.notify(t, changed)
}

// Reset clears the identity and returns to NotStarted. The announced
// transition carries the identity being dropped.
func (s *Session) Reset(reason string) {
	s.mu.Lock()
	t, changed := s.transitionLocked(NotStarted, reason)
	s.id = ""
	s.mu.Unlock()
	s.notify(t, changed)
}
