package manager

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/zhubert/plural-agent/report"
)

// maxActivities bounds the activity history kept per project.
const maxActivities = 100

// ProjectState holds the per-project turn state in one place.
//
// Thread Safety:
// ProjectState has an internal mutex to protect concurrent field access.
// Use the accessor methods for reads and writes, or WithLock to access
// several fields atomically.
type ProjectState struct {
	mu sync.Mutex // Protects all fields below

	// Turn in flight
	TurnID       string
	StreamCancel context.CancelFunc
	WaitStart    time.Time // When the turn started
	IsWaiting    bool      // Whether a turn is running

	// Results of the most recent turn
	Activities   []string // Most recent activity lines, oldest first
	LastResponse string
	LastReport   *report.ChangeReport

	// updates receives session transitions for the turn in flight. It has
	// its own lock so a blocked send never holds mu.
	sendMu  sync.Mutex
	updates chan<- Update
}

// WithLock runs fn while holding the state's mutex.
func (s *ProjectState) WithLock(fn func(*ProjectState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// AddActivity appends a line, dropping the oldest past the cap.
func (s *ProjectState) AddActivity(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Activities = append(s.Activities, line)
	if over := len(s.Activities) - maxActivities; over > 0 {
		s.Activities = slices.Delete(s.Activities, 0, over)
	}
}

// GetActivities returns a copy of the activity history.
func (s *ProjectState) GetActivities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.Activities)
}

// GetLastResponse returns the response of the most recent turn.
func (s *ProjectState) GetLastResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastResponse
}

// GetLastReport returns the change report of the most recent turn.
func (s *ProjectState) GetLastReport() *report.ChangeReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastReport
}

// GetTurnID returns the ID of the turn in flight, or "".
func (s *ProjectState) GetTurnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TurnID
}

// GetIsWaiting reports whether a turn is running.
func (s *ProjectState) GetIsWaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.IsWaiting
}

// emit forwards u to the turn in flight, if any.
func (s *ProjectState) emit(u Update) {
	s.mu.Lock()
	u.TurnID = s.TurnID
	s.mu.Unlock()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if s.updates != nil {
		s.updates <- u
	}
}

func (s *ProjectState) setUpdates(ch chan<- Update) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.updates = ch
}

// ProjectStateManager provides thread-safe access to per-project state.
type ProjectStateManager struct {
	mu     sync.RWMutex
	states map[string]*ProjectState
}

// NewProjectStateManager creates a new project state manager.
func NewProjectStateManager() *ProjectStateManager {
	return &ProjectStateManager{
		states: make(map[string]*ProjectState),
	}
}

// GetOrCreate returns the state for a project, creating it if it doesn't exist.
func (m *ProjectStateManager) GetOrCreate(project string) *ProjectState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreate(project)
}

func (m *ProjectStateManager) getOrCreate(project string) *ProjectState {
	state, ok := m.states[project]
	if !ok {
		state = &ProjectState{}
		m.states[project] = state
	}
	return state
}

// GetIfExists returns the state for a project if it exists, nil otherwise.
func (m *ProjectStateManager) GetIfExists(project string) *ProjectState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[project]
}

// Projects returns every project with state, sorted.
func (m *ProjectStateManager) Projects() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.states))
	for p := range m.states {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Delete cancels any turn in flight and removes the project's state.
func (m *ProjectStateManager) Delete(project string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, exists := m.states[project]; exists {
		state.mu.Lock()
		if state.StreamCancel != nil {
			state.StreamCancel()
			state.StreamCancel = nil
		}
		state.Activities = nil
		state.LastReport = nil
		state.mu.Unlock()
		delete(m.states, project)
	}
}

// StartWaiting claims the project for a new turn. It returns false when a
// turn is already running.
func (m *ProjectStateManager) StartWaiting(project, turnID string, cancel context.CancelFunc, updates chan<- Update) bool {
	m.mu.Lock()
	state := m.getOrCreate(project)
	m.mu.Unlock()

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.IsWaiting {
		return false
	}
	state.TurnID = turnID
	state.WaitStart = time.Now()
	state.IsWaiting = true
	state.StreamCancel = cancel
	state.Activities = nil
	state.setUpdates(updates)
	return true
}

// GetWaitStart returns when the running turn started, and whether one is running.
func (m *ProjectStateManager) GetWaitStart(project string) (time.Time, bool) {
	state := m.GetIfExists(project)
	if state == nil {
		return time.Time{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.IsWaiting {
		return state.WaitStart, true
	}
	return time.Time{}, false
}

// StopWaiting releases the project after a turn. The cancel func of the
// finished turn is called to release its context.
func (m *ProjectStateManager) StopWaiting(project string) {
	state := m.GetIfExists(project)
	if state == nil {
		return
	}
	state.setUpdates(nil)

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.StreamCancel != nil {
		state.StreamCancel()
	}
	state.IsWaiting = false
	state.WaitStart = time.Time{}
	state.StreamCancel = nil
	state.TurnID = ""
}

// Cancel cancels the turn running for project. It returns false when none is.
func (m *ProjectStateManager) Cancel(project string) bool {
	state := m.GetIfExists(project)
	if state == nil {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if !state.IsWaiting || state.StreamCancel == nil {
		return false
	}
	state.StreamCancel()
	return true
}

// CancelAll cancels every running turn and returns how many there were.
func (m *ProjectStateManager) CancelAll() int {
	n := 0
	for _, p := range m.Projects() {
		if m.Cancel(p) {
			n++
		}
	}
	return n
}
