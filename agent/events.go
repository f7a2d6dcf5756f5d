package agent

import "github.com/zhubert/plural-agent/exec"

// EventKind identifies what an output line meant.
type EventKind int

const (
	EventOther EventKind = iota
	EventThreadStarted
	EventTurnStarted
	EventTurnCompleted
	EventTurnFailed
	EventOutputTextDelta
	EventMessage
	EventTool
	EventError
	EventDiagnostic
)

func (k EventKind) String() string {
	switch k {
	case EventThreadStarted:
		return "thread.started"
	case EventTurnStarted:
		return "turn.started"
	case EventTurnCompleted:
		return "turn.completed"
	case EventTurnFailed:
		return "turn.failed"
	case EventOutputTextDelta:
		return "delta"
	case EventMessage:
		return "message"
	case EventTool:
		return "tool"
	case EventError:
		return "error"
	case EventDiagnostic:
		return "diagnostic"
	default:
		return "other"
	}
}

// Event is one classified line of agent output.
type Event struct {
	Kind   EventKind
	Source exec.StreamSource

	// Type is the raw "type" field for JSON events.
	Type string

	// SessionID is set for EventThreadStarted.
	SessionID string

	// Role is the author of an EventMessage.
	Role string

	// Text holds delta text, message text, error text or the raw diagnostic line.
	Text string

	// ToolName is set for EventTool.
	ToolName string

	// Stale is true when the text matched the stale-session predicate.
	Stale bool

	// Activity is the human-readable feed line. Empty means suppressed.
	Activity string

	// Usage is reported by turn.completed when the agent includes it.
	Usage *Usage
}

// Usage is the token accounting attached to a completed turn.
type Usage struct {
	InputTokens       int64
	CachedInputTokens int64
	OutputTokens      int64
}
