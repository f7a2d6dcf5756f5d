package manager

import (
	"github.com/zhubert/plural-agent/report"
	"github.com/zhubert/plural-agent/session"
)

// UpdateKind says which field of an Update is meaningful.
// Using a typed enum instead of strings provides compile-time safety and
// clearer code.
type UpdateKind int

const (
	// UpdateStatus carries a session state transition.
	UpdateStatus UpdateKind = iota

	// UpdateActivity carries one line for the live activity log.
	UpdateActivity

	// UpdateResponse carries the resolved assistant response.
	UpdateResponse

	// UpdateReport carries the change report for the turn.
	UpdateReport

	// UpdateDone is always the last update of a turn.
	UpdateDone
)

// String returns a human-readable name for the update kind.
func (k UpdateKind) String() string {
	switch k {
	case UpdateStatus:
		return "status"
	case UpdateActivity:
		return "activity"
	case UpdateResponse:
		return "response"
	case UpdateReport:
		return "report"
	case UpdateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Update is one message from a running turn.
type Update struct {
	Kind    UpdateKind
	TurnID  string
	Project string

	State    session.State        // UpdateStatus
	Reason   string               // UpdateStatus
	Activity string               // UpdateActivity
	Response string               // UpdateResponse
	Report   *report.ChangeReport // UpdateReport
	Edited   []string             // UpdateReport: files written while the turn ran, when watching

	// Result and Err are set on UpdateDone. Err is only set when the turn
	// could not run at all; a failed turn reports through Result.
	Result *session.TurnResult
	Err    error
}
