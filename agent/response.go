package agent

import "strings"

// Transcript accumulates the assistant's visible text over one turn.
// Not safe for concurrent use; the session runner feeds it from the single
// dispatcher goroutine.
type Transcript struct {
	deltas   strings.Builder
	messages []string
	stale    bool
}

// Observe records whatever ev contributes to the response.
func (t *Transcript) Observe(ev *Event) {
	if ev == nil {
		return
	}
	if ev.Stale {
		t.stale = true
	}
	switch ev.Kind {
	case EventOutputTextDelta:
		t.deltas.WriteString(ev.Text)
	case EventMessage:
		if ev.Role == "" || ev.Role == "assistant" {
			t.messages = append(t.messages, ev.Text)
		}
	}
}

// SawStale reports whether any observed event matched the stale predicate.
func (t *Transcript) SawStale() bool {
	return t.stale
}

// Messages returns the completed messages seen so far.
func (t *Transcript) Messages() []string {
	out := make([]string, len(t.messages))
	copy(out, t.messages)
	return out
}

// Deltas returns the concatenated streaming fragments.
func (t *Transcript) Deltas() string {
	return t.deltas.String()
}

// Resolve returns the response for the turn: the last non-empty completed
// message, else the delta buffer, else fallback.
func (t *Transcript) Resolve(fallback string) string {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if strings.TrimSpace(t.messages[i]) != "" {
			return strings.TrimSpace(t.messages[i])
		}
	}
	if d := strings.TrimSpace(t.deltas.String()); d != "" {
		return d
	}
	return strings.TrimSpace(fallback)
}

// Reset clears all accumulated state for a fresh attempt.
func (t *Transcript) Reset() {
	t.deltas.Reset()
	t.messages = nil
	t.stale = false
}
