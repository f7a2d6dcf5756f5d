package agent

import "strings"

// StalePredicate decides whether agent output says the resumed session no
// longer exists on the agent's side.
type StalePredicate interface {
	IsStale(text string) bool
}

// StaleFunc adapts a function to StalePredicate.
type StaleFunc func(text string) bool

// IsStale calls f.
func (f StaleFunc) IsStale(text string) bool { return f(text) }

// stateDBMarkers are the ways the agent's logs refer to its state database.
var stateDBMarkers = []string{"state db", "state_db", "statedb", "state database", "sqlite"}

// DefaultStaleSignature recognizes the codex failure where the thread's
// rollout file is gone.
var DefaultStaleSignature StalePredicate = StaleFunc(func(text string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "missing rollout path for thread") {
		return true
	}
	if !strings.Contains(lower, "missing rollout") || !strings.Contains(lower, "thread") {
		return false
	}
	for _, m := range stateDBMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
})

// PhraseSignature matches when every phrase of any one group appears in the
// text, case-insensitively.
type PhraseSignature [][]string

// IsStale implements StalePredicate.
func (p PhraseSignature) IsStale(text string) bool {
	lower := strings.ToLower(text)
groups:
	for _, group := range p {
		if len(group) == 0 {
			continue
		}
		for _, phrase := range group {
			if !strings.Contains(lower, strings.ToLower(phrase)) {
				continue groups
			}
		}
		return true
	}
	return false
}

// AnyStale matches when any of its predicates does.
type AnyStale []StalePredicate

// IsStale implements StalePredicate.
func (a AnyStale) IsStale(text string) bool {
	for _, p := range a {
		if p != nil && p.IsStale(text) {
			return true
		}
	}
	return false
}

// StaleSignatureFor returns the default signature extended with the
// configured phrase groups.
func StaleSignatureFor(groups [][]string) StalePredicate {
	if len(groups) == 0 {
		return DefaultStaleSignature
	}
	return AnyStale{DefaultStaleSignature, PhraseSignature(groups)}
}
