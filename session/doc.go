// Package session owns the resumable identity of an agent conversation and
// the policy for running turns against it.
//
// # States
//
//	NotStarted ──bootstrap──▶ Starting ──thread.started──▶ Active
//	                              │
//	                              └──non-zero exit / no identity──▶ StartFailed
//
// Any state returns to NotStarted on Reset, which happens when the model,
// reasoning effort or agent executable changes, and when a stale session is
// recovered from.
//
// # Turns
//
// A turn resumes the session when it has an identity:
//
//	codex exec --json --skip-git-repo-check --model M -c model_reasoning_effort=E [extra] resume <id> <prompt>
//
// and otherwise starts a new thread:
//
//	codex exec --json --skip-git-repo-check --model M -c model_reasoning_effort=E [extra] <prompt>
//
// A thread.started event seen during a new-thread turn is adopted as the
// session identity.
//
// # Stale sessions
//
// When a turn exits non-zero and the output carries the stale-session
// signature (seen live by the parser or found afterwards in the captured
// output), the session is reset and the turn is re-run once as a new thread.
// A second failure is returned as-is.
package session
