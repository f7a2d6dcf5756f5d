// Package errors provides structured error types for the agent engine.
// These errors carry the operation that failed and a category the caller can
// branch on (spawn failures, stale sessions, busy sessions, and so on).
package errors

import (
	"errors"
	"fmt"
)

// Op describes an operation, usually as "package.function".
type Op string

// Kind categorizes the type of error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalid
	KindIO
	KindConfig
	KindGit
	KindSpawn
	KindStaleSession
	KindProtocol
	KindBusy
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalid:
		return "invalid"
	case KindIO:
		return "I/O error"
	case KindConfig:
		return "configuration error"
	case KindGit:
		return "git error"
	case KindSpawn:
		return "spawn failure"
	case KindStaleSession:
		return "stale session"
	case KindProtocol:
		return "protocol error"
	case KindBusy:
		return "busy"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown error"
	}
}

// Error is the structured error type for the engine.
type Error struct {
	Op      Op     // Operation that failed
	Kind    Kind   // Category of error
	Err     error  // Underlying error
	Context string // Additional context
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Context, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a new Error. Arguments can be:
// - Op: the operation name
// - Kind: the error kind
// - string: context message
// - error: the underlying error
func E(args ...any) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Kind:
			e.Kind = a
		case string:
			e.Context = a
		case error:
			e.Err = a
		}
	}
	if e.Err == nil {
		e.Err = errors.New(e.Context)
		e.Context = ""
	}
	return e
}

// Is reports whether err (or anything it wraps) is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// GetKind returns the Kind of an error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// SpawnFailed reports that the agent (or any other) executable could not be started.
func SpawnFailed(program string, err error) error {
	return E(Op("exec.Start"), KindSpawn, fmt.Sprintf("failed to start %s", program), err)
}

// SessionBusy reports that a turn is already running for the project.
func SessionBusy(projectPath string) error {
	return E(Op("manager.Send"), KindBusy, fmt.Sprintf("a turn is already running for %s", projectPath))
}

// ConfigLoadFailed reports a config file that exists but could not be read or parsed.
func ConfigLoadFailed(path string, err error) error {
	return E(Op("config.Load"), KindConfig, fmt.Sprintf("failed to load config from %s", path), err)
}

// ConfigSaveFailed reports a config file that could not be written.
func ConfigSaveFailed(path string, err error) error {
	return E(Op("config.Save"), KindConfig, fmt.Sprintf("failed to save config to %s", path), err)
}

// ConfigInvalid reports a config that failed validation.
func ConfigInvalid(reason string) error {
	return E(Op("config.Validate"), KindInvalid, reason)
}

// CLINotFound reports a missing prerequisite binary.
func CLINotFound(name string) error {
	return E(Op("cli.Check"), KindNotFound, fmt.Sprintf("required CLI tool '%s' not found in PATH", name))
}
