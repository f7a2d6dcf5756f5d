package exec

// Spec describes one external command invocation. It is not modified once
// handed to an executor.
type Spec struct {
	Program string
	Args    []string
	Dir     string

	// Env replaces the child environment entirely when non-nil. When nil the
	// parent environment is inherited and PATH is enriched.
	Env map[string]string

	// Shell runs Program (with Args appended, quoted) through /bin/sh -c.
	Shell bool
}

// Result is the outcome of a finished process. A non-zero ExitCode is not an
// error; callers decide what it means.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Succeeded reports whether the process exited with code 0.
func (r Result) Succeeded() bool {
	return r.ExitCode == 0
}

// StreamSource identifies which pipe a line came from.
type StreamSource int

const (
	Stdout StreamSource = iota
	Stderr
)

func (s StreamSource) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// StreamEvent is one complete line of output, without its line terminator.
type StreamEvent struct {
	Source StreamSource
	Line   string
}

// LineHandler receives stream events in arrival order, one at a time.
type LineHandler func(StreamEvent)
