// Package exec runs external commands for the engine: short batch commands
// like git, and long-running agent processes whose output is streamed line by
// line. Tests swap in MockExecutor to return pre-recorded responses.
package exec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/logger"
	"github.com/zhubert/plural-agent/process"
)

// CommandExecutor abstracts command execution for testability.
// Production code uses RealExecutor, while tests use MockExecutor.
type CommandExecutor interface {
	// Run executes a command and returns stdout, stderr, and any error.
	Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

	// Output executes a command and returns stdout, or error with stderr context.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// RunBatch runs spec to completion and returns its captured output.
	// Only a failure to start (or cancellation) is an error.
	RunBatch(ctx context.Context, spec Spec) (Result, error)

	// RunStreaming runs spec, calling handler for each complete output line
	// as it arrives, and returns the full captured output once it exits.
	RunStreaming(ctx context.Context, spec Spec, handler LineHandler) (Result, error)
}

const (
	// streamChunkSize is the read size for each pipe.
	streamChunkSize = 32 * 1024

	// waitDelay bounds how long Wait keeps copying output after the context
	// is done.
	waitDelay = 2 * time.Second
)

// RealExecutor executes commands using os/exec.
type RealExecutor struct {
	// Registry, when set, tracks every process started through RunBatch and
	// RunStreaming so it can be cancelled with TerminateAll.
	Registry *process.Registry

	// SearchPaths are extra PATH entries added ahead of the known install dirs.
	SearchPaths []string
}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

// Run executes a command and returns stdout, stderr, and any error.
func (e *RealExecutor) Run(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// Output executes a command and returns stdout, or error with stderr context.
func (e *RealExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.Output()
}

// command builds the exec.Cmd for spec with its environment applied.
func (e *RealExecutor) command(ctx context.Context, spec Spec) *exec.Cmd {
	env := BuildEnv(spec, e.SearchPaths)

	var cmd *exec.Cmd
	if spec.Shell {
		script := spec.Program
		for _, a := range spec.Args {
			script += " " + shellQuote(a)
		}
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", script)
	} else {
		cmd = exec.CommandContext(ctx, resolveProgram(spec.Program, env), spec.Args...)
	}
	cmd.Dir = spec.Dir
	cmd.Env = env
	// Grandchildren can hold the pipes open after a cancel.
	cmd.WaitDelay = waitDelay
	return cmd
}

// track registers a started command and returns its untrack func.
func (e *RealExecutor) track(cmd *exec.Cmd, name string) func() {
	if e.Registry == nil || cmd.Process == nil {
		return func() {}
	}
	return e.Registry.Track(cmd.Process.Pid, name, cmd.Process)
}

// RunBatch runs spec to completion.
func (e *RealExecutor) RunBatch(ctx context.Context, spec Spec) (Result, error) {
	log := logger.WithComponent("exec")
	cmd := e.command(ctx, spec)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		log.Error("failed to start command", "program", spec.Program, "error", err)
		return Result{ExitCode: -1}, agenterrors.SpawnFailed(spec.Program, err)
	}
	untrack := e.track(cmd, spec.Program)
	waitErr := cmd.Wait()
	untrack()

	res := Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode(cmd, waitErr),
	}
	return res, finishError(ctx, spec, waitErr)
}

// RunStreaming runs spec and delivers output lines to handler in arrival
// order. Both pipes are drained concurrently; a single dispatcher goroutine
// calls handler so it never runs concurrently with itself.
func (e *RealExecutor) RunStreaming(ctx context.Context, spec Spec, handler LineHandler) (Result, error) {
	log := logger.WithComponent("exec")
	cmd := e.command(ctx, spec)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, agenterrors.SpawnFailed(spec.Program, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{ExitCode: -1}, agenterrors.SpawnFailed(spec.Program, err)
	}

	if err := cmd.Start(); err != nil {
		log.Error("failed to start command", "program", spec.Program, "error", err)
		return Result{ExitCode: -1}, agenterrors.SpawnFailed(spec.Program, err)
	}
	untrack := e.track(cmd, spec.Program)
	defer untrack()
	log.Debug("process started", "program", spec.Program, "pid", cmd.Process.Pid, "dir", spec.Dir)

	var (
		mu       sync.Mutex
		splitter lineSplitter
		lines    = make(chan StreamEvent, 256)
		done     = make(chan struct{})
	)

	go func() {
		defer close(done)
		for ev := range lines {
			if handler != nil {
				handler(ev)
			}
		}
	}()

	drain := func(src StreamSource, r io.Reader) error {
		buf := make([]byte, streamChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				mu.Lock()
				for _, ev := range splitter.feed(src, buf[:n]) {
					lines <- ev
				}
				mu.Unlock()
			}
			if err == io.EOF {
				return nil
			}
			if err != nil {
				// The pipe closes underneath us when the process is killed.
				if errors.Is(err, io.ErrClosedPipe) || strings.Contains(err.Error(), "file already closed") {
					return nil
				}
				return err
			}
		}
	}

	var g errgroup.Group
	g.Go(func() error { return drain(Stdout, stdoutPipe) })
	g.Go(func() error { return drain(Stderr, stderrPipe) })
	readErr := g.Wait()
	if readErr != nil {
		log.Warn("error reading process output", "program", spec.Program, "error", readErr)
	}

	mu.Lock()
	for _, ev := range splitter.flush() {
		lines <- ev
	}
	res := Result{Stdout: splitter.stdout(), Stderr: splitter.stderr()}
	mu.Unlock()
	close(lines)
	<-done

	waitErr := cmd.Wait()
	res.ExitCode = exitCode(cmd, waitErr)
	log.Debug("process exited", "program", spec.Program, "exitCode", res.ExitCode)
	return res, finishError(ctx, spec, waitErr)
}

// exitCode extracts the exit status; -1 means the process did not exit
// normally (killed by a signal, or never reported a status).
func exitCode(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

// finishError maps a Wait error to the engine's error contract: a non-zero
// exit is not an error, cancellation is.
func finishError(ctx context.Context, spec Spec, waitErr error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return agenterrors.E(agenterrors.Op("exec.Run"), agenterrors.KindCancelled, spec.Program, ctxErr)
	}
	var exitErr *exec.ExitError
	if waitErr == nil || errors.As(waitErr, &exitErr) {
		return nil
	}
	return agenterrors.E(agenterrors.Op("exec.Run"), agenterrors.KindIO, spec.Program, waitErr)
}

// Ensure implementations satisfy the interface.
var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)

// defaultExecutorMu protects defaultExecutor for concurrent access.
var defaultExecutorMu sync.RWMutex

// defaultExecutor is the global default executor (can be swapped for testing).
var defaultExecutor CommandExecutor = NewRealExecutor()

// GetDefaultExecutor returns the global default executor.
func GetDefaultExecutor() CommandExecutor {
	defaultExecutorMu.RLock()
	defer defaultExecutorMu.RUnlock()
	return defaultExecutor
}

// SetDefaultExecutor sets the global default executor.
func SetDefaultExecutor(e CommandExecutor) {
	defaultExecutorMu.Lock()
	defer defaultExecutorMu.Unlock()
	defaultExecutor = e
}
