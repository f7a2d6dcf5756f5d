package exec

import (
	"context"

	"golang.org/x/sync/semaphore"

	agenterrors "github.com/zhubert/plural-agent/errors"
)

// Outcome is the eventual result of a command run on the pool.
type Outcome struct {
	Result Result
	Err    error
}

// Pool runs commands on background goroutines, at most size at a time, so
// the caller's goroutine never blocks on a subprocess.
type Pool struct {
	executor CommandExecutor
	sem      *semaphore.Weighted
}

// NewPool creates a pool over executor. size < 1 is treated as 1.
func NewPool(executor CommandExecutor, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{executor: executor, sem: semaphore.NewWeighted(int64(size))}
}

// Executor returns the executor the pool delegates to.
func (p *Pool) Executor() CommandExecutor {
	return p.executor
}

// Batch schedules spec and returns a channel that yields exactly one Outcome.
func (p *Pool) Batch(ctx context.Context, spec Spec) <-chan Outcome {
	return p.submit(ctx, func() (Result, error) {
		return p.executor.RunBatch(ctx, spec)
	})
}

// Stream schedules a streaming run. handler is called from a pool goroutine.
func (p *Pool) Stream(ctx context.Context, spec Spec, handler LineHandler) <-chan Outcome {
	return p.submit(ctx, func() (Result, error) {
		return p.executor.RunStreaming(ctx, spec, handler)
	})
}

func (p *Pool) submit(ctx context.Context, run func() (Result, error)) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		if err := p.sem.Acquire(ctx, 1); err != nil {
			out <- Outcome{
				Result: Result{ExitCode: -1},
				Err:    agenterrors.E(agenterrors.Op("exec.Pool"), agenterrors.KindCancelled, err),
			}
			return
		}
		defer p.sem.Release(1)
		res, err := run()
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}
