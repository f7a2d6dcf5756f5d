package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/zhubert/plural-agent/agent"
	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/exec"
	"github.com/zhubert/plural-agent/logger"
)

// NoErrorDetails is the failure message when the agent printed nothing.
const NoErrorDetails = "(no error details)"

// freshRetryDelay is the pause before re-running a turn on a new thread.
const freshRetryDelay = 250 * time.Millisecond

var errStaleSession = agenterrors.E(agenterrors.Op("session.RunTurn"), agenterrors.KindStaleSession, "agent no longer recognizes the session")

// RunnerConfig holds what a Runner needs besides the session itself.
type RunnerConfig struct {
	Executable      string
	ExtraArgs       []string
	BootstrapPrompt string
	Env             map[string]string
	Stale           agent.StalePredicate
}

// Hooks receive output while a turn runs. Both are called from a single
// goroutine, in arrival order. Either may be nil.
type Hooks struct {
	OnLine  func(exec.StreamEvent)
	OnEvent func(*agent.Event)
}

// TurnResult is the outcome of a bootstrap or a turn.
type TurnResult struct {
	Response  string
	ExitCode  int
	Stdout    string
	Stderr    string
	SessionID string

	// Resumed is true when the first attempt continued an existing session.
	Resumed bool

	// Retried is true when the turn was re-run on a new thread after a
	// stale-session failure.
	Retried bool

	// Stale is true when the final attempt still carried the stale signature.
	Stale bool

	// Skipped is true when Bootstrap found another bootstrap in flight or the
	// session already active.
	Skipped bool

	// FailureMessage is empty on success and never empty on failure.
	FailureMessage string
}

// Succeeded reports whether the final attempt exited 0.
func (r TurnResult) Succeeded() bool {
	return r.ExitCode == 0 && !r.Skipped
}

// FailureMessage picks the most useful failure text: stderr, then stdout,
// then NoErrorDetails.
func FailureMessage(stdout, stderr string) string {
	if s := strings.TrimSpace(stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(stdout); s != "" {
		return s
	}
	return NoErrorDetails
}

// Runner executes bootstraps and turns for one Session.
type Runner struct {
	session *Session
	pool    *exec.Pool
	parser  *agent.Parser
	cfg     RunnerConfig
	log     *slog.Logger

	turnMu         sync.Mutex
	freshRetryUsed bool
}

// NewRunner creates a runner that executes through pool.
func NewRunner(sess *Session, pool *exec.Pool, cfg RunnerConfig) *Runner {
	return &Runner{
		session: sess,
		pool:    pool,
		parser:  agent.NewParser(cfg.Stale),
		cfg:     cfg,
		log:     logger.WithComponent("session").With("project", sess.Key().ProjectPath),
	}
}

// Session returns the session this runner drives.
func (r *Runner) Session() *Session {
	return r.session
}

// attempt is the raw outcome of one process run.
type attempt struct {
	result   exec.Result
	response string
	sawStale bool
	resumed  bool
}

// Bootstrap warms a session that has no identity by sending the non-mutating
// bootstrap prompt. A concurrent or redundant call returns a Skipped result.
func (r *Runner) Bootstrap(ctx context.Context, hooks Hooks) (TurnResult, error) {
	if !r.session.beginBoot() {
		r.log.Debug("bootstrap skipped", "state", r.session.State().String())
		return TurnResult{Skipped: true, SessionID: r.session.ID()}, nil
	}

	r.log.Info("bootstrapping session", "model", r.session.Key().Model, "effort", r.session.Key().Effort)
	att, err := r.execute(ctx, r.cfg.BootstrapPrompt, false, hooks)
	if err != nil {
		r.session.endBoot(false, err.Error())
		return TurnResult{ExitCode: -1, FailureMessage: err.Error()}, err
	}

	ok := att.result.ExitCode == 0 && r.session.ID() != ""
	reason := "bootstrap complete"
	if !ok {
		reason = "bootstrap failed"
	}
	r.session.endBoot(ok, reason)

	res := r.resultFrom(att, false)
	if !ok && res.FailureMessage == "" {
		res.FailureMessage = "agent did not report a session identity"
	}
	r.log.Info("bootstrap finished", "exitCode", att.result.ExitCode, "sessionID", res.SessionID, "state", r.session.State().String())
	return res, nil
}

// RunTurn sends prompt, resuming the session when it has an identity, and
// recovers once from a stale session. Only spawn failures, cancellation and
// a concurrent turn are errors; a failed turn is reported in TurnResult.
func (r *Runner) RunTurn(ctx context.Context, prompt string, hooks Hooks) (TurnResult, error) {
	if !r.turnMu.TryLock() {
		return TurnResult{}, agenterrors.SessionBusy(r.session.Key().ProjectPath)
	}
	defer r.turnMu.Unlock()

	r.freshRetryUsed = false

	var (
		last    attempt
		tries   int
		resumed bool
	)
	backoff := retry.WithMaxRetries(1, retry.NewConstant(freshRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tries++
		att, err := r.execute(ctx, prompt, true, hooks)
		if err != nil {
			return err
		}
		if tries == 1 {
			resumed = att.resumed
		}
		last = att

		if r.ShouldRetryWithFreshSession(att.result.ExitCode, att.sawStale, att.result.Stdout+"\n"+att.result.Stderr) {
			r.log.Warn("stale session detected, retrying on a new thread", "sessionID", r.session.ID())
			r.session.Reset("stale session")
			return retry.RetryableError(errStaleSession)
		}
		return nil
	})

	if err != nil && !errors.Is(err, errStaleSession) {
		if ctx.Err() != nil && agenterrors.GetKind(err) == agenterrors.KindUnknown {
			err = agenterrors.E(agenterrors.Op("session.RunTurn"), agenterrors.KindCancelled, err)
		}
		r.log.Error("turn failed to run", "error", err)
		return TurnResult{ExitCode: -1, FailureMessage: err.Error(), Retried: tries > 1, Resumed: resumed}, err
	}

	res := r.resultFrom(last, tries > 1)
	res.Resumed = resumed
	r.log.Info("turn finished", "exitCode", res.ExitCode, "retried", res.Retried, "sessionID", res.SessionID)
	return res, nil
}

// ShouldRetryWithFreshSession reports whether a failed attempt should be
// re-run on a new thread. It returns true at most once per turn.
func (r *Runner) ShouldRetryWithFreshSession(exitCode int, sawStale bool, output string) bool {
	if r.freshRetryUsed || exitCode == 0 {
		return false
	}
	if !sawStale && !r.parser.Stale().IsStale(output) {
		return false
	}
	r.freshRetryUsed = true
	return true
}

// execute runs one process. allowResume=false always starts a new thread.
func (r *Runner) execute(ctx context.Context, prompt string, allowResume bool, hooks Hooks) (attempt, error) {
	key := r.session.Key()
	id := ""
	if allowResume {
		id = r.session.ID()
	}
	if id == "" {
		r.session.markStarting("new thread")
	}

	spec := exec.Spec{
		Program: r.cfg.Executable,
		Args:    BuildArgs(key, r.cfg.ExtraArgs, id, prompt),
		Dir:     key.ProjectPath,
		Env:     r.cfg.Env,
	}

	var transcript agent.Transcript
	handler := func(line exec.StreamEvent) {
		if hooks.OnLine != nil {
			hooks.OnLine(line)
		}
		ev := r.parser.Classify(line.Line, line.Source)
		if ev == nil {
			return
		}
		transcript.Observe(ev)
		if ev.Kind == agent.EventThreadStarted {
			r.session.Adopt(ev.SessionID)
		}
		if hooks.OnEvent != nil {
			hooks.OnEvent(ev)
		}
	}

	r.log.Debug("starting agent", "resume", id != "", "args", len(spec.Args))
	out := <-r.pool.Stream(ctx, spec, handler)
	if out.Err != nil {
		if id == "" {
			r.session.settle(-1)
		}
		return attempt{}, out.Err
	}
	if id == "" {
		r.session.settle(out.Result.ExitCode)
	}

	fallback := out.Result.Stdout
	if strings.TrimSpace(fallback) == "" {
		fallback = out.Result.Stderr
	}
	return attempt{
		result:   out.Result,
		response: transcript.Resolve(fallback),
		sawStale: transcript.SawStale(),
		resumed:  id != "",
	}, nil
}

func (r *Runner) resultFrom(att attempt, retried bool) TurnResult {
	res := TurnResult{
		Response:  att.response,
		ExitCode:  att.result.ExitCode,
		Stdout:    att.result.Stdout,
		Stderr:    att.result.Stderr,
		SessionID: r.session.ID(),
		Retried:   retried,
	}
	if att.result.ExitCode != 0 {
		res.FailureMessage = FailureMessage(att.result.Stdout, att.result.Stderr)
		res.Stale = att.sawStale || r.parser.Stale().IsStale(att.result.Stdout+"\n"+att.result.Stderr)
	}
	return res
}
