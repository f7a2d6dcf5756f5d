package manager

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/zhubert/plural-agent/agent"
	"github.com/zhubert/plural-agent/changes"
	"github.com/zhubert/plural-agent/config"
	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/exec"
	"github.com/zhubert/plural-agent/git"
	"github.com/zhubert/plural-agent/logger"
	"github.com/zhubert/plural-agent/process"
	"github.com/zhubert/plural-agent/report"
	"github.com/zhubert/plural-agent/session"
)

// Compile-time interface satisfaction check.
var _ SessionManagerConfig = (*config.Config)(nil)

// updateBuffer is the capacity of each turn's update channel.
const updateBuffer = 64

// SessionManagerConfig defines the configuration interface required by SessionManager.
// This decouples SessionManager from the concrete config.Config struct.
//
// *config.Config satisfies this interface implicitly.
type SessionManagerConfig interface {
	GetExecutable() string
	GetModel() string
	GetEffort() string
	BootstrapEnabled() bool
	GetBootstrapPrompt() string
	GetExtraArgs() []string
	GetSearchPaths() []string
	GetStaleSignatures() [][]string
	GetPreviewLimit() int
	GetMaxConcurrent() int
	GetSnapshot() config.SnapshotConfig
	SetAgent(executable, model, effort string)
}

// RunnerFactory creates a runner for a session.
// This allows tests to inject runners with custom configuration.
type RunnerFactory func(sess *session.Session, pool *exec.Pool, cfg session.RunnerConfig) *session.Runner

// SessionManager owns one session per project, runs turns on a worker pool
// and reports their progress as a stream of updates.
type SessionManager struct {
	config        SessionManagerConfig
	stateManager  *ProjectStateManager
	registry      *process.Registry
	executor      exec.CommandExecutor
	pool          *exec.Pool
	gitService    *git.GitService
	engine        *changes.Engine
	runnerFactory RunnerFactory
	streamLogs    bool
	watchEdits    bool

	mu      sync.RWMutex // Protects runners map
	runners map[string]*session.Runner
}

// NewSessionManager creates a session manager that runs the agent for real.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	registry := process.NewRegistry()
	executor := &exec.RealExecutor{Registry: registry, SearchPaths: cfg.GetSearchPaths()}
	sm := &SessionManager{
		config:        cfg,
		stateManager:  NewProjectStateManager(),
		registry:      registry,
		runnerFactory: session.NewRunner,
		streamLogs:    true,
		watchEdits:    true,
		runners:       make(map[string]*session.Runner),
	}
	sm.SetExecutor(executor)
	return sm
}

// SetExecutor replaces the executor used for the agent and for git (for
// testing). Existing runners are dropped.
func (sm *SessionManager) SetExecutor(executor exec.CommandExecutor) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.executor = executor
	sm.pool = exec.NewPool(executor, sm.config.GetMaxConcurrent())
	sm.gitService = git.NewGitServiceWithExecutor(executor)
	sm.engine = changes.NewEngine(sm.gitService, changes.OptionsFrom(sm.config.GetSnapshot()), sm.config.GetPreviewLimit())
	sm.runners = make(map[string]*session.Runner)
}

// SetRunnerFactory sets a custom runner factory (for testing).
func (sm *SessionManager) SetRunnerFactory(factory RunnerFactory) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.runnerFactory = factory
}

// SetStreamLogging controls whether raw agent output is written to a
// per-turn stream log.
func (sm *SessionManager) SetStreamLogging(enabled bool) {
	sm.streamLogs = enabled
}

// SetEditWatching controls whether a filesystem watcher reports edited
// files as activity during a turn.
func (sm *SessionManager) SetEditWatching(enabled bool) {
	sm.watchEdits = enabled
}

// StateManager returns the underlying project state manager.
func (sm *SessionManager) StateManager() *ProjectStateManager {
	return sm.stateManager
}

// Registry returns the registry of running agent processes.
func (sm *SessionManager) Registry() *process.Registry {
	return sm.registry
}

// GitService returns the git service used for change reports.
func (sm *SessionManager) GitService() *git.GitService {
	return sm.gitService
}

// projects returns the known project paths.
func (sm *SessionManager) projects() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]string, 0, len(sm.runners))
	for p := range sm.runners {
		out = append(out, p)
	}
	return out
}

// Canonical maps path to the project key used for it, so that symlinked
// or relative spellings of one directory share a session.
func (sm *SessionManager) Canonical(path string) string {
	return config.CanonicalProject(sm.projects(), path)
}

// GetRunner returns the runner for project, or nil if none exists.
func (sm *SessionManager) GetRunner(project string) *session.Runner {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.runners[sm.canonicalLocked(project)]
}

func (sm *SessionManager) canonicalLocked(path string) string {
	known := make([]string, 0, len(sm.runners))
	for p := range sm.runners {
		known = append(known, p)
	}
	return config.CanonicalProject(known, path)
}

// runnerFor returns the runner for project, creating its session on first use.
func (sm *SessionManager) runnerFor(project string) *session.Runner {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	project = sm.canonicalLocked(project)
	if r, ok := sm.runners[project]; ok {
		return r
	}

	key := session.Key{ProjectPath: project, Model: sm.config.GetModel(), Effort: sm.config.GetEffort()}
	state := sm.stateManager.GetOrCreate(project)
	sess := session.New(key, func(t session.Transition) {
		logger.WithComponent("manager").Debug("session transition",
			"project", project, "from", t.From.String(), "to", t.To.String(), "reason", t.Reason)
		state.emit(Update{Kind: UpdateStatus, Project: project, State: t.To, Reason: t.Reason})
	})

	r := sm.runnerFactory(sess, sm.pool, session.RunnerConfig{
		Executable:      sm.config.GetExecutable(),
		ExtraArgs:       sm.config.GetExtraArgs(),
		BootstrapPrompt: sm.config.GetBootstrapPrompt(),
		Stale:           agent.StaleSignatureFor(sm.config.GetStaleSignatures()),
	})
	sm.runners[project] = r
	return r
}

// Configure changes the agent executable, model or effort. Every existing
// session is reset since none of them can be resumed under the new settings.
func (sm *SessionManager) Configure(executable, model, effort string) {
	if executable == sm.config.GetExecutable() && model == sm.config.GetModel() && effort == sm.config.GetEffort() {
		return
	}
	sm.config.SetAgent(executable, model, effort)

	sm.mu.Lock()
	old := sm.runners
	sm.runners = make(map[string]*session.Runner)
	sm.mu.Unlock()

	for _, r := range old {
		r.Session().Reset("configuration changed")
	}
	logger.WithComponent("manager").Info("agent configuration changed",
		"executable", executable, "model", model, "effort", effort, "sessionsReset", len(old))
}

// State returns the session state for project.
func (sm *SessionManager) State(project string) session.State {
	if r := sm.GetRunner(project); r != nil {
		return r.Session().State()
	}
	return session.NotStarted
}

// SessionIDs returns the identities of every session the manager knows.
func (sm *SessionManager) SessionIDs() map[string]bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ids := make(map[string]bool)
	for _, r := range sm.runners {
		if id := r.Session().ID(); id != "" {
			ids[id] = true
		}
	}
	return ids
}

// Send starts a turn for project and returns its updates. The channel is
// closed after the UpdateDone update; callers must drain it. A second Send
// for a project with a turn in flight fails with a busy error.
func (sm *SessionManager) Send(ctx context.Context, project, prompt string) (<-chan Update, error) {
	runner := sm.runnerFor(project)
	project = runner.Session().Key().ProjectPath

	turnID := uuid.New().String()
	updates := make(chan Update, updateBuffer)
	turnCtx, cancel := context.WithCancel(ctx)
	if !sm.stateManager.StartWaiting(project, turnID, cancel, updates) {
		cancel()
		return nil, agenterrors.SessionBusy(project)
	}

	go sm.runTurn(turnCtx, runner, project, turnID, prompt, updates)
	return updates, nil
}

// runTurn executes one turn and closes updates when done.
func (sm *SessionManager) runTurn(ctx context.Context, runner *session.Runner, project, turnID, prompt string, updates chan<- Update) {
	log := logger.WithComponent("manager").With("project", project, "turn", turnID)
	state := sm.stateManager.GetOrCreate(project)
	defer close(updates)
	defer sm.stateManager.StopWaiting(project)

	send := func(u Update) {
		u.TurnID = turnID
		u.Project = project
		if u.Kind == UpdateActivity {
			state.AddActivity(u.Activity)
		}
		updates <- u
	}

	var streamLog *logger.StreamLog
	if sm.streamLogs {
		var err error
		if streamLog, err = logger.OpenStreamLog(turnID); err != nil {
			log.Warn("failed to open stream log", "error", err)
		}
		defer streamLog.Close()
	}

	sm.mu.RLock()
	engine := sm.engine
	sm.mu.RUnlock()

	snapshot := engine.Snapshot(ctx, project)

	var watcher *changes.Watcher
	if sm.watchEdits {
		w, err := changes.NewWatcher(project, changes.OptionsFrom(sm.config.GetSnapshot()), func(activity string) {
			send(Update{Kind: UpdateActivity, Activity: activity})
		})
		if err != nil {
			log.Debug("edit watcher unavailable", "error", err)
		} else {
			watcher = w
			defer w.Close()
		}
	}

	hooks := session.Hooks{
		OnLine: func(line exec.StreamEvent) {
			streamLog.WriteLine(line.Line)
		},
		OnEvent: func(ev *agent.Event) {
			if ev.Activity != "" {
				send(Update{Kind: UpdateActivity, Activity: ev.Activity})
			}
		},
	}

	if sm.config.BootstrapEnabled() && runner.Session().ID() == "" {
		res, err := runner.Bootstrap(ctx, hooks)
		if err != nil {
			log.Error("bootstrap could not run", "error", err)
			send(Update{Kind: UpdateDone, Result: &res, Err: err})
			return
		}
		if !res.Skipped && !res.Succeeded() {
			log.Warn("bootstrap failed, continuing on a new thread", "message", res.FailureMessage)
		}
	}

	res, err := runner.RunTurn(ctx, prompt, hooks)
	if err != nil {
		log.Error("turn could not run", "error", err)
		send(Update{Kind: UpdateDone, Result: &res, Err: err})
		return
	}
	if res.Succeeded() {
		send(Update{Kind: UpdateResponse, Response: res.Response})
	} else {
		send(Update{Kind: UpdateActivity, Activity: "Failed: " + res.FailureMessage})
	}

	var edited []string
	if watcher != nil {
		edited = watcher.Changed()
	}

	rep := engine.Compute(context.WithoutCancel(ctx), project, snapshot)
	state.WithLock(func(s *ProjectState) {
		s.LastResponse = res.Response
		s.LastReport = rep
	})
	send(Update{Kind: UpdateReport, Report: rep, Edited: edited})

	log.Info("turn complete", "exitCode", res.ExitCode, "retried", res.Retried, "changes", rep.Summary(), "edited", len(edited))
	send(Update{Kind: UpdateDone, Result: &res})
}

// Report computes a change report for project outside of a turn.
func (sm *SessionManager) Report(ctx context.Context, project string) *report.ChangeReport {
	sm.mu.RLock()
	engine := sm.engine
	sm.mu.RUnlock()
	return engine.Compute(ctx, project, nil)
}

// Cancel stops the turn running for project.
func (sm *SessionManager) Cancel(project string) bool {
	return sm.stateManager.Cancel(sm.Canonical(project))
}

// Stop cancels every running turn and terminates every tracked agent
// process. It returns the number of processes signalled.
func (sm *SessionManager) Stop() int {
	turns := sm.stateManager.CancelAll()
	n := sm.registry.TerminateAll()
	logger.WithComponent("manager").Info("stopped", "turns", turns, "processes", n)
	return n
}

// CleanupOrphans kills agent processes left behind by earlier runs.
func (sm *SessionManager) CleanupOrphans() (int, error) {
	return process.CleanupOrphanedProcesses(sm.registry, sm.SessionIDs())
}
