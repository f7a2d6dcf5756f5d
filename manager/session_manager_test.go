package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/zhubert/plural-agent/config"
	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/exec"
	"github.com/zhubert/plural-agent/report"
	"github.com/zhubert/plural-agent/session"
)

func isBootstrap(_, name string, args []string) bool {
	return name == "codex" && slices.Contains(args, config.DefaultBootstrapPrompt)
}

func isResume(_, name string, args []string) bool {
	return name == "codex" && slices.Contains(args, "resume")
}

func newTestManager(t *testing.T, executor exec.CommandExecutor) (*SessionManager, *config.Config) {
	t.Helper()
	cfg := config.Defaults()
	sm := NewSessionManager(cfg)
	sm.SetExecutor(executor)
	sm.SetStreamLogging(false)
	sm.SetEditWatching(false)
	return sm, cfg
}

// drain collects updates until the channel closes.
func drain(t *testing.T, ch <-chan Update) []Update {
	t.Helper()
	var out []Update
	timeout := time.After(10 * time.Second)
	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, u)
		case <-timeout:
			t.Fatal("turn did not finish")
		}
	}
}

func ofKind(updates []Update, kind UpdateKind) []Update {
	var out []Update
	for _, u := range updates {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}

func TestSend_BootstrapThenResume(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddRule(isBootstrap, exec.MockResponse{
		Stdout: []byte(`{"type":"thread.started","thread_id":"abc123"}` + "\n"),
	})
	mock.AddRule(isResume, exec.MockResponse{
		Stdout: []byte(`{"type":"turn.started"}` + "\n" +
			`{"type":"item.started","item":{"type":"command_execution","command":"go test ./..."}}` + "\n" +
			`{"type":"item.completed","item":{"type":"agent_message","text":"All tests pass."}}` + "\n" +
			`{"type":"turn.completed","usage":{"input_tokens":10,"output_tokens":4}}` + "\n"),
	})
	sm, _ := newTestManager(t, mock)
	project := t.TempDir()

	ch, err := sm.Send(context.Background(), project, "run the tests")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	updates := drain(t, ch)

	last := updates[len(updates)-1]
	if last.Kind != UpdateDone || last.Err != nil || last.Result == nil {
		t.Fatalf("last update = %+v", last)
	}
	if !last.Result.Resumed || last.Result.SessionID != "abc123" {
		t.Errorf("result = %+v", last.Result)
	}

	var states []session.State
	for _, u := range ofKind(updates, UpdateStatus) {
		states = append(states, u.State)
	}
	if !slices.Equal(states, []session.State{session.Starting, session.Active}) {
		t.Errorf("status updates = %v", states)
	}

	var activities []string
	for _, u := range ofKind(updates, UpdateActivity) {
		activities = append(activities, u.Activity)
	}
	for _, want := range []string{"Session abc123", "Turn started", "Running: go test ./...", "Turn completed (10 in / 4 out tokens)"} {
		if !slices.Contains(activities, want) {
			t.Errorf("activities %q missing %q", activities, want)
		}
	}

	responses := ofKind(updates, UpdateResponse)
	if len(responses) != 1 || responses[0].Response != "All tests pass." {
		t.Errorf("responses = %+v", responses)
	}
	reports := ofKind(updates, UpdateReport)
	if len(reports) != 1 || reports[0].Report == nil {
		t.Fatalf("reports = %+v", reports)
	}

	for _, u := range updates {
		if u.TurnID == "" || u.TurnID != last.TurnID {
			t.Errorf("update %v has turn id %q, want %q", u.Kind, u.TurnID, last.TurnID)
		}
	}

	if sm.State(project) != session.Active {
		t.Errorf("State() = %v, want Active", sm.State(project))
	}
	state := sm.StateManager().GetIfExists(project)
	if state.GetLastResponse() != "All tests pass." || state.GetIsWaiting() {
		t.Errorf("project state after turn: response %q waiting %v", state.GetLastResponse(), state.GetIsWaiting())
	}
	if ids := sm.SessionIDs(); !ids["abc123"] {
		t.Errorf("SessionIDs() = %v", ids)
	}
}

func TestSend_ReportsSnapshotChanges(t *testing.T) {
	project := t.TempDir()
	file := filepath.Join(project, "notes.txt")
	if err := os.WriteFile(file, []byte("one\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// editingExecutor edits the project while the "agent" runs.
	mock := exec.NewMockExecutor(nil)
	mock.AddRule(isBootstrap, exec.MockResponse{
		Stdout: []byte(`{"type":"thread.started","thread_id":"t1"}` + "\n"),
	})
	editor := &hookExecutor{MockExecutor: mock, before: func(spec exec.Spec) {
		if slices.Contains(spec.Args, "resume") {
			_ = os.WriteFile(file, []byte("one\ntwo\n"), 0644)
		}
	}}
	sm, _ := newTestManager(t, editor)

	ch, err := sm.Send(context.Background(), project, "append a line")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	reports := ofKind(drain(t, ch), UpdateReport)
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0].Report
	if r.Source != report.SourceSnapshot || r.Summary() != "1 file changed, +1 -0" {
		t.Errorf("report = %s (%v)", r.Summary(), r.Source)
	}
	if len(r.Lines) != 1 || r.Lines[0].Number != report.At(2) || r.Lines[0].Text != "two" {
		t.Errorf("lines = %+v", r.Lines)
	}
}

func TestSend_BusyWhileTurnRuns(t *testing.T) {
	blocker := newBlockingExecutor()
	sm, cfg := newTestManager(t, blocker)
	cfg.Bootstrap = new(bool)
	project := t.TempDir()

	ch, err := sm.Send(context.Background(), project, "first")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	<-blocker.started

	if _, err := sm.Send(context.Background(), project, "second"); !agenterrors.Is(err, agenterrors.KindBusy) {
		t.Errorf("second Send() error = %v, want busy", err)
	}

	close(blocker.release)
	drain(t, ch)

	if _, waiting := sm.StateManager().GetWaitStart(project); waiting {
		t.Error("project should be idle after the turn")
	}
}

func TestSend_SpawnFailure(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddRule(func(_, name string, _ []string) bool { return name == "codex" }, exec.MockResponse{
		Err: agenterrors.SpawnFailed("codex", errors.New("executable file not found in $PATH")),
	})
	sm, _ := newTestManager(t, mock)
	project := t.TempDir()

	ch, err := sm.Send(context.Background(), project, "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	updates := drain(t, ch)
	last := updates[len(updates)-1]
	if last.Kind != UpdateDone || !agenterrors.Is(last.Err, agenterrors.KindSpawn) {
		t.Errorf("last update = %+v, want spawn failure", last)
	}
	if len(ofKind(updates, UpdateReport)) != 0 {
		t.Error("a turn that never ran should not report changes")
	}
	if sm.State(project) != session.StartFailed {
		t.Errorf("State() = %v, want StartFailed", sm.State(project))
	}
}

func TestSend_FailedTurnStillReports(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddRule(func(_, name string, _ []string) bool { return name == "codex" }, exec.MockResponse{
		Stderr:   []byte("rate limit exceeded\n"),
		ExitCode: 1,
	})
	sm, cfg := newTestManager(t, mock)
	cfg.Bootstrap = new(bool)

	ch, err := sm.Send(context.Background(), t.TempDir(), "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	updates := drain(t, ch)
	last := updates[len(updates)-1]
	if last.Err != nil || last.Result.FailureMessage != "rate limit exceeded" {
		t.Errorf("last update = %+v", last)
	}
	if len(ofKind(updates, UpdateResponse)) != 0 {
		t.Error("failed turn should not send a response")
	}
	if len(ofKind(updates, UpdateReport)) != 1 {
		t.Error("failed turn should still report changes")
	}
}

func TestConfigure_ResetsSessions(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddRule(isBootstrap, exec.MockResponse{
		Stdout: []byte(`{"type":"thread.started","thread_id":"abc"}` + "\n"),
	})
	sm, cfg := newTestManager(t, mock)
	project := t.TempDir()

	ch, _ := sm.Send(context.Background(), project, "hi")
	drain(t, ch)
	old := sm.GetRunner(project)
	if old == nil || old.Session().ID() != "abc" {
		t.Fatal("expected an active session")
	}

	sm.Configure(cfg.GetExecutable(), cfg.GetModel(), cfg.GetEffort())
	if sm.GetRunner(project) != old {
		t.Error("unchanged configuration must keep the session")
	}

	sm.Configure("codex", "o4-mini", "high")
	if old.Session().State() != session.NotStarted || old.Session().ID() != "" {
		t.Errorf("old session = %v %q, want reset", old.Session().State(), old.Session().ID())
	}
	if sm.GetRunner(project) != nil {
		t.Error("runner should be dropped")
	}

	mock.ClearCalls()
	ch, _ = sm.Send(context.Background(), project, "again")
	drain(t, ch)
	calls := mock.GetCalls()
	if len(calls) == 0 || !slices.Contains(calls[0].Args, "o4-mini") || !slices.Contains(calls[0].Args, "model_reasoning_effort=high") {
		t.Errorf("new session should use the new settings, calls = %+v", calls)
	}
}

func TestStop_CancelsRunningTurn(t *testing.T) {
	blocker := newBlockingExecutor()
	sm, cfg := newTestManager(t, blocker)
	cfg.Bootstrap = new(bool)
	project := t.TempDir()

	ch, err := sm.Send(context.Background(), project, "long job")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	<-blocker.started

	sm.Stop()
	updates := drain(t, ch)
	last := updates[len(updates)-1]
	if last.Kind != UpdateDone || !agenterrors.Is(last.Err, agenterrors.KindCancelled) {
		t.Errorf("last update = %+v, want cancelled", last)
	}
}

func TestCanonical_SymlinkSharesSession(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddRule(isBootstrap, exec.MockResponse{
		Stdout: []byte(`{"type":"thread.started","thread_id":"abc"}` + "\n"),
	})
	sm, _ := newTestManager(t, mock)

	project := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(project, link); err != nil {
		t.Fatal(err)
	}

	ch, _ := sm.Send(context.Background(), project, "hi")
	drain(t, ch)

	if sm.GetRunner(link) != sm.GetRunner(project) {
		t.Error("symlinked path should resolve to the same runner")
	}
	if sm.State(link) != session.Active {
		t.Errorf("State(link) = %v, want Active", sm.State(link))
	}
}

// hookExecutor calls before ahead of every streaming run.
type hookExecutor struct {
	*exec.MockExecutor
	before func(exec.Spec)
}

func (h *hookExecutor) RunStreaming(ctx context.Context, spec exec.Spec, handler exec.LineHandler) (exec.Result, error) {
	h.before(spec)
	return h.MockExecutor.RunStreaming(ctx, spec, handler)
}

// blockingExecutor holds the agent until release is closed or the context
// is cancelled.
type blockingExecutor struct {
	*exec.MockExecutor
	started chan struct{}
	release chan struct{}
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{
		MockExecutor: exec.NewMockExecutor(nil),
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (b *blockingExecutor) RunStreaming(ctx context.Context, spec exec.Spec, handler exec.LineHandler) (exec.Result, error) {
	close(b.started)
	select {
	case <-b.release:
		return b.MockExecutor.RunStreaming(ctx, spec, handler)
	case <-ctx.Done():
		return exec.Result{ExitCode: -1}, agenterrors.E(agenterrors.Op("test.RunStreaming"), agenterrors.KindCancelled, ctx.Err())
	}
}

func TestSend_ReportCarriesWatchedEdits(t *testing.T) {
	project := t.TempDir()
	file := filepath.Join(project, "notes.txt")
	if err := os.WriteFile(file, []byte("one\n"), 0644); err != nil {
		t.Fatal(err)
	}

	mock := exec.NewMockExecutor(nil)
	mock.AddRule(isBootstrap, exec.MockResponse{
		Stdout: []byte(`{"type":"thread.started","thread_id":"t1"}` + "\n"),
	})
	mock.AddRule(isResume, exec.MockResponse{
		Stdout: []byte(`{"type":"item.completed","item":{"type":"agent_message","text":"done"}}` + "\n"),
	})

	var sm *SessionManager
	editor := &hookExecutor{MockExecutor: mock, before: func(spec exec.Spec) {
		if !slices.Contains(spec.Args, "resume") {
			return
		}
		_ = os.WriteFile(file, []byte("one\ntwo\n"), 0644)
		// Hold the turn until the watcher has reported the write.
		state := sm.StateManager().GetOrCreate(sm.Canonical(project))
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if slices.Contains(state.GetActivities(), "Edited: notes.txt") {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}}
	sm, _ = newTestManager(t, editor)
	sm.SetEditWatching(true)

	ch, err := sm.Send(context.Background(), project, "append a line")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	reports := ofKind(drain(t, ch), UpdateReport)
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if got := reports[0].Edited; !slices.Equal(got, []string{"notes.txt"}) {
		t.Errorf("Edited = %q, want [notes.txt]", got)
	}
}
