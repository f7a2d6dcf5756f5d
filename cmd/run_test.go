package cmd

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/zhubert/plural-agent/manager"
	"github.com/zhubert/plural-agent/report"
	"github.com/zhubert/plural-agent/session"
)

func feed(updates ...manager.Update) <-chan manager.Update {
	ch := make(chan manager.Update, len(updates))
	for _, u := range updates {
		ch <- u
	}
	close(ch)
	return ch
}

func sampleReport() *report.ChangeReport {
	b := report.NewBuilder(10)
	b.AddStat("main.go", 1, 0)
	b.AddLine(report.Line{File: "main.go", Kind: report.Added, Number: report.At(3), Text: "fmt.Println()"})
	return b.Build(report.SourceGit)
}

func TestPrintUpdates_Success(t *testing.T) {
	var out bytes.Buffer
	err := printUpdates(&out, feed(
		manager.Update{Kind: manager.UpdateStatus, State: session.Active},
		manager.Update{Kind: manager.UpdateActivity, Activity: "Running: go test ./..."},
		manager.Update{Kind: manager.UpdateResponse, Response: "All tests pass."},
		manager.Update{Kind: manager.UpdateReport, Report: sampleReport()},
		manager.Update{Kind: manager.UpdateDone, Result: &session.TurnResult{}},
	), true)
	if err != nil {
		t.Fatalf("printUpdates() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"  · Running: go test ./...\n",
		"\nAll tests pass.\n",
		"1 file changed, +1 -0",
		"+3     fmt.Println()",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintUpdates_NoReport(t *testing.T) {
	var out bytes.Buffer
	err := printUpdates(&out, feed(
		manager.Update{Kind: manager.UpdateReport, Report: sampleReport()},
		manager.Update{Kind: manager.UpdateDone, Result: &session.TurnResult{}},
	), false)
	if err != nil {
		t.Fatalf("printUpdates() error = %v", err)
	}
	if strings.Contains(out.String(), "changed") {
		t.Errorf("report printed with showReport=false:\n%s", out.String())
	}
}

func TestPrintUpdates_Failures(t *testing.T) {
	t.Run("agent failure", func(t *testing.T) {
		err := printUpdates(&bytes.Buffer{}, feed(
			manager.Update{Kind: manager.UpdateDone, Result: &session.TurnResult{ExitCode: 2, FailureMessage: "boom"}},
		), true)
		if err == nil || !strings.Contains(err.Error(), "code 2: boom") {
			t.Errorf("printUpdates() error = %v, want exit code and message", err)
		}
	})

	t.Run("turn could not run", func(t *testing.T) {
		spawnErr := errors.New("spawn failed")
		err := printUpdates(&bytes.Buffer{}, feed(
			manager.Update{Kind: manager.UpdateDone, Result: &session.TurnResult{ExitCode: -1}, Err: spawnErr},
		), true)
		if !errors.Is(err, spawnErr) {
			t.Errorf("printUpdates() error = %v, want %v", err, spawnErr)
		}
	})
}

func TestRunRequiresPromptUnlessInteractive(t *testing.T) {
	orig := runInteractive
	defer func() { runInteractive = orig }()

	runInteractive = false
	if err := runCmd.Args(runCmd, nil); err == nil {
		t.Error("expected an error without a prompt")
	}
	if err := runCmd.Args(runCmd, []string{"hello"}); err != nil {
		t.Errorf("Args() error = %v", err)
	}

	runInteractive = true
	if err := runCmd.Args(runCmd, nil); err != nil {
		t.Errorf("Args() with --interactive error = %v", err)
	}
}
