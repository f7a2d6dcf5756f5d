package changes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/zhubert/plural-agent/exec"
	"github.com/zhubert/plural-agent/git"
	"github.com/zhubert/plural-agent/report"
)

var ctx = context.Background()

// noGit answers every git command with a failure, as outside a repository.
func noGit() *git.GitService {
	mock := exec.NewMockExecutor(nil)
	mock.AddRule(func(_, name string, _ []string) bool { return name == "git" }, exec.MockResponse{
		Err: errors.New("fatal: not a git repository"),
	})
	return git.NewGitServiceWithExecutor(mock)
}

func TestCompare(t *testing.T) {
	before := &Snapshot{Root: "/p", Files: map[string]string{
		"same.txt":    "x\n",
		"edit.txt":    "a\nb\n",
		"deleted.txt": "1\n2\n",
	}}
	after := &Snapshot{Root: "/p", Files: map[string]string{
		"same.txt": "x\n",
		"edit.txt": "a\nB\n",
		"new.txt":  "n\n",
	}}

	r := Compare(before, after, 0)
	want := []report.FileStat{
		{Path: "deleted.txt", Removed: 2},
		{Path: "edit.txt", Added: 1, Removed: 1},
		{Path: "new.txt", Added: 1},
	}
	if !slices.Equal(r.Files, want) {
		t.Errorf("files = %+v, want %+v", r.Files, want)
	}
	if r.AddedTotal != 2 || r.RemovedTotal != 3 {
		t.Errorf("totals = +%d -%d, want +2 -3", r.AddedTotal, r.RemovedTotal)
	}
	if r.Source != report.SourceSnapshot {
		t.Errorf("Source = %v", r.Source)
	}
}

func TestEngine_FallsBackToSnapshot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "one\ntwo\n")

	e := NewEngine(noGit(), Options{}, 0)
	prior := e.Snapshot(ctx, root)
	if prior == nil {
		t.Fatal("Snapshot() returned nil")
	}

	writeFile(t, root, "a.txt", "one\n2\n")
	writeFile(t, root, "b.txt", "new\n")

	r := e.Compute(ctx, root, prior)
	if r.Source != report.SourceSnapshot {
		t.Fatalf("Source = %v, want snapshot", r.Source)
	}
	if r.Summary() != "2 files changed, +2 -1" {
		t.Errorf("Summary() = %q", r.Summary())
	}
}

func TestEngine_NoRepoNoSnapshotIsEmpty(t *testing.T) {
	e := NewEngine(noGit(), Options{}, 0)
	r := e.Compute(ctx, t.TempDir(), nil)
	if !r.Empty() || r.Source != report.SourceNone {
		t.Errorf("report = %+v, want empty", r)
	}
}

func TestEngine_PrefersGit(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"rev-parse", "--is-inside-work-tree"}, exec.MockResponse{Stdout: []byte("true\n")})
	mock.AddExactMatch("git", []string{"rev-parse", "--verify", "--quiet", "HEAD"}, exec.MockResponse{Stdout: []byte("abc\n")})
	mock.AddExactMatch("git", []string{"diff", "--numstat", "--no-renames", "HEAD"}, exec.MockResponse{Stdout: []byte("3\t1\tsrc/main.go\n")})

	root := t.TempDir()
	e := NewEngine(git.NewGitServiceWithExecutor(mock), Options{}, 0)
	r := e.Compute(ctx, root, &Snapshot{Root: root, Files: map[string]string{}})
	if r.Source != report.SourceGit || r.AddedTotal != 3 || r.RemovedTotal != 1 {
		t.Errorf("report = %+v", r)
	}
}

func TestEngine_EmptyGitUsesSnapshot(t *testing.T) {
	mock := exec.NewMockExecutor(nil)
	mock.AddExactMatch("git", []string{"rev-parse", "--is-inside-work-tree"}, exec.MockResponse{Stdout: []byte("true\n")})
	mock.AddExactMatch("git", []string{"rev-parse", "--verify", "--quiet", "HEAD"}, exec.MockResponse{Stdout: []byte("abc\n")})

	root := t.TempDir()
	writeFile(t, root, "ignored.txt", "after\n")
	prior := &Snapshot{Root: root, Files: map[string]string{"ignored.txt": "before\n"}}

	e := NewEngine(git.NewGitServiceWithExecutor(mock), Options{}, 0)
	r := e.Compute(ctx, root, prior)
	if r.Source != report.SourceSnapshot || r.AddedTotal != 1 || r.RemovedTotal != 1 {
		t.Errorf("report = %+v", r)
	}
}

func TestEngine_TruncatedSnapshotIgnoresFilesPastCutoff(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, root string)
		want   []report.FileStat
	}{
		{
			name: "deleted file moves the cutoff forward",
			change: func(t *testing.T, root string) {
				if err := os.Remove(filepath.Join(root, "a.txt")); err != nil {
					t.Fatal(err)
				}
			},
			want: []report.FileStat{{Path: "a.txt", Removed: 1}},
		},
		{
			name: "created file moves the cutoff back",
			change: func(t *testing.T, root string) {
				writeFile(t, root, "0.txt", "zero\n")
			},
			want: []report.FileStat{{Path: "0.txt", Added: 1}},
		},
		{
			name: "edit inside both walks",
			change: func(t *testing.T, root string) {
				writeFile(t, root, "b.txt", "B\n")
			},
			want: []report.FileStat{{Path: "b.txt", Added: 1, Removed: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for _, name := range []string{"a", "b", "c", "d"} {
				writeFile(t, root, name+".txt", name+"\n")
			}

			e := NewEngine(noGit(), Options{MaxFiles: 2}, 0)
			prior := e.Snapshot(ctx, root)
			if prior == nil || !prior.Truncated {
				t.Fatalf("expected a truncated snapshot, got %+v", prior)
			}

			tt.change(t, root)

			r := e.Compute(ctx, root, prior)
			if !slices.Equal(r.Files, tt.want) {
				t.Errorf("files = %+v, want %+v", r.Files, tt.want)
			}
		})
	}
}
