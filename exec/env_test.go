package exec

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestEnrichPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got := filepath.SplitList(EnrichPath("/custom/tools/codex", []string{"/extra", "/usr/bin"}, "/usr/bin:/inherited:/extra"))

	if got[0] != "/custom/tools" {
		t.Errorf("first entry = %q, want the executable's dir", got[0])
	}
	if got[1] != "/extra" {
		t.Errorf("second entry = %q, want configured extra dir", got[1])
	}
	for _, want := range []string{"/opt/homebrew/bin", filepath.Join(home, ".cargo", "bin"), "/inherited"} {
		if !slices.Contains(got, want) {
			t.Errorf("PATH %v missing %q", got, want)
		}
	}

	seen := map[string]bool{}
	for _, p := range got {
		if seen[p] {
			t.Errorf("duplicate PATH entry %q", p)
		}
		seen[p] = true
	}
	if slices.Index(got, "/usr/bin") > slices.Index(got, "/inherited") {
		t.Error("first occurrence of /usr/bin should be kept")
	}
}

func TestBuildEnv(t *testing.T) {
	t.Setenv("PATH", "/only/inherited")
	t.Setenv("PLURAL_AGENT_MARK", "1")

	env := BuildEnv(Spec{Program: "codex"}, nil)
	if v, _ := lookupEnv(env, "PLURAL_AGENT_MARK"); v != "1" {
		t.Error("parent environment should be inherited")
	}
	path, _ := lookupEnv(env, "PATH")
	if !strings.HasSuffix(path, "/only/inherited") {
		t.Errorf("PATH = %q, inherited entry should come last", path)
	}
	count := 0
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one PATH entry, got %d", count)
	}

	explicit := BuildEnv(Spec{Program: "codex", Env: map[string]string{"B": "2", "A": "1"}}, []string{"/ignored"})
	if !slices.Equal(explicit, []string{"A=1", "B=2"}) {
		t.Errorf("explicit env = %v", explicit)
	}
}

func TestResolveProgram(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "tool")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	plain := filepath.Join(dir, "notexec")
	if err := os.WriteFile(plain, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	env := []string{"PATH=" + dir}

	if got := resolveProgram("tool", env); got != bin {
		t.Errorf("resolveProgram(tool) = %q, want %q", got, bin)
	}
	if got := resolveProgram("notexec", env); got != "notexec" {
		t.Errorf("non-executable file should not resolve, got %q", got)
	}
	if got := resolveProgram("/abs/tool", env); got != "/abs/tool" {
		t.Errorf("absolute path should be unchanged, got %q", got)
	}
}

func TestShellQuote(t *testing.T) {
	tests := map[string]string{
		"":          "''",
		"plain":     "plain",
		"two words": "'two words'",
		"it's":      `'it'\''s'`,
	}
	for in, want := range tests {
		if got := shellQuote(in); got != want {
			t.Errorf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookPath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "my-agent-cli")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := LookPath("my-agent-cli", []string{dir})
	if err != nil {
		t.Fatalf("LookPath() error = %v", err)
	}
	if got != bin {
		t.Errorf("LookPath() = %q, want %q", got, bin)
	}

	if _, err := LookPath("definitely-not-a-real-command-12345", nil); err == nil {
		t.Error("expected an error for a missing program")
	}
	if _, err := LookPath(filepath.Join(dir, "missing"), nil); err == nil {
		t.Error("expected an error for a missing absolute path")
	}
}
