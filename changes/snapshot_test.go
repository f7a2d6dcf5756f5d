package changes

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCapture(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "pkg/util.go", "package pkg\n")
	writeFile(t, root, "logo.png", "\x89PNG\x00\x00data")
	writeFile(t, root, "big.txt", strings.Repeat("x", 2048))
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = 1\n")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	if err := os.Symlink(filepath.Join(root, "main.go"), filepath.Join(root, "link.go")); err != nil {
		t.Fatal(err)
	}

	snap, err := Capture(root, Options{MaxFileBytes: 1024})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}

	for _, want := range []string{"main.go", "pkg/util.go"} {
		if !snap.Has(want) {
			t.Errorf("expected %s in snapshot", want)
		}
	}
	for _, skipped := range []string{"logo.png", "big.txt", "node_modules/dep/index.js", ".git/HEAD", "link.go"} {
		if snap.Has(skipped) {
			t.Errorf("%s should have been skipped", skipped)
		}
	}
	if snap.Files["main.go"] != "package main\n" {
		t.Errorf("main.go content = %q", snap.Files["main.go"])
	}
}

func TestCapture_MaxFiles(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d"} {
		writeFile(t, root, name+".txt", name)
	}
	snap, err := Capture(root, Options{MaxFiles: 2})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if len(snap.Files) != 2 || !snap.Truncated {
		t.Errorf("files = %d truncated = %v, want 2 true", len(snap.Files), snap.Truncated)
	}
	if snap.Stopped != "c.txt" {
		t.Errorf("Stopped = %q, want c.txt", snap.Stopped)
	}
	for path, want := range map[string]bool{"a.txt": true, "b.txt": true, "c.txt": false, "d.txt": false, "0.txt": true} {
		if got := snap.Covers(path); got != want {
			t.Errorf("Covers(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestWalkOrderLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"a.txt", "b.txt", true},
		{"b.txt", "a.txt", false},
		{"a/z.txt", "a.txt", true}, // directory "a" sorts before "a.txt"
		{"a.txt", "a/z.txt", false},
		{"pkg/a.go", "pkg/b.go", true},
		{"same", "same", false},
	}
	for _, tt := range tests {
		if got := walkOrderLess(tt.a, tt.b); got != tt.want {
			t.Errorf("walkOrderLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCapture_CustomExclude(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", "k")
	writeFile(t, root, "gen/out.pb.go", "g")
	writeFile(t, root, "notes.log", "l")

	snap, err := Capture(root, Options{Exclude: []string{"gen", "*.log"}})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if !snap.Has("keep.go") || snap.Has("gen/out.pb.go") || snap.Has("notes.log") {
		t.Errorf("files = %v", snap.Files)
	}
}

func TestCapture_Errors(t *testing.T) {
	if _, err := Capture(filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Error("expected error for a missing root")
	}

	file := filepath.Join(t.TempDir(), "f")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Capture(file, Options{}); err == nil {
		t.Error("expected error for a file root")
	}
}
