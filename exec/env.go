package exec

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
)

// knownInstallDirs lists the usual places a package manager drops CLI
// binaries. GUI-launched parents often start with a minimal PATH that
// misses them.
func knownInstallDirs(home string) []string {
	dirs := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		"/usr/bin",
		"/bin",
		"/usr/sbin",
		"/sbin",
	}
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".cargo", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, "bin"),
		)
	}
	return dirs
}

// EnrichPath builds a PATH value from, in order: the directory containing
// program, extra, the known install dirs, and inherited. Duplicates and empty
// entries are dropped, keeping the first occurrence.
func EnrichPath(program string, extra []string, inherited string) string {
	var candidates []string
	if dir := programDir(program); dir != "" {
		candidates = append(candidates, dir)
	}
	candidates = append(candidates, extra...)
	home, _ := os.UserHomeDir()
	candidates = append(candidates, knownInstallDirs(home)...)
	candidates = append(candidates, filepath.SplitList(inherited)...)

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return strings.Join(out, string(os.PathListSeparator))
}

// programDir returns the directory holding program, resolving bare names
// against the current PATH. Returns "" when it cannot be determined.
func programDir(program string) string {
	if program == "" {
		return ""
	}
	if strings.ContainsRune(program, os.PathSeparator) {
		return filepath.Dir(program)
	}
	if p, err := exec.LookPath(program); err == nil {
		return filepath.Dir(p)
	}
	return ""
}

// BuildEnv returns the child environment for spec as KEY=VALUE pairs. An
// explicit spec.Env is used verbatim (sorted for determinism); otherwise the
// parent environment is inherited with PATH enriched.
func BuildEnv(spec Spec, extraPaths []string) []string {
	if spec.Env != nil {
		env := make([]string, 0, len(spec.Env))
		for k, v := range spec.Env {
			env = append(env, k+"="+v)
		}
		sort.Strings(env)
		return env
	}

	parent := os.Environ()
	env := make([]string, 0, len(parent)+1)
	inherited := ""
	for _, kv := range parent {
		if v, ok := strings.CutPrefix(kv, "PATH="); ok {
			inherited = v
			continue
		}
		env = append(env, kv)
	}
	return append(env, "PATH="+EnrichPath(spec.Program, extraPaths, inherited))
}

// lookupEnv returns the value of key in a KEY=VALUE list.
func lookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range slices.Backward(env) {
		if v, ok := strings.CutPrefix(kv, prefix); ok {
			return v, true
		}
	}
	return "", false
}

// resolveProgram finds program on the child's PATH rather than the parent's.
// Names with a path separator, or names not found, are returned unchanged so
// the spawn error reports what was asked for.
func resolveProgram(program string, env []string) string {
	if program == "" || strings.ContainsRune(program, os.PathSeparator) {
		return program
	}
	pathValue, ok := lookupEnv(env, "PATH")
	if !ok {
		return program
	}
	for _, dir := range filepath.SplitList(pathValue) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, program)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate
		}
	}
	return program
}

// shellQuote wraps s in single quotes for /bin/sh.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`|&;<>()*?[]{}!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// LookPath finds program on the enriched PATH the executor would give it.
func LookPath(program string, extraPaths []string) (string, error) {
	env := BuildEnv(Spec{Program: program}, extraPaths)
	resolved := resolveProgram(program, env)
	if !strings.ContainsRune(resolved, os.PathSeparator) {
		return "", &exec.Error{Name: program, Err: exec.ErrNotFound}
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", &exec.Error{Name: program, Err: err}
	}
	if info.IsDir() || info.Mode()&0111 == 0 {
		return "", &exec.Error{Name: program, Err: exec.ErrNotFound}
	}
	return resolved, nil
}
