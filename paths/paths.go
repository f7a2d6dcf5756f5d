// Package paths resolves where the engine keeps its configuration and logs.
//
// Two layouts are supported:
//
//   - Dot directory: everything under ~/.plural-agent/
//   - XDG: config in $XDG_CONFIG_HOME/plural-agent, logs in $XDG_STATE_HOME/plural-agent
//
// Resolution order:
//  1. If ~/.plural-agent/ exists → dot directory
//  2. If XDG_CONFIG_HOME or XDG_STATE_HOME is set → XDG layout
//  3. Otherwise → dot directory
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

// AppName is the directory name used under every base directory.
const AppName = "plural-agent"

// ProjectConfigName is the per-project config overlay file name.
const ProjectConfigName = ".plural-agent.yaml"

var (
	mu       sync.Mutex
	resolved *layout
)

type layout struct {
	configDir string
	stateDir  string
	dotDir    bool
}

func resolve() (*layout, error) {
	mu.Lock()
	defer mu.Unlock()

	if resolved != nil {
		return resolved, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dot := filepath.Join(home, "."+AppName)
	if info, err := os.Stat(dot); err == nil && info.IsDir() {
		resolved = &layout{configDir: dot, stateDir: dot, dotDir: true}
		return resolved, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgConfig != "" || xdgState != "" {
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		if xdgState == "" {
			xdgState = filepath.Join(home, ".local", "state")
		}
		resolved = &layout{
			configDir: filepath.Join(xdgConfig, AppName),
			stateDir:  filepath.Join(xdgState, AppName),
		}
		return resolved, nil
	}

	resolved = &layout{configDir: dot, stateDir: dot, dotDir: true}
	return resolved, nil
}

// ConfigDir returns the directory holding config.yaml.
func ConfigDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.configDir, nil
}

// StateDir returns the directory for runtime state and logs.
func StateDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.stateDir, nil
}

// ConfigFilePath returns the full path to the global config.yaml.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// ProjectConfigPath returns the per-project overlay path inside projectPath.
func ProjectConfigPath(projectPath string) string {
	return filepath.Join(projectPath, ProjectConfigName)
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// IsDotDirLayout reports whether the ~/.plural-agent/ layout is in use.
func IsDotDirLayout() bool {
	l, err := resolve()
	if err != nil {
		return true
	}
	return l.dotDir
}

// Reset clears the cached resolution. Intended for tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	resolved = nil
}
