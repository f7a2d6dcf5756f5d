// Package config loads the engine's YAML configuration: a global file in the
// config dir plus an optional per-project overlay.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/paths"
)

// Defaults applied when a field is left unset.
const (
	DefaultExecutable      = "codex"
	DefaultModel           = "gpt-5-codex"
	DefaultEffort          = "medium"
	DefaultPreviewLimit    = 200
	DefaultMaxFileBytes    = 512 * 1024
	DefaultMaxFiles        = 5000
	DefaultMaxConcurrent   = 4
	DefaultBootstrapPrompt = "This is a session warm-up. Do not run any commands, do not read or modify any files. Reply with exactly: READY"
)

// ValidEfforts lists the reasoning-effort values the agent accepts.
var ValidEfforts = []string{"minimal", "low", "medium", "high"}

// DefaultExtraArgs are appended after the model flags on every invocation.
var DefaultExtraArgs = []string{"--full-auto"}

// DefaultExcludes are directory names skipped by the pre-run snapshot.
var DefaultExcludes = []string{
	".git", "node_modules", "build", "dist", "target", ".venv", "venv",
	"__pycache__", ".next", ".gradle", ".idea", "DerivedData", "Pods",
}

// SnapshotConfig bounds the pre-run file snapshot.
type SnapshotConfig struct {
	MaxFileBytes int64    `yaml:"max_file_bytes,omitempty"`
	MaxFiles     int      `yaml:"max_files,omitempty"`
	Exclude      []string `yaml:"exclude,omitempty"`
}

// Config holds the engine configuration.
type Config struct {
	Executable      string     `yaml:"executable,omitempty"`       // Agent binary name or path
	Model           string     `yaml:"model,omitempty"`            // Passed as --model
	Effort          string     `yaml:"effort,omitempty"`           // Passed as -c model_reasoning_effort=
	Bootstrap       *bool      `yaml:"bootstrap,omitempty"`        // Warm the session before the first turn (default true)
	BootstrapPrompt string     `yaml:"bootstrap_prompt,omitempty"` // Non-mutating warm-up prompt
	ExtraArgs       []string   `yaml:"extra_args,omitempty"`       // Appended after model flags
	SearchPaths     []string   `yaml:"search_paths,omitempty"`     // Extra PATH entries for the child process
	StaleSignatures [][]string `yaml:"stale_signatures,omitempty"` // Each group: all phrases must appear
	PreviewLimit    int        `yaml:"preview_limit,omitempty"`    // Max changed lines kept in a report
	MaxConcurrent   int        `yaml:"max_concurrent,omitempty"`   // Worker pool size for background execution

	Snapshot SnapshotConfig `yaml:"snapshot,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// Defaults returns a config with every field populated.
func Defaults() *Config {
	enabled := true
	return &Config{
		Executable:      DefaultExecutable,
		Model:           DefaultModel,
		Effort:          DefaultEffort,
		Bootstrap:       &enabled,
		BootstrapPrompt: DefaultBootstrapPrompt,
		ExtraArgs:       slices.Clone(DefaultExtraArgs),
		SearchPaths:     []string{},
		StaleSignatures: [][]string{},
		PreviewLimit:    DefaultPreviewLimit,
		MaxConcurrent:   DefaultMaxConcurrent,
		Snapshot: SnapshotConfig{
			MaxFileBytes: DefaultMaxFileBytes,
			MaxFiles:     DefaultMaxFiles,
			Exclude:      slices.Clone(DefaultExcludes),
		},
	}
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads the global config and merges it over the defaults. A missing
// file yields the defaults.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	global, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Merge(Defaults(), global)
	cfg.filePath = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadProject reads the overlay file in projectPath and merges it over base.
// base is not modified. A missing overlay returns a copy of base.
func LoadProject(base *Config, projectPath string) (*Config, error) {
	overlay, err := loadFile(paths.ProjectConfigPath(projectPath))
	if err != nil {
		return nil, err
	}
	cfg := Merge(base, overlay)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile returns nil, nil when path does not exist.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, agenterrors.ConfigLoadFailed(path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, agenterrors.ConfigLoadFailed(path, &ParseError{Path: path, Err: err})
	}
	return &cfg, nil
}

// Merge returns a new config with every set field of overlay applied over
// base. Either argument may be nil.
func Merge(base, overlay *Config) *Config {
	result := &Config{}
	if base != nil {
		base.mu.RLock()
		result.copyFrom(base, true)
		result.filePath = base.filePath
		base.mu.RUnlock()
	}
	if overlay != nil {
		overlay.mu.RLock()
		result.copyFrom(overlay, false)
		overlay.mu.RUnlock()
	}
	return result
}

// copyFrom copies fields from src. With all=false only non-zero fields are
// taken. Caller must hold src's read lock.
func (c *Config) copyFrom(src *Config, all bool) {
	if all || src.Executable != "" {
		c.Executable = src.Executable
	}
	if all || src.Model != "" {
		c.Model = src.Model
	}
	if all || src.Effort != "" {
		c.Effort = src.Effort
	}
	if all || src.Bootstrap != nil {
		if src.Bootstrap != nil {
			v := *src.Bootstrap
			c.Bootstrap = &v
		} else {
			c.Bootstrap = nil
		}
	}
	if all || src.BootstrapPrompt != "" {
		c.BootstrapPrompt = src.BootstrapPrompt
	}
	if all || len(src.ExtraArgs) > 0 {
		c.ExtraArgs = slices.Clone(src.ExtraArgs)
	}
	if all || len(src.SearchPaths) > 0 {
		c.SearchPaths = slices.Clone(src.SearchPaths)
	}
	if all || len(src.StaleSignatures) > 0 {
		c.StaleSignatures = make([][]string, len(src.StaleSignatures))
		for i, g := range src.StaleSignatures {
			c.StaleSignatures[i] = slices.Clone(g)
		}
	}
	if all || src.PreviewLimit != 0 {
		c.PreviewLimit = src.PreviewLimit
	}
	if all || src.MaxConcurrent != 0 {
		c.MaxConcurrent = src.MaxConcurrent
	}
	if all || src.Snapshot.MaxFileBytes != 0 {
		c.Snapshot.MaxFileBytes = src.Snapshot.MaxFileBytes
	}
	if all || src.Snapshot.MaxFiles != 0 {
		c.Snapshot.MaxFiles = src.Snapshot.MaxFiles
	}
	if all || len(src.Snapshot.Exclude) > 0 {
		c.Snapshot.Exclude = slices.Clone(src.Snapshot.Exclude)
	}
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Effort != "" && !slices.Contains(ValidEfforts, c.Effort) {
		return agenterrors.ConfigInvalid(fmt.Sprintf("invalid effort %q (want one of %v)", c.Effort, ValidEfforts))
	}
	if c.PreviewLimit < 0 {
		return agenterrors.ConfigInvalid(fmt.Sprintf("preview_limit must not be negative, got %d", c.PreviewLimit))
	}
	if c.MaxConcurrent < 0 {
		return agenterrors.ConfigInvalid(fmt.Sprintf("max_concurrent must not be negative, got %d", c.MaxConcurrent))
	}
	if c.Snapshot.MaxFileBytes < 0 || c.Snapshot.MaxFiles < 0 {
		return agenterrors.ConfigInvalid("snapshot limits must not be negative")
	}
	for i, group := range c.StaleSignatures {
		if len(group) == 0 {
			return agenterrors.ConfigInvalid(fmt.Sprintf("stale_signatures[%d] is empty", i))
		}
		for _, phrase := range group {
			if phrase == "" {
				return agenterrors.ConfigInvalid(fmt.Sprintf("stale_signatures[%d] contains an empty phrase", i))
			}
		}
	}
	return nil
}

// Save writes the config to its file path, creating the directory if needed.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	path := c.filePath
	if path == "" {
		var err error
		if path, err = paths.ConfigFilePath(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return agenterrors.ConfigSaveFailed(path, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return agenterrors.ConfigSaveFailed(path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return agenterrors.ConfigSaveFailed(path, err)
	}
	return nil
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// FilePath returns where Save writes.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// GetExecutable returns the agent binary, defaulting to "codex".
func (c *Config) GetExecutable() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Executable == "" {
		return DefaultExecutable
	}
	return c.Executable
}

// GetModel returns the configured model name.
func (c *Config) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

// GetEffort returns the reasoning effort.
func (c *Config) GetEffort() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Effort == "" {
		return DefaultEffort
	}
	return c.Effort
}

// BootstrapEnabled reports whether sessions are warmed before the first turn.
func (c *Config) BootstrapEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Bootstrap == nil || *c.Bootstrap
}

// GetBootstrapPrompt returns the warm-up prompt.
func (c *Config) GetBootstrapPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.BootstrapPrompt == "" {
		return DefaultBootstrapPrompt
	}
	return c.BootstrapPrompt
}

// GetExtraArgs returns a copy of the extra argument list. A nil list means
// the defaults; an explicitly configured list is used as-is.
func (c *Config) GetExtraArgs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ExtraArgs == nil {
		return slices.Clone(DefaultExtraArgs)
	}
	return slices.Clone(c.ExtraArgs)
}

// GetSearchPaths returns a copy of the extra PATH entries.
func (c *Config) GetSearchPaths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.SearchPaths)
}

// GetStaleSignatures returns a copy of the configured phrase groups.
func (c *Config) GetStaleSignatures() [][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]string, len(c.StaleSignatures))
	for i, g := range c.StaleSignatures {
		out[i] = slices.Clone(g)
	}
	return out
}

// GetPreviewLimit returns the changed-line cap, defaulting to 200.
func (c *Config) GetPreviewLimit() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.PreviewLimit <= 0 {
		return DefaultPreviewLimit
	}
	return c.PreviewLimit
}

// GetMaxConcurrent returns the worker pool size, defaulting to 4.
func (c *Config) GetMaxConcurrent() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.MaxConcurrent <= 0 {
		return DefaultMaxConcurrent
	}
	return c.MaxConcurrent
}

// GetSnapshot returns the snapshot limits with defaults filled in.
func (c *Config) GetSnapshot() SnapshotConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := SnapshotConfig{
		MaxFileBytes: c.Snapshot.MaxFileBytes,
		MaxFiles:     c.Snapshot.MaxFiles,
		Exclude:      slices.Clone(c.Snapshot.Exclude),
	}
	if s.MaxFileBytes <= 0 {
		s.MaxFileBytes = DefaultMaxFileBytes
	}
	if s.MaxFiles <= 0 {
		s.MaxFiles = DefaultMaxFiles
	}
	if len(s.Exclude) == 0 {
		s.Exclude = slices.Clone(DefaultExcludes)
	}
	return s
}

// SetAgent updates executable, model and effort together.
func (c *Config) SetAgent(executable, model, effort string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Executable = executable
	c.Model = model
	c.Effort = effort
}
