package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/zhubert/plural-agent/cli"
	"github.com/zhubert/plural-agent/config"
)

// loadProjectConfig loads the global config, applies the project overlay
// and any flag overrides, and returns the config with the absolute project
// path.
func loadProjectConfig(project, model, effort string) (*config.Config, string, error) {
	abs, err := filepath.Abs(project)
	if err != nil {
		return nil, "", fmt.Errorf("invalid project path %q: %w", project, err)
	}

	base, err := config.Load()
	if err != nil {
		return nil, "", fmt.Errorf("error loading config: %w", err)
	}
	cfg, err := config.LoadProject(base, abs)
	if err != nil {
		return nil, "", fmt.Errorf("error loading project config: %w", err)
	}

	if model != "" || effort != "" {
		if model == "" {
			model = cfg.GetModel()
		}
		if effort == "" {
			effort = cfg.GetEffort()
		}
		cfg.SetAgent(cfg.GetExecutable(), model, effort)
		if err := cfg.Validate(); err != nil {
			return nil, "", err
		}
	}
	return cfg, abs, nil
}

// requireAgent fails when the configured agent executable cannot be found.
func requireAgent(cfg *config.Config) error {
	prereqs := cli.DefaultPrerequisites(cfg.GetExecutable(), cfg.GetSearchPaths())
	if err := cli.ValidateRequired(prereqs); err != nil {
		return fmt.Errorf("%v\n\nInstall required tools and try again (see 'plural-agent doctor')", err)
	}
	return nil
}
