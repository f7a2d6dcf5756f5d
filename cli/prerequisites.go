// Package cli provides utilities for CLI tool management and validation.
package cli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	pexec "github.com/zhubert/plural-agent/exec"
)

// versionTimeout bounds each version probe.
const versionTimeout = 5 * time.Second

// Prerequisite represents a required CLI tool
type Prerequisite struct {
	Name        string   // Command name or path (e.g., "codex", "git")
	Required    bool     // Whether the tool is required to run the engine
	Description string   // Human-readable description
	InstallURL  string   // URL for installation instructions
	SearchPaths []string // Extra directories searched ahead of the known install dirs
}

// DefaultPrerequisites returns the CLI tools the engine uses. agent is the
// configured agent executable.
func DefaultPrerequisites(agent string, searchPaths []string) []Prerequisite {
	if agent == "" {
		agent = "codex"
	}
	return []Prerequisite{
		{
			Name:        agent,
			Required:    true,
			Description: "Codex CLI",
			InstallURL:  "https://github.com/openai/codex",
			SearchPaths: searchPaths,
		},
		{
			Name:        "git",
			Required:    false, // Without it change reports use the snapshot fallback
			Description: "Git version control (optional, for change reports)",
			InstallURL:  "https://git-scm.com/downloads",
			SearchPaths: searchPaths,
		},
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string // Path to the executable if found
	Version      string // Version string if available
	Error        error
}

// Check verifies that a CLI tool can be found the way the executor finds it:
// on PATH enriched with the search paths and the usual install dirs.
func Check(prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := pexec.LookPath(prereq.Name, prereq.SearchPaths)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}

	result.Found = true
	result.Path = path

	// Try to get version
	version := getVersion(path)
	if version != "" {
		result.Version = version
	}

	return result
}

// CheckAll verifies all prerequisites and returns results
func CheckAll(prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = Check(prereq)
	}
	return results
}

// ValidateRequired checks that all required prerequisites are met
// Returns nil if all required tools are found, otherwise returns an error
// describing what's missing
func ValidateRequired(prereqs []Prerequisite) error {
	var missing []string

	for _, prereq := range prereqs {
		if !prereq.Required {
			continue
		}
		result := Check(prereq)
		if !result.Found {
			missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
				prereq.Name, prereq.Description, prereq.InstallURL))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}

	return nil
}

// getVersion attempts to get the version of a CLI tool
func getVersion(path string) string {
	// Different tools use different version flags
	versionFlags := []string{"--version", "-v", "version"}

	for _, flag := range versionFlags {
		ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
		output, err := exec.CommandContext(ctx, path, flag).Output()
		cancel()
		if err != nil {
			continue
		}
		// Return first line of output, trimmed
		version := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
		if version == "" {
			continue
		}
		// Limit length to avoid overly long version strings
		if len(version) > 100 {
			version = version[:100] + "..."
		}
		return version
	}

	return ""
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		sb.WriteString(fmt.Sprintf("  %s %s", status, r.Prerequisite.Name))
		if r.Found && r.Version != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", r.Version))
		} else if !r.Found {
			if r.Prerequisite.Required {
				sb.WriteString(" [REQUIRED]")
			} else {
				sb.WriteString(" [optional]")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
