package git

import (
	"context"
	"strings"

	"github.com/zhubert/plural-agent/exec"
)

// GitService provides git operations with explicit dependency injection.
// Each GitService instance holds its own executor, enabling proper testing
// and avoiding global state.
type GitService struct {
	executor exec.CommandExecutor
}

// NewGitService creates a new GitService with the default real executor.
func NewGitService() *GitService {
	return &GitService{executor: exec.NewRealExecutor()}
}

// NewGitServiceWithExecutor creates a new GitService with a custom executor.
// This is primarily used for testing where a mock executor is needed.
func NewGitServiceWithExecutor(executor exec.CommandExecutor) *GitService {
	return &GitService{executor: executor}
}

// IsRepo reports whether dir is inside a git work tree.
func (s *GitService) IsRepo(ctx context.Context, dir string) bool {
	out, err := s.executor.Output(ctx, dir, "git", "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// HasCommit reports whether the repository at dir has a HEAD commit.
func (s *GitService) HasCommit(ctx context.Context, dir string) bool {
	_, _, err := s.executor.Run(ctx, dir, "git", "rev-parse", "--verify", "--quiet", "HEAD")
	return err == nil
}
