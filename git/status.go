package git

import (
	"context"
	"strings"

	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/logger"
	"github.com/zhubert/plural-agent/report"
)

// diffSources returns the revision arguments to diff against. With a HEAD
// commit the working tree is compared to it; without one, unstaged and
// staged changes are diffed separately and merged by path.
func (s *GitService) diffSources(ctx context.Context, dir string) [][]string {
	if s.HasCommit(ctx, dir) {
		return [][]string{{"HEAD"}}
	}
	return [][]string{nil, {"--cached"}}
}

// CollectChanges builds a ChangeReport for the working tree at dir, keeping
// at most limit preview lines. Untracked files count every line as added.
// Only changes under dir are reported, with paths relative to dir, even when
// dir is a subdirectory of the repository.
func (s *GitService) CollectChanges(ctx context.Context, dir string, limit int) (*report.ChangeReport, error) {
	log := logger.WithComponent("git")
	b := report.NewBuilder(limit)

	sources := s.diffSources(ctx, dir)
	failed := 0
	for _, src := range sources {
		numstatArgs := append([]string{"diff", "--relative", "--numstat", "--no-renames"}, src...)
		out, err := s.executor.Output(ctx, dir, "git", numstatArgs...)
		if err != nil {
			log.Warn("git diff --numstat failed", "error", err, "dir", dir, "source", strings.Join(src, " "))
			failed++
			continue
		}
		for _, e := range ParseNumstat(out) {
			b.AddStat(e.Path, e.Added, e.Removed)
		}

		patchArgs := append([]string{"diff", "--relative", "--no-ext-diff", "--no-color", "--unified=0", "--no-renames"}, src...)
		patch, err := s.executor.Output(ctx, dir, "git", patchArgs...)
		if err != nil {
			// Stats are still valid without a preview.
			log.Warn("git diff patch failed", "error", err, "dir", dir)
			continue
		}
		ParsePatch(string(patch), b)
	}
	if failed == len(sources) {
		return nil, agenterrors.E(agenterrors.Op("git.CollectChanges"), agenterrors.KindGit, "git diff failed for "+dir)
	}

	untracked, err := s.UntrackedFiles(ctx, dir)
	if err != nil {
		log.Warn("failed to list untracked files", "error", err, "dir", dir)
	}
	for _, file := range untracked {
		lineCount, err := s.countFileLines(ctx, dir, file)
		if err != nil {
			log.Warn("failed to count lines in untracked file", "file", file, "error", err)
			continue
		}
		b.AddStat(file, lineCount, 0)
		if !b.Full() {
			ParsePatch(s.untrackedFilePatch(ctx, dir, file), b)
		}
	}

	r := b.Build(report.SourceGit)
	log.Debug("collected changes", "dir", dir, "files", len(r.Files), "added", r.AddedTotal, "removed", r.RemovedTotal)
	return r, nil
}

// UntrackedFiles lists files git does not track and does not ignore.
func (s *GitService) UntrackedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := s.executor.Output(ctx, dir, "git", "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, agenterrors.E(agenterrors.Op("git.UntrackedFiles"), agenterrors.KindGit, err)
	}
	var files []string
	for line := range strings.SplitSeq(string(out), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			files = append(files, unquotePath(line))
		}
	}
	return files, nil
}

// countFileLines counts the lines of an untracked file using
// git diff --no-index. Binary files count as 0.
func (s *GitService) countFileLines(ctx context.Context, dir, filename string) (int, error) {
	output, err := s.executor.Output(ctx, dir, "git", "diff", "--no-index", "--numstat", "/dev/null", filename)
	if err != nil {
		// git diff --no-index returns exit code 1 when files differ, which is expected
		// Only treat it as an error if there's no output
		if len(output) == 0 {
			return 0, err
		}
	}
	entries := ParseNumstat(output)
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[0].Added, nil
}

// untrackedFilePatch returns a zero-context patch showing filename as new.
func (s *GitService) untrackedFilePatch(ctx context.Context, dir, filename string) string {
	output, err := s.executor.Output(ctx, dir, "git", "diff", "--no-ext-diff", "--no-color", "--unified=0", "--no-index", "/dev/null", filename)
	if err != nil && len(output) == 0 {
		logger.WithComponent("git").Warn("failed to generate diff for untracked file", "file", filename, "error", err)
		return ""
	}
	return string(output)
}
