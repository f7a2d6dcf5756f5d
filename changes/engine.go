package changes

import (
	"context"
	"log/slog"
	"slices"

	"github.com/zhubert/plural-agent/git"
	"github.com/zhubert/plural-agent/logger"
	"github.com/zhubert/plural-agent/report"
)

// Engine computes change reports for projects.
type Engine struct {
	git   *git.GitService
	opts  Options
	limit int
	log   *slog.Logger
}

// NewEngine creates an engine. limit caps preview lines per report.
func NewEngine(gitSvc *git.GitService, opts Options, limit int) *Engine {
	return &Engine{
		git:   gitSvc,
		opts:  opts.withDefaults(),
		limit: limit,
		log:   logger.WithComponent("changes"),
	}
}

// Snapshot captures project before a turn. A failure returns nil; Compute
// then relies on git alone.
func (e *Engine) Snapshot(ctx context.Context, project string) *Snapshot {
	if ctx.Err() != nil {
		return nil
	}
	snap, err := Capture(project, e.opts)
	if err != nil {
		e.log.Warn("pre-run snapshot failed", "project", project, "error", err)
		return nil
	}
	e.log.Debug("captured snapshot", "project", project, "files", len(snap.Files))
	return snap
}

// Compute builds the report for project after a turn. A repository with a
// commit is diffed through git; when that finds nothing, or there is no
// commit, the prior snapshot is compared to the current files. Failures
// degrade to an empty report.
func (e *Engine) Compute(ctx context.Context, project string, prior *Snapshot) *report.ChangeReport {
	isRepo := e.git.IsRepo(ctx, project)
	if isRepo && e.git.HasCommit(ctx, project) {
		r, err := e.git.CollectChanges(ctx, project, e.limit)
		if err != nil {
			e.log.Warn("git change collection failed", "project", project, "error", err)
		} else if !r.Empty() || prior == nil {
			return r
		}
	}

	if prior != nil {
		r, err := e.FromSnapshot(prior)
		if err == nil {
			return r
		}
		e.log.Warn("snapshot comparison failed", "project", project, "error", err)
	}

	if isRepo {
		// No commit and no snapshot: staged and unstaged changes are all
		// git can tell.
		if r, err := e.git.CollectChanges(ctx, project, e.limit); err == nil {
			return r
		}
	}
	return report.NewBuilder(e.limit).Build(report.SourceNone)
}

// FromSnapshot compares prior to the current content of its root. Files
// present on only one side count entirely as added or removed, as long as
// both walks reached them.
func (e *Engine) FromSnapshot(prior *Snapshot) (*report.ChangeReport, error) {
	current, err := Capture(prior.Root, e.opts)
	if err != nil {
		return nil, err
	}
	return Compare(prior, current, e.limit), nil
}

// Compare builds a report from two snapshots of the same root.
func Compare(before, after *Snapshot, limit int) *report.ChangeReport {
	b := report.NewBuilder(limit)

	paths := make([]string, 0, len(before.Files)+len(after.Files))
	for p := range before.Files {
		paths = append(paths, p)
	}
	for p := range after.Files {
		if !before.Has(p) {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)

	for _, p := range paths {
		// A truncated walk says nothing about files past its cutoff.
		if !before.Covers(p) || !after.Covers(p) {
			continue
		}
		DiffText(p, before.Files[p], after.Files[p], b)
	}
	return b.Build(report.SourceSnapshot)
}
