// Package report holds the file- and line-level summary of what a turn
// changed, and renders it for logs and the CLI.
package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
)

// DefaultLineLimit caps preview lines per report.
const DefaultLineLimit = 200

// Source records which strategy produced a report.
type Source int

const (
	SourceNone Source = iota
	SourceGit
	SourceSnapshot
)

func (s Source) String() string {
	switch s {
	case SourceGit:
		return "git"
	case SourceSnapshot:
		return "snapshot"
	default:
		return "none"
	}
}

// FileStat is the per-file line count. Path is repository-relative.
type FileStat struct {
	Path    string
	Added   int
	Removed int
}

// LineKind is whether a preview line was added or removed.
type LineKind int

const (
	Added LineKind = iota
	Removed
)

// Marker returns the diff marker for the kind.
func (k LineKind) Marker() string {
	if k == Removed {
		return "-"
	}
	return "+"
}

// Position is an optional line number. The zero value is unknown.
type Position struct {
	N     int
	Valid bool
}

// At returns a known position.
func At(n int) Position {
	return Position{N: n, Valid: true}
}

// String renders the number, or "?" when it is unknown.
func (p Position) String() string {
	if !p.Valid {
		return "?"
	}
	return fmt.Sprintf("%d", p.N)
}

// Line is one added or removed line in the preview. Number is the position
// in the new version for Added lines and in the old version for Removed.
type Line struct {
	File   string
	Kind   LineKind
	Number Position
	Text   string
}

// ChangeReport summarizes one turn. It is built once and not mutated.
type ChangeReport struct {
	Files        []FileStat
	Lines        []Line
	AddedTotal   int
	RemovedTotal int
	Source       Source

	// Truncated is set when preview lines were dropped by the line limit.
	Truncated bool
}

// Empty reports whether the report contains no changed files.
func (r *ChangeReport) Empty() bool {
	return r == nil || len(r.Files) == 0
}

// Summary is a one-line description such as "2 files changed, +8 -1".
func (r *ChangeReport) Summary() string {
	if r.Empty() {
		return "No changes"
	}
	noun := "files"
	if len(r.Files) == 1 {
		noun = "file"
	}
	return fmt.Sprintf("%d %s changed, +%d -%d", len(r.Files), noun, r.AddedTotal, r.RemovedTotal)
}

// Render writes the summary, per-file stats and the line preview to w.
func (r *ChangeReport) Render(w io.Writer) error {
	var b strings.Builder
	b.WriteString(r.Summary())
	b.WriteByte('\n')
	if r.Empty() {
		_, err := io.WriteString(w, b.String())
		return err
	}

	width := 0
	for _, f := range r.Files {
		width = max(width, len(f.Path))
	}
	for _, f := range r.Files {
		fmt.Fprintf(&b, "  %-*s  +%d -%d\n", width, f.Path, f.Added, f.Removed)
	}

	file := ""
	for _, l := range r.Lines {
		if l.File != file {
			file = l.File
			fmt.Fprintf(&b, "\n%s\n", file)
		}
		fmt.Fprintf(&b, "  %s%-5s %s\n", l.Kind.Marker(), l.Number, l.Text)
	}
	if r.Truncated {
		b.WriteString("  ... (preview truncated)\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// String renders the report.
func (r *ChangeReport) String() string {
	var b strings.Builder
	_ = r.Render(&b)
	return b.String()
}

// Builder accumulates stats from several diff sources and produces a
// ChangeReport. Stats for the same path are summed.
type Builder struct {
	limit     int
	stats     map[string]*FileStat
	lines     []Line
	truncated bool
}

// NewBuilder returns a builder keeping at most limit preview lines.
// limit <= 0 uses DefaultLineLimit.
func NewBuilder(limit int) *Builder {
	if limit <= 0 {
		limit = DefaultLineLimit
	}
	return &Builder{limit: limit, stats: make(map[string]*FileStat)}
}

// AddStat merges counts for path. Negative counts are clamped to zero.
func (b *Builder) AddStat(path string, added, removed int) {
	if path == "" {
		return
	}
	st, ok := b.stats[path]
	if !ok {
		st = &FileStat{Path: path}
		b.stats[path] = st
	}
	st.Added += max(added, 0)
	st.Removed += max(removed, 0)
}

// AddLine appends a preview line unless the limit is reached.
func (b *Builder) AddLine(l Line) {
	if len(b.lines) >= b.limit {
		b.truncated = true
		return
	}
	b.lines = append(b.lines, l)
}

// Full reports whether further preview lines would be dropped.
func (b *Builder) Full() bool {
	return len(b.lines) >= b.limit
}

// HasStats reports whether any file was recorded.
func (b *Builder) HasStats() bool {
	return len(b.stats) > 0
}

// Build returns the report with files sorted by path and totals summed.
func (b *Builder) Build(source Source) *ChangeReport {
	r := &ChangeReport{
		Files:     make([]FileStat, 0, len(b.stats)),
		Lines:     slices.Clone(b.lines),
		Source:    source,
		Truncated: b.truncated,
	}
	for _, st := range b.stats {
		r.Files = append(r.Files, *st)
		r.AddedTotal += st.Added
		r.RemovedTotal += st.Removed
	}
	slices.SortFunc(r.Files, func(a, c FileStat) int { return cmp.Compare(a.Path, c.Path) })
	if len(r.Files) == 0 {
		r.Source = SourceNone
	}
	return r
}
