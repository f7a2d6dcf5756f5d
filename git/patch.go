package git

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zhubert/plural-agent/report"
)

var hunkHeaderRe = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// HunkCursor tracks the current line in the old and new versions while
// walking a hunk body.
type HunkCursor struct {
	Old int
	New int

	// OldLeft and NewLeft count the body lines still expected on each side.
	OldLeft int
	NewLeft int
}

// ParseHunkHeader parses "@@ -oldStart[,oldCount] +newStart[,newCount] @@".
// An omitted count is 1.
func ParseHunkHeader(line string) (HunkCursor, bool) {
	m := hunkHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return HunkCursor{}, false
	}
	count := func(s string) int {
		if s == "" {
			return 1
		}
		n, _ := strconv.Atoi(s)
		return n
	}
	oldStart, _ := strconv.Atoi(m[1])
	newStart, _ := strconv.Atoi(m[3])
	return HunkCursor{Old: oldStart, New: newStart, OldLeft: count(m[2]), NewLeft: count(m[4])}, true
}

// Added returns the new-side position of a "+" line and advances.
func (c *HunkCursor) Added() report.Position {
	p := report.At(c.New)
	c.New++
	c.NewLeft--
	return p
}

// Removed returns the old-side position of a "-" line and advances.
func (c *HunkCursor) Removed() report.Position {
	p := report.At(c.Old)
	c.Old++
	c.OldLeft--
	return p
}

// Context advances both sides past an unchanged line.
func (c *HunkCursor) Context() {
	c.Old++
	c.New++
	c.OldLeft--
	c.NewLeft--
}

// Done reports whether the hunk body has been consumed.
func (c *HunkCursor) Done() bool {
	return c.OldLeft <= 0 && c.NewLeft <= 0
}

// ParsePatch walks unified diff output and adds every added and removed
// line to b. The builder enforces its own preview limit.
func ParsePatch(patch string, b *report.Builder) {
	var (
		file    string
		oldPath string
		cursor  HunkCursor
		inHunk  bool
	)
	for line := range strings.SplitSeq(patch, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if inHunk {
			switch {
			case strings.HasPrefix(line, "+"):
				b.AddLine(report.Line{File: file, Kind: report.Added, Number: cursor.Added(), Text: line[1:]})
			case strings.HasPrefix(line, "-"):
				b.AddLine(report.Line{File: file, Kind: report.Removed, Number: cursor.Removed(), Text: line[1:]})
			case strings.HasPrefix(line, " "):
				cursor.Context()
			case strings.HasPrefix(line, `\`):
				// "\ No newline at end of file"
				continue
			default:
				inHunk = false
			}
			if inHunk {
				inHunk = !cursor.Done()
				continue
			}
		}

		switch {
		case strings.HasPrefix(line, "diff --git "):
			file, oldPath = "", ""
		case strings.HasPrefix(line, "--- "):
			oldPath = patchPath(line[4:])
		case strings.HasPrefix(line, "+++ "):
			file = patchPath(line[4:])
			if file == "" {
				file = oldPath
			}
		case strings.HasPrefix(line, "@@ "):
			if c, ok := ParseHunkHeader(line); ok {
				cursor = c
				inHunk = !cursor.Done()
			}
		}
	}
}

// patchPath strips the a/ or b/ prefix from a patch header path. /dev/null
// becomes "".
func patchPath(p string) string {
	if i := strings.IndexByte(p, '\t'); i >= 0 {
		p = p[:i]
	}
	p = unquotePath(p)
	if p == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}
