package changes

import (
	"github.com/zhubert/plural-agent/report"
)

// Span is the unmatched middle of two line sequences once their longest
// common prefix and suffix are removed. Starts are 0-based indexes.
type Span struct {
	OldStart, OldLines int
	NewStart, NewLines int
}

// Empty reports whether the sequences were identical.
func (s Span) Empty() bool {
	return s.OldLines == 0 && s.NewLines == 0
}

// TrimSpan finds the changed middle of before and after in linear time.
func TrimSpan(before, after []string) Span {
	prefix := 0
	for prefix < len(before) && prefix < len(after) && before[prefix] == after[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(before)-prefix && suffix < len(after)-prefix &&
		before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}
	return Span{
		OldStart: prefix,
		OldLines: len(before) - prefix - suffix,
		NewStart: prefix,
		NewLines: len(after) - prefix - suffix,
	}
}

// DiffText records the change from before to after for file in b: the
// unmatched old span as removed lines, the unmatched new span as added.
// Equal texts record nothing. It returns the counts recorded.
func DiffText(file, before, after string, b *report.Builder) (added, removed int) {
	if before == after {
		return 0, 0
	}
	oldLines, newLines := splitLines(before), splitLines(after)
	span := TrimSpan(oldLines, newLines)
	if span.Empty() {
		return 0, 0
	}

	b.AddStat(file, span.NewLines, span.OldLines)
	for i := range span.OldLines {
		idx := span.OldStart + i
		b.AddLine(report.Line{File: file, Kind: report.Removed, Number: report.At(idx + 1), Text: oldLines[idx]})
	}
	for i := range span.NewLines {
		idx := span.NewStart + i
		b.AddLine(report.Line{File: file, Kind: report.Added, Number: report.At(idx + 1), Text: newLines[idx]})
	}
	return span.NewLines, span.OldLines
}
