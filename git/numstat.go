package git

import (
	"strconv"
	"strings"
)

// NumstatEntry is one line of `git diff --numstat`.
type NumstatEntry struct {
	Path    string
	Added   int
	Removed int

	// Binary files report "-" for both counts; Added and Removed are zero.
	Binary bool
}

// ParseNumstat parses "added<TAB>removed<TAB>path" lines. Malformed lines
// are skipped.
func ParseNumstat(data []byte) []NumstatEntry {
	var entries []NumstatEntry
	for line := range strings.SplitSeq(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 || parts[2] == "" {
			continue
		}

		entry := NumstatEntry{Path: unquotePath(parts[2])}
		if parts[0] == "-" || parts[1] == "-" {
			entry.Binary = true
			entries = append(entries, entry)
			continue
		}
		added, err1 := strconv.Atoi(parts[0])
		removed, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || added < 0 || removed < 0 {
			continue
		}
		entry.Added = added
		entry.Removed = removed
		entries = append(entries, entry)
	}
	return entries
}

// unquotePath undoes git's C-style quoting of unusual paths.
func unquotePath(p string) string {
	if len(p) >= 2 && p[0] == '"' && p[len(p)-1] == '"' {
		if s, err := strconv.Unquote(p); err == nil {
			return s
		}
	}
	return p
}
