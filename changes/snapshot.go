package changes

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhubert/plural-agent/config"
	agenterrors "github.com/zhubert/plural-agent/errors"
	"github.com/zhubert/plural-agent/logger"
)

// Options bound what a snapshot captures.
type Options struct {
	// MaxFileBytes skips files larger than this.
	MaxFileBytes int64

	// MaxFiles stops the walk after this many captured files.
	MaxFiles int

	// Exclude holds glob patterns matched against base names and
	// root-relative paths. Matching directories are not descended.
	Exclude []string
}

// OptionsFrom converts the snapshot section of the configuration.
func OptionsFrom(s config.SnapshotConfig) Options {
	return Options{MaxFileBytes: s.MaxFileBytes, MaxFiles: s.MaxFiles, Exclude: s.Exclude}
}

func (o Options) withDefaults() Options {
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = config.DefaultMaxFileBytes
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = config.DefaultMaxFiles
	}
	if o.Exclude == nil {
		o.Exclude = config.DefaultExcludes
	}
	return o
}

// Snapshot is the text content of a project's files at one moment, keyed by
// slash-separated path relative to Root.
type Snapshot struct {
	Root  string
	Files map[string]string

	// Truncated is set when MaxFiles stopped the walk early. Stopped is
	// the first file the walk did not capture.
	Truncated bool
	Stopped   string
}

// Covers reports whether the walk reached path: always when the walk
// finished, otherwise only for paths that come before Stopped in walk order.
func (s *Snapshot) Covers(path string) bool {
	if s == nil {
		return false
	}
	return !s.Truncated || walkOrderLess(path, s.Stopped)
}

// walkOrderLess compares slash-separated paths the way filepath.WalkDir
// visits them: element by element, each directory's entries by name.
func walkOrderLess(a, b string) bool {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}
	return len(as) < len(bs)
}

// Has reports whether path was captured.
func (s *Snapshot) Has(path string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Files[path]
	return ok
}

// isExcluded reports whether rel (or its base name) matches a pattern.
func isExcluded(rel string, patterns []string) bool {
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

// isBinary reports whether data looks like a binary file.
func isBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}

// Capture reads every regular, non-excluded text file under root that fits
// the size limit. Unreadable entries are skipped.
func Capture(root string, opts Options) (*Snapshot, error) {
	opts = opts.withDefaults()
	info, err := os.Stat(root)
	if err != nil {
		return nil, agenterrors.E(agenterrors.Op("changes.Capture"), agenterrors.KindIO, err)
	}
	if !info.IsDir() {
		return nil, agenterrors.E(agenterrors.Op("changes.Capture"), agenterrors.KindInvalid, root+" is not a directory")
	}

	snap := &Snapshot{Root: root, Files: make(map[string]string)}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if isExcluded(rel, opts.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || isExcluded(rel, opts.Exclude) {
			return nil
		}
		fi, err := d.Info()
		if err != nil || fi.Size() > opts.MaxFileBytes {
			return nil
		}
		if len(snap.Files) >= opts.MaxFiles {
			snap.Truncated = true
			snap.Stopped = rel
			return filepath.SkipAll
		}

		data, err := os.ReadFile(path)
		if err != nil || isBinary(data) {
			return nil
		}
		snap.Files[rel] = string(data)
		return nil
	})
	if err != nil {
		return nil, agenterrors.E(agenterrors.Op("changes.Capture"), agenterrors.KindIO, err)
	}

	if snap.Truncated {
		logger.WithComponent("changes").Warn("snapshot truncated", "root", root, "maxFiles", opts.MaxFiles)
	}
	return snap, nil
}

// splitLines splits text into lines without their terminators. A trailing
// newline does not produce an empty final line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
