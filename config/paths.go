package config

import (
	"os"
	"path/filepath"
)

// SamePath returns true if a and b refer to the same filesystem entry.
// Case-insensitive filesystems and symlinks are handled by comparing
// device+inode via os.SameFile; paths that cannot be stat'd only match
// on exact string equality.
func SamePath(a, b string) bool {
	if a == b {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	if errA != nil || errB != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

// CanonicalProject returns the entry in known that refers to the same
// directory as path, or the absolute form of path when none does.
func CanonicalProject(known []string, path string) string {
	for _, k := range known {
		if SamePath(k, path) {
			return k
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
