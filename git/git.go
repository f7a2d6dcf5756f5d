// Package git collects what changed in a working tree after an agent turn.
//
// The package is organized into focused modules:
//   - service.go: GitService struct and constructor, repository probes
//   - numstat.go: numstat parsing
//   - patch.go: zero-context patch parsing with hunk cursors
//   - status.go: CollectChanges, tracked and untracked files
package git
