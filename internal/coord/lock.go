// Package coord implements the cross-process coordination protocol: leases
// over files and features, a planned-work queue, and crash recovery, all
// persisted under a shared directory. Multiple independent processes observe
// a consistent-enough view by re-reading the files; presence of a lock record
// is the lock.
package coord

import (
	"path/filepath"
	"strings"
	"time"
)

// AgentLock is a lease one agent holds over a set of files and features.
// Persisted as <agent-id>.lock in the locks directory. Locks expire by
// staleness, not by TTL countdown.
type AgentLock struct {
	AgentID           string    `json:"agentId"`
	Timestamp         time.Time `json:"timestamp"`
	Files             []string  `json:"files"`
	Features          []string  `json:"features"`
	Description       string    `json:"description"`
	EstimatedDuration string    `json:"estimatedDuration,omitempty"`
}

// SanitizePath strips traversal segments and leading slashes from an
// untrusted path. Claims name workspace-relative resources; a path that
// escapes the workspace would make conflicts undetectable.
func SanitizePath(p string) string {
	p = strings.TrimLeft(strings.TrimSpace(p), "/")
	parts := strings.Split(filepath.ToSlash(p), "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}

// SanitizePaths applies SanitizePath to each entry, dropping any that
// sanitize to empty.
func SanitizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if clean := SanitizePath(p); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
