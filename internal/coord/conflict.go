package coord

import (
	"fmt"
	"strings"
)

// ConflictError reports why a claim or plan overlaps existing locks. Conflict
// is an expected, frequent outcome: callers should retry with different
// resources or wait, not treat it as exceptional.
type ConflictError struct {
	Reasons []string
}

func (e *ConflictError) Error() string {
	return "work conflict: " + strings.Join(e.Reasons, "; ")
}

// CheckConflicts compares candidate files and features against every held
// lock and returns one human-readable reason per overlap. Matching is exact:
// two locks touching different files in the same directory do not conflict.
// Locks held by requester itself are ignored.
func CheckConflicts(requester string, files, features []string, locks []AgentLock) []string {
	var reasons []string
	for _, lock := range locks {
		if lock.AgentID == requester {
			continue
		}
		for _, f := range files {
			for _, held := range lock.Files {
				if f == held {
					reasons = append(reasons, fmt.Sprintf("File %s locked by agent %s", f, lock.AgentID))
				}
			}
		}
		for _, feat := range features {
			for _, held := range lock.Features {
				if feat == held {
					reasons = append(reasons, fmt.Sprintf("Feature %s locked by agent %s", feat, lock.AgentID))
				}
			}
		}
	}
	return reasons
}
