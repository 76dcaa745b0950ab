package work

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"
)

// CompletedMarker prefixes report lines whose items have been finished.
// Marked lines are skipped on re-parse.
const CompletedMarker = "[COMPLETED] "

// Report line grammar:
//
//	path:line:col: error: msg      -> error, high
//	path:line:col: warning: msg    -> warning, medium
//	path: TODO: msg                -> improvement, low
//	path: IMPROVEMENT: msg         -> improvement, medium
//	path: FEATURE: msg             -> feature, medium
var (
	diagnosticPattern = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s*(error|warning):\s*(.+)$`)
	taggedPattern     = regexp.MustCompile(`^(.+?):\s*(TODO|IMPROVEMENT|FEATURE):\s*(.+)$`)
)

// LineID returns the stable identity of a report line: a content hash that
// survives re-parses. The completed marker is excluded so a line hashes the
// same before and after it is marked.
func LineID(line string) string {
	line = strings.TrimPrefix(strings.TrimSpace(line), CompletedMarker)
	h := sha256.Sum256([]byte(line))
	return hex.EncodeToString(h[:8])
}

// ParseLine parses one report line into an Item. Returns false for blank or
// unrecognized lines; unrecognized is not an error.
func ParseLine(line string) (Item, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, CompletedMarker) {
		return Item{}, false
	}

	if m := diagnosticPattern.FindStringSubmatch(trimmed); m != nil {
		lineNo, _ := strconv.Atoi(m[2])
		item := Item{
			ID:      LineID(trimmed),
			File:    m[1],
			Line:    lineNo,
			Message: m[5],
			Status:  StatusPending,
		}
		if m[4] == "error" {
			item.Type = TypeError
			item.Priority = PriorityHigh
		} else {
			item.Type = TypeWarning
			item.Priority = PriorityMedium
		}
		return item, true
	}

	if m := taggedPattern.FindStringSubmatch(trimmed); m != nil {
		item := Item{
			ID:      LineID(trimmed),
			File:    m[1],
			Message: m[3],
			Status:  StatusPending,
		}
		switch m[2] {
		case "TODO":
			item.Type = TypeImprovement
			item.Priority = PriorityLow
		case "IMPROVEMENT":
			item.Type = TypeImprovement
			item.Priority = PriorityMedium
		case "FEATURE":
			item.Type = TypeFeature
			item.Priority = PriorityMedium
		}
		return item, true
	}

	return Item{}, false
}
