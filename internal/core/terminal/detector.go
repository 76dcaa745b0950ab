// Package terminal interprets captured pane output from hosted worker
// processes. The worker has no structured IPC; readiness, pending
// confirmations, and the context gauge are all recovered from raw,
// partially ANSI-coded terminal text.
package terminal

import (
	"regexp"
	"strconv"
	"strings"
)

// Default pattern sets for the claude CLI. Overridable via config.
var (
	DefaultReadyMarkers = []string{
		"? for shortcuts",
		"No recent activity",
	}
	DefaultConfirmPrompts = []string{
		"Do you want",
		"Would you like",
		"(y/n)",
		"[y/N]",
		"Press Enter to continue",
	}
	DefaultBusyMarkers = []string{
		"esc to interrupt",
		"ctrl+c to interrupt",
	}
)

// Detector matches worker lifecycle signals in captured pane text.
// Matching is case-insensitive over ANSI-stripped content.
type Detector struct {
	ready   []string
	confirm []string
	busy    []string
}

// NewDetector builds a detector from pattern lists; empty lists fall back to
// the claude CLI defaults.
func NewDetector(ready, confirm, busy []string) *Detector {
	if len(ready) == 0 {
		ready = DefaultReadyMarkers
	}
	if len(confirm) == 0 {
		confirm = DefaultConfirmPrompts
	}
	if len(busy) == 0 {
		busy = DefaultBusyMarkers
	}
	return &Detector{
		ready:   lowerAll(ready),
		confirm: lowerAll(confirm),
		busy:    lowerAll(busy),
	}
}

// IsReady reports whether the content shows the worker's input prompt.
func (d *Detector) IsReady(content string) bool {
	return containsAny(strings.ToLower(content), d.ready)
}

// NeedsConfirmation reports whether a permission/confirmation dialog is
// pending. Silence while this is true must not be mistaken for completion.
func (d *Detector) NeedsConfirmation(content string) bool {
	return containsAny(strings.ToLower(content), d.confirm)
}

// IsBusy reports whether an explicit busy indicator is visible.
func (d *Detector) IsBusy(content string) bool {
	return containsAny(strings.ToLower(content), d.busy)
}

var contextGaugePattern = regexp.MustCompile(`Context:\s*(\d{1,3})%`)

// ContextGauge extracts the worker's `Context: NN%` resource-pressure gauge.
// Returns false when no gauge is visible. The last occurrence wins since the
// pane scrolls oldest-first.
func ContextGauge(content string) (int, bool) {
	matches := contextGaugePattern.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || n > 100 {
		return 0, false
	}
	return n, true
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// spinnerRunes are animation characters stripped during normalization.
var spinnerRunes = []rune{
	'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏',
	'·', '✳', '✽', '✶', '✻', '✢',
}

// StripANSI removes ANSI escape sequences and control characters,
// keeping tab, newline, and carriage return.
func StripANSI(content string) string {
	content = ansiPattern.ReplaceAllString(content, "")

	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if (r >= 32 && r != 127) || r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize prepares content for change-detection hashing: strips ANSI,
// spinner animation runes, and trailing whitespace so cursor blinks and
// redraws do not register as output activity.
func Normalize(content string) string {
	result := StripANSI(content)

	for _, r := range spinnerRunes {
		result = strings.ReplaceAll(result, string(r), "")
	}

	lines := strings.Split(result, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func containsAny(content string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(content, n) {
			return true
		}
	}
	return false
}
