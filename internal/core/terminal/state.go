package terminal

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// State is one step of the readiness state machine driven by captured output.
type State string

// Worker readiness states.
const (
	// StateIdle: no task has been sent since the last completion.
	StateIdle State = "idle"
	// StateAwaitingOutput: a task is running; output is still changing or the
	// quiescence window has not elapsed.
	StateAwaitingOutput State = "awaiting_output"
	// StateAwaitingConfirmation: a confirmation prompt is pending. The
	// quiescence timer is paused while here.
	StateAwaitingConfirmation State = "awaiting_confirmation"
	// StateReady: the worker shows its input prompt, or output has been
	// quiescent for the debounce window.
	StateReady State = "ready"
)

// QuiescenceWindow is how long output must stay unchanged before a working
// agent with no explicit ready marker counts as done.
const QuiescenceWindow = 10 * time.Second

// Tracker is the per-agent readiness state machine. It consumes successive
// pane captures and reports the worker's state.
type Tracker struct {
	detector *Detector

	state      State
	lastHash   string
	lastChange time.Time
	quiet      time.Duration

	now func() time.Time
}

// NewTracker creates a tracker in the idle state.
func NewTracker(detector *Detector) *Tracker {
	return &Tracker{
		detector: detector,
		state:    StateIdle,
		quiet:    QuiescenceWindow,
		now:      time.Now,
	}
}

// BeginTask marks the start of a task: the tracker leaves idle/ready and
// waits for output.
func (t *Tracker) BeginTask() {
	t.state = StateAwaitingOutput
	t.lastHash = ""
	t.lastChange = t.now()
}

// State returns the current state without consuming new output.
func (t *Tracker) State() State {
	return t.state
}

// LastChange returns when output was last observed changing. Used as a
// liveness signal by the orchestrator's heartbeat refresh.
func (t *Tracker) LastChange() time.Time {
	return t.lastChange
}

// Observe consumes one pane capture and returns the resulting state.
//
// Transition rules, in priority order:
//  1. A confirmation prompt forces awaiting_confirmation and pauses the
//     quiescence timer (silence during a pending dialog is not completion).
//  2. A ready marker forces ready, unless a busy indicator is also visible.
//  3. Changed output keeps (or re-enters) awaiting_output.
//  4. Unchanged output for the quiescence window promotes awaiting_output
//     to ready.
func (t *Tracker) Observe(content string) State {
	clean := Normalize(content)
	now := t.now()

	if t.detector.NeedsConfirmation(clean) {
		t.state = StateAwaitingConfirmation
		t.lastChange = now
		t.updateHash(clean)
		return t.state
	}

	busy := t.detector.IsBusy(clean)
	if t.detector.IsReady(clean) && !busy {
		t.state = StateReady
		t.updateHash(clean)
		return t.state
	}

	changed := t.updateHash(clean)
	switch {
	case changed || busy:
		t.lastChange = now
		if t.state == StateAwaitingConfirmation || t.state == StateAwaitingOutput {
			t.state = StateAwaitingOutput
		}
	case t.state == StateAwaitingOutput && now.Sub(t.lastChange) >= t.quiet:
		t.state = StateReady
	case t.state == StateAwaitingConfirmation:
		// Prompt cleared without new output; treat as running again.
		t.state = StateAwaitingOutput
		t.lastChange = now
	}

	return t.state
}

// updateHash returns true if the normalized content differs from the last
// observation.
func (t *Tracker) updateHash(content string) bool {
	h := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(h[:])
	if hash == t.lastHash {
		return false
	}
	t.lastHash = hash
	return true
}
