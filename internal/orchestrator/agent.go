// Package orchestrator owns the pool of worker sessions: launching with an
// adaptive stagger, health-checking via heartbeats and pane inspection,
// restarting with exponential backoff, and scaling.
package orchestrator

import (
	"time"

	"github.com/r3e-network/autopilot/internal/core/terminal"
)

// Status is an agent's lifecycle state.
type Status string

// Agent statuses. Disabled is terminal: once an agent accumulates max errors
// it is never auto-restarted; only an explicit stop or rescale clears it.
const (
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusWorking  Status = "working"
	StatusIdle     Status = "idle"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

// Agent is one worker slot, owned exclusively by the Orchestrator.
type Agent struct {
	ID            string    `json:"id"`
	Status        Status    `json:"status"`
	ContextUsage  int       `json:"contextUsage"` // 0-100, reported by the worker
	LastActivity  time.Time `json:"lastActivity"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	RestartCount  int       `json:"restartCount"`
	ErrorCount    int       `json:"errors"`
	WorkCycles    int       `json:"workCycles"`

	// Runtime-only state, rebuilt on restart rather than persisted.
	target     string            // tmux window target
	tracker    *terminal.Tracker // readiness state machine
	chunkID    string            // active work chunk, if any
	chunkItems []string          // item ids inside chunkID
}

// Eligible reports whether the agent can accept new work.
func (a *Agent) Eligible() bool {
	return a.Status == StatusIdle || a.Status == StatusReady
}

// CanStall reports whether a stale heartbeat means the agent is stuck. An
// idle or ready agent parked at its prompt emits no output; only agents
// expected to be producing output can stall.
func (a *Agent) CanStall() bool {
	switch a.Status {
	case StatusStarting, StatusWorking, StatusError:
		return true
	}
	return false
}

// RestartBackoff computes the sleep before restart attempt k (1-based):
// min(300, 10 * 2^(k-1)) seconds.
func RestartBackoff(restartCount int) time.Duration {
	if restartCount < 1 {
		restartCount = 1
	}
	secs := 10 * (1 << (restartCount - 1))
	if secs > 300 {
		secs = 300
	}
	return time.Duration(secs) * time.Second
}
