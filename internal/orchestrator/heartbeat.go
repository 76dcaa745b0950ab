package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Heartbeats manages the per-agent liveness timestamp files. Exactly one
// heartbeat file exists per non-disabled agent; its age is the sole staleness
// proxy for a worker.
type Heartbeats struct {
	dir string
	now func() time.Time
}

// NewHeartbeats creates a heartbeat store rooted at dir.
func NewHeartbeats(dir string) *Heartbeats {
	return &Heartbeats{dir: dir, now: time.Now}
}

// Init creates the heartbeat directory.
func (h *Heartbeats) Init() error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("create heartbeat dir: %w", err)
	}
	return nil
}

// Touch overwrites the agent's heartbeat with the current timestamp.
func (h *Heartbeats) Touch(agentID string) error {
	ts := h.now().UTC().Format(time.RFC3339)
	if err := os.WriteFile(h.path(agentID), []byte(ts+"\n"), 0o644); err != nil {
		return fmt.Errorf("write heartbeat for %s: %w", agentID, err)
	}
	return nil
}

// Age returns how long ago the agent's heartbeat was last touched.
func (h *Heartbeats) Age(agentID string) (time.Duration, error) {
	data, err := os.ReadFile(h.path(agentID))
	if err != nil {
		return 0, fmt.Errorf("read heartbeat for %s: %w", agentID, err)
	}

	ts, err := time.Parse(time.RFC3339, string(trimNewline(data)))
	if err != nil {
		return 0, fmt.Errorf("parse heartbeat for %s: %w", agentID, err)
	}
	return h.now().Sub(ts), nil
}

// Remove deletes the agent's heartbeat file. Missing files are not an error.
func (h *Heartbeats) Remove(agentID string) error {
	if err := os.Remove(h.path(agentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove heartbeat for %s: %w", agentID, err)
	}
	return nil
}

// RemoveAll deletes every heartbeat file.
func (h *Heartbeats) RemoveAll() error {
	if err := os.RemoveAll(h.dir); err != nil {
		return fmt.Errorf("remove heartbeat dir: %w", err)
	}
	return nil
}

func (h *Heartbeats) path(agentID string) string {
	return filepath.Join(h.dir, agentID+".heartbeat")
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
