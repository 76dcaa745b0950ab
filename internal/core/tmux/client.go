// Package tmux provides the tmux session handle used to host worker agents.
// Each agent lives in its own window of one shared session; a window target
// string ("session:window") is the opaque pane handle the orchestrator holds.
package tmux

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/r3e-network/autopilot/pkg/executil"
)

// Client creates and manages the shared tmux session.
type Client struct {
	exec executil.Executor
}

// New creates a Client with the given executor.
func New(exec executil.Executor) *Client {
	return &Client{exec: exec}
}

// Available reports whether the tmux binary is on PATH.
func (c *Client) Available() bool {
	return c.exec.LookPath("tmux") == nil
}

// HasSession checks whether a tmux session with the given name exists.
func (c *Client) HasSession(ctx context.Context, name string) bool {
	_, err := c.exec.Run(ctx, "tmux", "has-session", "-t", name)
	return err == nil
}

// CreateSession creates a detached session with a single control window.
func (c *Client) CreateSession(ctx context.Context, name string) error {
	args := []string{"new-session", "-d", "-s", name, "-n", "control"}
	log.Debug().Strs("args", args).Msg("executing tmux new-session")
	if _, err := c.exec.Run(ctx, "tmux", args...); err != nil {
		return fmt.Errorf("tmux new-session: %w", err)
	}
	return nil
}

// NewWindow adds a named window to an existing session and returns its
// target string for later send/capture calls.
func (c *Client) NewWindow(ctx context.Context, session, name string) (string, error) {
	args := []string{"new-window", "-d", "-t", session, "-n", name}
	log.Debug().Strs("args", args).Msg("executing tmux new-window")
	if _, err := c.exec.Run(ctx, "tmux", args...); err != nil {
		return "", fmt.Errorf("tmux new-window %q: %w", name, err)
	}
	return session + ":" + name, nil
}

// SendKeys types text into the target window followed by Enter.
func (c *Client) SendKeys(ctx context.Context, target, text string) error {
	if _, err := c.exec.Run(ctx, "tmux", "send-keys", "-t", target, text, "Enter"); err != nil {
		return fmt.Errorf("tmux send-keys %q: %w", target, err)
	}
	return nil
}

// SendRaw sends a literal key chord (e.g. "C-c", "Escape") without Enter.
func (c *Client) SendRaw(ctx context.Context, target, keys string) error {
	if _, err := c.exec.Run(ctx, "tmux", "send-keys", "-t", target, keys); err != nil {
		return fmt.Errorf("tmux send-keys %q: %w", target, err)
	}
	return nil
}

// CapturePane returns the visible content of the target window's pane.
// -J joins wrapped lines and trims trailing spaces.
func (c *Client) CapturePane(ctx context.Context, target string) (string, error) {
	out, err := c.exec.Run(ctx, "tmux", "capture-pane", "-t", target, "-p", "-J")
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane %q: %w", target, err)
	}
	return string(out), nil
}

// SetPaneTitle sets the target pane's title, the visible status decoration
// for each agent. The window name is left alone so targets stay valid.
func (c *Client) SetPaneTitle(ctx context.Context, target, title string) error {
	if _, err := c.exec.Run(ctx, "tmux", "select-pane", "-t", target, "-T", title); err != nil {
		return fmt.Errorf("tmux select-pane %q: %w", target, err)
	}
	return nil
}

// KillWindow removes a single window, leaving the session up.
func (c *Client) KillWindow(ctx context.Context, target string) error {
	if _, err := c.exec.Run(ctx, "tmux", "kill-window", "-t", target); err != nil {
		return fmt.Errorf("tmux kill-window %q: %w", target, err)
	}
	return nil
}

// KillSession tears down a session. Missing sessions are not an error.
func (c *Client) KillSession(ctx context.Context, name string) error {
	out, err := c.exec.Run(ctx, "tmux", "kill-session", "-t", name)
	if err != nil {
		if strings.Contains(string(out), "can't find session") {
			return nil
		}
		return fmt.Errorf("tmux kill-session %q: %w", name, err)
	}
	return nil
}
