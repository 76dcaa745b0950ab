package tmux

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/autopilot/pkg/executil"
)

func TestClient_CreateSession(t *testing.T) {
	exec := &executil.RecordingExecutor{}
	c := New(exec)

	require.NoError(t, c.CreateSession(context.Background(), "pool"))
	assert.Equal(t, []string{
		"tmux new-session -d -s pool -n control",
	}, exec.CommandLines())
}

func TestClient_NewWindowReturnsTarget(t *testing.T) {
	exec := &executil.RecordingExecutor{}
	c := New(exec)

	target, err := c.NewWindow(context.Background(), "pool", "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "pool:agent-1", target)
}

func TestClient_NewWindowError(t *testing.T) {
	exec := &executil.RecordingExecutor{
		Errors: map[string]error{"tmux new-window": errors.New("no such session")},
	}
	c := New(exec)

	_, err := c.NewWindow(context.Background(), "pool", "agent-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent-1")
}

func TestClient_SendKeysAppendsEnter(t *testing.T) {
	exec := &executil.RecordingExecutor{}
	c := New(exec)

	require.NoError(t, c.SendKeys(context.Background(), "pool:agent-1", "hello"))
	require.Len(t, exec.Commands, 1)
	assert.Equal(t, []string{"send-keys", "-t", "pool:agent-1", "hello", "Enter"}, exec.Commands[0].Args)
}

func TestClient_SendRawOmitsEnter(t *testing.T) {
	exec := &executil.RecordingExecutor{}
	c := New(exec)

	require.NoError(t, c.SendRaw(context.Background(), "pool:agent-1", "C-c"))
	require.Len(t, exec.Commands, 1)
	assert.Equal(t, []string{"send-keys", "-t", "pool:agent-1", "C-c"}, exec.Commands[0].Args)
}

func TestClient_CapturePane(t *testing.T) {
	exec := &executil.RecordingExecutor{
		Outputs: map[string][]byte{"tmux capture-pane": []byte("Context: 42%\n> ")},
	}
	c := New(exec)

	out, err := c.CapturePane(context.Background(), "pool:agent-1")
	require.NoError(t, err)
	assert.Equal(t, "Context: 42%\n> ", out)
}

func TestClient_KillSessionMissingIsOK(t *testing.T) {
	exec := &executil.RecordingExecutor{
		Outputs: map[string][]byte{"tmux kill-session": []byte("can't find session: pool")},
		Errors:  map[string]error{"tmux kill-session": errors.New("exit status 1")},
	}
	c := New(exec)

	assert.NoError(t, c.KillSession(context.Background(), "pool"))
}

func TestClient_Available(t *testing.T) {
	assert.True(t, New(&executil.RecordingExecutor{}).Available())
	assert.False(t, New(&executil.RecordingExecutor{Missing: []string{"tmux"}}).Available())
}

func TestClient_HasSession(t *testing.T) {
	exec := &executil.RecordingExecutor{
		Errors: map[string]error{"tmux has-session": errors.New("exit status 1")},
	}
	assert.False(t, New(exec).HasSession(context.Background(), "pool"))
	assert.True(t, New(&executil.RecordingExecutor{}).HasSession(context.Background(), "pool"))
}
