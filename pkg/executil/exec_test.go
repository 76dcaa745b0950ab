package executil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingExecutor_KeyPrecedence(t *testing.T) {
	ctx := context.Background()

	exec := &RecordingExecutor{
		Outputs: map[string][]byte{
			"tmux":              []byte("generic"),
			"tmux capture-pane": []byte("pane content"),
		},
	}

	out, err := exec.Run(ctx, "tmux", "capture-pane", "-t", "s:0")
	require.NoError(t, err)
	assert.Equal(t, "pane content", string(out), "specific key should win over bare command name")

	out, err = exec.Run(ctx, "tmux", "has-session", "-t", "s")
	require.NoError(t, err)
	assert.Equal(t, "generic", string(out))
}

func TestRecordingExecutor_CommandLines(t *testing.T) {
	ctx := context.Background()

	exec := &RecordingExecutor{}
	_, _ = exec.Run(ctx, "tmux", "kill-session", "-t", "pool")
	_, _ = exec.RunDir(ctx, "/tmp", "tmux", "new-session", "-d")

	assert.Equal(t, []string{
		"tmux kill-session -t pool",
		"tmux new-session -d",
	}, exec.CommandLines())

	exec.Reset()
	assert.Empty(t, exec.Commands)
}

func TestRecordingExecutor_LookPath(t *testing.T) {
	exec := &RecordingExecutor{Missing: []string{"tmux"}}

	require.Error(t, exec.LookPath("tmux"))
	require.NoError(t, exec.LookPath("git"))
}
