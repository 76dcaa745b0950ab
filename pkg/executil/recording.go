package executil

import (
	"context"
	"strings"
	"sync"
)

// RecordedCommand captures a command that was executed.
type RecordedCommand struct {
	Dir  string
	Cmd  string
	Args []string
}

// RecordingExecutor captures commands for testing.
// Configure Outputs and Errors maps to control return values.
type RecordingExecutor struct {
	mu       sync.Mutex
	Commands []RecordedCommand

	// Outputs maps command keys to their output. The key is either the bare
	// command name ("tmux") or command plus first argument ("tmux capture-pane");
	// the more specific key wins.
	Outputs map[string][]byte

	// Errors maps command keys to their error, with the same key scheme.
	Errors map[string]error

	// Missing lists binaries LookPath should report as absent.
	Missing []string
}

// Run records the command and returns configured output/error.
func (e *RecordingExecutor) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	return e.record("", cmd, args...)
}

// RunDir records the command with directory and returns configured output/error.
func (e *RecordingExecutor) RunDir(ctx context.Context, dir, cmd string, args ...string) ([]byte, error) {
	return e.record(dir, cmd, args...)
}

// LookPath returns an error for binaries listed in Missing.
func (e *RecordingExecutor) LookPath(name string) error {
	for _, m := range e.Missing {
		if m == name {
			return &missingBinaryError{name: name}
		}
	}
	return nil
}

type missingBinaryError struct{ name string }

func (e *missingBinaryError) Error() string {
	return e.name + ": executable file not found in $PATH"
}

func (e *RecordingExecutor) record(dir, cmd string, args ...string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Commands = append(e.Commands, RecordedCommand{
		Dir:  dir,
		Cmd:  cmd,
		Args: args,
	})

	keys := []string{cmd}
	if len(args) > 0 {
		keys = []string{cmd + " " + args[0], cmd}
	}

	var out []byte
	var err error
	for _, k := range keys {
		if out == nil && e.Outputs != nil {
			out = e.Outputs[k]
		}
		if err == nil && e.Errors != nil {
			err = e.Errors[k]
		}
	}
	return out, err
}

// CommandLines returns each recorded command as a single space-joined line,
// useful for asserting call order in tests.
func (e *RecordingExecutor) CommandLines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	lines := make([]string, 0, len(e.Commands))
	for _, c := range e.Commands {
		lines = append(lines, strings.Join(append([]string{c.Cmd}, c.Args...), " "))
	}
	return lines
}

// Reset clears recorded commands.
func (e *RecordingExecutor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = nil
}
