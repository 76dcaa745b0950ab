package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/autopilot/internal/core/config"
	"github.com/r3e-network/autopilot/internal/core/tmux"
	"github.com/r3e-network/autopilot/internal/work"
	"github.com/r3e-network/autopilot/pkg/executil"
)

const paneReady = "─────────────\n> \n? for shortcuts"

func newTestOrchestrator(t *testing.T) (*Orchestrator, *executil.RecordingExecutor) {
	t.Helper()

	rec := &executil.RecordingExecutor{
		Errors: map[string]error{"tmux has-session": errors.New("no session")},
	}

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.Agents.StaggerBaseline = "1ms"

	dist, err := work.NewDistributor(cfg.WorkStatePath(), cfg.Work.ChunkSize)
	require.NoError(t, err)

	o := New(cfg, tmux.New(rec), dist, nil)
	o.sleep = func(context.Context, time.Duration) {}

	require.NoError(t, o.Initialize(context.Background()))
	return o, rec
}

func TestStartAgents(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, o.StartAgents(ctx, 2))

	lines := rec.CommandLines()
	assert.Contains(t, lines, "tmux new-session -d -s autopilot -n control")
	assert.Contains(t, lines, "tmux new-window -d -t autopilot -n agent-1")
	assert.Contains(t, lines, "tmux new-window -d -t autopilot -n agent-2")

	var starts int
	for _, line := range lines {
		if strings.Contains(line, "AUTOPILOT_SEED=") && strings.Contains(line, o.cfg.Worker.Command) {
			starts++
		}
	}
	assert.Equal(t, 2, starts, "each agent gets a seeded start command")

	agents := o.Agents()
	require.Len(t, agents, 2)
	for _, a := range agents {
		assert.Equal(t, StatusStarting, a.Status)
		_, err := o.heartbeats.Age(a.ID)
		assert.NoError(t, err, "heartbeat file exists for %s", a.ID)
	}

	assert.ErrorIs(t, o.StartAgents(ctx, 1), ErrAlreadyRunning)
}

func TestStartAgentsRejectsOverMax(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	err := o.StartAgents(context.Background(), o.cfg.Agents.Max+1)
	assert.ErrorIs(t, err, ErrTooManyAgents)
	assert.Empty(t, o.Agents())
}

func TestAdaptiveStagger(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	baseline := o.cfg.StaggerBaseline()
	o.staggerDelay = baseline

	o.adjustStagger(false)
	o.adjustStagger(false)
	assert.Equal(t, 4*baseline, o.staggerDelay, "failures double the delay")

	o.adjustStagger(true)
	assert.Equal(t, 2*baseline, o.staggerDelay)
	o.adjustStagger(true)
	o.adjustStagger(true)
	assert.Equal(t, baseline, o.staggerDelay, "delay never drops below baseline")

	o.staggerDelay = 50 * time.Second
	o.adjustStagger(false)
	assert.Equal(t, maxStaggerDelay, o.staggerDelay, "delay is capped")
}

func TestHealthCheckRestartsStuckAgent(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))

	// Backdate the heartbeat past the staleness threshold.
	stale := time.Now().UTC().Add(-125 * time.Second).Format(time.RFC3339)
	hbPath := filepath.Join(o.cfg.HeartbeatDir(), "agent-1.heartbeat")
	require.NoError(t, os.WriteFile(hbPath, []byte(stale+"\n"), 0o644))

	var slept []time.Duration
	o.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }
	rec.Reset()

	o.CheckAgentHealth(ctx)

	agent := o.Agents()[0]
	assert.Equal(t, StatusStarting, agent.Status, "restarted agent goes back to starting")
	assert.Equal(t, 1, agent.ErrorCount)
	assert.Equal(t, 1, agent.RestartCount)
	assert.Equal(t, []time.Duration{10 * time.Second}, slept, "first restart backs off 10s")

	lines := rec.CommandLines()
	assert.Contains(t, lines, "tmux send-keys -t autopilot:agent-1 C-c")
	assert.Contains(t, lines, "tmux send-keys -t autopilot:agent-1 clear Enter")

	age, err := o.heartbeats.Age("agent-1")
	require.NoError(t, err)
	assert.Less(t, age, time.Second, "heartbeat refreshed after restart")
}

func TestHealthCheckDisablesAfterMaxErrors(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	o.cfg.Agents.MaxErrors = 1
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))

	stale := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)
	hbPath := filepath.Join(o.cfg.HeartbeatDir(), "agent-1.heartbeat")
	require.NoError(t, os.WriteFile(hbPath, []byte(stale+"\n"), 0o644))

	o.CheckAgentHealth(ctx)

	agent := o.Agents()[0]
	assert.Equal(t, StatusDisabled, agent.Status)
	assert.Equal(t, 1, agent.ErrorCount)
	assert.Equal(t, 0, agent.RestartCount, "disabled agents are not restarted")
	assert.NoFileExists(t, hbPath)

	// Disabled agents are skipped on subsequent passes.
	o.CheckAgentHealth(ctx)
	assert.Equal(t, 1, o.Agents()[0].ErrorCount)
}

func TestHealthCheckLeavesParkedAgentAlone(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))

	rec.Outputs = map[string][]byte{"tmux capture-pane": []byte(paneReady)}
	o.CheckAgentHealth(ctx)
	require.Equal(t, StatusReady, o.Agents()[0].Status)

	// A parked agent emits no output, so its heartbeat ages indefinitely.
	stale := time.Now().UTC().Add(-125 * time.Second).Format(time.RFC3339)
	hbPath := filepath.Join(o.cfg.HeartbeatDir(), "agent-1.heartbeat")
	require.NoError(t, os.WriteFile(hbPath, []byte(stale+"\n"), 0o644))

	o.CheckAgentHealth(ctx)

	agent := o.Agents()[0]
	assert.Equal(t, StatusReady, agent.Status, "a ready agent is never declared stuck")
	assert.Equal(t, 0, agent.ErrorCount)
	assert.Equal(t, 0, agent.RestartCount)
}

func TestSendWorkRefreshesHeartbeat(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))
	o.agents["agent-1"].Status = StatusReady

	stale := time.Now().UTC().Add(-125 * time.Second).Format(time.RFC3339)
	hbPath := filepath.Join(o.cfg.HeartbeatDir(), "agent-1.heartbeat")
	require.NoError(t, os.WriteFile(hbPath, []byte(stale+"\n"), 0o644))

	require.NoError(t, o.SendWorkToAgent(ctx, "agent-1", "fix the build"))

	age, err := o.heartbeats.Age("agent-1")
	require.NoError(t, err)
	assert.Less(t, age, time.Second, "dispatch resets the liveness clock")

	o.CheckAgentHealth(ctx)
	assert.Equal(t, 0, o.Agents()[0].ErrorCount)
}

func TestHealthCheckMarksAgentReady(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))

	rec.Outputs = map[string][]byte{"tmux capture-pane": []byte(paneReady)}
	o.CheckAgentHealth(ctx)

	assert.Equal(t, StatusReady, o.Agents()[0].Status)
}

func TestDistributeAndCompleteWork(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))
	o.agents["agent-1"].Status = StatusReady

	workFile := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(workFile, []byte(
		"src/a.go:10:2: error: undefined variable\n"+
			"src/b.go:4:1: warning: unused import\n"), 0o644))
	n, err := o.dist.LoadWorkFromFile(workFile)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	o.DistributeWork(ctx)

	agent := o.Agents()[0]
	assert.Equal(t, StatusWorking, agent.Status)
	assert.Equal(t, 1, agent.WorkCycles)
	stats := o.dist.Statistics()
	assert.Equal(t, 2, stats.Assigned)
	assert.Equal(t, 0, stats.Pending)

	var prompt string
	for _, line := range rec.CommandLines() {
		if strings.Contains(line, "undefined variable") {
			prompt = line
		}
	}
	require.NotEmpty(t, prompt, "task prompt includes item details")
	assert.Contains(t, prompt, "src/a.go:10")

	// Worker returns to its prompt: the chunk completes and the agent idles.
	rec.Outputs = map[string][]byte{"tmux capture-pane": []byte(paneReady)}
	o.CheckAgentHealth(ctx)

	agent = o.Agents()[0]
	assert.Equal(t, StatusIdle, agent.Status)
	stats = o.dist.Statistics()
	assert.Equal(t, 0, stats.Assigned)
	assert.Equal(t, 2, stats.Completed)
}

func TestDistributeWorkSkipsBusyAgents(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))
	// Still starting: not eligible.

	workFile := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(workFile, []byte("src/a.go:1:1: error: boom\n"), 0o644))
	_, err := o.dist.LoadWorkFromFile(workFile)
	require.NoError(t, err)

	o.DistributeWork(ctx)

	assert.Equal(t, StatusStarting, o.Agents()[0].Status)
	assert.Equal(t, 1, o.dist.Statistics().Pending)
}

func TestScaleAgents(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 2))

	require.NoError(t, o.ScaleAgents(ctx, 3))
	assert.Len(t, o.Agents(), 3)

	// agent-1 has done the most work; scale-down spares it.
	o.agents["agent-1"].WorkCycles = 5
	rec.Reset()
	require.NoError(t, o.ScaleAgents(ctx, 1))

	agents := o.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "agent-1", agents[0].ID)

	lines := rec.CommandLines()
	assert.Contains(t, lines, "tmux kill-window -t autopilot:agent-2")
	assert.Contains(t, lines, "tmux kill-window -t autopilot:agent-3")
}

func TestScaleUpSkipsLiveIndexes(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 3))
	o.agents["agent-2"].WorkCycles = 3
	o.agents["agent-3"].WorkCycles = 7

	// agent-1 is the least invested and goes first.
	require.NoError(t, o.ScaleAgents(ctx, 2))
	rec.Reset()

	require.NoError(t, o.ScaleAgents(ctx, 3))

	agents := o.Agents()
	require.Len(t, agents, 3)
	ids := []string{agents[0].ID, agents[1].ID, agents[2].ID}
	assert.Equal(t, []string{"agent-2", "agent-3", "agent-4"}, ids,
		"the freed slot gets a fresh id, not a live one")
	assert.Equal(t, 7, o.agents["agent-3"].WorkCycles, "live agents keep their history")
	assert.Contains(t, rec.CommandLines(), "tmux new-window -d -t autopilot -n agent-4")
}

func TestStopAgents(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))

	require.NoError(t, o.StopAgents(ctx))

	assert.Empty(t, o.Agents())
	assert.Contains(t, rec.CommandLines(), "tmux kill-session -t autopilot")
	assert.NoFileExists(t, o.cfg.StatePath())
	assert.NoDirExists(t, o.cfg.HeartbeatDir())
}

func TestStopAgentsPreservesSession(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	o.cfg.Agents.PreserveSession = true
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 1))
	rec.Reset()

	require.NoError(t, o.StopAgents(ctx))
	assert.NotContains(t, rec.CommandLines(), "tmux kill-session -t autopilot")
}

func TestBroadcastSkipsDisabled(t *testing.T) {
	o, rec := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 2))
	o.agents["agent-2"].Status = StatusDisabled
	rec.Reset()

	o.Broadcast(ctx, "git status")

	lines := rec.CommandLines()
	assert.Contains(t, lines, "tmux send-keys -t autopilot:agent-1 git status Enter")
	assert.NotContains(t, lines, "tmux send-keys -t autopilot:agent-2 git status Enter")
}

func TestStatePersistRoundTrip(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	require.NoError(t, o.StartAgents(ctx, 2))
	o.agents["agent-2"].WorkCycles = 4
	o.agents["agent-2"].Status = StatusWorking
	require.NoError(t, func() error { o.mu.Lock(); defer o.mu.Unlock(); return o.persistStateLocked() }())

	restored := New(o.cfg, o.tmux, o.dist, nil)
	found, err := restored.LoadState()
	require.NoError(t, err)
	require.True(t, found)

	agents := restored.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, StatusWorking, agents[1].Status)
	assert.Equal(t, 4, agents[1].WorkCycles)

	// External status tooling reads the same file.
	state, found, err := ReadState(o.cfg.StatePath())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "autopilot", state.Session)
	assert.Equal(t, 2, state.NumAgents)
}

func TestInitializeRequiresTmux(t *testing.T) {
	rec := &executil.RecordingExecutor{Missing: []string{"tmux"}}
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()

	dist, err := work.NewDistributor(cfg.WorkStatePath(), cfg.Work.ChunkSize)
	require.NoError(t, err)

	o := New(cfg, tmux.New(rec), dist, nil)
	assert.ErrorIs(t, o.Initialize(context.Background()), ErrTmuxMissing)
}

func TestRestartBackoff(t *testing.T) {
	tests := []struct {
		restarts int
		want     time.Duration
	}{
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{5, 160 * time.Second},
		{6, 300 * time.Second},
		{10, 300 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RestartBackoff(tt.restarts), "restarts=%d", tt.restarts)
	}
}
