package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/r3e-network/autopilot/internal/coord"
	"github.com/r3e-network/autopilot/internal/core/config"
	"github.com/r3e-network/autopilot/internal/core/terminal"
	"github.com/r3e-network/autopilot/internal/core/tmux"
	"github.com/r3e-network/autopilot/internal/work"
	"github.com/r3e-network/autopilot/pkg/randid"
	"github.com/r3e-network/autopilot/pkg/tmpl"
)

// Sentinel errors for caller mistakes and environment failures.
var (
	// ErrTmuxMissing means the session multiplexer binary is not installed.
	// Fatal; there is no retry.
	ErrTmuxMissing = errors.New("tmux binary not found in PATH")
	// ErrAlreadyRunning is returned when StartAgents is called twice.
	ErrAlreadyRunning = errors.New("agent pool is already running")
	// ErrTooManyAgents is returned when a start/scale target exceeds the
	// configured maximum.
	ErrTooManyAgents = errors.New("requested agent count exceeds maximum")
)

// Limits on the adaptive launch stagger.
const (
	maxStaggerDelay = 60 * time.Second
	launchGateRetry = 2 * time.Second
	launchGateName  = "agent-launch"
)

// contextResetCommand is the relief valve sent to a worker whose context
// gauge falls to the configured threshold. Not an error path.
const contextResetCommand = "/compact"

// Orchestrator drives the agent pool. All periodic work (health checks, work
// distribution, sweeps) runs as cooperative polling loops in Run; each loop
// carries a re-entrancy guard so an overlapping tick is a no-op.
type Orchestrator struct {
	cfg        *config.Config
	tmux       *tmux.Client
	dist       *work.Distributor
	coord      *coord.Coordinator // optional; nil disables the launch gate
	heartbeats *Heartbeats
	detector   *terminal.Detector

	mu           sync.Mutex
	agents       map[string]*Agent
	running      bool
	staggerDelay time.Duration

	healthBusy atomic.Bool
	distBusy   atomic.Bool
	sweepBusy  atomic.Bool

	// gateOwner names this process's claim on the launch gate lock. Unique
	// per process so concurrent launchers actually exclude each other.
	gateOwner string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// New creates an orchestrator. The coordinator may be nil when no shared
// coordination directory is in use.
func New(cfg *config.Config, tmuxClient *tmux.Client, dist *work.Distributor, coordinator *coord.Coordinator) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		tmux:       tmuxClient,
		dist:       dist,
		coord:      coordinator,
		heartbeats: NewHeartbeats(cfg.HeartbeatDir()),
		detector: terminal.NewDetector(
			cfg.Worker.ReadyMarkers,
			cfg.Worker.ConfirmPrompts,
			cfg.Worker.BusyMarkers,
		),
		agents:       make(map[string]*Agent),
		gateOwner:    "launcher-" + randid.Generate(8),
		staggerDelay: cfg.StaggerBaseline(),
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

// Initialize verifies the environment: the multiplexer must be installed, any
// stale session under our name is torn down, and the heartbeat directory is
// prepared.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	if !o.tmux.Available() {
		return ErrTmuxMissing
	}
	if o.tmux.HasSession(ctx, o.cfg.Session) {
		log.Warn().Str("session", o.cfg.Session).Msg("tearing down pre-existing session")
		if err := o.tmux.KillSession(ctx, o.cfg.Session); err != nil {
			return fmt.Errorf("kill stale session: %w", err)
		}
	}
	return o.heartbeats.Init()
}

// StartAgents creates the shared session and launches count agents
// sequentially with the adaptive stagger delay: halved (floor baseline) after
// a successful launch, doubled (cap 60s) after a failure.
func (o *Orchestrator) StartAgents(ctx context.Context, count int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}
	if count > o.cfg.Agents.Max {
		return fmt.Errorf("%w: %d > %d", ErrTooManyAgents, count, o.cfg.Agents.Max)
	}

	if err := o.tmux.CreateSession(ctx, o.cfg.Session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	o.running = true

	for i := 1; i <= count; i++ {
		if err := o.acquireLaunchGate(ctx); err != nil {
			return err
		}
		ok := o.launchAgent(ctx, i)
		o.releaseLaunchGate()
		o.adjustStagger(ok)

		if i < count {
			o.sleep(ctx, o.staggerDelay)
		}
	}

	return o.persistStateLocked()
}

// launchAgent creates a pane for agent index, sends the start command, and
// records the agent in starting state. Never returns an error: failures are
// logged and reflected in the boolean consumed by the stagger adjustment.
func (o *Orchestrator) launchAgent(ctx context.Context, index int) bool {
	id := agentID(index)

	target, err := o.tmux.NewWindow(ctx, o.cfg.Session, id)
	if err != nil {
		log.Error().Err(err).Str("agent", id).Msg("launch failed: window creation")
		return false
	}

	if err := o.tmux.SendKeys(ctx, target, o.startCommand(index)); err != nil {
		log.Error().Err(err).Str("agent", id).Msg("launch failed: start command")
		return false
	}

	if err := o.heartbeats.Touch(id); err != nil {
		log.Error().Err(err).Str("agent", id).Msg("launch failed: initial heartbeat")
		return false
	}

	now := o.now()
	o.agents[id] = &Agent{
		ID:            id,
		Status:        StatusStarting,
		LastActivity:  now,
		LastHeartbeat: now,
		target:        target,
		tracker:       terminal.NewTracker(o.detector),
	}

	log.Info().Str("agent", id).Msg("agent launched")
	return true
}

// startCommand builds the worker start command with a per-agent seed derived
// from wall-clock time and index, diversifying worker randomness. The
// configured command may be a template referencing agent fields; config
// validation already checked it parses.
func (o *Orchestrator) startCommand(index int) string {
	seed := o.now().Unix() + int64(index)
	command, err := tmpl.Render(o.cfg.Worker.Command, tmpl.WorkerData{
		AgentID: agentID(index),
		Session: o.cfg.Session,
		Index:   index,
		Seed:    seed,
	})
	if err != nil {
		log.Warn().Err(err).Msg("worker command template failed, using raw command")
		command = o.cfg.Worker.Command
	}
	return fmt.Sprintf("AUTOPILOT_SEED=%d %s", seed, command)
}

// adjustStagger halves the delay after success (never below baseline) and
// doubles it after failure (capped), so spawn storms back off while healthy
// pools recover quickly.
func (o *Orchestrator) adjustStagger(success bool) {
	if success {
		o.staggerDelay /= 2
		if baseline := o.cfg.StaggerBaseline(); o.staggerDelay < baseline {
			o.staggerDelay = baseline
		}
		return
	}
	o.staggerDelay *= 2
	if o.staggerDelay > maxStaggerDelay {
		o.staggerDelay = maxStaggerDelay
	}
}

// acquireLaunchGate takes the short-lived mutual-exclusion lock guarding
// launches, waiting 2s between attempts rather than skipping the index.
func (o *Orchestrator) acquireLaunchGate(ctx context.Context) error {
	if o.coord == nil {
		return nil
	}
	for {
		ok, err := o.coord.ClaimWork(o.gateOwner, nil, []string{launchGateName}, "agent launch gate", "")
		if err != nil {
			return fmt.Errorf("launch gate: %w", err)
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log.Debug().Msg("launch gate held elsewhere, retrying")
		o.sleep(ctx, launchGateRetry)
	}
}

func (o *Orchestrator) releaseLaunchGate() {
	if o.coord == nil {
		return
	}
	if err := o.coord.ReleaseWork(o.gateOwner); err != nil {
		log.Error().Err(err).Msg("launch gate release failed")
	}
}

// CheckAgentHealth runs one health pass over every tracked agent. A failure
// for one agent never blocks checks of the others. Safe to call concurrently
// with itself: an overlapping call is a no-op.
func (o *Orchestrator) CheckAgentHealth(ctx context.Context) {
	if !o.healthBusy.CompareAndSwap(false, true) {
		return
	}
	defer o.healthBusy.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range o.agentIDsLocked() {
		agent := o.agents[id]
		if agent == nil || agent.Status == StatusDisabled {
			continue
		}
		o.checkAgentLocked(ctx, agent)
	}

	if err := o.persistStateLocked(); err != nil {
		log.Error().Err(err).Msg("persist orchestrator state failed")
	}
}

func (o *Orchestrator) checkAgentLocked(ctx context.Context, agent *Agent) {
	// (a) heartbeat staleness
	age, err := o.heartbeats.Age(agent.ID)
	if err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("heartbeat read failed, skipping staleness check")
	} else {
		agent.LastHeartbeat = o.now().Add(-age)
		if age > o.cfg.HeartbeatStale() && agent.CanStall() {
			o.handleStuckLocked(ctx, agent, age)
			return
		}
	}

	// (b) pane inspection: context gauge and readiness
	content, err := o.tmux.CapturePane(ctx, agent.target)
	if err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("pane capture failed, skipping this cycle")
		return
	}

	if gauge, ok := terminal.ContextGauge(content); ok {
		agent.ContextUsage = gauge
		if gauge <= o.cfg.Agents.ContextThreshold && agent.Status == StatusWorking {
			log.Info().Str("agent", agent.ID).Int("context", gauge).Msg("context low, sending reset")
			if err := o.tmux.SendKeys(ctx, agent.target, contextResetCommand); err != nil {
				log.Debug().Err(err).Str("agent", agent.ID).Msg("context reset send failed")
			}
		}
	}

	state := agent.tracker.Observe(content)

	// Output movement is a liveness signal: refresh the heartbeat.
	if change := agent.tracker.LastChange(); change.After(agent.LastActivity) {
		agent.LastActivity = change
		if err := o.heartbeats.Touch(agent.ID); err != nil {
			log.Debug().Err(err).Str("agent", agent.ID).Msg("heartbeat refresh failed")
		}
	}

	switch state {
	case terminal.StateReady:
		switch agent.Status {
		case StatusStarting:
			agent.Status = StatusReady
			log.Info().Str("agent", agent.ID).Msg("agent ready")
		case StatusWorking:
			o.finishWorkLocked(agent)
		}
	case terminal.StateAwaitingConfirmation:
		log.Debug().Str("agent", agent.ID).Msg("agent awaiting confirmation")
	}

	// (c) visible status decoration
	title := fmt.Sprintf("%s [%s] ctx:%d%%", agent.ID, agent.Status, agent.ContextUsage)
	if err := o.tmux.SetPaneTitle(ctx, agent.target, title); err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("pane title update failed")
	}
}

// handleStuckLocked processes a stale heartbeat: error count up, then either
// restart or permanent disable.
func (o *Orchestrator) handleStuckLocked(ctx context.Context, agent *Agent, age time.Duration) {
	agent.ErrorCount++
	agent.Status = StatusError
	log.Warn().Str("agent", agent.ID).Dur("heartbeatAge", age).Int("errors", agent.ErrorCount).
		Msg("agent heartbeat stale")

	if agent.ErrorCount >= o.cfg.Agents.MaxErrors {
		agent.Status = StatusDisabled
		o.abandonChunkLocked(agent)
		if err := o.heartbeats.Remove(agent.ID); err != nil {
			log.Debug().Err(err).Str("agent", agent.ID).Msg("heartbeat remove failed")
		}
		log.Error().Str("agent", agent.ID).Msg("agent disabled after max errors; operator action required")
		return
	}

	o.restartAgentLocked(ctx, agent)
}

// restartAgentLocked interrupts, clears, backs off exponentially, and
// resends the start command. The restart count is never reset while the
// process lives.
func (o *Orchestrator) restartAgentLocked(ctx context.Context, agent *Agent) {
	agent.RestartCount++
	backoff := RestartBackoff(agent.RestartCount)
	log.Info().Str("agent", agent.ID).Int("restart", agent.RestartCount).Dur("backoff", backoff).
		Msg("restarting agent")

	if err := o.tmux.SendRaw(ctx, agent.target, "C-c"); err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("interrupt send failed")
	}
	if err := o.tmux.SendKeys(ctx, agent.target, "clear"); err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("clear send failed")
	}

	o.sleep(ctx, backoff)

	index := agentIndex(agent.ID)
	if err := o.tmux.SendKeys(ctx, agent.target, o.startCommand(index)); err != nil {
		log.Error().Err(err).Str("agent", agent.ID).Msg("restart start command failed")
		return
	}

	o.abandonChunkLocked(agent)
	agent.Status = StatusStarting
	agent.tracker = terminal.NewTracker(o.detector)
	if err := o.heartbeats.Touch(agent.ID); err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("heartbeat touch failed")
	}
}

// ScaleAgents grows or shrinks the pool to target. Scale-up assigns ids
// above the highest live index so a still-running agent is never relaunched
// over; scale-down stops the agents with the fewest completed work cycles
// first.
func (o *Orchestrator) ScaleAgents(ctx context.Context, target int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return errors.New("agent pool is not running")
	}
	if target > o.cfg.Agents.Max {
		return fmt.Errorf("%w: %d > %d", ErrTooManyAgents, target, o.cfg.Agents.Max)
	}

	current := len(o.agents)
	switch {
	case target > current:
		index := o.highestIndexLocked()
		for n := current; n < target; n++ {
			index++
			if err := o.acquireLaunchGate(ctx); err != nil {
				return err
			}
			ok := o.launchAgent(ctx, index)
			o.releaseLaunchGate()
			o.adjustStagger(ok)
			if n+1 < target {
				o.sleep(ctx, o.staggerDelay)
			}
		}
	case target < current:
		victims := o.leastInvestedLocked(current - target)
		for _, agent := range victims {
			o.stopAgentLocked(ctx, agent)
		}
	}

	return o.persistStateLocked()
}

// highestIndexLocked returns the largest index among live agents.
func (o *Orchestrator) highestIndexLocked() int {
	top := 0
	for id := range o.agents {
		if i := agentIndex(id); i > top {
			top = i
		}
	}
	return top
}

// leastInvestedLocked picks n agents with the fewest work cycles — a
// fairness heuristic that avoids killing an agent mid-productive-streak.
func (o *Orchestrator) leastInvestedLocked(n int) []*Agent {
	all := make([]*Agent, 0, len(o.agents))
	for _, a := range o.agents {
		all = append(all, a)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].WorkCycles != all[j].WorkCycles {
			return all[i].WorkCycles < all[j].WorkCycles
		}
		return all[i].ID > all[j].ID // newest first among equals
	})
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

func (o *Orchestrator) stopAgentLocked(ctx context.Context, agent *Agent) {
	o.abandonChunkLocked(agent)
	if err := o.tmux.KillWindow(ctx, agent.target); err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("kill window failed")
	}
	if err := o.heartbeats.Remove(agent.ID); err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("heartbeat remove failed")
	}
	delete(o.agents, agent.ID)
	log.Info().Str("agent", agent.ID).Int("workCycles", agent.WorkCycles).Msg("agent stopped")
}

// SendWorkToAgent pushes a task description into an agent's pane. Unknown or
// disabled agents are a logged no-op.
func (o *Orchestrator) SendWorkToAgent(ctx context.Context, id, description string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sendWorkLocked(ctx, id, description, "", nil)
}

func (o *Orchestrator) sendWorkLocked(ctx context.Context, id, description, chunkID string, itemIDs []string) error {
	agent, ok := o.agents[id]
	if !ok {
		log.Warn().Str("agent", id).Msg("work send skipped: unknown agent")
		return nil
	}
	if agent.Status == StatusDisabled {
		log.Warn().Str("agent", id).Msg("work send skipped: agent disabled")
		return nil
	}

	if err := o.tmux.SendKeys(ctx, agent.target, description); err != nil {
		return fmt.Errorf("send work to %s: %w", id, err)
	}

	agent.Status = StatusWorking
	agent.WorkCycles++
	agent.chunkID = chunkID
	agent.chunkItems = itemIDs
	agent.tracker.BeginTask()

	// The dispatch itself is a liveness signal: a long-parked agent must not
	// start its task already past the staleness threshold.
	if err := o.heartbeats.Touch(agent.ID); err != nil {
		log.Debug().Err(err).Str("agent", agent.ID).Msg("heartbeat touch failed")
	}

	log.Info().Str("agent", id).Int("workCycles", agent.WorkCycles).Msg("work sent")
	return o.persistStateLocked()
}

// DistributeWork hands chunks to every eligible agent. No pending work is a
// normal empty outcome. Safe against overlapping invocations.
func (o *Orchestrator) DistributeWork(ctx context.Context) {
	if !o.distBusy.CompareAndSwap(false, true) {
		return
	}
	defer o.distBusy.Store(false)

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range o.agentIDsLocked() {
		agent := o.agents[id]
		if agent == nil || !agent.Eligible() {
			continue
		}

		chunk, err := o.dist.GetWorkChunk(agent.ID, 0)
		if err != nil {
			log.Error().Err(err).Str("agent", agent.ID).Msg("chunk assignment failed")
			continue
		}
		if chunk == nil {
			return // backlog drained
		}

		prompt := formatTaskPrompt(o.dist.Items(chunk.ItemIDs))
		if err := o.sendWorkLocked(ctx, agent.ID, prompt, chunk.ID, chunk.ItemIDs); err != nil {
			log.Error().Err(err).Str("agent", agent.ID).Msg("work send failed, releasing chunk")
			if merr := o.dist.MarkChunkCompleted(chunk.ID, nil); merr != nil {
				log.Error().Err(merr).Str("chunk", chunk.ID).Msg("chunk release failed")
			}
		}
	}
}

// finishWorkLocked records a completed work cycle: the agent returned to its
// prompt, so its chunk is marked fully completed.
func (o *Orchestrator) finishWorkLocked(agent *Agent) {
	if agent.chunkID != "" {
		if err := o.dist.MarkChunkCompleted(agent.chunkID, agent.chunkItems); err != nil {
			log.Error().Err(err).Str("agent", agent.ID).Str("chunk", agent.chunkID).Msg("chunk completion failed")
		}
	}
	agent.chunkID = ""
	agent.chunkItems = nil
	agent.Status = StatusIdle
	log.Info().Str("agent", agent.ID).Msg("agent finished work cycle")
}

// abandonChunkLocked returns an agent's in-flight chunk to the backlog.
func (o *Orchestrator) abandonChunkLocked(agent *Agent) {
	if agent.chunkID == "" {
		return
	}
	if err := o.dist.MarkChunkCompleted(agent.chunkID, nil); err != nil {
		log.Error().Err(err).Str("chunk", agent.chunkID).Msg("chunk abandon failed")
	}
	agent.chunkID = ""
	agent.chunkItems = nil
}

// Sweep reclaims stale chunks and, when a coordinator is attached, stale
// locks. Safe against overlapping invocations.
func (o *Orchestrator) Sweep() {
	if !o.sweepBusy.CompareAndSwap(false, true) {
		return
	}
	defer o.sweepBusy.Store(false)

	if n, err := o.dist.ReleaseStaleChunks(o.cfg.StaleChunkAge()); err != nil {
		log.Error().Err(err).Msg("stale chunk sweep failed")
	} else if n > 0 {
		log.Info().Int("chunks", n).Msg("stale chunks reclaimed")
	}

	if o.coord != nil {
		if n := o.coord.CleanupStaleLocks(); n > 0 {
			log.Info().Int("locks", n).Msg("stale locks reclaimed")
		}
	}
}

// Broadcast sends one command line to every non-disabled agent.
func (o *Orchestrator) Broadcast(ctx context.Context, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, id := range o.agentIDsLocked() {
		agent := o.agents[id]
		if agent.Status == StatusDisabled {
			continue
		}
		if err := o.tmux.SendKeys(ctx, agent.target, text); err != nil {
			log.Error().Err(err).Str("agent", id).Msg("broadcast send failed")
		}
	}
}

// IdleAgents returns the agents eligible for new work.
func (o *Orchestrator) IdleAgents() []Agent {
	o.mu.Lock()
	defer o.mu.Unlock()

	var idle []Agent
	for _, id := range o.agentIDsLocked() {
		if agent := o.agents[id]; agent.Eligible() {
			idle = append(idle, *agent)
		}
	}
	return idle
}

// Agents returns a snapshot of all agents, ordered by id.
func (o *Orchestrator) Agents() []Agent {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Agent, 0, len(o.agents))
	for _, id := range o.agentIDsLocked() {
		out = append(out, *o.agents[id])
	}
	return out
}

// StopAgents tears down the session (unless configured to preserve it),
// clears all agent state, and deletes the persisted state file.
func (o *Orchestrator) StopAgents(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, agent := range o.agents {
		o.abandonChunkLocked(agent)
	}

	if !o.cfg.Agents.PreserveSession {
		if err := o.tmux.KillSession(ctx, o.cfg.Session); err != nil {
			return fmt.Errorf("kill session: %w", err)
		}
	}

	o.agents = make(map[string]*Agent)
	o.running = false

	if err := o.heartbeats.RemoveAll(); err != nil {
		log.Debug().Err(err).Msg("heartbeat cleanup failed")
	}
	return o.removeState()
}

// Run drives the cooperative polling loops until the context is cancelled:
// health checks on the check interval, work distribution shortly behind it,
// and the sweep on its own interval.
func (o *Orchestrator) Run(ctx context.Context) {
	health := time.NewTicker(o.cfg.CheckInterval())
	defer health.Stop()
	distribute := time.NewTicker(o.cfg.CheckInterval())
	defer distribute.Stop()
	sweep := time.NewTicker(o.cfg.SweepInterval())
	defer sweep.Stop()

	log.Info().Dur("checkInterval", o.cfg.CheckInterval()).Dur("sweepInterval", o.cfg.SweepInterval()).
		Msg("monitoring started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("monitoring stopped")
			return
		case <-health.C:
			o.CheckAgentHealth(ctx)
		case <-distribute.C:
			o.DistributeWork(ctx)
		case <-sweep.C:
			o.Sweep()
		}
	}
}

func (o *Orchestrator) agentIDsLocked() []string {
	ids := make([]string, 0, len(o.agents))
	for id := range o.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// formatTaskPrompt renders a chunk as a single-line task description for the
// worker's stdin.
func formatTaskPrompt(items []work.Item) string {
	var b strings.Builder
	b.WriteString("Fix the following issues in this workspace. Work through them in order and do not touch unrelated files.")
	for i, item := range items {
		fmt.Fprintf(&b, " [%d] %s", i+1, item.File)
		if item.Line > 0 {
			fmt.Fprintf(&b, ":%d", item.Line)
		}
		fmt.Fprintf(&b, " (%s) %s.", item.Type, item.Message)
	}
	return b.String()
}

func agentID(index int) string {
	return fmt.Sprintf("agent-%d", index)
}

// agentIndex recovers the numeric index from an agent id.
func agentIndex(id string) int {
	var n int
	_, _ = fmt.Sscanf(id, "agent-%d", &n)
	return n
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
