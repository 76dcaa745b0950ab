package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/r3e-network/autopilot/internal/core/terminal"
	"github.com/r3e-network/autopilot/internal/store/jsonfile"
)

// State mirrors the on-disk orchestrator snapshot. Agents are keyed by
// id so external tooling can address them without scanning a list.
type State struct {
	Session   string            `json:"session"`
	NumAgents int               `json:"numAgents"`
	Agents    map[string]*Agent `json:"agents"`
	Timestamp time.Time         `json:"timestamp"`
}

func (o *Orchestrator) persistStateLocked() error {
	state := State{
		Session:   o.cfg.Session,
		NumAgents: len(o.agents),
		Agents:    o.agents,
		Timestamp: o.now().UTC(),
	}
	if err := jsonfile.Save(o.cfg.StatePath(), state); err != nil {
		return fmt.Errorf("save orchestrator state: %w", err)
	}
	return nil
}

// LoadState restores the persisted agent pool, reattaching runtime trackers
// and window targets. Agents resume in their persisted status; a follow-up
// health pass corrects anything that drifted while we were down.
func (o *Orchestrator) LoadState() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var state State
	found, err := jsonfile.Load(o.cfg.StatePath(), &state)
	if err != nil {
		return false, fmt.Errorf("load orchestrator state: %w", err)
	}
	if !found {
		return false, nil
	}

	o.agents = make(map[string]*Agent, len(state.Agents))
	for id, agent := range state.Agents {
		agent.ID = id
		agent.target = o.cfg.Session + ":" + id
		agent.tracker = terminal.NewTracker(o.detector)
		o.agents[id] = agent
	}
	o.running = len(o.agents) > 0

	log.Info().Int("agents", len(o.agents)).Time("savedAt", state.Timestamp).
		Msg("orchestrator state restored")
	return true, nil
}

// ReadState reads the persisted snapshot without an orchestrator instance.
// Used by status reporting.
func ReadState(path string) (*State, bool, error) {
	var state State
	found, err := jsonfile.Load(path, &state)
	if err != nil || !found {
		return nil, found, err
	}
	for id, agent := range state.Agents {
		agent.ID = id
	}
	return &state, true, nil
}

func (o *Orchestrator) removeState() error {
	if err := os.Remove(o.cfg.StatePath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove orchestrator state: %w", err)
	}
	return nil
}
