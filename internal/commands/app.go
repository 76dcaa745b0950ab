// Package commands wires the CLI surface: each command file registers one
// subcommand on the root urfave/cli application.
package commands

import (
	"fmt"

	"github.com/r3e-network/autopilot/internal/coord"
	"github.com/r3e-network/autopilot/internal/core/config"
	"github.com/r3e-network/autopilot/internal/core/tmux"
	"github.com/r3e-network/autopilot/internal/orchestrator"
	"github.com/r3e-network/autopilot/internal/work"
	"github.com/r3e-network/autopilot/pkg/executil"
)

// newDistributor opens the shared work backlog for the configured data dir.
func newDistributor(cfg *config.Config) (*work.Distributor, error) {
	dist, err := work.NewDistributor(cfg.WorkStatePath(), cfg.Work.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("open work distributor: %w", err)
	}
	return dist, nil
}

// newCoordinator opens the shared coordination directory.
func newCoordinator(cfg *config.Config) (*coord.Coordinator, error) {
	c, err := coord.New(cfg.CoordDir(), cfg.StaleLockAge())
	if err != nil {
		return nil, fmt.Errorf("open coordinator: %w", err)
	}
	return c, nil
}

// newOrchestrator assembles the full agent-pool stack. Persisted state, if
// any, is restored so a fresh process can manage a surviving session.
func newOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	dist, err := newDistributor(cfg)
	if err != nil {
		return nil, err
	}
	coordinator, err := newCoordinator(cfg)
	if err != nil {
		return nil, err
	}

	o := orchestrator.New(cfg, tmux.New(&executil.RealExecutor{}), dist, coordinator)
	if _, err := o.LoadState(); err != nil {
		return nil, err
	}
	return o, nil
}
