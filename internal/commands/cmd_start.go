package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

type StartCmd struct {
	flags *Flags

	// Command-specific flags
	agents int
	detach bool
}

// NewStartCmd creates a new start command
func NewStartCmd(flags *Flags) *StartCmd {
	return &StartCmd{flags: flags}
}

// Register adds the start command to the application
func (cmd *StartCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "start",
		Usage:     "Launch the agent pool and begin monitoring",
		UsageText: "autopilot start [options]",
		Description: `Creates the shared tmux session, launches the configured number of
worker agents with an adaptive stagger delay, and enters the monitoring
loop: health checks, work distribution, and stale-resource sweeps.

With --detach the agents are launched and the command returns; run
'autopilot start' again (or any monitor-capable process) to resume
supervision of the surviving session.`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "agents",
				Aliases:     []string{"n"},
				Usage:       "number of agents to launch (defaults to config)",
				Destination: &cmd.agents,
			},
			&cli.BoolFlag{
				Name:        "detach",
				Aliases:     []string{"d"},
				Usage:       "launch agents without entering the monitoring loop",
				Destination: &cmd.detach,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *StartCmd) run(ctx context.Context, c *cli.Command) error {
	o, err := newOrchestrator(cmd.flags.Config)
	if err != nil {
		return err
	}

	if err := o.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	count := cmd.agents
	if count <= 0 {
		count = cmd.flags.Config.Agents.DefaultCount
	}

	if err := o.StartAgents(ctx, count); err != nil {
		return fmt.Errorf("start agents: %w", err)
	}
	fmt.Printf("Started %d agents in session %q\n", count, cmd.flags.Config.Session)

	if cmd.detach {
		return nil
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	o.Run(runCtx)
	return nil
}
