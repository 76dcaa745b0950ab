package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

type StopCmd struct {
	flags *Flags

	preserve bool
}

// NewStopCmd creates a new stop command
func NewStopCmd(flags *Flags) *StopCmd {
	return &StopCmd{flags: flags}
}

// Register adds the stop command to the application
func (cmd *StopCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "stop",
		Usage:     "Stop all agents and tear down the session",
		UsageText: "autopilot stop [options]",
		Description: `Returns in-flight work chunks to the backlog, removes heartbeat files,
clears persisted orchestrator state, and kills the tmux session unless
session preservation is requested.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "preserve-session",
				Usage:       "leave the tmux session running",
				Destination: &cmd.preserve,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *StopCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.preserve {
		cmd.flags.Config.Agents.PreserveSession = true
	}

	o, err := newOrchestrator(cmd.flags.Config)
	if err != nil {
		return err
	}

	if err := o.StopAgents(ctx); err != nil {
		return fmt.Errorf("stop agents: %w", err)
	}
	fmt.Println("All agents stopped")
	return nil
}
