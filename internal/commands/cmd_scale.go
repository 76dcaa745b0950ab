package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"
)

type ScaleCmd struct {
	flags *Flags
}

// NewScaleCmd creates a new scale command
func NewScaleCmd(flags *Flags) *ScaleCmd {
	return &ScaleCmd{flags: flags}
}

// Register adds the scale command to the application
func (cmd *ScaleCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "scale",
		Usage:     "Grow or shrink the running agent pool",
		UsageText: "autopilot scale <count>",
		Description: `Scales the pool to the given agent count. Scale-up launches new agents
with the usual stagger delay; scale-down stops the agents with the
fewest completed work cycles first, returning their chunks to the
backlog.`,
		Action: cmd.run,
	})

	return app
}

func (cmd *ScaleCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: autopilot scale <count>")
	}
	target, err := strconv.Atoi(c.Args().First())
	if err != nil || target < 0 {
		return fmt.Errorf("invalid agent count %q", c.Args().First())
	}

	o, err := newOrchestrator(cmd.flags.Config)
	if err != nil {
		return err
	}

	if err := o.ScaleAgents(ctx, target); err != nil {
		return fmt.Errorf("scale agents: %w", err)
	}
	fmt.Printf("Scaled to %d agents\n", target)
	return nil
}
