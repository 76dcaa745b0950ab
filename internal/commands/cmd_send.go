package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
)

type SendCmd struct {
	flags *Flags

	all bool
}

// NewSendCmd creates a new send command
func NewSendCmd(flags *Flags) *SendCmd {
	return &SendCmd{flags: flags}
}

// Register adds the send command to the application
func (cmd *SendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "send",
		Usage:     "Send a task or command line to agents",
		UsageText: "autopilot send [options] <agent-id> <text...>",
		Description: `Types the given text into an agent's pane followed by Enter. The agent
is marked working and its readiness tracker restarts, so the monitor
treats the next return to a prompt as task completion.

With --all the text goes to every non-disabled agent instead:
  autopilot send --all "git status"`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "all",
				Aliases:     []string{"a"},
				Usage:       "broadcast to all agents",
				Destination: &cmd.all,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SendCmd) run(ctx context.Context, c *cli.Command) error {
	args := c.Args().Slice()

	o, err := newOrchestrator(cmd.flags.Config)
	if err != nil {
		return err
	}

	if cmd.all {
		if len(args) == 0 {
			return fmt.Errorf("usage: autopilot send --all <text...>")
		}
		o.Broadcast(ctx, strings.Join(args, " "))
		return nil
	}

	if len(args) < 2 {
		return fmt.Errorf("usage: autopilot send <agent-id> <text...>")
	}
	return o.SendWorkToAgent(ctx, args[0], strings.Join(args[1:], " "))
}
