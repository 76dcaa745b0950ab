package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/r3e-network/autopilot/internal/coord"
	"github.com/r3e-network/autopilot/pkg/iojson"
)

type CoordCmd struct {
	flags *Flags

	agentID      string
	files        []string
	features     []string
	description  string
	duration     string
	capabilities []string
	failed       bool

	planReader iojson.FileReader[coord.WorkPlan]
}

// NewCoordCmd creates a new coord command
func NewCoordCmd(flags *Flags) *CoordCmd {
	return &CoordCmd{flags: flags}
}

// Register adds the coord command tree to the application
func (cmd *CoordCmd) Register(app *cli.Command) *cli.Command {
	agentFlag := &cli.StringFlag{
		Name:        "agent",
		Usage:       "acting agent id",
		Required:    true,
		Destination: &cmd.agentID,
	}

	app.Commands = append(app.Commands, &cli.Command{
		Name:      "coord",
		Usage:     "Coordinate work across agents and processes",
		UsageText: "autopilot coord <subcommand>",
		Description: `The coordination protocol lets independent agent processes negotiate
exclusive access to files and features through a shared directory of
lock files and JSON registries. Conflict checks are exact-match: two
agents may claim different files in the same package.`,
		Commands: []*cli.Command{
			{
				Name:      "claim",
				Usage:     "Claim exclusive access to files and features",
				UsageText: "autopilot coord claim --agent <id> [options]",
				Flags: []cli.Flag{
					agentFlag,
					&cli.StringSliceFlag{
						Name:        "files",
						Usage:       "repo-relative file paths to lock",
						Destination: &cmd.files,
					},
					&cli.StringSliceFlag{
						Name:        "features",
						Usage:       "feature names to lock",
						Destination: &cmd.features,
					},
					&cli.StringFlag{
						Name:        "description",
						Aliases:     []string{"m"},
						Usage:       "what the claim is for",
						Destination: &cmd.description,
					},
					&cli.StringFlag{
						Name:        "duration",
						Usage:       "advisory estimate of how long the claim is held, e.g. 2h",
						Destination: &cmd.duration,
					},
				},
				Action: cmd.runClaim,
			},
			{
				Name:      "release",
				Usage:     "Release an agent's lock",
				UsageText: "autopilot coord release --agent <id>",
				Flags:     []cli.Flag{agentFlag},
				Action:    cmd.runRelease,
			},
			{
				Name:      "plan",
				Usage:     "Queue a work plan for later pickup",
				UsageText: "autopilot coord plan --agent <id> [-f plan.json]",
				Description: `Reads a work plan as JSON from --file or stdin:

  {"title": "...", "description": "...", "files": [...],
   "features": [...], "priority": "high|medium|low"}

Plans conflicting with a held lock are rejected immediately.`,
				Flags:  []cli.Flag{agentFlag, cmd.planReader.Flag()},
				Action: cmd.runPlan,
			},
			{
				Name:      "request",
				Usage:     "Pick up the next eligible planned work",
				UsageText: "autopilot coord request --agent <id> [--capabilities a,b]",
				Flags: []cli.Flag{
					agentFlag,
					&cli.StringSliceFlag{
						Name:        "capabilities",
						Usage:       "features this agent can work on (empty = any)",
						Destination: &cmd.capabilities,
					},
				},
				Action: cmd.runRequest,
			},
			{
				Name:      "complete",
				Usage:     "Mark an active plan finished",
				UsageText: "autopilot coord complete --agent <id> [--failed] <work-id>",
				Flags: []cli.Flag{
					agentFlag,
					&cli.BoolFlag{
						Name:        "failed",
						Usage:       "record the plan as failed instead of completed",
						Destination: &cmd.failed,
					},
				},
				Action: cmd.runComplete,
			},
			{
				Name:      "status",
				Usage:     "Print the coordination report",
				UsageText: "autopilot coord status",
				Action:    cmd.runStatus,
			},
			{
				Name:      "watch",
				Usage:     "Stream lock events until interrupted",
				UsageText: "autopilot coord watch",
				Action:    cmd.runWatch,
			},
			{
				Name:      "cleanup",
				Usage:     "Remove stale locks",
				UsageText: "autopilot coord cleanup",
				Action:    cmd.runCleanup,
			},
		},
	})

	return app
}

func (cmd *CoordCmd) runClaim(ctx context.Context, c *cli.Command) error {
	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}

	ok, err := coordinator.ClaimWork(cmd.agentID, cmd.files, cmd.features, cmd.description, cmd.duration)
	if err != nil {
		return fmt.Errorf("claim work: %w", err)
	}
	if !ok {
		return fmt.Errorf("claim rejected: resources are locked by another agent")
	}
	fmt.Printf("Claimed for %s\n", cmd.agentID)
	return nil
}

func (cmd *CoordCmd) runRelease(ctx context.Context, c *cli.Command) error {
	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}
	if err := coordinator.ReleaseWork(cmd.agentID); err != nil {
		return fmt.Errorf("release work: %w", err)
	}
	fmt.Printf("Released %s\n", cmd.agentID)
	return nil
}

func (cmd *CoordCmd) runPlan(ctx context.Context, c *cli.Command) error {
	plan, err := cmd.planReader.Read()
	if err != nil {
		return err
	}

	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}

	queued, err := coordinator.PlanWork(cmd.agentID, plan)
	if err != nil {
		var conflict *coord.ConflictError
		if errors.As(err, &conflict) {
			return fmt.Errorf("plan rejected:\n  %s", strings.Join(conflict.Reasons, "\n  "))
		}
		return fmt.Errorf("plan work: %w", err)
	}
	return iojson.Write(queued)
}

func (cmd *CoordCmd) runRequest(ctx context.Context, c *cli.Command) error {
	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}

	plan, err := coordinator.RequestWork(cmd.agentID, cmd.capabilities)
	if err != nil {
		return fmt.Errorf("request work: %w", err)
	}
	if plan == nil {
		fmt.Println("No eligible planned work")
		return nil
	}
	return iojson.Write(plan)
}

func (cmd *CoordCmd) runComplete(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: autopilot coord complete --agent <id> [--failed] <work-id>")
	}

	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}

	if err := coordinator.CompleteWork(cmd.agentID, c.Args().First(), !cmd.failed); err != nil {
		return fmt.Errorf("complete work: %w", err)
	}
	fmt.Printf("Work %s recorded\n", c.Args().First())
	return nil
}

func (cmd *CoordCmd) runStatus(ctx context.Context, c *cli.Command) error {
	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}
	fmt.Print(coordinator.Report())
	return nil
}

func (cmd *CoordCmd) runWatch(ctx context.Context, c *cli.Command) error {
	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}

	watchCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := coord.NewWatcher(watchCtx, coordinator)
	if err != nil {
		return fmt.Errorf("watch locks: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for {
		select {
		case <-watchCtx.Done():
			return nil
		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}
			fmt.Printf("%s %s\n", ev.Op, ev.AgentID)
		}
	}
}

func (cmd *CoordCmd) runCleanup(ctx context.Context, c *cli.Command) error {
	coordinator, err := newCoordinator(cmd.flags.Config)
	if err != nil {
		return err
	}
	n := coordinator.CleanupStaleLocks()
	fmt.Printf("Removed %d stale locks\n", n)
	return nil
}
