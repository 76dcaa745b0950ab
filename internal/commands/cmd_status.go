package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/r3e-network/autopilot/internal/orchestrator"
	"github.com/r3e-network/autopilot/pkg/iojson"
)

type StatusCmd struct {
	flags *Flags

	asJSON bool
}

// NewStatusCmd creates a new status command
func NewStatusCmd(flags *Flags) *StatusCmd {
	return &StatusCmd{flags: flags}
}

// Register adds the status command to the application
func (cmd *StatusCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "status",
		Usage:     "Show agent pool, backlog, and coordination status",
		UsageText: "autopilot status [options]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit machine-readable JSON",
				Destination: &cmd.asJSON,
			},
		},
		Action: cmd.run,
	})

	return app
}

// statusReport is the JSON shape of `autopilot status --json`.
type statusReport struct {
	Session string               `json:"session"`
	Agents  []orchestrator.Agent `json:"agents"`
	Backlog any                  `json:"backlog"`
}

func (cmd *StatusCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	state, found, err := orchestrator.ReadState(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("read orchestrator state: %w", err)
	}

	dist, err := newDistributor(cfg)
	if err != nil {
		return err
	}
	stats := dist.Statistics()

	var agents []orchestrator.Agent
	if found {
		for _, a := range state.Agents {
			agents = append(agents, *a)
		}
		sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	}

	if cmd.asJSON {
		return iojson.Write(statusReport{Session: cfg.Session, Agents: agents, Backlog: stats})
	}

	if !found {
		fmt.Println("No agent pool is running")
	} else {
		fmt.Printf("Session %q, %d agents (saved %s)\n\n", state.Session, state.NumAgents,
			state.Timestamp.Format(time.RFC3339))

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "AGENT\tSTATUS\tCTX\tCYCLES\tRESTARTS\tERRORS\tLAST ACTIVITY")
		for _, a := range agents {
			fmt.Fprintf(w, "%s\t%s\t%d%%\t%d\t%d\t%d\t%s\n",
				a.ID, a.Status, a.ContextUsage, a.WorkCycles, a.RestartCount, a.ErrorCount,
				a.LastActivity.Format(time.RFC3339))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Println()
	}

	fmt.Printf("Backlog: %d pending, %d assigned, %d completed, %d failed (%d active chunks)\n",
		stats.Pending, stats.Assigned, stats.Completed, stats.Failed, stats.ActiveChunks)

	coordinator, err := newCoordinator(cfg)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Print(coordinator.Report())
	return nil
}
