package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/r3e-network/autopilot/pkg/iojson"
)

type WorkCmd struct {
	flags *Flags

	loadAll  bool
	agentID  string
	size     int
	done     []string
	annotate string
}

// NewWorkCmd creates a new work command
func NewWorkCmd(flags *Flags) *WorkCmd {
	return &WorkCmd{flags: flags}
}

// Register adds the work command tree to the application
func (cmd *WorkCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "work",
		Usage:     "Manage the shared work backlog",
		UsageText: "autopilot work <subcommand>",
		Commands: []*cli.Command{
			{
				Name:      "load",
				Usage:     "Parse problem reports into the backlog",
				UsageText: "autopilot work load [--all] [file...]",
				Description: `Parses report files line by line. Recognized formats:

  path:line:col: error: message
  path:line:col: warning: message
  path: TODO: message
  path: IMPROVEMENT: message
  path: FEATURE: message

Lines already annotated with the completed marker are skipped, as are
items completed in a previous run, so re-loading a report is safe.

With --all, the report globs from the config file are expanded
relative to the current directory.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "all",
						Usage:       "load every configured report glob",
						Destination: &cmd.loadAll,
					},
				},
				Action: cmd.runLoad,
			},
			{
				Name:      "chunk",
				Usage:     "Claim the next work chunk for an agent",
				UsageText: "autopilot work chunk --agent <id> [--size N]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "agent",
						Usage:       "claiming agent id",
						Required:    true,
						Destination: &cmd.agentID,
					},
					&cli.IntFlag{
						Name:        "size",
						Usage:       "preferred chunk size (0 = dynamic)",
						Destination: &cmd.size,
					},
				},
				Action: cmd.runChunk,
			},
			{
				Name:      "complete",
				Usage:     "Report a chunk finished",
				UsageText: "autopilot work complete [options] <chunk-id>",
				Description: `Items listed via --done are marked completed; the rest of the chunk
returns to the backlog with its attempt count bumped. Omitting --done
returns the whole chunk.

With --annotate, completed source lines in the given report file are
prefixed with the completed marker so future loads skip them.`,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:        "done",
						Usage:       "item ids that were completed",
						Destination: &cmd.done,
					},
					&cli.StringFlag{
						Name:        "annotate",
						Usage:       "report file to annotate with completion markers",
						Destination: &cmd.annotate,
					},
				},
				Action: cmd.runComplete,
			},
			{
				Name:      "release",
				Usage:     "Return stale chunks to the backlog",
				UsageText: "autopilot work release",
				Action:    cmd.runRelease,
			},
			{
				Name:      "stats",
				Usage:     "Print backlog statistics as JSON",
				UsageText: "autopilot work stats",
				Action:    cmd.runStats,
			},
		},
	})

	return app
}

func (cmd *WorkCmd) runLoad(ctx context.Context, c *cli.Command) error {
	dist, err := newDistributor(cmd.flags.Config)
	if err != nil {
		return err
	}

	if cmd.loadAll {
		n, err := dist.LoadReports(".", cmd.flags.Config.Work.Reports)
		if err != nil {
			return fmt.Errorf("load reports: %w", err)
		}
		fmt.Printf("Loaded %d work items\n", n)
		return nil
	}

	if c.Args().Len() == 0 {
		return fmt.Errorf("usage: autopilot work load [--all] <file...>")
	}

	total := 0
	for _, path := range c.Args().Slice() {
		n, err := dist.LoadWorkFromFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		total += n
	}
	fmt.Printf("Loaded %d work items\n", total)
	return nil
}

func (cmd *WorkCmd) runChunk(ctx context.Context, c *cli.Command) error {
	dist, err := newDistributor(cmd.flags.Config)
	if err != nil {
		return err
	}

	chunk, err := dist.GetWorkChunk(cmd.agentID, cmd.size)
	if err != nil {
		return fmt.Errorf("get work chunk: %w", err)
	}
	if chunk == nil {
		fmt.Println("No pending work")
		return nil
	}

	return iojson.Write(struct {
		Chunk any `json:"chunk"`
		Items any `json:"items"`
	}{chunk, dist.Items(chunk.ItemIDs)})
}

func (cmd *WorkCmd) runComplete(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: autopilot work complete [options] <chunk-id>")
	}
	chunkID := c.Args().First()

	dist, err := newDistributor(cmd.flags.Config)
	if err != nil {
		return err
	}

	if err := dist.MarkChunkCompleted(chunkID, cmd.done); err != nil {
		return fmt.Errorf("complete chunk: %w", err)
	}

	if cmd.annotate != "" && len(cmd.done) > 0 {
		if err := dist.AppendCompletedMarker(cmd.annotate, cmd.done); err != nil {
			return fmt.Errorf("annotate %s: %w", cmd.annotate, err)
		}
	}

	fmt.Printf("Chunk %s completed (%d items done)\n", chunkID, len(cmd.done))
	return nil
}

func (cmd *WorkCmd) runRelease(ctx context.Context, c *cli.Command) error {
	dist, err := newDistributor(cmd.flags.Config)
	if err != nil {
		return err
	}

	n, err := dist.ReleaseStaleChunks(cmd.flags.Config.StaleChunkAge())
	if err != nil {
		return fmt.Errorf("release stale chunks: %w", err)
	}
	fmt.Printf("Released %d stale chunks\n", n)
	return nil
}

func (cmd *WorkCmd) runStats(ctx context.Context, c *cli.Command) error {
	dist, err := newDistributor(cmd.flags.Config)
	if err != nil {
		return err
	}
	return iojson.Write(dist.Statistics())
}
