package config

import (
	"fmt"
	"time"

	"github.com/hay-kot/criterio"

	"github.com/r3e-network/autopilot/pkg/tmpl"
)

// Validate checks the configuration for structural problems. Duration fields
// that fail to parse are errors here even though the typed getters fall back
// to defaults, so a typo is caught at startup rather than silently ignored.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("session", c.Session, nonEmpty),
		c.validateAgents(),
		c.validateWorker(),
		c.validateWork(),
		c.validateDurations(),
	)
}

func (c *Config) validateAgents() error {
	var errs criterio.FieldErrorsBuilder
	if c.Agents.Max < 1 {
		errs = errs.Append("agents.max", fmt.Errorf("must be at least 1, got %d", c.Agents.Max))
	}
	if c.Agents.DefaultCount > c.Agents.Max {
		errs = errs.Append("agents.default_count", fmt.Errorf("%d exceeds agents.max %d", c.Agents.DefaultCount, c.Agents.Max))
	}
	if c.Agents.MaxErrors < 1 {
		errs = errs.Append("agents.max_errors", fmt.Errorf("must be at least 1, got %d", c.Agents.MaxErrors))
	}
	if c.Agents.ContextThreshold < 0 || c.Agents.ContextThreshold > 100 {
		errs = errs.Append("agents.context_threshold", fmt.Errorf("must be 0-100, got %d", c.Agents.ContextThreshold))
	}
	return errs.ToError()
}

func (c *Config) validateWorker() error {
	return criterio.ValidateStruct(
		criterio.Run("worker.command", c.Worker.Command, nonEmpty),
		criterio.Run("worker.command", c.Worker.Command, validWorkerTemplate),
	)
}

func (c *Config) validateWork() error {
	if c.Work.ChunkSize < 1 {
		return criterio.NewFieldErrors("work.chunk_size", fmt.Errorf("must be at least 1, got %d", c.Work.ChunkSize))
	}
	return nil
}

func (c *Config) validateDurations() error {
	durations := []struct {
		field string
		value string
	}{
		{"agents.stagger_baseline", c.Agents.StaggerBaseline},
		{"agents.check_interval", c.Agents.CheckInterval},
		{"agents.heartbeat_stale", c.Agents.HeartbeatStale},
		{"work.stale_chunk_age", c.Work.StaleChunkAge},
		{"coord.stale_lock_age", c.Coord.StaleLockAge},
		{"coord.sweep_interval", c.Coord.SweepInterval},
	}

	var errs criterio.FieldErrorsBuilder
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			errs = errs.Append(d.field, fmt.Errorf("invalid duration %q", d.value))
		}
	}
	return errs.ToError()
}

func nonEmpty(s string) error {
	if s == "" {
		return fmt.Errorf("is required")
	}
	return nil
}

// validWorkerTemplate checks the worker command renders against the fields
// agents provide at launch.
func validWorkerTemplate(command string) error {
	_, err := tmpl.Render(command, tmpl.WorkerData{AgentID: "agent-1", Session: "probe", Index: 1, Seed: 1})
	if err != nil {
		return fmt.Errorf("template error: %w", err)
	}
	return nil
}
