// Package config handles configuration loading and validation for autopilot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when the config file omits a value.
const (
	DefaultSession          = "autopilot"
	DefaultMaxAgents        = 10
	DefaultAgentCount       = 3
	DefaultMaxErrors        = 3
	DefaultContextThreshold = 20
	DefaultChunkSize        = 10
	DefaultWorkerCommand    = "claude --dangerously-skip-permissions"

	DefaultStaggerBaseline = 5 * time.Second
	DefaultCheckInterval   = 30 * time.Second
	DefaultHeartbeatStale  = 120 * time.Second
	DefaultStaleChunkAge   = 5 * time.Minute
	DefaultStaleLockAge    = 2 * time.Hour
	DefaultSweepInterval   = time.Minute
)

// Config holds the application configuration.
type Config struct {
	Session string       `yaml:"session"`
	Agents  AgentsConfig `yaml:"agents"`
	Worker  WorkerConfig `yaml:"worker"`
	Work    WorkConfig   `yaml:"work"`
	Coord   CoordConfig  `yaml:"coord"`

	DataDir string `yaml:"-"` // set by caller, not from config file
}

// AgentsConfig controls the agent pool.
type AgentsConfig struct {
	Max              int    `yaml:"max"`
	DefaultCount     int    `yaml:"default_count"`
	MaxErrors        int    `yaml:"max_errors"`
	ContextThreshold int    `yaml:"context_threshold"`
	PreserveSession  bool   `yaml:"preserve_session"`
	StaggerBaseline  string `yaml:"stagger_baseline"` // duration, e.g. "5s"
	CheckInterval    string `yaml:"check_interval"`   // duration, e.g. "30s"
	HeartbeatStale   string `yaml:"heartbeat_stale"`  // duration, e.g. "120s"
}

// WorkerConfig describes the hosted worker process.
type WorkerConfig struct {
	// Command is the shell command launched in each agent pane.
	Command string `yaml:"command"`
	// ReadyMarkers are substrings of pane output that signal the worker is
	// waiting for input. Defaults cover the claude CLI prompt.
	ReadyMarkers []string `yaml:"ready_markers"`
	// ConfirmPrompts are substrings that signal a pending confirmation dialog.
	ConfirmPrompts []string `yaml:"confirm_prompts"`
	// BusyMarkers are substrings that signal the worker is actively running.
	BusyMarkers []string `yaml:"busy_markers"`
}

// WorkConfig controls the work distributor.
type WorkConfig struct {
	ChunkSize     int    `yaml:"chunk_size"`
	StaleChunkAge string `yaml:"stale_chunk_age"` // duration, e.g. "5m"
	// Reports are doublestar glob patterns for problem report files loaded
	// by `autopilot work load --all`.
	Reports []string `yaml:"reports"`
}

// CoordConfig controls the cross-process coordination protocol.
type CoordConfig struct {
	// Dir overrides the coordination directory (default <data-dir>/coordination).
	Dir          string `yaml:"dir"`
	StaleLockAge string `yaml:"stale_lock_age"` // duration, e.g. "2h"
	// SweepInterval is how often the background sweep reclaims stale
	// chunks and locks.
	SweepInterval string `yaml:"sweep_interval"`
}

// Load reads a config from path and applies defaults. A missing file is not
// an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Session == "" {
		c.Session = DefaultSession
	}
	if c.Agents.Max == 0 {
		c.Agents.Max = DefaultMaxAgents
	}
	if c.Agents.DefaultCount == 0 {
		c.Agents.DefaultCount = DefaultAgentCount
	}
	if c.Agents.MaxErrors == 0 {
		c.Agents.MaxErrors = DefaultMaxErrors
	}
	if c.Agents.ContextThreshold == 0 {
		c.Agents.ContextThreshold = DefaultContextThreshold
	}
	if c.Worker.Command == "" {
		c.Worker.Command = DefaultWorkerCommand
	}
	if c.Work.ChunkSize == 0 {
		c.Work.ChunkSize = DefaultChunkSize
	}
}

// StaggerBaseline returns the parsed launch stagger baseline.
func (c *Config) StaggerBaseline() time.Duration {
	return parseDuration(c.Agents.StaggerBaseline, DefaultStaggerBaseline)
}

// CheckInterval returns the parsed health check interval.
func (c *Config) CheckInterval() time.Duration {
	return parseDuration(c.Agents.CheckInterval, DefaultCheckInterval)
}

// HeartbeatStale returns the heartbeat age past which an agent counts as stuck.
func (c *Config) HeartbeatStale() time.Duration {
	return parseDuration(c.Agents.HeartbeatStale, DefaultHeartbeatStale)
}

// StaleChunkAge returns the age past which an assigned chunk is abandoned.
func (c *Config) StaleChunkAge() time.Duration {
	return parseDuration(c.Work.StaleChunkAge, DefaultStaleChunkAge)
}

// StaleLockAge returns the age past which a coordination lock is reclaimed.
func (c *Config) StaleLockAge() time.Duration {
	return parseDuration(c.Coord.StaleLockAge, DefaultStaleLockAge)
}

// SweepInterval returns how often the background sweep runs.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.Coord.SweepInterval, DefaultSweepInterval)
}

// HeartbeatDir returns the directory holding per-agent heartbeat files.
func (c *Config) HeartbeatDir() string {
	return filepath.Join(c.DataDir, "heartbeats")
}

// StatePath returns the orchestrator state file path.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "orchestrator_state.json")
}

// WorkStatePath returns the work distributor state file path.
func (c *Config) WorkStatePath() string {
	return filepath.Join(c.DataDir, "work_state.json")
}

// CoordDir returns the shared coordination directory.
func (c *Config) CoordDir() string {
	if c.Coord.Dir != "" {
		return c.Coord.Dir
	}
	return filepath.Join(c.DataDir, "coordination")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
