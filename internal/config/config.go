package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDashboardPort is the port the read/stream API listens on when no
// override is supplied.
const DefaultDashboardPort = 4179

// DefaultBaseBranch is used when neither the CLI, the environment, nor the
// repository HEAD yields a base branch.
const DefaultBaseBranch = "main"

// DefaultDBFile is the state store filename created in the working
// directory when ORCHESTRATOR_DB_PATH is unset.
const DefaultDBFile = "orchestrator.db"

// TeeMode controls whether Worker-CLI output is mirrored to the terminal.
type TeeMode int

const (
	// TeeAuto defers the decision: tee is off while a job log is active,
	// otherwise on when stderr is a terminal.
	TeeAuto TeeMode = iota

	// TeeOn forces terminal tee regardless of the job log.
	TeeOn

	// TeeOff disables terminal tee entirely.
	TeeOff
)

// Config holds all orchestrator settings. It is immutable after Load().
type Config struct {
	// BaseDir is the default repository root when none is supplied.
	BaseDir string `yaml:"base_dir"`

	// BaseBranch is the default base branch when detection fails.
	BaseBranch string `yaml:"base_branch"`

	// BaseBranchExplicit records whether BaseBranch was supplied by the
	// config file or environment rather than the built-in default. An
	// explicit branch takes precedence over repository HEAD detection.
	BaseBranchExplicit bool `yaml:"-"`

	// JobID pins the job identifier instead of generating one.
	JobID string `yaml:"job_id"`

	// DBPath is the SQLite state store location.
	DBPath string `yaml:"db_path"`

	// DashboardPort is the HTTP/WS listen port.
	DashboardPort int `yaml:"dashboard_port"`

	// WorkerCommand is the Worker CLI binary (default "worker-cli").
	WorkerCommand string `yaml:"worker_command"`

	// ReasoningEffort is passed to the Worker CLI when non-empty.
	ReasoningEffort string `yaml:"reasoning_effort"`

	// Tee controls mirroring of Worker-CLI output to the terminal.
	Tee TeeMode `yaml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseBranch:      DefaultBaseBranch,
		DBPath:          DefaultDBFile,
		DashboardPort:   DefaultDashboardPort,
		WorkerCommand:   "worker-cli",
		ReasoningEffort: "medium",
		Tee:             TeeAuto,
	}
}

// Load builds the effective configuration: defaults, then an optional
// orchard.yaml in dir, then environment overrides.
func Load(dir string) (Config, error) {
	cfg := Default()

	path := filepath.Join(dir, "orchard.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
		if cfg.BaseBranch != DefaultBaseBranch {
			cfg.BaseBranchExplicit = true
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if cfg.DashboardPort <= 0 || cfg.DashboardPort > 65535 {
		return cfg, fmt.Errorf("invalid dashboard port: %d", cfg.DashboardPort)
	}
	return cfg, nil
}
