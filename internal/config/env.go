package config

import (
	"os"
	"strconv"
	"strings"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "ORCHESTRATOR_BASE_DIR",
		apply: func(c *Config, v string) {
			c.BaseDir = v
		},
	},
	{
		envVar: "ORCHESTRATOR_BASE_BRANCH",
		apply: func(c *Config, v string) {
			c.BaseBranch = v
			c.BaseBranchExplicit = true
		},
	},
	{
		envVar: "ORCHESTRATOR_JOB_ID",
		apply: func(c *Config, v string) {
			c.JobID = v
		},
	},
	{
		envVar: "ORCHESTRATOR_DB_PATH",
		apply: func(c *Config, v string) {
			c.DBPath = v
		},
	},
	{
		envVar: "ORCHESTRATOR_TEE_CODEX",
		apply: func(c *Config, v string) {
			if on, ok := ParseBool(v); ok {
				if on {
					c.Tee = TeeOn
				} else {
					c.Tee = TeeOff
				}
			}
		},
	},
	{
		envVar: "DASHBOARD_PORT",
		apply: func(c *Config, v string) {
			if port, err := strconv.Atoi(v); err == nil {
				c.DashboardPort = port
			}
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}

// ParseBool interprets the accepted boolean spellings for tee overrides.
// The second return value reports whether the input was recognised.
func ParseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true", "on":
		return true, true
	case "0", "no", "false", "off":
		return false, true
	}
	return false, false
}
