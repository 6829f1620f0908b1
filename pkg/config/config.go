package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shipway/shipway/pkg/types"
)

// DefaultFile is the config file looked up when --config is not given.
const DefaultFile = "shipway.yaml"

// ProbeConfig is the bounded-retry verification policy. Attempt count and
// interval live here, not in the state machine, so the policy is a single
// auditable configuration surface.
type ProbeConfig struct {
	Attempts    int           `yaml:"attempts"`
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Consecutive int           `yaml:"consecutive"`
}

// TransferConfig bounds artifact transfer retries. Partial transfers are
// discarded and retried wholesale.
type TransferConfig struct {
	Retries int `yaml:"retries"`
}

// RetentionConfig controls artifact pruning after a committed deployment.
type RetentionConfig struct {
	Keep int `yaml:"keep"`
}

// SSHConfig holds remote channel timeouts. ConnectTimeout bounds the dial;
// CommandTimeout bounds each remote command so a reachable-but-hanging
// target cannot block a run indefinitely.
type SSHConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// Config is the full orchestrator configuration loaded from shipway.yaml.
type Config struct {
	Target    types.DeploymentTarget `yaml:"target"`
	SourceDir string                 `yaml:"source_dir"`
	DataDir   string                 `yaml:"data_dir"`
	StoreDir  string                 `yaml:"store_dir"`

	Probe     ProbeConfig     `yaml:"probe"`
	Transfer  TransferConfig  `yaml:"transfer"`
	Retention RetentionConfig `yaml:"retention"`
	SSH       SSHConfig       `yaml:"ssh"`

	// MetricsFile, when set, receives run metrics in Prometheus textfile
	// collector format after each run. Best-effort.
	MetricsFile string `yaml:"metrics_file"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns a Config populated with defaults. Policy knobs default to
// conservative values; the target itself has no default and must come from
// the file.
func Default() *Config {
	return &Config{
		SourceDir: ".",
		DataDir:   defaultDataDir(),
		Probe: ProbeConfig{
			Attempts:    10,
			Interval:    3 * time.Second,
			Timeout:     5 * time.Second,
			Consecutive: 1,
		},
		Transfer:  TransferConfig{Retries: 2},
		Retention: RetentionConfig{Keep: 5},
		SSH: SSHConfig{
			ConnectTimeout: 10 * time.Second,
			CommandTimeout: 5 * time.Minute,
		},
		LogLevel: "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shipway"
	}
	return filepath.Join(home, ".shipway")
}

// Load reads and validates a config file. Missing optional values are
// filled from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for values the file zeroed out.
func (c *Config) applyDefaults() {
	def := Default()
	if c.SourceDir == "" {
		c.SourceDir = def.SourceDir
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.StoreDir == "" {
		c.StoreDir = filepath.Join(c.DataDir, "artifacts")
	}
	if c.Probe.Attempts <= 0 {
		c.Probe.Attempts = def.Probe.Attempts
	}
	if c.Probe.Interval <= 0 {
		c.Probe.Interval = def.Probe.Interval
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = def.Probe.Timeout
	}
	if c.Probe.Consecutive <= 0 {
		c.Probe.Consecutive = def.Probe.Consecutive
	}
	if c.Transfer.Retries <= 0 {
		c.Transfer.Retries = def.Transfer.Retries
	}
	if c.Retention.Keep <= 0 {
		c.Retention.Keep = def.Retention.Keep
	}
	if c.SSH.ConnectTimeout <= 0 {
		c.SSH.ConnectTimeout = def.SSH.ConnectTimeout
	}
	if c.SSH.CommandTimeout <= 0 {
		c.SSH.CommandTimeout = def.SSH.CommandTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Target.Port == 0 {
		c.Target.Port = 22
	}
}

// Validate checks that the target descriptor is complete.
func (c *Config) Validate() error {
	if c.Target.Name == "" {
		return fmt.Errorf("target.name is required")
	}
	// The underscore separates name from revision in artifact filenames;
	// a name containing one would alias across store catalogs.
	if strings.Contains(c.Target.Name, "_") {
		return fmt.Errorf("target.name must not contain '_'")
	}
	if c.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if c.Target.User == "" {
		return fmt.Errorf("target.user is required")
	}
	if c.Target.WorkDir == "" {
		return fmt.Errorf("target.workdir is required")
	}
	if c.Target.Descriptor == "" {
		return fmt.Errorf("target.descriptor is required")
	}
	if c.Target.HealthURL == "" {
		return fmt.Errorf("target.health_url is required")
	}
	return nil
}
