package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the suite configuration file looked up when none is given.
const DefaultFile = "greenhouse.yml"

// Profile names built into every configuration.
const (
	ProfileDefault = "default"
	ProfileUI      = "ui"
	ProfileAPI     = "api"
)

const defaultFormat = "progress,html:reports/cucumber-report.html"

// Config represents the greenhouse.yml suite configuration
type Config struct {
	Version    int                  `yaml:"version"`
	Settings   Settings             `yaml:"settings"`
	Profiles   map[string]Profile   `yaml:"profiles"`
	Containers map[string]Container `yaml:"containers"`
	Target     *Target              `yaml:"target,omitempty"`
	Database   Database             `yaml:"database"`
	Hooks      Hooks                `yaml:"hooks"`
}

type Settings struct {
	Concurrency int    `yaml:"concurrency"`
	FailFast    bool   `yaml:"fail_fast"`
	Randomize   bool   `yaml:"randomize"`
	Strict      *bool  `yaml:"strict,omitempty"`
	Screenshots string `yaml:"screenshots"` // off, only-on-failure, on
	// Scenario is a regex; non-matching scenarios are skipped.
	Scenario string `yaml:"scenario,omitempty"`
	// ReadyTimeout bounds the wait for the API health endpoint before the suite starts.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`
}

// IsStrict reports whether undefined or pending steps fail the run.
func (s Settings) IsStrict() bool {
	return s.Strict == nil || *s.Strict
}

// Profile selects feature paths, a tag expression and report formats.
type Profile struct {
	Paths  []string `yaml:"paths"`
	Tags   string   `yaml:"tags"`
	Format string   `yaml:"format"`
}

type Container struct {
	Image     string            `yaml:"image"`
	Env       map[string]string `yaml:"env"`
	Ports     []string          `yaml:"ports"`
	DependsOn []string          `yaml:"depends_on"`
	WaitFor   WaitStrategy      `yaml:"wait_for"`
}

type WaitStrategy struct {
	// port, log, http or exec
	Type   string `yaml:"type"`
	Target string `yaml:"target"`
	// For HTTP
	Method string `yaml:"method,omitempty"`
	Path   string `yaml:"path,omitempty"`

	Timeout time.Duration `yaml:"timeout"`
}

// Target names the container serving the nursery application. When set, its
// mapped address replaces the API and UI base URLs.
type Target struct {
	Container string `yaml:"container"`
	Port      string `yaml:"port"`
	Scheme    string `yaml:"scheme,omitempty"`
}

// Database is the backing store that SQL hooks run against.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Hooks struct {
	BeforeAll      []Hook `yaml:"before_all"`
	AfterAll       []Hook `yaml:"after_all"`
	BeforeScenario []Hook `yaml:"before_scenario"`
	AfterScenario  []Hook `yaml:"after_scenario"`
}

type Hook struct {
	SQL       string `yaml:"sql,omitempty"`
	SQLFile   string `yaml:"sql_file,omitempty"`
	Exec      string `yaml:"exec,omitempty"`
	Container string `yaml:"container,omitempty"`
}

// Default returns the configuration used when no greenhouse.yml exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the greenhouse.yml configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when path is the default
// file name and does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	cfg, err := Load(path)
	if err != nil && path == DefaultFile && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (Profile, error) {
	if name == "" {
		name = ProfileDefault
	}
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (available: %v)", name, c.ProfileNames())
	}
	return p, nil
}

// ProfileNames returns the configured profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Settings.Concurrency == 0 {
		c.Settings.Concurrency = 1
	}
	if c.Settings.Screenshots == "" {
		c.Settings.Screenshots = "only-on-failure"
	}
	if c.Settings.ReadyTimeout == 0 {
		c.Settings.ReadyTimeout = 30 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Target != nil && c.Target.Scheme == "" {
		c.Target.Scheme = "http"
	}

	if c.Profiles == nil {
		c.Profiles = make(map[string]Profile)
	}
	builtin := map[string]Profile{
		ProfileDefault: {},
		ProfileUI:      {Tags: "@UI"},
		ProfileAPI:     {Tags: "@API"},
	}
	for name, p := range builtin {
		if _, ok := c.Profiles[name]; !ok {
			c.Profiles[name] = p
		}
	}
	for name, p := range c.Profiles {
		if len(p.Paths) == 0 {
			p.Paths = []string{"features"}
		}
		if p.Format == "" {
			p.Format = defaultFormat
		}
		c.Profiles[name] = p
	}
}

func (c *Config) validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}

	if c.Settings.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Settings.Concurrency)
	}

	switch c.Settings.Screenshots {
	case "off", "only-on-failure", "on":
	default:
		return fmt.Errorf("invalid screenshots mode: %s", c.Settings.Screenshots)
	}

	for name, cont := range c.Containers {
		for _, dep := range cont.DependsOn {
			if _, ok := c.Containers[dep]; !ok {
				return fmt.Errorf("container %q depends on unknown container %q", name, dep)
			}
		}
	}

	if c.Target != nil {
		if _, ok := c.Containers[c.Target.Container]; !ok {
			return fmt.Errorf("target references unknown container %q", c.Target.Container)
		}
		if c.Target.Port == "" {
			return fmt.Errorf("target port is required")
		}
	}

	for stage, hooks := range map[string][]Hook{
		"before_all":      c.Hooks.BeforeAll,
		"after_all":       c.Hooks.AfterAll,
		"before_scenario": c.Hooks.BeforeScenario,
		"after_scenario":  c.Hooks.AfterScenario,
	} {
		for i, h := range hooks {
			if err := c.validateHook(h); err != nil {
				return fmt.Errorf("%s hook %d: %w", stage, i, err)
			}
		}
	}

	return nil
}

func (c *Config) validateHook(h Hook) error {
	actions := 0
	for _, s := range []string{h.SQL, h.SQLFile, h.Exec} {
		if s != "" {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("exactly one of sql, sql_file or exec is required")
	}
	if (h.SQL != "" || h.SQLFile != "") && c.Database.DSN == "" {
		return fmt.Errorf("sql hooks require database.dsn")
	}
	if h.Exec != "" {
		if _, ok := c.Containers[h.Container]; !ok {
			return fmt.Errorf("exec hook references unknown container %q", h.Container)
		}
	}
	return nil
}
