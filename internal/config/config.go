package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models steeple.yml.
type Config struct {
	Tenant        string `yaml:"tenant"`
	AnchorDate    string `yaml:"anchor_date"`
	DefaultCampus string `yaml:"default_campus"`
	HoldTTL       int    `yaml:"hold_ttl_seconds"`
	CacheTTL      int    `yaml:"cache_ttl_seconds"`
	LLM           struct {
		Enabled  bool   `yaml:"enabled"`
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
		Timeout  int    `yaml:"timeout_seconds"`
	} `yaml:"llm"`
	Authz struct {
		// role -> permission codes; absence of a grant is a denial.
		Roles map[string][]string `yaml:"roles"`
	} `yaml:"authz"`
	Server struct {
		Addr                   string `yaml:"addr"`
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"server"`
}

// AnchorTime parses the anchor date used for calendar-relative resolution.
func (c *Config) AnchorTime() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.AnchorDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("anchor_date %q: %w", c.AnchorDate, err)
	}
	return t, nil
}

func (c *Config) HoldTTLDuration() time.Duration {
	if c.HoldTTL <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.HoldTTL) * time.Second
}

func (c *Config) CacheTTLDuration() time.Duration {
	if c.CacheTTL <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.CacheTTL) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	if c.LLM.Timeout <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.LLM.Timeout) * time.Second
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Tenant == "" {
		return fmt.Errorf("config.tenant is required")
	}
	if _, err := c.AnchorTime(); err != nil {
		return err
	}
	if c.DefaultCampus == "" {
		return fmt.Errorf("config.default_campus is required")
	}
	for role, perms := range c.Authz.Roles {
		if role == "" {
			return fmt.Errorf("config.authz.roles contains empty role id")
		}
		for _, p := range perms {
			if p == "" {
				return fmt.Errorf("role %s has empty permission id", role)
			}
		}
	}
	if c.LLM.Enabled && c.LLM.Provider == "" {
		return fmt.Errorf("config.llm.provider is required when llm is enabled")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "steeple.yml")
}

// Load reads and validates config from workspace; falls back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration: a single tenant anchored to
// a fixed Sunday with the phase-1 role grants.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

const defaultTemplate = `tenant: t_main
anchor_date: 2025-01-05
default_campus: Main
hold_ttl_seconds: 120
cache_ttl_seconds: 300

llm:
  enabled: false
  provider: gemini
  model: gemini-2.5-flash
  timeout_seconds: 15

authz:
  roles:
    pastor: [volunteer.manage, room.allocate, message.send, planning.create]
    staff: [volunteer.manage, room.allocate, message.send, planning.create]
    intern: [message.send, planning.create]

server:
  addr: ":8080"
  allow_legacy_actor_header: true
`
