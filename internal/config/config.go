// Package config loads the agentd TOML configuration and resolves the data
// directory and credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/agentd-dev/agentd/internal/mcp"
	"github.com/agentd-dev/agentd/internal/policy"
	"github.com/agentd-dev/agentd/internal/provider"
)

// KnownProviders lists valid backend provider names.
var KnownProviders = []string{"anthropic", "claude-cli"}

const (
	envAPIKey     = "ANTHROPIC_API_KEY"
	envOAuthToken = "ANTHROPIC_OAUTH_TOKEN"
)

// Config is the full agentd configuration file.
type Config struct {
	Backend    BackendConfig     `toml:"backend"`
	Allow      policy.AllowRules `toml:"allow"`
	Deny       DenyConfig        `toml:"deny"`
	MCPServers []MCPServer       `toml:"mcp_servers"`
}

// BackendConfig is the [backend] section.
type BackendConfig struct {
	Provider   string `toml:"provider"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	OAuthToken string `toml:"oauth_token"`
}

// DenyConfig is the [deny] section. Kinds listed under all are denied
// outright, overriding any allow rules.
type DenyConfig struct {
	All []string `toml:"all"`
}

// MCPServer is one [[mcp_servers]] entry.
type MCPServer struct {
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Env     map[string]string `toml:"env"`
}

// Load reads and parses a config file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a TOML config, applies defaults, and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Backend.Provider == "" {
		cfg.Backend.Provider = "anthropic"
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = provider.DefaultModel
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	known := false
	for _, p := range KnownProviders {
		if c.Backend.Provider == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown provider %q (known: %s)",
			c.Backend.Provider, strings.Join(KnownProviders, ", "))
	}

	for _, kind := range c.Deny.All {
		if _, err := policy.ParseCapabilityKind(kind); err != nil {
			return fmt.Errorf("[deny] all: %w", err)
		}
	}

	for i, srv := range c.MCPServers {
		if srv.Name == "" {
			return fmt.Errorf("mcp_servers[%d]: name is required", i)
		}
		if srv.Command == "" {
			return fmt.Errorf("mcp_servers[%d] (%s): command is required", i, srv.Name)
		}
	}
	return nil
}

// ResolveAuth produces the credential for the Anthropic backend. Config
// values win over the environment; setting both api_key and oauth_token in
// the config is an error, and so is having neither anywhere.
func (b BackendConfig) ResolveAuth() (provider.Auth, error) {
	key := strings.TrimSpace(b.APIKey)
	token := strings.TrimSpace(b.OAuthToken)

	if key != "" && token != "" {
		return provider.Auth{}, fmt.Errorf("[backend]: api_key and oauth_token are mutually exclusive")
	}
	if key != "" {
		return provider.APIKeyAuth(key), nil
	}
	if token != "" {
		return provider.OAuthAuth(token), nil
	}

	if key := strings.TrimSpace(os.Getenv(envAPIKey)); key != "" {
		return provider.APIKeyAuth(key), nil
	}
	if token := strings.TrimSpace(os.Getenv(envOAuthToken)); token != "" {
		return provider.OAuthAuth(token), nil
	}
	return provider.Auth{}, fmt.Errorf("no credentials: set [backend] api_key or oauth_token, or %s / %s", envAPIKey, envOAuthToken)
}

// Policy assembles the capability policy. A config with no allow patterns
// and no deny entries gets the restrictive default.
func (c *Config) Policy() policy.Policy {
	if c.policyUnset() {
		return policy.Restrictive()
	}
	p := policy.Policy{Allow: c.Allow}
	for _, kind := range c.Deny.All {
		// validate already vetted the names.
		k, _ := policy.ParseCapabilityKind(kind)
		p.Deny.All = append(p.Deny.All, k)
	}
	return p
}

func (c *Config) policyUnset() bool {
	a := c.Allow
	return len(a.FsRead) == 0 && len(a.FsWrite) == 0 && len(a.NetHTTP) == 0 &&
		len(a.Exec) == 0 && len(a.SecretsRead) == 0 && len(c.Deny.All) == 0
}

// ServerConfigs maps the [[mcp_servers]] entries to the MCP client's form.
func (c *Config) ServerConfigs() []mcp.ServerConfig {
	out := make([]mcp.ServerConfig, len(c.MCPServers))
	for i, srv := range c.MCPServers {
		out[i] = mcp.ServerConfig{
			Name:    srv.Name,
			Command: srv.Command,
			Args:    srv.Args,
			Env:     srv.Env,
		}
	}
	return out
}

// dataDirOverride is set by tests to redirect DataDir.
var dataDirOverride string

// DataDir returns the agentd data directory, creating it if needed.
// $XDG_DATA_HOME wins; otherwise the OS convention applies.
func DataDir() (string, error) {
	if dataDirOverride != "" {
		return dataDirOverride, nil
	}
	var base string
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		base = xdg
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		switch runtime.GOOS {
		case "darwin":
			base = filepath.Join(home, "Library", "Application Support")
		case "windows":
			base = os.Getenv("APPDATA")
			if base == "" {
				base = filepath.Join(home, "AppData", "Roaming")
			}
		default:
			base = filepath.Join(home, ".local", "share")
		}
	}
	dir := filepath.Join(base, "agentd")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentd", "config.toml")
}

// StorePath returns the event database location.
func StorePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "events.db"), nil
}
