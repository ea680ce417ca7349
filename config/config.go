// Package config defines the typed configuration structures agentbridge's
// Agent Contract, MCP Client, and Agent Manager are constructed from, plus a
// YAML loader for multi-session bootstrap, grounded on
// original_source/src/agent/base.py's AgentConfig, original_source/src/mcp/
// client.py's MCPClientConfig, and original_source/src/config/defaults.py.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quaylabs/agentbridge/orcherr"
)

// AgentConfig is the provider-agnostic configuration shared by every Agent
// Contract implementation (spec §4.1).
type AgentConfig struct {
	Model             string
	ThinkingEnabled   bool
	StreamEnabled     bool
	SystemPromptPath  string
	SupportsVision    bool
	Options           map[string]any
}

// DefaultAgentConfig returns the zero-value-safe defaults mirroring the
// Python dataclass defaults (model "llama3.2:3b", everything else off).
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{Model: "llama3.2:3b"}
}

// Transport enumerates the MCP Client transports recognized at config time.
// Only TransportSSE is actually dialable; the others are accepted so a
// config document round-trips, but MCP Client rejects them at initialize
// time with an orcherr.ConfigError (spec §4.6, SPEC_FULL §4.6).
type Transport string

const (
	TransportSSE             Transport = "sse"
	TransportStdio           Transport = "stdio"
	TransportStreamableHTTP  Transport = "streamable_http"
)

// MCPClientConfig configures a single MCP Client connection (spec §6).
type MCPClientConfig struct {
	Name           string
	Transport      Transport
	URL            string
	AuthToken      string
	Timeout        float64 // seconds; connect/initialize timeout
	SSEReadTimeout float64 // seconds; idle read timeout on the SSE stream
}

// DefaultMCPClientConfig returns the defaults from
// original_source/src/mcp/client.py's MCPClientConfig (timeout=5.0,
// sse_read_timeout=300.0, transport="sse").
func DefaultMCPClientConfig(name, url string) MCPClientConfig {
	return MCPClientConfig{
		Name:           name,
		Transport:      TransportSSE,
		URL:            url,
		Timeout:        5.0,
		SSEReadTimeout: 300.0,
	}
}

// Validate checks the fields a ConfigError (spec §7) can be raised for at
// Manager/session startup, before any session exists to fold an error into.
func (c MCPClientConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return orcherr.NewConfigError("mcp.name", "must not be empty")
	}
	if c.Transport == TransportSSE && strings.TrimSpace(c.URL) == "" {
		return orcherr.NewConfigError("mcp.url", "must not be empty for sse transport")
	}
	return nil
}

// ProviderDefaults holds the per-provider default option map merged into a
// new session's provider bundle unless overridden by the caller, grounded
// on original_source/src/config/defaults.py's ProviderDefaults.
type ProviderDefaults map[string]map[string]any

// ManagerConfig is the YAML-loadable shape used to bootstrap an Agent
// Manager's provider registry and defaults (SPEC_FULL §4.9 domain-stack
// addition).
type ManagerConfig struct {
	DefaultProvider  string           `yaml:"default_provider"`
	DefaultModel     string           `yaml:"default_model"`
	SystemPromptPath string           `yaml:"system_prompt_path"`
	ProviderDefaults ProviderDefaults `yaml:"provider_defaults"`
}

// LoadManagerConfig reads and parses a YAML manager configuration document.
func LoadManagerConfig(path string) (ManagerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ManagerConfig{}, orcherr.NewConfigError(path, fmt.Sprintf("reading config: %v", err))
	}
	var cfg ManagerConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ManagerConfig{}, orcherr.NewConfigError(path, fmt.Sprintf("parsing config: %v", err))
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "ollama"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3.2:3b"
	}
	if cfg.ProviderDefaults == nil {
		cfg.ProviderDefaults = ProviderDefaults{}
	}
	if _, ok := cfg.ProviderDefaults["ollama"]; !ok {
		cfg.ProviderDefaults["ollama"] = map[string]any{"host": "http://localhost:11434"}
	}
	return cfg, nil
}
