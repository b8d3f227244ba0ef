package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Agent     AgentConfig     `mapstructure:"agent" json:"agent"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
	MCP       MCPConfig       `mapstructure:"mcp" json:"mcp"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox" json:"sandbox"`
	Workspace string          `mapstructure:"workspace" json:"workspace" jsonschema:"description=Root directory served by the builtin workspace host"`
	Metrics   MetricsConfig   `mapstructure:"metrics" json:"metrics"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level string `mapstructure:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File  string `mapstructure:"file" json:"file"`
}

// AgentConfig orchestration and resource selection settings
type AgentConfig struct {
	SystemPrompt        string  `mapstructure:"system_prompt" json:"system_prompt"`
	MaxToolIterations   int     `mapstructure:"max_tool_iterations" json:"max_tool_iterations" jsonschema:"minimum=1"`
	MaxResources        int     `mapstructure:"max_resources" json:"max_resources" jsonschema:"minimum=0"`
	SelectionStrategy   string  `mapstructure:"selection_strategy" json:"selection_strategy" jsonschema:"enum=priority,enum=semantic,enum=hybrid"`
	RelevanceThreshold  float64 `mapstructure:"relevance_threshold" json:"relevance_threshold" jsonschema:"minimum=0,maximum=1"`
	DiversityPenalty    float64 `mapstructure:"diversity_penalty" json:"diversity_penalty" jsonschema:"minimum=0,maximum=1"`
	DiversityPenaltyCap float64 `mapstructure:"diversity_penalty_cap" json:"diversity_penalty_cap" jsonschema:"minimum=0,maximum=1"`
	DiversityFloor      float64 `mapstructure:"diversity_floor" json:"diversity_floor" jsonschema:"minimum=0,maximum=1"`
}

// ProvidersConfig LLM provider settings
type ProvidersConfig struct {
	Default string                    `mapstructure:"default" json:"default"`
	Entries map[string]ProviderConfig `mapstructure:"entries" json:"entries"`
}

// ProviderConfig single provider settings
type ProviderConfig struct {
	Vendor         string  `mapstructure:"vendor" json:"vendor" jsonschema:"enum=openai,enum=anthropic,enum=mistral,enum=ollama"`
	Mode           string  `mapstructure:"mode" json:"mode" jsonschema:"enum=stream,enum=sdk"`
	APIKey         string  `mapstructure:"api_key" json:"api_key"`
	BaseURL        string  `mapstructure:"base_url" json:"base_url"`
	Model          string  `mapstructure:"model" json:"model"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature" json:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// MCPConfig capability server settings
type MCPConfig struct {
	ToolConflict    string                     `mapstructure:"tool_conflict" json:"tool_conflict" jsonschema:"enum=first,enum=reject"`
	CacheTTLSeconds int                        `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	Servers         map[string]MCPServerConfig `mapstructure:"servers" json:"servers"`
}

// MCPServerConfig one capability server
type MCPServerConfig struct {
	Transport      string            `mapstructure:"transport" json:"transport" jsonschema:"enum=internal,enum=http,enum=sse,enum=websocket,enum=stdio"`
	URL            string            `mapstructure:"url" json:"url,omitempty"`
	Enabled        *bool             `mapstructure:"enabled" json:"enabled,omitempty"`
	AutoStart      bool              `mapstructure:"auto_start" json:"auto_start"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Headers        map[string]string `mapstructure:"headers" json:"headers,omitempty"`
}

// SandboxConfig script executor settings
type SandboxConfig struct {
	TimeoutMS    int `mapstructure:"timeout_ms" json:"timeout_ms"`
	MaxToolCalls int `mapstructure:"max_tool_calls" json:"max_tool_calls"`
}

// MetricsConfig prometheus exporter settings
type MetricsConfig struct {
	Listen string `mapstructure:"listen" json:"listen" jsonschema:"description=host:port for the /metrics endpoint; empty disables it"`
}

// IsMCPServerEnabled reports whether a server should get a session. Missing flag means enabled.
func IsMCPServerEnabled(cfg MCPServerConfig) bool {
	return cfg.Enabled == nil || *cfg.Enabled
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Agent: AgentConfig{
			SystemPrompt:        "You are a development assistant. Use the available tools when they help answer the question.",
			MaxToolIterations:   10,
			MaxResources:        5,
			SelectionStrategy:   "hybrid",
			RelevanceThreshold:  0.35,
			DiversityPenalty:    0.1,
			DiversityPenaltyCap: 0.3,
			DiversityFloor:      0.1,
		},
		Providers: ProvidersConfig{
			Default: "ollama",
			Entries: map[string]ProviderConfig{
				"ollama": {
					Vendor:         "ollama",
					Mode:           "stream",
					Model:          "llama3.1",
					TimeoutSeconds: 120,
				},
			},
		},
		MCP: MCPConfig{
			ToolConflict:    "first",
			CacheTTLSeconds: 120,
			Servers: map[string]MCPServerConfig{
				"workspace": {
					Transport: "internal",
					AutoStart: true,
				},
			},
		},
		Sandbox: SandboxConfig{
			TimeoutMS: 30000,
		},
		Workspace: "",
	}
}

// ConfigDir returns the mcpilot config directory
func ConfigDir() string {
	if dir := strings.TrimSpace(os.Getenv("MCPILOT_HOME")); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("failed to resolve home directory, using current directory as fallback", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".mcpilot")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// StateDir holds runtime metrics and the audit log.
func StateDir() string {
	return filepath.Join(ConfigDir(), "state")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads config from an explicit path, writing defaults there when absent.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveTo(configPath, cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := decode(v, cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("MCPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper, cfg *Config) error {
	return v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	})
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	return SaveTo(ConfigPath(), cfg)
}

// SaveTo writes config to an explicit path.
func SaveTo(configPath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	a := &c.Agent

	if a.MaxToolIterations < 0 {
		return fmt.Errorf("agent.max_tool_iterations must not be negative, got %d", a.MaxToolIterations)
	}
	if a.MaxToolIterations == 0 {
		a.MaxToolIterations = 10
	}
	if a.MaxResources < 0 {
		return fmt.Errorf("agent.max_resources must not be negative, got %d", a.MaxResources)
	}

	strategy := strings.ToLower(strings.TrimSpace(a.SelectionStrategy))
	switch strategy {
	case "":
		a.SelectionStrategy = "hybrid"
	case "priority", "semantic", "hybrid":
		a.SelectionStrategy = strategy
	default:
		return fmt.Errorf("agent.selection_strategy must be one of priority, semantic, hybrid; got %q", a.SelectionStrategy)
	}

	for name, value := range map[string]float64{
		"agent.relevance_threshold":   a.RelevanceThreshold,
		"agent.diversity_penalty":     a.DiversityPenalty,
		"agent.diversity_penalty_cap": a.DiversityPenaltyCap,
		"agent.diversity_floor":       a.DiversityFloor,
	} {
		if value < 0 || value > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, value)
		}
	}

	if c.Providers.Default != "" {
		if _, ok := c.Providers.Entries[c.Providers.Default]; !ok {
			return fmt.Errorf("providers.default %q has no matching entry", c.Providers.Default)
		}
	}
	for name, p := range c.Providers.Entries {
		vendor := strings.ToLower(strings.TrimSpace(p.Vendor))
		switch vendor {
		case "openai", "anthropic", "mistral", "ollama":
		default:
			return fmt.Errorf("providers.entries.%s.vendor must be one of openai, anthropic, mistral, ollama; got %q", name, p.Vendor)
		}
		mode := strings.ToLower(strings.TrimSpace(p.Mode))
		switch mode {
		case "":
			mode = "stream"
		case "stream", "sdk":
		default:
			return fmt.Errorf("providers.entries.%s.mode must be stream or sdk; got %q", name, p.Mode)
		}
		if p.Temperature < 0 || p.Temperature > 2.0 {
			return fmt.Errorf("providers.entries.%s.temperature must be between 0 and 2.0, got %f", name, p.Temperature)
		}
		p.Vendor = vendor
		p.Mode = mode
		c.Providers.Entries[name] = p
	}

	conflict := strings.ToLower(strings.TrimSpace(c.MCP.ToolConflict))
	switch conflict {
	case "":
		c.MCP.ToolConflict = "first"
	case "first", "reject":
		c.MCP.ToolConflict = conflict
	default:
		return fmt.Errorf("mcp.tool_conflict must be first or reject; got %q", c.MCP.ToolConflict)
	}
	if c.MCP.CacheTTLSeconds <= 0 {
		c.MCP.CacheTTLSeconds = 120
	}
	for name, s := range c.MCP.Servers {
		transport := strings.ToLower(strings.TrimSpace(s.Transport))
		switch transport {
		case "internal", "stdio":
		case "http", "sse", "websocket":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("mcp.servers.%s.url is required for %s transport", name, transport)
			}
		default:
			return fmt.Errorf("mcp.servers.%s.transport must be one of internal, http, sse, websocket; got %q", name, s.Transport)
		}
		s.Transport = transport
		c.MCP.Servers[name] = s
	}

	if c.Sandbox.TimeoutMS < 0 {
		return fmt.Errorf("sandbox.timeout_ms must not be negative, got %d", c.Sandbox.TimeoutMS)
	}
	if c.Sandbox.TimeoutMS == 0 {
		c.Sandbox.TimeoutMS = 30000
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}

	return nil
}

// WorkspacePath returns the expanded workspace path. Empty means the current directory.
func (c *Config) WorkspacePath() (string, error) {
	ws := strings.TrimSpace(c.Workspace)
	if ws == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to resolve cwd: %w", err)
		}
		return wd, nil
	}
	if ws[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory for workspace path: %w", err)
		}
		rest := strings.TrimPrefix(strings.TrimPrefix(ws[1:], string(filepath.Separator)), "/")
		return filepath.Join(homeDir, rest), nil
	}
	return filepath.Abs(ws)
}

// Provider returns the named provider entry, or the default one when name is empty.
func (c *Config) Provider(name string) (string, ProviderConfig, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = c.Providers.Default
	}
	p, ok := c.Providers.Entries[name]
	if !ok {
		return name, ProviderConfig{}, fmt.Errorf("provider %q is not configured", name)
	}
	return name, p, nil
}
