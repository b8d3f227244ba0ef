package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MEKXH/mcpilot/internal/agent"
	"github.com/MEKXH/mcpilot/internal/audit"
	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/host"
	"github.com/MEKXH/mcpilot/internal/llm"
	"github.com/MEKXH/mcpilot/internal/mcp"
	"github.com/MEKXH/mcpilot/internal/metrics"
	"github.com/MEKXH/mcpilot/internal/provider"
	"github.com/MEKXH/mcpilot/internal/sandbox"
)

var sessionStatuses = []string{
	string(mcp.StatusDisconnected),
	string(mcp.StatusConnecting),
	string(mcp.StatusConnected),
	string(mcp.StatusError),
}

// app is the wired runtime shared by the commands.
type app struct {
	cfg          *config.Config
	registry     *mcp.Registry
	orchestrator *agent.Orchestrator
	exporter     *metrics.Exporter
	hosts        *provider.HostCache
	provider     string
}

type appOptions struct {
	// Provider names the provider entry; empty uses the default.
	Provider string
	// WithModel builds a backend. Commands that only inspect servers skip it.
	WithModel bool
	// ConnectAll connects every enabled server instead of auto_start ones.
	ConnectAll bool
}

// newBackend is swapped in tests.
var newBackend = func(ctx context.Context, cfg *config.Config, name string, hosts *provider.HostCache) (llm.Backend, string, error) {
	return provider.NewBackend(ctx, cfg, name, provider.Options{Hosts: hosts})
}

func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	workspace, err := cfg.WorkspacePath()
	if err != nil {
		return nil, err
	}

	exporter := metrics.NewExporter()
	reg, err := mcp.NewRegistryFromConfig(cfg.MCP, mcp.Options{Session: mcp.SessionOptions{
		HostFactory: host.Factory(workspace),
		OnEvent: func(ev mcp.Event) {
			if st, ok := ev.(mcp.EventStatus); ok {
				exporter.SetSessionStatus(st.Server, string(st.To), sessionStatuses)
			}
		},
	}})
	if err != nil {
		return nil, fmt.Errorf("build server registry: %w", err)
	}

	connect := reg.ConnectAutoStart
	if opts.ConnectAll {
		connect = reg.ConnectAll
	}
	if err := connect(ctx); err != nil {
		slog.Warn("some servers failed to connect", "error", err)
	}

	a := &app{cfg: cfg, registry: reg, exporter: exporter, hosts: provider.NewHostCache()}

	var backend llm.Backend
	if opts.WithModel {
		backend, a.provider, err = newBackend(ctx, cfg, opts.Provider, a.hosts)
		if err != nil {
			_ = reg.DisconnectAll()
			return nil, err
		}
	}

	stateDir := config.StateDir()
	a.orchestrator, err = agent.NewOrchestrator(agent.Options{
		Backend:  backend,
		Provider: a.provider,
		Tools:    reg,
		Agent:    cfg.Agent,
		Sandbox:  sandbox.OptionsFromConfig(cfg.Sandbox),
		Audit:    audit.NewWriter(stateDir),
		Metrics:  metrics.NewRuntimeMetrics(stateDir),
		Exporter: exporter,
	})
	if err != nil {
		_ = reg.DisconnectAll()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.registry.DisconnectAll(); err != nil {
		slog.Warn("disconnect servers failed", "error", err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
