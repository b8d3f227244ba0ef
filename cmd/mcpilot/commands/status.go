package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/metrics"
	"github.com/MEKXH/mcpilot/internal/render"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and runtime status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	workspacePath, err := cfg.WorkspacePath()
	if err != nil {
		return fmt.Errorf("invalid workspace: %w", err)
	}

	fmt.Println(render.Header("mcpilot Status"))
	fmt.Println()

	fmt.Println("Config")
	fmt.Printf("  Path: %s\n", config.ConfigPath())
	if _, err := os.Stat(config.ConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found")
	}

	fmt.Printf("\nWorkspace: %s\n", workspacePath)
	if _, err := os.Stat(workspacePath); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found")
	}

	fmt.Println("\nProviders")
	for _, name := range sortedKeys(cfg.Providers.Entries) {
		p := cfg.Providers.Entries[name]
		marker := ""
		if name == cfg.Providers.Default {
			marker = " (default)"
		}
		key := "no key"
		if strings.TrimSpace(p.APIKey) != "" {
			key = "key configured"
		}
		base := p.BaseURL
		if base == "" {
			base = "auto"
		}
		fmt.Printf("  %s%s: %s/%s mode=%s base=%s %s\n", name, marker, p.Vendor, p.Model, p.Mode, base, key)
	}

	fmt.Println("\nServers")
	if len(cfg.MCP.Servers) == 0 {
		fmt.Println("  none configured")
	}
	for _, name := range sortedKeys(cfg.MCP.Servers) {
		srv := cfg.MCP.Servers[name]
		state := "enabled"
		if !config.IsMCPServerEnabled(srv) {
			state = "disabled"
		}
		if srv.AutoStart {
			state += ", auto_start"
		}
		target := srv.URL
		if target == "" {
			target = "-"
		}
		fmt.Printf("  %s: %s %s (%s)\n", name, srv.Transport, target, state)
	}
	fmt.Printf("  Tool conflicts: %s\n", cfg.MCP.ToolConflict)

	fmt.Println("\nAgent")
	fmt.Printf("  Max tool iterations: %d\n", cfg.Agent.MaxToolIterations)
	fmt.Printf("  Resources: max=%d strategy=%s threshold=%.2f\n", cfg.Agent.MaxResources, cfg.Agent.SelectionStrategy, cfg.Agent.RelevanceThreshold)
	fmt.Printf("  Sandbox: timeout=%dms max_tool_calls=%d\n", cfg.Sandbox.TimeoutMS, cfg.Sandbox.MaxToolCalls)
	if cfg.Metrics.Listen != "" {
		fmt.Printf("  Metrics endpoint: http://%s/metrics\n", cfg.Metrics.Listen)
	}

	fmt.Println("\nRuntime Metrics")
	snap, err := metrics.ReadRuntimeSnapshot(config.StateDir())
	switch {
	case err != nil:
		fmt.Printf("  unavailable: %v\n", err)
	case !snap.HasData():
		fmt.Println("  no runtime data yet")
	default:
		fmt.Printf("  Tools: total=%d error_ratio=%.2f timeout_ratio=%.2f p95_proxy=%dms\n",
			snap.Tool.Total, snap.Tool.ErrorRatio(), snap.Tool.TimeoutRatio(), snap.Tool.P95ProxyLatencyMs)
		fmt.Printf("  Model: turns=%d failures=%d tool_call_turns=%d\n",
			snap.Model.Turns, snap.Model.Failures, snap.Model.ToolCallTurns)
		fmt.Printf("  Sandbox: runs=%d failures=%d\n", snap.Sandbox.Runs, snap.Sandbox.Failures)
		fmt.Printf("  Updated: %s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
