package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MEKXH/mcpilot/internal/mcp"
	"github.com/MEKXH/mcpilot/internal/render"
	"github.com/spf13/cobra"
)

const serverProbeTimeout = 8 * time.Second

func NewServersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "Inspect and call capability servers",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Connect every enabled server and show its state",
			RunE:  runServersStatus,
		},
		&cobra.Command{
			Use:   "tools",
			Short: "List tools across connected servers",
			RunE:  runServersTools,
		},
		&cobra.Command{
			Use:   "resources",
			Short: "List resources across connected servers",
			RunE:  runServersResources,
		},
		&cobra.Command{
			Use:   "call <tool> [json-args]",
			Short: "Call one tool (server/tool addresses a specific server)",
			Args:  cobra.RangeArgs(1, 2),
			RunE:  runServersCall,
		},
	)

	return cmd
}

func withServers(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), serverProbeTimeout)
	defer cancel()

	a, err := openApp(ctx, cfg, appOptions{ConnectAll: true})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runServersStatus(cmd *cobra.Command, args []string) error {
	return withServers(func(ctx context.Context, a *app) error {
		statuses := a.registry.Statuses()
		if len(statuses) == 0 {
			fmt.Println("No servers configured.")
			return nil
		}

		fmt.Println(render.Header("Servers"))
		for _, st := range statuses {
			line := fmt.Sprintf("  %s [%s]: %s", st.Name, st.Transport, render.Status(string(st.Status)))
			if st.Info.Name != "" {
				line += render.Dim(fmt.Sprintf(" %s %s", st.Info.Name, st.Info.Version))
			}
			if msg := strings.TrimSpace(st.Message); msg != "" && st.Status == mcp.StatusError {
				line += " (" + msg + ")"
			}
			fmt.Println(line)
		}
		return nil
	})
}

func runServersTools(cmd *cobra.Command, args []string) error {
	return withServers(func(ctx context.Context, a *app) error {
		tools := a.registry.GetAllTools(ctx)
		if len(tools) == 0 {
			fmt.Println("No tools available.")
			return nil
		}
		fmt.Println(render.Header("Tools"))
		for _, t := range tools {
			fmt.Printf("  %s/%s  %s\n", t.Server, t.Name, render.Dim(t.Description))
		}
		return nil
	})
}

func runServersResources(cmd *cobra.Command, args []string) error {
	return withServers(func(ctx context.Context, a *app) error {
		resources := a.registry.GetAllResources(ctx)
		if len(resources) == 0 {
			fmt.Println("No resources available.")
			return nil
		}
		fmt.Println(render.Header("Resources"))
		for _, r := range resources {
			fmt.Printf("  %s  %s %s\n", r.Server, r.URI, render.Dim(r.MimeType))
		}
		return nil
	})
}

func runServersCall(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	callArgs := map[string]any{}
	if len(args) > 1 && strings.TrimSpace(args[1]) != "" {
		if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
			return fmt.Errorf("tool arguments must be a JSON object: %w", err)
		}
	}

	return withServers(func(ctx context.Context, a *app) error {
		res, err := a.registry.CallTool(ctx, name, callArgs)
		if err != nil {
			return fmt.Errorf("call %s: %w", name, err)
		}
		if res.IsError {
			return fmt.Errorf("tool %s failed: %s", name, res.Text())
		}
		fmt.Println(res.Text())
		return nil
	})
}
