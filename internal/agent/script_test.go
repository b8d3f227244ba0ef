package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/mcpilot/internal/audit"
	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/host"
	"github.com/MEKXH/mcpilot/internal/llm"
	"github.com/MEKXH/mcpilot/internal/mcp"
	"github.com/MEKXH/mcpilot/internal/metrics"
	"github.com/MEKXH/mcpilot/internal/sandbox"
)

func TestRunScript_CallsToolsAndAudits(t *testing.T) {
	stateDir := t.TempDir()
	recorder := metrics.NewRuntimeMetrics(stateDir)
	o := newTestOrchestrator(t, &fakeBackend{}, newFakeHost(), func(opts *Options) {
		opts.Audit = audit.NewWriter(stateDir)
		opts.Metrics = recorder
	})

	res, err := o.RunScript(context.Background(), `
		const a = await executeToolCall("read_file", {path: "README.md"});
		console.log(a);
		executeToolCall("broken", {});
		return "ok";
	`)
	if err != nil {
		t.Fatalf("RunScript() error: %v", err)
	}
	if !res.Success || res.Output != "result of read_file" {
		t.Fatalf("unexpected result %+v", res)
	}
	if strings.Join(res.ToolCalls, ",") != "read_file,broken" {
		t.Fatalf("unexpected calls %v", res.ToolCalls)
	}
	if res.Records[1].Error != "disk full" {
		t.Fatalf("expected isError result to surface as error, got %+v", res.Records[1])
	}

	snap := recorder.Snapshot()
	if snap.Sandbox.Runs != 1 || snap.Tool.Total != 2 || snap.Tool.Errors != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
	types := readAuditTypes(t, stateDir)
	if len(types) != 3 || types[2] != audit.TypeScriptRun {
		t.Fatalf("unexpected audit trail %v", types)
	}
}

func TestRunScript_ValidationAndTimeout(t *testing.T) {
	o := newTestOrchestrator(t, &fakeBackend{}, newFakeHost(), func(opts *Options) {
		opts.Sandbox = sandbox.OptionsFromConfig(config.SandboxConfig{TimeoutMS: 50})
	})

	if _, err := o.RunScript(context.Background(), `require("fs")`); !errors.Is(err, sandbox.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	res, err := o.RunScript(context.Background(), `while (true) {}`)
	if !errors.Is(err, sandbox.ErrTimeout) || res == nil || res.Success {
		t.Fatalf("expected timeout result, got %+v, %v", res, err)
	}
}

// The workspace host behind a real registry exercises the internal transport
// end to end: resources feed the prompt and tool calls round-trip.
func TestRun_WithWorkspaceHost(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"README.md":           "# Token\nDeploy with hardhat.",
		"docs/gas.md":         "Gas estimation fails when the constructor reverts.",
		"contracts/Token.sol": "pragma solidity ^0.8.0;\ncontract Token {}",
	}
	for rel, body := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	reg := mcp.NewRegistry(mcp.Options{Session: mcp.SessionOptions{HostFactory: host.Factory(root)}})
	if _, err := reg.AddServer(mcp.ServerDescriptor{Name: "workspace", Transport: mcp.TransportInternal}); err != nil {
		t.Fatalf("AddServer() error: %v", err)
	}
	ctx := context.Background()
	if err := reg.ConnectAll(ctx); err != nil {
		t.Fatalf("ConnectAll() error: %v", err)
	}
	defer reg.DisconnectAll()

	turn := toolTurn("read_file")
	turn.ToolCalls[0].Function.Arguments = `{"path":"contracts/Token.sol"}`
	backend := &fakeBackend{turns: []*llm.Turn{turn, {Text: "The constructor reverts."}}}
	o, err := NewOrchestrator(Options{Backend: backend, Tools: reg, Agent: config.DefaultConfig().Agent})
	if err != nil {
		t.Fatalf("NewOrchestrator() error: %v", err)
	}

	resp, err := o.Run(ctx, "Why does gas estimation fail when I deploy the token contract?", nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(resp.ToolCalls) != 1 || !strings.Contains(resp.ToolCalls[0].Result, "contract Token") {
		t.Fatalf("unexpected tool execution %+v", resp.ToolCalls)
	}
	if len(backend.requests[0].Tools) != 4 {
		t.Fatalf("expected workspace tool catalog, got %d tools", len(backend.requests[0].Tools))
	}
	if resp.Text != "The constructor reverts." {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}
