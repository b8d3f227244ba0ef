package commands

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/llm"
	"github.com/MEKXH/mcpilot/internal/provider"
	"github.com/cloudwego/eino/schema"
)

type scriptedBackend struct {
	turns []*llm.Turn
	seen  []llm.Request
}

func (b *scriptedBackend) Complete(ctx context.Context, req llm.Request, onText func(string)) (*llm.Turn, error) {
	b.seen = append(b.seen, req)
	if len(b.turns) == 0 {
		return &llm.Turn{Text: "nothing left"}, nil
	}
	turn := b.turns[0]
	b.turns = b.turns[1:]
	if onText != nil && turn.Text != "" {
		onText(turn.Text)
	}
	return turn, nil
}

func useBackend(t *testing.T, b llm.Backend) {
	t.Helper()
	orig := newBackend
	newBackend = func(ctx context.Context, cfg *config.Config, name string, hosts *provider.HostCache) (llm.Backend, string, error) {
		return b, "fake", nil
	}
	t.Cleanup(func() { newBackend = orig })
}

func TestChat_OneShotRunsToolLoop(t *testing.T) {
	prepareHome(t)
	backend := &scriptedBackend{turns: []*llm.Turn{
		{ToolCalls: []schema.ToolCall{{
			ID:       "call_0",
			Type:     "function",
			Function: schema.FunctionCall{Name: "read_file", Arguments: `{"path":"README.md"}`},
		}}},
		{Text: "The project deploys with hardhat."},
	}}
	useBackend(t, backend)

	output := captureOutput(t, func() {
		if err := runChat(nil, []string{"how", "do", "I", "deploy?"}); err != nil {
			t.Fatalf("runChat error: %v", err)
		}
	})

	if !strings.Contains(output, "read_file") {
		t.Fatalf("expected tool progress in output, got: %s", output)
	}
	if !strings.Contains(output, "hardhat") {
		t.Fatalf("expected final answer in output, got: %s", output)
	}
	if len(backend.seen) != 2 {
		t.Fatalf("expected 2 model turns, got %d", len(backend.seen))
	}

	auditPath := filepath.Join(config.StateDir(), "audit.jsonl")
	raw, err := os.ReadFile(auditPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !strings.Contains(string(raw), `"type":"tool_call"`) {
		t.Fatalf("expected tool_call audit event, got: %s", raw)
	}
}

func TestChat_WarnsWhenIterationCapReached(t *testing.T) {
	cfg, _ := prepareHome(t)
	cfg.Agent.MaxToolIterations = 1
	if err := config.Save(cfg); err != nil {
		t.Fatal(err)
	}

	call := schema.ToolCall{
		ID:       "call_0",
		Type:     "function",
		Function: schema.FunctionCall{Name: "list_dir", Arguments: `{}`},
	}
	useBackend(t, &scriptedBackend{turns: []*llm.Turn{
		{ToolCalls: []schema.ToolCall{call}},
		{ToolCalls: []schema.ToolCall{call}},
	}})

	output := captureOutput(t, func() {
		if err := runChat(nil, []string{"list", "everything"}); err != nil {
			t.Fatalf("runChat error: %v", err)
		}
	})
	if !strings.Contains(output, "stopped after 1 model turns") {
		t.Fatalf("expected iteration warning, got: %s", output)
	}
}
