package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MEKXH/mcpilot/internal/audit"
	"github.com/MEKXH/mcpilot/internal/llm"
	"github.com/MEKXH/mcpilot/internal/mcp"
	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

// fakeBackend replays scripted turns and records the requests it saw.
type fakeBackend struct {
	mu       sync.Mutex
	turns    []*llm.Turn
	requests []llm.Request
	err      error
}

func (b *fakeBackend) Complete(ctx context.Context, req llm.Request, onText func(string)) (*llm.Turn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return nil, b.err
	}
	if len(b.turns) == 0 {
		return &llm.Turn{Text: "done"}, nil
	}
	turn := b.turns[0]
	b.turns = b.turns[1:]
	if onText != nil && turn.Text != "" {
		onText(turn.Text)
	}
	return turn, nil
}

func toolTurn(names ...string) *llm.Turn {
	calls := make([]schema.ToolCall, len(names))
	for i, n := range names {
		calls[i] = schema.ToolCall{
			ID:       fmt.Sprintf("call_%d", i),
			Type:     "function",
			Function: schema.FunctionCall{Name: n, Arguments: `{"path":"README.md"}`},
		}
	}
	return &llm.Turn{ToolCalls: calls}
}

// fakeHost serves a fixed resource set and answers tool calls by name.
type fakeHost struct {
	mu        sync.Mutex
	resources []mcp.ServerResource
	contents  map[string]string
	reads     int
	delay     time.Duration
	calls     []string
	inFlight  int
	maxFlight int
}

func (h *fakeHost) GetAllResources(ctx context.Context) []mcp.ServerResource {
	return h.resources
}

func (h *fakeHost) ReadResource(ctx context.Context, server, uri string) ([]mcp.ResourceContents, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reads++
	text, ok := h.contents[uri]
	if !ok {
		return nil, &mcp.RPCError{Code: mcp.CodeResourceNotFound, Message: "missing " + uri}
	}
	return []mcp.ResourceContents{{URI: uri, Text: text}}, nil
}

func (h *fakeHost) ToolCatalog(ctx context.Context) []openai.Tool {
	return []openai.Tool{{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "read_file"}}}
}

func (h *fakeHost) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	h.calls = append(h.calls, name)
	h.inFlight++
	if h.inFlight > h.maxFlight {
		h.maxFlight = h.inFlight
	}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.inFlight--
		h.mu.Unlock()
	}()

	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	switch {
	case name == "missing":
		return nil, fmt.Errorf("%w: %s", mcp.ErrToolNotFound, name)
	case name == "broken":
		return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{{Type: "text", Text: "disk full"}}}, nil
	case strings.HasSuffix(name, "write_file"):
		return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "written"}}}, nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: "result of " + name}}}, nil
}

func newFakeHost() *fakeHost {
	prio := 7.0
	return &fakeHost{
		resources: []mcp.ServerResource{
			{Server: "workspace", Resource: mcp.Resource{
				URI: "file:///ws/docs/gas.md", Name: "docs/gas.md",
				Description: "Gas estimation troubleshooting for failed deployment", MimeType: "text/markdown",
				Annotations: &mcp.Annotations{Priority: &prio},
			}},
			{Server: "workspace", Resource: mcp.Resource{
				URI: "file:///ws/assets/image.png", Name: "assets/image.png", Description: "binary asset", MimeType: "image/png",
			}},
		},
		contents: map[string]string{"file:///ws/docs/gas.md": "Use eth_estimateGas before deploying."},
	}
}

func readAuditTypes(t *testing.T, stateDir string) []string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(stateDir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	var types []string
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var ev audit.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("decode audit line %q: %v", line, err)
		}
		types = append(types, ev.Type)
	}
	return types
}
