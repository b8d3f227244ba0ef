package host

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MEKXH/mcpilot/internal/mcp"
)

func newTestWorkspace(t *testing.T) (*Workspace, string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":           "# Token\nERC20 deployment notes",
		"contracts/Token.sol": "contract Token { function transfer() public {} }",
		"docs/gas.md":         "Gas estimation troubleshooting",
		".git/config":         "[core]",
		"node_modules/x/y.js": "ignored",
		"scripts/deploy.ts":   "deploy()",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	w := NewWorkspace(root)
	if err := w.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return w, root
}

func call(t *testing.T, w *Workspace, method string, params any) *mcp.Response {
	t.Helper()
	raw, _ := json.Marshal(params)
	return w.HandleMessage(context.Background(), &mcp.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: method, Params: raw,
	})
}

func TestWorkspace_ListResources(t *testing.T) {
	w, _ := newTestWorkspace(t)
	resp := call(t, w, "resources/list", map[string]any{})
	if resp.Error != nil {
		t.Fatalf("resources/list error: %v", resp.Error)
	}
	var result struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}

	byName := map[string]mcp.Resource{}
	for _, r := range result.Resources {
		byName[r.Name] = r
	}
	if len(byName) != 4 {
		t.Fatalf("expected hidden and vendored dirs skipped, got %v", result.Resources)
	}
	readme := byName["README.md"]
	if readme.MimeType != "text/markdown" || readme.Annotations == nil || *readme.Annotations.Priority != 9 {
		t.Fatalf("unexpected README resource: %+v", readme)
	}
	if !strings.HasPrefix(readme.URI, "file://") {
		t.Fatalf("expected file uri, got %q", readme.URI)
	}
	if byName["contracts/Token.sol"].MimeType != "text/x-solidity" {
		t.Fatalf("unexpected solidity mime: %+v", byName["contracts/Token.sol"])
	}
}

func TestWorkspace_ReadResource(t *testing.T) {
	w, root := newTestWorkspace(t)

	uri := fileURI(filepath.Join(root, "docs", "gas.md"))
	resp := call(t, w, "resources/read", map[string]any{"uri": uri})
	if resp.Error != nil {
		t.Fatalf("resources/read error: %v", resp.Error)
	}
	if !strings.Contains(string(resp.Result), "Gas estimation troubleshooting") {
		t.Fatalf("unexpected contents: %s", resp.Result)
	}

	missing := call(t, w, "resources/read", map[string]any{"uri": fileURI(filepath.Join(root, "nope.md"))})
	if missing.Error == nil || missing.Error.Code != mcp.CodeResourceNotFound {
		t.Fatalf("expected RESOURCE_NOT_FOUND, got %+v", missing.Error)
	}

	outside := call(t, w, "resources/read", map[string]any{"uri": "file:///etc/passwd"})
	if outside.Error == nil || outside.Error.Code != mcp.CodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %+v", outside.Error)
	}
}

func TestWorkspace_Tools(t *testing.T) {
	w, root := newTestWorkspace(t)

	list := call(t, w, "tools/list", map[string]any{})
	var tools struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(list.Result, &tools); err != nil {
		t.Fatalf("decode tools: %v", err)
	}
	names := []string{}
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
		if len(tool.InputSchema) == 0 {
			t.Fatalf("tool %s has no input schema", tool.Name)
		}
	}
	if strings.Join(names, ",") != "read_file,list_dir,write_file,search_files" {
		t.Fatalf("unexpected tools: %v", names)
	}

	write := call(t, w, "tools/call", map[string]any{"name": "write_file", "arguments": map[string]any{"path": "out/notes.txt", "content": "hello"}})
	if write.Error != nil {
		t.Fatalf("write_file error: %v", write.Error)
	}
	data, err := os.ReadFile(filepath.Join(root, "out", "notes.txt"))
	if err != nil || string(data) != "hello" {
		t.Fatalf("expected file written, got %q, %v", data, err)
	}

	search := call(t, w, "tools/call", map[string]any{"name": "search_files", "arguments": map[string]any{"query": "GAS"}})
	var result mcp.CallToolResult
	if err := json.Unmarshal(search.Result, &result); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if result.IsError || !strings.Contains(result.Text(), "docs/gas.md") {
		t.Fatalf("unexpected search result: %+v", result)
	}
}

func TestWorkspace_ToolErrors(t *testing.T) {
	w, _ := newTestWorkspace(t)

	unknown := call(t, w, "tools/call", map[string]any{"name": "rm_rf"})
	if unknown.Error == nil || unknown.Error.Code != mcp.CodeToolNotFound {
		t.Fatalf("expected TOOL_NOT_FOUND, got %+v", unknown.Error)
	}

	escape := call(t, w, "tools/call", map[string]any{"name": "read_file", "arguments": map[string]any{"path": "../../etc/passwd"}})
	if escape.Error == nil || escape.Error.Code != mcp.CodePermissionDenied {
		t.Fatalf("expected PERMISSION_DENIED, got %+v", escape.Error)
	}

	missing := call(t, w, "tools/call", map[string]any{"name": "read_file", "arguments": map[string]any{"path": "missing.txt"}})
	var result mcp.CallToolResult
	if err := json.Unmarshal(missing.Result, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool-level error result, got %+v", result)
	}

	bogus := call(t, w, "prompts/list", map[string]any{})
	if bogus.Error == nil || bogus.Error.Code != mcp.CodeMethodNotFound {
		t.Fatalf("expected METHOD_NOT_FOUND, got %+v", bogus.Error)
	}
}

func TestWorkspace_ThroughInternalTransport(t *testing.T) {
	_, root := newTestWorkspace(t)
	reg := mcp.NewRegistry(mcp.Options{Session: mcp.SessionOptions{HostFactory: Factory(root)}})
	if _, err := reg.AddServer(mcp.ServerDescriptor{Name: "workspace", Transport: mcp.TransportInternal}); err != nil {
		t.Fatalf("AddServer() error: %v", err)
	}
	ctx := context.Background()
	if err := reg.ConnectAll(ctx); err != nil {
		t.Fatalf("ConnectAll() error: %v", err)
	}
	defer reg.DisconnectAll()

	res, err := reg.CallTool(ctx, "list_dir", map[string]any{"path": "contracts"})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if !strings.Contains(res.Text(), "Token.sol") {
		t.Fatalf("unexpected listing %q", res.Text())
	}
	if len(reg.GetAllResources(ctx)) != 4 {
		t.Fatalf("expected workspace resources through the registry")
	}
}
