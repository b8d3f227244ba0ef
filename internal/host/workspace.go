// Package host is the in-process capability provider behind the internal
// transport. It serves the workspace directory as resources and tools.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"

	"github.com/MEKXH/mcpilot/internal/mcp"
	"github.com/MEKXH/mcpilot/internal/version"
)

const serverName = "mcpilot-workspace"

// Workspace implements mcp.Host for one directory.
type Workspace struct {
	root string

	mu      sync.RWMutex
	started bool
	tools   map[string]tool.InvokableTool
	defs    []mcp.Tool
}

// NewWorkspace returns a host rooted at root. Nothing is touched until Initialize.
func NewWorkspace(root string) *Workspace {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Workspace{root: filepath.Clean(root)}
}

// Factory adapts NewWorkspace to mcp.HostFactory for every internal server.
func Factory(root string) mcp.HostFactory {
	return func(desc mcp.ServerDescriptor) (mcp.Host, error) {
		return NewWorkspace(root), nil
	}
}

// Initialize checks the root and builds the tool set.
func (w *Workspace) Initialize(ctx context.Context) error {
	info, err := os.Stat(w.root)
	if err != nil {
		return fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace root %s is not a directory", w.root)
	}

	built, err := newWorkspaceTools(w.root)
	if err != nil {
		return fmt.Errorf("build workspace tools: %w", err)
	}
	tools := make(map[string]tool.InvokableTool, len(built))
	defs := make([]mcp.Tool, 0, len(built))
	for _, t := range built {
		info, err := t.Info(ctx)
		if err != nil {
			return fmt.Errorf("tool info: %w", err)
		}
		schema, err := inputSchema(info.ParamsOneOf)
		if err != nil {
			return fmt.Errorf("tool %s schema: %w", info.Name, err)
		}
		tools[info.Name] = t
		defs = append(defs, mcp.Tool{Name: info.Name, Description: info.Desc, InputSchema: schema})
	}

	w.mu.Lock()
	w.tools = tools
	w.defs = defs
	w.started = true
	w.mu.Unlock()
	slog.Debug("workspace host initialized", "root", w.root, "tools", len(defs))
	return nil
}

// Stop releases the tool set.
func (w *Workspace) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.started = false
	w.tools = nil
	w.defs = nil
	return nil
}

// HandleMessage dispatches one JSON-RPC request.
func (w *Workspace) HandleMessage(ctx context.Context, req *mcp.Request) *mcp.Response {
	if req.IsNotification() {
		return nil
	}

	w.mu.RLock()
	started := w.started
	w.mu.RUnlock()
	if !started && req.Method != "initialize" {
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeInvalidRequest, "host not initialized"))
	}

	switch req.Method {
	case "initialize":
		return mcp.NewResult(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"resources": map[string]any{"listChanged": false, "subscribe": false},
				"tools":     map[string]any{"listChanged": false},
			},
			"serverInfo": map[string]any{"name": serverName, "version": version.Version},
		})
	case "ping":
		return mcp.NewResult(req.ID, map[string]any{})
	case "resources/list":
		return mcp.NewResult(req.ID, map[string]any{"resources": listResources(w.root)})
	case "resources/read":
		return w.readResource(req)
	case "tools/list":
		w.mu.RLock()
		defs := append([]mcp.Tool(nil), w.defs...)
		w.mu.RUnlock()
		return mcp.NewResult(req.ID, map[string]any{"tools": defs})
	case "tools/call":
		return w.callTool(ctx, req)
	default:
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeMethodNotFound, "method not found: %s", req.Method))
	}
}

func (w *Workspace) readResource(req *mcp.Request) *mcp.Response {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || strings.TrimSpace(params.URI) == "" {
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeInvalidParams, "uri is required"))
	}
	path, ok := pathFromURI(params.URI)
	if !ok {
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeResourceNotFound, "unsupported resource uri: %s", params.URI))
	}
	resolved, err := resolvePath(path, w.root)
	if err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodePermissionDenied, "%v", err))
	}
	contents, err := readResource(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeResourceNotFound, "resource not found: %s", params.URI))
		}
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeInternalError, "read %s: %v", params.URI, err))
	}
	return mcp.NewResult(req.ID, map[string]any{"contents": []mcp.ResourceContents{contents}})
}

func (w *Workspace) callTool(ctx context.Context, req *mcp.Request) *mcp.Response {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeInvalidParams, "invalid tools/call params: %v", err))
	}

	w.mu.RLock()
	t, ok := w.tools[params.Name]
	w.mu.RUnlock()
	if !ok {
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodeToolNotFound, "tool not found: %s", params.Name))
	}

	args := strings.TrimSpace(string(params.Arguments))
	if args == "" || args == "null" {
		args = "{}"
	}
	if err := w.checkPathArgument(args); err != nil {
		return mcp.NewErrorResponse(req.ID, mcp.NewRPCError(mcp.CodePermissionDenied, "%v", err))
	}

	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		slog.Debug("workspace tool failed", "tool", params.Name, "error", err)
		return mcp.NewResult(req.ID, mcp.CallToolResult{
			Content: []mcp.Content{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}
	return mcp.NewResult(req.ID, mcp.CallToolResult{Content: []mcp.Content{{Type: "text", Text: out}}})
}

// checkPathArgument rejects a path argument outside the root before the tool runs.
func (w *Workspace) checkPathArgument(args string) error {
	var probe struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(args), &probe); err != nil {
		return nil
	}
	if strings.TrimSpace(probe.Path) == "" {
		return nil
	}
	_, err := resolvePath(probe.Path, w.root)
	return err
}
