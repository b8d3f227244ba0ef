package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/mcpilot/internal/config"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// Tool-name conflict policies.
const (
	ConflictFirst  = "first"
	ConflictReject = "reject"
)

// Options configures a Registry and the sessions it creates.
type Options struct {
	Session        SessionOptions
	ConflictPolicy string
}

// Registry owns the named sessions and routes tool calls between them.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]*Session
	opts     Options
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = ConflictFirst
	}
	return &Registry{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// NewRegistryFromConfig registers every enabled server, in name order.
func NewRegistryFromConfig(cfg config.MCPConfig, opts Options) (*Registry, error) {
	if opts.ConflictPolicy == "" {
		opts.ConflictPolicy = cfg.ToolConflict
	}
	if opts.Session.CacheTTL == 0 && cfg.CacheTTLSeconds > 0 {
		opts.Session.CacheTTL = time.Duration(cfg.CacheTTLSeconds) * time.Second
	}
	reg := NewRegistry(opts)

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		desc := DescriptorFromConfig(name, cfg.Servers[name])
		if !desc.Enabled {
			continue
		}
		if _, err := reg.AddServer(desc); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// AddServer creates a session for desc. Names are unique.
func (r *Registry) AddServer(desc ServerDescriptor) (*Session, error) {
	name := strings.TrimSpace(desc.Name)
	if name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	desc.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrServerExists, name)
	}
	s := NewSession(desc, r.opts.Session)
	r.sessions[name] = s
	r.order = append(r.order, name)
	return s, nil
}

// RemoveServer disconnects the session, then forgets it.
func (r *Registry) RemoveServer(name string) error {
	s, ok := r.Session(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	if err := s.Disconnect(); err != nil {
		slog.Warn("disconnect during remove failed", "server", name, "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Session looks up one session by name.
func (r *Registry) Session(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[name]
	return s, ok
}

// Sessions returns every session in registration order.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sessions[name])
	}
	return out
}

func (r *Registry) connected() []*Session {
	all := r.Sessions()
	out := make([]*Session, 0, len(all))
	for _, s := range all {
		if s.Status() == StatusConnected {
			out = append(out, s)
		}
	}
	return out
}

// ConnectedServers returns the names of connected sessions in registration order.
func (r *Registry) ConnectedServers() []string {
	sessions := r.connected()
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.Name())
	}
	return names
}

// Statuses returns a status view per session in registration order.
func (r *Registry) Statuses() []ServerStatus {
	all := r.Sessions()
	out := make([]ServerStatus, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot())
	}
	return out
}

// ConnectAll connects every session concurrently. Failures are logged per
// server and never stop the others; the joined failures are returned.
func (r *Registry) ConnectAll(ctx context.Context) error {
	return r.connectWhere(ctx, func(*Session) bool { return true })
}

// ConnectAutoStart connects the sessions flagged auto_start.
func (r *Registry) ConnectAutoStart(ctx context.Context) error {
	return r.connectWhere(ctx, func(s *Session) bool { return s.Descriptor().AutoStart })
}

func (r *Registry) connectWhere(ctx context.Context, include func(*Session) bool) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range r.Sessions() {
		if !include(s) {
			continue
		}
		g.Go(func() error {
			if s.Status() == StatusError {
				_ = s.Disconnect()
			}
			if s.Status() != StatusDisconnected {
				return nil
			}
			if err := s.Connect(ctx); err != nil {
				slog.Warn("mcp server connect failed", "server", s.Name(), "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// DisconnectAll disconnects every session concurrently.
func (r *Registry) DisconnectAll() error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, s := range r.Sessions() {
		g.Go(func() error {
			if err := s.Disconnect(); err != nil {
				slog.Warn("mcp server disconnect failed", "server", s.Name(), "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// GetAllResources lists resources of every connected session concurrently.
// A failing server contributes nothing.
func (r *Registry) GetAllResources(ctx context.Context) []ServerResource {
	sessions := r.connected()
	perServer := make([][]ServerResource, len(sessions))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sessions {
		g.Go(func() error {
			resources, err := s.ListResources(gctx)
			if err != nil {
				slog.Warn("list resources failed", "server", s.Name(), "error", err)
				return nil
			}
			out := make([]ServerResource, 0, len(resources))
			for _, res := range resources {
				out = append(out, ServerResource{Server: s.Name(), Resource: res})
			}
			perServer[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var all []ServerResource
	for _, items := range perServer {
		all = append(all, items...)
	}
	return all
}

// GetAllTools lists tools of every connected session concurrently.
// A failing server contributes nothing.
func (r *Registry) GetAllTools(ctx context.Context) []ServerTool {
	sessions := r.connected()
	perServer := make([][]ServerTool, len(sessions))

	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sessions {
		g.Go(func() error {
			tools, err := s.ListTools(gctx)
			if err != nil {
				slog.Warn("list tools failed", "server", s.Name(), "error", err)
				return nil
			}
			out := make([]ServerTool, 0, len(tools))
			for _, t := range tools {
				out = append(out, ServerTool{Server: s.Name(), Tool: t})
			}
			perServer[i] = out
			return nil
		})
	}
	_ = g.Wait()

	var all []ServerTool
	for _, items := range perServer {
		all = append(all, items...)
	}
	return all
}

// ToolCatalog renders the connected servers' tools for the model.
func (r *Registry) ToolCatalog(ctx context.Context) []openai.Tool {
	return RenderCatalog(r.GetAllTools(ctx))
}

// ReadResource reads uri from the named server.
func (r *Registry) ReadResource(ctx context.Context, server, uri string) ([]ResourceContents, error) {
	s, ok := r.Session(server)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, server)
	}
	return s.ReadResource(ctx, uri)
}

// ResolveTool finds the session that should serve name. A "server/tool" name
// addresses one server directly; a bare name goes to the first connected
// session declaring it, subject to the conflict policy.
func (r *Registry) ResolveTool(ctx context.Context, name string) (*Session, Tool, error) {
	name = strings.TrimSpace(name)
	if server, tool, ok := strings.Cut(name, "/"); ok {
		if s, found := r.Session(server); found && s.Status() == StatusConnected {
			tools, err := s.ListTools(ctx)
			if err != nil {
				return nil, Tool{}, err
			}
			for _, t := range tools {
				if t.Name == tool {
					return s, t, nil
				}
			}
			return nil, Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
	}

	var (
		match     *Session
		matchTool Tool
		others    []string
	)
	for _, s := range r.connected() {
		tools, err := s.ListTools(ctx)
		if err != nil {
			slog.Warn("list tools failed during routing", "server", s.Name(), "error", err)
			continue
		}
		for _, t := range tools {
			if t.Name != name {
				continue
			}
			if match == nil {
				match, matchTool = s, t
			} else {
				others = append(others, s.Name())
			}
			break
		}
		if match != nil && r.opts.ConflictPolicy == ConflictFirst {
			break
		}
	}
	if match == nil {
		return nil, Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if len(others) > 0 {
		return nil, Tool{}, fmt.Errorf("%w: %s on %s and %s", ErrToolConflict, name, match.Name(), strings.Join(others, ", "))
	}
	return match, matchTool, nil
}

// CallTool validates args against the tool's schema and dispatches the call.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	s, tool, err := r.ResolveTool(ctx, name)
	if err != nil {
		return nil, err
	}
	if r.opts.ConflictPolicy == ConflictFirst {
		r.warnShadowed(s, tool.Name)
	}
	if err := ValidateArguments(tool, args); err != nil {
		return nil, err
	}
	return s.CallTool(ctx, tool.Name, args)
}

// warnShadowed logs when later sessions declare a tool the first match hides.
// It only reads caches, so it never adds a network call.
func (r *Registry) warnShadowed(chosen *Session, tool string) {
	for _, s := range r.connected() {
		if s == chosen {
			continue
		}
		s.mu.Lock()
		cached, ok := s.tools.get(s.now())
		s.mu.Unlock()
		if !ok {
			continue
		}
		for _, t := range cached {
			if t.Name == tool {
				slog.Warn("tool name declared by several servers, using first", "tool", tool,
					"chosen", chosen.Name(), "shadowed", s.Name())
				break
			}
		}
	}
}
