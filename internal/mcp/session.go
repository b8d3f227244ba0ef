package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const maxListPages = 32

// SessionOptions carries the collaborators a session needs to build its transport.
type SessionOptions struct {
	HTTPClient  *http.Client
	Dialer      *websocket.Dialer
	HostFactory HostFactory
	CacheTTL    time.Duration
	Clock       func() time.Time
	OnEvent     func(Event)
}

// Session is one connection to one capability server.
type Session struct {
	desc ServerDescriptor
	opts SessionOptions
	log  *slog.Logger
	now  func() time.Time

	nextID atomic.Int64
	events chan Event

	mu        sync.Mutex
	status    Status
	lastErr   error
	tr        transport
	gen       uint64
	caps      Capabilities
	info      ServerInfo
	resources ttlCache[[]Resource]
	tools     ttlCache[[]Tool]
}

// NewSession builds a disconnected session for desc.
func NewSession(desc ServerDescriptor, opts SessionOptions) *Session {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Session{
		desc:      desc,
		opts:      opts,
		log:       slog.Default().With("mcp_server", desc.Name, "transport", desc.Transport),
		now:       now,
		events:    make(chan Event, eventBufferSize),
		status:    StatusDisconnected,
		resources: newTTLCache[[]Resource](opts.CacheTTL),
		tools:     newTTLCache[[]Tool](opts.CacheTTL),
	}
}

// Name returns the server name.
func (s *Session) Name() string { return s.desc.Name }

// Descriptor returns the static server description.
func (s *Session) Descriptor() ServerDescriptor { return s.desc }

// Events returns the channel of typed session events. Slow readers miss events.
func (s *Session) Events() <-chan Event { return s.events }

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Capabilities returns the negotiated capability set.
func (s *Session) Capabilities() Capabilities {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Snapshot returns a status view for reporting.
func (s *Session) Snapshot() ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := ServerStatus{
		Name:         s.desc.Name,
		Transport:    s.desc.Transport,
		Status:       s.status,
		Capabilities: s.caps,
		Info:         s.info,
	}
	if s.lastErr != nil {
		st.Message = s.lastErr.Error()
	}
	return st
}

func (s *Session) emit(ev Event) {
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("session event dropped", "event", fmt.Sprintf("%T", ev))
	}
}

// transitionLocked moves the state machine; callers hold s.mu.
func (s *Session) transitionLocked(to Status, err error) (EventStatus, bool) {
	from := s.status
	if !CanTransition(from, to) {
		s.log.Error("rejected session status transition", "from", from, "to", to)
		return EventStatus{}, false
	}
	s.status = to
	s.lastErr = err
	return EventStatus{Server: s.desc.Name, From: from, To: to, Err: err}, true
}

func (s *Session) newTransport(gen uint64) (transport, error) {
	hooks := transportHooks{
		onNotification: s.handleNotification,
		onClosed:       func(err error) { s.handleTransportClosed(gen, err) },
	}
	switch s.desc.Transport {
	case TransportInternal:
		if s.opts.HostFactory == nil {
			return nil, fmt.Errorf("no in-process host configured for %q", s.desc.Name)
		}
		host, err := s.opts.HostFactory(s.desc)
		if err != nil {
			return nil, fmt.Errorf("create in-process host: %w", err)
		}
		return newInternalTransport(host), nil
	case TransportHTTP:
		return newHTTPTransport(s.desc, s.opts.HTTPClient, hooks, s.log), nil
	case TransportSSE:
		return newSSETransport(s.desc, s.opts.HTTPClient, hooks, s.log), nil
	case TransportWebSocket:
		return newWebSocketTransport(s.desc, s.opts.Dialer, hooks, s.log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, s.desc.Transport)
	}
}

// Connect negotiates capabilities with the server. It is rejected while
// connecting or connected; a session in error must be disconnected first.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusDisconnected {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: connect while %s", ErrInvalidState, status)
	}
	ev, _ := s.transitionLocked(StatusConnecting, nil)
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	s.emit(ev)

	caps, info, tr, err := s.handshake(ctx, gen)

	s.mu.Lock()
	if err != nil {
		ev, _ = s.transitionLocked(StatusError, err)
		s.mu.Unlock()
		s.emit(ev)
		s.log.Warn("mcp connect failed", "error", err)
		return err
	}
	if s.gen != gen {
		lost := fmt.Errorf("%s: connection lost during handshake", s.desc.Name)
		ev, _ = s.transitionLocked(StatusError, lost)
		s.mu.Unlock()
		s.emit(ev)
		_ = tr.close()
		return lost
	}
	s.tr = tr
	s.caps = caps
	s.info = info
	ev, _ = s.transitionLocked(StatusConnected, nil)
	s.mu.Unlock()
	s.emit(ev)

	s.log.Info("mcp server connected", "server_name", info.Name, "protocol", info.ProtocolVersion,
		"resources", caps.Resources, "tools", caps.Tools)
	return nil
}

func (s *Session) handshake(ctx context.Context, gen uint64) (Capabilities, ServerInfo, transport, error) {
	tr, err := s.newTransport(gen)
	if err != nil {
		return Capabilities{}, ServerInfo{}, nil, err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	init, err := newRequest(s.nextID.Add(1), "initialize", buildInitializeParams())
	if err != nil {
		_ = tr.close()
		return Capabilities{}, ServerInfo{}, nil, err
	}
	raw, err := tr.open(ctx, init)
	if err != nil {
		_ = tr.close()
		return Capabilities{}, ServerInfo{}, nil, fmt.Errorf("initialize %s: %w", s.desc.Name, err)
	}
	caps, info, err := parseCapabilities(raw)
	if err != nil {
		_ = tr.close()
		return Capabilities{}, ServerInfo{}, nil, err
	}

	initialized, _ := newRequest(0, "notifications/initialized", map[string]any{})
	if err := tr.notify(ctx, initialized); err != nil {
		s.log.Warn("initialized notification failed", "error", err)
	}
	return caps, info, tr, nil
}

// Disconnect releases the transport and clears both discovery caches.
// It is the only way out of the error state.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.status != StatusConnected && s.status != StatusError {
		s.mu.Unlock()
		return nil
	}
	tr := s.tr
	s.tr = nil
	s.gen++
	s.caps = Capabilities{}
	s.resources.invalidate()
	s.tools.invalidate()
	ev, _ := s.transitionLocked(StatusDisconnected, nil)
	s.mu.Unlock()
	s.emit(ev)

	if tr == nil {
		return nil
	}
	if err := tr.close(); err != nil {
		return fmt.Errorf("close %s transport: %w", s.desc.Name, err)
	}
	s.log.Info("mcp server disconnected")
	return nil
}

func (s *Session) handleTransportClosed(gen uint64, err error) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if s.status == StatusConnecting {
		s.gen++
		s.mu.Unlock()
		return
	}
	if s.status != StatusConnected {
		s.mu.Unlock()
		return
	}
	tr := s.tr
	s.tr = nil
	s.gen++
	s.caps = Capabilities{}
	s.resources.invalidate()
	s.tools.invalidate()
	ev, _ := s.transitionLocked(StatusDisconnected, err)
	s.mu.Unlock()

	s.log.Warn("mcp transport closed", "error", err)
	s.emit(ev)
	if tr != nil {
		_ = tr.close()
	}
}

func (s *Session) handleNotification(method string, params json.RawMessage) {
	switch method {
	case "notifications/resources/list_changed":
		s.mu.Lock()
		s.resources.invalidate()
		s.mu.Unlock()
		s.emit(EventResourcesChanged{Server: s.desc.Name})
	case "notifications/tools/list_changed":
		s.mu.Lock()
		s.tools.invalidate()
		s.mu.Unlock()
		s.emit(EventToolsChanged{Server: s.desc.Name})
	default:
		s.emit(EventNotification{Server: s.desc.Name, Method: method, Params: params})
	}
}

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.desc.Timeout > 0 {
		return context.WithTimeout(ctx, s.desc.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) connectedTransport() (transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusConnected || s.tr == nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotConnected, s.desc.Name, s.status)
	}
	return s.tr, nil
}

// request issues one JSON-RPC call with the next session id.
func (s *Session) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	tr, err := s.connectedTransport()
	if err != nil {
		return nil, err
	}
	req, err := newRequest(s.nextID.Add(1), method, params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	result, err := tr.call(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &RPCError{Code: CodeTimeout, Message: fmt.Sprintf("%s timed out", method)}
		}
		s.log.Debug("mcp call failed", "method", method, "request_id", string(req.ID), "error", err)
		return nil, err
	}
	s.log.Debug("mcp call", "method", method, "request_id", string(req.ID), "elapsed", time.Since(start))
	return result, nil
}

// Ping checks liveness.
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.request(ctx, "ping", map[string]any{})
	return err
}

// ListResources returns the server's resources, served from cache within the TTL.
func (s *Session) ListResources(ctx context.Context) ([]Resource, error) {
	s.mu.Lock()
	if !s.caps.Resources {
		s.mu.Unlock()
		return []Resource{}, nil
	}
	if cached, ok := s.resources.get(s.now()); ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	var out []Resource
	err := s.paginate(ctx, "resources/list", func(raw json.RawMessage) (string, error) {
		var page struct {
			Resources  []Resource `json:"resources"`
			NextCursor string     `json:"nextCursor"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", fmt.Errorf("decode resources/list result: %w", err)
		}
		out = append(out, page.Resources...)
		return page.NextCursor, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Resource{}
	}

	s.mu.Lock()
	s.resources.set(out, s.now())
	s.mu.Unlock()
	return out, nil
}

// ListTools returns the server's tools, served from cache within the TTL.
func (s *Session) ListTools(ctx context.Context) ([]Tool, error) {
	s.mu.Lock()
	if !s.caps.Tools {
		s.mu.Unlock()
		return []Tool{}, nil
	}
	if cached, ok := s.tools.get(s.now()); ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	var out []Tool
	err := s.paginate(ctx, "tools/list", func(raw json.RawMessage) (string, error) {
		var page struct {
			Tools      []Tool `json:"tools"`
			NextCursor string `json:"nextCursor"`
		}
		if err := json.Unmarshal(raw, &page); err != nil {
			return "", fmt.Errorf("decode tools/list result: %w", err)
		}
		out = append(out, page.Tools...)
		return page.NextCursor, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Tool{}
	}

	s.mu.Lock()
	s.tools.set(out, s.now())
	s.mu.Unlock()
	return out, nil
}

func (s *Session) paginate(ctx context.Context, method string, page func(json.RawMessage) (string, error)) error {
	cursor := ""
	for i := 0; i < maxListPages; i++ {
		params := map[string]any{}
		if cursor != "" {
			params["cursor"] = cursor
		}
		raw, err := s.request(ctx, method, params)
		if err != nil {
			return err
		}
		next, err := page(raw)
		if err != nil {
			return err
		}
		if next == "" || next == cursor {
			return nil
		}
		cursor = next
	}
	s.log.Warn("pagination limit reached", "method", method, "pages", maxListPages)
	return nil
}

// ReadResource fetches resource contents. Never cached.
func (s *Session) ReadResource(ctx context.Context, uri string) ([]ResourceContents, error) {
	raw, err := s.request(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var result struct {
		Contents []ResourceContents `json:"contents"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode resources/read result: %w", err)
	}
	return result.Contents, nil
}

// CallTool invokes a tool. Never cached.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := s.request(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	return &result, nil
}
