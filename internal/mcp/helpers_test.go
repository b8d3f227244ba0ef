package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeHost is a scripted capability server usable in-process or behind a test server.
type fakeHost struct {
	mu        sync.Mutex
	caps      map[string]any
	tools     []Tool
	resources []Resource
	initErr   error
	onCall    func(name string, args map[string]any) (*CallToolResult, *RPCError)
	fail      map[string]bool
	methods   map[string]int
	ids       []string
	stopped   bool
}

func newFakeHost(tools ...Tool) *fakeHost {
	return &fakeHost{
		caps: map[string]any{
			"tools":     map[string]any{"listChanged": true},
			"resources": map[string]any{"listChanged": true},
		},
		tools:   tools,
		methods: map[string]int{},
	}
}

func (h *fakeHost) Initialize(ctx context.Context) error { return h.initErr }

func (h *fakeHost) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	return nil
}

func (h *fakeHost) HandleMessage(ctx context.Context, req *Request) *Response {
	return h.handle(req)
}

func (h *fakeHost) count(method string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.methods[method]
}

func (h *fakeHost) seenIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ids...)
}

func (h *fakeHost) handle(req *Request) *Response {
	h.mu.Lock()
	h.methods[req.Method]++
	if !req.IsNotification() {
		h.ids = append(h.ids, string(req.ID))
	}
	onCall := h.onCall
	failing := h.fail[req.Method]
	h.mu.Unlock()

	if req.IsNotification() {
		return nil
	}
	if failing {
		return NewErrorResponse(req.ID, NewRPCError(CodeInternalError, "%s unavailable", req.Method))
	}

	switch req.Method {
	case "initialize":
		return NewResult(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    h.caps,
			"serverInfo":      map[string]any{"name": "fake", "version": "1.0.0"},
		})
	case "ping":
		return NewResult(req.ID, map[string]any{})
	case "tools/list":
		return NewResult(req.ID, map[string]any{"tools": h.tools})
	case "resources/list":
		return NewResult(req.ID, map[string]any{"resources": h.resources})
	case "resources/read":
		var p struct {
			URI string `json:"uri"`
		}
		_ = json.Unmarshal(req.Params, &p)
		return NewResult(req.ID, map[string]any{
			"contents": []ResourceContents{{URI: p.URI, MimeType: "text/plain", Text: "content of " + p.URI}},
		})
	case "tools/call":
		var p struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return NewErrorResponse(req.ID, NewRPCError(CodeInvalidParams, "bad params: %v", err))
		}
		if onCall != nil {
			result, rpcErr := onCall(p.Name, p.Arguments)
			if rpcErr != nil {
				return NewErrorResponse(req.ID, rpcErr)
			}
			return NewResult(req.ID, result)
		}
		args, _ := json.Marshal(p.Arguments)
		return NewResult(req.ID, CallToolResult{Content: []Content{{Type: "text", Text: fmt.Sprintf("%s:%s", p.Name, args)}}})
	default:
		return NewErrorResponse(req.ID, NewRPCError(CodeMethodNotFound, "method not found: %s", req.Method))
	}
}

func hostFactory(hosts map[string]*fakeHost) HostFactory {
	return func(desc ServerDescriptor) (Host, error) {
		h, ok := hosts[desc.Name]
		if !ok {
			return nil, fmt.Errorf("no host for %s", desc.Name)
		}
		return h, nil
	}
}

func newInternalSession(t *testing.T, host *fakeHost, clock *fakeClock) *Session {
	t.Helper()
	opts := SessionOptions{HostFactory: hostFactory(map[string]*fakeHost{"local": host})}
	if clock != nil {
		opts.Clock = clock.Now
	}
	return NewSession(ServerDescriptor{Name: "local", Transport: TransportInternal, Enabled: true}, opts)
}

func echoTool(name string) Tool {
	return Tool{Name: name, Description: name + " tool", InputSchema: json.RawMessage(`{"type":"object"}`)}
}
