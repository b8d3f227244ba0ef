package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tmaxmax/go-sse"
)

const sseEndpointWait = 2 * time.Second

// sseTransport listens on a long-lived event stream and sends requests as
// out-of-band POSTs to the endpoint the stream announces.
type sseTransport struct {
	url     string
	headers map[string]string
	client  *http.Client
	hooks   transportHooks
	log     *slog.Logger
	pending *pendingCalls

	streamCtx    context.Context
	streamCancel context.CancelFunc
	done         chan struct{}

	endpointOnce  sync.Once
	endpointReady chan struct{}
	mu            sync.Mutex
	endpoint      string
}

func newSSETransport(desc ServerDescriptor, client *http.Client, hooks transportHooks, log *slog.Logger) *sseTransport {
	ctx, cancel := context.WithCancel(context.Background())
	return &sseTransport{
		url:           desc.URL,
		headers:       desc.Headers,
		client:        client,
		hooks:         hooks,
		log:           log,
		pending:       newPendingCalls(),
		streamCtx:     ctx,
		streamCancel:  cancel,
		done:          make(chan struct{}),
		endpointReady: make(chan struct{}),
	}
}

// fallbackEndpoint maps a ".../sse" stream URL onto the conventional ".../messages" POST URL.
func fallbackEndpoint(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.HasSuffix(parsed.Path, "/sse") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/sse") + "/messages"
	}
	return parsed.String()
}

func (t *sseTransport) open(ctx context.Context, init *Request) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(t.streamCtx, http.MethodGet, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	applyHeaders(req.Header, t.headers)

	// The stream outlives ctx, so ctx only bounds the wait for headers.
	stop := context.AfterFunc(ctx, t.streamCancel)
	resp, err := t.client.Do(req)
	stop()
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("open event stream: unexpected status %s", resp.Status)
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("open event stream: unexpected content type %q", ct)
	}

	go t.readLoop(resp.Body)

	timer := time.NewTimer(sseEndpointWait)
	defer timer.Stop()
	select {
	case <-t.endpointReady:
	case <-timer.C:
		t.setEndpoint(fallbackEndpoint(t.url))
		t.log.Debug("no endpoint event received, using fallback", "endpoint", t.currentEndpoint())
	case <-t.done:
		return nil, fmt.Errorf("event stream closed before initialize")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return t.call(ctx, init)
}

func (t *sseTransport) readLoop(body io.ReadCloser) {
	defer body.Close()

	var streamErr error
	for ev, err := range sse.Read(body, &sse.ReadConfig{MaxEventSize: maxSSEEventSize}) {
		if err != nil {
			streamErr = err
			break
		}
		switch strings.ToLower(strings.TrimSpace(ev.Type)) {
		case "endpoint":
			t.setEndpoint(t.resolve(strings.TrimSpace(ev.Data)))
		case "", "message":
			if data := strings.TrimSpace(ev.Data); data != "" {
				dispatchInbound(t.log, []byte(data), t.pending, t.hooks)
			}
		default:
			t.log.Debug("ignoring sse event", "type", ev.Type)
		}
	}
	if streamErr == nil {
		streamErr = errTransportClosed
	}
	if t.streamCtx.Err() != nil {
		streamErr = errTransportClosed
	}

	close(t.done)
	t.pending.failAll(streamErr)
	t.hooks.closed(streamErr)
}

func (t *sseTransport) resolve(endpoint string) string {
	base, err := url.Parse(t.url)
	if err != nil {
		return endpoint
	}
	ref, err := base.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return ref.String()
}

func (t *sseTransport) setEndpoint(endpoint string) {
	t.mu.Lock()
	if t.endpoint == "" {
		t.endpoint = endpoint
	}
	t.mu.Unlock()
	t.endpointOnce.Do(func() { close(t.endpointReady) })
}

func (t *sseTransport) currentEndpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint
}

func (t *sseTransport) call(ctx context.Context, req *Request) (json.RawMessage, error) {
	ch, release, err := t.pending.register(req.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := t.post(ctx, req); err != nil {
		return nil, fmt.Errorf("mcp sse %s: %w", req.Method, err)
	}
	return t.pending.wait(ctx, ch)
}

func (t *sseTransport) notify(ctx context.Context, req *Request) error {
	return t.post(ctx, req)
}

// post sends one message. Servers usually answer 202 and reply on the
// stream; a JSON body carrying the reply is dispatched the same way.
func (t *sseTransport) post(ctx context.Context, req *Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode json-rpc request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.currentEndpoint(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	applyHeaders(httpReq.Header, t.headers)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("post failed with status %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	if strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "application/json") {
		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read post response: %w", err)
		}
		if len(bytes.TrimSpace(payload)) > 0 {
			dispatchInbound(t.log, payload, t.pending, t.hooks)
		}
	}
	return nil
}

func (t *sseTransport) close() error {
	t.streamCancel()
	return nil
}
