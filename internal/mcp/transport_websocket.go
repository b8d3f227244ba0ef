package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// websocketTransport multiplexes calls over one socket, correlating replies by id.
type websocketTransport struct {
	url     string
	headers map[string]string
	dialer  *websocket.Dialer
	hooks   transportHooks
	log     *slog.Logger
	pending *pendingCalls

	writeMu sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	closeMu sync.Once
}

func newWebSocketTransport(desc ServerDescriptor, dialer *websocket.Dialer, hooks transportHooks, log *slog.Logger) *websocketTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &websocketTransport{
		url:     desc.URL,
		headers: desc.Headers,
		dialer:  dialer,
		hooks:   hooks,
		log:     log,
		pending: newPendingCalls(),
		done:    make(chan struct{}),
	}
}

// open dials the socket and sends initialize. The socket being open does not
// mean connected: that takes a reply with a non-empty result.
func (t *websocketTransport) open(ctx context.Context, init *Request) (json.RawMessage, error) {
	header := http.Header{}
	applyHeaders(header, t.headers)

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	t.conn = conn
	go t.readLoop()

	result, err := t.call(ctx, init)
	if err != nil {
		return nil, err
	}
	if !hasNonEmptyResult(result) {
		return nil, fmt.Errorf("initialize returned an empty result")
	}
	return result, nil
}

func (t *websocketTransport) readLoop() {
	var readErr error
	for {
		_, payload, err := t.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		dispatchInbound(t.log, payload, t.pending, t.hooks)
	}

	select {
	case <-t.done:
		readErr = errTransportClosed
	default:
		t.closeMu.Do(func() { close(t.done) })
	}
	t.pending.failAll(readErr)
	t.hooks.closed(readErr)
}

func (t *websocketTransport) write(req *Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode json-rpc request: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *websocketTransport) call(ctx context.Context, req *Request) (json.RawMessage, error) {
	ch, release, err := t.pending.register(req.ID)
	if err != nil {
		return nil, err
	}
	// Abandoned calls drop their listener here.
	defer release()

	if err := t.write(req); err != nil {
		return nil, fmt.Errorf("mcp websocket %s: %w", req.Method, err)
	}
	return t.pending.wait(ctx, ch)
}

func (t *websocketTransport) notify(ctx context.Context, req *Request) error {
	return t.write(req)
}

func (t *websocketTransport) close() error {
	if t.conn == nil {
		return nil
	}
	t.closeMu.Do(func() { close(t.done) })

	t.writeMu.Lock()
	_ = t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
	return t.conn.Close()
}
