package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tmaxmax/go-sse"
)

const (
	httpRequestMaxAttempts = 3
	httpRetryBaseBackoff   = 150 * time.Millisecond
	sessionIDHeader        = "Mcp-Session-Id"
	maxSSEEventSize        = 4 << 20
)

type retryableError struct {
	err error
}

func (e retryableError) Error() string {
	return e.err.Error()
}

func (e retryableError) Unwrap() error {
	return e.err
}

func makeRetryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

func isRetryable(err error) bool {
	var target retryableError
	return errors.As(err, &target)
}

func shouldRetryHTTPStatus(statusCode int) bool {
	if statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func waitRetry(ctx context.Context, retryIndex int) error {
	if retryIndex <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(retryIndex) * httpRetryBaseBackoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func applyHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			dst.Set(trimmed, value)
		}
	}
}

// httpTransport sends one POST per JSON-RPC call. A single session-scoped
// context is the abort handle for every in-flight call.
type httpTransport struct {
	url     string
	headers map[string]string
	client  *http.Client
	hooks   transportHooks
	log     *slog.Logger

	abort  context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sessionID string
}

func newHTTPTransport(desc ServerDescriptor, client *http.Client, hooks transportHooks, log *slog.Logger) *httpTransport {
	abort, cancel := context.WithCancel(context.Background())
	return &httpTransport{
		url:     desc.URL,
		headers: desc.Headers,
		client:  client,
		hooks:   hooks,
		log:     log,
		abort:   abort,
		cancel:  cancel,
	}
}

func (t *httpTransport) open(ctx context.Context, init *Request) (json.RawMessage, error) {
	return t.call(ctx, init)
}

func (t *httpTransport) call(ctx context.Context, req *Request) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode json-rpc request: %w", err)
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.abort, cancel)
	defer stop()

	var lastErr error
	for attempt := 0; attempt < httpRequestMaxAttempts; attempt++ {
		result, err := t.post(callCtx, body, req.ID)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == httpRequestMaxAttempts-1 {
			break
		}
		t.log.Debug("retrying mcp http call", "method", req.Method, "attempt", attempt+1, "error", err)
		if err := waitRetry(callCtx, attempt+1); err != nil {
			return nil, t.abortErr(err)
		}
	}
	return nil, fmt.Errorf("mcp http %s: %w", req.Method, t.abortErr(lastErr))
}

func (t *httpTransport) abortErr(err error) error {
	if t.abort.Err() != nil && errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: session disconnected", errTransportClosed)
	}
	return err
}

func (t *httpTransport) notify(ctx context.Context, req *Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode json-rpc notification: %w", err)
	}
	resp, err := t.do(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification %s failed with status %s", req.Method, resp.Status)
	}
	return nil
}

func (t *httpTransport) do(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	applyHeaders(httpReq.Header, t.headers)

	t.mu.Lock()
	if t.sessionID != "" {
		httpReq.Header.Set(sessionIDHeader, t.sessionID)
	}
	t.mu.Unlock()

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, makeRetryable(err)
	}
	if id := strings.TrimSpace(resp.Header.Get(sessionIDHeader)); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}
	return resp, nil
}

func (t *httpTransport) post(ctx context.Context, body []byte, id json.RawMessage) (json.RawMessage, error) {
	resp, err := t.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		msg := strings.TrimSpace(string(payload))
		if msg == "" {
			msg = resp.Status
		}
		statusErr := fmt.Errorf("mcp http request failed: %s", msg)
		if shouldRetryHTTPStatus(resp.StatusCode) {
			return nil, makeRetryable(statusErr)
		}
		return nil, statusErr
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "text/event-stream") {
		return t.readEventStream(resp.Body, id)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read mcp response: %w", err)
	}
	msg, err := decodeMessage(payload)
	if err != nil {
		return nil, &RPCError{Code: CodeParseError, Message: err.Error()}
	}
	if normalizeRPCID(msg.ID) != normalizeRPCID(id) {
		return nil, fmt.Errorf("json-rpc response id mismatch: got %s", string(msg.ID))
	}
	return resultOf(msg.response())
}

// readEventStream consumes an SSE-framed response body, forwarding
// notifications until the response for id arrives.
func (t *httpTransport) readEventStream(body io.Reader, id json.RawMessage) (json.RawMessage, error) {
	want := normalizeRPCID(id)
	for ev, err := range sse.Read(body, &sse.ReadConfig{MaxEventSize: maxSSEEventSize}) {
		if err != nil {
			return nil, fmt.Errorf("read sse response: %w", err)
		}
		data := strings.TrimSpace(ev.Data)
		if data == "" {
			continue
		}
		msg := dispatchInbound(t.log, []byte(data), nil, t.hooks)
		if msg == nil || !msg.isResponse() {
			continue
		}
		if normalizeRPCID(msg.ID) == want {
			return resultOf(msg.response())
		}
	}
	return nil, fmt.Errorf("sse response ended before reply to id %s", want)
}

func (t *httpTransport) close() error {
	t.cancel()
	return nil
}
