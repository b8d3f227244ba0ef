package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// transport is one wire strategy for a session. open performs the
// initialize exchange and returns its result; the session owns everything else.
type transport interface {
	open(ctx context.Context, init *Request) (json.RawMessage, error)
	call(ctx context.Context, req *Request) (json.RawMessage, error)
	notify(ctx context.Context, req *Request) error
	close() error
}

// transportHooks lets a transport report inbound traffic that is not a reply.
type transportHooks struct {
	onNotification func(method string, params json.RawMessage)
	onClosed       func(err error)
}

func (h transportHooks) notification(method string, params json.RawMessage) {
	if h.onNotification != nil {
		h.onNotification(method, params)
	}
}

func (h transportHooks) closed(err error) {
	if h.onClosed != nil {
		h.onClosed(err)
	}
}

var errTransportClosed = errors.New("transport closed")

// pendingCalls correlates responses with outstanding requests by id.
// Each registration is one-shot: it is removed on first match or when released.
type pendingCalls struct {
	mu      sync.Mutex
	waiters map[string]chan *Response
	err     error
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{waiters: make(map[string]chan *Response)}
}

func (p *pendingCalls) register(id json.RawMessage) (<-chan *Response, func(), error) {
	key := normalizeRPCID(id)
	if key == "" {
		return nil, nil, fmt.Errorf("request id is required")
	}
	ch := make(chan *Response, 1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, nil, p.err
	}
	if _, exists := p.waiters[key]; exists {
		return nil, nil, fmt.Errorf("duplicate pending request id %s", key)
	}
	p.waiters[key] = ch

	release := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if current, ok := p.waiters[key]; ok && current == ch {
			delete(p.waiters, key)
		}
	}
	return ch, release, nil
}

func (p *pendingCalls) resolve(resp *Response) bool {
	key := normalizeRPCID(resp.ID)

	p.mu.Lock()
	ch, ok := p.waiters[key]
	if ok {
		delete(p.waiters, key)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	ch <- resp
	return true
}

// failAll rejects future registrations and wakes every waiter with err.
func (p *pendingCalls) failAll(err error) {
	if err == nil {
		err = errTransportClosed
	}
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[string]chan *Response)
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()

	for key, ch := range waiters {
		ch <- NewErrorResponse(json.RawMessage(key), &RPCError{Code: CodeInternalError, Message: err.Error()})
	}
}

func (p *pendingCalls) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// wait blocks until the response for a registered id arrives.
func (p *pendingCalls) wait(ctx context.Context, ch <-chan *Response) (json.RawMessage, error) {
	select {
	case resp := <-ch:
		return resultOf(resp)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dispatchInbound routes one inbound frame to a waiter or the notification hook.
// It returns the decoded message so callers can inspect it.
func dispatchInbound(log *slog.Logger, payload []byte, pending *pendingCalls, hooks transportHooks) *message {
	msg, err := decodeMessage(payload)
	if err != nil {
		log.Warn("dropping undecodable mcp frame", "error", err)
		return nil
	}
	switch {
	case msg.isNotification():
		hooks.notification(msg.Method, msg.Params)
	case msg.isResponse():
		if pending == nil || !pending.resolve(msg.response()) {
			log.Debug("mcp response without waiter", "id", string(msg.ID))
		}
	case msg.Method != "":
		log.Debug("ignoring server-initiated request", "method", msg.Method, "id", string(msg.ID))
	}
	return msg
}
