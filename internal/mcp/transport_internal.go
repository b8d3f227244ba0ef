package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// Host is an in-process capability provider reached by the internal transport.
type Host interface {
	Initialize(ctx context.Context) error
	HandleMessage(ctx context.Context, req *Request) *Response
	Stop() error
}

// HostFactory returns the host for an internal-transport server.
type HostFactory func(desc ServerDescriptor) (Host, error)

type internalTransport struct {
	host Host
}

func newInternalTransport(host Host) *internalTransport {
	return &internalTransport{host: host}
}

func (t *internalTransport) open(ctx context.Context, init *Request) (json.RawMessage, error) {
	if err := t.host.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize internal host: %w", err)
	}
	return t.call(ctx, init)
}

func (t *internalTransport) call(ctx context.Context, req *Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp := t.host.HandleMessage(ctx, req)
	if resp == nil {
		return nil, fmt.Errorf("internal host returned no response for %s", req.Method)
	}
	return resultOf(resp)
}

func (t *internalTransport) notify(ctx context.Context, req *Request) error {
	t.host.HandleMessage(ctx, req)
	return nil
}

func (t *internalTransport) close() error {
	return t.host.Stop()
}
