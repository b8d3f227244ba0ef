package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MEKXH/mcpilot/internal/version"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2024-11-05"
)

// JSON-RPC error codes.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodePermissionDenied = -32000
	CodeToolNotFound     = -32001
	CodeResourceNotFound = -32003
	CodeTimeout          = -32005
)

// RPCError is a JSON-RPC error object returned by a server.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "json-rpc request failed"
	}
	return fmt.Sprintf("%s (code %d)", msg, e.Code)
}

// NewRPCError builds an error object.
func NewRPCError(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Request is a JSON-RPC request or notification. Notifications carry no ID.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// NewResult builds a successful response for id.
func NewResult(id json.RawMessage, result any) *Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, NewRPCError(CodeInternalError, "encode result: %v", err))
	}
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Result: raw}
}

// NewErrorResponse builds an error response for id.
func NewErrorResponse(id json.RawMessage, err *RPCError) *Response {
	return &Response{JSONRPC: jsonRPCVersion, ID: id, Error: err}
}

// message is the union of every inbound JSON-RPC shape.
type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (m *message) hasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

func (m *message) isNotification() bool {
	return m.Method != "" && !m.hasID()
}

func (m *message) isResponse() bool {
	return m.Method == "" && m.hasID()
}

func (m *message) response() *Response {
	return &Response{JSONRPC: m.JSONRPC, ID: m.ID, Result: m.Result, Error: m.Error}
}

func decodeMessage(payload []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(bytes.TrimSpace(payload), &msg); err != nil {
		return nil, fmt.Errorf("decode json-rpc message: %w", err)
	}
	return &msg, nil
}

func newRequest(id int64, method string, params any) (*Request, error) {
	req := &Request{JSONRPC: jsonRPCVersion, Method: method}
	if id > 0 {
		req.ID = json.RawMessage(strconv.FormatInt(id, 10))
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}

// normalizeRPCID maps numeric and string ids onto one comparable key.
func normalizeRPCID(id json.RawMessage) string {
	trimmed := strings.TrimSpace(string(id))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(trimmed); err == nil {
		return strings.TrimSpace(unquoted)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return trimmed
}

// resultOf unwraps a response into its result or its error.
func resultOf(resp *Response) (json.RawMessage, error) {
	if resp == nil {
		return nil, fmt.Errorf("empty json-rpc response")
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func buildInitializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities": map[string]any{
			"roots": map[string]any{"listChanged": false},
		},
		"clientInfo": map[string]any{
			"name":    "mcpilot",
			"version": version.Version,
		},
	}
}

func hasNonEmptyResult(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != "{}"
}
