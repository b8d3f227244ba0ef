package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MEKXH/mcpilot/internal/config"
)

// Transport kinds.
const (
	TransportInternal  = "internal"
	TransportHTTP      = "http"
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
	TransportStdio     = "stdio"
)

var (
	ErrServerExists         = errors.New("mcp server already registered")
	ErrServerNotFound       = errors.New("mcp server not found")
	ErrToolNotFound         = errors.New("tool not found on any connected server")
	ErrToolConflict         = errors.New("tool is declared by more than one server")
	ErrUnsupportedTransport = errors.New("unsupported transport")
	ErrInvalidState         = errors.New("invalid session state")
	ErrNotConnected         = errors.New("session is not connected")
	ErrInvalidArguments     = errors.New("tool arguments do not match input schema")
)

// ServerDescriptor is the static description of one capability server.
type ServerDescriptor struct {
	Name      string
	Transport string
	URL       string
	Enabled   bool
	AutoStart bool
	Timeout   time.Duration
	Headers   map[string]string
}

// DescriptorFromConfig builds a descriptor from its config entry.
func DescriptorFromConfig(name string, cfg config.MCPServerConfig) ServerDescriptor {
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		if key := strings.TrimSpace(k); key != "" {
			headers[key] = v
		}
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return ServerDescriptor{
		Name:      strings.TrimSpace(name),
		Transport: strings.ToLower(strings.TrimSpace(cfg.Transport)),
		URL:       strings.TrimSpace(cfg.URL),
		Enabled:   config.IsMCPServerEnabled(cfg),
		AutoStart: cfg.AutoStart,
		Timeout:   timeout,
		Headers:   headers,
	}
}

// Status is the connection state of a session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// allowedTransitions extends the base machine with error -> disconnected:
// Disconnect on a failed session resets it so Connect can be retried.
var allowedTransitions = map[Status][]Status{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusConnected, StatusError},
	StatusConnected:    {StatusDisconnected},
	StatusError:        {StatusDisconnected},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Capabilities is the feature set negotiated during initialize.
type Capabilities struct {
	Resources          bool
	ResourcesSubscribe bool
	ResourcesChanged   bool
	Tools              bool
	ToolsChanged       bool
	Prompts            bool
	Logging            bool
}

func parseCapabilities(raw json.RawMessage) (Capabilities, ServerInfo, error) {
	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		Capabilities    struct {
			Resources *struct {
				Subscribe   bool `json:"subscribe"`
				ListChanged bool `json:"listChanged"`
			} `json:"resources"`
			Tools *struct {
				ListChanged bool `json:"listChanged"`
			} `json:"tools"`
			Prompts *json.RawMessage `json:"prompts"`
			Logging *json.RawMessage `json:"logging"`
		} `json:"capabilities"`
		ServerInfo ServerInfo `json:"serverInfo"`
	}
	if err := json.Unmarshal(raw, &init); err != nil {
		return Capabilities{}, ServerInfo{}, fmt.Errorf("decode initialize result: %w", err)
	}
	caps := Capabilities{
		Prompts: init.Capabilities.Prompts != nil,
		Logging: init.Capabilities.Logging != nil,
	}
	if r := init.Capabilities.Resources; r != nil {
		caps.Resources = true
		caps.ResourcesSubscribe = r.Subscribe
		caps.ResourcesChanged = r.ListChanged
	}
	if t := init.Capabilities.Tools; t != nil {
		caps.Tools = true
		caps.ToolsChanged = t.ListChanged
	}
	info := init.ServerInfo
	info.ProtocolVersion = init.ProtocolVersion
	return caps, info, nil
}

// ServerInfo identifies the remote implementation.
type ServerInfo struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"-"`
}

// Annotations carries optional resource hints.
type Annotations struct {
	Audience []string `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

// Resource is a readable context document exposed by a server.
type Resource struct {
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// ResourceContents is one entry of a resources/read result.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Tool is an invocable action exposed by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content is one block of a tool result.
type Content struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	Data     string            `json:"data,omitempty"`
	MimeType string            `json:"mimeType,omitempty"`
	Resource *ResourceContents `json:"resource,omitempty"`
}

// CallToolResult is the result of tools/call.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text joins the text blocks of the result. Non-text blocks are summarized.
func (r *CallToolResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		switch c.Type {
		case "text":
			if text := strings.TrimSpace(c.Text); text != "" {
				parts = append(parts, text)
			}
		case "image":
			parts = append(parts, fmt.Sprintf("[image %s]", c.MimeType))
		case "resource":
			if c.Resource != nil {
				if c.Resource.Text != "" {
					parts = append(parts, c.Resource.Text)
				} else {
					parts = append(parts, fmt.Sprintf("[resource %s]", c.Resource.URI))
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

// ServerResource pairs a resource with the server that exposes it.
type ServerResource struct {
	Server string
	Resource
}

// ServerTool pairs a tool with the server that declares it.
type ServerTool struct {
	Server string
	Tool
}

// ServerStatus is a point-in-time view of one session.
type ServerStatus struct {
	Name         string
	Transport    string
	Status       Status
	Capabilities Capabilities
	Info         ServerInfo
	Message      string
}
