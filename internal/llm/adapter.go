package llm

import (
	"fmt"
	"strings"
)

// Vendor names a chat API dialect.
type Vendor string

const (
	OpenAI    Vendor = "openai"
	Anthropic Vendor = "anthropic"
	Mistral   Vendor = "mistral"
	Ollama    Vendor = "ollama"
)

// Framing is how a streamed body is split into frames.
type Framing int

const (
	// FramingSSE is a text/event-stream body with data: lines.
	FramingSSE Framing = iota
	// FramingNDJSON is one JSON object per line.
	FramingNDJSON
)

// Frame is one unit of a streamed body.
type Frame struct {
	Event string
	Data  []byte
}

// Adapter decodes one response from one vendor. Adapters may keep state
// between frames, so a new one is needed per response.
type Adapter interface {
	Vendor() Vendor
	Framing() Framing
	// DecodeFrame turns one frame into events. A *StreamError aborts the
	// stream; any other error skips the frame.
	DecodeFrame(f Frame) ([]Event, error)
	// DecodeBody handles a single non-streaming JSON object.
	DecodeBody(data []byte) ([]Event, error)
}

// StreamError is an error the vendor reported inside the stream.
type StreamError struct {
	Vendor  Vendor
	Type    string
	Message string
}

func (e *StreamError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s stream error (%s): %s", e.Vendor, e.Type, e.Message)
	}
	return fmt.Sprintf("%s stream error: %s", e.Vendor, e.Message)
}

// NewAdapter returns a fresh adapter for vendor.
func NewAdapter(vendor Vendor) (Adapter, error) {
	switch Vendor(strings.ToLower(string(vendor))) {
	case OpenAI:
		return &openAIAdapter{vendor: OpenAI}, nil
	case Mistral:
		return &openAIAdapter{vendor: Mistral, finishIsTerminal: true}, nil
	case Anthropic:
		return &anthropicAdapter{}, nil
	case Ollama:
		return &ollamaAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported vendor %q", vendor)
	}
}
