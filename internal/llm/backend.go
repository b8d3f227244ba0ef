package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Backend produces one model turn. onText receives text deltas in order
// as they arrive; it may be nil.
type Backend interface {
	Complete(ctx context.Context, req Request, onText func(string)) (*Turn, error)
}

const maxErrorBody = 4 << 10

var defaultBaseURLs = map[Vendor]string{
	OpenAI:    "https://api.openai.com/v1",
	Anthropic: "https://api.anthropic.com/v1",
	Mistral:   "https://api.mistral.ai/v1",
	Ollama:    "http://localhost:11434",
}

// HTTPConfig configures an HTTPBackend.
type HTTPConfig struct {
	Vendor      Vendor
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Stream      bool
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// HTTPBackend talks to a vendor chat endpoint directly and decodes the
// response with the vendor's Adapter.
type HTTPBackend struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPBackend validates cfg and returns a backend.
func NewHTTPBackend(cfg HTTPConfig) (*HTTPBackend, error) {
	if _, err := NewAdapter(cfg.Vendor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.Vendor]
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Vendor != Ollama && strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.Vendor)
	}
	client := cfg.HTTPClient
	if client == nil {
		// No client-wide timeout: a long answer may stream for minutes.
		client = &http.Client{}
	}
	return &HTTPBackend{cfg: cfg, client: client}, nil
}

// Vendor returns the configured vendor.
func (b *HTTPBackend) Vendor() Vendor {
	return b.cfg.Vendor
}

func (b *HTTPBackend) endpoint() string {
	switch b.cfg.Vendor {
	case Anthropic:
		return b.cfg.BaseURL + "/messages"
	case Ollama:
		return b.cfg.BaseURL + "/api/chat"
	default:
		return b.cfg.BaseURL + "/chat/completions"
	}
}

func (b *HTTPBackend) body(req Request) any {
	switch b.cfg.Vendor {
	case Anthropic:
		return anthropicBody(req)
	case Ollama:
		return ollamaBody(req)
	default:
		return openAIBody(req)
	}
}

func (b *HTTPBackend) fill(req Request) Request {
	if req.Model == "" {
		req.Model = b.cfg.Model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = b.cfg.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = b.cfg.Temperature
	}
	req.Stream = b.cfg.Stream
	return req
}

// Complete implements Backend.
func (b *HTTPBackend) Complete(ctx context.Context, req Request, onText func(string)) (*Turn, error) {
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}
	req = b.fill(req)

	payload, err := json.Marshal(b.body(req))
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", b.cfg.Vendor, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream, application/x-ndjson, application/json")
	}
	switch b.cfg.Vendor {
	case Anthropic:
		httpReq.Header.Set("x-api-key", b.cfg.APIKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")
	default:
		if b.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
		}
	}

	started := time.Now()
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", b.cfg.Vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%s http %d: %s", b.cfg.Vendor, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	adapter, err := NewAdapter(b.cfg.Vendor)
	if err != nil {
		return nil, err
	}
	turn, err := Unify(ctx, resp.Body, adapter, func(ev Event) {
		if ev.Kind == TextDelta && onText != nil {
			onText(ev.Text)
		}
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("model turn complete",
		"vendor", b.cfg.Vendor,
		"model", req.Model,
		"streamed", turn.Streamed,
		"tool_calls", len(turn.ToolCalls),
		"finish_reason", turn.FinishReason,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return turn, nil
}
