// Package provider builds model backends from configuration.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/llm"
)

const (
	modeStream = "stream"
	modeSDK    = "sdk"

	mistralBaseURL = "https://api.mistral.ai/v1"
)

// Options carries state shared between backend builds.
type Options struct {
	Hosts      *HostCache
	Candidates []string
}

// NewBackend builds the backend for the named provider entry (the default
// entry when name is empty). It returns the resolved entry name.
func NewBackend(ctx context.Context, cfg *config.Config, name string, opts Options) (llm.Backend, string, error) {
	name, p, err := cfg.Provider(name)
	if err != nil {
		return nil, name, err
	}
	vendor := llm.Vendor(strings.ToLower(strings.TrimSpace(p.Vendor)))

	if vendor == llm.Ollama && strings.TrimSpace(p.BaseURL) == "" {
		hosts := opts.Hosts
		if hosts == nil {
			hosts = NewHostCache()
		}
		base, err := DiscoverOllama(ctx, hosts, nil, opts.Candidates)
		if err != nil {
			return nil, name, err
		}
		p.BaseURL = base
	}

	switch strings.ToLower(strings.TrimSpace(p.Mode)) {
	case modeSDK:
		cm, err := newChatModel(ctx, vendor, p)
		if err != nil {
			return nil, name, fmt.Errorf("provider %s: %w", name, err)
		}
		return llm.NewEinoBackend(cm), name, nil
	case modeStream, "":
		b, err := llm.NewHTTPBackend(llm.HTTPConfig{
			Vendor:      vendor,
			BaseURL:     p.BaseURL,
			APIKey:      p.APIKey,
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: p.Temperature,
			Stream:      true,
			Timeout:     timeout(p),
		})
		if err != nil {
			return nil, name, fmt.Errorf("provider %s: %w", name, err)
		}
		return b, name, nil
	default:
		return nil, name, fmt.Errorf("provider %s: unknown mode %q", name, p.Mode)
	}
}

func newChatModel(ctx context.Context, vendor llm.Vendor, p config.ProviderConfig) (model.ToolCallingChatModel, error) {
	switch vendor {
	case llm.OpenAI, llm.Mistral:
		cfg := &openai.ChatModelConfig{
			Model:       p.Model,
			APIKey:      p.APIKey,
			Temperature: toFloat32Ptr(p.Temperature),
			Timeout:     timeout(p),
		}
		if p.MaxTokens > 0 {
			cfg.MaxTokens = toIntPtr(p.MaxTokens)
		}
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		} else if vendor == llm.Mistral {
			cfg.BaseURL = mistralBaseURL
		}
		return openai.NewChatModel(ctx, cfg)
	case llm.Anthropic:
		cfg := &claude.Config{
			APIKey:      p.APIKey,
			Model:       p.Model,
			MaxTokens:   p.MaxTokens,
			Temperature: toFloat32Ptr(p.Temperature),
		}
		if cfg.MaxTokens <= 0 {
			cfg.MaxTokens = 4096
		}
		if p.BaseURL != "" {
			cfg.BaseURL = &p.BaseURL
		}
		return claude.NewChatModel(ctx, cfg)
	case llm.Ollama:
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: p.BaseURL,
			Model:   p.Model,
			Timeout: timeout(p),
		})
	default:
		return nil, fmt.Errorf("unsupported vendor %q", vendor)
	}
}

func timeout(p config.ProviderConfig) time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func toFloat32Ptr(f float64) *float32 {
	v := float32(f)
	return &v
}

func toIntPtr(i int) *int {
	return &i
}
