package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/llm"
)

func TestNewBackend_UnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, _, err := NewBackend(context.Background(), cfg, "missing", Options{}); err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestNewBackend_StreamMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Entries["mistral"] = config.ProviderConfig{Vendor: "mistral", Mode: "stream", APIKey: "k", Model: "mistral-small"}

	b, name, err := NewBackend(context.Background(), cfg, "mistral", Options{})
	if err != nil {
		t.Fatalf("NewBackend() error: %v", err)
	}
	if name != "mistral" {
		t.Fatalf("unexpected name %q", name)
	}
	hb, ok := b.(*llm.HTTPBackend)
	if !ok || hb.Vendor() != llm.Mistral {
		t.Fatalf("expected mistral http backend, got %T", b)
	}
}

func TestNewBackend_SDKMode(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Entries["oa"] = config.ProviderConfig{Vendor: "openai", Mode: "sdk", APIKey: "k", Model: "gpt-4o-mini"}

	b, _, err := NewBackend(context.Background(), cfg, "oa", Options{})
	if err != nil {
		t.Fatalf("NewBackend() error: %v", err)
	}
	if _, ok := b.(*llm.EinoBackend); !ok {
		t.Fatalf("expected eino backend, got %T", b)
	}
}

func TestNewBackend_StreamModeRequiresKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.Entries["oa"] = config.ProviderConfig{Vendor: "openai", Mode: "stream"}
	if _, _, err := NewBackend(context.Background(), cfg, "oa", Options{}); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestDiscoverOllama_MemoizesUntilReset(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	var probes atomic.Int32
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	cache := NewHostCache()
	candidates := []string{broken.URL, healthy.URL + "/"}

	host, err := DiscoverOllama(context.Background(), cache, nil, candidates)
	if err != nil {
		t.Fatalf("DiscoverOllama() error: %v", err)
	}
	if host != healthy.URL {
		t.Fatalf("expected %s, got %s", healthy.URL, host)
	}
	if _, err := DiscoverOllama(context.Background(), cache, nil, candidates); err != nil {
		t.Fatalf("second DiscoverOllama() error: %v", err)
	}
	if probes.Load() != 1 {
		t.Fatalf("expected memoized host, got %d probes", probes.Load())
	}

	cache.Reset()
	if _, ok := cache.Get(); ok {
		t.Fatal("expected empty cache after Reset")
	}
	if _, err := DiscoverOllama(context.Background(), cache, nil, candidates); err != nil {
		t.Fatalf("DiscoverOllama() after reset error: %v", err)
	}
	if probes.Load() != 2 {
		t.Fatalf("expected a new probe after Reset, got %d", probes.Load())
	}
}

func TestDiscoverOllama_NoneReachable(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := DiscoverOllama(context.Background(), NewHostCache(), nil, []string{srv.URL}); err == nil {
		t.Fatal("expected discovery failure")
	}
}

func TestNewBackend_DiscoversOllama(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	hosts := NewHostCache()
	b, name, err := NewBackend(context.Background(), cfg, "", Options{Hosts: hosts, Candidates: []string{srv.URL}})
	if err != nil {
		t.Fatalf("NewBackend() error: %v", err)
	}
	if name != cfg.Providers.Default {
		t.Fatalf("expected default provider, got %q", name)
	}
	if _, ok := b.(*llm.HTTPBackend); !ok {
		t.Fatalf("expected http backend, got %T", b)
	}
	if host, _ := hosts.Get(); host != srv.URL {
		t.Fatalf("expected discovered host %s, got %q", srv.URL, host)
	}
}
