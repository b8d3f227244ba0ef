package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const probeTimeout = 2 * time.Second

// DefaultOllamaCandidates are probed when no base url is configured.
var DefaultOllamaCandidates = []string{
	"http://localhost:11434",
	"http://127.0.0.1:11434",
	"http://host.docker.internal:11434",
}

// HostCache remembers the discovered local model host until Reset.
type HostCache struct {
	mu   sync.Mutex
	host string
}

// NewHostCache returns an empty cache.
func NewHostCache() *HostCache {
	return &HostCache{}
}

// Get returns the cached host, if any.
func (c *HostCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host, c.host != ""
}

func (c *HostCache) set(host string) {
	c.mu.Lock()
	c.host = host
	c.mu.Unlock()
}

// Reset forgets the cached host. Called when configuration changes.
func (c *HostCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.host != "" {
		slog.Debug("discovered model host cleared", "host", c.host)
	}
	c.host = ""
}

// DiscoverOllama returns the first candidate answering /api/tags, checking
// OLLAMA_HOST first. The result is memoized in cache.
func DiscoverOllama(ctx context.Context, cache *HostCache, client *http.Client, candidates []string) (string, error) {
	if host, ok := cache.Get(); ok {
		return host, nil
	}
	if client == nil {
		client = &http.Client{Timeout: probeTimeout}
	}
	if len(candidates) == 0 {
		candidates = DefaultOllamaCandidates
	}
	if env := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); env != "" {
		if !strings.Contains(env, "://") {
			env = "http://" + env
		}
		candidates = append([]string{env}, candidates...)
	}

	for _, candidate := range candidates {
		base := strings.TrimRight(candidate, "/")
		if err := probe(ctx, client, base); err != nil {
			slog.Debug("ollama probe failed", "host", base, "error", err)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		cache.set(base)
		slog.Info("discovered ollama host", "host", base)
		return base, nil
	}
	return "", fmt.Errorf("no ollama host reachable (tried %s)", strings.Join(candidates, ", "))
}

func probe(ctx context.Context, client *http.Client, base string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
