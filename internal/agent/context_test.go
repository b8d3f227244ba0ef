package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MEKXH/mcpilot/internal/intent"
	"github.com/MEKXH/mcpilot/internal/mcp"
	"github.com/MEKXH/mcpilot/internal/relevance"
)

func TestBuildSystemPrompt(t *testing.T) {
	cb := NewContextBuilder("  You are a development assistant.  ")
	in := intent.Intent{Type: intent.Coding, Confidence: 0.5, Complexity: intent.Low, Domains: []string{"frontend"}}

	got := cb.BuildSystemPrompt(in, 3)
	for _, want := range []string{"You are a development assistant.", "Intent: coding (confidence 0.50)", "Domains: frontend", "3 tools are available"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in prompt:\n%s", want, got)
		}
	}
	if strings.Contains(cb.BuildSystemPrompt(intent.Intent{}, 0), "## Tools") {
		t.Fatal("expected no tools section without tools")
	}
}

func TestEnrichQuery(t *testing.T) {
	cb := NewContextBuilder("")
	if got := cb.EnrichQuery(" plain ", nil); got != "plain" {
		t.Fatalf("expected bare query, got %q", got)
	}

	long := strings.Repeat("x", maxContextChars+10)
	got := cb.EnrichQuery("q", []ResourceContext{
		{Scored: relevance.Scored{Resource: mcp.ServerResource{Resource: mcp.Resource{URI: "file:///a.md", Name: "a.md"}}}, Text: "alpha"},
		{Scored: relevance.Scored{Resource: mcp.ServerResource{Resource: mcp.Resource{URI: "file:///big"}}}, Text: long},
	})
	if !strings.HasPrefix(got, "q\n\n## Relevant context") {
		t.Fatalf("unexpected layout %q", got[:40])
	}
	if !strings.Contains(got, "### a.md (file:///a.md)\nalpha") {
		t.Fatal("expected named section")
	}
	if !strings.Contains(got, "### file:///big (file:///big)") || !strings.HasSuffix(got, "...(truncated)") {
		t.Fatal("expected uri fallback and truncation")
	}
}

func TestTruncate_KeepsRuneBoundary(t *testing.T) {
	// "é" is two bytes; a limit of 5 lands inside the third one.
	got := truncate("ééé", 5)
	if got != "éé\n...(truncated)" {
		t.Fatalf("truncate = %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if truncate("short", 10) != "short" {
		t.Fatal("short text must be returned unchanged")
	}

	long := strings.Repeat("a", maxContextChars-1) + "世界"
	out := truncate(long, maxContextChars)
	if !utf8.ValidString(out) || !strings.HasSuffix(out, "a\n...(truncated)") {
		t.Fatalf("unexpected tail %q", out[len(out)-20:])
	}
}
