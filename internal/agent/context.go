package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MEKXH/mcpilot/internal/intent"
	"github.com/MEKXH/mcpilot/internal/relevance"
	"github.com/cloudwego/eino/schema"
)

// maxContextChars caps the text included per resource.
const maxContextChars = 4000

// ResourceContext is a selected resource together with its text.
type ResourceContext struct {
	relevance.Scored
	Text string
}

// ContextBuilder builds the prompt sent to the model.
type ContextBuilder struct {
	systemPrompt string
}

// NewContextBuilder creates a context builder around the configured base prompt.
func NewContextBuilder(systemPrompt string) *ContextBuilder {
	return &ContextBuilder{systemPrompt: strings.TrimSpace(systemPrompt)}
}

// BuildSystemPrompt assembles the system prompt for one request.
func (c *ContextBuilder) BuildSystemPrompt(in intent.Intent, toolCount int) string {
	var parts []string
	if c.systemPrompt != "" {
		parts = append(parts, c.systemPrompt)
	}

	var req strings.Builder
	fmt.Fprintf(&req, "## Request\nIntent: %s (confidence %.2f)\nComplexity: %s", in.Type, in.Confidence, in.Complexity)
	if len(in.Domains) > 0 {
		fmt.Fprintf(&req, "\nDomains: %s", strings.Join(in.Domains, ", "))
	}
	parts = append(parts, req.String())

	if toolCount > 0 {
		parts = append(parts, fmt.Sprintf("## Tools\n%d tools are available. Call them when the answer depends on workspace state; otherwise answer directly.", toolCount))
	}
	return strings.Join(parts, "\n\n")
}

// EnrichQuery appends the selected resource texts to the user's query.
func (c *ContextBuilder) EnrichQuery(query string, contexts []ResourceContext) string {
	query = strings.TrimSpace(query)
	if len(contexts) == 0 {
		return query
	}

	var sb strings.Builder
	sb.WriteString(query)
	sb.WriteString("\n\n## Relevant context")
	for _, rc := range contexts {
		name := rc.Resource.Name
		if name == "" {
			name = rc.Resource.URI
		}
		fmt.Fprintf(&sb, "\n\n### %s (%s)\n", name, rc.Resource.URI)
		sb.WriteString(truncate(rc.Text, maxContextChars))
	}
	return sb.String()
}

// truncate cuts text to at most limit bytes without splitting a UTF-8 sequence.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "\n...(truncated)"
}

// BuildMessages constructs the conversation after the system prompt.
func (c *ContextBuilder) BuildMessages(history []*schema.Message, enriched string) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+1)
	for _, h := range history {
		if h == nil || h.Role == schema.System {
			continue
		}
		messages = append(messages, h)
	}
	return append(messages, schema.UserMessage(enriched))
}
