package llm

import (
	"encoding/json"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/sashabaranov/go-openai"
)

const defaultMaxTokens = 4096

// Request is one model call in vendor-neutral form.
type Request struct {
	Model       string
	System      string
	Messages    []*schema.Message
	Tools       []openai.Tool
	MaxTokens   int
	Temperature float64
	Stream      bool
}

func openAIBody(req Request) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
		switch m.Role {
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
		case schema.Tool:
			msg.ToolCallID = m.ToolCallID
		}
		msgs = append(msgs, msg)
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stream:      req.Stream,
		Tools:       req.Tools,
	}
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type anthropicMessageParam struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string                  `json:"model"`
	System      string                  `json:"system,omitempty"`
	Messages    []anthropicMessageParam `json:"messages"`
	Tools       []anthropicTool         `json:"tools,omitempty"`
	MaxTokens   int                     `json:"max_tokens"`
	Temperature float64                 `json:"temperature,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
}

func anthropicBody(req Request) anthropicRequest {
	out := anthropicRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	for _, t := range req.Tools {
		if t.Function == nil {
			continue
		}
		out.Tools = append(out.Tools, anthropicTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}

	for _, m := range req.Messages {
		role := "user"
		var blocks []anthropicBlock
		switch m.Role {
		case schema.System:
			if out.System != "" {
				out.System += "\n\n"
			}
			out.System += m.Content
			continue
		case schema.Assistant:
			role = "assistant"
			if m.Content != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, anthropicBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: rawArguments(tc.Function.Arguments),
				})
			}
		case schema.Tool:
			blocks = append(blocks, anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content})
		default:
			blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
		}
		if len(blocks) == 0 {
			continue
		}
		// Consecutive messages of one role merge; tool results for one
		// assistant turn travel in a single user message.
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == role {
			out.Messages[n-1].Content = append(out.Messages[n-1].Content, blocks...)
			continue
		}
		out.Messages = append(out.Messages, anthropicMessageParam{Role: role, Content: blocks})
	}
	return out
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []openai.Tool       `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

func ollamaBody(req Request) ollamaChatRequest {
	out := ollamaChatRequest{Model: req.Model, Tools: req.Tools, Stream: req.Stream}
	options := map[string]any{}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if len(options) > 0 {
		out.Options = options
	}

	if strings.TrimSpace(req.System) != "" {
		out.Messages = append(out.Messages, ollamaChatMessage{Role: "system", Content: req.System})
	}
	toolNames := map[string]string{}
	for _, m := range req.Messages {
		msg := ollamaChatMessage{Role: string(m.Role), Content: m.Content}
		switch m.Role {
		case schema.Assistant:
			for _, tc := range m.ToolCalls {
				toolNames[tc.ID] = tc.Function.Name
				call := ollamaToolCall{ID: tc.ID}
				call.Function.Name = tc.Function.Name
				call.Function.Arguments = rawArguments(tc.Function.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, call)
			}
		case schema.Tool:
			msg.ToolName = toolNames[m.ToolCallID]
		}
		out.Messages = append(out.Messages, msg)
	}
	return out
}

// rawArguments embeds an arguments string as a JSON object, falling back to
// an empty object when the model produced invalid JSON.
func rawArguments(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}
