package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ollamaAdapter numbers tool calls itself because Ollama sends each call
// whole and without an index.
type ollamaAdapter struct {
	nextIndex int
}

func (a *ollamaAdapter) Vendor() Vendor { return Ollama }

func (a *ollamaAdapter) Framing() Framing { return FramingNDJSON }

type ollamaToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	} `json:"function"`
}

type ollamaChunk struct {
	Message *struct {
		Role      string           `json:"role"`
		Content   string           `json:"content"`
		Thinking  string           `json:"thinking"`
		ToolCalls []ollamaToolCall `json:"tool_calls"`
	} `json:"message"`
	Response   string `json:"response"`
	Thinking   string `json:"thinking"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
	Error      string `json:"error"`
}

func (a *ollamaAdapter) DecodeFrame(f Frame) ([]Event, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 {
		return nil, nil
	}
	var chunk ollamaChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decode ollama chunk: %w", err)
	}
	if chunk.Error != "" {
		return nil, &StreamError{Vendor: Ollama, Message: chunk.Error}
	}

	var events []Event
	thinking, text := chunk.Thinking, chunk.Response
	if chunk.Message != nil {
		thinking += chunk.Message.Thinking
		text += chunk.Message.Content
	}
	if thinking != "" {
		events = append(events, Event{Kind: ThinkingDelta, Text: thinking})
	}
	if text != "" {
		events = append(events, Event{Kind: TextDelta, Text: text})
	}
	if chunk.Message != nil {
		for _, tc := range chunk.Message.ToolCalls {
			args, err := encodeArguments(tc.Function.Arguments)
			if err != nil {
				return events, fmt.Errorf("ollama tool %s arguments: %w", tc.Function.Name, err)
			}
			events = append(events, Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{
				Index:             a.nextIndex,
				ID:                tc.ID,
				Name:              tc.Function.Name,
				ArgumentsFragment: args,
			}})
			a.nextIndex++
		}
	}
	if chunk.Done {
		events = append(events, Event{Kind: Terminal, FinishReason: chunk.DoneReason})
	}
	return events, nil
}

func (a *ollamaAdapter) DecodeBody(data []byte) ([]Event, error) {
	return a.DecodeFrame(Frame{Data: data})
}

// encodeArguments re-encodes an arguments object as a JSON string. Some
// models send the arguments already as a string.
func encodeArguments(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "{}", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}
