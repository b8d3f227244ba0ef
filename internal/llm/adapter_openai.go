package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const doneSentinel = "[DONE]"

// openAIAdapter also serves Mistral, whose stream is a subset of OpenAI's
// and may end on a finish_reason without a [DONE] line.
type openAIAdapter struct {
	vendor           Vendor
	finishIsTerminal bool
}

func (a *openAIAdapter) Vendor() Vendor { return a.vendor }
func (a *openAIAdapter) Framing() Framing { return FramingSSE }

// threadMessageDelta is the assistants-API delta shape.
type threadMessageDelta struct {
	Object string `json:"object"`
	Delta  struct {
		Content []struct {
			Index int    `json:"index"`
			Type  string `json:"type"`
			Text  struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

type openAIErrorFrame struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (a *openAIAdapter) DecodeFrame(f Frame) ([]Event, error) {
	data := bytes.TrimSpace(f.Data)
	if len(data) == 0 {
		return nil, nil
	}
	if string(data) == doneSentinel {
		return []Event{{Kind: Terminal}}, nil
	}

	if f.Event == "thread.message.delta" || bytes.Contains(data, []byte(`"thread.message.delta"`)) {
		var delta threadMessageDelta
		if err := json.Unmarshal(data, &delta); err != nil {
			return nil, fmt.Errorf("decode thread.message.delta: %w", err)
		}
		var events []Event
		for _, c := range delta.Delta.Content {
			if c.Type == "text" && c.Text.Value != "" {
				events = append(events, Event{Kind: TextDelta, Text: c.Text.Value})
			}
		}
		return events, nil
	}

	var errFrame openAIErrorFrame
	if err := json.Unmarshal(data, &errFrame); err == nil && errFrame.Error != nil {
		return nil, &StreamError{Vendor: a.vendor, Type: errFrame.Error.Type, Message: errFrame.Error.Message}
	}

	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, fmt.Errorf("decode %s chunk: %w", a.vendor, err)
	}
	if len(chunk.Choices) == 0 {
		return nil, nil
	}

	choice := chunk.Choices[0]
	var events []Event
	if choice.Delta.ReasoningContent != "" {
		events = append(events, Event{Kind: ThinkingDelta, Text: choice.Delta.ReasoningContent})
	}
	if choice.Delta.Content != "" {
		events = append(events, Event{Kind: TextDelta, Text: choice.Delta.Content})
	}
	for i, tc := range choice.Delta.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		events = append(events, Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{
			Index:             index,
			ID:                tc.ID,
			Name:              tc.Function.Name,
			ArgumentsFragment: tc.Function.Arguments,
		}})
	}
	if reason := string(choice.FinishReason); reason != "" {
		kind := Finish
		if a.finishIsTerminal {
			kind = Terminal
		}
		events = append(events, Event{Kind: kind, FinishReason: reason})
	}
	return events, nil
}

func (a *openAIAdapter) DecodeBody(data []byte) ([]Event, error) {
	var errFrame openAIErrorFrame
	if err := json.Unmarshal(data, &errFrame); err == nil && errFrame.Error != nil {
		return nil, &StreamError{Vendor: a.vendor, Type: errFrame.Error.Type, Message: errFrame.Error.Message}
	}

	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", a.vendor, err)
	}
	if len(resp.Choices) == 0 {
		return []Event{{Kind: Terminal}}, nil
	}

	choice := resp.Choices[0]
	var events []Event
	if choice.Message.ReasoningContent != "" {
		events = append(events, Event{Kind: ThinkingDelta, Text: choice.Message.ReasoningContent})
	}
	if choice.Message.Content != "" {
		events = append(events, Event{Kind: TextDelta, Text: choice.Message.Content})
	}
	for i, tc := range choice.Message.ToolCalls {
		events = append(events, Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{
			Index:             i,
			ID:                tc.ID,
			Name:              tc.Function.Name,
			ArgumentsFragment: tc.Function.Arguments,
		}})
	}
	return append(events, Event{Kind: Terminal, FinishReason: string(choice.FinishReason)}), nil
}
