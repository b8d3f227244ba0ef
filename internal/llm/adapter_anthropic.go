package llm

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

type anthropicAdapter struct{}

func (a *anthropicAdapter) Vendor() Vendor { return Anthropic }

func (a *anthropicAdapter) Framing() Framing { return FramingSSE }

type anthropicProbe struct {
	Type  string `json:"type"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *anthropicAdapter) DecodeFrame(f Frame) ([]Event, error) {
	if len(f.Data) == 0 {
		return nil, nil
	}
	var probe anthropicProbe
	if err := json.Unmarshal(f.Data, &probe); err != nil {
		return nil, fmt.Errorf("decode anthropic event: %w", err)
	}

	switch probe.Type {
	case "error":
		se := &StreamError{Vendor: Anthropic, Message: "unknown error"}
		if probe.Error != nil {
			se.Type, se.Message = probe.Error.Type, probe.Error.Message
		}
		return nil, se
	case "ping", "message_start", "content_block_stop":
		return nil, nil
	}

	var event anthropic.MessageStreamEventUnion
	if err := json.Unmarshal(f.Data, &event); err != nil {
		return nil, fmt.Errorf("decode anthropic %s: %w", probe.Type, err)
	}

	switch event.Type {
	case "content_block_start":
		start := event.AsContentBlockStart()
		if start.ContentBlock.Type != "tool_use" {
			return nil, nil
		}
		toolUse := start.ContentBlock.AsToolUse()
		return []Event{{Kind: ToolCallDelta, ToolCall: ToolCallFragment{
			Index: int(start.Index),
			ID:    toolUse.ID,
			Name:  toolUse.Name,
		}}}, nil

	case "content_block_delta":
		block := event.AsContentBlockDelta()
		delta := block.Delta
		switch delta.Type {
		case "text_delta":
			if delta.Text != "" {
				return []Event{{Kind: TextDelta, Text: delta.Text}}, nil
			}
		case "thinking_delta":
			if delta.Thinking != "" {
				return []Event{{Kind: ThinkingDelta, Text: delta.Thinking}}, nil
			}
		case "input_json_delta":
			if delta.PartialJSON != "" {
				return []Event{{Kind: ToolCallDelta, ToolCall: ToolCallFragment{
					Index:             int(block.Index),
					ArgumentsFragment: delta.PartialJSON,
				}}}, nil
			}
		}
		return nil, nil

	case "message_delta":
		reason := string(event.AsMessageDelta().Delta.StopReason)
		if reason == "" {
			return nil, nil
		}
		return []Event{{Kind: Finish, FinishReason: reason}}, nil

	case "message_stop":
		return []Event{{Kind: Terminal}}, nil
	}
	return nil, nil
}

// anthropicMessage is the non-streaming /v1/messages response.
type anthropicMessage struct {
	Type    string `json:"type"`
	Content []struct {
		Type     string          `json:"type"`
		Text     string          `json:"text"`
		Thinking string          `json:"thinking"`
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Input    json.RawMessage `json:"input"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *anthropicAdapter) DecodeBody(data []byte) ([]Event, error) {
	var msg anthropicMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode anthropic response: %w", err)
	}
	if msg.Type == "error" && msg.Error != nil {
		return nil, &StreamError{Vendor: Anthropic, Type: msg.Error.Type, Message: msg.Error.Message}
	}

	var events []Event
	for i, block := range msg.Content {
		switch block.Type {
		case "text":
			events = append(events, Event{Kind: TextDelta, Text: block.Text})
		case "thinking":
			events = append(events, Event{Kind: ThinkingDelta, Text: block.Thinking})
		case "tool_use":
			events = append(events, Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{
				Index:             i,
				ID:                block.ID,
				Name:              block.Name,
				ArgumentsFragment: string(block.Input),
			}})
		}
	}
	return append(events, Event{Kind: Terminal, FinishReason: msg.StopReason}), nil
}
