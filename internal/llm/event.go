// Package llm turns vendor chat responses, streamed or not, into one event
// shape and one accumulated Turn.
package llm

import (
	"github.com/cloudwego/eino/schema"
)

// Kind tags an Event.
type Kind int

const (
	TextDelta Kind = iota
	ThinkingDelta
	ToolCallDelta
	// Finish records a finish reason without ending the stream.
	Finish
	// Terminal ends the stream.
	Terminal
)

func (k Kind) String() string {
	switch k {
	case TextDelta:
		return "text_delta"
	case ThinkingDelta:
		return "thinking_delta"
	case ToolCallDelta:
		return "tool_call_delta"
	case Finish:
		return "finish"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// ToolCallFragment is part of one tool call. Fragments sharing an Index
// belong to the same call.
type ToolCallFragment struct {
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string
}

// Event is the vendor-neutral unit an Adapter produces.
type Event struct {
	Kind         Kind
	Text         string
	ToolCall     ToolCallFragment
	FinishReason string
}

// Turn is one complete model answer.
type Turn struct {
	Text         string
	Thinking     string
	ToolCalls    []schema.ToolCall
	FinishReason string
	// Streamed is false when the response was a single plain JSON object.
	Streamed bool
}

// HasToolCalls reports whether the model asked for tools.
func (t *Turn) HasToolCalls() bool {
	return t != nil && len(t.ToolCalls) > 0
}
