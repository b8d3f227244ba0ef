package llm

import (
	"strings"
	"testing"
)

func TestAccumulator_ConcatenatesArgumentsPerIndex(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{Index: 0, ID: "call_1", Name: "deploy", ArgumentsFragment: `{"a":`}})
	acc.Add(Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{Index: 0, ArgumentsFragment: `1}`}})

	calls := acc.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].Function.Arguments != `{"a":1}` {
		t.Fatalf("unexpected arguments %q", calls[0].Function.Arguments)
	}
	if calls[0].ID != "call_1" || calls[0].Function.Name != "deploy" {
		t.Fatalf("unexpected call %+v", calls[0])
	}
}

func TestAccumulator_OrdersByIndexAndGeneratesIDs(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{Index: 2, Name: "second"}})
	acc.Add(Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{Index: 0, Name: "first", ArgumentsFragment: `{}`}})
	acc.Add(Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{Index: 1, ArgumentsFragment: `{"orphan":true}`}})

	calls := acc.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("expected nameless fragments to be dropped, got %d calls", len(calls))
	}
	if calls[0].Function.Name != "first" || calls[1].Function.Name != "second" {
		t.Fatalf("unexpected order: %s, %s", calls[0].Function.Name, calls[1].Function.Name)
	}
	if !strings.HasPrefix(calls[1].ID, "call_") {
		t.Fatalf("expected generated id, got %q", calls[1].ID)
	}
	if calls[1].Function.Arguments != "{}" {
		t.Fatalf("expected empty arguments to default to {}, got %q", calls[1].Function.Arguments)
	}
	if again := acc.ToolCalls(); again[1].ID != calls[1].ID {
		t.Fatalf("generated id changed between calls: %q vs %q", calls[1].ID, again[1].ID)
	}
}

func TestAccumulator_Turn(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Event{Kind: ThinkingDelta, Text: "hmm"})
	acc.Add(Event{Kind: TextDelta, Text: "ab"})
	acc.Add(Event{Kind: TextDelta, Text: "cd"})
	acc.Add(Event{Kind: Finish, FinishReason: "stop"})
	acc.Add(Event{Kind: Terminal})

	turn := acc.Turn(true)
	if turn.Text != "abcd" || turn.Thinking != "hmm" || turn.FinishReason != "stop" || !turn.Streamed {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if turn.HasToolCalls() {
		t.Fatalf("expected no tool calls")
	}
}
