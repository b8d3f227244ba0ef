package llm

import (
	"sort"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// Accumulator folds events into a Turn.
type Accumulator struct {
	text     strings.Builder
	thinking strings.Builder
	calls    map[int]*pendingCall
	finish   string
	newID    func() string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		calls: make(map[int]*pendingCall),
		newID: func() string { return "call_" + uuid.NewString() },
	}
}

// Add applies one event.
func (a *Accumulator) Add(ev Event) {
	switch ev.Kind {
	case TextDelta:
		a.text.WriteString(ev.Text)
	case ThinkingDelta:
		a.thinking.WriteString(ev.Text)
	case ToolCallDelta:
		tc := ev.ToolCall
		call, ok := a.calls[tc.Index]
		if !ok {
			call = &pendingCall{}
			a.calls[tc.Index] = call
		}
		if tc.ID != "" {
			call.id = tc.ID
		}
		if tc.Name != "" {
			call.name = tc.Name
		}
		call.args.WriteString(tc.ArgumentsFragment)
	case Finish, Terminal:
		if ev.FinishReason != "" {
			a.finish = ev.FinishReason
		}
	}
}

// Text returns the text accumulated so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// ToolCalls materializes the accumulated calls ordered by index. Calls
// without a vendor id get a generated one.
func (a *Accumulator) ToolCalls() []schema.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.calls))
	for i := range a.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	out := make([]schema.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		call := a.calls[i]
		if call.name == "" {
			continue
		}
		if call.id == "" {
			call.id = a.newID()
		}
		args := call.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		idx := i
		out = append(out, schema.ToolCall{
			Index:    &idx,
			ID:       call.id,
			Type:     "function",
			Function: schema.FunctionCall{Name: call.name, Arguments: args},
		})
	}
	return out
}

// Turn returns the accumulated result.
func (a *Accumulator) Turn(streamed bool) *Turn {
	return &Turn{
		Text:         a.text.String(),
		Thinking:     a.thinking.String(),
		ToolCalls:    a.ToolCalls(),
		FinishReason: a.finish,
		Streamed:     streamed,
	}
}
