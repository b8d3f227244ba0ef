package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	"github.com/sashabaranov/go-openai"
)

// EinoBackend runs a turn through an eino chat model. The answer arrives
// whole, so onText is called at most once.
type EinoBackend struct {
	model model.ToolCallingChatModel
}

// NewEinoBackend wraps m.
func NewEinoBackend(m model.ToolCallingChatModel) *EinoBackend {
	return &EinoBackend{model: m}
}

// Complete implements Backend.
func (b *EinoBackend) Complete(ctx context.Context, req Request, onText func(string)) (*Turn, error) {
	m := b.model
	if len(req.Tools) > 0 {
		infos, err := ToolInfos(req.Tools)
		if err != nil {
			return nil, err
		}
		m, err = m.WithTools(infos)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
	}

	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, schema.SystemMessage(req.System))
	}
	msgs = append(msgs, req.Messages...)

	out, err := m.Generate(ctx, msgs)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("model returned no message")
	}

	acc := NewAccumulator()
	acc.Add(Event{Kind: ThinkingDelta, Text: out.ReasoningContent})
	acc.Add(Event{Kind: TextDelta, Text: out.Content})
	for i, tc := range out.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		acc.Add(Event{Kind: ToolCallDelta, ToolCall: ToolCallFragment{
			Index:             index,
			ID:                tc.ID,
			Name:              tc.Function.Name,
			ArgumentsFragment: tc.Function.Arguments,
		}})
	}
	if out.ResponseMeta != nil {
		acc.Add(Event{Kind: Terminal, FinishReason: out.ResponseMeta.FinishReason})
	}
	if out.Content != "" && onText != nil {
		onText(out.Content)
	}
	return acc.Turn(false), nil
}

// ToolInfos converts a function-calling catalog into eino tool infos.
func ToolInfos(tools []openai.Tool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		if t.Function == nil {
			continue
		}
		info := &schema.ToolInfo{Name: t.Function.Name, Desc: t.Function.Description}
		if t.Function.Parameters != nil {
			raw, err := json.Marshal(t.Function.Parameters)
			if err != nil {
				return nil, fmt.Errorf("tool %s parameters: %w", t.Function.Name, err)
			}
			var js jsonschema.Schema
			if err := json.Unmarshal(raw, &js); err != nil {
				return nil, fmt.Errorf("tool %s parameters: %w", t.Function.Name, err)
			}
			info.ParamsOneOf = schema.NewParamsOneOfByJSONSchema(&js)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
