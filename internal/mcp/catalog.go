package mcp

import (
	"encoding/json"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// RenderCatalog turns tools into the function-calling catalog sent to the model.
// Duplicate names keep their first occurrence.
func RenderCatalog(tools []ServerTool) []openai.Tool {
	seen := make(map[string]struct{}, len(tools))
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		params := t.InputSchema
		if len(strings.TrimSpace(string(params))) == 0 || string(params) == "null" {
			params = emptyObjectSchema
		}
		desc := strings.TrimSpace(t.Description)
		if desc == "" {
			desc = name
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        name,
				Description: desc,
				Parameters:  params,
			},
		})
	}
	return out
}
