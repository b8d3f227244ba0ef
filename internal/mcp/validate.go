package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.input.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateArguments checks args against a tool's input schema. Tools without
// a schema accept anything; a schema that does not compile is logged and skipped.
func ValidateArguments(tool Tool, args map[string]any) error {
	schema := strings.TrimSpace(string(tool.InputSchema))
	if schema == "" || schema == "null" || schema == "{}" {
		return nil
	}

	compiled, err := compileSchema([]byte(schema))
	if err != nil {
		slog.Warn("skipping argument validation for tool with invalid schema", "tool", tool.Name, "error", err)
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode tool arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}

	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, tool.Name, err)
	}
	return nil
}
