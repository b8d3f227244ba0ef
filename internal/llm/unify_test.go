package llm

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func unify(t *testing.T, vendor Vendor, body string) (*Turn, []string, error) {
	t.Helper()
	adapter, err := NewAdapter(vendor)
	if err != nil {
		t.Fatalf("NewAdapter(%s) error: %v", vendor, err)
	}
	var texts []string
	turn, err := Unify(context.Background(), strings.NewReader(body), adapter, func(ev Event) {
		if ev.Kind == TextDelta {
			texts = append(texts, ev.Text)
		}
	})
	return turn, texts, err
}

func TestUnify_OpenAITextDeltas(t *testing.T) {
	body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ab\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"cd\"}}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: [DONE]\n\n"

	turn, texts, err := unify(t, OpenAI, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "abcd" {
		t.Fatalf("expected abcd, got %q", turn.Text)
	}
	if !reflect.DeepEqual(texts, []string{"ab", "cd"}) {
		t.Fatalf("expected two ordered callbacks, got %v", texts)
	}
	if turn.FinishReason != "stop" || !turn.Streamed {
		t.Fatalf("unexpected turn %+v", turn)
	}
}

func TestUnify_SkipsMalformedFrame(t *testing.T) {
	body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ab\"}}]}\n\n" +
		"data: {broken\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"cd\"}}]}\n\n" +
		"data: [DONE]\n\n"

	turn, _, err := unify(t, OpenAI, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "abcd" {
		t.Fatalf("expected the bad frame to be skipped, got %q", turn.Text)
	}
}

func TestUnify_DataLinesWithoutBlankSeparator(t *testing.T) {
	body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ab\"}}]}\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"cd\"}}]}\n" +
		"data: [DONE]\n\n"

	turn, texts, err := unify(t, OpenAI, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "abcd" {
		t.Fatalf("expected abcd, got %q", turn.Text)
	}
	if !reflect.DeepEqual(texts, []string{"ab", "cd"}) {
		t.Fatalf("expected one callback per line, got %v", texts)
	}
}

func TestUnify_MalformedLineKeepsNeighbour(t *testing.T) {
	body := "data: {not json\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"cd\"}}]}\n\n" +
		"data: [DONE]\n\n"

	turn, texts, err := unify(t, OpenAI, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "cd" {
		t.Fatalf("expected cd, got %q", turn.Text)
	}
	if !reflect.DeepEqual(texts, []string{"cd"}) {
		t.Fatalf("unexpected callbacks %v", texts)
	}
}

func TestUnify_OpenAIToolCallFragments(t *testing.T) {
	body := `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"estimate_gas","arguments":"{\"a\":"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"1}"}}]}}]}` + "\n\n" +
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}` + "\n\n" +
		"data: [DONE]\n\n"

	turn, _, err := unify(t, OpenAI, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if len(turn.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(turn.ToolCalls))
	}
	call := turn.ToolCalls[0]
	if call.ID != "call_1" || call.Function.Name != "estimate_gas" || call.Function.Arguments != `{"a":1}` {
		t.Fatalf("unexpected tool call %+v", call)
	}
	if turn.FinishReason != "tool_calls" {
		t.Fatalf("unexpected finish reason %q", turn.FinishReason)
	}
}

func TestUnify_OpenAIThreadMessageDelta(t *testing.T) {
	body := "event: thread.message.delta\n" +
		`data: {"id":"msg_1","object":"thread.message.delta","delta":{"content":[{"index":0,"type":"text","text":{"value":"Hel"}}]}}` + "\n\n" +
		"event: thread.message.delta\n" +
		`data: {"id":"msg_1","object":"thread.message.delta","delta":{"content":[{"index":0,"type":"text","text":{"value":"lo"}}]}}` + "\n\n" +
		"data: [DONE]\n\n"

	turn, texts, err := unify(t, OpenAI, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "Hello" || len(texts) != 2 {
		t.Fatalf("unexpected result %q %v", turn.Text, texts)
	}
}

func TestUnify_NonStreamingBody(t *testing.T) {
	body := `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "choices": [{
    "index": 0,
    "message": {"role": "assistant", "content": "plain answer"},
    "finish_reason": "stop"
  }]
}`
	turn, texts, err := unify(t, OpenAI, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "plain answer" || turn.Streamed {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if !reflect.DeepEqual(texts, []string{"plain answer"}) {
		t.Fatalf("expected one complete text delta, got %v", texts)
	}
}

func TestUnify_Anthropic(t *testing.T) {
	body := strings.Join([]string{
		"event: message_start",
		`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude","stop_reason":null,"usage":{"input_tokens":5,"output_tokens":1}}}`,
		"",
		"event: content_block_start",
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		"",
		"event: ping",
		`data: {"type":"ping"}`,
		"",
		"event: content_block_delta",
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}`,
		"",
		"event: content_block_stop",
		`data: {"type":"content_block_stop","index":0}`,
		"",
		"event: content_block_start",
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"read_file","input":{}}}`,
		"",
		"event: content_block_delta",
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`,
		"",
		"event: content_block_delta",
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"README.md\"}"}}`,
		"",
		"event: message_delta",
		`data: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":12}}`,
		"",
		"event: message_stop",
		`data: {"type":"message_stop"}`,
		"",
		"",
	}, "\n")

	turn, texts, err := unify(t, Anthropic, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "Let me check." || len(texts) != 1 {
		t.Fatalf("unexpected text %q %v", turn.Text, texts)
	}
	if len(turn.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(turn.ToolCalls))
	}
	call := turn.ToolCalls[0]
	if call.ID != "toolu_1" || call.Function.Name != "read_file" || call.Function.Arguments != `{"path":"README.md"}` {
		t.Fatalf("unexpected tool call %+v", call)
	}
	if turn.FinishReason != "tool_use" {
		t.Fatalf("unexpected finish reason %q", turn.FinishReason)
	}
}

func TestUnify_AnthropicErrorEventAborts(t *testing.T) {
	body := "event: error\n" +
		`data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}` + "\n\n"

	_, _, err := unify(t, Anthropic, body)
	var streamErr *StreamError
	if !errors.As(err, &streamErr) || streamErr.Type != "overloaded_error" {
		t.Fatalf("expected StreamError, got %v", err)
	}
}

func TestUnify_MistralEndsOnFinishReason(t *testing.T) {
	body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"done\"},\"finish_reason\":\"stop\"}]}\n\n" +
		"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"zz\"}}]}\n\n"

	turn, _, err := unify(t, Mistral, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "done" || turn.FinishReason != "stop" {
		t.Fatalf("expected stream to end at finish_reason, got %+v", turn)
	}
}

func TestUnify_OllamaNDJSON(t *testing.T) {
	body := `{"model":"llama3.1","message":{"role":"assistant","content":"","thinking":"looking"},"done":false}` + "\n" +
		`{"model":"llama3.1","message":{"role":"assistant","content":"Hel"},"done":false}` + "\n" +
		`not json` + "\n" +
		`{"model":"llama3.1","message":{"role":"assistant","content":"lo","tool_calls":[{"function":{"name":"list_dir","arguments":{"path": "src"}}}]},"done":false}` + "\n" +
		`{"model":"llama3.1","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}` + "\n"

	turn, texts, err := unify(t, Ollama, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "Hello" || turn.Thinking != "looking" || !reflect.DeepEqual(texts, []string{"Hel", "lo"}) {
		t.Fatalf("unexpected turn %+v texts %v", turn, texts)
	}
	if len(turn.ToolCalls) != 1 || turn.ToolCalls[0].Function.Arguments != `{"path":"src"}` {
		t.Fatalf("unexpected tool calls %+v", turn.ToolCalls)
	}
	if turn.FinishReason != "stop" || !turn.Streamed {
		t.Fatalf("unexpected turn %+v", turn)
	}
}

func TestUnify_OllamaGenerateResponse(t *testing.T) {
	body := `{"model":"llama3.1","response":"single","done":true}`
	turn, _, err := unify(t, Ollama, body)
	if err != nil {
		t.Fatalf("Unify() error: %v", err)
	}
	if turn.Text != "single" || turn.Streamed {
		t.Fatalf("unexpected turn %+v", turn)
	}
}

func TestUnify_EmptyBody(t *testing.T) {
	if _, _, err := unify(t, OpenAI, "  \n"); !errors.Is(err, errEmptyBody) {
		t.Fatalf("expected errEmptyBody, got %v", err)
	}
}

func TestUnify_CanceledContext(t *testing.T) {
	adapter, _ := NewAdapter(OpenAI)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Unify(ctx, strings.NewReader("data: [DONE]\n\n"), adapter, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
