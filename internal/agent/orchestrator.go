// Package agent drives one request from query to final answer: classify the
// query, pick context resources, then alternate model turns and tool calls.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/mcpilot/internal/audit"
	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/MEKXH/mcpilot/internal/intent"
	"github.com/MEKXH/mcpilot/internal/llm"
	"github.com/MEKXH/mcpilot/internal/mcp"
	"github.com/MEKXH/mcpilot/internal/metrics"
	"github.com/MEKXH/mcpilot/internal/relevance"
	"github.com/MEKXH/mcpilot/internal/sandbox"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxIterations caps model turns per request when config leaves it unset.
const DefaultMaxIterations = 10

// ToolHost is the capability surface the orchestrator needs. *mcp.Registry
// implements it.
type ToolHost interface {
	GetAllResources(ctx context.Context) []mcp.ServerResource
	ReadResource(ctx context.Context, server, uri string) ([]mcp.ResourceContents, error)
	ToolCatalog(ctx context.Context) []openai.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
}

// Options wires an Orchestrator.
type Options struct {
	Backend  llm.Backend
	Provider string
	Tools    ToolHost
	Agent    config.AgentConfig
	Sandbox  sandbox.Options
	Audit    *audit.Writer
	Metrics  *metrics.RuntimeMetrics
	Exporter *metrics.Exporter
	// ContentTTL overrides DefaultContentTTL.
	ContentTTL time.Duration
	Now        func() time.Time
}

// Orchestrator runs requests against one backend and one tool host.
type Orchestrator struct {
	backend       llm.Backend
	provider      string
	tools         ToolHost
	scorer        *relevance.Scorer
	params        relevance.Params
	context       *ContextBuilder
	contents      *contentCache
	maxIterations int
	sandbox       sandbox.Options
	audit         *audit.Writer
	runtimeMetric *metrics.RuntimeMetrics
	exporter      *metrics.Exporter
	now           func() time.Time

	OnText       func(text string)
	OnToolStart  func(name, args string)
	OnToolFinish func(name, result string, err error, elapsed time.Duration)
}

// NewOrchestrator validates opts. A nil Backend is allowed for callers that
// only classify and select.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Tools == nil {
		return nil, errors.New("agent: tool host is required")
	}
	maxIter := opts.Agent.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		backend:       opts.Backend,
		provider:      opts.Provider,
		tools:         opts.Tools,
		scorer:        relevance.NewScorer(),
		params:        relevance.ParamsFromConfig(opts.Agent),
		context:       NewContextBuilder(opts.Agent.SystemPrompt),
		contents:      newContentCache(opts.ContentTTL, now),
		maxIterations: maxIter,
		sandbox:       opts.Sandbox,
		audit:         opts.Audit,
		runtimeMetric: opts.Metrics,
		exporter:      opts.Exporter,
		now:           now,
	}, nil
}

// ToolExecution records one tool call made during a request.
type ToolExecution struct {
	Iteration int
	ID        string
	Name      string
	Arguments string
	Result    string
	Err       error
	Duration  time.Duration
}

// Response is the outcome of one request.
type Response struct {
	RequestID  string
	Text       string
	Thinking   string
	Intent     intent.Intent
	Resources  []relevance.Scored
	ToolCalls  []ToolExecution
	Iterations int
	// Warning is set when the iteration cap ended the request.
	Warning string
	// Messages is the conversation after the system prompt, ending with
	// the final assistant message.
	Messages []*schema.Message
}

type state int

const (
	stateAwaitingModel state = iota
	stateExecutingTools
	stateDone
)

// Plan classifies query and selects the resources that would be attached.
func (o *Orchestrator) Plan(ctx context.Context, query string) (intent.Intent, []relevance.Scored) {
	in := intent.Classify(query)
	return in, o.scorer.Rank(o.tools.GetAllResources(ctx), in, o.params)
}

// Run answers query, continuing history when given.
func (o *Orchestrator) Run(ctx context.Context, query string, history []*schema.Message) (*Response, error) {
	if o.backend == nil {
		return nil, errors.New("agent: no model configured")
	}
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("agent: empty query")
	}

	resp := &Response{RequestID: uuid.NewString()}
	logger := slog.Default().With("request_id", resp.RequestID)

	resp.Intent, resp.Resources = o.Plan(ctx, query)
	logger.Info("processing request",
		"intent", resp.Intent.Type,
		"confidence", resp.Intent.Confidence,
		"domains", resp.Intent.Domains,
		"resources", len(resp.Resources),
	)

	contexts := o.loadContexts(ctx, resp.Resources)
	catalog := o.tools.ToolCatalog(ctx)
	system := o.context.BuildSystemPrompt(resp.Intent, len(catalog))
	messages := o.context.BuildMessages(history, o.context.EnrichQuery(query, contexts))

	var turn *llm.Turn
	st := stateAwaitingModel
	for st != stateDone {
		switch st {
		case stateAwaitingModel:
			if resp.Iterations >= o.maxIterations {
				resp.Warning = fmt.Sprintf("stopped after %d model turns; the model was still requesting tools", o.maxIterations)
				logger.Warn("max tool iterations reached", "max", o.maxIterations)
				st = stateDone
				continue
			}
			resp.Iterations++

			var err error
			turn, err = o.complete(ctx, resp.RequestID, resp.Iterations, llm.Request{
				System:   system,
				Messages: messages,
				Tools:    catalog,
			})
			if err != nil {
				return nil, fmt.Errorf("model turn %d: %w", resp.Iterations, err)
			}
			if turn.Text != "" {
				resp.Text = turn.Text
			}
			if turn.Thinking != "" {
				resp.Thinking = turn.Thinking
			}
			if turn.HasToolCalls() {
				st = stateExecutingTools
			} else {
				messages = append(messages, schema.AssistantMessage(turn.Text, nil))
				st = stateDone
			}

		case stateExecutingTools:
			messages = append(messages, schema.AssistantMessage(turn.Text, turn.ToolCalls))
			execs := o.executeTools(ctx, resp.RequestID, resp.Iterations, turn.ToolCalls)
			for _, ex := range execs {
				messages = append(messages, schema.ToolMessage(ex.Result, ex.ID, schema.WithToolName(ex.Name)))
			}
			resp.ToolCalls = append(resp.ToolCalls, execs...)
			st = stateAwaitingModel
		}
	}

	resp.Messages = messages
	logger.Info("request finished",
		"iterations", resp.Iterations,
		"tool_calls", len(resp.ToolCalls),
		"capped", resp.Warning != "",
	)
	return resp, nil
}

func (o *Orchestrator) complete(ctx context.Context, requestID string, iteration int, req llm.Request) (*llm.Turn, error) {
	start := o.now()
	turn, err := o.backend.Complete(ctx, req, o.OnText)
	elapsed := o.now().Sub(start)

	calls := 0
	if turn != nil {
		calls = len(turn.ToolCalls)
	}
	if _, mErr := o.runtimeMetric.RecordModelTurn(calls, err); mErr != nil {
		slog.Warn("record runtime metrics failed", "scope", "model", "error", mErr)
	}
	o.exporter.ObserveModel(o.provider, elapsed, err)

	ev := audit.Event{
		Type:       audit.TypeModelTurn,
		RequestID:  requestID,
		Iteration:  iteration,
		DurationMs: elapsed.Milliseconds(),
		Result:     fmt.Sprintf("tool_calls=%d", calls),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.appendAudit(ev)

	if err != nil {
		return nil, err
	}
	if turn == nil {
		return nil, errors.New("backend returned no turn")
	}
	return turn, nil
}

// executeTools runs calls concurrently and returns them in call order.
func (o *Orchestrator) executeTools(ctx context.Context, requestID string, iteration int, calls []schema.ToolCall) []ToolExecution {
	results := make([]ToolExecution, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = o.executeTool(ctx, requestID, iteration, tc)
		}()
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) executeTool(ctx context.Context, requestID string, iteration int, tc schema.ToolCall) ToolExecution {
	name := tc.Function.Name
	if o.OnToolStart != nil {
		o.OnToolStart(name, tc.Function.Arguments)
	}
	slog.Debug("executing tool", "request_id", requestID, "tool", name)

	start := o.now()
	result, err := o.callTool(ctx, name, tc.Function.Arguments)
	elapsed := o.now().Sub(start)
	if err != nil {
		result = "Error: " + err.Error()
	}

	o.recordTool(requestID, iteration, audit.TypeToolCall, name, result, err, elapsed)
	if o.OnToolFinish != nil {
		o.OnToolFinish(name, result, err, elapsed)
	}
	return ToolExecution{
		Iteration: iteration,
		ID:        tc.ID,
		Name:      name,
		Arguments: tc.Function.Arguments,
		Result:    result,
		Err:       err,
		Duration:  elapsed,
	}
}

// callTool decodes raw JSON arguments and dispatches through the host.
func (o *Orchestrator) callTool(ctx context.Context, name, rawArgs string) (string, error) {
	args := map[string]any{}
	if trimmed := strings.TrimSpace(rawArgs); trimmed != "" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for %s: %w", name, err)
		}
	}
	return o.invoke(ctx, name, args)
}

func (o *Orchestrator) invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := o.tools.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	text := res.Text()
	if res.IsError {
		return "", errors.New(text)
	}
	if isWriteTool(name) {
		o.contents.invalidate("")
	}
	return text, nil
}

func isWriteTool(name string) bool {
	_, bare, ok := strings.Cut(name, "/")
	if !ok {
		bare = name
	}
	return bare == "write_file"
}

func (o *Orchestrator) recordTool(requestID string, iteration int, kind, name, result string, err error, elapsed time.Duration) {
	logAttrs := []any{
		"request_id", requestID,
		"tool", name,
		"duration_ms", elapsed.Milliseconds(),
		"success", err == nil,
	}
	if o.runtimeMetric != nil {
		snapshot, metricErr := o.runtimeMetric.RecordToolExecution(elapsed, result, err)
		if metricErr != nil {
			slog.Warn("record runtime metrics failed", "scope", "tool", "error", metricErr)
		}
		logAttrs = append(logAttrs,
			"tool_total", snapshot.Tool.Total,
			"tool_error_ratio", snapshot.Tool.ErrorRatio(),
			"tool_latency_p95_proxy_ms", snapshot.Tool.P95ProxyLatencyMs,
		)
	}
	o.exporter.ObserveTool(name, elapsed, err)
	slog.Info("tool execution finished", logAttrs...)

	ev := audit.Event{
		Type:       kind,
		RequestID:  requestID,
		Tool:       name,
		Iteration:  iteration,
		DurationMs: elapsed.Milliseconds(),
		Result:     result,
	}
	if server, _, ok := strings.Cut(name, "/"); ok {
		ev.Server = server
	}
	if err != nil {
		ev.Error = err.Error()
	}
	o.appendAudit(ev)
}

func (o *Orchestrator) appendAudit(ev audit.Event) {
	if err := o.audit.Append(ev); err != nil {
		slog.Warn("append audit event failed", "type", ev.Type, "error", err)
	}
}

// loadContexts reads the selected resources, reusing recent reads. Failed
// reads are skipped.
func (o *Orchestrator) loadContexts(ctx context.Context, selected []relevance.Scored) []ResourceContext {
	out := make([]ResourceContext, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range selected {
		out[i].Scored = s
		g.Go(func() error {
			uri := s.Resource.URI
			if text, ok := o.contents.get(uri); ok {
				out[i].Text = text
				return nil
			}
			contents, err := o.tools.ReadResource(gctx, s.Resource.Server, uri)
			if err != nil {
				slog.Warn("read resource failed", "server", s.Resource.Server, "uri", uri, "error", err)
				return nil
			}
			text := joinContents(contents)
			o.contents.put(uri, text)
			out[i].Text = text
			return nil
		})
	}
	_ = g.Wait()

	kept := out[:0]
	for _, rc := range out {
		if strings.TrimSpace(rc.Text) != "" {
			kept = append(kept, rc)
		}
	}
	return kept
}

func joinContents(contents []mcp.ResourceContents) string {
	parts := make([]string, 0, len(contents))
	for _, c := range contents {
		if c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
