package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MEKXH/mcpilot/internal/audit"
	"github.com/MEKXH/mcpilot/internal/sandbox"
	"github.com/google/uuid"
)

// RunScript executes a script in the sandbox with the tool host behind
// executeToolCall. Every call is audited and counted like a model tool call.
func (o *Orchestrator) RunScript(ctx context.Context, script string) (*sandbox.Result, error) {
	requestID := uuid.NewString()
	opts := o.sandbox
	observe := opts.OnToolCall
	opts.OnToolCall = func(rec sandbox.CallRecord) {
		var err error
		result := rec.Result
		if rec.Error != "" {
			err = errors.New(rec.Error)
			result = "Error: " + rec.Error
		}
		o.recordTool(requestID, 0, audit.TypeScriptCall, rec.Name, result, err, rec.Elapsed)
		if observe != nil {
			observe(rec)
		}
	}

	exec := sandbox.NewExecutor(o.invoke, opts)
	res, err := exec.Execute(ctx, script)
	if res == nil {
		return nil, err
	}

	if _, mErr := o.runtimeMetric.RecordSandboxRun(res.Success); mErr != nil {
		slog.Warn("record runtime metrics failed", "scope", "sandbox", "error", mErr)
	}
	o.exporter.ObserveSandbox(res.Success)
	o.appendAudit(audit.Event{
		Type:       audit.TypeScriptRun,
		RequestID:  requestID,
		DurationMs: res.Elapsed.Milliseconds(),
		Result:     res.Output,
		Error:      res.Error,
	})
	return res, err
}
