// Package sandbox runs model-written JavaScript that may call tools.
//
// Scripts see only executeToolCall(name, args) and console. The body runs
// inside an async function so top-level await and return work. Every tool
// call the script starts is awaited before Execute returns, even when the
// script never awaits it.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/mcpilot/internal/config"
	"github.com/dop251/goja"
)

// DefaultTimeout is applied when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// ToolFunc performs one tool call on behalf of a script.
type ToolFunc func(ctx context.Context, name string, args map[string]any) (string, error)

// Options configures an Executor.
type Options struct {
	Timeout time.Duration
	// MaxToolCalls limits calls per run. Zero means unlimited.
	MaxToolCalls int
	// OnToolCall observes each finished call.
	OnToolCall func(CallRecord)
}

// OptionsFromConfig maps the sandbox config section.
func OptionsFromConfig(cfg config.SandboxConfig) Options {
	return Options{
		Timeout:      time.Duration(cfg.TimeoutMS) * time.Millisecond,
		MaxToolCalls: cfg.MaxToolCalls,
	}
}

// CallRecord describes one executeToolCall invocation.
type CallRecord struct {
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	Result  string         `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Elapsed time.Duration  `json:"elapsed"`
}

// Result is the outcome of one script run.
type Result struct {
	Success   bool          `json:"success"`
	Output    string        `json:"output"`
	Elapsed   time.Duration `json:"elapsed"`
	ToolCalls []string      `json:"tool_calls"`
	Records   []CallRecord  `json:"records"`
	Value     any           `json:"value,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Executor runs scripts against a tool function.
type Executor struct {
	call ToolFunc
	opts Options
}

// NewExecutor returns an executor dispatching tool calls to call.
func NewExecutor(call ToolFunc, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Executor{call: call, opts: opts}
}

// completion carries a finished tool call back to the VM goroutine.
type completion struct {
	index   int
	result  string
	err     error
	elapsed time.Duration
}

type run struct {
	ctx     context.Context
	exec    *Executor
	vm      *goja.Runtime
	done    chan completion
	wg      sync.WaitGroup
	output  []string
	records []CallRecord
	settle  map[int]func(completion) error
	pending int
	value   any

	mu   sync.Mutex
	late []completion
}

// Execute validates and runs script. A validation failure returns
// ErrValidation and no result. A timeout returns the partial result together
// with ErrTimeout. Script errors are reported in Result.Error.
func (e *Executor) Execute(ctx context.Context, script string) (*Result, error) {
	if err := Validate(script); err != nil {
		return nil, err
	}
	start := time.Now()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		ctx:    callCtx,
		exec:   e,
		vm:     goja.New(),
		done:   make(chan completion),
		settle: make(map[int]func(completion) error),
	}
	if err := r.install(); err != nil {
		return nil, fmt.Errorf("prepare sandbox: %w", err)
	}

	timedOut := make(chan struct{})
	timer := time.AfterFunc(e.opts.Timeout, func() {
		r.vm.Interrupt(ErrTimeout)
		close(timedOut)
	})
	defer timer.Stop()

	runErr := r.loop(script, timedOut)
	cancel()
	r.drain()

	res := &Result{
		Output:    strings.Join(r.output, "\n"),
		Records:   r.records,
		ToolCalls: make([]string, len(r.records)),
		Elapsed:   time.Since(start),
	}
	for i, rec := range r.records {
		res.ToolCalls[i] = rec.Name
	}

	switch {
	case errors.Is(runErr, ErrTimeout):
		res.Error = fmt.Sprintf("%s after %s", ErrTimeout, e.opts.Timeout)
		slog.Warn("sandbox script timed out", "timeout", e.opts.Timeout, "tool_calls", len(res.ToolCalls))
		return res, fmt.Errorf("%w after %s", ErrTimeout, e.opts.Timeout)
	case runErr != nil:
		res.Error = runErr.Error()
		return res, nil
	}
	res.Success = true
	res.Value = r.value
	return res, nil
}

// loop runs the script and then settles tool calls on this goroutine until
// the script promise has settled and no call is in flight.
func (r *run) loop(script string, timedOut <-chan struct{}) error {
	v, err := r.vm.RunString("(async () => {\n" + script + "\n})()")
	if err != nil {
		return vmError(err)
	}
	promise, ok := v.Export().(*goja.Promise)
	if !ok {
		return errors.New("script did not evaluate to a promise")
	}

	for promise.State() == goja.PromiseStatePending || r.pending > 0 {
		select {
		case c := <-r.done:
			r.pending--
			settle := r.settle[c.index]
			delete(r.settle, c.index)
			if err := settle(c); err != nil {
				return vmError(err)
			}
		case <-timedOut:
			return ErrTimeout
		case <-r.ctx.Done():
			return r.ctx.Err()
		}
	}

	if promise.State() == goja.PromiseStateRejected {
		return errors.New(message(promise.Result()))
	}
	r.value = promise.Result().Export()
	return nil
}

// drain waits for every call goroutine and records calls that finished
// after the loop stopped listening.
func (r *run) drain() {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.late {
		rec := &r.records[c.index]
		rec.Elapsed = c.elapsed
		if c.err != nil {
			rec.Error = c.err.Error()
		} else {
			rec.Result = c.result
		}
		r.observe(*rec)
	}
	r.late = nil
}

func (r *run) observe(rec CallRecord) {
	if r.exec.opts.OnToolCall != nil {
		r.exec.opts.OnToolCall(rec)
	}
}

func (r *run) install() error {
	console := r.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error"} {
		prefix := ""
		if level == "warn" || level == "error" {
			prefix = "[" + level + "] "
		}
		if err := console.Set(level, r.printer(prefix)); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}
	return r.vm.Set("executeToolCall", r.executeToolCall)
}

func (r *run) printer(prefix string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = format(arg)
		}
		r.output = append(r.output, prefix+strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// executeToolCall returns a promise that is settled on the loop goroutine
// once the call finishes.
func (r *run) executeToolCall(call goja.FunctionCall) goja.Value {
	promise, resolve, reject := r.vm.NewPromise()

	name := strings.TrimSpace(call.Argument(0).String())
	args := map[string]any{}
	if exported, ok := call.Argument(1).Export().(map[string]any); ok {
		args = exported
	}

	index := len(r.records)
	r.records = append(r.records, CallRecord{Name: name, Args: args})

	if limit := r.exec.opts.MaxToolCalls; limit > 0 && index >= limit {
		err := fmt.Errorf("tool call limit of %d reached", limit)
		r.records[index].Error = err.Error()
		_ = reject(r.vm.NewGoError(err))
		return r.vm.ToValue(promise)
	}

	r.settle[index] = func(c completion) error {
		rec := &r.records[c.index]
		rec.Elapsed = c.elapsed
		var err error
		if c.err != nil {
			rec.Error = c.err.Error()
			err = reject(r.vm.NewGoError(c.err))
		} else {
			rec.Result = c.result
			err = resolve(decodeResult(c.result))
		}
		r.observe(*rec)
		return err
	}
	r.pending++
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		start := time.Now()
		result, err := r.exec.call(r.ctx, name, args)
		c := completion{index: index, result: result, err: err, elapsed: time.Since(start)}
		select {
		case r.done <- c:
		case <-r.ctx.Done():
			r.mu.Lock()
			r.late = append(r.late, c)
			r.mu.Unlock()
		}
	}()
	return r.vm.ToValue(promise)
}

// decodeResult hands JSON object and array results to the script as values.
func decodeResult(text string) any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return text
}

func format(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Error", "Function":
		default:
			if raw, err := json.Marshal(obj.Export()); err == nil {
				return string(raw)
			}
		}
	}
	return v.String()
}

func message(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return fmt.Sprint(v)
}

func vmError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrTimeout
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return errors.New(message(exc.Value()))
	}
	return err
}
