package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/provider"
)

// Result is the outcome of one dispatched tool call. Failed executions are
// folded into Output with IsError set so the model can read and recover from
// them; Dispatch itself never fails.
type Result struct {
	// ID echoes the tool call id, synthesized when the model omitted one.
	ID      string
	Name    string
	Output  string
	IsError bool
	Elapsed time.Duration
}

// Message converts the result into the tool-result chat message answering the
// originating call.
func (r Result) Message() provider.ChatMessage {
	return provider.ToolResultMessage(r.ID, r.Output, r.IsError)
}

// Dispatcher routes model-issued tool calls to registered tools. Every
// failure mode, including unknown tools, malformed arguments, and panicking
// implementations, is contained in the per-call Result.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// ToolDefinitions exposes the registry's definitions for provider requests.
func (d *Dispatcher) ToolDefinitions() []provider.ToolDefinition {
	return d.registry.ToolDefinitions()
}

// Dispatch executes all calls and returns one result per call, in call order.
// Calls are independent, so multiple calls from one assistant turn run
// concurrently.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []provider.ToolCall) []Result {
	if len(calls) == 0 {
		return nil
	}
	if len(calls) == 1 {
		return []Result{d.dispatchOne(ctx, calls[0])}
	}

	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call provider.ToolCall) {
			defer wg.Done()
			results[i] = d.dispatchOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call provider.ToolCall) (result Result) {
	startedAt := time.Now()
	id := call.ID
	if id == "" {
		id = uuid.NewString()
	}
	result = Result{ID: id, Name: call.Name}

	defer func() {
		result.Elapsed = time.Since(startedAt)
		if r := recover(); r != nil {
			logging.Logger().Error(
				"tool call panicked",
				"tool", call.Name,
				"tool_call_id", id,
				"duration_ms", result.Elapsed.Milliseconds(),
				"panic", r,
			)
			result.IsError = true
			result.Output = fmt.Sprintf("tool execution error: tool %q panicked: %v", call.Name, r)
		}
	}()

	tool, ok := d.registry.Lookup(call.Name)
	if !ok {
		// Unknown tools are surfaced to the model as tool-result errors so
		// the loop can continue and the model can retry with a valid tool.
		available := strings.Join(d.registry.Names(), ", ")
		logging.Logger().Warn(
			"tool call rejected: unknown tool",
			"tool", call.Name,
			"tool_call_id", id,
			"arguments", call.Arguments,
			"available_tools", available,
		)
		result.IsError = true
		result.Output = fmt.Sprintf(
			`tool execution error: unknown tool %q. Available tools: %s. Use an available tool name exactly.`,
			call.Name,
			available,
		)
		return result
	}

	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			logging.Logger().Warn(
				"tool call rejected: invalid arguments",
				"tool", call.Name,
				"tool_call_id", id,
				"arguments", call.Arguments,
				"err", err,
			)
			result.IsError = true
			result.Output = fmt.Sprintf("tool execution error: invalid tool arguments for %q: %v", call.Name, err)
			return result
		}
	}

	logging.Logger().Info(
		"tool call start",
		"tool", call.Name,
		"tool_call_id", id,
		"args", summarizeToolArgs(args),
	)

	output, err := tool.Execute(ctx, args)
	if err != nil {
		logging.Logger().Warn(
			"tool call failed",
			"tool", call.Name,
			"tool_call_id", id,
			"duration_ms", time.Since(startedAt).Milliseconds(),
			"err", err,
		)
		result.IsError = true
		result.Output = fmt.Sprintf("tool execution error: %v", err)
		return result
	}

	logging.Logger().Info(
		"tool call complete",
		"tool", call.Name,
		"tool_call_id", id,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	result.Output = output
	return result
}

func summarizeToolArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for key, value := range args {
		out[key] = summarizeToolArgValue(value)
	}
	return out
}

func summarizeToolArgValue(value any) any {
	const maxLoggedStringLen = 200

	switch v := value.(type) {
	case string:
		if len(v) <= maxLoggedStringLen {
			return v
		}
		return fmt.Sprintf("%s...[truncated %d chars]", v[:maxLoggedStringLen], len(v)-maxLoggedStringLen)
	case []byte:
		return fmt.Sprintf("<bytes len=%d>", len(v))
	default:
		return value
	}
}
