// Package agent drives the tool-calling conversation loop: it sends the
// transcript to a provider, executes the tool calls the model requests,
// folds results back in, and repeats until the model answers in text or the
// iteration cap is reached.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/millwright-ai/millwright/internal/logging"
	"github.com/millwright-ai/millwright/internal/provider"
	"github.com/millwright-ai/millwright/internal/tools"
)

const defaultMaxIterations = 10

// truncationNotice stands in for the final answer when the tool budget runs
// out before the model produced any text.
const truncationNotice = "I reached the tool call limit for this reply before finishing. Ask again to continue."

// Result is the outcome of one orchestrated turn.
type Result struct {
	FinalText string
	// ToolsUsed lists executed tool names in the order the model requested
	// them. Calls rejected by the iteration cap are not included.
	ToolsUsed []string
	Provider  string
	Usage     provider.TokenUsage
	Truncated bool
}

// Run executes the agent loop until the model returns a final text response
// or the iteration cap is hit. maxIterations bounds tool-execution rounds,
// so the provider is called at most maxIterations+1 times. Hitting the cap
// yields Truncated=true, not an error. requestTimeout bounds each provider
// call; zero means no per-call limit beyond ctx.
//
// The returned history is the full internal transcript including tool turns.
// Provider failures are returned as *provider.CallError.
func Run(
	ctx context.Context,
	prov provider.Provider,
	dispatcher *tools.Dispatcher,
	systemPrompt string,
	messages []provider.ChatMessage,
	maxIterations int,
	requestTimeout time.Duration,
) (*Result, []provider.ChatMessage, error) {
	if prov == nil {
		return nil, nil, fmt.Errorf("provider is required")
	}
	if dispatcher == nil {
		return nil, nil, fmt.Errorf("tool dispatcher is required")
	}
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}

	history := append([]provider.ChatMessage(nil), messages...)
	toolDefs := dispatcher.ToolDefinitions()
	totalUsage := provider.TokenUsage{}
	var toolsUsed []string
	lastText := ""

	for round := 0; ; round++ {
		// Each round sends the full conversation state and available tools.
		// The model either returns final text or a set of tool calls.
		logging.Logger().Info(
			"llm request",
			"provider", prov.Name(),
			"round", round+1,
			"message_count", len(history),
			"tool_count", len(toolDefs),
			"latest_user_message", summarizeTextForLog(latestUserMessage(history), 300),
		)

		resp, err := chatWithTimeout(ctx, prov, provider.ChatRequest{
			SystemPrompt: systemPrompt,
			Messages:     history,
			Tools:        toolDefs,
		}, requestTimeout)
		if err != nil {
			return nil, history, &provider.CallError{Provider: prov.Name(), Err: err}
		}
		logging.Logger().Info(
			"llm response",
			"provider", prov.Name(),
			"round", round+1,
			"tool_call_count", len(resp.ToolCalls),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"total_tokens", resp.Usage.TotalTokens,
		)
		totalUsage.Add(resp.Usage)
		if resp.Content != "" {
			lastText = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			// No tool calls means we are done for this turn.
			if resp.Content != "" {
				history = append(history, provider.AssistantMessage(resp.Content, nil))
			}
			return &Result{
				FinalText: resp.Content,
				ToolsUsed: toolsUsed,
				Provider:  prov.Name(),
				Usage:     totalUsage,
			}, history, nil
		}

		if round == maxIterations {
			// Budget spent with tools still requested. The pending calls are
			// not executed and not appended: a dangling tool-call turn would
			// break replay on the next request.
			logging.Logger().Warn(
				"tool budget exhausted",
				"provider", prov.Name(),
				"max_iterations", maxIterations,
				"pending_tool_calls", len(resp.ToolCalls),
			)
			final := lastText
			if final == "" {
				final = truncationNotice
			}
			return &Result{
				FinalText: final,
				ToolsUsed: toolsUsed,
				Provider:  prov.Name(),
				Usage:     totalUsage,
				Truncated: true,
			}, history, nil
		}

		history = append(history, provider.AssistantMessage(resp.Content, resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, call.Name)
		}

		for _, result := range dispatcher.Dispatch(ctx, resp.ToolCalls) {
			history = append(history, result.Message())
		}
	}
}

func chatWithTimeout(ctx context.Context, prov provider.Provider, req provider.ChatRequest, timeout time.Duration) (*provider.ChatResponse, error) {
	if timeout <= 0 {
		return prov.Chat(ctx, req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return prov.Chat(callCtx, req)
}

func latestUserMessage(history []provider.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == provider.RoleUser {
			if text := strings.TrimSpace(history[i].Text()); text != "" {
				return text
			}
		}
	}
	return ""
}

func summarizeTextForLog(text string, maxLen int) string {
	if maxLen <= 0 || len(text) <= maxLen {
		return text
	}
	return fmt.Sprintf("%s...[truncated %d chars]", text[:maxLen], len(text)-maxLen)
}
