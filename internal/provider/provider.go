// Package provider normalizes chat exchanges across LLM backends. Each
// adapter translates the provider-agnostic request into its wire format and
// folds the response back into the shared shape, so the rest of the system
// never sees provider-specific payloads.
package provider

import (
	"context"
	"strings"
)

// Provider sends chat requests to an LLM backend.
type Provider interface {
	// Name identifies the backend in logs, selection order, and cost records.
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Role is the author role for a chat message.
type Role string

const (
	// RoleUser is a user-authored message.
	RoleUser Role = "user"
	// RoleAssistant is an assistant-authored message.
	RoleAssistant Role = "assistant"
	// RoleTool is a tool-result message addressed to the model.
	RoleTool Role = "tool"
)

// BlockKind discriminates the content block union.
type BlockKind string

const (
	// BlockText is plain text content.
	BlockText BlockKind = "text"
	// BlockImage is inline base64 image content.
	BlockImage BlockKind = "image"
)

// ContentBlock is one part of a message body. Kind selects which fields apply.
type ContentBlock struct {
	Kind BlockKind
	// Text holds the body for BlockText.
	Text string
	// MediaType holds the MIME type for BlockImage, e.g. "image/png".
	MediaType string
	// Data holds the base64 payload for BlockImage.
	Data string
}

// ChatMessage is a single message in model conversation history.
type ChatMessage struct {
	Role    Role
	Content []ContentBlock
	// ToolCallID correlates a RoleTool message with the call it answers.
	ToolCallID string
	// ToolCalls carries the tool requests issued by a RoleAssistant message.
	ToolCalls []ToolCall
	// IsError marks a RoleTool message as a failed execution.
	IsError bool
}

// Text joins the message's text blocks. Image blocks are skipped.
func (m ChatMessage) Text() string {
	parts := make([]string, 0, len(m.Content))
	for _, block := range m.Content {
		if block.Kind == BlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// UserMessage builds a plain-text user message.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: []ContentBlock{{Kind: BlockText, Text: text}}}
}

// AssistantMessage builds an assistant message from response text and tool calls.
func AssistantMessage(text string, calls []ToolCall) ChatMessage {
	msg := ChatMessage{Role: RoleAssistant, ToolCalls: calls}
	if text != "" {
		msg.Content = []ContentBlock{{Kind: BlockText, Text: text}}
	}
	return msg
}

// ToolResultMessage builds the tool-result message answering one tool call.
func ToolResultMessage(callID, output string, isError bool) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		Content:    []ContentBlock{{Kind: BlockText, Text: output}},
		ToolCallID: callID,
		IsError:    isError,
	}
}

// ToolDefinition describes a callable tool exposed to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object describing the tool arguments.
	Parameters map[string]any
}

// ToolCall is a model request to execute a tool.
type ToolCall struct {
	// ID correlates the call with its result message. Never empty: adapters
	// synthesize one for backends that do not assign call ids.
	ID   string
	Name string
	// Arguments is the raw JSON argument object as produced by the model.
	Arguments string
}

// TokenUsage reports provider token accounting for one response.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	// CostUSD is the provider-reported charge, when the backend reports one.
	CostUSD *float64
}

// Add accumulates usage across the calls of one orchestration run.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	if other.CostUSD != nil {
		cost := *other.CostUSD
		if u.CostUSD != nil {
			cost += *u.CostUSD
		}
		u.CostUSD = &cost
	}
}

// ChatRequest is the provider-agnostic request payload.
type ChatRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	Tools        []ToolDefinition
	MaxTokens    int
}

// ChatResponse is the provider-agnostic response payload.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     TokenUsage
}

// Checkable is implemented by providers that can report availability without
// performing a full chat request.
type Checkable interface {
	// CheckAvailability returns nil when the backend is usable. Implementations
	// must be cheap: a credential presence check or a short probe request.
	CheckAvailability(ctx context.Context) error
}
