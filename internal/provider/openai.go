package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/millwright-ai/millwright/internal/config"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// probeTimeout caps the availability probe against self-hosted endpoints.
const probeTimeout = 3 * time.Second

type openAIProvider struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	selfHosted bool
	httpClient *http.Client
}

func newOpenAIProvider(cfg config.ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	selfHosted := baseURL != ""
	if baseURL == "" {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("openai api key is required")
		}
		baseURL = defaultOpenAIBaseURL
	}
	return &openAIProvider{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		baseURL:    baseURL,
		selfHosted: selfHosted,
		httpClient: http.DefaultClient,
	}, nil
}

func newOpenAIProviderForTest(apiKey, model string, maxTokens int, baseURL string, httpClient *http.Client) (Provider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("openai base url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &openAIProvider{
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		baseURL:    strings.TrimRight(baseURL, "/"),
		selfHosted: true,
		httpClient: httpClient,
	}, nil
}

func (p *openAIProvider) Name() string { return config.ProviderOpenAI }

// CheckAvailability probes self-hosted endpoints with a short GET /models
// request. Cloud deployments are assumed reachable when a key is present.
func (p *openAIProvider) CheckAvailability(ctx context.Context) error {
	if !p.selfHosted {
		if strings.TrimSpace(p.apiKey) == "" {
			return fmt.Errorf("%w: openai api key is not set", ErrUnavailable)
		}
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("%w: build probe request: %v", ErrUnavailable, err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s is unreachable: %v", ErrUnavailable, p.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned %s", ErrUnavailable, p.baseURL, resp.Status)
	}
	return nil
}

// Chat sends a provider-agnostic chat request to an OpenAI-style endpoint and
// normalizes the response.
func (p *openAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload := openAIRequest{
		Model:     p.model,
		Messages:  toOpenAIMessages(req.Messages),
		MaxTokens: resolveMaxTokens(req.MaxTokens, p.maxTokens),
	}
	if req.SystemPrompt != "" {
		payload.Messages = append([]openAIMessage{{
			Role:    "system",
			Content: req.SystemPrompt,
		}}, payload.Messages...)
	}
	if len(req.Tools) > 0 {
		payload.Tools = make([]openAITool, 0, len(req.Tools))
		for _, tool := range req.Tools {
			payload.Tools = append(payload.Tools, openAITool{
				Type: "function",
				Function: openAIFunction{
					Name:        tool.Name,
					Description: tool.Description,
					Parameters:  tool.Parameters,
				},
			})
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai API returned %s: %s", httpResp.Status, strings.TrimSpace(string(respBody)))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	msg := parsed.Choices[0].Message
	toolCalls := make([]ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return &ChatResponse{
		Content:   msg.Content,
		ToolCalls: toolCalls,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
			CostUSD:      parseOptionalCost(parsed.Usage.Cost),
		},
	}, nil
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	Tools     []openAITool    `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// openAIMessage is the request-side message shape. Content is either a plain
// string or a []openAIContentPart when the message carries images.
type openAIMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Arguments   string         `json:"arguments,omitempty"`
}

type openAIToolCall struct {
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function openAIFunction `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		Cost             any `json:"cost"`
	} `json:"usage"`
}

func parseOptionalCost(raw any) *float64 {
	switch v := raw.(type) {
	case float64:
		out := v
		return &out
	case string:
		value := strings.TrimSpace(v)
		if value == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

// openAIContent renders message blocks as a string when text-only, or as a
// content-part array when images are present. Returns nil for empty block
// lists so assistant messages that only carry tool calls omit the field.
func openAIContent(blocks []ContentBlock) any {
	if len(blocks) == 0 {
		return nil
	}
	hasImage := false
	for _, block := range blocks {
		if block.Kind == BlockImage {
			hasImage = true
			break
		}
	}
	if !hasImage {
		texts := make([]string, 0, len(blocks))
		for _, block := range blocks {
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	parts := make([]openAIContentPart, 0, len(blocks))
	for _, block := range blocks {
		switch block.Kind {
		case BlockImage:
			parts = append(parts, openAIContentPart{
				Type:     "image_url",
				ImageURL: &openAIImageURL{URL: "data:" + block.MediaType + ";base64," + block.Data},
			})
		default:
			parts = append(parts, openAIContentPart{Type: "text", Text: block.Text})
		}
	}
	return parts
}

func toOpenAIMessages(messages []ChatMessage) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		m := openAIMessage{
			Role:    string(msg.Role),
			Content: openAIContent(msg.Content),
		}
		if msg.Role == RoleTool {
			m.ToolCallID = msg.ToolCallID
		}
		if len(msg.ToolCalls) > 0 {
			m.ToolCalls = make([]openAIToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openAIToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openAIFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		out = append(out, m)
	}
	return out
}
