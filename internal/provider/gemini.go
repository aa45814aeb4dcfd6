package provider

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/millwright-ai/millwright/internal/config"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiProvider struct {
	apiKey     string
	model      string
	maxTokens  int
	baseURL    string
	httpClient *http.Client
}

func newGeminiProvider(cfg config.ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiProvider{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}, nil
}

func newGeminiProviderForTest(apiKey, model string, maxTokens int, baseURL string, httpClient *http.Client) (Provider, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("gemini base url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &geminiProvider{
		apiKey:     apiKey,
		model:      model,
		maxTokens:  maxTokens,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

func (p *geminiProvider) Name() string { return config.ProviderGemini }

// CheckAvailability reports whether the backend is usable. Cloud endpoints are
// assumed reachable; only the credential is checked.
func (p *geminiProvider) CheckAvailability(ctx context.Context) error {
	if strings.TrimSpace(p.apiKey) == "" {
		return fmt.Errorf("%w: gemini api key is not set", ErrUnavailable)
	}
	return nil
}

// Chat sends a provider-agnostic chat request to the Gemini generateContent
// API and normalizes the response.
func (p *geminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	payload, err := p.toGeminiRequest(req)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini API returned %s: %s", httpResp.Status, strings.TrimSpace(string(respBody)))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response has no candidates")
	}

	var contentParts []string
	var calls []ToolCall
	for _, part := range parsed.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			calls = append(calls, ToolCall{
				// Gemini does not assign call ids; synthesize one so results
				// can be correlated like every other backend.
				ID:        generateCallID(part.FunctionCall.Name),
				Name:      part.FunctionCall.Name,
				Arguments: string(part.FunctionCall.Args),
			})
		case part.Text != "":
			contentParts = append(contentParts, part.Text)
		}
	}

	usage := TokenUsage{
		InputTokens:  parsed.UsageMetadata.PromptTokenCount,
		OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:  parsed.UsageMetadata.TotalTokenCount,
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}

	return &ChatResponse{
		Content:   strings.Join(contentParts, "\n"),
		ToolCalls: calls,
		Usage:     usage,
	}, nil
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiToolSet `json:"tools,omitempty"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string              `json:"text,omitempty"`
	InlineData       *geminiInlineData   `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResp `json:"functionResponse,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type geminiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type geminiToolSet struct {
	FunctionDeclarations []geminiFuncDecl `json:"functionDeclarations"`
}

type geminiFuncDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

func (p *geminiProvider) toGeminiRequest(req ChatRequest) (*geminiRequest, error) {
	out := &geminiRequest{
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens: resolveMaxTokens(req.MaxTokens, p.maxTokens),
		},
	}

	if req.SystemPrompt != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	if len(req.Tools) > 0 {
		decls := make([]geminiFuncDecl, 0, len(req.Tools))
		for _, tool := range req.Tools {
			decls = append(decls, geminiFuncDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  sanitizeGeminiSchema(tool.Parameters),
			})
		}
		out.Tools = []geminiToolSet{{FunctionDeclarations: decls}}
	}

	// Tool results carry only the call id, but functionResponse requires the
	// function name. Map ids back to names from the assistant turns.
	callNames := make(map[string]string)
	for _, msg := range req.Messages {
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
		}
	}

	for _, msg := range req.Messages {
		parts, err := toGeminiParts(msg, callNames)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		// Gemini requires strict user/model alternation; merge runs of the
		// same role into one content entry.
		if n := len(out.Contents); n > 0 && out.Contents[n-1].Role == role {
			out.Contents[n-1].Parts = append(out.Contents[n-1].Parts, parts...)
			continue
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: parts})
	}

	return out, nil
}

func toGeminiParts(msg ChatMessage, callNames map[string]string) ([]geminiPart, error) {
	var parts []geminiPart

	if msg.Role == RoleTool {
		name := callNames[msg.ToolCallID]
		if name == "" {
			return nil, fmt.Errorf("no function name found for tool call id %q", msg.ToolCallID)
		}
		parts = append(parts, geminiPart{
			FunctionResponse: &geminiFunctionResp{
				Name:     name,
				Response: marshalGeminiFunctionResponse(msg.Text(), msg.IsError),
			},
		})
		return parts, nil
	}

	for _, block := range msg.Content {
		switch block.Kind {
		case BlockImage:
			parts = append(parts, geminiPart{
				InlineData: &geminiInlineData{MimeType: block.MediaType, Data: block.Data},
			})
		default:
			if block.Text != "" {
				parts = append(parts, geminiPart{Text: block.Text})
			}
		}
	}

	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(tc.Arguments)
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		parts = append(parts, geminiPart{
			FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args},
		})
	}

	return parts, nil
}

// marshalGeminiFunctionResponse wraps tool output into the JSON object shape
// functionResponse.response requires. JSON output is embedded as-is; plain
// text is encoded as a JSON string.
func marshalGeminiFunctionResponse(output string, isError bool) json.RawMessage {
	key := "result"
	if isError {
		key = "error"
	}
	if json.Valid([]byte(output)) && output != "" {
		return json.RawMessage(`{"` + key + `":` + output + `}`)
	}
	encoded, _ := json.Marshal(output)
	return json.RawMessage(`{"` + key + `":` + string(encoded) + `}`)
}

// sanitizeGeminiSchema strips JSON Schema keywords the Gemini API rejects,
// recursing into nested property and item schemas.
func sanitizeGeminiSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if k == "$schema" || k == "additionalProperties" {
			continue
		}
		out[k] = v
	}
	if props, ok := out["properties"].(map[string]any); ok {
		cleaned := make(map[string]any, len(props))
		for name, sub := range props {
			if subSchema, ok := sub.(map[string]any); ok {
				cleaned[name] = sanitizeGeminiSchema(subSchema)
			} else {
				cleaned[name] = sub
			}
		}
		out["properties"] = cleaned
	}
	if items, ok := out["items"].(map[string]any); ok {
		out["items"] = sanitizeGeminiSchema(items)
	}
	return out
}

// generateCallID synthesizes a tool call id for backends that do not assign one.
func generateCallID(name string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("call_%s_%s", name, hex.EncodeToString(b))
}
