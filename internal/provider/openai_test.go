package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProviderChat_RequestAndResponse(t *testing.T) {
	var gotAuth string
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"messages"`
		Tools []struct {
			Type     string `json:"type"`
			Function struct {
				Name string `json:"name"`
			} `json:"function"`
		} `json:"tools"`
		MaxTokens int `json:"max_tokens"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{
				"role":"assistant",
				"content":"",
				"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_documents","arguments":"{\"query\":\"seal replacement\"}"}}]
			}}],
			"usage":{"prompt_tokens":30,"completion_tokens":12,"total_tokens":42,"cost":0.0004}
		}`))
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("test-key", "gpt-4o-mini", 2048, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	resp, err := p.Chat(context.Background(), ChatRequest{
		SystemPrompt: "be concise",
		Messages:     []ChatMessage{UserMessage("how do I replace the seal?")},
		Tools: []ToolDefinition{
			{Name: "search_documents", Description: "Search maintenance documents"},
		},
	})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %q", gotReq.Model)
	}
	if gotReq.MaxTokens != 2048 {
		t.Fatalf("expected configured max_tokens fallback, got %d", gotReq.MaxTokens)
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "be concise" {
		t.Fatalf("expected system prompt as first wire message, got %+v", gotReq.Messages[0])
	}
	if gotReq.Tools[0].Type != "function" || gotReq.Tools[0].Function.Name != "search_documents" {
		t.Fatalf("unexpected tools payload: %+v", gotReq.Tools)
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "call_1" || resp.ToolCalls[0].Name != "search_documents" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if resp.Usage.TotalTokens != 42 {
		t.Fatalf("unexpected usage: %+v", resp.Usage)
	}
	if resp.Usage.CostUSD == nil || *resp.Usage.CostUSD != 0.0004 {
		t.Fatalf("expected reported cost, got %+v", resp.Usage.CostUSD)
	}
}

func TestOpenAIProviderChat_ToolResultReplay(t *testing.T) {
	var gotReq struct {
		Messages []struct {
			Role       string `json:"role"`
			Content    any    `json:"content"`
			ToolCallID string `json:"tool_call_id"`
			ToolCalls  []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"Done."}}],
			"usage":{"prompt_tokens":50,"completion_tokens":3,"total_tokens":53}
		}`))
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("test-key", "gpt-4o-mini", 2048, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	history := []ChatMessage{
		UserMessage("check the pump"),
		AssistantMessage("", []ToolCall{{ID: "call_9", Name: "get_equipment_details", Arguments: `{"equipment_id":"EQ-1002"}`}}),
		ToolResultMessage("call_9", `{"status":"running"}`, false),
	}
	resp, err := p.Chat(context.Background(), ChatRequest{Messages: history})
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if resp.Content != "Done." {
		t.Fatalf("unexpected content: %q", resp.Content)
	}

	if len(gotReq.Messages) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(gotReq.Messages))
	}
	asst := gotReq.Messages[1]
	if asst.Role != "assistant" || len(asst.ToolCalls) != 1 || asst.ToolCalls[0].ID != "call_9" {
		t.Fatalf("unexpected assistant message: %+v", asst)
	}
	if asst.Content != nil {
		t.Fatalf("assistant message with only tool calls should omit content, got %#v", asst.Content)
	}
	toolMsg := gotReq.Messages[2]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_9" {
		t.Fatalf("unexpected tool message: %+v", toolMsg)
	}
	if toolMsg.Content != `{"status":"running"}` {
		t.Fatalf("unexpected tool content: %#v", toolMsg.Content)
	}
}

func TestOpenAIProviderChat_SelfHostedOmitsAuth(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}],"usage":{}}`))
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("", "llama3", 1024, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := p.Chat(context.Background(), ChatRequest{Messages: []ChatMessage{UserMessage("hi")}}); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if gotAuth != "" {
		t.Fatalf("expected no auth header for keyless self-hosted endpoint, got %q", gotAuth)
	}
}

func TestOpenAIProviderChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("test-key", "gpt-4o-mini", 2048, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = p.Chat(context.Background(), ChatRequest{Messages: []ChatMessage{UserMessage("hi")}})
	if err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestOpenAICheckAvailability_ProbesSelfHostedEndpoint(t *testing.T) {
	probes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected probe path: %s", r.URL.Path)
		}
		probes++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("", "llama3", 1024, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if err := p.(Checkable).CheckAvailability(context.Background()); err != nil {
		t.Fatalf("expected reachable endpoint to pass, got %v", err)
	}
	if probes != 1 {
		t.Fatalf("expected one probe request, got %d", probes)
	}
}

func TestOpenAICheckAvailability_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p, err := newOpenAIProviderForTest("", "llama3", 1024, srv.URL, http.DefaultClient)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	err = p.(Checkable).CheckAvailability(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestOpenAICheckAvailability_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := newOpenAIProviderForTest("", "llama3", 1024, srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	err = p.(Checkable).CheckAvailability(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for 5xx probe, got %v", err)
	}
}
