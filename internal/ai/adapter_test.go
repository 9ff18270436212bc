package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auswanderer-plattform/backend/internal/models"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func chatRequest() Request {
	return Request{
		System: "Du bist ein Berater",
		Messages: []Message{
			{Role: RoleUser, Content: "Hallo"},
			{Role: RoleAssistant, Content: "Hi"},
			{Role: RoleUser, Content: "Wohin?"},
		},
	}
}

func TestClaudeAdapter_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))

		body := decodeBody(t, r)
		assert.Equal(t, "claude-3-5-sonnet", body["model"])
		assert.EqualValues(t, 4096, body["max_tokens"])
		assert.Len(t, body["messages"], 3)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet",
			"content": [{"type": "text", "text": "Portugal"}],
			"stop_reason": "max_tokens",
			"usage": {"input_tokens": 1000, "output_tokens": 2000}
		}`))
	}))
	defer srv.Close()

	adapter := NewClaudeAdapter(Options{
		APIKey:  "sk-ant-test",
		Model:   "claude-3-5-sonnet",
		Rates:   DefaultRates(models.ProviderClaude),
		BaseURL: srv.URL + "/",
	})

	assert.Nil(t, adapter.LastUsage())

	resp, err := adapter.Chat(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "Portugal", resp.Content)
	assert.Equal(t, models.ProviderClaude, resp.Provider)
	assert.Equal(t, FinishLength, resp.FinishReason)
	assert.Equal(t, "msg_01", resp.RequestID)
	assert.Equal(t, 3000, resp.Usage.TotalTokens)
	assert.InDelta(t, 0.003+0.03, resp.Usage.CostUSD, 1e-9)

	last := adapter.LastUsage()
	require.NotNil(t, last)
	assert.Equal(t, resp.Usage, *last)
}

func TestClaudeAdapter_VendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	adapter := NewClaudeAdapter(Options{APIKey: "bad", Model: "claude", BaseURL: srv.URL + "/"})

	_, err := adapter.Chat(context.Background(), chatRequest())
	var vendorErr *VendorError
	require.True(t, errors.As(err, &vendorErr), "got %v", err)
	assert.Equal(t, http.StatusUnauthorized, vendorErr.StatusCode)
	assert.Equal(t, models.ProviderClaude, vendorErr.Provider)
	assert.Contains(t, vendorErr.Body, "invalid x-api-key")
	assert.False(t, adapter.HealthCheck(context.Background()))
}

func openAIServer(t *testing.T, finish string, calls *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls = append(*calls, r.Method+" "+r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/models"):
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"llama-3.1-70b-versatile","object":"model","created":1,"owned_by":"meta"}]}`))
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			body := decodeBody(t, r)
			msgs := body["messages"].([]any)
			first := msgs[0].(map[string]any)
			assert.Equal(t, "system", first["role"])
			_, _ = w.Write([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1,
				"model": "gpt-4o",
				"choices": [{"index": 0, "finish_reason": "` + finish + `",
					"message": {"role": "assistant", "content": "Spanien"}}],
				"usage": {"prompt_tokens": 1000, "completion_tokens": 1000, "total_tokens": 2000}
			}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOpenAIAdapter_Chat(t *testing.T) {
	srv := openAIServer(t, "length", nil)
	defer srv.Close()

	adapter := NewOpenAIAdapter(Options{
		APIKey:  "sk-test",
		Model:   "gpt-4o",
		Rates:   Rates{InputPer1k: 0.005, OutputPer1k: 0.015},
		BaseURL: srv.URL + "/v1/",
	})

	resp, err := adapter.Chat(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "Spanien", resp.Content)
	assert.Equal(t, FinishLength, resp.FinishReason)
	assert.Equal(t, models.ProviderOpenAI, resp.Provider)
	assert.Equal(t, 2000, resp.Usage.TotalTokens)
	assert.InDelta(t, 0.02, resp.Usage.CostUSD, 1e-9)
}

func TestGroqAdapter_HealthCheckListsModels(t *testing.T) {
	var calls []string
	srv := openAIServer(t, "stop", &calls)
	defer srv.Close()

	adapter := NewGroqAdapter(Options{APIKey: "gsk-test", Model: "llama-3.1-70b-versatile", BaseURL: srv.URL + "/v1/"})

	assert.True(t, adapter.HealthCheck(context.Background()))
	require.Len(t, calls, 1)
	assert.Equal(t, "GET /v1/models", calls[0])
	assert.Equal(t, HealthCheckFree, adapter.HealthCheckCost())

	resp, err := adapter.Chat(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGroq, resp.Provider)
	assert.Equal(t, FinishStop, resp.FinishReason)
}

func TestOpenAIAdapter_HealthCheckIsPaidChat(t *testing.T) {
	var calls []string
	srv := openAIServer(t, "stop", &calls)
	defer srv.Close()

	adapter := NewOpenAIAdapter(Options{APIKey: "sk-test", Model: "gpt-4o", BaseURL: srv.URL + "/v1/"})

	assert.True(t, adapter.HealthCheck(context.Background()))
	require.Len(t, calls, 1)
	assert.Equal(t, "POST /v1/chat/completions", calls[0])
	assert.Equal(t, HealthCheckPaid, adapter.HealthCheckCost())
}

func TestGeminiAdapter_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-1.5-pro:generateContent")

		body := decodeBody(t, r)
		contents, _ := body["contents"].([]any)
		if assert.Len(t, contents, 3) {
			assert.Equal(t, "model", contents[1].(map[string]any)["role"])
		}
		assert.NotNil(t, body["systemInstruction"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Zypern"}]}, "finishReason": "MAX_TOKENS"}],
			"usageMetadata": {"promptTokenCount": 500, "candidatesTokenCount": 1500, "totalTokenCount": 2000}
		}`))
	}))
	defer srv.Close()

	adapter, err := NewGeminiAdapter(context.Background(), Options{
		APIKey:  "AIza-test",
		Model:   "gemini-1.5-pro",
		Rates:   DefaultRates(models.ProviderGemini),
		BaseURL: srv.URL + "/",
	})
	require.NoError(t, err)

	resp, err := adapter.Chat(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Equal(t, "Zypern", resp.Content)
	assert.Equal(t, FinishLength, resp.FinishReason)
	assert.Equal(t, 2000, resp.Usage.TotalTokens)
	assert.InDelta(t, 0.000625+0.0075, resp.Usage.CostUSD, 1e-9)
}

func TestGeminiAdapter_VendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	adapter, err := NewGeminiAdapter(context.Background(), Options{APIKey: "k", Model: "gemini-1.5-pro", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	_, err = adapter.Chat(context.Background(), chatRequest())
	var vendorErr *VendorError
	require.True(t, errors.As(err, &vendorErr), "got %v", err)
	assert.Equal(t, http.StatusTooManyRequests, vendorErr.StatusCode)
}

func TestAdapter_TimeoutIsNotVendorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	timeouts := NewTimeoutManager(&TimeoutConfig{
		DefaultTimeout: 50 * time.Millisecond,
		MinTimeout:     10 * time.Millisecond,
		MaxTimeout:     time.Second,
	})
	adapter := NewOpenAIAdapter(Options{APIKey: "k", Model: "gpt-4o", BaseURL: srv.URL + "/v1/", Timeouts: timeouts})

	_, err := adapter.Chat(context.Background(), chatRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.True(t, IsTimeout(err))

	var vendorErr *VendorError
	assert.False(t, errors.As(err, &vendorErr))
}

func TestBase_RequestOverridesSettings(t *testing.T) {
	maxTokens := 512
	temp := 0.2
	b := newBase(models.ProviderClaude, Options{Settings: models.ProviderSettings{MaxTokens: &maxTokens, Temperature: &temp}})

	assert.Equal(t, 512, b.maxTokens(Request{}))
	assert.Equal(t, 0.2, b.temperature(Request{}))

	reqMax := 100
	reqTemp := 0.9
	req := Request{MaxTokens: &reqMax, Temperature: &reqTemp}
	assert.Equal(t, 100, b.maxTokens(req))
	assert.Equal(t, 0.9, b.temperature(req))

	plain := newBase(models.ProviderClaude, Options{})
	assert.Equal(t, defaultMaxTokens, plain.maxTokens(Request{}))
	assert.Equal(t, defaultTemperature, plain.temperature(Request{}))
}
