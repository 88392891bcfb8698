package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"docbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

const okBody = `{"choices":[{"message":{"role":"assistant","content":"The answer is 4."},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`

func newTestOpenAI(url, key string, retry RetryPolicy) *OpenAI {
	return NewOpenAI(OpenAIConfig{
		APIKey:  key,
		APIBase: url,
		Model:   "test-model",
		Client:  &http.Client{Timeout: 5 * time.Second},
		Retry:   retry,
		Logger:  testLogger(),
	})
}

func TestChat_SendsPartsAndThinking(t *testing.T) {
	var captured map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL+"/", "sk-test", RetryPolicy{})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{
			Role: "user",
			Parts: []domain.ContentPart{
				{Type: domain.PartImage, ImageURL: "data:image/png;base64,AAAA"},
				{Type: domain.PartText, Text: "What is 2+2?"},
			},
		}},
		Thinking: &domain.ThinkingOptions{Enabled: true, Budget: 21920},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "The answer is 4." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Fatalf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}

	if auth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if path != "/chat/completions" {
		t.Fatalf("unexpected path %q", path)
	}
	if captured["model"] != "test-model" {
		t.Fatalf("expected default model, got %v", captured["model"])
	}
	if captured["enable_thinking"] != true {
		t.Fatalf("expected enable_thinking=true, got %v", captured["enable_thinking"])
	}
	if captured["thinking_budget"] != float64(21920) {
		t.Fatalf("expected thinking_budget=21920, got %v", captured["thinking_budget"])
	}

	msgs := captured["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected 2 content parts, got %d", len(content))
	}
	first := content[0].(map[string]any)
	if first["type"] != "image_url" {
		t.Fatalf("expected image part first, got %v", first["type"])
	}
	if first["image_url"].(map[string]any)["url"] != "data:image/png;base64,AAAA" {
		t.Fatalf("unexpected image url %v", first["image_url"])
	}
	second := content[1].(map[string]any)
	if second["type"] != "text" || second["text"] != "What is 2+2?" {
		t.Fatalf("unexpected text part %v", second)
	}
}

func TestChat_PlainMessageIsString(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL, "sk-test", RetryPolicy{})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Model:    "naming-model",
		Messages: []domain.ChatMessage{{Role: "system", Content: "You are a helpful assistant."}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if captured["model"] != "naming-model" {
		t.Fatalf("request model should win, got %v", captured["model"])
	}
	if _, ok := captured["enable_thinking"]; ok {
		t.Fatal("enable_thinking should be omitted without thinking options")
	}
	msg := captured["messages"].([]any)[0].(map[string]any)
	if msg["content"] != "You are a helpful assistant." {
		t.Fatalf("expected string content, got %v", msg["content"])
	}
}

func TestChat_MissingKeySkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL, "", RetryPolicy{})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no requests, got %d", calls.Load())
	}
}

func TestChat_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL, "sk-test", RetryPolicy{MaxRetries: 1, Delay: 10 * time.Millisecond})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp.Content != "The answer is 4." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", calls.Load())
	}
}

func TestChat_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL, "sk-test", RetryPolicy{MaxRetries: 1, Delay: 10 * time.Millisecond})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrBackendRequest) {
		t.Fatalf("expected ErrBackendRequest, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 requests, got %d", calls.Load())
	}
}

func TestChat_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL, "sk-test", RetryPolicy{MaxRetries: 3, Delay: 10 * time.Millisecond})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrBackendRequest) {
		t.Fatalf("expected ErrBackendRequest, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d requests", calls.Load())
	}
}

func TestChat_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL, "sk-test", RetryPolicy{})
	_, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, domain.ErrBackendRequest) {
		t.Fatalf("expected ErrBackendRequest, got %v", err)
	}
}

func TestChat_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := newTestOpenAI(srv.URL, "sk-test", RetryPolicy{MaxRetries: 1, Delay: time.Minute})
	start := time.Now()
	_, err := p.Chat(ctx, domain.ChatRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("backoff should stop when the context ends")
	}
}

func TestHealthy_MissingKey(t *testing.T) {
	p := newTestOpenAI("http://127.0.0.1:1", "", RetryPolicy{})
	if err := p.Healthy(context.Background()); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestHealthy_ListsModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	p := newTestOpenAI(srv.URL, "sk-test", RetryPolicy{})
	if err := p.Healthy(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
}
