package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"docbot/internal/domain"
	"docbot/internal/metrics"
)

// OpenAI implements domain.Provider for OpenAI-compatible chat completions
// endpoints, including DashScope's compatible mode.
type OpenAI struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	retry   RetryPolicy
	logger  *slog.Logger
}

type OpenAIConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client // optional, defaults to SharedHTTPClient
	Retry   RetryPolicy
	Logger  *slog.Logger
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultHTTPTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &OpenAI{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		retry:   cfg.Retry,
		logger:  cfg.Logger,
	}
}

func (o *OpenAI) Name() string { return "openai-compatible" }

func (o *OpenAI) Healthy(ctx context.Context) error {
	if o.apiKey == "" {
		return fmt.Errorf("%w: backend API key is not set", domain.ErrConfiguration)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("backend: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned %d", resp.StatusCode)
	}
	return nil
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	Temperature    *float64     `json:"temperature,omitempty"`
	Stream         bool         `json:"stream"`
	EnableThinking *bool        `json:"enable_thinking,omitempty"`
	ThinkingBudget int          `json:"thinking_budget,omitempty"`
}

// oaiMessage.Content is either a string or a []oaiPart.
type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaiPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   oaiUsage    `json:"usage"`
}

type oaiChoice struct {
	Message      oaiResponseMessage `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type oaiResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func toOAIMessage(m domain.ChatMessage) oaiMessage {
	if len(m.Parts) == 0 {
		return oaiMessage{Role: m.Role, Content: m.Content}
	}
	parts := make([]oaiPart, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch p.Type {
		case domain.PartImage:
			parts = append(parts, oaiPart{Type: "image_url", ImageURL: &oaiImageURL{URL: p.ImageURL}})
		default:
			parts = append(parts, oaiPart{Type: "text", Text: p.Text})
		}
	}
	return oaiMessage{Role: m.Role, Content: parts}
}

// Chat sends a single non-streaming completion request and returns the first choice.
// Every failure is wrapped with domain.ErrBackendRequest, except a missing
// credential which is reported as domain.ErrConfiguration before any network call.
func (o *OpenAI) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: backend API key is not set", domain.ErrConfiguration)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}
	if model == "" {
		return nil, fmt.Errorf("%w: no model specified", domain.ErrInvalidInput)
	}

	body := oaiRequest{
		Model:    model,
		Messages: make([]oaiMessage, 0, len(req.Messages)),
		Stream:   false,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, toOAIMessage(m))
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		body.Temperature = &req.Temperature
	}
	if req.Thinking != nil {
		enabled := req.Thinking.Enabled
		body.EnableThinking = &enabled
		if enabled && req.Thinking.Budget > 0 {
			body.ThinkingBudget = req.Thinking.Budget
		}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", domain.ErrBackendRequest, err)
	}

	metrics.BackendRequests.Inc()
	start := time.Now()

	resp, err := doWithRetry(ctx, o.client, o.retry, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
		return httpReq, nil
	}, o.logger)
	if err != nil {
		metrics.BackendFailures.Inc()
		return nil, fmt.Errorf("%w: %v", domain.ErrBackendRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.BackendFailures.Inc()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrBackendRequest, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var oaiResp oaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaiResp); err != nil {
		metrics.BackendFailures.Inc()
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrBackendRequest, err)
	}
	latency := time.Since(start)
	metrics.BackendLatency.Observe(latency.Seconds())

	if len(oaiResp.Choices) == 0 {
		metrics.BackendFailures.Inc()
		return nil, fmt.Errorf("%w: response has no choices", domain.ErrBackendRequest)
	}

	choice := oaiResp.Choices[0]
	o.logger.Debug("completion received",
		"model", model,
		"finish_reason", choice.FinishReason,
		"prompt_tokens", oaiResp.Usage.PromptTokens,
		"completion_tokens", oaiResp.Usage.CompletionTokens,
		"latency", latency,
	)

	return &domain.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: domain.Usage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
		LatencyMs: latency.Milliseconds(),
	}, nil
}
