package domain

import "context"

// Provider is the interface to an OpenAI-compatible chat completions backend.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Healthy(ctx context.Context) error
}

type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_url"
)

// ContentPart is one element of a multimodal message body.
// ImageURL holds either a remote URL or a data: URL with inline bytes.
type ContentPart struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
}

// ThinkingOptions requests an extended reasoning budget from models that support it.
type ThinkingOptions struct {
	Enabled bool
	Budget  int
}

type ChatRequest struct {
	Messages    []ChatMessage
	Model       string
	MaxTokens   int
	Temperature float64
	Thinking    *ThinkingOptions
}

type ChatResponse struct {
	Content      string
	FinishReason string // stop | length
	Usage        Usage
	LatencyMs    int64
}

// ChatMessage is a single turn. Plain text turns set Content; multimodal
// turns set Parts, which take precedence when non-empty.
type ChatMessage struct {
	Role    string        `json:"role"` // system | user | assistant
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
