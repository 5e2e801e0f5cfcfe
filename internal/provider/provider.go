// Package provider implements the pluggable per-provider-type codecs that
// translate the gateway's common request/response shape to and from each
// upstream's wire format.
package provider

import "context"

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

// CompletionRequest captures a chat-completion request in the gateway's
// common wire shape, generalized from the teacher's CompletionRequest
// (internal/llm/provider.go) with the output-affecting fields SPEC_FULL.md
// §3/§4.4 requires (MaxTokens, Extra) and without the teacher's AgentID
// (this gateway routes by model/tier, not by agent).
type CompletionRequest struct {
	Model       string         `json:"model"`
	Messages    []Message      `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	TopP        float64        `json:"top_p,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Stop        []string       `json:"stop,omitempty"`
	Extra       map[string]any `json:"-"` // response_format, tools, tool_choice, etc.
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the provider-agnostic result of a completion call.
type CompletionResponse struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Usage    Usage  `json:"usage"`
	// Raw carries the verbatim upstream JSON body, used by the cache and
	// by the HTTP layer to pass the original response through unmodified.
	Raw []byte `json:"-"`
}

// CompletionChunk is a partial response emitted during streaming.
// Streaming bypasses the cache entirely (SPEC_FULL.md §9, Open Question c).
type CompletionChunk struct {
	Content  string `json:"content"`
	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Provider is the codec interface every provider type implements.
type Provider interface {
	ID() string
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Stream(ctx context.Context, req CompletionRequest, emit func(CompletionChunk) error) error
}

func defaultString(val, def string) string {
	if val != "" {
		return val
	}
	return def
}

func defaultFloat32(val, def float32) float32 {
	if val != 0 {
		return val
	}
	return def
}
