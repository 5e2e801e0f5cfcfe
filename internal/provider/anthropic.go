package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Anthropic implements Provider against Anthropic's messages API using
// raw net/http, following the teacher's own choice not to pull in an
// Anthropic SDK (internal/llm/anthropic.go).
type Anthropic struct {
	apiKey       string
	baseURL      string
	defaultModel string
	id           string
	httpClient   *http.Client
}

// AnthropicConfig configures an Anthropic codec instance.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	ID           string
	HTTPClient   *http.Client
}

// NewAnthropic constructs an Anthropic codec; requires an API key.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key required for Anthropic provider")
	}
	baseURL := defaultString(cfg.BaseURL, "https://api.anthropic.com")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Anthropic{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultModel: defaultString(cfg.DefaultModel, "claude-sonnet-4-20250514"),
		id:           defaultString(cfg.ID, "anthropic"),
		httpClient:   client,
	}, nil
}

func (p *Anthropic) ID() string {
	return p.id
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
	// Tools/ToolChoice are forwarded verbatim from CompletionRequest.Extra;
	// callers targeting Anthropic are expected to supply them already
	// shaped to Anthropic's own tool-definition schema, since this gateway
	// passes output-affecting parameters through rather than translating
	// between providers' tool formats.
	Tools      any `json:"tools,omitempty"`
	ToolChoice any `json:"tool_choice,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func splitSystemAndMessages(messages []Message) (string, []anthropicMessage) {
	var systemMsg string
	var out []anthropicMessage
	for _, m := range messages {
		if m.Role == "system" {
			systemMsg = m.Content
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		out = append(out, anthropicMessage{Role: role, Content: m.Content})
	}
	return systemMsg, out
}

func (p *Anthropic) buildRequest(req CompletionRequest, stream bool) (anthropicRequest, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	systemMsg, messages := splitSystemAndMessages(req.Messages)
	if len(messages) == 0 {
		return anthropicRequest{}, errors.New("at least one user or assistant message required")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	out := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  messages,
		System:    systemMsg,
		Stream:    stream,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.TopP != 0 {
		tp := req.TopP
		out.TopP = &tp
	}
	if len(req.Stop) > 0 {
		out.StopSequences = req.Stop
	}
	if tools, ok := req.Extra["tools"]; ok {
		out.Tools = tools
	}
	if tc, ok := req.Extra["tool_choice"]; ok {
		out.ToolChoice = tc
	}
	return out, nil
}

func (p *Anthropic) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	anthropicReq, err := p.buildRequest(req, false)
	if err != nil {
		return CompletionResponse{}, err
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return CompletionResponse{}, &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(respBody, &anthropicResp); err != nil {
		return CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}

	var content string
	for _, c := range anthropicResp.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}

	return CompletionResponse{
		Content:  content,
		Model:    anthropicResp.Model,
		Provider: p.ID(),
		Usage: Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
		Raw: respBody,
	}, nil
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta,omitempty"`
}

func (p *Anthropic) Stream(ctx context.Context, req CompletionRequest, emit func(CompletionChunk) error) error {
	anthropicReq, err := p.buildRequest(req, true)
	if err != nil {
		return err
	}

	body, err := json.Marshal(anthropicReq)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	model := anthropicReq.Model
	buf := make([]byte, 0, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := readSSELine(resp.Body, &buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))
		if bytes.Equal(data, []byte("[DONE]")) {
			break
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				if err := emit(CompletionChunk{Content: event.Delta.Text, Model: model, Provider: p.ID()}); err != nil {
					return err
				}
			}
		case "message_stop":
			return emit(CompletionChunk{Done: true, Provider: p.ID(), Model: model})
		}
	}

	return emit(CompletionChunk{Done: true, Provider: p.ID(), Model: model})
}

// readSSELine reads a single line from an SSE stream, byte by byte,
// exactly as the teacher's internal/llm/anthropic.go does.
func readSSELine(r io.Reader, buf *[]byte) ([]byte, error) {
	*buf = (*buf)[:0]
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if err != nil {
			return *buf, err
		}
		if n == 0 {
			continue
		}
		if b[0] == '\n' {
			return *buf, nil
		}
		*buf = append(*buf, b[0])
	}
}
