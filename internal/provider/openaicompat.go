package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompat implements Provider against any OpenAI-wire-compatible chat
// completions API, parameterized by base URL. One codec serves OpenAI,
// DeepSeek, XAI, and CustomOpenAI provider types — generalizing the
// teacher's OpenRouterProvider (internal/llm/openrouter.go), which already
// applies this "same SDK, different BaseURL" trick to OpenRouter.
type OpenAICompat struct {
	client       *openai.Client
	defaultModel string
	id           string
	temperature  float32
}

// OpenAICompatConfig configures an OpenAICompat codec instance.
type OpenAICompatConfig struct {
	APIKey       string
	BaseURL      string // empty uses the SDK's OpenAI default
	DefaultModel string
	Temperature  float32
	ID           string
}

// NewOpenAICompat constructs a codec for OpenAI or any OpenAI-wire-compatible
// endpoint (DeepSeek, XAI, a self-hosted gateway under CustomOpenAI).
func NewOpenAICompat(cfg OpenAICompatConfig) (*OpenAICompat, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key required for OpenAI-compatible provider")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &OpenAICompat{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: defaultString(cfg.DefaultModel, "gpt-4o-mini"),
		id:           defaultString(cfg.ID, "openai"),
		temperature:  defaultFloat32(cfg.Temperature, 0.7),
	}, nil
}

func (p *OpenAICompat) ID() string {
	return p.id
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func (p *OpenAICompat) resolveModel(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *OpenAICompat) buildRequest(req CompletionRequest, stream bool) openai.ChatCompletionRequest {
	model := p.resolveModel(req)
	temp := p.temperature
	if req.Temperature != 0 {
		temp = float32(req.Temperature)
	}
	out := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: temp,
		Stream:      stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	if req.TopP != 0 {
		out.TopP = float32(req.TopP)
	}
	if len(req.Stop) > 0 {
		out.Stop = req.Stop
	}
	if tools := extraTools(req); len(tools) > 0 {
		out.Tools = tools
	}
	if tc := req.Extra["tool_choice"]; tc != nil {
		out.ToolChoice = tc
	}
	if rf := extraResponseFormat(req); rf != nil {
		out.ResponseFormat = rf
	}
	return out
}

// extraTools decodes req.Extra["tools"] (opaque JSON-shaped data from the
// HTTP layer) into the SDK's typed Tool slice via a marshal/unmarshal
// round trip, since Extra carries values as generic any/map[string]any.
func extraTools(req CompletionRequest) []openai.Tool {
	raw, ok := req.Extra["tools"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var tools []openai.Tool
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil
	}
	return tools
}

func extraResponseFormat(req CompletionRequest) *openai.ChatCompletionResponseFormat {
	raw, ok := req.Extra["response_format"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var rf openai.ChatCompletionResponseFormat
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil
	}
	return &rf
}

func (p *OpenAICompat) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return CompletionResponse{}, err
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, errors.New("no choices returned")
	}

	choice := resp.Choices[0]
	raw, _ := json.Marshal(resp)

	return CompletionResponse{
		Content:  choice.Message.Content,
		Model:    resp.Model,
		Provider: p.ID(),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Raw: raw,
	}, nil
}

func (p *OpenAICompat) Stream(ctx context.Context, req CompletionRequest, emit func(CompletionChunk) error) error {
	model := p.resolveModel(req)
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := emit(CompletionChunk{Content: delta, Model: model, Provider: p.ID()}); err != nil {
			return err
		}
	}

	return emit(CompletionChunk{Done: true, Provider: p.ID(), Model: model})
}
