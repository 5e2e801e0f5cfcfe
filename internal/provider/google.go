package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Google implements Provider against the Gemini generateContent API using
// raw net/http — no teacher file targets Google directly, so this codec
// follows the same raw-HTTP shape the teacher already established for
// Anthropic (internal/llm/anthropic.go): hand-rolled request/response
// structs, manual status-code handling, no SDK dependency.
type Google struct {
	apiKey       string
	baseURL      string
	defaultModel string
	id           string
	httpClient   *http.Client
}

// GoogleConfig configures a Google codec instance.
type GoogleConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	ID           string
	HTTPClient   *http.Client
}

// NewGoogle constructs a Google/Gemini codec; requires an API key.
func NewGoogle(cfg GoogleConfig) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key required for Google provider")
	}
	baseURL := defaultString(cfg.BaseURL, "https://generativelanguage.googleapis.com")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Google{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultModel: defaultString(cfg.DefaultModel, "gemini-1.5-flash"),
		id:           defaultString(cfg.ID, "google"),
		httpClient:   client,
	}, nil
}

func (p *Google) ID() string {
	return p.id
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
	// Tools/ToolConfig are forwarded verbatim from CompletionRequest.Extra;
	// callers targeting Gemini are expected to supply them already shaped
	// to Gemini's functionDeclarations/toolConfig schema (see buildRequest).
	Tools      any `json:"tools,omitempty"`
	ToolConfig any `json:"toolConfig,omitempty"`
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
	ModelVersion string `json:"modelVersion"`
}

// Gemini uses "model"/"user" roles, not "assistant"/"system".
func toGeminiContents(messages []Message) ([]geminiContent, *geminiContent) {
	var system *geminiContent
	var contents []geminiContent
	for _, m := range messages {
		if m.Role == "system" {
			s := geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}}
			system = &s
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return contents, system
}

func (p *Google) buildRequest(req CompletionRequest) geminiRequest {
	contents, system := toGeminiContents(req.Messages)
	genCfg := &geminiGenerationConfig{}
	empty := true
	if req.Temperature != 0 {
		t := req.Temperature
		genCfg.Temperature = &t
		empty = false
	}
	if req.TopP != 0 {
		tp := req.TopP
		genCfg.TopP = &tp
		empty = false
	}
	if req.MaxTokens > 0 {
		genCfg.MaxOutputTokens = req.MaxTokens
		empty = false
	}
	if len(req.Stop) > 0 {
		genCfg.StopSequences = req.Stop
		empty = false
	}
	if empty {
		genCfg = nil
	}
	out := geminiRequest{Contents: contents, SystemInstruction: system, GenerationConfig: genCfg}
	if tools, ok := req.Extra["tools"]; ok {
		out.Tools = tools
	}
	if tc, ok := req.Extra["tool_choice"]; ok {
		out.ToolConfig = tc
	}
	return out
}

func (p *Google) resolveModel(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

func (p *Google) endpoint(model, action string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", p.baseURL, model, action, url.QueryEscape(p.apiKey))
}

func (p *Google) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := p.resolveModel(req)
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.endpoint(model, "generateContent"), bytes.NewReader(body))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return CompletionResponse{}, errors.New("no candidates returned")
	}

	var content string
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content += part.Text
	}

	return CompletionResponse{
		Content:  content,
		Model:    model,
		Provider: p.ID(),
		Usage: Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		},
		Raw: respBody,
	}, nil
}

// Stream does not call Gemini's streamGenerateContent endpoint: it makes
// one generateContent call via Complete and emits the full content as a
// single chunk followed by Done, since
// streaming is out of scope for cache/routing semantics (SPEC_FULL.md §9
// Open Question c) and this codec only needs to satisfy the Provider
// interface for completeness.
func (p *Google) Stream(ctx context.Context, req CompletionRequest, emit func(CompletionChunk) error) error {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := emit(CompletionChunk{Content: resp.Content, Model: resp.Model, Provider: resp.Provider}); err != nil {
		return err
	}
	return emit(CompletionChunk{Done: true, Provider: resp.Provider, Model: resp.Model})
}
