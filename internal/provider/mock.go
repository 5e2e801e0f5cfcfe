package provider

import (
	"context"
	"strings"
)

// Mock returns deterministic echo-like responses in place of a real
// upstream (generalized from the teacher's MockProvider,
// internal/llm/mock.go). The internal/engine tests use their own scripted
// fake instead.
type Mock struct {
	DefaultModel string
	// FailWith, if set, causes every Complete/Stream call to fail with
	// this error instead of echoing — used to test failover.
	FailWith error
}

func (m Mock) ID() string {
	return "mock"
}

func (m Mock) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if m.FailWith != nil {
		return CompletionResponse{}, m.FailWith
	}

	joined := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		joined = append(joined, msg.Content)
	}
	combined := strings.Join(joined, "\n")
	respText := "[mock] " + combined

	usage := Usage{
		PromptTokens:     len(combined) / 4,
		CompletionTokens: len(respText) / 4,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	model := req.Model
	if model == "" {
		model = m.DefaultModel
	}

	return CompletionResponse{
		Content:  respText,
		Model:    model,
		Provider: m.ID(),
		Usage:    usage,
		Raw:      []byte(`{"content":"` + respText + `"}`),
	}, nil
}

func (m Mock) Stream(ctx context.Context, req CompletionRequest, emit func(CompletionChunk) error) error {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return err
	}
	if err := emit(CompletionChunk{Content: resp.Content, Model: resp.Model, Provider: resp.Provider}); err != nil {
		return err
	}
	return emit(CompletionChunk{Done: true, Provider: resp.Provider, Model: resp.Model})
}
