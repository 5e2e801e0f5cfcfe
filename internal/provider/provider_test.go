package provider

import (
	"context"
	"errors"
	"testing"
)

func TestMockEchoesMessages(t *testing.T) {
	m := Mock{DefaultModel: "mock-model"}
	resp, err := m.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "mock" {
		t.Fatalf("expected provider mock, got %s", resp.Provider)
	}
	if resp.Usage.TotalTokens != resp.Usage.PromptTokens+resp.Usage.CompletionTokens {
		t.Fatalf("usage totals don't add up: %+v", resp.Usage)
	}
}

func TestMockFailWith(t *testing.T) {
	wantErr := errors.New("boom")
	m := Mock{FailWith: wantErr}
	_, err := m.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected FailWith error, got %v", err)
	}
}

func TestUpstreamErrorRetryable(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{408, true},
		{400, false},
		{404, false},
		{401, false},
	}
	for _, tc := range cases {
		e := &UpstreamError{StatusCode: tc.status}
		if got := e.Retryable(); got != tc.retryable {
			t.Errorf("status %d: expected retryable=%v, got %v", tc.status, tc.retryable, got)
		}
	}
}

func TestAnthropicBuildRequestRequiresAMessage(t *testing.T) {
	p, err := NewAnthropic(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	_, err = p.buildRequest(CompletionRequest{
		Messages: []Message{{Role: "system", Content: "you are helpful"}},
	}, false)
	if err == nil {
		t.Fatal("expected error when only a system message is present")
	}
}

func TestAnthropicBuildRequestSplitsSystem(t *testing.T) {
	p, err := NewAnthropic(AnthropicConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewAnthropic: %v", err)
	}
	req, err := p.buildRequest(CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "you are helpful"},
			{Role: "user", Content: "hi"},
		},
	}, false)
	if err != nil {
		t.Fatalf("buildRequest: %v", err)
	}
	if req.System != "you are helpful" {
		t.Fatalf("expected system message extracted, got %q", req.System)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("expected single user message, got %+v", req.Messages)
	}
}

func TestGoogleBuildRequestMapsRoles(t *testing.T) {
	p, err := NewGoogle(GoogleConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	req := p.buildRequest(CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "be terse"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	})
	if req.SystemInstruction == nil {
		t.Fatal("expected system instruction to be set")
	}
	if len(req.Contents) != 2 {
		t.Fatalf("expected 2 contents (system stripped), got %d", len(req.Contents))
	}
	if req.Contents[1].Role != "model" {
		t.Fatalf("expected assistant mapped to model role, got %s", req.Contents[1].Role)
	}
}
