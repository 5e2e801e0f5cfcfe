package main

import (
	"testing"

	"github.com/namphamdev/claw-router/internal/config"
)

func TestNewProviderCodec_OpenAI(t *testing.T) {
	p := config.ProviderDoc{
		ID:           "p1",
		ProviderType: "openai",
		APIKey:       "sk-test",
		Models:       []config.ModelDoc{{ID: "gpt-4o"}},
	}
	codec, err := newProviderCodec(p)
	if err != nil {
		t.Fatalf("newProviderCodec: %v", err)
	}
	if codec.ID() != "p1" {
		t.Errorf("ID() = %s, want p1", codec.ID())
	}
}

func TestNewProviderCodec_DeepSeekUsesOpenAICompat(t *testing.T) {
	p := config.ProviderDoc{ID: "ds", ProviderType: "deepseek", APIKey: "sk-test"}
	if _, err := newProviderCodec(p); err != nil {
		t.Fatalf("newProviderCodec: %v", err)
	}
}

func TestNewProviderCodec_Anthropic(t *testing.T) {
	p := config.ProviderDoc{ID: "a1", ProviderType: "anthropic", APIKey: "sk-test"}
	codec, err := newProviderCodec(p)
	if err != nil {
		t.Fatalf("newProviderCodec: %v", err)
	}
	if codec.ID() != "a1" {
		t.Errorf("ID() = %s, want a1", codec.ID())
	}
}

func TestNewProviderCodec_Google(t *testing.T) {
	p := config.ProviderDoc{ID: "g1", ProviderType: "google", APIKey: "key"}
	codec, err := newProviderCodec(p)
	if err != nil {
		t.Fatalf("newProviderCodec: %v", err)
	}
	if codec.ID() != "g1" {
		t.Errorf("ID() = %s, want g1", codec.ID())
	}
}

func TestNewProviderCodec_UnknownType(t *testing.T) {
	p := config.ProviderDoc{ID: "x", ProviderType: "not-a-real-provider"}
	if _, err := newProviderCodec(p); err == nil {
		t.Fatal("expected error for unknown provider_type")
	}
}

func TestNewProviderCodec_MissingAPIKey(t *testing.T) {
	p := config.ProviderDoc{ID: "x", ProviderType: "openai"}
	if _, err := newProviderCodec(p); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestBuildProviders_SkipsDisabledAndInvalid(t *testing.T) {
	doc := config.Document{
		Providers: []config.ProviderDoc{
			{ID: "enabled", ProviderType: "openai", APIKey: "sk-test", Enabled: true},
			{ID: "disabled", ProviderType: "openai", APIKey: "sk-test", Enabled: false},
			{ID: "broken", ProviderType: "openai", Enabled: true}, // no api key
		},
	}

	codecs := buildProviders(doc)
	if len(codecs) != 1 {
		t.Fatalf("buildProviders returned %d codecs, want 1: %+v", len(codecs), codecs)
	}
	if _, ok := codecs["enabled"]; !ok {
		t.Error("expected enabled provider to be built")
	}
}
