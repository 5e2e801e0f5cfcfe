package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/namphamdev/claw-router/internal/cache"
	"github.com/namphamdev/claw-router/internal/provider"
	"github.com/namphamdev/claw-router/internal/registry"
	"github.com/namphamdev/claw-router/internal/scorer"
	"github.com/namphamdev/claw-router/internal/telemetry"
)

// fakeProvider gives each scenario test precise control over the
// response/error/usage/call-count a codec returns, which the shared Mock
// codec (tuned for echoing, not scripted scenarios) can't offer.
type fakeProvider struct {
	id       string
	calls    int
	err      error
	content  string
	usage    provider.Usage
	rawModel string
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return provider.CompletionResponse{}, f.err
	}
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": f.content}}},
		"usage": map[string]int{
			"prompt_tokens":     f.usage.PromptTokens,
			"completion_tokens": f.usage.CompletionTokens,
		},
		"model": req.Model,
	})
	return provider.CompletionResponse{
		Content:  f.content,
		Model:    req.Model,
		Provider: f.id,
		Usage:    f.usage,
		Raw:      raw,
	}, nil
}

func (f *fakeProvider) Stream(ctx context.Context, req provider.CompletionRequest, emit func(provider.CompletionChunk) error) error {
	return emit(provider.CompletionChunk{Done: true})
}

func newTestRegistry(t *testing.T, providers ...registry.Provider) *registry.Registry {
	t.Helper()
	reg, err := registry.New(providers)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	return reg
}

func baseProfile() Profile {
	return Profile{
		Name: "default",
		ModelMapping: map[scorer.Tier]TierTarget{
			scorer.TierSimple:    {ModelID: "gpt-4o"},
			scorer.TierMedium:    {ModelID: "gpt-4o"},
			scorer.TierComplex:   {ModelID: "gpt-4o"},
			scorer.TierReasoning: {ModelID: "o1"},
		},
	}
}

// S1: single provider, cache miss, response passed through with correctly
// computed cost.
func TestScenario1_SingleProviderSuccess(t *testing.T) {
	p1 := registry.Provider{
		ID: "p1", Enabled: true, Priority: 10, Type: registry.ProviderOpenAI,
		Models: []registry.Model{{ID: "gpt-4o", InputCostPer1M: 2.5, OutputCostPer1M: 10}},
	}
	reg := newTestRegistry(t, p1)
	fake := &fakeProvider{id: "p1", content: "hello", usage: provider.Usage{PromptTokens: 5, CompletionTokens: 7}}
	store := telemetry.New(10)

	eng := New(reg, nil, store, nil, map[string]provider.Provider{"p1": fake}, scorer.DefaultConfig(), DefaultRoutingConfig(), baseProfile())

	result, err := eng.Route(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Response.Provider != "p1" {
		t.Fatalf("expected provider p1, got %s", result.Response.Provider)
	}
	snap := store.Snapshot()
	if snap.Totals.Successful != 1 {
		t.Fatalf("expected 1 successful log, got %d", snap.Totals.Successful)
	}
	wantCost := 5*2.5/1e6 + 7*10/1e6
	got := snap.RecentLogs[0].EstimatedCost
	if diff := got - wantCost; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected cost %v, got %v", wantCost, got)
	}
}

// S2: p1 (higher priority) fails with a retryable 500, p2 succeeds;
// providers_tried records both in order.
func TestScenario2_FailoverToSecondProvider(t *testing.T) {
	p1 := registry.Provider{ID: "p1", Enabled: true, Priority: 10, Models: []registry.Model{{ID: "gpt-4o"}}}
	p2 := registry.Provider{ID: "p2", Enabled: true, Priority: 5, Models: []registry.Model{{ID: "gpt-4o"}}}
	reg := newTestRegistry(t, p1, p2)

	fake1 := &fakeProvider{id: "p1", err: &provider.UpstreamError{StatusCode: 500}}
	fake2 := &fakeProvider{id: "p2", content: "ok", usage: provider.Usage{PromptTokens: 1, CompletionTokens: 1}}
	store := telemetry.New(10)

	eng := New(reg, nil, store, nil, map[string]provider.Provider{"p1": fake1, "p2": fake2}, scorer.DefaultConfig(), DefaultRoutingConfig(), baseProfile())

	result, err := eng.Route(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if len(result.ProvidersTried) != 2 || result.ProvidersTried[0] != "p1" || result.ProvidersTried[1] != "p2" {
		t.Fatalf("expected providers_tried [p1 p2], got %v", result.ProvidersTried)
	}
	if result.Response.Provider != "p2" {
		t.Fatalf("expected final response from p2, got %s", result.Response.Provider)
	}
	snap := store.Snapshot()
	if snap.RecentLogs[0].Status != telemetry.StatusSuccess {
		t.Fatalf("expected success status, got %s", snap.RecentLogs[0].Status)
	}
}

// S3: cache enabled; two identical requests hit the upstream exactly once.
func TestScenario3_CacheServesSecondRequest(t *testing.T) {
	p1 := registry.Provider{ID: "p1", Enabled: true, Priority: 10, Models: []registry.Model{{ID: "gpt-4o"}}}
	reg := newTestRegistry(t, p1)
	fake := &fakeProvider{id: "p1", content: "cached answer", usage: provider.Usage{PromptTokens: 1, CompletionTokens: 1}}
	cch, err := cache.New(cache.Config{Enabled: true, TTL: time.Hour, CacheDir: t.TempDir()})
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	store := telemetry.New(10)
	eng := New(reg, cch, store, nil, map[string]provider.Provider{"p1": fake}, scorer.DefaultConfig(), DefaultRoutingConfig(), baseProfile())

	req := Request{Model: "gpt-4o", Messages: []provider.Message{{Role: "user", Content: "hi"}}}

	if _, err := eng.Route(context.Background(), req); err != nil {
		t.Fatalf("first Route: %v", err)
	}
	start := time.Now()
	result, err := eng.Route(context.Background(), req)
	if err != nil {
		t.Fatalf("second Route: %v", err)
	}
	if time.Since(start) >= 10*time.Millisecond {
		t.Fatalf("expected near-instant cache hit, took %v", time.Since(start))
	}
	if !result.CacheHit {
		t.Fatal("expected second request to be served from cache")
	}
	if fake.calls != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", fake.calls)
	}
}

// S4: active profile maps reasoning -> "o1"; a request explicitly naming
// gpt-3.5-turbo with max_tokens forcing Complex-or-above is still routed to
// the profile's model for that tier, not the client's requested model name
// (SPEC_FULL.md §4.3 step 2: the profile's tier mapping takes precedence
// over the request whenever that tier has a mapping).
func TestScenario4_ProfileOverridesRequestedModel(t *testing.T) {
	p1 := registry.Provider{ID: "p1", Enabled: true, Priority: 10, Models: []registry.Model{{ID: "o1"}, {ID: "gpt-3.5-turbo"}}}
	reg := newTestRegistry(t, p1)
	fake := &fakeProvider{id: "p1", content: "reasoned"}
	store := telemetry.New(10)

	// The force rule only guarantees tier >= Complex (SPEC_FULL.md §4.1);
	// this fixture maps Complex to "o1" so a forced-complex request still
	// demonstrates the profile's model, not the request's, winning.
	profile := baseProfile()
	profile.ModelMapping[scorer.TierComplex] = TierTarget{ModelID: "o1"}

	eng := New(reg, nil, store, nil, map[string]provider.Provider{"p1": fake}, scorer.DefaultConfig(), DefaultRoutingConfig(), profile)

	// The client names gpt-3.5-turbo explicitly; tier-based resolution
	// still wins over this requested model since the Complex tier has a
	// mapping in the active profile.
	result, err := eng.Route(context.Background(), Request{
		Model:     "gpt-3.5-turbo",
		Messages:  []provider.Message{{Role: "user", Content: "hi"}},
		MaxTokens: 200000,
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected one call, got %d", fake.calls)
	}
	if result.Response.Model != "o1" {
		t.Fatalf("expected outbound model o1, got %s", result.Response.Model)
	}
}

// When the active profile has no mapping for the scored tier, Route falls
// back to the request's own model (SPEC_FULL.md §4.3 step 2, fallback
// branch).
func TestRouteFallsBackToRequestModelWhenTierUnmapped(t *testing.T) {
	p1 := registry.Provider{ID: "p1", Enabled: true, Priority: 10, Models: []registry.Model{{ID: "gpt-4o-mini"}}}
	reg := newTestRegistry(t, p1)
	fake := &fakeProvider{id: "p1", content: "ok"}
	store := telemetry.New(10)

	profile := Profile{Name: "sparse", ModelMapping: map[scorer.Tier]TierTarget{}}
	eng := New(reg, nil, store, nil, map[string]provider.Provider{"p1": fake}, scorer.DefaultConfig(), DefaultRoutingConfig(), profile)

	result, err := eng.Route(context.Background(), Request{
		Model:    "gpt-4o-mini",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.Response.Model != "gpt-4o-mini" {
		t.Fatalf("expected fallback to requested model gpt-4o-mini, got %s", result.Response.Model)
	}
}

// S5: no provider carries the mapped model -> ErrNoProvider, empty
// providers_tried, no_provider telemetry status.
func TestScenario5_NoProviderForModel(t *testing.T) {
	reg := newTestRegistry(t) // empty registry
	store := telemetry.New(10)
	eng := New(reg, nil, store, nil, map[string]provider.Provider{}, scorer.DefaultConfig(), DefaultRoutingConfig(), baseProfile())

	result, err := eng.Route(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error when no provider carries the model")
	}
	if len(result.ProvidersTried) != 0 {
		t.Fatalf("expected empty providers_tried, got %v", result.ProvidersTried)
	}
	snap := store.Snapshot()
	if snap.RecentLogs[0].Status != telemetry.StatusNoProvider {
		t.Fatalf("expected no_provider status, got %s", snap.RecentLogs[0].Status)
	}
}

// S6: scorer disabled -> tier Simple, value 0.0 regardless of input.
func TestScenario6_DisabledScorerForcesSimple(t *testing.T) {
	p1 := registry.Provider{ID: "p1", Enabled: true, Priority: 10, Models: []registry.Model{{ID: "gpt-4o"}}}
	reg := newTestRegistry(t, p1)
	fake := &fakeProvider{id: "p1", content: "ok"}
	store := telemetry.New(10)

	cfg := scorer.DefaultConfig()
	cfg.Enabled = false

	eng := New(reg, nil, store, nil, map[string]provider.Provider{"p1": fake}, cfg, DefaultRoutingConfig(), baseProfile())

	bigBlock := make([]byte, 5000)
	for i := range bigBlock {
		bigBlock[i] = 'x'
	}
	result, err := eng.Route(context.Background(), Request{
		Model:    "gpt-4o",
		Messages: []provider.Message{{Role: "user", Content: "```\n" + string(bigBlock) + "\n```"}},
	})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if result.ComplexityTier != scorer.TierSimple {
		t.Fatalf("expected tier Simple, got %s", result.ComplexityTier)
	}
	if result.Score.Value != 0.0 {
		t.Fatalf("expected score value 0.0, got %v", result.Score.Value)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cfg := DefaultRoutingConfig()
	cfg.CircuitFailureThreshold = 2
	cb := newCircuitBreaker(cfg)

	cb.recordResult(false)
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after 1 failure, got %s", cb.State())
	}
	cb.recordResult(false)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open after reaching threshold, got %s", cb.State())
	}
	if err := cb.allowRequest(); err == nil {
		t.Fatal("expected allowRequest to reject while open")
	}
}

func TestCircuitBreakerHalfOpenRecovers(t *testing.T) {
	cfg := DefaultRoutingConfig()
	cfg.CircuitFailureThreshold = 1
	cfg.CircuitResetTimeout = time.Millisecond
	cb := newCircuitBreaker(cfg)

	cb.recordResult(false)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	time.Sleep(5 * time.Millisecond)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %s", cb.State())
	}
	cb.recordResult(true)
	cb.recordResult(true)
	if cb.State() != CircuitClosed {
		t.Fatalf("expected closed after successes in half-open, got %s", cb.State())
	}
}

func TestCalculateCost(t *testing.T) {
	model := registry.Model{InputCostPer1M: 2.5, OutputCostPer1M: 10}
	got := calculateCost(model, 5, 7)
	want := 5*2.5/1e6 + 7*10/1e6
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
