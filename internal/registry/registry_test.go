package registry

import "testing"

func sampleProviders() []Provider {
	return []Provider{
		{
			ID: "openai-main", Type: ProviderOpenAI, Tier: TierPayPerRequest,
			Enabled: true, Priority: 10,
			Models: []Model{{ID: "gpt-4o-mini", InputCostPer1M: 0.15, OutputCostPer1M: 0.6}},
		},
		{
			ID: "anthropic-main", Type: ProviderAnthropic, Tier: TierSubscription,
			Enabled: true, Priority: 20,
			Models: []Model{{ID: "claude-haiku", InputCostPer1M: 0.25, OutputCostPer1M: 1.25}},
		},
		{
			ID: "anthropic-backup", Type: ProviderAnthropic, Tier: TierPayPerRequest,
			Enabled: true, Priority: 20,
			Models: []Model{{ID: "claude-haiku", InputCostPer1M: 0.25, OutputCostPer1M: 1.25}},
		},
		{
			ID: "disabled-provider", Type: ProviderXAI, Tier: TierCheap,
			Enabled: false, Priority: 99,
			Models: []Model{{ID: "claude-haiku"}},
		},
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	providers := sampleProviders()
	providers = append(providers, providers[0])
	if _, err := New(providers); err == nil {
		t.Fatal("expected error for duplicate provider id")
	}
}

func TestLookupOrdering(t *testing.T) {
	reg, err := New(sampleProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	candidates := reg.Lookup("claude-haiku", "")
	if len(candidates) != 2 {
		t.Fatalf("expected 2 enabled candidates (disabled-provider excluded), got %d", len(candidates))
	}
	// Equal priority (20, 20) -> ascending id order.
	if candidates[0].Provider.ID != "anthropic-backup" || candidates[1].Provider.ID != "anthropic-main" {
		t.Fatalf("expected id-ascending tiebreak, got order %s, %s", candidates[0].Provider.ID, candidates[1].Provider.ID)
	}
}

func TestLookupHonorsProviderID(t *testing.T) {
	reg, err := New(sampleProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	candidates := reg.Lookup("claude-haiku", "anthropic-main")
	if len(candidates) != 1 || candidates[0].Provider.ID != "anthropic-main" {
		t.Fatalf("expected exactly anthropic-main, got %+v", candidates)
	}
}

func TestLookupUnknownModelEmpty(t *testing.T) {
	reg, err := New(sampleProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := reg.Lookup("does-not-exist", ""); len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", got)
	}
}

func TestByTierOrdering(t *testing.T) {
	reg, err := New(sampleProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	providers := reg.ByTier(TierPayPerRequest)
	if len(providers) != 2 {
		t.Fatalf("expected 2 pay-per-request providers, got %d", len(providers))
	}
	if providers[0].ID != "openai-main" {
		t.Fatalf("expected priority-descending order, got first=%s", providers[0].ID)
	}
}

func TestRateLimiterLazyCreation(t *testing.T) {
	reg, err := New(sampleProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !reg.Allow("openai-main") {
		t.Fatal("expected first request to be allowed")
	}
}

func TestHasModel(t *testing.T) {
	reg, err := New(sampleProviders())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !reg.HasModel("openai-main", "gpt-4o-mini") {
		t.Fatal("expected openai-main to carry gpt-4o-mini")
	}
	if reg.HasModel("openai-main", "claude-haiku") {
		t.Fatal("openai-main does not carry claude-haiku")
	}
	if reg.HasModel("no-such-provider", "gpt-4o-mini") {
		t.Fatal("expected false for unknown provider id")
	}
}
