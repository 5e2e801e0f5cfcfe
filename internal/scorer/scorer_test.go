package scorer

import "testing"

func TestScorePurity(t *testing.T) {
	req := Request{Messages: []Message{{Role: "user", Content: "Write a function that implements quicksort, then explain the algorithm step by step."}}}
	cfg := DefaultConfig()

	a := Score(req, cfg)
	b := Score(req, cfg)

	if a.Value != b.Value || a.Tier != b.Tier || a.Confidence != b.Confidence {
		t.Fatalf("scorer is not pure: got %+v and %+v", a, b)
	}
}

func TestScoreBounds(t *testing.T) {
	cases := []Request{
		{Messages: []Message{{Role: "user", Content: "hi"}}},
		{Messages: []Message{{Role: "user", Content: "prove the halting problem is undecidable using a diagonal argument, step by step"}}},
		{Messages: []Message{{Role: "system", Content: "you are a helpful assistant"}, {Role: "user", Content: "what is 2+2"}}},
	}
	cfg := DefaultConfig()
	for _, req := range cases {
		s := Score(req, cfg)
		if s.Value < 0 || s.Value > 1 {
			t.Errorf("value out of bounds: %v", s.Value)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Errorf("confidence out of bounds: %v", s.Confidence)
		}
	}
}

func TestTierFromValueMatchesReturnedTier(t *testing.T) {
	cfg := DefaultConfig()
	req := Request{Messages: []Message{{Role: "user", Content: "Design a distributed consensus protocol that tolerates Byzantine faults, compare it to Raft, and justify the tradeoffs."}}}
	s := Score(req, cfg)
	if got := tierFromValue(s.Value, cfg.TierBoundaries); got != s.Tier {
		t.Fatalf("tier mismatch: Score()=%s, re-derived=%s", s.Tier, got)
	}
}

func TestForceComplexOnMaxTokens(t *testing.T) {
	cfg := DefaultConfig()
	req := Request{
		Messages:  []Message{{Role: "user", Content: "hello"}},
		MaxTokens: cfg.MaxTokensForceComplex,
	}
	s := Score(req, cfg)
	if tierRank[s.Tier] < tierRank[TierComplex] {
		t.Fatalf("expected tier >= complex when max_tokens forces it, got %s", s.Tier)
	}
}

func TestDisabledScorerShortCircuits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	req := Request{Messages: []Message{{Role: "user", Content: "prove the Riemann hypothesis"}}}
	s := Score(req, cfg)
	if s.Value != 0 || s.Tier != TierSimple || s.Confidence != 0 || len(s.Features) != 0 {
		t.Fatalf("disabled scorer should return zero Score, got %+v", s)
	}
}

func TestSimpleGreetingScoresLow(t *testing.T) {
	cfg := DefaultConfig()
	req := Request{Messages: []Message{{Role: "user", Content: "hello, thanks!"}}}
	s := Score(req, cfg)
	if s.Tier != TierSimple {
		t.Fatalf("expected simple tier for greeting, got %s (value=%v)", s.Tier, s.Value)
	}
}
