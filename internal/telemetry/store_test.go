package telemetry

import "testing"

func TestRecordAndSnapshotAggregates(t *testing.T) {
	s := New(10)
	s.Record(RequestLog{Model: "gpt-4o-mini", Provider: "openai-main", Status: StatusSuccess, DurationMs: 100, EstimatedCost: 0.01, ComplexityTier: "simple"})
	s.Record(RequestLog{Model: "gpt-4o-mini", Provider: "openai-main", Status: StatusError, DurationMs: 50, ComplexityTier: "medium"})
	s.Record(RequestLog{Status: StatusNoProvider})

	snap := s.Snapshot()
	if snap.Totals.Requests != 3 {
		t.Fatalf("expected 3 requests, got %d", snap.Totals.Requests)
	}
	if snap.Totals.Successful+snap.Totals.Failed+snap.Totals.NoProvider != snap.Totals.Requests {
		t.Fatalf("status counts don't sum to requests: %+v", snap.Totals)
	}
	if snap.Totals.SumDurationMs != 150 {
		t.Fatalf("expected sum duration 150, got %d", snap.Totals.SumDurationMs)
	}
	wantAvg := 150.0 / 3.0
	if snap.Totals.AvgDurationMs != wantAvg {
		t.Fatalf("expected avg duration %v, got %v", wantAvg, snap.Totals.AvgDurationMs)
	}
	if snap.ByProvider["openai-main"].Requests != 2 {
		t.Fatalf("expected 2 requests for openai-main, got %d", snap.ByProvider["openai-main"].Requests)
	}
	if snap.TierHistogram["simple"] != 1 || snap.TierHistogram["medium"] != 1 {
		t.Fatalf("unexpected tier histogram: %+v", snap.TierHistogram)
	}
}

func TestRingEvictionKeepsAggregatesButBoundsLogs(t *testing.T) {
	s := New(2)
	s.Record(RequestLog{ID: "1", Status: StatusSuccess})
	s.Record(RequestLog{ID: "2", Status: StatusSuccess})
	s.Record(RequestLog{ID: "3", Status: StatusSuccess})

	snap := s.Snapshot()
	if snap.Totals.Requests != 3 {
		t.Fatalf("aggregates must not be adjusted on eviction, expected 3, got %d", snap.Totals.Requests)
	}
	if len(snap.RecentLogs) != 2 {
		t.Fatalf("expected ring bounded to capacity 2, got %d", len(snap.RecentLogs))
	}
	if snap.RecentLogs[0].ID != "3" || snap.RecentLogs[1].ID != "2" {
		t.Fatalf("expected newest-first order [3,2], got %v", []string{snap.RecentLogs[0].ID, snap.RecentLogs[1].ID})
	}
}

func TestRecentFiltersAndPaginates(t *testing.T) {
	s := New(10)
	s.Record(RequestLog{ID: "1", Model: "gpt-4o-mini", Provider: "openai-main", Status: StatusSuccess})
	s.Record(RequestLog{ID: "2", Model: "claude-haiku", Provider: "anthropic-main", Status: StatusError})
	s.Record(RequestLog{ID: "3", Model: "gpt-4o-mini", Provider: "openai-main", Status: StatusSuccess})

	page := s.Recent(10, 0, Filters{Model: "gpt-4o-mini"})
	if len(page) != 2 {
		t.Fatalf("expected 2 matches for gpt-4o-mini, got %d", len(page))
	}
	if page[0].ID != "3" {
		t.Fatalf("expected newest-first, got first id %s", page[0].ID)
	}

	page2 := s.Recent(1, 1, Filters{Model: "gpt-4o-mini"})
	if len(page2) != 1 || page2[0].ID != "1" {
		t.Fatalf("expected offset to skip id 3, got %+v", page2)
	}
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatal("expected unique ids")
	}
}
