// Package telemetry implements the Telemetry Store (SPEC_FULL.md §4.5): a
// bounded ring of RequestLog entries plus incrementally maintained
// aggregates, safe for concurrent record/snapshot.
package telemetry

import "time"

// Status is the terminal outcome of a routed request.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusNoProvider Status = "no_provider"
)

// RequestLog records the outcome of one routed request.
type RequestLog struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	Model           string    `json:"model"`
	Provider        string    `json:"provider,omitempty"`
	Status          Status    `json:"status"`
	StatusCode      int       `json:"status_code,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	InputTokens     int       `json:"input_tokens,omitempty"`
	OutputTokens    int       `json:"output_tokens,omitempty"`
	EstimatedCost   float64   `json:"estimated_cost,omitempty"`
	ComplexityTier  string    `json:"complexity_tier,omitempty"`
	ComplexityScore float64   `json:"complexity_score,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ProvidersTried  []string  `json:"providers_tried"`
}

// Totals aggregates lifetime counters across every recorded request.
type Totals struct {
	Requests      int64   `json:"requests"`
	Successful    int64   `json:"successful"`
	Failed        int64   `json:"failed"`
	NoProvider    int64   `json:"no_provider"`
	TotalCost     float64 `json:"total_cost"`
	SumDurationMs int64   `json:"sum_duration_ms"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// ProviderStats aggregates lifetime counters for one provider.
type ProviderStats struct {
	Requests      int64   `json:"requests"`
	Successful    int64   `json:"successful"`
	Failed        int64   `json:"failed"`
	TotalCost     float64 `json:"total_cost"`
	SumDurationMs int64   `json:"sum_duration_ms"`
}

// ModelStats aggregates lifetime counters for one model.
type ModelStats struct {
	Requests      int64   `json:"requests"`
	TotalCost     float64 `json:"total_cost"`
	InputTokens   int64   `json:"input_tokens"`
	OutputTokens  int64   `json:"output_tokens"`
}

// Snapshot is a consistent, point-in-time view of the store's aggregates
// and most recent logs.
type Snapshot struct {
	Totals        Totals                   `json:"totals"`
	ByProvider    map[string]ProviderStats `json:"by_provider"`
	ByModel       map[string]ModelStats    `json:"by_model"`
	TierHistogram map[string]int64         `json:"tier_histogram"`
	RecentLogs    []RequestLog             `json:"recent_logs"`
}

// Filters narrows a Recent() page.
type Filters struct {
	Status   Status
	Model    string // substring match
	Provider string // substring match
}
