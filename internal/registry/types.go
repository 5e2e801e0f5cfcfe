// Package registry holds the catalogue of configured providers and models:
// construction-time validation, priority-ordered lookup, and per-provider
// outbound rate limiting.
package registry

// ProviderType names a pluggable provider codec.
type ProviderType string

const (
	ProviderOpenAI       ProviderType = "openai"
	ProviderAnthropic    ProviderType = "anthropic"
	ProviderGoogle       ProviderType = "google"
	ProviderDeepSeek     ProviderType = "deepseek"
	ProviderXAI          ProviderType = "xai"
	ProviderCustomOpenAI ProviderType = "custom_openai"
)

// ProviderTier is the commercial category used for display/filtering.
type ProviderTier string

const (
	TierSubscription  ProviderTier = "subscription"
	TierCheap         ProviderTier = "cheap"
	TierFree          ProviderTier = "free"
	TierPayPerRequest ProviderTier = "pay_per_request"
)

// Model describes one model a provider exposes, with its pricing and
// capability metadata.
type Model struct {
	ID                    string  `json:"id"`
	DisplayName           string  `json:"display_name"`
	InputCostPer1M        float64 `json:"input_cost_per_1m"`
	OutputCostPer1M       float64 `json:"output_cost_per_1m"`
	ContextWindow         int     `json:"context_window"`
	SupportsVision        bool    `json:"supports_vision"`
	SupportsFunctionCalls bool    `json:"supports_function_calling"`
}

// Provider describes one configured upstream provider entry.
type Provider struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"name"`
	Type        ProviderType `json:"provider_type"`
	APIKey      string       `json:"api_key"`
	Endpoint    string       `json:"endpoint"`
	Tier        ProviderTier `json:"tier"`
	Enabled     bool         `json:"enabled"`
	Priority    int          `json:"priority"` // 1..255, higher tried first
	Models      []Model      `json:"models"`

	// RateLimitRPS/RateLimitBurst configure the per-provider outbound
	// token bucket (internal/registry generalizes the teacher's per-agent
	// limiter, internal/agents/registry.go, to per-provider throttling).
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`
}

// Candidate pairs a Provider with the specific Model a request should use.
type Candidate struct {
	Provider Provider
	Model    Model
}
