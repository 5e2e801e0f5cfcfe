// Package engine implements the routing engine (SPEC_FULL.md §4.3): score
// the request, resolve a tier target against the active profile, enumerate
// candidates from the provider registry, serve from cache where possible,
// and fail over across candidates under per-provider circuit breakers,
// recording one telemetry entry per routed request.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/namphamdev/claw-router/internal/cache"
	"github.com/namphamdev/claw-router/internal/provider"
	"github.com/namphamdev/claw-router/internal/registry"
	"github.com/namphamdev/claw-router/internal/scorer"
	"github.com/namphamdev/claw-router/internal/telemetry"
)

// ErrNoProvider is returned when resolution yields no usable candidate,
// or every candidate is exhausted without success.
var ErrNoProvider = errors.New("engine: no provider available")

// Request is the engine's view of an inbound chat-completion request.
type Request struct {
	Model       string // explicit model id; empty means "route by complexity"
	ProviderID  string // explicit provider id; empty means "any"
	Messages    []provider.Message
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
	Extra       map[string]any
}

// Result is what Route returns to its HTTP caller.
type Result struct {
	Response       provider.CompletionResponse
	CacheHit       bool
	ComplexityTier scorer.Tier
	Score          scorer.Score
	ProvidersTried []string
}

// Engine ties the scorer, registry, cache, and telemetry store together
// behind a single Route entry point, generalized from the teacher's
// CloudOnlyRouter.Complete (internal/llm/cloud_router.go), whose
// cache-check -> select-provider -> execute ordering this keeps, extended
// with tier resolution and multi-candidate failover.
type Engine struct {
	Registry  *registry.Registry
	Cache     *cache.Cache // nil disables caching
	Telemetry *telemetry.Store
	Metrics   *Metrics // nil disables metrics recording
	Providers map[string]provider.Provider // provider id -> codec

	ScorerConfig  scorer.Config
	RoutingConfig RoutingConfig
	Profile       Profile

	breakers *breakers
}

// New constructs an Engine. Profile comes from a loaded config.Document
// (internal/config); the document has no routing section, so RoutingConfig
// is supplied by the caller (cmd/gateway passes DefaultRoutingConfig()).
// Providers is built by the caller from each registry.Provider's Type.
func New(reg *registry.Registry, cch *cache.Cache, store *telemetry.Store, metrics *Metrics, providers map[string]provider.Provider, scorerCfg scorer.Config, routingCfg RoutingConfig, profile Profile) *Engine {
	return &Engine{
		Registry:      reg,
		Cache:         cch,
		Telemetry:     store,
		Metrics:       metrics,
		Providers:     providers,
		ScorerConfig:  scorerCfg,
		RoutingConfig: routingCfg,
		Profile:       profile,
		breakers:      newBreakers(routingCfg),
	}
}

// Route executes SPEC_FULL.md §4.3's 6-step contract.
func (e *Engine) Route(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	// Step 1: score.
	score := scorer.Score(scorer.Request{
		Messages:  toScorerMessages(req.Messages),
		MaxTokens: req.MaxTokens,
	}, e.ScorerConfig)

	// Step 2: resolve a target (model, provider) from the active profile's
	// tier mapping, falling back to the request's own model/provider only
	// when that tier carries no mapping (SPEC_FULL.md §4.3 step 2) — the
	// profile's complexity-based routing takes precedence over whatever
	// model the client happened to name.
	targetModel, targetProvider := req.Model, req.ProviderID
	if target, ok := e.Profile.ModelMapping[score.Tier]; ok && target.ModelID != "" {
		targetModel, targetProvider = target.ModelID, target.ProviderID
	} else if targetModel == "" {
		return Result{}, fmt.Errorf("%w: no tier mapping for %s", ErrNoProvider, score.Tier)
	}

	// Step 3: enumerate candidates, priority-ordered.
	candidates := e.Registry.Lookup(targetModel, targetProvider)
	if len(candidates) == 0 {
		e.recordTelemetry(req, score, start, telemetry.StatusNoProvider, "", 0, 0, 0, nil, "no candidates for model "+targetModel)
		return Result{}, fmt.Errorf("%w: model %s", ErrNoProvider, targetModel)
	}

	// Step 4: cache lookup, keyed on the resolved target model so a cache
	// hit is independent of which candidate would have served it live.
	fp := fingerprintFor(targetModel, req)
	if e.Cache != nil {
		if body, hit := e.Cache.Get(fp); hit {
			if e.Metrics != nil {
				e.Metrics.UpdateCacheHitRate(true)
			}
			resp, err := decodeCachedResponse(body, targetModel)
			if err == nil {
				resp.Provider = candidates[0].Provider.ID
				e.recordTelemetry(req, score, start, telemetry.StatusSuccess, resp.Provider, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, 0, nil, "")
				return Result{Response: resp, CacheHit: true, ComplexityTier: score.Tier, Score: score}, nil
			}
		} else if e.Metrics != nil {
			e.Metrics.UpdateCacheHitRate(false)
		}
	}

	// Step 5: sequential failover across candidates.
	var tried []string
	var lastErr error
	budgetDeadline := start.Add(e.totalBudget())

	for _, cand := range candidates {
		if ctx.Err() != nil {
			lastErr = fmt.Errorf("engine: client cancelled: %w", ctx.Err())
			break
		}
		if time.Now().After(budgetDeadline) {
			lastErr = fmt.Errorf("engine: total routing budget exceeded")
			break
		}

		providerID := cand.Provider.ID
		cb := e.breakers.get(providerID)
		if err := cb.allowRequest(); err != nil {
			tried = append(tried, providerID)
			lastErr = err
			continue
		}
		if !e.Registry.Allow(providerID) {
			tried = append(tried, providerID)
			lastErr = fmt.Errorf("engine: provider %s rate limited", providerID)
			continue
		}

		codec, ok := e.Providers[providerID]
		if !ok {
			tried = append(tried, providerID)
			lastErr = fmt.Errorf("engine: no codec registered for provider %s", providerID)
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, e.perAttemptTimeout())
		attemptStart := time.Now()
		resp, err := codec.Complete(attemptCtx, provider.CompletionRequest{
			Model:       cand.Model.ID,
			Messages:    req.Messages,
			Temperature: req.Temperature,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
			Stop:        req.Stop,
			Extra:       req.Extra,
		})
		cancel()
		tried = append(tried, providerID)

		if e.Metrics != nil {
			e.Metrics.RecordCircuitState(providerID, cb.State())
		}

		if err != nil {
			cb.recordResult(false)
			lastErr = err
			if e.Metrics != nil {
				e.Metrics.RecordRequest(providerID, cand.Model.ID, "error", time.Since(attemptStart).Seconds())
				e.Metrics.RecordProviderError(providerID, errorReason(err))
			}
			if !isRetryable(err) && e.RoutingConfig.FailoverPolicy == PolicyStrict {
				break
			}
			continue
		}

		cb.recordResult(true)
		resp.Provider = providerID
		cost := calculateCost(cand.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

		if e.Metrics != nil {
			e.Metrics.RecordRequest(providerID, cand.Model.ID, "success", time.Since(attemptStart).Seconds())
			e.Metrics.RecordCost(providerID, cand.Model.ID, cost)
			e.Metrics.RecordTokens(providerID, cand.Model.ID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}

		if e.Cache != nil && len(resp.Raw) > 0 {
			_ = e.Cache.Put(fp, json.RawMessage(resp.Raw))
		}

		e.recordTelemetry(req, score, start, telemetry.StatusSuccess, providerID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost, tried, "")
		return Result{Response: resp, ComplexityTier: score.Tier, Score: score, ProvidersTried: tried}, nil
	}

	msg := ""
	if lastErr != nil {
		msg = lastErr.Error()
	}
	e.recordTelemetry(req, score, start, telemetry.StatusError, "", 0, 0, 0, tried, msg)
	if lastErr != nil {
		return Result{ComplexityTier: score.Tier, Score: score, ProvidersTried: tried}, fmt.Errorf("%w: %w", ErrNoProvider, lastErr)
	}
	return Result{ComplexityTier: score.Tier, Score: score, ProvidersTried: tried}, ErrNoProvider
}

func (e *Engine) perAttemptTimeout() time.Duration {
	if e.RoutingConfig.PerAttemptTimeout > 0 {
		return e.RoutingConfig.PerAttemptTimeout
	}
	return 120 * time.Second
}

func (e *Engine) totalBudget() time.Duration {
	if e.RoutingConfig.TotalBudget > 0 {
		return e.RoutingConfig.TotalBudget
	}
	return 300 * time.Second
}

func (e *Engine) recordTelemetry(req Request, score scorer.Score, start time.Time, status telemetry.Status, providerID string, inTok, outTok int, cost float64, tried []string, errMsg string) {
	if e.Telemetry == nil {
		return
	}
	e.Telemetry.Record(telemetry.RequestLog{
		ID:              telemetry.NewID(),
		Timestamp:       start,
		Model:           req.Model,
		Provider:        providerID,
		Status:          status,
		DurationMs:      time.Since(start).Milliseconds(),
		InputTokens:     inTok,
		OutputTokens:    outTok,
		EstimatedCost:   cost,
		ComplexityTier:  string(score.Tier),
		ComplexityScore: score.Value,
		ErrorMessage:    errMsg,
		ProvidersTried:  tried,
	})
}

func toScorerMessages(messages []provider.Message) []scorer.Message {
	out := make([]scorer.Message, len(messages))
	for i, m := range messages {
		out[i] = scorer.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

func fingerprintFor(targetModel string, req Request) string {
	msgs := make([]cache.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = cache.Message{Role: m.Role, Content: m.Content}
	}
	params := cache.OutputParams{Stop: req.Stop}
	if req.Temperature != 0 {
		t := req.Temperature
		params.Temperature = &t
	}
	if req.TopP != 0 {
		tp := req.TopP
		params.TopP = &tp
	}
	if req.MaxTokens != 0 {
		mt := req.MaxTokens
		params.MaxTokens = &mt
	}
	if rf, ok := req.Extra["response_format"].(map[string]any); ok {
		params.ResponseFormat = rf
	}
	if tc, ok := req.Extra["tool_choice"]; ok {
		params.ToolChoice = tc
	}
	if tools, ok := req.Extra["tools"].([]map[string]any); ok {
		params.Tools = tools
	}
	return cache.Fingerprint(targetModel, msgs, params)
}

func decodeCachedResponse(body json.RawMessage, model string) (provider.CompletionResponse, error) {
	var resp provider.CompletionResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Content != "" {
		resp.Raw = body
		return resp, nil
	}
	// Cached body is the provider's raw upstream JSON, not our own
	// CompletionResponse shape; surface it verbatim and let the HTTP layer
	// pass it through, content left blank since callers use Raw directly.
	return provider.CompletionResponse{Model: model, Raw: body}, nil
}

func isRetryable(err error) bool {
	var upstream *provider.UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable()
	}
	// Unclassified errors (context deadlines, SDK-native errors such as
	// go-openai's APIError, network failures) are treated as retryable so
	// a transient blip on one candidate doesn't abort the whole failover
	// loop under the default continue policy.
	return true
}

func errorReason(err error) string {
	var upstream *provider.UpstreamError
	if errors.As(err, &upstream) {
		return fmt.Sprintf("status_%d", upstream.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}
