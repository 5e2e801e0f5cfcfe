// Package scorer implements the complexity scorer: a deterministic,
// keyword-weighted function from request text to a tier and confidence.
package scorer

import (
	"math"
)

// Tier is the discrete complexity bucket a Score resolves to.
type Tier string

const (
	TierSimple    Tier = "simple"
	TierMedium    Tier = "medium"
	TierComplex   Tier = "complex"
	TierReasoning Tier = "reasoning"
)

// Message mirrors the role/content shape of an inbound chat message.
// Defined locally (rather than importing internal/provider) to keep the
// scorer free of any dependency beyond plain text in, Score out.
type Message struct {
	Role    string
	Content string
}

// Request is the scorer's view of an inbound completion request.
type Request struct {
	Messages  []Message
	MaxTokens int
}

// Score is the result of scoring a Request.
type Score struct {
	Value      float64
	Tier       Tier
	Confidence float64
	Features   map[string]float64
}

// Weights assigns an aggregation weight to each of the 15 scorer features.
type Weights struct {
	TokenCount          float64
	CodePresence        float64
	ReasoningMarkers    float64
	TechnicalTerms      float64
	CreativeMarkers     float64
	SimpleIndicators    float64
	MultiStepPatterns   float64
	QuestionComplexity  float64
	ImperativeVerbs     float64
	ConstraintCount     float64
	OutputFormat        float64
	ReferenceComplexity float64
	NegationComplexity  float64
	DomainSpecificity   float64
	AgenticTask         float64
}

// DefaultWeights returns the weights this build ships with. Operators may
// override any subset via the config document.
func DefaultWeights() Weights {
	return Weights{
		TokenCount:          0.18,
		CodePresence:        0.16,
		ReasoningMarkers:    0.14,
		TechnicalTerms:      0.10,
		CreativeMarkers:     0.05,
		SimpleIndicators:    0.20,
		MultiStepPatterns:   0.10,
		QuestionComplexity:  0.04,
		ImperativeVerbs:     0.04,
		ConstraintCount:     0.06,
		OutputFormat:        0.05,
		ReferenceComplexity: 0.05,
		NegationComplexity:  0.04,
		DomainSpecificity:   0.08,
		AgenticTask:         0.12,
	}
}

// TierBoundaries defines the raw-score cut points separating tiers.
type TierBoundaries struct {
	SimpleUpper  float64
	MediumUpper  float64
	ComplexUpper float64
}

// DefaultTierBoundaries mirrors the teacher's own rough complexity bands,
// widened across the 4-tier output this spec requires.
func DefaultTierBoundaries() TierBoundaries {
	return TierBoundaries{
		SimpleUpper:  0.25,
		MediumUpper:  0.50,
		ComplexUpper: 0.75,
	}
}

// TokenThresholds controls the token_count feature's piecewise ramp.
type TokenThresholds struct {
	ShortUpper int // approx-token count below which token_count is minimal
	LongLower  int // approx-token count above which token_count saturates
}

// DefaultTokenThresholds matches the teacher's char-count bands
// (complexity_router.go assessComplexity), converted from chars to an
// approximate token count (chars/4).
func DefaultTokenThresholds() TokenThresholds {
	return TokenThresholds{
		ShortUpper: 500,  // ≈2000 chars
		LongLower:  2000, // ≈8000 chars
	}
}

// Config bundles the scorer's tunable parameters, the in-memory mirror of
// the config document's "scorer" object (SPEC_FULL.md §6).
type Config struct {
	Enabled               bool
	Weights               Weights
	TierBoundaries        TierBoundaries
	TokenThresholds       TokenThresholds
	ConfidenceSteepness   float64
	ConfidenceThreshold   float64
	MaxTokensForceComplex int
}

// DefaultConfig returns a fully populated, enabled scorer configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Weights:               DefaultWeights(),
		TierBoundaries:        DefaultTierBoundaries(),
		TokenThresholds:       DefaultTokenThresholds(),
		ConfidenceSteepness:   8.0,
		ConfidenceThreshold:   0.6,
		MaxTokensForceComplex: 4096,
	}
}

// Score computes a Score for req under cfg. Pure: no I/O, no mutation of
// shared state, deterministic for a fixed (req, cfg).
func Score(req Request, cfg Config) Score {
	if !cfg.Enabled {
		return Score{Value: 0, Tier: TierSimple, Confidence: 0, Features: map[string]float64{}}
	}

	text := joinContent(req.Messages)
	features := computeFeatures(text, req, cfg.TokenThresholds)

	w := cfg.Weights
	raw := w.TokenCount*features["token_count"] +
		w.CodePresence*features["code_presence"] +
		w.ReasoningMarkers*features["reasoning_markers"] +
		w.TechnicalTerms*features["technical_terms"] +
		w.CreativeMarkers*features["creative_markers"] +
		w.MultiStepPatterns*features["multi_step_patterns"] +
		w.QuestionComplexity*features["question_complexity"] +
		w.ImperativeVerbs*features["imperative_verbs"] +
		w.ConstraintCount*features["constraint_count"] +
		w.OutputFormat*features["output_format"] +
		w.ReferenceComplexity*features["reference_complexity"] +
		w.NegationComplexity*features["negation_complexity"] +
		w.DomainSpecificity*features["domain_specificity"] +
		w.AgenticTask*features["agentic_task"] -
		w.SimpleIndicators*features["simple_indicators"]

	raw = clamp01(raw)
	tier := tierFromValue(raw, cfg.TierBoundaries)

	if req.MaxTokens >= cfg.MaxTokensForceComplex && cfg.MaxTokensForceComplex > 0 {
		tier = maxTier(tier, TierComplex)
	}

	confidence := confidenceFor(raw, cfg.TierBoundaries, cfg.ConfidenceSteepness)

	return Score{
		Value:      raw,
		Tier:       tier,
		Confidence: confidence,
		Features:   features,
	}
}

func tierFromValue(value float64, b TierBoundaries) Tier {
	switch {
	case value <= b.SimpleUpper:
		return TierSimple
	case value <= b.MediumUpper:
		return TierMedium
	case value <= b.ComplexUpper:
		return TierComplex
	default:
		return TierReasoning
	}
}

var tierRank = map[Tier]int{
	TierSimple:    0,
	TierMedium:    1,
	TierComplex:   2,
	TierReasoning: 3,
}

func maxTier(a, b Tier) Tier {
	if tierRank[a] >= tierRank[b] {
		return a
	}
	return b
}

// confidenceFor reports the logistic of steepness times the distance from
// value to the nearest tier boundary: 0.5 right on a boundary, rising
// toward 1 the farther value sits from every boundary.
func confidenceFor(value float64, b TierBoundaries, steepness float64) float64 {
	boundaries := []float64{b.SimpleUpper, b.MediumUpper, b.ComplexUpper}
	minDist := math.Inf(1)
	for _, bound := range boundaries {
		d := math.Abs(value - bound)
		if d < minDist {
			minDist = d
		}
	}
	if steepness <= 0 {
		steepness = 1
	}
	c := 1 / (1 + math.Exp(-steepness*minDist))
	return clamp01(c)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func joinContent(messages []Message) string {
	total := 0
	for _, m := range messages {
		total += len(m.Content) + 1
	}
	buf := make([]byte, 0, total)
	for _, m := range messages {
		buf = append(buf, m.Content...)
		buf = append(buf, '\n')
	}
	return string(buf)
}
