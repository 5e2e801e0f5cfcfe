package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/namphamdev/claw-router/internal/cache"
	"github.com/namphamdev/claw-router/internal/engine"
	"github.com/namphamdev/claw-router/internal/registry"
	"github.com/namphamdev/claw-router/internal/scorer"
)

// Document is the on-disk configuration shape SPEC_FULL.md §6 defines:
// routing profiles, the provider catalogue, scorer tuning, and cache
// settings. A document accepted by POST /api/config replaces the registry,
// the active profile and the scorer settings without a restart; the cache
// and the provider codecs keep what was built at startup.
type Document struct {
	ActiveProfile string           `json:"active_profile"`
	Profiles      []ProfileDoc     `json:"profiles"`
	Providers     []ProviderDoc    `json:"providers"`
	Scorer        ScorerDoc        `json:"scorer"`
	Cache         CacheDoc         `json:"cache"`
}

// ProfileDoc is one named tier->model mapping.
type ProfileDoc struct {
	Name         string                    `json:"name"`
	Description  string                    `json:"description"`
	ModelMapping map[string]TierTargetDoc  `json:"model_mapping"`
}

// TierTargetDoc is one profile entry's target.
type TierTargetDoc struct {
	ModelID    string `json:"model_id"`
	ProviderID string `json:"provider_id,omitempty"`
}

// ProviderDoc is one configured provider entry, matching registry.Provider
// field-for-field at the wire level.
type ProviderDoc struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	ProviderType   string      `json:"provider_type"`
	APIKey         string      `json:"api_key"`
	Endpoint       string      `json:"endpoint"`
	Tier           string      `json:"tier"`
	Enabled        bool        `json:"enabled"`
	Priority       int         `json:"priority"`
	Models         []ModelDoc  `json:"models"`
	RateLimitRPS   float64     `json:"rate_limit_rps"`
	RateLimitBurst int         `json:"rate_limit_burst"`
}

// ModelDoc is one provider's model entry.
type ModelDoc struct {
	ID                      string  `json:"id"`
	DisplayName             string  `json:"display_name"`
	InputCostPer1M          float64 `json:"input_cost_per_1m"`
	OutputCostPer1M         float64 `json:"output_cost_per_1m"`
	ContextWindow           int     `json:"context_window"`
	SupportsVision          bool    `json:"supports_vision"`
	SupportsFunctionCalling bool    `json:"supports_function_calling"`
}

// ScorerDoc configures the complexity scorer.
type ScorerDoc struct {
	Enabled                bool               `json:"enabled"`
	Weights                map[string]float64 `json:"weights"`
	TierBoundaries         TierBoundariesDoc  `json:"tier_boundaries"`
	TokenThresholds        TokenThresholdsDoc `json:"token_thresholds"`
	ConfidenceSteepness    float64            `json:"confidence_steepness"`
	ConfidenceThreshold    float64            `json:"confidence_threshold"`
	MaxTokensForceComplex  int                `json:"max_tokens_force_complex"`
}

type TierBoundariesDoc struct {
	SimpleUpper  float64 `json:"simple_upper"`
	MediumUpper  float64 `json:"medium_upper"`
	ComplexUpper float64 `json:"complex_upper"`
}

type TokenThresholdsDoc struct {
	ShortUpper int `json:"short_upper"`
	LongLower  int `json:"long_lower"`
}

// CacheDoc configures the response cache.
type CacheDoc struct {
	Enabled    bool `json:"enabled"`
	TTLSeconds int  `json:"ttl_seconds"`
	CacheDir   string `json:"cache_dir"`
}

// documentSchema is the gojsonschema document used to validate a Document
// before it is accepted, generalizing the teacher's "validate before
// accept" instinct (seen at the HTTP-handler level in internal/httpserver)
// into a reusable schema artifact, since the config document is now a
// first-class externally-writable resource (SPEC_FULL.md §6's POST
// /api/config) rather than process-start-only env vars.
const documentSchema = `{
  "type": "object",
  "required": ["active_profile", "profiles", "providers", "scorer", "cache"],
  "properties": {
    "active_profile": {"type": "string", "minLength": 1},
    "profiles": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "model_mapping"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "model_mapping": {"type": "object"}
        }
      }
    },
    "providers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "provider_type", "models"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "provider_type": {"type": "string", "enum": ["openai", "anthropic", "google", "deepseek", "xai", "custom_openai"]},
          "priority": {"type": "integer", "minimum": 1, "maximum": 255}
        }
      }
    },
    "scorer": {"type": "object"},
    "cache": {
      "type": "object",
      "required": ["cache_dir"],
      "properties": {
        "ttl_seconds": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

// ConfigInvalid reports a document that failed schema or semantic
// validation, returned in place of a generic error so HTTP handlers can
// render it as the structured validation-error body SPEC_FULL.md's
// ambient error taxonomy expects.
type ConfigInvalid struct {
	Errors []string
}

func (e *ConfigInvalid) Error() string {
	return fmt.Sprintf("config: invalid document: %s", strings.Join(e.Errors, "; "))
}

// LoadDocument reads and validates a Document from path.
func LoadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("config: read document: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument validates raw against the schema, then unmarshals it and
// checks the semantic constraints the schema can't express (active
// profile must exist among profiles).
func ParseDocument(raw []byte) (Document, error) {
	schemaLoader := gojsonschema.NewStringLoader(documentSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return Document{}, fmt.Errorf("config: schema validation: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return Document{}, &ConfigInvalid{Errors: errs}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("config: decode document: %w", err)
	}

	if err := doc.validateSemantics(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (d Document) validateSemantics() error {
	var errs []string
	found := false
	for _, p := range d.Profiles {
		if p.Name == d.ActiveProfile {
			found = true
			break
		}
	}
	if !found {
		errs = append(errs, fmt.Sprintf("active_profile %q not found among profiles", d.ActiveProfile))
	}

	seen := make(map[string]bool, len(d.Providers))
	for _, p := range d.Providers {
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("duplicate provider id %q", p.ID))
		}
		seen[p.ID] = true
	}

	if len(errs) > 0 {
		return &ConfigInvalid{Errors: errs}
	}
	return nil
}

// Save writes doc to path atomically (write-temp, then rename), mirroring
// internal/cache.Cache.Put's write pattern so the same durability
// guarantee applies to the config document as to cache entries.
func (d Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal document: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("config: rename into place: %w", err)
	}
	return nil
}

// ToRegistryProviders converts the document's provider entries into
// registry.Provider values.
func (d Document) ToRegistryProviders() []registry.Provider {
	out := make([]registry.Provider, 0, len(d.Providers))
	for _, p := range d.Providers {
		models := make([]registry.Model, 0, len(p.Models))
		for _, m := range p.Models {
			models = append(models, registry.Model{
				ID:                    m.ID,
				DisplayName:           m.DisplayName,
				InputCostPer1M:        m.InputCostPer1M,
				OutputCostPer1M:       m.OutputCostPer1M,
				ContextWindow:         m.ContextWindow,
				SupportsVision:        m.SupportsVision,
				SupportsFunctionCalls: m.SupportsFunctionCalling,
			})
		}
		out = append(out, registry.Provider{
			ID:             p.ID,
			DisplayName:    p.Name,
			Type:           registry.ProviderType(p.ProviderType),
			APIKey:         p.APIKey,
			Endpoint:       p.Endpoint,
			Tier:           registry.ProviderTier(p.Tier),
			Enabled:        p.Enabled,
			Priority:       p.Priority,
			Models:         models,
			RateLimitRPS:   p.RateLimitRPS,
			RateLimitBurst: p.RateLimitBurst,
		})
	}
	return out
}

// ToEngineProfiles converts the document's profiles into engine.Profiles.
func (d Document) ToEngineProfiles() (engine.Profiles, error) {
	byName := make(map[string]engine.Profile, len(d.Profiles))
	for _, p := range d.Profiles {
		mapping := make(map[scorer.Tier]engine.TierTarget, len(p.ModelMapping))
		for tierName, target := range p.ModelMapping {
			mapping[scorer.Tier(tierName)] = engine.TierTarget{
				ModelID:    target.ModelID,
				ProviderID: target.ProviderID,
			}
		}
		byName[p.Name] = engine.Profile{
			Name:         p.Name,
			Description:  p.Description,
			ModelMapping: mapping,
		}
	}
	profiles := engine.Profiles{Active: d.ActiveProfile, ByName: byName}
	if _, err := profiles.ActiveProfile(); err != nil {
		return engine.Profiles{}, err
	}
	return profiles, nil
}

// ValidateRouting cross-checks a built registry and profile set against
// each other (SPEC_FULL.md §4.2): every tier target naming a concrete
// provider_id must have that provider actually carry its model_id. Targets
// with an empty ModelID (no mapping for that tier) or an empty ProviderID
// (any provider carrying the model is acceptable, resolved at request
// time by registry.Lookup) are not checked here. Called by the caller that
// builds the registry and profiles together — cmd/gateway/main.go at
// startup and httpserver's config-reload handler — since neither
// ToRegistryProviders nor ToEngineProfiles alone has both halves in hand.
func ValidateRouting(reg *registry.Registry, profiles engine.Profiles) error {
	var errs []string
	for name, profile := range profiles.ByName {
		for tier, target := range profile.ModelMapping {
			if target.ModelID == "" || target.ProviderID == "" {
				continue
			}
			if !reg.HasModel(target.ProviderID, target.ModelID) {
				errs = append(errs, fmt.Sprintf(
					"profile %q tier %q targets provider %q which does not carry model %q",
					name, tier, target.ProviderID, target.ModelID))
			}
		}
	}
	if len(errs) > 0 {
		return &ConfigInvalid{Errors: errs}
	}
	return nil
}

// ToScorerConfig converts the document's scorer section into a
// scorer.Config, falling back to scorer.DefaultConfig() defaults for any
// zero-valued weight or scalar knob, so a document that only sets "enabled"
// still produces a usable config. tier_boundaries and token_thresholds are
// taken as a whole: if any field of one is set, all of its fields come
// from the document.
func (d Document) ToScorerConfig() scorer.Config {
	cfg := scorer.DefaultConfig()
	cfg.Enabled = d.Scorer.Enabled

	if w := d.Scorer.Weights; len(w) > 0 {
		cfg.Weights = scorer.Weights{
			TokenCount:          orDefault(w["token_count"], cfg.Weights.TokenCount),
			CodePresence:        orDefault(w["code_presence"], cfg.Weights.CodePresence),
			ReasoningMarkers:    orDefault(w["reasoning_markers"], cfg.Weights.ReasoningMarkers),
			TechnicalTerms:      orDefault(w["technical_terms"], cfg.Weights.TechnicalTerms),
			CreativeMarkers:     orDefault(w["creative_markers"], cfg.Weights.CreativeMarkers),
			SimpleIndicators:    orDefault(w["simple_indicators"], cfg.Weights.SimpleIndicators),
			MultiStepPatterns:   orDefault(w["multi_step_patterns"], cfg.Weights.MultiStepPatterns),
			QuestionComplexity:  orDefault(w["question_complexity"], cfg.Weights.QuestionComplexity),
			ImperativeVerbs:     orDefault(w["imperative_verbs"], cfg.Weights.ImperativeVerbs),
			ConstraintCount:     orDefault(w["constraint_count"], cfg.Weights.ConstraintCount),
			OutputFormat:        orDefault(w["output_format"], cfg.Weights.OutputFormat),
			ReferenceComplexity: orDefault(w["reference_complexity"], cfg.Weights.ReferenceComplexity),
			NegationComplexity:  orDefault(w["negation_complexity"], cfg.Weights.NegationComplexity),
			DomainSpecificity:   orDefault(w["domain_specificity"], cfg.Weights.DomainSpecificity),
			AgenticTask:         orDefault(w["agentic_task"], cfg.Weights.AgenticTask),
		}
	}

	if d.Scorer.TierBoundaries != (TierBoundariesDoc{}) {
		cfg.TierBoundaries = scorer.TierBoundaries{
			SimpleUpper:  d.Scorer.TierBoundaries.SimpleUpper,
			MediumUpper:  d.Scorer.TierBoundaries.MediumUpper,
			ComplexUpper: d.Scorer.TierBoundaries.ComplexUpper,
		}
	}
	if d.Scorer.TokenThresholds != (TokenThresholdsDoc{}) {
		cfg.TokenThresholds = scorer.TokenThresholds{
			ShortUpper: d.Scorer.TokenThresholds.ShortUpper,
			LongLower:  d.Scorer.TokenThresholds.LongLower,
		}
	}
	if d.Scorer.ConfidenceSteepness != 0 {
		cfg.ConfidenceSteepness = d.Scorer.ConfidenceSteepness
	}
	if d.Scorer.ConfidenceThreshold != 0 {
		cfg.ConfidenceThreshold = d.Scorer.ConfidenceThreshold
	}
	if d.Scorer.MaxTokensForceComplex != 0 {
		cfg.MaxTokensForceComplex = d.Scorer.MaxTokensForceComplex
	}
	return cfg
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// ToCacheConfig converts the document's cache section into a cache.Config.
func (d Document) ToCacheConfig() cache.Config {
	return cache.Config{
		Enabled:  d.Cache.Enabled,
		TTL:      time.Duration(d.Cache.TTLSeconds) * time.Second,
		CacheDir: d.Cache.CacheDir,
	}
}
