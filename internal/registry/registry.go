package registry

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"
)

// Registry is an immutable, validated catalogue of providers. A new
// Registry is constructed on every config reload and swapped in atomically
// by the caller (SPEC_FULL.md §5: immutable config snapshots).
type Registry struct {
	providers []Provider
	byID      map[string]Provider
	byModel   map[string][]Provider // model id -> providers offering it, unordered

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New validates providers and builds a Registry. Construction-time
// validation (SPEC_FULL.md §4.2): ids must be unique.
func New(providers []Provider) (*Registry, error) {
	byID := make(map[string]Provider, len(providers))
	byModel := make(map[string][]Provider)

	for _, p := range providers {
		if p.ID == "" {
			return nil, fmt.Errorf("registry: provider with empty id")
		}
		if _, exists := byID[p.ID]; exists {
			return nil, fmt.Errorf("registry: duplicate provider id %q", p.ID)
		}
		byID[p.ID] = p
		for _, m := range p.Models {
			byModel[m.ID] = append(byModel[m.ID], p)
		}
	}

	return &Registry{
		providers: providers,
		byID:      byID,
		byModel:   byModel,
		limiters:  make(map[string]*rate.Limiter),
	}, nil
}

// Lookup returns candidates serving modelID, ordered enabled-first,
// priority-descending, id-ascending on ties. If providerID is non-empty,
// only that provider is considered.
func (r *Registry) Lookup(modelID, providerID string) []Candidate {
	var pool []Provider
	if providerID != "" {
		if p, ok := r.byID[providerID]; ok {
			pool = []Provider{p}
		}
	} else {
		pool = r.byModel[modelID]
	}

	candidates := make([]Candidate, 0, len(pool))
	for _, p := range pool {
		if !p.Enabled {
			continue
		}
		model, ok := findModel(p, modelID)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{Provider: p, Model: model})
	}

	sortCandidates(candidates)
	return candidates
}

// ByTier returns all enabled providers of the given commercial tier,
// ordered enabled-first (trivially true here), priority-descending,
// id-ascending.
func (r *Registry) ByTier(tier ProviderTier) []Provider {
	out := make([]Provider, 0)
	for _, p := range r.providers {
		if p.Enabled && p.Tier == tier {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Get returns a provider by id.
func (r *Registry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// HasModel reports whether providerID is a known provider that carries
// modelID among its configured models.
func (r *Registry) HasModel(providerID, modelID string) bool {
	p, ok := r.byID[providerID]
	if !ok {
		return false
	}
	_, ok = findModel(p, modelID)
	return ok
}

// Limiter returns the per-provider outbound token bucket, creating it on
// first use from the provider's configured rate (lazily, like the
// teacher's agents.Registry.GetLimiter).
func (r *Registry) Limiter(providerID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[providerID]; ok {
		return lim
	}

	p, ok := r.byID[providerID]
	rps, burst := 10.0, 20
	if ok && p.RateLimitRPS > 0 {
		rps = p.RateLimitRPS
		burst = p.RateLimitBurst
		if burst <= 0 {
			burst = int(rps) * 2
		}
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	r.limiters[providerID] = lim
	return lim
}

// Allow checks the per-provider rate limiter without blocking.
func (r *Registry) Allow(providerID string) bool {
	return r.Limiter(providerID).Allow()
}

func findModel(p Provider, modelID string) (Model, bool) {
	for _, m := range p.Models {
		if m.ID == modelID {
			return m, true
		}
	}
	return Model{}, false
}

func sortCandidates(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Provider.Priority != c[j].Provider.Priority {
			return c[i].Provider.Priority > c[j].Provider.Priority
		}
		return c[i].Provider.ID < c[j].Provider.ID
	})
}
