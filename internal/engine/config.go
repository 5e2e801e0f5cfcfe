package engine

import (
	"fmt"
	"time"

	"github.com/namphamdev/claw-router/internal/scorer"
)

// TierTarget is one entry of a Profile's tier→model mapping.
type TierTarget struct {
	ModelID    string
	ProviderID string // empty means "any provider offering ModelID"
}

// Profile maps each complexity tier to a target model (SPEC_FULL.md §3).
type Profile struct {
	Name        string
	Description string
	ModelMapping map[scorer.Tier]TierTarget
}

// FailoverPolicy controls step 5d of Route() (SPEC_FULL.md §4.3, §7): what
// happens when a candidate returns a non-retryable 4xx.
type FailoverPolicy string

const (
	// PolicyContinue tries the next candidate (this build's default,
	// resolving SPEC_FULL.md Open Question (b)).
	PolicyContinue FailoverPolicy = "continue"
	// PolicyStrict aborts the failover loop on the first non-retryable 4xx.
	PolicyStrict FailoverPolicy = "strict"
)

// RoutingConfig bundles the engine's operational knobs.
type RoutingConfig struct {
	FailoverPolicy          FailoverPolicy
	PerAttemptTimeout       time.Duration
	TotalBudget             time.Duration
	CircuitFailureThreshold int
	CircuitResetTimeout     time.Duration
	RecentLogLimit          int // not read by Engine; telemetry.Store.Snapshot always returns up to 100 recent logs
}

// DefaultRoutingConfig matches SPEC_FULL.md §4.3/§5's stated defaults.
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		FailoverPolicy:          PolicyContinue,
		PerAttemptTimeout:       120 * time.Second,
		TotalBudget:             300 * time.Second,
		CircuitFailureThreshold: 3,
		CircuitResetTimeout:     60 * time.Second,
		RecentLogLimit:          100,
	}
}

// Profiles is a name-indexed set of Profile with one marked active.
type Profiles struct {
	Active string
	ByName map[string]Profile
}

// ActiveProfile returns the profile named by Active.
func (p Profiles) ActiveProfile() (Profile, error) {
	prof, ok := p.ByName[p.Active]
	if !ok {
		return Profile{}, fmt.Errorf("engine: active_profile %q not found", p.Active)
	}
	return prof, nil
}
