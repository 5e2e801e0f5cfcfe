package telemetry

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const defaultRingCapacity = 1000

// Store is a concurrency-safe ring buffer of RequestLog entries with
// incrementally maintained aggregates. A single mutex guards the ring plus
// every counter map; the lock window is tiny (append + a handful of
// increments), following the teacher's CostTracker discipline
// (internal/llm/cost_tracker.go) generalized from a handful of scalar
// counters to per-provider/per-model maps.
type Store struct {
	mu       sync.Mutex
	capacity int
	ring     []RequestLog // oldest-first; bounded at capacity
	head     int          // index of the oldest entry once the ring has wrapped

	totals     Totals
	byProvider map[string]ProviderStats
	byModel    map[string]ModelStats
	tierHist   map[string]int64
}

// New constructs a Store with the given ring capacity. capacity<=0 uses
// the spec's default of 1000.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultRingCapacity
	}
	return &Store{
		capacity:   capacity,
		ring:       make([]RequestLog, 0, capacity),
		byProvider: make(map[string]ProviderStats),
		byModel:    make(map[string]ModelStats),
		tierHist:   make(map[string]int64),
	}
}

// NewID generates a RequestLog identifier. Exposed so callers (the routing
// engine) can assign an id before the request completes, e.g. for
// cross-referencing logs emitted during the request with the final entry.
func NewID() string {
	return uuid.NewString()
}

// Record appends log to the ring (evicting the oldest entry past
// capacity) and folds its counters into the aggregates. Aggregates are
// lifetime totals and are not adjusted on eviction (SPEC_FULL.md §4.5).
func (s *Store) Record(log RequestLog) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.ring) < s.capacity {
		s.ring = append(s.ring, log)
	} else {
		s.ring[s.head] = log
		s.head = (s.head + 1) % s.capacity
	}

	s.totals.Requests++
	switch log.Status {
	case StatusSuccess:
		s.totals.Successful++
	case StatusNoProvider:
		s.totals.NoProvider++
	default:
		s.totals.Failed++
	}
	s.totals.TotalCost += log.EstimatedCost
	s.totals.SumDurationMs += log.DurationMs
	if s.totals.Requests > 0 {
		s.totals.AvgDurationMs = float64(s.totals.SumDurationMs) / float64(s.totals.Requests)
	}

	if log.Provider != "" {
		ps := s.byProvider[log.Provider]
		ps.Requests++
		if log.Status == StatusSuccess {
			ps.Successful++
		} else {
			ps.Failed++
		}
		ps.TotalCost += log.EstimatedCost
		ps.SumDurationMs += log.DurationMs
		s.byProvider[log.Provider] = ps
	}

	if log.Model != "" {
		ms := s.byModel[log.Model]
		ms.Requests++
		ms.TotalCost += log.EstimatedCost
		ms.InputTokens += int64(log.InputTokens)
		ms.OutputTokens += int64(log.OutputTokens)
		s.byModel[log.Model] = ms
	}

	if log.ComplexityTier != "" {
		s.tierHist[log.ComplexityTier]++
	}
}

// Snapshot returns a deep copy of the current aggregates plus the most
// recent N logs (default 100), in newest-first order.
func (s *Store) Snapshot() Snapshot {
	return s.snapshot(100)
}

// SnapshotN is like Snapshot but lets the caller choose how many recent
// logs to include.
func (s *Store) SnapshotN(recentLimit int) Snapshot {
	return s.snapshot(recentLimit)
}

func (s *Store) snapshot(recentLimit int) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProvider := make(map[string]ProviderStats, len(s.byProvider))
	for k, v := range s.byProvider {
		byProvider[k] = v
	}
	byModel := make(map[string]ModelStats, len(s.byModel))
	for k, v := range s.byModel {
		byModel[k] = v
	}
	tierHist := make(map[string]int64, len(s.tierHist))
	for k, v := range s.tierHist {
		tierHist[k] = v
	}

	ordered := s.orderedLocked()
	if recentLimit > len(ordered) {
		recentLimit = len(ordered)
	}
	recent := make([]RequestLog, recentLimit)
	for i := 0; i < recentLimit; i++ {
		recent[i] = ordered[len(ordered)-1-i]
	}

	return Snapshot{
		Totals:        s.totals,
		ByProvider:    byProvider,
		ByModel:       byModel,
		TierHistogram: tierHist,
		RecentLogs:    recent,
	}
}

// orderedLocked returns the ring contents in chronological (oldest-first)
// order. Caller must hold s.mu.
func (s *Store) orderedLocked() []RequestLog {
	if len(s.ring) < s.capacity {
		out := make([]RequestLog, len(s.ring))
		copy(out, s.ring)
		return out
	}
	out := make([]RequestLog, 0, s.capacity)
	out = append(out, s.ring[s.head:]...)
	out = append(out, s.ring[:s.head]...)
	return out
}

// Recent returns a newest-first page of logs matching filters, honoring
// limit/offset over the filtered result set.
func (s *Store) Recent(limit, offset int, filters Filters) []RequestLog {
	s.mu.Lock()
	ordered := s.orderedLocked()
	s.mu.Unlock()

	matched := make([]RequestLog, 0, len(ordered))
	for i := len(ordered) - 1; i >= 0; i-- {
		log := ordered[i]
		if filters.Status != "" && log.Status != filters.Status {
			continue
		}
		if filters.Model != "" && !strings.Contains(log.Model, filters.Model) {
			continue
		}
		if filters.Provider != "" && !strings.Contains(log.Provider, filters.Provider) {
			continue
		}
		matched = append(matched, log)
	}

	if offset >= len(matched) {
		return []RequestLog{}
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end]
}
