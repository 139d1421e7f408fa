package collect

import (
	"sync"
	"sync/atomic"
)

// Stats accumulates counters across collection runs.
type Stats struct {
	attempts        atomic.Int64
	successes       atomic.Int64
	duplicates      atomic.Int64
	validationSkips atomic.Int64
	authErrors      atomic.Int64
	transportErrors atomic.Int64
	parseErrors     atomic.Int64

	mu            sync.Mutex
	strategyUsage map[string]int64
}

// StatsSnapshot is a point-in-time copy of the counters, embedded in every
// CollectionResult.
type StatsSnapshot struct {
	Attempts        int64            `json:"attempts"`
	Successes       int64            `json:"successes"`
	Duplicates      int64            `json:"duplicates"`
	ValidationSkips int64            `json:"validation_skips"`
	AuthErrors      int64            `json:"auth_errors"`
	TransportErrors int64            `json:"transport_errors"`
	ParseErrors     int64            `json:"parse_errors"`
	StrategyUsage   map[string]int64 `json:"strategy_usage"`
}

func NewStats() *Stats {
	return &Stats{strategyUsage: make(map[string]int64)}
}

func (s *Stats) RecordAttempt()              { s.attempts.Add(1) }
func (s *Stats) RecordSuccess()              { s.successes.Add(1) }
func (s *Stats) RecordDuplicates(n int)      { s.duplicates.Add(int64(n)) }
func (s *Stats) RecordValidationSkips(n int) { s.validationSkips.Add(int64(n)) }

func (s *Stats) RecordError(kind ErrorKind) {
	switch kind {
	case KindAuthentication:
		s.authErrors.Add(1)
	case KindTransport:
		s.transportErrors.Add(1)
	default:
		s.parseErrors.Add(1)
	}
}

func (s *Stats) RecordStrategyUse(name string) {
	s.mu.Lock()
	s.strategyUsage[name]++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	usage := make(map[string]int64, len(s.strategyUsage))
	for name, count := range s.strategyUsage {
		usage[name] = count
	}
	s.mu.Unlock()

	return StatsSnapshot{
		Attempts:        s.attempts.Load(),
		Successes:       s.successes.Load(),
		Duplicates:      s.duplicates.Load(),
		ValidationSkips: s.validationSkips.Load(),
		AuthErrors:      s.authErrors.Load(),
		TransportErrors: s.transportErrors.Load(),
		ParseErrors:     s.parseErrors.Load(),
		StrategyUsage:   usage,
	}
}
