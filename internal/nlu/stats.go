package nlu

import (
	"sync"
	"sync/atomic"
)

const recentErrorLimit = 10

// Stats counts parse outcomes across calls.
type Stats struct {
	totalAttempts    atomic.Int64
	successfulParses atomic.Int64
	fallbackUsed     atomic.Int64

	mu           sync.Mutex
	recentErrors []string
}

type StatsSnapshot struct {
	TotalAttempts    int64    `json:"total_attempts"`
	SuccessfulParses int64    `json:"successful_parses"`
	FallbackUsed     int64    `json:"fallback_used"`
	SuccessRate      float64  `json:"success_rate"`
	RecentErrors     []string `json:"recent_errors"`
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) record(meta ParsingMetadata) {
	s.totalAttempts.Add(1)
	switch {
	case meta.StrategyUsed == StrategyStructured && meta.Status == StatusSuccess:
		s.successfulParses.Add(1)
	case meta.StrategyUsed != StrategyNone:
		s.fallbackUsed.Add(1)
	}

	if meta.Status == StatusFormatError || meta.Status == StatusParseError {
		msg := meta.Error
		if msg == "" {
			msg = string(meta.Status)
		}
		s.mu.Lock()
		s.recentErrors = append(s.recentErrors, msg)
		if len(s.recentErrors) > recentErrorLimit {
			s.recentErrors = s.recentErrors[len(s.recentErrors)-recentErrorLimit:]
		}
		s.mu.Unlock()
	}
}

func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		TotalAttempts:    s.totalAttempts.Load(),
		SuccessfulParses: s.successfulParses.Load(),
		FallbackUsed:     s.fallbackUsed.Load(),
	}
	s.mu.Lock()
	snap.RecentErrors = append([]string(nil), s.recentErrors...)
	s.mu.Unlock()

	if snap.TotalAttempts > 0 {
		snap.SuccessRate = float64(snap.SuccessfulParses) / float64(snap.TotalAttempts)
	}
	return snap
}
