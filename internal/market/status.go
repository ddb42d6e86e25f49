package market

import (
	"time"

	"tradelab/internal/pkg/circuit"
)

// ProviderStatus 是单个数据源的健康视图。
type ProviderStatus struct {
	Name          string        `json:"name"`
	Priority      int           `json:"priority"`
	Configured    bool          `json:"configured"`
	Active        bool          `json:"active"`
	Available     bool          `json:"available"`
	Disabled      bool          `json:"disabled"`
	CircuitState  circuit.State `json:"circuit_state"`
	CanAttempt    bool          `json:"can_attempt"`
	Failures      int           `json:"consecutive_failures"`
	CircuitTrips  int64         `json:"circuit_trips"`
	Requests      int64         `json:"requests"`
	Successes     int64         `json:"successes"`
	Errors        int64         `json:"errors"`
	Skipped       int64         `json:"skipped"`
	SuccessRate   float64       `json:"success_rate"`
	LastSuccess   *time.Time    `json:"last_success"`
	LastFailure   *time.Time    `json:"last_failure"`
	LastError     string        `json:"last_error,omitempty"`
	LastErrorKind string        `json:"last_error_kind,omitempty"`
}

// GetProviderStatus 返回所有数据源的状态；查询本身不会改变熔断器状态。
func (s *Service) GetProviderStatus() map[string]ProviderStatus {
	now := s.opts.Clock()
	out := make(map[string]ProviderStatus, len(s.states))
	for i, st := range s.states {
		out[st.name()] = st.status(i+1, now, s.opts.ActiveWindow)
	}
	return out
}

func (s *providerState) status(priority int, now time.Time, window time.Duration) ProviderStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.breaker.Snapshot()
	ps := ProviderStatus{
		Name:         s.name(),
		Priority:     priority,
		Configured:   s.configured,
		Disabled:     s.disabled,
		Available:    s.configured && !s.disabled,
		CircuitState: snap.State,
		CanAttempt:   s.configured && !s.disabled && s.breaker.Peek(),
		Failures:     snap.Failures,
		CircuitTrips: s.trips.Load(),
		Requests:     s.requests,
		Successes:    s.successes,
		Errors:       s.errors,
		Skipped:      s.skipped,
		LastError:    s.lastError,
	}
	if s.requests > 0 {
		ps.SuccessRate = float64(s.successes) / float64(s.requests)
	}
	if !s.lastSuccess.IsZero() {
		t := s.lastSuccess
		ps.LastSuccess = &t
		ps.Active = now.Sub(t) <= window
	}
	if !s.lastFailure.IsZero() {
		t := s.lastFailure
		ps.LastFailure = &t
		ps.LastErrorKind = s.lastKind.String()
	}
	return ps
}
