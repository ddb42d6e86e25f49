package market

import (
	"sync"
	"sync/atomic"
	"time"

	"tradelab/internal/logger"
	"tradelab/internal/pkg/circuit"
)

// providerState 是单个数据源的运行统计，只由 Service 修改。
type providerState struct {
	mu sync.Mutex

	provider   Provider
	configured bool
	disabled   bool
	breaker    *circuit.Breaker

	requests    int64
	successes   int64
	errors      int64
	skipped     int64
	lastSuccess time.Time
	lastFailure time.Time
	lastError   string
	lastKind    Kind

	// trips 只由熔断回调更新；回调可能发生在持有 mu 期间，此处不得加 mu
	trips atomic.Int64
}

func (s *providerState) name() string { return s.provider.Name() }

// usable 判断本次调用能否使用该源；返回 false 时第二个值说明原因。
func (s *providerState) usable() (bool, *ProviderError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return false, nil
	}
	if s.disabled {
		return false, NewError(s.name(), KindAuth, "provider disabled after authentication failure")
	}
	if !s.breaker.CanAttempt() {
		s.skipped++
		return false, NewError(s.name(), KindCircuitOpen, "circuit breaker open")
	}
	return true, nil
}

func (s *providerState) recordSuccess(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.successes++
	s.lastSuccess = now
	s.breaker.RecordSuccess()
}

func (s *providerState) recordFailure(now time.Time, pe *ProviderError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.errors++
	s.lastFailure = now
	s.lastError = pe.Error()
	s.lastKind = pe.Kind
	switch pe.Kind {
	case KindAuth:
		s.disabled = true
		s.breaker.RecordFailure()
	case KindEmptyData, KindInvalidSymbol:
		// 单次调用层面的问题，不代表数据源整体故障
		s.breaker.Release()
	default:
		s.breaker.RecordFailure()
	}
}

func (s *providerState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = false
	s.configured = isConfigured(s.provider)
	s.breaker.Reset()
}

// releaseTrial 在调用被取消、没有结论时归还 half_open 的试探名额。
func (s *providerState) releaseTrial() {
	s.breaker.Release()
}

func (s *providerState) onBreakerChange(name string, from, to circuit.State) {
	if to == circuit.StateOpen {
		s.trips.Add(1)
		logger.Warnf("[market] %s 熔断打开 (%s -> %s)", name, from, to)
		return
	}
	logger.Infof("[market] %s 熔断状态 %s -> %s", name, from, to)
}
