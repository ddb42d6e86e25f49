package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradelab/internal/logger"
	"tradelab/internal/pkg/circuit"
	"tradelab/internal/pkg/retry"
	"tradelab/internal/pkg/symbol"
)

// Options 控制 Service 的熔断、重试与状态窗口。
type Options struct {
	BreakerThreshold        int
	BreakerTimeout          time.Duration
	Retry                   retry.Policy
	HistoricalTimeoutFactor float64
	ActiveWindow            time.Duration
	MinHistoricalBars       int
	Clock                   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = circuit.DefaultThreshold
	}
	if o.BreakerTimeout <= 0 {
		o.BreakerTimeout = circuit.DefaultTimeout
	}
	if o.Retry.AttemptTimeout <= 0 && o.Retry.InitialDelay <= 0 && o.Retry.MaxDelay <= 0 && o.Retry.MaxRetries == 0 {
		o.Retry = retry.DefaultPolicy()
	}
	if o.HistoricalTimeoutFactor <= 0 {
		o.HistoricalTimeoutFactor = 2
	}
	if o.ActiveWindow <= 0 {
		o.ActiveWindow = 5 * time.Minute
	}
	if o.MinHistoricalBars <= 0 {
		o.MinHistoricalBars = 1
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Service 按固定优先级在多个数据源之间回退，维护每个源的健康状态。
type Service struct {
	opts   Options
	states []*providerState
	byName map[string]*providerState
}

func NewService(providers []Provider, opts Options) *Service {
	opts = opts.withDefaults()
	s := &Service{opts: opts, byName: make(map[string]*providerState, len(providers))}
	for _, p := range providers {
		if p == nil {
			continue
		}
		st := &providerState{
			provider:   p,
			configured: isConfigured(p),
		}
		st.breaker = circuit.New(p.Name(), opts.BreakerThreshold, opts.BreakerTimeout,
			circuit.WithClock(opts.Clock),
			circuit.WithStateChangeHandler(st.onBreakerChange),
		)
		s.states = append(s.states, st)
		s.byName[p.Name()] = st
	}
	return s
}

// Providers 返回按优先级排列的数据源名字。
func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st.name())
	}
	return out
}

// GetPrice 返回第一个成功数据源的最新价格。全部失败时返回包装了 ErrNoData 的错误。
func (s *Service) GetPrice(ctx context.Context, sym string) (float64, error) {
	policy := s.opts.Retry
	return fetchWithFallback(ctx, s, sym, policy,
		func(ctx context.Context, p Provider) (float64, error) {
			return p.FetchPrice(ctx, sym)
		},
		func(p Provider, v float64) error {
			return ValidatePrice(p.Name(), v)
		})
}

// GetHistoricalData 返回按时间升序的日线序列，整段经过校验。
func (s *Service) GetHistoricalData(ctx context.Context, sym string, days int) ([]Bar, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}
	policy := s.opts.Retry.Scaled(s.opts.HistoricalTimeoutFactor)
	return fetchWithFallback(ctx, s, sym, policy,
		func(ctx context.Context, p Provider) ([]Bar, error) {
			bars, err := p.FetchHistorical(ctx, sym, days)
			if err != nil {
				return nil, err
			}
			SortBars(bars)
			return bars, nil
		},
		func(p Provider, bars []Bar) error {
			return ValidateBars(p.Name(), bars, s.opts.MinHistoricalBars)
		})
}

// Reconfigure 解除会话级禁用并重置熔断器，用于更新凭证之后。
func (s *Service) Reconfigure(name string) error {
	st, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown provider %q", name)
	}
	st.reset()
	logger.Infof("[market] %s 已重新配置", name)
	return nil
}

func fetchWithFallback[T any](
	ctx context.Context,
	s *Service,
	sym string,
	policy retry.Policy,
	call func(context.Context, Provider) (T, error),
	validate func(Provider, T) error,
) (T, error) {
	var zero T
	sym = strings.TrimSpace(sym)
	if sym == "" {
		return zero, fmt.Errorf("symbol is required")
	}
	class := symbol.Classify(sym)
	var (
		failures []error
		invalid  = make(map[string]struct{})
	)
	for _, st := range s.states {
		p := st.provider
		if !p.Supports(class) {
			continue
		}
		universe := universeOf(p, class)
		if _, skip := invalid[universe]; skip {
			continue
		}
		ok, reason := st.usable()
		if !ok {
			if reason != nil {
				logger.Debugf("[market] 跳过 %s (%s): %s", p.Name(), sym, reason.Message)
				failures = append(failures, reason)
			}
			continue
		}
		val, err := retry.Do(ctx, policy, IsRetryable, func(ctx context.Context) (T, error) {
			return call(ctx, p)
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				st.releaseTrial()
				return zero, ctxErr
			}
		} else {
			// 已完成的尝试照常校验与记录，即使调用方随后取消
			err = validate(p, val)
		}
		if err == nil {
			st.recordSuccess(s.opts.Clock())
			return val, nil
		}
		pe := categorize(p.Name(), err)
		st.recordFailure(s.opts.Clock(), pe)
		failures = append(failures, pe)
		logger.Warnf("[market] %s 获取 %s 失败: %v", p.Name(), sym, pe)
		if pe.Kind == KindInvalidSymbol {
			invalid[universe] = struct{}{}
		}
	}
	if len(failures) == 0 {
		return zero, fmt.Errorf("%w: %s: no configured provider supports %s symbols", ErrNoData, sym, class)
	}
	return zero, fmt.Errorf("%w: %s: %w", ErrNoData, sym, errors.Join(failures...))
}
