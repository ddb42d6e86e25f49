package app

import (
	"fmt"
	"strings"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/pkg/retry"
	"tradelab/internal/store"
	"tradelab/internal/strategy"
)

// marketOptions 把 resilience 配置转换为 Service 参数。
func marketOptions(rc config.ResilienceConfig) market.Options {
	return market.Options{
		BreakerThreshold: rc.BreakerThreshold,
		BreakerTimeout:   time.Duration(rc.BreakerTimeoutSeconds) * time.Second,
		Retry: retry.Policy{
			MaxRetries:     rc.MaxRetries,
			InitialDelay:   time.Duration(rc.InitialDelayMs) * time.Millisecond,
			MaxDelay:       time.Duration(rc.MaxDelayMs) * time.Millisecond,
			AttemptTimeout: time.Duration(rc.AttemptTimeoutSeconds) * time.Second,
			OnAttempt: func(n int, err error) {
				if err != nil {
					logger.Debugf("[market] attempt %d failed: %v", n, err)
				}
			},
		},
		HistoricalTimeoutFactor: rc.HistoricalTimeoutFactor,
		ActiveWindow:            time.Duration(rc.ActiveWindowSeconds) * time.Second,
	}
}

// buildBarStore 在 cache_path 为空时退回进程内缓存。
func buildBarStore(bc config.BacktestConfig) (store.BarStore, error) {
	path := strings.TrimSpace(bc.CachePath)
	if path == "" {
		logger.Infof("[app] bar cache: memory")
		return store.NewMemoryBarStore(), nil
	}
	st, err := store.NewSQLiteBarStore(path)
	if err != nil {
		return nil, fmt.Errorf("初始化 bar cache 失败 (%s): %w", path, err)
	}
	logger.Infof("[app] bar cache: %s", path)
	return st, nil
}

func buildGenerator(sc config.StrategyConfig) (*strategy.TrendGenerator, error) {
	return strategy.NewTrendGenerator(strategy.TrendConfig{
		EMAFast:   sc.EMAFast,
		EMASlow:   sc.EMASlow,
		RSIPeriod: sc.RSIPeriod,
		StopPct:   sc.StopPct,
		TakePct:   sc.TakePct,
	})
}

func engineConfig(bc config.BacktestConfig) backtest.EngineConfig {
	return backtest.EngineConfig{
		InitialCapital: bc.InitialCapital,
		CommissionPct:  bc.CommissionPct,
		WarmupBars:     bc.WarmupBars,
		EvalEvery:      bc.EvalEvery,
		MinBars:        bc.MinBars,
		SignalTimeout:  time.Duration(bc.SignalTimeoutSeconds) * time.Second,
	}
}
