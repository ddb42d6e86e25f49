package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Providers.validate(); err != nil {
		return err
	}
	if err := c.Resilience.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Strategy.validate(); err != nil {
		return err
	}
	return nil
}

func (p *ProvidersConfig) validate() error {
	known := make(map[string]bool, len(DefaultProviderOrder))
	for _, name := range DefaultProviderOrder {
		known[name] = true
	}
	for _, name := range p.Order {
		if !known[name] {
			return fmt.Errorf("providers.order contains unknown provider: %s", name)
		}
	}
	if p.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("providers.http_timeout_seconds must be > 0")
	}
	if p.Proxy.Enabled && p.Proxy.RESTURL == "" {
		return fmt.Errorf("providers.proxy is enabled but rest_url is empty")
	}
	if p.Alpaca.Enabled {
		feed := strings.ToLower(strings.TrimSpace(p.Alpaca.Feed))
		if feed != "iex" && feed != "sip" && feed != "delayed_sip" {
			return fmt.Errorf("providers.alpaca.feed must be one of iex, sip, delayed_sip")
		}
	}
	return nil
}

func (r *ResilienceConfig) validate() error {
	if r.BreakerThreshold <= 0 {
		return fmt.Errorf("resilience.breaker_threshold must be > 0")
	}
	if r.MaxRetries < 0 || r.MaxRetries > 10 {
		return fmt.Errorf("resilience.max_retries must be in [0,10]")
	}
	if r.InitialDelayMs > r.MaxDelayMs {
		return fmt.Errorf("resilience.initial_delay_ms must be <= max_delay_ms")
	}
	if r.AttemptTimeoutSeconds <= 0 {
		return fmt.Errorf("resilience.attempt_timeout_seconds must be > 0")
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if b.CommissionPct < 0 || b.CommissionPct >= 0.1 {
		return fmt.Errorf("backtest.commission_pct must be in [0,0.1)")
	}
	if b.EvalEvery <= 0 {
		return fmt.Errorf("backtest.eval_every must be > 0")
	}
	if b.WarmupBars < 0 {
		return fmt.Errorf("backtest.warmup_bars must be >= 0")
	}
	if b.MinRangeDays > b.MaxRangeDays {
		return fmt.Errorf("backtest.min_range_days must be <= max_range_days")
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if s.EMAFast >= s.EMASlow {
		return fmt.Errorf("strategy.ema_fast must be < ema_slow")
	}
	if s.RSIPeriod < 2 {
		return fmt.Errorf("strategy.rsi_period must be >= 2")
	}
	if s.StopPct <= 0 || s.StopPct >= 1 || s.TakePct <= 0 {
		return fmt.Errorf("strategy.stop_pct must be in (0,1) and take_pct > 0")
	}
	return nil
}
