package config

import (
	"strings"
)

// 数据源名字，同时也是 providers.order 中使用的标识。
const (
	ProviderAlpaca       = "alpaca"
	ProviderPolygon      = "polygon"
	ProviderAlphaVantage = "alpha_vantage"
	ProviderBinance      = "binance"
	ProviderCoinbase     = "coinbase"
	ProviderYahoo        = "yahoo"
)

// DefaultProviderOrder 是默认回退优先级：券商主源 → 行情商 → 报价商 → 免费兜底。
var DefaultProviderOrder = []string{
	ProviderAlpaca,
	ProviderPolygon,
	ProviderAlphaVantage,
	ProviderBinance,
	ProviderCoinbase,
	ProviderYahoo,
}

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":8088"
	defaultHTTPTimeout     = 15
	defaultAlpacaDataURL   = "https://data.alpaca.markets"
	defaultAlpacaFeed      = "iex"
	defaultPolygonURL      = "https://api.polygon.io"
	defaultAlphaVantageURL = "https://www.alphavantage.co"
	defaultBinanceURL      = "https://fapi.binance.com"
	defaultCoinbaseURL     = "https://api.exchange.coinbase.com"
	defaultYahooURL        = "https://query1.finance.yahoo.com"

	defaultBreakerThreshold  = 5
	defaultBreakerTimeout    = 300
	defaultMaxRetries        = 2
	defaultInitialDelayMs    = 1000
	defaultMaxDelayMs        = 10000
	defaultAttemptTimeout    = 30
	defaultHistoricalFactor  = 2
	defaultActiveWindow      = 300
	defaultInitialCapital    = 100000
	defaultCommissionPct     = 0.001
	defaultWarmupBars        = 60
	defaultEvalEvery         = 5
	defaultMinBars           = 100
	defaultSignalTimeout     = 10
	defaultMinRangeDays      = 30
	defaultMaxRangeDays      = 1825
	defaultCachePath         = "data/bars.db"
	defaultCacheMaxAgeHours  = 12
	defaultStrategyEMAFast   = 12
	defaultStrategyEMASlow   = 26
	defaultStrategyRSIPeriod = 14
	defaultStrategyStopPct   = 0.05
	defaultStrategyTakePct   = 0.10
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Providers.applyDefaults(keys)
	c.Resilience.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Strategy.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
	a.LogPath = strings.TrimSpace(a.LogPath)
}

func (p *ProvidersConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	p.Order = normalizeOrder(p.Order)
	if len(p.Order) == 0 {
		p.Order = append([]string(nil), DefaultProviderOrder...)
	}
	p.Proxy.normalize()
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "providers.http_timeout_seconds",
			need:  func() bool { return p.HTTPTimeoutSeconds <= 0 },
			apply: func() { p.HTTPTimeoutSeconds = defaultHTTPTimeout },
		},
		boolFieldDefault("providers.alpaca.enabled", &p.Alpaca.Enabled, true),
		stringFieldDefault("providers.alpaca.data_url", &p.Alpaca.DataURL, defaultAlpacaDataURL),
		stringFieldDefault("providers.alpaca.feed", &p.Alpaca.Feed, defaultAlpacaFeed),
	)
	p.Polygon.applyDefaults(keys, "providers.polygon", defaultPolygonURL)
	p.AlphaVantage.applyDefaults(keys, "providers.alpha_vantage", defaultAlphaVantageURL)
	p.Binance.applyDefaults(keys, "providers.binance", defaultBinanceURL)
	p.Coinbase.applyDefaults(keys, "providers.coinbase", defaultCoinbaseURL)
	p.Yahoo.applyDefaults(keys, "providers.yahoo", defaultYahooURL)
}

func (v *VendorConfig) applyDefaults(keys keySet, prefix, baseURL string) {
	if v == nil {
		return
	}
	v.APIKey = strings.TrimSpace(v.APIKey)
	applyFieldDefaults(keys,
		boolFieldDefault(prefix+".enabled", &v.Enabled, true),
		stringFieldDefault(prefix+".base_url", &v.BaseURL, baseURL),
	)
}

func (r *ResilienceConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "resilience.breaker_threshold",
			need:  func() bool { return r.BreakerThreshold <= 0 },
			apply: func() { r.BreakerThreshold = defaultBreakerThreshold },
		},
		fieldDefault{
			key:   "resilience.breaker_timeout_seconds",
			need:  func() bool { return r.BreakerTimeoutSeconds <= 0 },
			apply: func() { r.BreakerTimeoutSeconds = defaultBreakerTimeout },
		},
		fieldDefault{
			key:   "resilience.max_retries",
			need:  func() bool { return r.MaxRetries <= 0 },
			apply: func() { r.MaxRetries = defaultMaxRetries },
		},
		fieldDefault{
			key:   "resilience.initial_delay_ms",
			need:  func() bool { return r.InitialDelayMs <= 0 },
			apply: func() { r.InitialDelayMs = defaultInitialDelayMs },
		},
		fieldDefault{
			key:   "resilience.max_delay_ms",
			need:  func() bool { return r.MaxDelayMs <= 0 },
			apply: func() { r.MaxDelayMs = defaultMaxDelayMs },
		},
		fieldDefault{
			key:   "resilience.attempt_timeout_seconds",
			need:  func() bool { return r.AttemptTimeoutSeconds <= 0 },
			apply: func() { r.AttemptTimeoutSeconds = defaultAttemptTimeout },
		},
		fieldDefault{
			key:   "resilience.historical_timeout_factor",
			need:  func() bool { return r.HistoricalTimeoutFactor <= 0 },
			apply: func() { r.HistoricalTimeoutFactor = defaultHistoricalFactor },
		},
		fieldDefault{
			key:   "resilience.active_window_seconds",
			need:  func() bool { return r.ActiveWindowSeconds <= 0 },
			apply: func() { r.ActiveWindowSeconds = defaultActiveWindow },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.initial_capital",
			need:  func() bool { return b.InitialCapital <= 0 },
			apply: func() { b.InitialCapital = defaultInitialCapital },
		},
		fieldDefault{
			key:   "backtest.commission_pct",
			need:  func() bool { return b.CommissionPct <= 0 },
			apply: func() { b.CommissionPct = defaultCommissionPct },
		},
		fieldDefault{
			key:   "backtest.warmup_bars",
			need:  func() bool { return b.WarmupBars <= 0 },
			apply: func() { b.WarmupBars = defaultWarmupBars },
		},
		fieldDefault{
			key:   "backtest.eval_every",
			need:  func() bool { return b.EvalEvery <= 0 },
			apply: func() { b.EvalEvery = defaultEvalEvery },
		},
		fieldDefault{
			key:   "backtest.min_bars",
			need:  func() bool { return b.MinBars <= 0 },
			apply: func() { b.MinBars = defaultMinBars },
		},
		fieldDefault{
			key:   "backtest.signal_timeout_seconds",
			need:  func() bool { return b.SignalTimeoutSeconds <= 0 },
			apply: func() { b.SignalTimeoutSeconds = defaultSignalTimeout },
		},
		fieldDefault{
			key:   "backtest.min_range_days",
			need:  func() bool { return b.MinRangeDays <= 0 },
			apply: func() { b.MinRangeDays = defaultMinRangeDays },
		},
		fieldDefault{
			key:   "backtest.max_range_days",
			need:  func() bool { return b.MaxRangeDays <= 0 },
			apply: func() { b.MaxRangeDays = defaultMaxRangeDays },
		},
		stringFieldDefault("backtest.cache_path", &b.CachePath, defaultCachePath),
		fieldDefault{
			key:   "backtest.cache_max_age_hours",
			need:  func() bool { return b.CacheMaxAgeHours <= 0 },
			apply: func() { b.CacheMaxAgeHours = defaultCacheMaxAgeHours },
		},
	)
}

func (s *StrategyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "strategy.ema_fast",
			need:  func() bool { return s.EMAFast <= 0 },
			apply: func() { s.EMAFast = defaultStrategyEMAFast },
		},
		fieldDefault{
			key:   "strategy.ema_slow",
			need:  func() bool { return s.EMASlow <= 0 },
			apply: func() { s.EMASlow = defaultStrategyEMASlow },
		},
		fieldDefault{
			key:   "strategy.rsi_period",
			need:  func() bool { return s.RSIPeriod <= 0 },
			apply: func() { s.RSIPeriod = defaultStrategyRSIPeriod },
		},
		fieldDefault{
			key:   "strategy.stop_pct",
			need:  func() bool { return s.StopPct <= 0 },
			apply: func() { s.StopPct = defaultStrategyStopPct },
		},
		fieldDefault{
			key:   "strategy.take_pct",
			need:  func() bool { return s.TakePct <= 0 },
			apply: func() { s.TakePct = defaultStrategyTakePct },
		},
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func normalizeOrder(order []string) []string {
	if len(order) == 0 {
		return nil
	}
	out := make([]string, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
