package config

import "strings"

// Config 是 tradelab 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Providers  ProvidersConfig  `toml:"providers"`
	Resilience ResilienceConfig `toml:"resilience"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Strategy   StrategyConfig   `toml:"strategy"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// ProvidersConfig 描述各行情源的凭证与地址，Order 决定回退优先级。
type ProvidersConfig struct {
	Order              []string     `toml:"order"`
	HTTPTimeoutSeconds int          `toml:"http_timeout_seconds"`
	Proxy              ProxyConfig  `toml:"proxy"`
	Alpaca             AlpacaConfig `toml:"alpaca"`
	Polygon            VendorConfig `toml:"polygon"`
	AlphaVantage       VendorConfig `toml:"alpha_vantage"`
	Binance            VendorConfig `toml:"binance"`
	Coinbase           VendorConfig `toml:"coinbase"`
	Yahoo              VendorConfig `toml:"yahoo"`
}

type AlpacaConfig struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	DataURL   string `toml:"data_url"`
	Feed      string `toml:"feed"`
}

type VendorConfig struct {
	Enabled bool   `toml:"enabled"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

// ResilienceConfig 控制熔断与重试参数。
type ResilienceConfig struct {
	BreakerThreshold        int     `toml:"breaker_threshold"`
	BreakerTimeoutSeconds   int     `toml:"breaker_timeout_seconds"`
	MaxRetries              int     `toml:"max_retries"`
	InitialDelayMs          int     `toml:"initial_delay_ms"`
	MaxDelayMs              int     `toml:"max_delay_ms"`
	AttemptTimeoutSeconds   int     `toml:"attempt_timeout_seconds"`
	HistoricalTimeoutFactor float64 `toml:"historical_timeout_factor"`
	ActiveWindowSeconds     int     `toml:"active_window_seconds"`
}

type BacktestConfig struct {
	InitialCapital       float64 `toml:"initial_capital"`
	CommissionPct        float64 `toml:"commission_pct"`
	WarmupBars           int     `toml:"warmup_bars"`
	EvalEvery            int     `toml:"eval_every"`
	MinBars              int     `toml:"min_bars"`
	SignalTimeoutSeconds int     `toml:"signal_timeout_seconds"`
	MinRangeDays         int     `toml:"min_range_days"`
	MaxRangeDays         int     `toml:"max_range_days"`
	CachePath            string  `toml:"cache_path"`
	CacheMaxAgeHours     int     `toml:"cache_max_age_hours"`
}

// StrategyConfig 是内置趋势信号生成器的参数。
type StrategyConfig struct {
	EMAFast   int     `toml:"ema_fast"`
	EMASlow   int     `toml:"ema_slow"`
	RSIPeriod int     `toml:"rsi_period"`
	StopPct   float64 `toml:"stop_pct"`
	TakePct   float64 `toml:"take_pct"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
