package app

import (
	"context"
	"fmt"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/gateway"
	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/store"
	httpapi "tradelab/internal/transport/http"
)

type AppBuilder struct {
	cfg     *config.Config
	cfgPath string

	providersFn func(*config.Config) ([]market.Provider, error)
	barStoreFn  func(config.BacktestConfig) (store.BarStore, error)
	clock       func() time.Time
}

type AppBuilderOption func(*AppBuilder)

// WithProviders 替换数据源构造逻辑，测试时注入假数据源。
func WithProviders(fn func(*config.Config) ([]market.Provider, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.providersFn = fn
		}
	}
}

func WithBarStore(fn func(config.BacktestConfig) (store.BarStore, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.barStoreFn = fn
		}
	}
}

func WithClock(fn func() time.Time) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.clock = fn
		}
	}
}

func NewAppBuilder(cfg *config.Config, cfgPath string, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		cfgPath:     cfgPath,
		providersFn: gateway.NewProvidersFromConfig,
		barStoreFn:  buildBarStore,
		clock:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build 依次构造：数据源 → 行情服务 → 缓存 → 信号生成器 → 回测引擎 → HTTP。
// SQLite 缓存同时充当回测归档，内存缓存时不归档。
func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	providers, err := b.providersFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化行情源失败: %w", err)
	}
	opts := marketOptions(cfg.Resilience)
	opts.Clock = b.clock
	svc := market.NewService(providers, opts)

	bars, err := b.barStoreFn(cfg.Backtest)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			_ = bars.Close()
		}
	}()
	maxAge := time.Duration(cfg.Backtest.CacheMaxAgeHours) * time.Hour
	history := store.NewCachedHistory(svc, bars, maxAge, b.clock)

	gen, err := buildGenerator(cfg.Strategy)
	if err != nil {
		return nil, fmt.Errorf("初始化信号生成器失败: %w", err)
	}
	engCfg := engineConfig(cfg.Backtest)
	engCfg.Clock = b.clock
	if engCfg.WarmupBars < gen.MinBars() {
		logger.Warnf("[app] warmup_bars=%d 小于信号所需 %d 根，预热期内的信号请求会被跳过", engCfg.WarmupBars, gen.MinBars())
	}
	engine, err := backtest.NewEngine(history, gen, engCfg)
	if err != nil {
		return nil, err
	}

	archive, _ := bars.(store.RunArchive)
	server, err := httpapi.NewServer(httpapi.Config{
		Addr:       cfg.App.HTTPAddr,
		Market:     svc,
		Backtester: engine,
		Range: httpapi.RangePolicy{
			MinDays: cfg.Backtest.MinRangeDays,
			MaxDays: cfg.Backtest.MaxRangeDays,
		},
		Runs:  archive,
		Clock: b.clock,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 失败: %w", err)
	}

	success = true
	return &App{
		cfg:       cfg,
		cfgPath:   b.cfgPath,
		providers: providers,
		market:    svc,
		bars:      bars,
		runs:      archive,
		engine:    engine,
		http:      server,
		Summary:   newStartupSummary(cfg, svc, gen.MinBars()),
	}, nil
}

// appBuilderDeps 与下面的 provider 函数供 wire 生成注入代码。
type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}

func provideAppBuilder(cfg *config.Config, cfgPath string) *AppBuilder {
	return NewAppBuilder(cfg, cfgPath)
}
