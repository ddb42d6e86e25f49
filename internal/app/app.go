package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sync/errgroup"

	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/gateway"
	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/store"
	httpapi "tradelab/internal/transport/http"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 或执行一次回测。
type App struct {
	cfg       *config.Config
	cfgPath   string
	providers []market.Provider
	market    *market.Service
	bars      store.BarStore
	runs      store.RunArchive
	engine    *backtest.Engine
	http      *httpapi.Server
	Summary   *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。cfgPath 用于运行中监听配置变更，可为空。
func NewApp(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, cfgPath)
}

// Serve 启动 HTTP 服务并监听配置文件，直到 ctx 取消。
func (a *App) Serve(ctx context.Context) error {
	if a == nil || a.http == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	a.watchConfig()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Backtest 执行一次回测，供 CLI 使用。结果会写入归档，之后可通过 HTTP 查询。
func (a *App) Backtest(ctx context.Context, req backtest.Request) (*backtest.Result, error) {
	if a == nil || a.engine == nil {
		return nil, fmt.Errorf("app not initialized")
	}
	res, err := a.engine.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	if a.runs != nil {
		if err := a.runs.SaveRun(ctx, res); err != nil {
			logger.Warnf("[app] 归档回测 %s 失败: %v", res.RunID, err)
		}
	}
	return res, nil
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Market() *market.Service { return a.market }

func (a *App) Close() error {
	if a == nil || a.bars == nil {
		return nil
	}
	return a.bars.Close()
}

func (a *App) watchConfig() {
	if a.cfgPath == "" {
		return
	}
	if _, err := os.Stat(a.cfgPath); errors.Is(err, fs.ErrNotExist) {
		logger.Infof("[config] %s 不存在，跳过热更新监听", a.cfgPath)
		return
	}
	w, err := config.NewWatcher(a.cfgPath, a.cfg)
	if err != nil {
		logger.Warnf("[config] 无法监听 %s: %v", a.cfgPath, err)
		return
	}
	w.Subscribe(a.onConfigChange)
}

// onConfigChange 把变化的数据源凭证写回适配器，并清除该源的禁用与熔断状态。
func (a *App) onConfigChange(prev, next config.Snapshot) {
	for _, name := range config.ChangedProviders(prev.Config, next.Config) {
		if gateway.ApplyCredentials(a.providers, next.Config, name) {
			logger.Infof("[config] %s 凭证已更新", name)
		}
		if err := a.market.Reconfigure(name); err != nil {
			logger.Debugf("[config] %s 未在当前数据源列表中: %v", name, err)
		}
	}
}
