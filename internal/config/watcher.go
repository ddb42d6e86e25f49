package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"tradelab/internal/logger"
)

// Snapshot 是某一版本配置的只读视图。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Config   *Config
}

// ChangeListener 在配置文件变更并重新加载成功后被调用，参数为旧/新快照。
type ChangeListener func(prev, next Snapshot)

// Watcher 监听配置文件变更，用于服务运行中更新数据源凭证。
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewWatcher 以 initial 作为第 1 版快照并开始监听文件事件。
func NewWatcher(path string, initial *Config) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	if initial == nil {
		return nil, fmt.Errorf("config watcher requires initial config")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	w := &Watcher{
		path:     path,
		v:        v,
		snapshot: Snapshot{Version: 1, LoadedAt: time.Now(), Config: initial},
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		if err := w.Reload(); err != nil {
			logger.Errorf("[config] reload failed (%s): %v", evt.Name, err)
		}
	})
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) Snapshot() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.snapshot
}

// Subscribe 注册监听器。
func (w *Watcher) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

// Reload 重新解析完整配置（含 include、默认值与校验），成功后通知监听器。
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	prev := w.snapshot
	next := Snapshot{Version: prev.Version + 1, LoadedAt: time.Now(), Config: cfg}
	w.snapshot = next
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()
	logger.Infof("[config] reloaded %s (version %d)", filepath.Base(w.path), next.Version)
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("[config] listener panic: %v", r)
				}
			}()
			fn(prev, next)
		}()
	}
	return nil
}

// ChangedProviders 返回凭证、地址或启用状态发生变化的数据源。
func ChangedProviders(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	a, b := prev.Providers, next.Providers
	var out []string
	if a.Alpaca != b.Alpaca {
		out = append(out, ProviderAlpaca)
	}
	if a.Polygon != b.Polygon {
		out = append(out, ProviderPolygon)
	}
	if a.AlphaVantage != b.AlphaVantage {
		out = append(out, ProviderAlphaVantage)
	}
	if a.Binance != b.Binance {
		out = append(out, ProviderBinance)
	}
	if a.Coinbase != b.Coinbase {
		out = append(out, ProviderCoinbase)
	}
	if a.Yahoo != b.Yahoo {
		out = append(out, ProviderYahoo)
	}
	return out
}
