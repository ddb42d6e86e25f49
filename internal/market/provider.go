package market

import (
	"context"

	"tradelab/internal/pkg/symbol"
)

// Provider 是单个外部行情源的统一封装。
// 适配器只负责协议转换与错误分类，重试、熔断、校验都由 Service 负责。
type Provider interface {
	Name() string
	Supports(class symbol.AssetClass) bool
	FetchPrice(ctx context.Context, symbol string) (float64, error)
	// FetchHistorical 返回按时间升序的最近 days 天日线。
	FetchHistorical(ctx context.Context, symbol string, days int) ([]Bar, error)
}

// Configurable 由需要凭证的适配器实现；未实现视为始终已配置。
type Configurable interface {
	Configured() bool
}

// UniverseProvider 声明标的宇宙。同一宇宙内一个源判定为无效标的，其余源不再尝试。
// 未实现时宇宙即数据源名字。
type UniverseProvider interface {
	Universe(class symbol.AssetClass) string
}

func isConfigured(p Provider) bool {
	if c, ok := p.(Configurable); ok {
		return c.Configured()
	}
	return true
}

func universeOf(p Provider, class symbol.AssetClass) string {
	if u, ok := p.(UniverseProvider); ok {
		if id := u.Universe(class); id != "" {
			return id
		}
	}
	return p.Name()
}
