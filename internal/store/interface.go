// Package store 在多源行情服务之前提供日线缓存，减少重复回测对外部数据源的请求。
package store

import (
	"context"
	"time"

	"tradelab/internal/market"
)

// FetchRecord 记录某个标的最近一次完整拉取的覆盖范围。
type FetchRecord struct {
	Symbol    string
	Days      int
	FetchedAt time.Time
}

// BarStore 是缓存后端，内存与 sqlite 两种实现。
type BarStore interface {
	// Save 以 (symbol, 时间) 去重写入 K 线，并刷新拉取记录。
	Save(ctx context.Context, rec FetchRecord, bars []market.Bar) error
	LastFetch(ctx context.Context, symbol string) (FetchRecord, bool, error)
	// Since 返回时间 >= since 的 K 线，按时间升序。
	Since(ctx context.Context, symbol string, since time.Time) ([]market.Bar, error)
	Close() error
}

// Source 是被缓存的上游，通常是 *market.Service。
type Source interface {
	GetHistoricalData(ctx context.Context, symbol string, days int) ([]market.Bar, error)
}
