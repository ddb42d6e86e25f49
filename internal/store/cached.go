package store

import (
	"context"
	"time"

	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/pkg/symbol"
)

// CachedHistory 包装上游历史数据源：覆盖范围足够且未过期时直接读缓存，
// 否则回源并写回。缓存读写失败只记日志，不影响回源结果。
type CachedHistory struct {
	source Source
	cache  BarStore
	maxAge time.Duration
	now    func() time.Time
}

func NewCachedHistory(source Source, cache BarStore, maxAge time.Duration, now func() time.Time) *CachedHistory {
	if now == nil {
		now = time.Now
	}
	return &CachedHistory{source: source, cache: cache, maxAge: maxAge, now: now}
}

func (c *CachedHistory) GetHistoricalData(ctx context.Context, sym string, days int) ([]market.Bar, error) {
	key := symbol.Normalize(sym)
	if c.cache == nil || c.maxAge <= 0 || days <= 0 || key == "" {
		return c.source.GetHistoricalData(ctx, sym, days)
	}
	now := c.now().UTC()
	if bars, ok := c.lookup(ctx, key, days, now); ok {
		logger.Debugf("[cache] %s 命中 %d 根 K 线 (days=%d)", key, len(bars), days)
		return bars, nil
	}

	bars, err := c.source.GetHistoricalData(ctx, sym, days)
	if err != nil {
		return nil, err
	}
	rec := FetchRecord{Symbol: key, Days: days, FetchedAt: now}
	if err := c.cache.Save(ctx, rec, bars); err != nil {
		logger.Warnf("[cache] %s 写入失败: %v", key, err)
	}
	return bars, nil
}

func (c *CachedHistory) lookup(ctx context.Context, key string, days int, now time.Time) ([]market.Bar, bool) {
	rec, ok, err := c.cache.LastFetch(ctx, key)
	if err != nil {
		logger.Warnf("[cache] %s 读取拉取记录失败: %v", key, err)
		return nil, false
	}
	if !ok || rec.Days < days || now.Sub(rec.FetchedAt) >= c.maxAge {
		return nil, false
	}
	bars, err := c.cache.Since(ctx, key, now.AddDate(0, 0, -days))
	if err != nil {
		logger.Warnf("[cache] %s 读取 K 线失败: %v", key, err)
		return nil, false
	}
	if len(bars) == 0 {
		return nil, false
	}
	return bars, true
}
