package market

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"tradelab/internal/pkg/symbol"
)

const (
	snapshotDays        = 5
	snapshotConcurrency = 4
)

// SnapshotEntry 是快照中单个标的的结果。取不到现价时 Available=false；
// 有现价但历史不足时仍可用，ChangePct 为 0，Error 说明原因。
type SnapshotEntry struct {
	Symbol    string  `json:"symbol"`
	Available bool    `json:"available"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Volume    float64 `json:"volume"`
	Error     string  `json:"error,omitempty"`
}

// GetMarketSnapshot 并发获取一批标的的现价与相对前收盘涨跌幅。
// 每个请求的标的都会出现在结果中，取不到现价的以 Available=false 标记。
func (s *Service) GetMarketSnapshot(ctx context.Context, symbols []string) (map[string]SnapshotEntry, error) {
	list := symbol.NormalizeList(symbols)
	out := make(map[string]SnapshotEntry, len(list))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for _, sym := range list {
		g.Go(func() error {
			entry := s.snapshotOne(gctx, sym)
			if err := ctx.Err(); err != nil {
				return err
			}
			mu.Lock()
			out[sym] = entry
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// snapshotOne 只要现价可得就标记可用；历史数据缺失时涨跌幅为 0，原因写入 Error。
func (s *Service) snapshotOne(ctx context.Context, sym string) SnapshotEntry {
	entry := SnapshotEntry{Symbol: sym}
	price, err := s.GetPrice(ctx, sym)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Available = true
	entry.Price = price

	bars, err := s.GetHistoricalData(ctx, sym, snapshotDays)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	if len(bars) > 0 {
		entry.Volume = bars[len(bars)-1].Volume
	}
	if len(bars) < 2 {
		entry.Error = "need at least 2 bars to compute change"
		return entry
	}
	if prev := bars[len(bars)-2].Close; prev > 0 {
		entry.ChangePct = (price - prev) / prev * 100
	}
	return entry
}
