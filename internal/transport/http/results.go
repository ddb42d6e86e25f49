package httpapi

import (
	"sync"
	"time"

	"tradelab/internal/backtest"
	"tradelab/internal/store"
)

// resultRegistry 按 run id 保存最近的回测结果，超出容量时淘汰最早的一条。
type resultRegistry struct {
	mu    sync.RWMutex
	limit int
	now   func() time.Time
	order []string
	byID  map[string]registryEntry
}

type registryEntry struct {
	res *backtest.Result
	at  time.Time
}

func newResultRegistry(limit int, now func() time.Time) *resultRegistry {
	if now == nil {
		now = time.Now
	}
	return &resultRegistry{limit: limit, now: now, byID: make(map[string]registryEntry, limit)}
}

func (r *resultRegistry) put(res *backtest.Result) {
	if res == nil || res.RunID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[res.RunID]; !ok {
		r.order = append(r.order, res.RunID)
	}
	r.byID[res.RunID] = registryEntry{res: res, at: r.now()}
	for len(r.order) > r.limit {
		delete(r.byID, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *resultRegistry) get(id string) (*backtest.Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e.res, ok
}

// list 从新到旧返回摘要，symbol 为空时不过滤。
func (r *resultRegistry) list(symbol string, limit int) []store.RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]store.RunSummary, 0, min(limit, len(r.order)))
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.byID[r.order[i]]
		if symbol != "" && e.res.Symbol != symbol {
			continue
		}
		out = append(out, store.RunSummary{
			RunID:          e.res.RunID,
			Symbol:         e.res.Symbol,
			Start:          e.res.Start,
			End:            e.res.End,
			FinalCapital:   e.res.FinalCapital,
			TotalTrades:    e.res.TotalTrades,
			TotalReturnPct: e.res.TotalReturnPct,
			MaxDrawdownPct: e.res.MaxDrawdownPct,
			CreatedAt:      e.at,
		})
	}
	return out
}
