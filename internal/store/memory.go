package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"tradelab/internal/market"
)

// MemoryBarStore 是按 symbol 分片的进程内缓存，未配置 cache_path 时使用。
type MemoryBarStore struct {
	shards []barShard
}

type barShard struct {
	mu      sync.RWMutex
	bars    map[string][]market.Bar
	fetches map[string]FetchRecord
}

const defaultShardCount = 32

var _ BarStore = (*MemoryBarStore)(nil)

func NewMemoryBarStore() *MemoryBarStore {
	return newMemoryBarStore(defaultShardCount)
}

func newMemoryBarStore(shards int) *MemoryBarStore {
	if shards <= 0 {
		shards = 1
	}
	out := &MemoryBarStore{shards: make([]barShard, shards)}
	for i := range out.shards {
		out.shards[i] = barShard{
			bars:    make(map[string][]market.Bar),
			fetches: make(map[string]FetchRecord),
		}
	}
	return out
}

func (s *MemoryBarStore) shardFor(symbol string) *barShard {
	return &s.shards[hashKey(symbol)%uint32(len(s.shards))]
}

func (s *MemoryBarStore) Save(ctx context.Context, rec FetchRecord, bars []market.Bar) error {
	if rec.Symbol == "" {
		return errors.New("symbol 不能为空")
	}
	sh := s.shardFor(rec.Symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.bars[rec.Symbol] = mergeBars(sh.bars[rec.Symbol], bars)
	sh.fetches[rec.Symbol] = rec
	return nil
}

func (s *MemoryBarStore) LastFetch(ctx context.Context, symbol string) (FetchRecord, bool, error) {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	rec, ok := sh.fetches[symbol]
	return rec, ok, nil
}

func (s *MemoryBarStore) Since(ctx context.Context, symbol string, since time.Time) ([]market.Bar, error) {
	sh := s.shardFor(symbol)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur := sh.bars[symbol]
	out := make([]market.Bar, 0, len(cur))
	for _, b := range cur {
		if !b.Time.Before(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryBarStore) Close() error { return nil }

// mergeBars 合并两段升序序列，同一时间点以新数据为准。
func mergeBars(cur, incoming []market.Bar) []market.Bar {
	byTime := make(map[int64]int, len(cur)+len(incoming))
	out := make([]market.Bar, 0, len(cur)+len(incoming))
	for _, group := range [][]market.Bar{cur, incoming} {
		for _, b := range group {
			k := b.Time.Unix()
			if idx, ok := byTime[k]; ok {
				out[idx] = b
				continue
			}
			byTime[k] = len(out)
			out = append(out, b)
		}
	}
	market.SortBars(out)
	return out
}

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
