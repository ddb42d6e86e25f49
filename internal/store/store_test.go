package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/market"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func dailyBars(end time.Time, n int) []market.Bar {
	out := make([]market.Bar, n)
	for i := range out {
		day := end.AddDate(0, 0, i-n+1).Truncate(24 * time.Hour)
		p := 100 + float64(i)
		out[i] = market.Bar{Time: day, Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 10}
	}
	return out
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	bars  []market.Bar
	err   error
}

func (s *countingSource) GetHistoricalData(ctx context.Context, symbol string, days int) ([]market.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type brokenStore struct{}

func (brokenStore) Save(context.Context, FetchRecord, []market.Bar) error {
	return errors.New("disk full")
}
func (brokenStore) LastFetch(context.Context, string) (FetchRecord, bool, error) {
	return FetchRecord{}, false, errors.New("locked")
}
func (brokenStore) Since(context.Context, string, time.Time) ([]market.Bar, error) {
	return nil, errors.New("locked")
}
func (brokenStore) Close() error { return nil }

func backends(t *testing.T) map[string]BarStore {
	t.Helper()
	sq, err := NewSQLiteBarStore(filepath.Join(t.TempDir(), "cache", "bars.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]BarStore{"memory": NewMemoryBarStore(), "sqlite": sq}
}

func TestBarStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			bars := dailyBars(testNow, 5)
			require.NoError(t, st.Save(ctx, FetchRecord{Symbol: "AAPL", Days: 5, FetchedAt: testNow}, bars))

			updated := bars[4]
			updated.Close = 150
			updated.High = 151
			require.NoError(t, st.Save(ctx, FetchRecord{Symbol: "AAPL", Days: 1, FetchedAt: testNow.Add(time.Hour)}, []market.Bar{updated}))

			got, err := st.Since(ctx, "AAPL", bars[2].Time)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.True(t, got[0].Time.Equal(bars[2].Time))
			assert.Equal(t, 150.0, got[2].Close, "same timestamp overwrites")

			rec, ok, err := st.LastFetch(ctx, "AAPL")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, 1, rec.Days)
			assert.True(t, rec.FetchedAt.Equal(testNow.Add(time.Hour)))

			_, ok, err = st.LastFetch(ctx, "MSFT")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.Error(t, st.Save(ctx, FetchRecord{}, bars))
		})
	}
}

func TestSQLiteBarStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bars.db")
	st, err := NewSQLiteBarStore(path)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, FetchRecord{Symbol: "BTC/USD", Days: 3, FetchedAt: testNow}, dailyBars(testNow, 3)))
	require.NoError(t, st.Close())

	st, err = NewSQLiteBarStore(path)
	require.NoError(t, err)
	defer st.Close()
	got, err := st.Since(ctx, "BTC/USD", time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = NewSQLiteBarStore("  ")
	assert.Error(t, err)
}

func TestCachedHistoryServesFreshCoverage(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			src := &countingSource{bars: dailyBars(testNow, 30)}
			now := testNow
			h := NewCachedHistory(src, st, 12*time.Hour, func() time.Time { return now })

			first, err := h.GetHistoricalData(ctx, "aapl", 30)
			require.NoError(t, err)
			assert.Len(t, first, 30)
			assert.Equal(t, 1, src.count())

			now = testNow.Add(2 * time.Hour)
			second, err := h.GetHistoricalData(ctx, "AAPL", 10)
			require.NoError(t, err)
			assert.Equal(t, 1, src.count(), "narrower window is served from cache")
			assert.Len(t, second, 10)
			assert.True(t, second[len(second)-1].Time.Equal(first[len(first)-1].Time))

			_, err = h.GetHistoricalData(ctx, "AAPL", 60)
			require.NoError(t, err)
			assert.Equal(t, 2, src.count(), "wider window refetches")

			now = testNow.Add(15 * time.Hour)
			_, err = h.GetHistoricalData(ctx, "AAPL", 10)
			require.NoError(t, err)
			assert.Equal(t, 3, src.count(), "stale record refetches")
		})
	}
}

func TestCachedHistoryPropagatesSourceErrors(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryBarStore()
	src := &countingSource{err: market.ErrNoData}
	h := NewCachedHistory(src, st, time.Hour, func() time.Time { return testNow })

	_, err := h.GetHistoricalData(ctx, "AAPL", 5)
	assert.ErrorIs(t, err, market.ErrNoData)
	_, ok, _ := st.LastFetch(ctx, "AAPL")
	assert.False(t, ok, "failed fetch is not recorded")
}

func TestCachedHistoryBypassesBrokenCache(t *testing.T) {
	src := &countingSource{bars: dailyBars(testNow, 5)}
	h := NewCachedHistory(src, brokenStore{}, time.Hour, func() time.Time { return testNow })
	bars, err := h.GetHistoricalData(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	assert.Len(t, bars, 5)

	disabled := NewCachedHistory(src, NewMemoryBarStore(), 0, nil)
	_, err = disabled.GetHistoricalData(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	_, err = disabled.GetHistoricalData(context.Background(), "AAPL", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, src.count(), "zero max age never serves from cache")
}
