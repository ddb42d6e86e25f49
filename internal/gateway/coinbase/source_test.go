package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/market"
	"tradelab/internal/pkg/symbol"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(Config{BaseURL: srv.URL, Timeout: time.Second, Now: func() time.Time { return testNow }})
	require.NoError(t, err)
	return s
}

func TestFetchPrice(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/ETH-USD/ticker", r.URL.Path)
		_, _ = w.Write([]byte(`{"trade_id":1,"price":"3801.55","size":"0.1"}`))
	})
	price, err := s.FetchPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3801.55, price)
	assert.True(t, s.Supports(symbol.ClassCrypto))
	assert.False(t, s.Supports(symbol.ClassEquity))
}

func TestFetchPriceUnknownProduct(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"NotFound"}`))
	})
	_, err := s.FetchPrice(context.Background(), "FOO-USD")
	assert.Equal(t, market.KindInvalidSymbol, market.KindOf(err))
}

func TestFetchHistoricalPagesAndSorts(t *testing.T) {
	var calls int32
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "86400", r.URL.Query().Get("granularity"))
		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		require.NoError(t, err)
		atomic.AddInt32(&calls, 1)
		// 降序返回窗口内前两天
		d1 := start.Add(24 * time.Hour).Unix()
		d0 := start.Unix()
		fmt.Fprintf(w, `[[%d, 99, 110, 100, 105, 12.5],[%d, 95, 101, 96, 100, 10]]`, d1, d0)
	})
	bars, err := s.FetchHistorical(context.Background(), "BTC-USD", 400)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, bars, 4)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i].Time.After(bars[i-1].Time))
	}
	assert.Equal(t, 96.0, bars[0].Open)
	assert.Equal(t, 95.0, bars[0].Low)
	assert.Equal(t, 101.0, bars[0].High)
	assert.Equal(t, 100.0, bars[0].Close)
}

func TestFetchHistoricalRejectsShortRows(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1717200000, 1, 2]]`))
	})
	_, err := s.FetchHistorical(context.Background(), "BTC-USD", 5)
	assert.Equal(t, market.KindValidation, market.KindOf(err))
}

func TestFetchHistoricalEmpty(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := s.FetchHistorical(context.Background(), "BTC-USD", 5)
	assert.Equal(t, market.KindEmptyData, market.KindOf(err))
}
