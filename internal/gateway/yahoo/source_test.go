package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/market"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *Source {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(Config{
		BaseURL: srv.URL,
		Timeout: time.Second,
		Now:     func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return s
}

func TestFetchPrice(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/BTC-USD", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"regularMarketPrice":67321.4}}],"error":null}}`))
	})
	price, err := s.FetchPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, 67321.4, price)
}

func TestFetchPriceNotFound(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})
	_, err := s.FetchPrice(context.Background(), "ZZZZZ")
	assert.Equal(t, market.KindInvalidSymbol, market.KindOf(err))
}

func TestChartErrorWithOKStatus(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"delisted"}}}`))
	})
	_, err := s.FetchHistorical(context.Background(), "ZZZZZ", 10)
	assert.Equal(t, market.KindInvalidSymbol, market.KindOf(err))
}

func TestFetchHistoricalSkipsNullRows(t *testing.T) {
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/SPY", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`{"chart":{"result":[{
			"meta":{"regularMarketPrice":530},
			"timestamp":[1716773400,1716859800,1716946200],
			"indicators":{"quote":[{
				"open":[525.1,null,527.0],
				"high":[528.0,null,531.2],
				"low":[524.0,null,526.1],
				"close":[527.3,null,530.0],
				"volume":[1000,null,1200]}]}}],"error":null}}`))
	})
	bars, err := s.FetchHistorical(context.Background(), "spy", 7)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 527.3, bars[0].Close)
	assert.Equal(t, 1200.0, bars[1].Volume)
	assert.Equal(t, time.Unix(1716946200, 0).UTC(), bars[1].Time)
}
