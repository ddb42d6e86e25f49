package alphavantage

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

func newTestSource(t *testing.T, body string) *Source {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "av-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	s, err := New(Config{
		APIKey:  "av-key",
		BaseURL: srv.URL,
		Timeout: time.Second,
		Now:     func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return s
}

func TestFetchPrice(t *testing.T) {
	s := newTestSource(t, `{"Global Quote":{"01. symbol":"IBM","05. price":"191.2300"}}`)
	price, err := s.FetchPrice(context.Background(), "ibm")
	require.NoError(t, err)
	assert.Equal(t, 191.23, price)
}

func TestFetchPriceUnknownSymbol(t *testing.T) {
	s := newTestSource(t, `{"Global Quote":{}}`)
	_, err := s.FetchPrice(context.Background(), "NOPE")
	assert.Equal(t, market.KindInvalidSymbol, market.KindOf(err))
}

func TestBodyErrors(t *testing.T) {
	cases := []struct {
		body string
		kind market.Kind
	}{
		{`{"Error Message":"Invalid API call."}`, market.KindInvalidSymbol},
		{`{"Note":"Our standard API call frequency is 5 calls per minute."}`, market.KindRateLimit},
		{`{"Information":"the parameter apikey is invalid or missing."}`, market.KindAuth},
		{`{"Information":"something else entirely"}`, market.KindValidation},
	}
	for _, tc := range cases {
		s := newTestSource(t, tc.body)
		_, err := s.FetchPrice(context.Background(), "IBM")
		assert.Equal(t, tc.kind, market.KindOf(err), tc.body)
	}
}

func TestFetchHistoricalFiltersWindow(t *testing.T) {
	s := newTestSource(t, `{"Meta Data":{},"Time Series (Daily)":{
		"2024-03-08":{"1. open":"10","2. high":"12","3. low":"9","4. close":"11","5. volume":"100"},
		"2024-03-07":{"1. open":"9","2. high":"10","3. low":"8","4. close":"10","5. volume":"90"},
		"2024-01-02":{"1. open":"5","2. high":"6","3. low":"4","4. close":"5","5. volume":"50"}}}`)
	bars, err := s.FetchHistorical(context.Background(), "IBM", 30)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 11.0, bars[1].Close)
	assert.Equal(t, 100.0, bars[1].Volume)

	_, err = s.FetchHistorical(context.Background(), "IBM", 1)
	assert.Equal(t, market.KindEmptyData, market.KindOf(err))
}
