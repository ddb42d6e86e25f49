package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/market"
)

func TestKindForStatus(t *testing.T) {
	cases := map[int]market.Kind{
		401: market.KindAuth,
		403: market.KindAuth,
		404: market.KindInvalidSymbol,
		429: market.KindRateLimit,
		500: market.KindNetwork,
		503: market.KindNetwork,
		400: market.KindValidation,
		422: market.KindValidation,
	}
	for status, want := range cases {
		assert.Equal(t, want, KindForStatus(status), status)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "v", r.URL.Query().Get("k"))
			assert.Equal(t, "yes", r.Header.Get("X-Test"))
			_, _ = w.Write([]byte(`{"price": 12.5}`))
		case "/throttled":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"slow down"}`))
		case "/garbage":
			_, _ = w.Write([]byte(`<html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("X-Test", "yes")
	c, err := New(Config{Provider: "demo", BaseURL: srv.URL + "/", Timeout: time.Second, Header: header})
	require.NoError(t, err)

	doc, err := c.GetJSON(context.Background(), "/ok", url.Values{"k": {"v"}})
	require.NoError(t, err)
	assert.Equal(t, 12.5, doc.Get("price").Float())

	_, err = c.GetJSON(context.Background(), "throttled", nil)
	require.Error(t, err)
	assert.Equal(t, market.KindRateLimit, market.KindOf(err))
	assert.Contains(t, err.Error(), "slow down")

	_, err = c.GetJSON(context.Background(), "/missing", nil)
	assert.Equal(t, market.KindInvalidSymbol, market.KindOf(err))

	_, err = c.GetJSON(context.Background(), "/garbage", nil)
	assert.Equal(t, market.KindValidation, market.KindOf(err))
}

func TestGetJSONTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c, err := New(Config{Provider: "demo", BaseURL: base, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.GetJSON(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, market.KindNetwork, market.KindOf(err))
	assert.True(t, market.IsRetryable(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetJSON(ctx, "/x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Provider: "demo"})
	assert.Error(t, err)
	_, err = New(Config{Provider: "demo", BaseURL: "http://x", ProxyURL: "://bad"})
	assert.Error(t, err)
	client, err := NewHTTPClient(0, "http://127.0.0.1:3128")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, client.Timeout)
	assert.NotNil(t, client.Transport)
}
