package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tradelab/internal/backtest"
	"tradelab/internal/market"
	"tradelab/internal/store"
)

type MockMarket struct {
	mock.Mock
}

func (m *MockMarket) GetPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockMarket) GetHistoricalData(ctx context.Context, symbol string, days int) ([]market.Bar, error) {
	args := m.Called(ctx, symbol, days)
	bars, _ := args.Get(0).([]market.Bar)
	return bars, args.Error(1)
}

func (m *MockMarket) GetMarketSnapshot(ctx context.Context, symbols []string) (map[string]market.SnapshotEntry, error) {
	args := m.Called(ctx, symbols)
	snap, _ := args.Get(0).(map[string]market.SnapshotEntry)
	return snap, args.Error(1)
}

func (m *MockMarket) GetProviderStatus() map[string]market.ProviderStatus {
	args := m.Called()
	return args.Get(0).(map[string]market.ProviderStatus)
}

func (m *MockMarket) Reconfigure(name string) error {
	return m.Called(name).Error(0)
}

type MockBacktester struct {
	mock.Mock
}

func (m *MockBacktester) Run(ctx context.Context, req backtest.Request) (*backtest.Result, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*backtest.Result)
	return res, args.Error(1)
}

var fixedNow = time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *MockMarket, *MockBacktester) {
	t.Helper()
	mk := &MockMarket{}
	bt := &MockBacktester{}
	srv, err := NewServer(Config{
		Market:     mk,
		Backtester: bt,
		Clock:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return srv, mk, bt
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func sampleResult(id, sym string) *backtest.Result {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &backtest.Result{
		RunID:          id,
		Symbol:         sym,
		Start:          start,
		End:            start.AddDate(0, 3, 0),
		InitialCapital: 100000,
		FinalCapital:   101000,
		Metrics:        backtest.Metrics{TotalTrades: 2, WinRate: 50, BestSignal: "BUY"},
		EquityCurve:    []backtest.EquityPoint{{Time: start, Equity: 100000}, {Time: start.AddDate(0, 1, 0), Equity: 101000}},
		Trades:         []backtest.Trade{},
	}
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{Backtester: &MockBacktester{}})
	assert.Error(t, err)
	_, err = NewServer(Config{Market: &MockMarket{}})
	assert.Error(t, err)
}

func TestPriceEndpoint(t *testing.T) {
	srv, mk, _ := newTestServer(t)
	mk.On("GetPrice", mock.Anything, "BTC/USD").Return(64000.5, nil)
	mk.On("GetPrice", mock.Anything, "ZZZZ").Return(0.0, fmt.Errorf("all providers failed: %w", market.ErrNoData))

	rec := do(t, srv, http.MethodGet, "/api/price/BTC/USD", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTC/USD", body.Symbol)
	assert.Equal(t, 64000.5, body.Price)

	rec = do(t, srv, http.MethodGet, "/api/price/ZZZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
	mk.AssertExpectations(t)
}

func TestHistoryEndpointValidatesDays(t *testing.T) {
	srv, mk, _ := newTestServer(t)
	bars := []market.Bar{{Time: fixedNow, Open: 1, High: 2, Low: 1, Close: 2, Volume: 3}}
	mk.On("GetHistoricalData", mock.Anything, "AAPL", 30).Return(bars, nil).Once()
	mk.On("GetHistoricalData", mock.Anything, "AAPL", 90).Return(bars, nil).Once()

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/history/AAPL", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/history/AAPL?days=90", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/history/AAPL?days=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/history/AAPL?days=5000", "").Code)
	mk.AssertExpectations(t)
}

func TestProvidersAndReset(t *testing.T) {
	srv, mk, _ := newTestServer(t)
	status := map[string]market.ProviderStatus{"yahoo": {Configured: true}}
	mk.On("GetProviderStatus").Return(status)
	mk.On("Reconfigure", "yahoo").Return(nil).Once()

	rec := do(t, srv, http.MethodGet, "/api/providers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "yahoo")

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/providers/yahoo/reset", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/providers/nope/reset", "").Code)
	mk.AssertNumberOfCalls(t, "Reconfigure", 1)
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, mk, _ := newTestServer(t)
	snap := map[string]market.SnapshotEntry{
		"AAPL": {Symbol: "AAPL", Available: true, Price: 190},
		"ZZZZ": {Symbol: "ZZZZ", Available: false, Error: "no data"},
	}
	mk.On("GetMarketSnapshot", mock.Anything, []string{"AAPL", "ZZZZ"}).Return(snap, nil)

	rec := do(t, srv, http.MethodPost, "/api/snapshot", `{"symbols":["AAPL","ZZZZ"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Snapshot map[string]market.SnapshotEntry `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Snapshot["AAPL"].Available)
	assert.False(t, body.Snapshot["ZZZZ"].Available)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/snapshot", `{"symbols":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/snapshot", `not json`).Code)
}

func TestBacktestAppliesDefaultsAndStoresResult(t *testing.T) {
	srv, _, bt := newTestServer(t)
	want := backtest.Request{
		Symbol:          "AAPL",
		Start:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:             time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		PositionSizePct: 0.1,
		UseStopLoss:     true,
		UseTakeProfit:   false,
		MinConfidence:   0.6,
	}
	bt.On("Run", mock.Anything, want).Return(sampleResult("run-1", "AAPL"), nil).Once()

	rec := do(t, srv, http.MethodPost, "/api/backtest",
		`{"symbol":"AAPL","start_date":"2024-01-01","end_date":"2024-06-01","use_take_profit":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res backtest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.TotalTrades)

	rec = do(t, srv, http.MethodGet, "/api/backtest/run-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/backtest/run-1/chart", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "AAPL Equity")
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/backtest/missing", "").Code)
	bt.AssertExpectations(t)
}

func TestBacktestRangePolicy(t *testing.T) {
	srv, _, bt := newTestServer(t)
	cases := []struct {
		name string
		body string
	}{
		{"too short", `{"symbol":"AAPL","start_date":"2024-01-01","end_date":"2024-01-20"}`},
		{"too long", `{"symbol":"AAPL","start_date":"2015-01-01","end_date":"2024-01-01"}`},
		{"reversed", `{"symbol":"AAPL","start_date":"2024-06-01","end_date":"2024-01-01"}`},
		{"bad date", `{"symbol":"AAPL","start_date":"01/01/2024","end_date":"2024-06-01"}`},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, "/api/backtest", tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.name)
	}
	bt.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestBacktestErrorMapping(t *testing.T) {
	srv, _, bt := newTestServer(t)
	bt.On("Run", mock.Anything, mock.MatchedBy(func(r backtest.Request) bool { return r.Symbol == "THIN" })).
		Return(nil, fmt.Errorf("%w: 12 bars", backtest.ErrInsufficientData))
	bt.On("Run", mock.Anything, mock.MatchedBy(func(r backtest.Request) bool { return r.Symbol == "BAD" })).
		Return(nil, fmt.Errorf("%w: position_size_pct", backtest.ErrInvalidRequest))
	bt.On("Run", mock.Anything, mock.MatchedBy(func(r backtest.Request) bool { return r.Symbol == "BOOM" })).
		Return(nil, errors.New("boom"))

	body := func(sym string) string {
		return fmt.Sprintf(`{"symbol":%q,"start_date":"2024-01-01","end_date":"2024-06-01"}`, sym)
	}
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, srv, http.MethodPost, "/api/backtest", body("THIN")).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/backtest", body("BAD")).Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, srv, http.MethodPost, "/api/backtest", body("BOOM")).Code)
}

func TestQuickBacktestUsesPresetWindow(t *testing.T) {
	srv, _, bt := newTestServer(t)
	end := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	bt.On("Run", mock.Anything, mock.MatchedBy(func(r backtest.Request) bool {
		return r.Symbol == "MSFT" && r.End.Equal(end) && r.Start.Equal(end.AddDate(0, 0, -90)) && r.MinConfidence == 0.7
	})).Return(sampleResult("run-q", "MSFT"), nil).Once()

	rec := do(t, srv, http.MethodPost, "/api/backtest/quick", `{"symbol":"MSFT","timeframe":"3m","min_confidence":0.7}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, srv, http.MethodPost, "/api/backtest/quick", `{"symbol":"MSFT","timeframe":"10Y"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	bt.AssertExpectations(t)
}

func TestCompareKeepsPerSymbolFailures(t *testing.T) {
	srv, _, bt := newTestServer(t)
	bt.On("Run", mock.Anything, mock.MatchedBy(func(r backtest.Request) bool { return r.Symbol == "AAPL" })).
		Return(sampleResult("run-a", "AAPL"), nil)
	bt.On("Run", mock.Anything, mock.MatchedBy(func(r backtest.Request) bool { return r.Symbol == "ZZZZ" })).
		Return(nil, backtest.ErrInsufficientData)

	rec := do(t, srv, http.MethodPost, "/api/backtest/compare", `{"symbols":["zzzz","aapl"],"timeframe":"1Y"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Results []compareEntry `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, "AAPL", body.Results[0].Symbol)
	assert.Equal(t, "run-a", body.Results[0].RunID)
	require.NotNil(t, body.Results[0].Metrics)
	assert.Equal(t, "BUY", body.Results[0].Metrics.BestSignal)
	assert.Equal(t, "ZZZZ", body.Results[1].Symbol)
	assert.NotEmpty(t, body.Results[1].Error)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/backtest/compare", `{"symbols":[]}`).Code)
}

func TestResultRegistryEvictsOldest(t *testing.T) {
	r := newResultRegistry(2, func() time.Time { return fixedNow })
	r.put(sampleResult("a", "AAPL"))
	r.put(sampleResult("b", "MSFT"))
	r.put(sampleResult("c", "AAPL"))
	_, ok := r.get("a")
	assert.False(t, ok)
	_, ok = r.get("c")
	assert.True(t, ok)
	r.put(nil)
	assert.Len(t, r.order, 2)

	all := r.list("", 10)
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].RunID)
	assert.True(t, all[0].CreatedAt.Equal(fixedNow))
	only := r.list("MSFT", 10)
	require.Len(t, only, 1)
	assert.Equal(t, "b", only[0].RunID)
}

func TestRequestBodiesAreSchemaValidated(t *testing.T) {
	srv, _, bt := newTestServer(t)
	cases := []struct {
		path string
		body string
		want string
	}{
		{"/api/backtest", `{"start_date":"2024-01-01","end_date":"2024-06-01"}`, "symbol"},
		{"/api/backtest", `{"symbol":"AAPL","start_date":"2024-01-01","end_date":"2024-06-01","position_size_pct":1.5}`, "/position_size_pct"},
		{"/api/backtest", `{"symbol":"AAPL","start_date":"2024-01-01","end_date":"2024-06-01","use_stop_loss":"yes"}`, "/use_stop_loss"},
		{"/api/backtest/quick", `{"symbol":"AAPL","min_confidence":-0.1}`, "/min_confidence"},
		{"/api/backtest/compare", `{"symbols":"AAPL"}`, "/symbols"},
		{"/api/snapshot", `{"symbols":[1,2]}`, "/symbols/"},
		{"/api/backtest", `[1,2,3]`, "参数校验失败"},
	}
	for _, tc := range cases {
		rec := do(t, srv, http.MethodPost, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.body)
		assert.Contains(t, rec.Body.String(), tc.want, tc.body)
	}
	bt.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) SaveRun(ctx context.Context, res *backtest.Result) error {
	return m.Called(ctx, res).Error(0)
}

func (m *MockArchive) LoadRun(ctx context.Context, runID string) (*backtest.Result, bool, error) {
	args := m.Called(ctx, runID)
	res, _ := args.Get(0).(*backtest.Result)
	return res, args.Bool(1), args.Error(2)
}

func (m *MockArchive) ListRuns(ctx context.Context, symbol string, limit int) ([]store.RunSummary, error) {
	args := m.Called(ctx, symbol, limit)
	runs, _ := args.Get(0).([]store.RunSummary)
	return runs, args.Error(1)
}

func TestBacktestResultsUseArchive(t *testing.T) {
	mk, bt, arch := &MockMarket{}, &MockBacktester{}, &MockArchive{}
	srv, err := NewServer(Config{Market: mk, Backtester: bt, Runs: arch, Clock: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	bt.On("Run", mock.Anything, mock.Anything).Return(sampleResult("run-new", "AAPL"), nil).Once()
	arch.On("SaveRun", mock.Anything, mock.MatchedBy(func(r *backtest.Result) bool { return r.RunID == "run-new" })).
		Return(errors.New("disk full")).Once()
	rec := do(t, srv, http.MethodPost, "/api/backtest", `{"symbol":"AAPL","start_date":"2024-01-01","end_date":"2024-06-01"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "archive failures do not fail the request")

	arch.On("LoadRun", mock.Anything, "run-old").Return(sampleResult("run-old", "MSFT"), true, nil).Once()
	arch.On("LoadRun", mock.Anything, "gone").Return(nil, false, nil).Once()
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/backtest/run-old", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/backtest/run-old/chart", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/backtest/gone", "").Code)

	arch.On("ListRuns", mock.Anything, "BTC/USD", 5).Return([]store.RunSummary{{RunID: "run-x", Symbol: "BTC/USD"}}, nil).Once()
	rec = do(t, srv, http.MethodGet, "/api/backtests?symbol=btc-usd&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "run-x")
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/backtests?limit=0", "").Code)

	arch.AssertExpectations(t)
	bt.AssertExpectations(t)
}

func TestListRunsFallsBackToMemory(t *testing.T) {
	srv, _, bt := newTestServer(t)
	bt.On("Run", mock.Anything, mock.Anything).Return(sampleResult("run-1", "AAPL"), nil).Once()
	do(t, srv, http.MethodPost, "/api/backtest", `{"symbol":"AAPL","start_date":"2024-01-01","end_date":"2024-06-01"}`)

	rec := do(t, srv, http.MethodGet, "/api/backtests", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []store.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "run-1", body.Runs[0].RunID)
}
