package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradelab/internal/backtest"
)

func sampleResult() *backtest.Result {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	exit := start.AddDate(0, 0, 9)
	exitPrice, pnl, pct, hold := 110.0, 97.9, 9.79, 216.0
	return &backtest.Result{
		Symbol:         "AAPL",
		Start:          start,
		End:            start.AddDate(0, 3, 0),
		InitialCapital: 10000,
		FinalCapital:   10097.9,
		EquityCurve: []backtest.EquityPoint{
			{Time: start, Equity: 10000},
			{Time: exit, Equity: 10097.9},
		},
		Trades: []backtest.Trade{{
			EntryTime:  start.AddDate(0, 0, 2),
			ExitTime:   &exit,
			Symbol:     "AAPL",
			Signal:     backtest.SignalBuy,
			EntryPrice: 100,
			ExitPrice:  &exitPrice,
			Quantity:   10,
			PnL:        &pnl,
			PnLPct:     &pct,
			HoldHours:  &hold,
			Status:     backtest.StatusWin,
		}},
	}
}

func TestWriteEquityChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEquityChart(&buf, sampleResult()))
	html := buf.String()
	assert.Contains(t, html, "AAPL Equity")
	assert.Contains(t, html, "AAPL Trade PnL")
	assert.Contains(t, html, "2024-01-10")
	assert.Contains(t, html, "10097.9")
}

func TestWriteEquityChartWithoutTrades(t *testing.T) {
	res := sampleResult()
	res.Trades = nil
	var buf bytes.Buffer
	require.NoError(t, WriteEquityChart(&buf, res))
	assert.NotContains(t, buf.String(), "Trade PnL")
}

func TestWriteEquityChartRejectsEmpty(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteEquityChart(&buf, nil))
	assert.Error(t, WriteEquityChart(&buf, &backtest.Result{Symbol: "AAPL"}))
}
