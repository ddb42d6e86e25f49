package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func closedTrade(kind SignalKind, pnl, pct, hold float64) Trade {
	return Trade{Signal: kind, PnL: &pnl, PnLPct: &pct, HoldHours: &hold, Status: StatusWin}
}

func TestMaxDrawdown(t *testing.T) {
	curve := []EquityPoint{{Equity: 100000}, {Equity: 110000}, {Equity: 95000}, {Equity: 105000}}
	dd, pct := maxDrawdown(curve)
	assert.Equal(t, 15000.0, dd)
	assert.InDelta(t, 13.64, pct, 0.005)

	m := ComputeMetrics([]Trade{closedTrade(SignalBuy, 5000, 5, 24)}, curve, 100000, 105000,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 15000.0, m.MaxDrawdown)
	assert.InDelta(t, 13.64, m.MaxDrawdownPct, 0.005)
}

func TestComputeMetricsEmpty(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := ComputeMetrics(nil, []EquityPoint{{Time: start, Equity: 100000}}, 100000, 100000, start, start.AddDate(0, 3, 0))
	assert.Equal(t, 0, m.TotalTrades)
	assert.Zero(t, m.TotalReturnPct)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.MaxDrawdown)
	assert.Zero(t, m.TradesPerDay)
	assert.Equal(t, "N/A", m.BestSignal)
	assert.Empty(t, m.SignalPerformance)
}

func TestComputeMetricsAggregates(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		closedTrade(SignalBuy, 100, 10, 48),
		closedTrade(SignalBuy, -50, -5, 24),
		closedTrade(SignalSell, 30, 3, 0),
	}
	curve := []EquityPoint{{Equity: 10000}, {Equity: 10100}, {Equity: 10050}, {Equity: 10080}}
	m := ComputeMetrics(trades, curve, 10000, 10080, start, start.AddDate(0, 0, 10))

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.InDelta(t, 66.6667, m.WinRate, 1e-3)
	assert.Equal(t, 0.8, m.TotalReturnPct)
	assert.Equal(t, 65.0, m.AvgWin)
	assert.Equal(t, -50.0, m.AvgLoss)
	assert.Equal(t, 100.0, m.LargestWin)
	assert.Equal(t, -50.0, m.LargestLoss)
	assert.Equal(t, 2.6, m.ProfitFactor)
	assert.Equal(t, 36.0, m.AvgHoldHours, "zero hold times are ignored")
	assert.InDelta(t, 0.3, m.TradesPerDay, 1e-9)
	assert.Equal(t, 50.0, m.MaxDrawdown)

	avg := 8.0 / 3
	std := math.Sqrt((math.Pow(10-avg, 2) + math.Pow(-5-avg, 2) + math.Pow(3-avg, 2)) / 3)
	assert.InDelta(t, avg/std*math.Sqrt(252), m.SharpeRatio, 1e-9)

	assert.Equal(t, "SELL", m.BestSignal)
	buy := m.SignalPerformance[SignalBuy]
	assert.Equal(t, 2, buy.Trades)
	assert.Equal(t, 50.0, buy.WinRate)
	assert.Equal(t, 25.0, buy.AvgPnL)
	assert.Equal(t, 50.0, buy.TotalPnL)
	assert.NotContains(t, m.SignalPerformance, SignalStrongBuy)
}

func TestComputeMetricsGuards(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := ComputeMetrics([]Trade{closedTrade(SignalStrongBuy, 120, 12, 10)}, nil, 10000, 10120, start, start)
	assert.Equal(t, 120.0, m.ProfitFactor, "no losing trades divides by one")
	assert.Zero(t, m.SharpeRatio, "a single trade has no variance")
	assert.Zero(t, m.TradesPerDay, "zero-day period")

	flat := []Trade{closedTrade(SignalBuy, 10, 1, 1), closedTrade(SignalBuy, 10, 1, 1)}
	m = ComputeMetrics(flat, nil, 10000, 10020, start, start.AddDate(0, 0, 1))
	assert.Zero(t, m.SharpeRatio)
	assert.Equal(t, "BUY", m.BestSignal)
}

func TestBestSignalTiePrefersStrongerBuy(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		closedTrade(SignalSell, 10, 1, 1),
		closedTrade(SignalStrongBuy, 10, 1, 1),
	}
	m := ComputeMetrics(trades, nil, 10000, 10020, start, start.AddDate(0, 0, 5))
	assert.Equal(t, "STRONG_BUY", m.BestSignal)
}
