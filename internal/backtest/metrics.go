package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// tradingDaysPerYear 用于年化 Sharpe。
const tradingDaysPerYear = 252

const noBestSignal = "N/A"

type SignalStats struct {
	Trades   int     `json:"total_trades" yaml:"total_trades"`
	WinRate  float64 `json:"win_rate" yaml:"win_rate"`
	AvgPnL   float64 `json:"avg_pnl" yaml:"avg_pnl"`
	TotalPnL float64 `json:"total_pnl" yaml:"total_pnl"`
}

// Metrics 为回测统计。百分比字段均为 0-100 的数值。
type Metrics struct {
	TotalReturnPct    float64                    `json:"total_return_pct" yaml:"total_return_pct"`
	TotalTrades       int                        `json:"total_trades" yaml:"total_trades"`
	WinningTrades     int                        `json:"winning_trades" yaml:"winning_trades"`
	LosingTrades      int                        `json:"losing_trades" yaml:"losing_trades"`
	WinRate           float64                    `json:"win_rate" yaml:"win_rate"`
	AvgWin            float64                    `json:"avg_win" yaml:"avg_win"`
	AvgLoss           float64                    `json:"avg_loss" yaml:"avg_loss"`
	LargestWin        float64                    `json:"largest_win" yaml:"largest_win"`
	LargestLoss       float64                    `json:"largest_loss" yaml:"largest_loss"`
	ProfitFactor      float64                    `json:"profit_factor" yaml:"profit_factor"`
	SharpeRatio       float64                    `json:"sharpe_ratio" yaml:"sharpe_ratio"`
	MaxDrawdown       float64                    `json:"max_drawdown" yaml:"max_drawdown"`
	MaxDrawdownPct    float64                    `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	AvgHoldHours      float64                    `json:"avg_hold_time_hours" yaml:"avg_hold_time_hours"`
	TradesPerDay      float64                    `json:"trades_per_day" yaml:"trades_per_day"`
	BestSignal        string                     `json:"best_signal_type" yaml:"best_signal_type"`
	SignalPerformance map[SignalKind]SignalStats `json:"signal_performance" yaml:"signal_performance"`
}

// ComputeMetrics 汇总交易与资金曲线。没有交易时返回全零结果而不是错误。
func ComputeMetrics(trades []Trade, curve []EquityPoint, initial, final float64, start, end time.Time) Metrics {
	m := Metrics{BestSignal: noBestSignal, SignalPerformance: map[SignalKind]SignalStats{}}
	if len(trades) == 0 {
		return m
	}
	m.TotalTrades = len(trades)
	if initial > 0 {
		m.TotalReturnPct = decToFloat(decFromFloat(final).Sub(decFromFloat(initial)).Div(decFromFloat(initial)).Mul(decHundred))
	}

	var wins, losses []float64
	for i := range trades {
		switch p := trades[i].pnl(); {
		case p > 0:
			wins = append(wins, p)
		case p < 0:
			losses = append(losses, p)
		}
	}
	m.WinningTrades = len(wins)
	m.LosingTrades = len(losses)
	m.WinRate = float64(len(wins)) / float64(len(trades)) * 100
	m.AvgWin = mean(wins)
	m.AvgLoss = mean(losses)
	m.LargestWin = extreme(wins, math.Max)
	m.LargestLoss = extreme(losses, math.Min)

	grossProfit := sum(wins)
	grossLoss := sum(losses).Abs()
	if len(losses) == 0 {
		grossLoss = decimal.NewFromInt(1)
	}
	if grossLoss.IsPositive() {
		m.ProfitFactor = decToFloat(grossProfit.Div(grossLoss))
	}

	m.SharpeRatio = sharpe(trades)
	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(curve)

	var holds []float64
	for i := range trades {
		if h := trades[i].HoldHours; h != nil && *h > 0 {
			holds = append(holds, *h)
		}
	}
	m.AvgHoldHours = mean(holds)

	if days := int(end.Sub(start).Hours() / 24); days > 0 {
		m.TradesPerDay = float64(len(trades)) / float64(days)
	}

	best := -1.0
	for _, kind := range tradableKinds {
		stats, ok := signalStats(trades, kind)
		if !ok {
			continue
		}
		m.SignalPerformance[kind] = stats
		if stats.WinRate > best {
			best = stats.WinRate
			m.BestSignal = string(kind)
		}
	}
	return m
}

func signalStats(trades []Trade, kind SignalKind) (SignalStats, bool) {
	var pnls []float64
	wins := 0
	for i := range trades {
		if trades[i].Signal != kind {
			continue
		}
		p := trades[i].pnl()
		pnls = append(pnls, p)
		if p > 0 {
			wins++
		}
	}
	if len(pnls) == 0 {
		return SignalStats{}, false
	}
	return SignalStats{
		Trades:   len(pnls),
		WinRate:  float64(wins) / float64(len(pnls)) * 100,
		AvgPnL:   mean(pnls),
		TotalPnL: decToFloat(sum(pnls)),
	}, true
}

// sharpe 使用每笔交易的收益率百分比与总体标准差，按 252 个交易日年化。
func sharpe(trades []Trade) float64 {
	var returns []float64
	for i := range trades {
		if r := trades[i].pnlPct(); r != 0 {
			returns = append(returns, r)
		}
	}
	if len(returns) < 2 {
		return 0
	}
	avg := mean(returns)
	var variance float64
	for _, r := range returns {
		variance += (r - avg) * (r - avg)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return avg / std * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown 跟踪资金曲线的滚动峰值，返回最大回撤金额与最大回撤百分比。
func maxDrawdown(curve []EquityPoint) (float64, float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Equity
	var maxDD, maxPct float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		dd := peak - p.Equity
		maxDD = math.Max(maxDD, dd)
		if peak > 0 {
			maxPct = math.Max(maxPct, dd/peak*100)
		}
	}
	return maxDD, maxPct
}

func sum(values []float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decFromFloat(v))
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return decToFloat(sum(values).Div(decimal.NewFromInt(int64(len(values)))))
}

func extreme(values []float64, pick func(a, b float64) float64) float64 {
	if len(values) == 0 {
		return 0
	}
	out := values[0]
	for _, v := range values[1:] {
		out = pick(out, v)
	}
	return out
}
