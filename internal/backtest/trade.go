package backtest

import "time"

type TradeStatus string

const (
	StatusOpen        TradeStatus = "open"
	StatusWin         TradeStatus = "win"
	StatusLoss        TradeStatus = "loss"
	StatusStopped     TradeStatus = "stopped"
	StatusEndOfPeriod TradeStatus = "end_of_period"
)

// Trade 记录一笔模拟仓位。平仓前 ExitTime/ExitPrice/PnL 等为 nil，平仓只发生一次。
type Trade struct {
	EntryTime  time.Time   `json:"entry_time" yaml:"entry_time"`
	ExitTime   *time.Time  `json:"exit_time" yaml:"exit_time"`
	Symbol     string      `json:"symbol" yaml:"symbol"`
	Signal     SignalKind  `json:"signal" yaml:"signal"`
	EntryPrice float64     `json:"entry_price" yaml:"entry_price"`
	ExitPrice  *float64    `json:"exit_price" yaml:"exit_price"`
	Quantity   float64     `json:"quantity" yaml:"quantity"`
	StopLoss   float64     `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit float64     `json:"take_profit" yaml:"take_profit"`
	PnL        *float64    `json:"pnl" yaml:"pnl"`
	PnLPct     *float64    `json:"pnl_pct" yaml:"pnl_pct"`
	Status     TradeStatus `json:"status" yaml:"status"`
	Confidence float64     `json:"confidence" yaml:"confidence"`
	HoldHours  *float64    `json:"hold_time_hours" yaml:"hold_time_hours"`
}

func (t *Trade) Closed() bool { return t.Status != StatusOpen && t.ExitTime != nil }

func (t *Trade) Long() bool { return t.Signal.IsLong() }

func (t *Trade) pnl() float64 {
	if t.PnL == nil {
		return 0
	}
	return *t.PnL
}

func (t *Trade) pnlPct() float64 {
	if t.PnLPct == nil {
		return 0
	}
	return *t.PnLPct
}

// EquityPoint 是资金曲线上的一个点：开始时一个，此后每次平仓一个。
type EquityPoint struct {
	Time   time.Time `json:"date" yaml:"date"`
	Equity float64   `json:"equity" yaml:"equity"`
}
