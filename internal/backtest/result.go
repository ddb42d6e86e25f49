package backtest

import (
	"fmt"
	"time"
)

// Result 是一次回测的完整输出，构造后交给调用方，不再修改。
type Result struct {
	RunID          string    `json:"run_id" yaml:"run_id"`
	Symbol         string    `json:"symbol" yaml:"symbol"`
	Start          time.Time `json:"start_date" yaml:"start_date"`
	End            time.Time `json:"end_date" yaml:"end_date"`
	InitialCapital float64   `json:"initial_capital" yaml:"initial_capital"`
	FinalCapital   float64   `json:"final_capital" yaml:"final_capital"`

	Metrics `yaml:",inline"`

	EquityCurve []EquityPoint `json:"equity_curve" yaml:"equity_curve"`
	Trades      []Trade       `json:"trades" yaml:"trades"`
}

// Summary 返回单行摘要，供 CLI 与日志使用。
func (r *Result) Summary() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s %s~%s trades=%d win=%.1f%% return=%.2f%% maxDD=%.2f%% sharpe=%.2f best=%s",
		r.Symbol, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly), r.TotalTrades,
		r.WinRate, r.TotalReturnPct, r.MaxDrawdownPct, r.SharpeRatio, r.BestSignal)
}
