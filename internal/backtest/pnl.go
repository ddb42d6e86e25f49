package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var decHundred = decimal.NewFromInt(100)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalLTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) <= 0 }
func decimalGTE(a, b float64) bool { return decFromFloat(a).Cmp(decFromFloat(b)) >= 0 }

// exitStatus 判断当前价格是否触发止损/止盈。止损优先于止盈，价格为 0 视为未设置。
func exitStatus(t *Trade, price float64, useStopLoss, useTakeProfit bool) (TradeStatus, bool) {
	stopOn := useStopLoss && t.StopLoss > 0
	takeOn := useTakeProfit && t.TakeProfit > 0
	if t.Long() {
		if stopOn && decimalLTE(price, t.StopLoss) {
			return StatusStopped, true
		}
		if takeOn && decimalGTE(price, t.TakeProfit) {
			return StatusWin, true
		}
		return "", false
	}
	if stopOn && decimalGTE(price, t.StopLoss) {
		return StatusStopped, true
	}
	if takeOn && decimalLTE(price, t.TakeProfit) {
		return StatusWin, true
	}
	return "", false
}

// settlement 是一次平仓的结算结果。
type settlement struct {
	gross      decimal.Decimal
	commission decimal.Decimal
	net        decimal.Decimal
	pct        decimal.Decimal
}

// settle 计算净盈亏：多头 (exit-entry)*qty，空头取反，再扣除开平两侧按名义价值收取的手续费。
func settle(entry, exit, qty float64, long bool, commissionPct float64) settlement {
	e := decFromFloat(entry)
	x := decFromFloat(exit)
	q := decFromFloat(qty)
	c := decFromFloat(commissionPct)

	gross := x.Sub(e).Mul(q)
	if !long {
		gross = gross.Neg()
	}
	commission := e.Mul(q).Mul(c).Add(x.Mul(q).Mul(c))
	net := gross.Sub(commission)

	pct := decimal.Zero
	if notional := e.Mul(q); !notional.IsZero() {
		pct = net.Div(notional).Mul(decHundred)
	}
	return settlement{gross: gross, commission: commission, net: net, pct: pct}
}

// closeTrade 填充平仓字段，返回净盈亏。已平仓的交易不会被重复结算。
func closeTrade(t *Trade, exitTime time.Time, exitPrice float64, status TradeStatus, commissionPct float64) (decimal.Decimal, bool) {
	if t == nil || t.Closed() {
		return decimal.Zero, false
	}
	s := settle(t.EntryPrice, exitPrice, t.Quantity, t.Long(), commissionPct)
	pnl := decToFloat(s.net)
	pct := decToFloat(s.pct)
	hold := exitTime.Sub(t.EntryTime).Hours()
	exitAt := exitTime
	price := exitPrice

	t.ExitTime = &exitAt
	t.ExitPrice = &price
	t.PnL = &pnl
	t.PnLPct = &pct
	t.HoldHours = &hold
	t.Status = status
	return s.net, true
}
