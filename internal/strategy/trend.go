// Package strategy 提供基于技术指标的参考信号生成器，供回测引擎使用。
package strategy

import (
	"context"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"tradelab/internal/backtest"
	"tradelab/internal/market"
)

type TrendConfig struct {
	EMAFast    int
	EMASlow    int
	RSIPeriod  int
	StopPct    float64
	TakePct    float64
	Overbought float64
	Oversold   float64
}

func (c TrendConfig) withDefaults() TrendConfig {
	if c.EMAFast <= 0 {
		c.EMAFast = 12
	}
	if c.EMASlow <= 0 {
		c.EMASlow = 26
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.StopPct <= 0 {
		c.StopPct = 0.05
	}
	if c.TakePct <= 0 {
		c.TakePct = 0.10
	}
	if c.Overbought == 0 {
		c.Overbought = 70
	}
	if c.Oversold == 0 {
		c.Oversold = 30
	}
	return c
}

// TrendGenerator 用 EMA 快慢线方向判断趋势，RSI 过滤追高/杀跌。
type TrendGenerator struct {
	cfg TrendConfig
}

var _ backtest.SignalGenerator = (*TrendGenerator)(nil)

func NewTrendGenerator(cfg TrendConfig) (*TrendGenerator, error) {
	cfg = cfg.withDefaults()
	if cfg.EMAFast >= cfg.EMASlow {
		return nil, fmt.Errorf("ema_fast(%d) 必须小于 ema_slow(%d)", cfg.EMAFast, cfg.EMASlow)
	}
	if cfg.StopPct >= 1 {
		return nil, fmt.Errorf("stop_pct 需小于 1: %v", cfg.StopPct)
	}
	if cfg.Oversold >= cfg.Overbought {
		return nil, fmt.Errorf("oversold(%.1f) 必须小于 overbought(%.1f)", cfg.Oversold, cfg.Overbought)
	}
	return &TrendGenerator{cfg: cfg}, nil
}

// MinBars 为产生有效信号所需的最少 K 线数。
func (g *TrendGenerator) MinBars() int {
	return max(g.cfg.EMASlow, g.cfg.RSIPeriod+1) + 1
}

type trendInputs struct {
	fastPrev, slowPrev float64
	fastNow, slowNow   float64
	rsi                float64
}

func (g *TrendGenerator) Evaluate(ctx context.Context, symbol string, window []market.Bar, price float64) (backtest.Signal, error) {
	if err := ctx.Err(); err != nil {
		return backtest.Signal{}, err
	}
	if need := g.MinBars(); len(window) < need {
		return backtest.Signal{}, fmt.Errorf("%s: 窗口只有 %d 根 K 线，需要 ≥%d", symbol, len(window), need)
	}
	if price <= 0 || math.IsNaN(price) {
		return backtest.Signal{}, fmt.Errorf("%s: 无效价格 %v", symbol, price)
	}
	closes := market.Closes(window)
	fast := talib.Ema(closes, g.cfg.EMAFast)
	slow := talib.Ema(closes, g.cfg.EMASlow)
	rsi := talib.Rsi(closes, g.cfg.RSIPeriod)
	n := len(closes)
	in := trendInputs{
		fastPrev: fast[n-2],
		slowPrev: slow[n-2],
		fastNow:  fast[n-1],
		slowNow:  slow[n-1],
		rsi:      rsi[n-1],
	}
	for _, v := range []float64{in.fastPrev, in.slowPrev, in.fastNow, in.slowNow, in.rsi} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return backtest.Signal{}, fmt.Errorf("%s: 指标结果无效", symbol)
		}
	}

	kind := g.classify(in)
	sig := backtest.Signal{Kind: kind, Confidence: g.confidence(in, kind)}
	switch {
	case kind.IsLong():
		sig.StopLoss = relativePrice(price, -g.cfg.StopPct)
		sig.TakeProfit = relativePrice(price, g.cfg.TakePct)
	case kind.IsShort():
		sig.StopLoss = relativePrice(price, g.cfg.StopPct)
		sig.TakeProfit = relativePrice(price, -g.cfg.TakePct)
	}
	return sig, nil
}

// classify: 快线在慢线之上为多头，刚上穿且 RSI>50 为强多；RSI 超买时不追。空头对称。
func (g *TrendGenerator) classify(in trendInputs) backtest.SignalKind {
	switch {
	case in.fastNow > in.slowNow:
		if in.rsi >= g.cfg.Overbought {
			return backtest.SignalNeutral
		}
		if in.fastPrev <= in.slowPrev && in.rsi > 50 {
			return backtest.SignalStrongBuy
		}
		return backtest.SignalBuy
	case in.fastNow < in.slowNow:
		if in.rsi <= g.cfg.Oversold {
			return backtest.SignalNeutral
		}
		if in.fastPrev >= in.slowPrev && in.rsi < 50 {
			return backtest.SignalStrongSell
		}
		return backtest.SignalSell
	default:
		return backtest.SignalNeutral
	}
}

// confidence = 0.5 基础分 + 均线张口(≤0.25) + RSI 偏离中轴(≤0.15) + 交叉奖励 0.1。
func (g *TrendGenerator) confidence(in trendInputs, kind backtest.SignalKind) float64 {
	if kind == backtest.SignalNeutral || in.slowNow == 0 {
		return 0
	}
	spread := math.Abs(in.fastNow-in.slowNow) / math.Abs(in.slowNow)
	momentum := math.Abs(in.rsi-50) / 50
	conf := 0.5 + math.Min(spread*20, 0.25) + math.Min(momentum*0.15, 0.15)
	if kind == backtest.SignalStrongBuy || kind == backtest.SignalStrongSell {
		conf += 0.1
	}
	conf = math.Min(conf, 1)
	return math.Round(conf*10000) / 10000
}

func relativePrice(price, pct float64) float64 {
	f, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct))).Float64()
	return f
}
