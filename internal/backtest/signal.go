package backtest

import (
	"context"
	"fmt"
	"strings"

	"tradelab/internal/market"
)

// SignalKind 是信号方向，BUY/STRONG_BUY 开多，SELL/STRONG_SELL 开空。
type SignalKind string

const (
	SignalStrongBuy  SignalKind = "STRONG_BUY"
	SignalBuy        SignalKind = "BUY"
	SignalNeutral    SignalKind = "NEUTRAL"
	SignalSell       SignalKind = "SELL"
	SignalStrongSell SignalKind = "STRONG_SELL"
)

// tradableKinds 同时决定分信号统计的输出顺序。
var tradableKinds = []SignalKind{SignalStrongBuy, SignalBuy, SignalSell, SignalStrongSell}

func ParseSignalKind(raw string) (SignalKind, error) {
	k := SignalKind(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", fmt.Errorf("未知信号类型: %q", raw)
	}
	return k, nil
}

// UnmarshalText 让归档结果解码时拒绝未知信号类型，并接受大小写不一致的写法。
func (k *SignalKind) UnmarshalText(text []byte) error {
	parsed, err := ParseSignalKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k SignalKind) Valid() bool {
	switch k {
	case SignalStrongBuy, SignalBuy, SignalNeutral, SignalSell, SignalStrongSell:
		return true
	default:
		return false
	}
}

func (k SignalKind) IsLong() bool { return k == SignalBuy || k == SignalStrongBuy }

func (k SignalKind) IsShort() bool { return k == SignalSell || k == SignalStrongSell }

// Signal 是信号生成器在某一根 K 线上的输出，构造后不再修改。
type Signal struct {
	Kind       SignalKind `json:"signal" yaml:"signal"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
	StopLoss   float64    `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit float64    `json:"take_profit" yaml:"take_profit"`
}

// SignalGenerator 根据截至当前 K 线的窗口给出交易信号。
// 回测引擎对其调用有超时保护，出错或 panic 都只会跳过该 K 线。
type SignalGenerator interface {
	Evaluate(ctx context.Context, symbol string, window []market.Bar, price float64) (Signal, error)
}

// SignalFunc 让普通函数满足 SignalGenerator。
type SignalFunc func(ctx context.Context, symbol string, window []market.Bar, price float64) (Signal, error)

func (f SignalFunc) Evaluate(ctx context.Context, symbol string, window []market.Bar, price float64) (Signal, error) {
	return f(ctx, symbol, window, price)
}

// HistorySource 提供日线历史，market.Service 与 store.CachedHistory 均满足。
type HistorySource interface {
	GetHistoricalData(ctx context.Context, symbol string, days int) ([]market.Bar, error)
}
