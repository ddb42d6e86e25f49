package market

import (
	"math"

	"tradelab/internal/logger"
)

// SuspiciousPrice 以上的报价只告警不拒绝。
const SuspiciousPrice = 1e7

// ValidatePrice 拒绝非有限或非正的报价。
func ValidatePrice(provider string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return NewError(provider, KindValidation, "price is not a finite number")
	}
	if value <= 0 {
		return NewError(provider, KindValidation, "price must be positive, got %v", value)
	}
	if value > SuspiciousPrice {
		logger.Warnf("[market] %s 返回异常高价 %.2f，仍接受", provider, value)
	}
	return nil
}

// ValidateBars 校验整段 K 线，任一根不合法则整段拒绝。
func ValidateBars(provider string, bars []Bar, minCount int) error {
	if len(bars) == 0 {
		return NewError(provider, KindEmptyData, "no bars returned")
	}
	if len(bars) < minCount {
		return NewError(provider, KindValidation, "insufficient bars: got %d, need %d", len(bars), minCount)
	}
	for i, b := range bars {
		if err := validateBar(provider, i, b); err != nil {
			logger.Warnf("[market] %s 数据校验失败: %v", provider, err)
			return err
		}
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return NewError(provider, KindValidation, "bar %d: timestamp %s not after previous %s",
				i, b.Time.Format("2006-01-02T15:04:05Z07:00"), bars[i-1].Time.Format("2006-01-02T15:04:05Z07:00"))
		}
	}
	return nil
}

func validateBar(provider string, i int, b Bar) error {
	if b.Time.IsZero() {
		return NewError(provider, KindValidation, "bar %d: missing timestamp", i)
	}
	fields := [...]struct {
		name string
		v    float64
	}{{"open", b.Open}, {"high", b.High}, {"low", b.Low}, {"close", b.Close}}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) || f.v <= 0 {
			return NewError(provider, KindValidation, "bar %d: %s must be positive, got %v", i, f.name, f.v)
		}
	}
	if b.High < b.Low {
		return NewError(provider, KindValidation, "bar %d: high %v below low %v", i, b.High, b.Low)
	}
	if b.Open < b.Low || b.Open > b.High {
		return NewError(provider, KindValidation, "bar %d: open %v outside [%v, %v]", i, b.Open, b.Low, b.High)
	}
	if b.Close < b.Low || b.Close > b.High {
		return NewError(provider, KindValidation, "bar %d: close %v outside [%v, %v]", i, b.Close, b.Low, b.High)
	}
	if math.IsNaN(b.Volume) || b.Volume < 0 {
		return NewError(provider, KindValidation, "bar %d: volume must be non-negative, got %v", i, b.Volume)
	}
	return nil
}
