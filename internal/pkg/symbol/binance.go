package symbol

import "strings"

// BinanceConverter 输出 BTCUSDT 形式；USD 计价映射到 USDT 合约。
type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	sym := CryptoPair(internal)
	if sym.Base == "" {
		return ""
	}
	quote := sym.Quote
	if quote == "USD" {
		quote = "USDT"
	}
	return strings.ToUpper(sym.Base + quote)
}

func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

func (BinanceConverter) Format() Format {
	return FormatBinance
}

var Binance = BinanceConverter{}
