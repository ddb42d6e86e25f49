package symbol

import "strings"

// SlashConverter 输出 BTC/USD（Alpaca 加密货币接口的写法）。
type SlashConverter struct{}

func (SlashConverter) ToExchange(internal string) string {
	if !IsCrypto(internal) {
		return strings.ToUpper(strings.TrimSpace(internal))
	}
	return CryptoPair(internal).Internal()
}

func (SlashConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

func (SlashConverter) Format() Format {
	return FormatAlpaca
}

// DashConverter 输出 BTC-USD（Coinbase / Yahoo 的写法）。
type DashConverter struct{}

func (DashConverter) ToExchange(internal string) string {
	if !IsCrypto(internal) {
		return strings.ToUpper(strings.TrimSpace(internal))
	}
	sym := CryptoPair(internal)
	quote := sym.Quote
	if quote == "USDT" || quote == "BUSD" || quote == "USDC" || quote == "TUSD" {
		quote = "USD"
	}
	return sym.Base + "-" + quote
}

func (DashConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

func (DashConverter) Format() Format {
	return FormatDash
}

var (
	Alpaca = SlashConverter{}
	Dash   = DashConverter{}
)
