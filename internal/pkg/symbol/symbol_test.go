package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := map[string]AssetClass{
		"AAPL":     ClassEquity,
		"spy":      ClassEquity,
		"BRK-B":    ClassEquity,
		"ADAP":     ClassEquity,
		"BTC-USD":  ClassCrypto,
		"eth/usd":  ClassCrypto,
		"SOLUSDT":  ClassCrypto,
		"XRPBUSD":  ClassCrypto,
		"DOGE":     ClassCrypto,
		"BTCUSD":   ClassCrypto,
		" matic ":  ClassCrypto,
		"LINK-EUR": ClassCrypto,
	}
	for in, want := range cases {
		assert.Equal(t, want, Classify(in), in)
		assert.Equal(t, want == ClassCrypto, IsCrypto(in), in)
	}
}

func TestParse(t *testing.T) {
	assert.Equal(t, Symbol{Base: "BTC", Quote: "USDT"}, Parse("btcusdt"))
	assert.Equal(t, Symbol{Base: "ETH", Quote: "USD"}, Parse("ETH-USD"))
	assert.Equal(t, Symbol{Base: "SOL", Quote: "USD"}, Parse("SOLUSD"))
	assert.Equal(t, Symbol{Base: "AAPL"}, Parse("AAPL"))
	assert.Equal(t, Symbol{}, Parse("  "))
	assert.Equal(t, "BTC/USDT", Normalize("BTCUSDT:USDT"))
	assert.Equal(t, "BRK-B", Normalize(" brk-b "))
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("BTC-USD"))
	assert.Equal(t, "ETHUSDT", Binance.ToExchange("ETH"))
	assert.Equal(t, "BTC/USDT", Binance.FromExchange("BTCUSDT"))

	assert.Equal(t, "BTC/USD", Alpaca.ToExchange("BTC-USD"))
	assert.Equal(t, "BTC/USD", Alpaca.ToExchange("btc"))
	assert.Equal(t, "BRK-B", Alpaca.ToExchange("brk-b"))

	assert.Equal(t, "ETH-USD", Dash.ToExchange("ETHUSDT"))
	assert.Equal(t, "MSFT", Dash.ToExchange("msft"))
}

func TestNormalizeList(t *testing.T) {
	got := NormalizeList([]string{"btc-usd", "BTC/USD", "", "aapl"})
	assert.Equal(t, []string{"BTC/USD", "AAPL"}, got)
	assert.Nil(t, NormalizeList(nil))
}
