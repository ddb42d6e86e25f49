package symbol

import (
	"strings"
)

type Format string

const (
	FormatInternal Format = "internal"
	FormatAlpaca   Format = "alpaca"
	FormatBinance  Format = "binance"
	FormatDash     Format = "dash"
)

// AssetClass 决定一个 symbol 应交给哪些数据源。
type AssetClass string

const (
	ClassEquity AssetClass = "equity"
	ClassCrypto AssetClass = "crypto"
)

type Converter interface {
	ToExchange(internal string) string

	FromExchange(raw string) string

	Format() Format
}

// 内部统一使用 BASE/QUOTE；股票/指数没有 quote，直接用代码本身。
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string {
	if s.Base == "" {
		return ""
	}
	if s.Quote == "" {
		return s.Base
	}
	return s.Base + "/" + s.Quote
}

func (s Symbol) IsPair() bool {
	return s.Base != "" && s.Quote != ""
}

var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "TUSD", "USD"}

// 已知的加密货币根代码，用于识别没有 quote 后缀的写法（如 "BTC"）。
var cryptoRoots = map[string]struct{}{
	"BTC": {}, "ETH": {}, "SOL": {}, "ADA": {}, "DOT": {}, "DOGE": {}, "MATIC": {},
	"XRP": {}, "LTC": {}, "AVAX": {}, "LINK": {}, "BNB": {},
}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	for _, sep := range []string{"/", "-", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			}
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			base := s[:len(s)-len(quote)]
			if _, ok := cryptoRoots[base]; ok || quote != "USD" {
				return Symbol{Base: base, Quote: quote}
			}
		}
	}

	return Symbol{Base: s}
}

// Classify 依据后缀/前缀启发式区分加密货币与股票/指数。
func Classify(raw string) AssetClass {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, marker := range []string{"-USD", "/USD", "USDT", "BUSD"} {
		if strings.Contains(s, marker) {
			return ClassCrypto
		}
	}
	if _, ok := cryptoRoots[Parse(s).Base]; ok {
		return ClassCrypto
	}
	return ClassEquity
}

// IsCrypto 是 Classify(raw) == ClassCrypto 的简写。
func IsCrypto(raw string) bool {
	return Classify(raw) == ClassCrypto
}

// Normalize 把加密货币统一为 BASE/QUOTE，股票/指数只做大写与去空白（保留 BRK-B 这类代码）。
func Normalize(s string) string {
	if !IsCrypto(s) {
		return strings.ToUpper(strings.TrimSpace(s))
	}
	return Parse(s).Internal()
}

// CryptoPair 补全缺失的 quote（默认 USD），股票原样返回。
func CryptoPair(s string) Symbol {
	sym := Parse(s)
	if sym.Base != "" && sym.Quote == "" {
		sym.Quote = "USD"
	}
	return sym
}

func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		norm := Normalize(s)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
