package binance

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"tradelab/internal/gateway/rest"
	"tradelab/internal/market"
	symbolpkg "tradelab/internal/pkg/symbol"
)

const (
	Name            = "binance"
	maxHistoryLimit = 1500
)

// Source 基于 go-binance SDK 的 USDT 永续公共行情，无需凭证。
type Source struct {
	cfg    Config
	client *futures.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient, err := rest.NewHTTPClient(final.HTTPTimeout, final.RESTProxyURL)
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) Name() string { return Name }

func (s *Source) Supports(class symbolpkg.AssetClass) bool { return class == symbolpkg.ClassCrypto }

func (s *Source) FetchPrice(ctx context.Context, sym string) (float64, error) {
	// Binance 需要无分隔符的写法，如 BTCUSDT
	cleanSymbol := symbolpkg.Binance.ToExchange(sym)
	prices, err := s.client.NewListPricesService().Symbol(cleanSymbol).Do(ctx)
	if err != nil {
		return 0, classify(ctx, err)
	}
	for _, p := range prices {
		if p == nil || !strings.EqualFold(p.Symbol, cleanSymbol) {
			continue
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, market.WrapError(Name, market.KindValidation, err, "bad price %q", p.Price)
		}
		return v, nil
	}
	return 0, market.NewError(Name, market.KindEmptyData, "no price for %s", cleanSymbol)
}

func (s *Source) FetchHistorical(ctx context.Context, sym string, days int) ([]market.Bar, error) {
	limit := days
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	cleanSymbol := symbolpkg.Binance.ToExchange(sym)
	kls, err := s.client.NewKlinesService().Symbol(cleanSymbol).Interval("1d").Limit(limit).Do(ctx)
	if err != nil {
		return nil, classify(ctx, err)
	}
	nowMs := s.cfg.Now().UnixMilli()
	out := make([]market.Bar, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		// 丢弃尚未收盘的当日 K 线
		if kl.CloseTime > nowMs {
			continue
		}
		out = append(out, market.Bar{
			Time:   time.UnixMilli(kl.OpenTime).UTC(),
			Open:   parseFloat(kl.Open),
			High:   parseFloat(kl.High),
			Low:    parseFloat(kl.Low),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.Volume),
		})
	}
	if len(out) == 0 {
		return nil, market.NewError(Name, market.KindEmptyData, "no closed klines for %s", cleanSymbol)
	}
	return out, nil
}

// classify 把 SDK 错误映射为 market.Kind。
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return market.WrapError(Name, kindForCode(apiErr.Code), err, "api error %d", apiErr.Code)
	}
	return market.WrapError(Name, market.KindNetwork, err, "request failed")
}

func kindForCode(code int64) market.Kind {
	switch code {
	case -1121:
		return market.KindInvalidSymbol
	case -1003, -1015:
		return market.KindRateLimit
	case -2014, -2015, -1022:
		return market.KindAuth
	case -1000, -1001, -1006, -1007:
		return market.KindNetwork
	default:
		return market.KindValidation
	}
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
