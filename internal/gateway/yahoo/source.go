package yahoo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tradelab/internal/gateway/rest"
	"tradelab/internal/market"
	"tradelab/internal/pkg/symbol"
)

const (
	Name      = "yahoo"
	userAgent = "Mozilla/5.0 (compatible; tradelab/1.0)"
)

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	ProxyURL string
	Now      func() time.Time
}

// Source 基于 Yahoo Finance chart 接口，作为股票与加密货币的免费兜底源。
type Source struct {
	client *rest.Client
	now    func() time.Time
}

func New(cfg Config) (*Source, error) {
	header := http.Header{}
	header.Set("User-Agent", userAgent)
	client, err := rest.New(rest.Config{
		Provider: Name,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
		Header:   header,
	})
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Source{client: client, now: now}, nil
}

func (s *Source) Name() string { return Name }

func (s *Source) Supports(symbol.AssetClass) bool { return true }

func (s *Source) FetchPrice(ctx context.Context, sym string) (float64, error) {
	ticker := symbol.Dash.ToExchange(sym)
	q := url.Values{}
	q.Set("range", "1d")
	q.Set("interval", "1d")
	result, err := s.chart(ctx, ticker, q)
	if err != nil {
		return 0, err
	}
	price := result.Get("meta.regularMarketPrice")
	if !price.Exists() {
		return 0, market.NewError(Name, market.KindEmptyData, "no market price for %s", ticker)
	}
	return price.Float(), nil
}

func (s *Source) FetchHistorical(ctx context.Context, sym string, days int) ([]market.Bar, error) {
	ticker := symbol.Dash.ToExchange(sym)
	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")
	result, err := s.chart(ctx, ticker, q)
	if err != nil {
		return nil, err
	}
	stamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()
	bars := make([]market.Bar, 0, len(stamps))
	for i, ts := range stamps {
		if i >= len(closes) || i >= len(opens) || i >= len(highs) || i >= len(lows) {
			break
		}
		// 停牌或未收盘的行为 null，直接跳过
		if closes[i].Type == gjson.Null || opens[i].Type == gjson.Null {
			continue
		}
		var vol float64
		if i < len(volumes) {
			vol = volumes[i].Float()
		}
		bars = append(bars, market.Bar{
			Time:   time.Unix(ts.Int(), 0).UTC(),
			Open:   opens[i].Float(),
			High:   highs[i].Float(),
			Low:    lows[i].Float(),
			Close:  closes[i].Float(),
			Volume: vol,
		})
	}
	if len(bars) == 0 {
		return nil, market.NewError(Name, market.KindEmptyData, "no bars for %s", ticker)
	}
	return bars, nil
}

func (s *Source) chart(ctx context.Context, ticker string, q url.Values) (gjson.Result, error) {
	doc, err := s.client.GetJSON(ctx, "/v8/finance/chart/"+url.PathEscape(ticker), q)
	if err != nil {
		return gjson.Result{}, err
	}
	if e := doc.Get("chart.error"); e.Exists() && e.Type != gjson.Null {
		code := e.Get("code").String()
		kind := market.KindValidation
		if strings.EqualFold(code, "Not Found") {
			kind = market.KindInvalidSymbol
		}
		return gjson.Result{}, market.NewError(Name, kind, "%s: %s", code, e.Get("description").String())
	}
	result := doc.Get("chart.result.0")
	if !result.Exists() {
		return gjson.Result{}, market.NewError(Name, market.KindEmptyData, "empty chart for %s", ticker)
	}
	return result, nil
}
