package coinbase

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"tradelab/internal/gateway/rest"
	"tradelab/internal/market"
	"tradelab/internal/pkg/symbol"
)

const (
	Name = "coinbase"

	dayGranularity = 86400
	// 单次请求最多返回 300 根
	maxCandlesPerRequest = 300
)

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	ProxyURL string
	Now      func() time.Time
}

// Source 使用 Coinbase Exchange 公共行情接口，无需凭证。
type Source struct {
	client *rest.Client
	now    func() time.Time
}

func New(cfg Config) (*Source, error) {
	client, err := rest.New(rest.Config{
		Provider: Name,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		ProxyURL: cfg.ProxyURL,
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

func (s *Source) Supports(class symbol.AssetClass) bool { return class == symbol.ClassCrypto }

func (s *Source) FetchPrice(ctx context.Context, sym string) (float64, error) {
	product := symbol.Dash.ToExchange(sym)
	doc, err := s.client.GetJSON(ctx, "/products/"+url.PathEscape(product)+"/ticker", nil)
	if err != nil {
		return 0, err
	}
	raw := doc.Get("price").String()
	if raw == "" {
		return 0, market.NewError(Name, market.KindEmptyData, "no ticker for %s", product)
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, market.WrapError(Name, market.KindValidation, err, "bad price %q", raw)
	}
	return price, nil
}

// FetchHistorical 按 300 天分段拉取日线；Coinbase 返回的是降序，最终统一升序。
func (s *Source) FetchHistorical(ctx context.Context, sym string, days int) ([]market.Bar, error) {
	product := symbol.Dash.ToExchange(sym)
	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	seen := make(map[int64]struct{}, days)
	var bars []market.Bar
	for winStart := start; winStart.Before(end); {
		winEnd := winStart.Add(time.Duration(maxCandlesPerRequest) * 24 * time.Hour)
		if winEnd.After(end) {
			winEnd = end
		}
		q := url.Values{}
		q.Set("granularity", strconv.Itoa(dayGranularity))
		q.Set("start", winStart.Format(time.RFC3339))
		q.Set("end", winEnd.Format(time.RFC3339))
		doc, err := s.client.GetJSON(ctx, "/products/"+url.PathEscape(product)+"/candles", q)
		if err != nil {
			return nil, err
		}
		// 每行: [time, low, high, open, close, volume]
		for _, row := range doc.Array() {
			cols := row.Array()
			if len(cols) < 6 {
				return nil, market.NewError(Name, market.KindValidation, "candle row has %d columns", len(cols))
			}
			ts := cols[0].Int()
			if _, dup := seen[ts]; dup {
				continue
			}
			seen[ts] = struct{}{}
			bars = append(bars, market.Bar{
				Time:   time.Unix(ts, 0).UTC(),
				Low:    cols[1].Float(),
				High:   cols[2].Float(),
				Open:   cols[3].Float(),
				Close:  cols[4].Float(),
				Volume: cols[5].Float(),
			})
		}
		winStart = winEnd
	}
	if len(bars) == 0 {
		return nil, market.NewError(Name, market.KindEmptyData, "no candles for %s", product)
	}
	market.SortBars(bars)
	return bars, nil
}
