package alphavantage

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"tradelab/internal/gateway/rest"
	"tradelab/internal/market"
	"tradelab/internal/pkg/symbol"
)

const (
	Name = "alpha_vantage"

	// compact 只返回最近 100 个交易日
	compactDays = 100
)

type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	ProxyURL string
	Now      func() time.Time
}

// Source 调用 Alpha Vantage 的 GLOBAL_QUOTE 与 TIME_SERIES_DAILY。
type Source struct {
	client *rest.Client
	now    func() time.Time

	mu     sync.RWMutex
	apiKey string
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
	return &Source{client: client, now: now, apiKey: strings.TrimSpace(cfg.APIKey)}, nil
}

func (s *Source) Name() string { return Name }

func (s *Source) Supports(class symbol.AssetClass) bool { return class == symbol.ClassEquity }

func (s *Source) Universe(symbol.AssetClass) string { return "us-equities" }

func (s *Source) Configured() bool { return s.key() != "" }

func (s *Source) SetCredentials(key, _ string) {
	s.mu.Lock()
	s.apiKey = strings.TrimSpace(key)
	s.mu.Unlock()
}

func (s *Source) key() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

func (s *Source) FetchPrice(ctx context.Context, sym string) (float64, error) {
	ticker := strings.ToUpper(strings.TrimSpace(sym))
	doc, err := s.call(ctx, "GLOBAL_QUOTE", ticker, nil)
	if err != nil {
		return 0, err
	}
	price := doc.Get(`Global Quote.05\. price`)
	if !price.Exists() {
		return 0, market.NewError(Name, market.KindInvalidSymbol, "no quote for %s", ticker)
	}
	return price.Float(), nil
}

func (s *Source) FetchHistorical(ctx context.Context, sym string, days int) ([]market.Bar, error) {
	ticker := strings.ToUpper(strings.TrimSpace(sym))
	extra := url.Values{}
	if days > compactDays {
		extra.Set("outputsize", "full")
	} else {
		extra.Set("outputsize", "compact")
	}
	doc, err := s.call(ctx, "TIME_SERIES_DAILY", ticker, extra)
	if err != nil {
		return nil, err
	}
	series := doc.Get("Time Series (Daily)")
	if !series.Exists() {
		return nil, market.NewError(Name, market.KindEmptyData, "no daily series for %s", ticker)
	}
	cutoff := s.now().UTC().AddDate(0, 0, -days)
	var (
		bars     []market.Bar
		parseErr error
	)
	series.ForEach(func(key, value gjson.Result) bool {
		day, err := time.Parse("2006-01-02", key.String())
		if err != nil {
			parseErr = market.WrapError(Name, market.KindValidation, err, "bad date %q", key.String())
			return false
		}
		if day.Before(cutoff) {
			return true
		}
		bars = append(bars, market.Bar{
			Time:   day,
			Open:   value.Get(`1\. open`).Float(),
			High:   value.Get(`2\. high`).Float(),
			Low:    value.Get(`3\. low`).Float(),
			Close:  value.Get(`4\. close`).Float(),
			Volume: value.Get(`5\. volume`).Float(),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if len(bars) == 0 {
		return nil, market.NewError(Name, market.KindEmptyData, "no bars for %s in last %d days", ticker, days)
	}
	market.SortBars(bars)
	return bars, nil
}

func (s *Source) call(ctx context.Context, function, ticker string, extra url.Values) (gjson.Result, error) {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("function", function)
	q.Set("symbol", ticker)
	q.Set("apikey", s.key())
	doc, err := s.client.GetJSON(ctx, "/query", q)
	if err != nil {
		return gjson.Result{}, err
	}
	if err := bodyError(doc); err != nil {
		return gjson.Result{}, err
	}
	return doc, nil
}

// bodyError 识别 Alpha Vantage 以 200 返回的错误提示。
func bodyError(doc gjson.Result) error {
	if msg := doc.Get("Error Message").String(); msg != "" {
		return market.NewError(Name, market.KindInvalidSymbol, "%s", msg)
	}
	for _, field := range []string{"Note", "Information"} {
		msg := doc.Get(field).String()
		if msg == "" {
			continue
		}
		lower := strings.ToLower(msg)
		switch {
		case strings.Contains(lower, "api key") || strings.Contains(lower, "apikey"):
			if strings.Contains(lower, "invalid") || strings.Contains(lower, "missing") {
				return market.NewError(Name, market.KindAuth, "%s", msg)
			}
			return market.NewError(Name, market.KindRateLimit, "%s", msg)
		case strings.Contains(lower, "frequency") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "premium"):
			return market.NewError(Name, market.KindRateLimit, "%s", msg)
		default:
			return market.NewError(Name, market.KindValidation, "%s", msg)
		}
	}
	return nil
}
