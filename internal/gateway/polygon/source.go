package polygon

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"tradelab/internal/gateway/rest"
	"tradelab/internal/market"
	"tradelab/internal/pkg/symbol"
)

const Name = "polygon"

type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	ProxyURL string
	Now      func() time.Time
}

// Source 通过 Polygon REST 接口提供美股报价与日线。
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

// SetCredentials 替换 API key，配合 Service.Reconfigure 使用。
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
	doc, err := s.client.GetJSON(ctx, "/v2/last/trade/"+url.PathEscape(ticker), s.query(nil))
	if err != nil {
		return 0, err
	}
	if err := statusError(doc.Get("status").String(), doc.Get("error").String()); err != nil {
		return 0, err
	}
	price := doc.Get("results.p")
	if !price.Exists() {
		return 0, market.NewError(Name, market.KindEmptyData, "no last trade for %s", ticker)
	}
	return price.Float(), nil
}

func (s *Source) FetchHistorical(ctx context.Context, sym string, days int) ([]market.Bar, error) {
	ticker := strings.ToUpper(strings.TrimSpace(sym))
	to := s.now().UTC()
	from := to.AddDate(0, 0, -days)
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(ticker), from.Format("2006-01-02"), to.Format("2006-01-02"))
	q := url.Values{}
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", "50000")
	doc, err := s.client.GetJSON(ctx, path, s.query(q))
	if err != nil {
		return nil, err
	}
	if err := statusError(doc.Get("status").String(), doc.Get("error").String()); err != nil {
		return nil, err
	}
	results := doc.Get("results").Array()
	if len(results) == 0 {
		return nil, market.NewError(Name, market.KindEmptyData, "no aggregates for %s", ticker)
	}
	bars := make([]market.Bar, 0, len(results))
	for _, r := range results {
		bars = append(bars, market.Bar{
			Time:   time.UnixMilli(r.Get("t").Int()).UTC(),
			Open:   r.Get("o").Float(),
			High:   r.Get("h").Float(),
			Low:    r.Get("l").Float(),
			Close:  r.Get("c").Float(),
			Volume: r.Get("v").Float(),
		})
	}
	return bars, nil
}

func (s *Source) query(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	q.Set("apiKey", s.key())
	return q
}

// statusError 处理 HTTP 200 但业务 status 表示失败的响应。
func statusError(status, msg string) error {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "", "OK", "DELAYED":
		return nil
	case "NOT_AUTHORIZED":
		return market.NewError(Name, market.KindAuth, "%s", msg)
	case "NOT_FOUND":
		return market.NewError(Name, market.KindInvalidSymbol, "%s", msg)
	case "ERROR":
		return market.NewError(Name, market.KindValidation, "%s", msg)
	default:
		return nil
	}
}
