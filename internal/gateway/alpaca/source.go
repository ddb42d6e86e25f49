package alpaca

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"tradelab/internal/market"
	"tradelab/internal/pkg/symbol"
)

const Name = "alpaca"

type Config struct {
	APIKey    string
	APISecret string
	DataURL   string
	Feed      string
	Now       func() time.Time
}

// dataClient 是本适配器用到的 marketdata.Client 子集。
type dataClient interface {
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetLatestCryptoBar(symbol string, req marketdata.GetLatestCryptoBarRequest) (*marketdata.CryptoBar, error)
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
}

// Source 是主数据源：股票用最新报价，加密货币用最新分钟线。
type Source struct {
	feed    marketdata.Feed
	dataURL string
	now     func() time.Time

	mu         sync.RWMutex
	client     dataClient
	configured bool
}

func New(cfg Config) *Source {
	s := &Source{
		feed:    marketdata.Feed(strings.ToLower(strings.TrimSpace(cfg.Feed))),
		dataURL: strings.TrimSpace(cfg.DataURL),
		now:     cfg.Now,
	}
	if s.feed == "" {
		s.feed = "iex"
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.SetCredentials(cfg.APIKey, cfg.APISecret)
	return s
}

func newWithClient(client dataClient, now func() time.Time) *Source {
	return &Source{feed: "iex", now: now, client: client, configured: true}
}

// SetCredentials 用新的 key/secret 重建客户端。
func (s *Source) SetCredentials(key, secret string) {
	key, secret = strings.TrimSpace(key), strings.TrimSpace(secret)
	opts := marketdata.ClientOpts{
		APIKey:    key,
		APISecret: secret,
	}
	if s.dataURL != "" {
		opts.BaseURL = s.dataURL
	}
	client := marketdata.NewClient(opts)
	s.mu.Lock()
	s.client = client
	s.configured = key != "" && secret != ""
	s.mu.Unlock()
}

func (s *Source) Name() string { return Name }

func (s *Source) Supports(symbol.AssetClass) bool { return true }

func (s *Source) Universe(class symbol.AssetClass) string {
	if class == symbol.ClassEquity {
		return "us-equities"
	}
	return Name
}

func (s *Source) Configured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.configured
}

func (s *Source) current() dataClient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Source) FetchPrice(ctx context.Context, sym string) (float64, error) {
	client := s.current()
	if symbol.IsCrypto(sym) {
		pair := symbol.Alpaca.ToExchange(sym)
		bar, err := client.GetLatestCryptoBar(pair, marketdata.GetLatestCryptoBarRequest{})
		if err != nil {
			return 0, classify(ctx, err)
		}
		if bar == nil {
			return 0, market.NewError(Name, market.KindEmptyData, "no crypto bar for %s", pair)
		}
		return bar.Close, nil
	}
	ticker := symbol.Alpaca.ToExchange(sym)
	quote, err := client.GetLatestQuote(ticker, marketdata.GetLatestQuoteRequest{Feed: s.feed})
	if err != nil {
		return 0, classify(ctx, err)
	}
	if quote == nil {
		return 0, market.NewError(Name, market.KindEmptyData, "no quote for %s", ticker)
	}
	// 盘外 ask 可能为 0，退回 bid
	price := quote.AskPrice
	if price <= 0 {
		price = quote.BidPrice
	}
	if price <= 0 {
		return 0, market.NewError(Name, market.KindEmptyData, "empty quote for %s", ticker)
	}
	return price, nil
}

func (s *Source) FetchHistorical(ctx context.Context, sym string, days int) ([]market.Bar, error) {
	client := s.current()
	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	if symbol.IsCrypto(sym) {
		pair := symbol.Alpaca.ToExchange(sym)
		bars, err := client.GetCryptoBars(pair, marketdata.GetCryptoBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, classify(ctx, err)
		}
		out := make([]market.Bar, 0, len(bars))
		for _, b := range bars {
			out = append(out, market.Bar{
				Time: b.Timestamp.UTC(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
			})
		}
		return nonEmpty(out, pair)
	}
	ticker := symbol.Alpaca.ToExchange(sym)
	bars, err := client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      s.feed,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}
	out := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		out = append(out, market.Bar{
			Time: b.Timestamp.UTC(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: float64(b.Volume),
		})
	}
	return nonEmpty(out, ticker)
}

func nonEmpty(bars []market.Bar, sym string) ([]market.Bar, error) {
	if len(bars) == 0 {
		return nil, market.NewError(Name, market.KindEmptyData, "no bars for %s", sym)
	}
	return bars, nil
}

var statusPattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// classify 依据 SDK 错误文本中的 HTTP 状态码与关键字分类。
func classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return market.WrapError(Name, market.KindNetwork, err, "request failed")
	}
	msg := strings.ToLower(err.Error())
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		switch {
		case code == 401 || code == 403:
			return market.WrapError(Name, market.KindAuth, err, "http %d", code)
		case code == 404:
			return market.WrapError(Name, market.KindInvalidSymbol, err, "http %d", code)
		case code == 429:
			return market.WrapError(Name, market.KindRateLimit, err, "http %d", code)
		case code >= 500:
			return market.WrapError(Name, market.KindNetwork, err, "http %d", code)
		default:
			return market.WrapError(Name, market.KindValidation, err, "http %d", code)
		}
	}
	switch {
	case strings.Contains(msg, "forbidden"), strings.Contains(msg, "unauthorized"):
		return market.WrapError(Name, market.KindAuth, err, "rejected credentials")
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return market.WrapError(Name, market.KindRateLimit, err, "throttled")
	case strings.Contains(msg, "invalid symbol"), strings.Contains(msg, "not found"):
		return market.WrapError(Name, market.KindInvalidSymbol, err, "unknown symbol")
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"), strings.Contains(msg, "eof"):
		return market.WrapError(Name, market.KindNetwork, err, "request failed")
	default:
		return market.WrapError(Name, market.KindUnknown, err, "unclassified error")
	}
}
