// Package rest 是各 HTTP 行情源共用的 GET + JSON 解析封装，
// 负责把传输层与 HTTP 状态码映射为 market.Kind。
package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"tradelab/internal/market"
)

const maxBodyBytes = 8 << 20

type Config struct {
	Provider string
	BaseURL  string
	Timeout  time.Duration
	ProxyURL string
	Header   http.Header
}

type Client struct {
	provider string
	baseURL  string
	header   http.Header
	http     *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%s: base url is required", cfg.Provider)
	}
	httpClient, err := NewHTTPClient(cfg.Timeout, cfg.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, err)
	}
	return &Client{
		provider: cfg.Provider,
		baseURL:  base,
		header:   cfg.Header.Clone(),
		http:     httpClient,
	}, nil
}

// NewHTTPClient 构造带超时与可选代理的 http.Client。
func NewHTTPClient(timeout time.Duration, proxyURL string) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return client, nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok || baseTransport == nil {
		return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
	}
	transport := baseTransport.Clone()
	transport.Proxy = http.ProxyURL(parsed)
	client.Transport = transport
	return client, nil
}

func (c *Client) Provider() string { return c.provider }

// GetJSON 发起 GET 请求并返回解析后的 JSON 文档。
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, market.WrapError(c.provider, market.KindValidation, err, "build request")
	}
	for k, vals := range c.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return gjson.Result{}, ctxErr
		}
		return gjson.Result{}, market.WrapError(c.provider, market.KindNetwork, err, "request failed")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, market.WrapError(c.provider, market.KindNetwork, err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, StatusError(c.provider, resp.StatusCode, body)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, market.NewError(c.provider, market.KindValidation, "response is not valid JSON")
	}
	return gjson.ParseBytes(body), nil
}

// StatusError 把非 2xx 状态码映射为对应的错误分类。
func StatusError(provider string, status int, body []byte) *market.ProviderError {
	msg := fmt.Sprintf("unexpected status %d", status)
	if snippet := strings.TrimSpace(string(body)); snippet != "" {
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		msg += ": " + snippet
	}
	return market.NewError(provider, KindForStatus(status), "%s", msg)
}

func KindForStatus(status int) market.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return market.KindAuth
	case status == http.StatusNotFound:
		return market.KindInvalidSymbol
	case status == http.StatusTooManyRequests:
		return market.KindRateLimit
	case status >= 500:
		return market.KindNetwork
	case status >= 400:
		return market.KindValidation
	default:
		return market.KindUnknown
	}
}
