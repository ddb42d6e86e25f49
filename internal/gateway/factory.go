package gateway

import (
	"fmt"
	"time"

	"tradelab/internal/config"
	"tradelab/internal/gateway/alpaca"
	"tradelab/internal/gateway/alphavantage"
	"tradelab/internal/gateway/binance"
	"tradelab/internal/gateway/coinbase"
	"tradelab/internal/gateway/polygon"
	"tradelab/internal/gateway/yahoo"
	"tradelab/internal/logger"
	"tradelab/internal/market"
)

// CredentialSetter 由需要凭证的数据源实现，支持运行中更换密钥。
type CredentialSetter interface {
	SetCredentials(key, secret string)
}

// NewProvidersFromConfig 按 providers.order 构造数据源，未启用的跳过。
func NewProvidersFromConfig(cfg *config.Config) ([]market.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	pc := cfg.Providers
	timeout := time.Duration(pc.HTTPTimeoutSeconds) * time.Second
	proxy := ""
	if pc.Proxy.Enabled {
		proxy = pc.Proxy.RESTURL
	}
	out := make([]market.Provider, 0, len(pc.Order))
	for _, name := range pc.Order {
		var (
			p   market.Provider
			err error
		)
		switch name {
		case config.ProviderAlpaca:
			if !pc.Alpaca.Enabled {
				continue
			}
			p = alpaca.New(alpaca.Config{
				APIKey:    pc.Alpaca.APIKey,
				APISecret: pc.Alpaca.APISecret,
				DataURL:   pc.Alpaca.DataURL,
				Feed:      pc.Alpaca.Feed,
			})
		case config.ProviderPolygon:
			if !pc.Polygon.Enabled {
				continue
			}
			p, err = polygon.New(polygon.Config{APIKey: pc.Polygon.APIKey, BaseURL: pc.Polygon.BaseURL, Timeout: timeout, ProxyURL: proxy})
		case config.ProviderAlphaVantage:
			if !pc.AlphaVantage.Enabled {
				continue
			}
			p, err = alphavantage.New(alphavantage.Config{APIKey: pc.AlphaVantage.APIKey, BaseURL: pc.AlphaVantage.BaseURL, Timeout: timeout, ProxyURL: proxy})
		case config.ProviderBinance:
			if !pc.Binance.Enabled {
				continue
			}
			p, err = binance.New(binance.Config{RESTBaseURL: pc.Binance.BaseURL, HTTPTimeout: timeout, RESTProxyURL: proxy})
		case config.ProviderCoinbase:
			if !pc.Coinbase.Enabled {
				continue
			}
			p, err = coinbase.New(coinbase.Config{BaseURL: pc.Coinbase.BaseURL, Timeout: timeout, ProxyURL: proxy})
		case config.ProviderYahoo:
			if !pc.Yahoo.Enabled {
				continue
			}
			p, err = yahoo.New(yahoo.Config{BaseURL: pc.Yahoo.BaseURL, Timeout: timeout, ProxyURL: proxy})
		default:
			return nil, fmt.Errorf("unsupported provider: %s", name)
		}
		if err != nil {
			return nil, fmt.Errorf("init provider %s: %w", name, err)
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no provider enabled")
	}
	logger.Infof("[gateway] providers in order: %v", names(out))
	return out, nil
}

// ApplyCredentials 把配置中的新凭证写入对应数据源，返回是否找到可更新的数据源。
func ApplyCredentials(providers []market.Provider, cfg *config.Config, name string) bool {
	if cfg == nil {
		return false
	}
	var key, secret string
	switch name {
	case config.ProviderAlpaca:
		key, secret = cfg.Providers.Alpaca.APIKey, cfg.Providers.Alpaca.APISecret
	case config.ProviderPolygon:
		key = cfg.Providers.Polygon.APIKey
	case config.ProviderAlphaVantage:
		key = cfg.Providers.AlphaVantage.APIKey
	default:
		return false
	}
	for _, p := range providers {
		if p.Name() != name {
			continue
		}
		if setter, ok := p.(CredentialSetter); ok {
			setter.SetCredentials(key, secret)
			return true
		}
	}
	return false
}

func names(providers []market.Provider) []string {
	out := make([]string, len(providers))
	for i, p := range providers {
		out[i] = p.Name()
	}
	return out
}
