package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	RESTProxyURL string
	Now          func() time.Time
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}
