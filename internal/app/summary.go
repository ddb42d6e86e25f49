package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"tradelab/internal/config"
	"tradelab/internal/market"
)

type StartupSummary struct {
	HTTPAddr   string
	Providers  []ProviderSummary
	Resilience ResilienceSummary
	Backtest   BacktestSummary
}

type ProviderSummary struct {
	Name       string
	Configured bool
}

type ResilienceSummary struct {
	BreakerThreshold int
	BreakerTimeout   int
	MaxRetries       int
	AttemptTimeout   int
}

type BacktestSummary struct {
	InitialCapital float64
	CommissionPct  float64
	WarmupBars     int
	EvalEvery      int
	SignalMinBars  int
	RangeDays      [2]int
	CachePath      string
}

func newStartupSummary(cfg *config.Config, svc *market.Service, signalMinBars int) *StartupSummary {
	status := svc.GetProviderStatus()
	providers := make([]ProviderSummary, 0, len(status))
	for _, name := range svc.Providers() {
		providers = append(providers, ProviderSummary{Name: name, Configured: status[name].Configured})
	}
	rc, bc := cfg.Resilience, cfg.Backtest
	return &StartupSummary{
		HTTPAddr:  cfg.App.HTTPAddr,
		Providers: providers,
		Resilience: ResilienceSummary{
			BreakerThreshold: rc.BreakerThreshold,
			BreakerTimeout:   rc.BreakerTimeoutSeconds,
			MaxRetries:       rc.MaxRetries,
			AttemptTimeout:   rc.AttemptTimeoutSeconds,
		},
		Backtest: BacktestSummary{
			InitialCapital: bc.InitialCapital,
			CommissionPct:  bc.CommissionPct,
			WarmupBars:     bc.WarmupBars,
			EvalEvery:      bc.EvalEvery,
			SignalMinBars:  signalMinBars,
			RangeDays:      [2]int{bc.MinRangeDays, bc.MaxRangeDays},
			CachePath:      bc.CachePath,
		},
	}
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[行情源 (PROVIDERS)]")
	if len(s.Providers) == 0 {
		fmt.Fprintln(w, "  (无)")
	}
	for i, p := range s.Providers {
		state := "已配置"
		if !p.Configured {
			state = "缺少凭证"
		}
		fmt.Fprintf(w, "  %d. %-14s %s\n", i+1, p.Name, state)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[容错 (RESILIENCE)]")
	fmt.Fprintf(w, "  熔断阈值: %d 次 / 冷却 %ds\n", s.Resilience.BreakerThreshold, s.Resilience.BreakerTimeout)
	fmt.Fprintf(w, "  重试次数: %d / 单次超时 %ds\n", s.Resilience.MaxRetries, s.Resilience.AttemptTimeout)
	fmt.Fprintln(w)

	b := s.Backtest
	fmt.Fprintln(w, "[回测 (BACKTEST)]")
	fmt.Fprintf(w, "  初始资金: %.2f  手续费: %.4f\n", b.InitialCapital, b.CommissionPct)
	fmt.Fprintf(w, "  预热: %d 根 (信号需要 %d)  评估间隔: %d\n", b.WarmupBars, b.SignalMinBars, b.EvalEvery)
	fmt.Fprintf(w, "  区间: %d~%d 天\n", b.RangeDays[0], b.RangeDays[1])
	fmt.Fprintf(w, "  缓存: %s\n", formatPath(b.CachePath))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "HTTP: %s\n", s.HTTPAddr)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "(memory)"
	}
	return p
}
