// Package report 把回测结果渲染成可离线打开的 HTML 图表。
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"tradelab/internal/backtest"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorWin           = "#34d399"
	colorLoss          = "#f87171"

	chartWidthPx = 1400
	equityHeight = 520
	tradesHeight = 260
)

// WriteEquityChart 输出资金曲线与逐笔盈亏两张图。
func WriteEquityChart(w io.Writer, res *backtest.Result) error {
	if res == nil {
		return errors.New("report: 回测结果为空")
	}
	if len(res.EquityCurve) == 0 {
		return errors.New("report: 资金曲线为空")
	}
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s backtest", res.Symbol)
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildEquityLine(res))
	if closed := closedTrades(res.Trades); len(closed) > 0 {
		page.AddCharts(buildTradeBars(res.Symbol, closed))
	}
	return page.Render(w)
}

func buildEquityLine(res *backtest.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeight),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s Equity", res.Symbol),
			Subtitle:      res.Summary(),
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	xAxis := make([]string, len(res.EquityCurve))
	values := make([]opts.LineData, len(res.EquityCurve))
	for i, p := range res.EquityCurve {
		xAxis[i] = p.Time.UTC().Format(time.DateOnly)
		values[i] = opts.LineData{Value: round(p.Equity, 2)}
	}
	line.SetXAxis(xAxis).AddSeries("Equity", values,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
	)
	return line
}

func buildTradeBars(symbol string, trades []backtest.Trade) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", tradesHeight),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s Trade PnL", symbol), TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	xAxis := make([]string, len(trades))
	data := make([]opts.BarData, len(trades))
	for i, t := range trades {
		xAxis[i] = fmt.Sprintf("#%d %s %s", i+1, t.Signal, exitDay(t))
		pnl := *t.PnL
		color := colorWin
		if pnl < 0 {
			color = colorLoss
		}
		data[i] = opts.BarData{
			Name:      string(t.Status),
			Value:     round(pnl, 2),
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		}
	}
	bar.SetXAxis(xAxis).AddSeries("PnL", data)
	return bar
}

func closedTrades(trades []backtest.Trade) []backtest.Trade {
	out := make([]backtest.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Closed() && t.PnL != nil {
			out = append(out, t)
		}
	}
	return out
}

func exitDay(t backtest.Trade) string {
	if t.ExitTime == nil {
		return ""
	}
	return t.ExitTime.UTC().Format(time.DateOnly)
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
