package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"tradelab/internal/app"
	"tradelab/internal/backtest"
	"tradelab/internal/config"
	"tradelab/internal/logger"
	"tradelab/internal/report"
)

const usage = `用法:
  tradelab serve    [-config path]
  tradelab backtest [-config path] -symbol AAPL -start 2024-01-01 -end 2024-12-31 [options]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "backtest":
		err = runBacktest(ctx, os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "未知子命令 %q\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s 失败: %v", os.Args[1], err)
	}
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", config.ResolvePath(), "配置文件路径")
	_ = fs.Parse(args)

	a, closeLog, err := bootstrap(*cfgPath)
	if err != nil {
		return err
	}
	defer closeLog()
	defer a.Close()
	return a.Serve(ctx)
}

type backtestFlags struct {
	cfgPath   string
	symbol    string
	start     string
	end       string
	size      float64
	minConf   float64
	noStop    bool
	noTake    bool
	format    string
	chartPath string
}

func runBacktest(ctx context.Context, args []string, out io.Writer) error {
	var f backtestFlags
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	fs.StringVar(&f.cfgPath, "config", config.ResolvePath(), "配置文件路径")
	fs.StringVar(&f.symbol, "symbol", "", "标的，如 AAPL 或 BTC/USD")
	fs.StringVar(&f.start, "start", "", "开始日期 YYYY-MM-DD")
	fs.StringVar(&f.end, "end", "", "结束日期 YYYY-MM-DD，默认今天")
	fs.Float64Var(&f.size, "size", 0.1, "单笔仓位占资金比例 (0,1]")
	fs.Float64Var(&f.minConf, "min-confidence", 0.6, "最低信号置信度 [0,1]")
	fs.BoolVar(&f.noStop, "no-stop-loss", false, "关闭止损")
	fs.BoolVar(&f.noTake, "no-take-profit", false, "关闭止盈")
	fs.StringVar(&f.format, "format", "text", "输出格式 text|json|yaml")
	fs.StringVar(&f.chartPath, "chart", "", "输出资金曲线 HTML 的路径")
	_ = fs.Parse(args)

	a, closeLog, err := bootstrap(f.cfgPath)
	if err != nil {
		return err
	}
	defer closeLog()
	defer a.Close()

	req, err := f.request(time.Now().UTC())
	if err != nil {
		return err
	}
	bc := a.Config().Backtest
	if err := checkRange(req.Start, req.End, bc.MinRangeDays, bc.MaxRangeDays); err != nil {
		return err
	}
	res, err := a.Backtest(ctx, req)
	if err != nil {
		return err
	}
	logger.Infof("[backtest] %s", res.Summary())
	if f.chartPath != "" {
		if err := writeChart(f.chartPath, res); err != nil {
			return err
		}
		logger.Infof("[backtest] 资金曲线已写入 %s", f.chartPath)
	}
	return printResult(out, f.format, res)
}

func (f backtestFlags) request(now time.Time) (backtest.Request, error) {
	if strings.TrimSpace(f.symbol) == "" {
		return backtest.Request{}, errors.New("-symbol 必填")
	}
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(f.start))
	if err != nil {
		return backtest.Request{}, fmt.Errorf("-start: %w", err)
	}
	end := now.Truncate(24 * time.Hour)
	if strings.TrimSpace(f.end) != "" {
		if end, err = time.Parse(time.DateOnly, strings.TrimSpace(f.end)); err != nil {
			return backtest.Request{}, fmt.Errorf("-end: %w", err)
		}
	}
	return backtest.Request{
		Symbol:          f.symbol,
		Start:           start,
		End:             end,
		PositionSizePct: f.size,
		UseStopLoss:     !f.noStop,
		UseTakeProfit:   !f.noTake,
		MinConfidence:   f.minConf,
	}, nil
}

func checkRange(start, end time.Time, minDays, maxDays int) error {
	if !end.After(start) {
		return errors.New("结束日期必须晚于开始日期")
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < minDays || days > maxDays {
		return fmt.Errorf("回测区间需在 %d~%d 天之间，当前 %d 天", minDays, maxDays, days)
	}
	return nil
}

func printResult(w io.Writer, format string, res *backtest.Result) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		_, err := fmt.Fprintln(w, res.Summary())
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(res); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("不支持的输出格式 %q", format)
	}
}

func writeChart(path string, res *backtest.Result) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteEquityChart(f, res); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func bootstrap(cfgPath string) (*app.App, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	closeLog := func() {
		if logFile != nil {
			_ = logFile.Close()
		}
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，providers=%v）", cfg.App.Env, cfg.Providers.Order)

	a, err := app.NewApp(cfg, cfgPath)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("初始化应用失败: %w", err)
	}
	return a, closeLog, nil
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}
