package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/pkg/retry"
	"tradelab/internal/pkg/symbol"
)

var (
	ErrInvalidRange     = errors.New("backtest: end must be after start")
	ErrInvalidRequest   = errors.New("backtest: invalid request")
	ErrInsufficientData = errors.New("backtest: insufficient historical data")
)

const (
	DefaultInitialCapital = 100000.0
	DefaultCommissionPct  = 0.001
	DefaultWarmupBars     = 60
	DefaultEvalEvery      = 5
	DefaultMinBars        = 100
	DefaultSignalTimeout  = 10 * time.Second
)

type EngineConfig struct {
	InitialCapital float64
	CommissionPct  float64
	// WarmupBars 之前的 K 线不请求信号，但仍做平仓检查。
	WarmupBars int
	// EvalEvery 为空仓时请求信号的间隔（按 K 线序号取模）。
	EvalEvery     int
	MinBars       int
	SignalTimeout time.Duration
	Clock         func() time.Time
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		InitialCapital: DefaultInitialCapital,
		CommissionPct:  DefaultCommissionPct,
		WarmupBars:     DefaultWarmupBars,
		EvalEvery:      DefaultEvalEvery,
		MinBars:        DefaultMinBars,
		SignalTimeout:  DefaultSignalTimeout,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.InitialCapital <= 0 {
		c.InitialCapital = DefaultInitialCapital
	}
	if c.CommissionPct < 0 {
		c.CommissionPct = 0
	}
	if c.WarmupBars < 0 {
		c.WarmupBars = 0
	}
	if c.EvalEvery <= 0 {
		c.EvalEvery = DefaultEvalEvery
	}
	if c.MinBars <= 0 {
		c.MinBars = DefaultMinBars
	}
	if c.SignalTimeout <= 0 {
		c.SignalTimeout = DefaultSignalTimeout
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Request 描述一次回测。区间长度策略（最短/最长天数）由调用方负责。
type Request struct {
	Symbol          string    `json:"symbol"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	PositionSizePct float64   `json:"position_size_pct"`
	UseStopLoss     bool      `json:"use_stop_loss"`
	UseTakeProfit   bool      `json:"use_take_profit"`
	MinConfidence   float64   `json:"min_confidence"`
}

func (r Request) normalize() (Request, error) {
	r.Symbol = symbol.Normalize(r.Symbol)
	if r.Symbol == "" {
		return r, fmt.Errorf("%w: symbol 不能为空", ErrInvalidRequest)
	}
	if r.Start.IsZero() || r.End.IsZero() || !r.End.After(r.Start) {
		return r, ErrInvalidRange
	}
	if r.PositionSizePct <= 0 || r.PositionSizePct > 1 {
		return r, fmt.Errorf("%w: position_size_pct 需在 (0, 1] 内: %v", ErrInvalidRequest, r.PositionSizePct)
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return r, fmt.Errorf("%w: min_confidence 需在 [0, 1] 内: %v", ErrInvalidRequest, r.MinConfidence)
	}
	r.Start = r.Start.UTC()
	r.End = r.End.UTC()
	return r, nil
}

// Engine 按时间顺序回放日线并模拟单仓位交易。Engine 本身无可变状态，可并发执行多次 Run。
type Engine struct {
	history HistorySource
	gen     SignalGenerator
	cfg     EngineConfig
}

func NewEngine(history HistorySource, gen SignalGenerator, cfg EngineConfig) (*Engine, error) {
	if history == nil {
		return nil, fmt.Errorf("history source 不能为空")
	}
	if gen == nil {
		return nil, fmt.Errorf("signal generator 不能为空")
	}
	return &Engine{history: history, gen: gen, cfg: cfg.withDefaults()}, nil
}

func (e *Engine) Config() EngineConfig { return e.cfg }

func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, err
	}
	bars, err := e.loadBars(ctx, req)
	if err != nil {
		return nil, err
	}
	logger.Infof("[backtest] %s %s ~ %s: %d 根 K 线", req.Symbol,
		req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly), len(bars))

	r := newReplay(e.cfg, req, e.gen)
	if err := r.run(ctx, bars); err != nil {
		return nil, err
	}
	final := decToFloat(r.capital)
	if r.trades == nil {
		r.trades = []Trade{}
	}
	res := &Result{
		RunID:          uuid.NewString(),
		Symbol:         req.Symbol,
		Start:          req.Start,
		End:            req.End,
		InitialCapital: e.cfg.InitialCapital,
		FinalCapital:   final,
		Metrics:        ComputeMetrics(r.trades, r.curve, e.cfg.InitialCapital, final, req.Start, req.End),
		EquityCurve:    r.curve,
		Trades:         r.trades,
	}
	logger.Infof("[backtest] %s 完成: %d 笔交易, 胜率 %.1f%%, 收益 %.2f%%",
		req.Symbol, res.TotalTrades, res.WinRate, res.TotalReturnPct)
	return res, nil
}

// loadBars 拉取覆盖 [Start, now] 的日线并截取到 [Start, End]。
func (e *Engine) loadBars(ctx context.Context, req Request) ([]market.Bar, error) {
	days := int(math.Ceil(e.cfg.Clock().Sub(req.Start).Hours()/24)) + 1
	if days < 1 {
		days = 1
	}
	raw, err := e.history.GetHistoricalData(ctx, req.Symbol, days)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrInsufficientData, req.Symbol, err)
	}
	sorted := make([]market.Bar, len(raw))
	copy(sorted, raw)
	market.SortBars(sorted)
	bars := market.Between(sorted, req.Start, req.End)
	if len(bars) < e.cfg.MinBars {
		return nil, fmt.Errorf("%w: %s 区间内只有 %d 根 K 线，需要 ≥%d",
			ErrInsufficientData, req.Symbol, len(bars), e.cfg.MinBars)
	}
	return bars, nil
}

// replay 持有单次回测的全部可变状态。
type replay struct {
	cfg     EngineConfig
	req     Request
	gen     SignalGenerator
	capital decimal.Decimal
	open    *Trade
	trades  []Trade
	curve   []EquityPoint
	skipped int
}

func newReplay(cfg EngineConfig, req Request, gen SignalGenerator) *replay {
	capital := decFromFloat(cfg.InitialCapital)
	return &replay{
		cfg:     cfg,
		req:     req,
		gen:     gen,
		capital: capital,
		curve:   []EquityPoint{{Time: req.Start, Equity: cfg.InitialCapital}},
	}
}

func (r *replay) run(ctx context.Context, bars []market.Bar) error {
	for i, bar := range bars {
		if err := ctx.Err(); err != nil {
			return err
		}
		price := bar.Close
		if r.open != nil {
			if status, hit := exitStatus(r.open, price, r.req.UseStopLoss, r.req.UseTakeProfit); hit {
				r.close(bar.Time, price, status)
			}
		}
		if r.open != nil || i < r.cfg.WarmupBars || i%r.cfg.EvalEvery != 0 {
			continue
		}
		sig, err := r.evaluate(ctx, bars[:i+1:i+1], price)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			r.skipped++
			if logger.Enabled(slog.LevelDebug) {
				logger.Debugf("[backtest] %s %s 信号生成失败，跳过: %v", r.req.Symbol, bar.Time.Format(time.DateOnly), err)
			}
			continue
		}
		r.maybeOpen(bar, sig)
	}
	if r.open != nil {
		last := bars[len(bars)-1]
		r.close(last.Time, last.Close, StatusEndOfPeriod)
	}
	if r.skipped > 0 {
		logger.Warnf("[backtest] %s 共有 %d 次信号生成失败", r.req.Symbol, r.skipped)
	}
	return nil
}

// evaluate 以单次、不重试的方式调用信号生成器，超时或 panic 都转成错误。
func (r *replay) evaluate(ctx context.Context, window []market.Bar, price float64) (Signal, error) {
	policy := retry.Policy{MaxRetries: 0, AttemptTimeout: r.cfg.SignalTimeout}
	return retry.Do(ctx, policy, nil, func(ctx context.Context) (Signal, error) {
		return r.gen.Evaluate(ctx, r.req.Symbol, window, price)
	})
}

func (r *replay) maybeOpen(bar market.Bar, sig Signal) {
	if !sig.Kind.Valid() || sig.Kind == SignalNeutral {
		return
	}
	if sig.Confidence < r.req.MinConfidence {
		return
	}
	price := bar.Close
	if price <= 0 {
		return
	}
	qty := r.capital.Mul(decFromFloat(r.req.PositionSizePct)).Div(decFromFloat(price))
	if !qty.IsPositive() {
		return
	}
	r.open = &Trade{
		EntryTime:  bar.Time,
		Symbol:     r.req.Symbol,
		Signal:     sig.Kind,
		EntryPrice: price,
		Quantity:   decToFloat(qty),
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Status:     StatusOpen,
		Confidence: sig.Confidence,
	}
	if logger.Enabled(slog.LevelDebug) {
		logger.Debugf("[backtest] %s 开仓 %s @ %.4f qty=%.6f conf=%.2f",
			r.req.Symbol, strings.ToLower(string(sig.Kind)), price, r.open.Quantity, sig.Confidence)
	}
}

func (r *replay) close(at time.Time, price float64, status TradeStatus) {
	net, ok := closeTrade(r.open, at, price, status, r.cfg.CommissionPct)
	if !ok {
		return
	}
	r.capital = r.capital.Add(net)
	r.trades = append(r.trades, *r.open)
	r.curve = append(r.curve, EquityPoint{Time: at, Equity: decToFloat(r.capital)})
	r.open = nil
}
