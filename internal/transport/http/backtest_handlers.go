package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"tradelab/internal/backtest"
	"tradelab/internal/logger"
	"tradelab/internal/pkg/symbol"
	"tradelab/internal/report"
)

const (
	defaultPositionSizePct = 0.1
	defaultMinConfidence   = 0.6
	compareConcurrency     = 3
	maxCompareSymbols      = 10
)

// timeframeDays 为快捷回测的预设区间。
var timeframeDays = map[string]int{
	"1M": 30,
	"3M": 90,
	"6M": 180,
	"1Y": 365,
	"2Y": 730,
	"5Y": 1825,
}

func (s *Server) registerBacktestRoutes(api *gin.RouterGroup) {
	api.POST("/backtest", s.handleBacktest)
	api.POST("/backtest/quick", s.handleQuickBacktest)
	api.POST("/backtest/compare", s.handleCompare)
	api.GET("/backtest/:id", s.handleBacktestResult)
	api.GET("/backtest/:id/chart", s.handleBacktestChart)
	api.GET("/backtests", s.handleListRuns)
}

type backtestRequest struct {
	Symbol          string   `json:"symbol"`
	StartDate       string   `json:"start_date"`
	EndDate         string   `json:"end_date"`
	PositionSizePct *float64 `json:"position_size_pct"`
	UseStopLoss     *bool    `json:"use_stop_loss"`
	UseTakeProfit   *bool    `json:"use_take_profit"`
	MinConfidence   *float64 `json:"min_confidence"`
}

func (r backtestRequest) toRequest() (backtest.Request, error) {
	start, err := parseDate(r.StartDate)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := parseDate(r.EndDate)
	if err != nil {
		return backtest.Request{}, fmt.Errorf("end_date: %w", err)
	}
	return backtest.Request{
		Symbol:          r.Symbol,
		Start:           start,
		End:             end,
		PositionSizePct: floatOr(r.PositionSizePct, defaultPositionSizePct),
		UseStopLoss:     boolOr(r.UseStopLoss, true),
		UseTakeProfit:   boolOr(r.UseTakeProfit, true),
		MinConfidence:   floatOr(r.MinConfidence, defaultMinConfidence),
	}, nil
}

type presetRequest struct {
	Symbol        string   `json:"symbol"`
	Symbols       []string `json:"symbols"`
	Timeframe     string   `json:"timeframe"`
	MinConfidence *float64 `json:"min_confidence"`
}

func (s *Server) handleBacktest(c *gin.Context) {
	var body backtestRequest
	if err := bindValidated(c, s.schemas.backtest, &body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	req, err := body.toRequest()
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := s.checkRange(req.Start, req.End); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.runAndRespond(c, req)
}

func (s *Server) handleQuickBacktest(c *gin.Context) {
	var body presetRequest
	if err := bindValidated(c, s.schemas.preset, &body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	req, err := s.presetRequest(body.Symbol, body.Timeframe, body.MinConfidence)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	s.runAndRespond(c, req)
}

func (s *Server) runAndRespond(c *gin.Context, req backtest.Request) {
	res, err := s.backtester.Run(c.Request.Context(), req)
	if err != nil {
		logger.Warnf("[http] 回测 %s 失败: %v", req.Symbol, err)
		abort(c, backtestStatus(err), err)
		return
	}
	s.remember(c.Request.Context(), res)
	c.JSON(http.StatusOK, res)
}

type compareEntry struct {
	Symbol       string            `json:"symbol"`
	RunID        string            `json:"run_id,omitempty"`
	FinalCapital float64           `json:"final_capital,omitempty"`
	Metrics      *backtest.Metrics `json:"metrics,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// handleCompare 用同一预设区间并发回测多个标的，单个失败不影响其他。
func (s *Server) handleCompare(c *gin.Context) {
	var body presetRequest
	if err := bindValidated(c, s.schemas.preset, &body); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	symbols := symbol.NormalizeList(body.Symbols)
	if len(symbols) == 0 || len(symbols) > maxCompareSymbols {
		abort(c, http.StatusBadRequest, fmt.Errorf("symbols 数量需在 1~%d 之间", maxCompareSymbols))
		return
	}
	reqs := make([]backtest.Request, len(symbols))
	for i, sym := range symbols {
		req, err := s.presetRequest(sym, body.Timeframe, body.MinConfidence)
		if err != nil {
			abort(c, http.StatusBadRequest, err)
			return
		}
		reqs[i] = req
	}

	ctx := c.Request.Context()
	var mu sync.Mutex
	entries := make([]compareEntry, 0, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(compareConcurrency)
	for _, req := range reqs {
		g.Go(func() error {
			entry := compareEntry{Symbol: req.Symbol}
			res, err := s.backtester.Run(gctx, req)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				entry.Error = err.Error()
			} else {
				s.remember(gctx, res)
				entry.RunID = res.RunID
				entry.FinalCapital = res.FinalCapital
				entry.Metrics = &res.Metrics
			}
			mu.Lock()
			entries = append(entries, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		abort(c, http.StatusGatewayTimeout, err)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	c.JSON(http.StatusOK, gin.H{"timeframe": strings.ToUpper(body.Timeframe), "results": entries})
}

func (s *Server) handleBacktestResult(c *gin.Context) {
	res, ok := s.lookup(c.Request.Context(), c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, errors.New("backtest result not found"))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleBacktestChart(c *gin.Context) {
	res, ok := s.lookup(c.Request.Context(), c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, errors.New("backtest result not found"))
		return
	}
	var buf strings.Builder
	if err := report.WriteEquityChart(&buf, res); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(buf.String()))
}

// handleListRuns 列出最近的回测；有归档时读归档，否则读内存中的结果。
func (s *Server) handleListRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			abort(c, http.StatusBadRequest, errors.New("limit 需在 1~200 之间"))
			return
		}
		limit = n
	}
	sym := ""
	if raw := strings.TrimSpace(c.Query("symbol")); raw != "" {
		sym = symbol.Normalize(raw)
	}
	if s.runs == nil {
		c.JSON(http.StatusOK, gin.H{"runs": s.results.list(sym, limit)})
		return
	}
	runs, err := s.runs.ListRuns(c.Request.Context(), sym, limit)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// remember 写入内存结果表，并在配置了归档时持久化。归档失败只记日志。
func (s *Server) remember(ctx context.Context, res *backtest.Result) {
	s.results.put(res)
	if s.runs == nil || res == nil {
		return
	}
	if err := s.runs.SaveRun(ctx, res); err != nil {
		logger.Warnf("[http] 归档回测 %s 失败: %v", res.RunID, err)
	}
}

func (s *Server) lookup(ctx context.Context, id string) (*backtest.Result, bool) {
	if res, ok := s.results.get(id); ok {
		return res, true
	}
	if s.runs == nil {
		return nil, false
	}
	res, ok, err := s.runs.LoadRun(ctx, id)
	if err != nil {
		logger.Warnf("[http] 读取回测归档 %s 失败: %v", id, err)
		return nil, false
	}
	if ok {
		s.results.put(res)
	}
	return res, ok
}

func (s *Server) presetRequest(sym, timeframe string, minConf *float64) (backtest.Request, error) {
	tf := strings.ToUpper(strings.TrimSpace(timeframe))
	if tf == "" {
		tf = "1Y"
	}
	days, ok := timeframeDays[tf]
	if !ok {
		return backtest.Request{}, fmt.Errorf("timeframe 需为 1M/3M/6M/1Y/2Y/5Y: %q", timeframe)
	}
	end := s.now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)
	if err := s.checkRange(start, end); err != nil {
		return backtest.Request{}, err
	}
	return backtest.Request{
		Symbol:          sym,
		Start:           start,
		End:             end,
		PositionSizePct: defaultPositionSizePct,
		UseStopLoss:     true,
		UseTakeProfit:   true,
		MinConfidence:   floatOr(minConf, defaultMinConfidence),
	}, nil
}

func (s *Server) checkRange(start, end time.Time) error {
	if !end.After(start) {
		return errors.New("end_date 必须晚于 start_date")
	}
	days := int(end.Sub(start).Hours() / 24)
	if days < s.policy.MinDays {
		return fmt.Errorf("回测区间至少 %d 天，当前 %d 天", s.policy.MinDays, days)
	}
	if days > s.policy.MaxDays {
		return fmt.Errorf("回测区间不能超过 %d 天，当前 %d 天", s.policy.MaxDays, days)
	}
	return nil
}

func backtestStatus(err error) int {
	switch {
	case errors.Is(err, backtest.ErrInvalidRange), errors.Is(err, backtest.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, backtest.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("不能为空")
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
