// Package httpapi 是行情服务与回测引擎之外的一层 HTTP 调用方，负责参数校验与区间策略。
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradelab/internal/backtest"
	"tradelab/internal/logger"
	"tradelab/internal/market"
	"tradelab/internal/store"
)

// MarketData 是 HTTP 层使用的行情服务能力，由 *market.Service 实现。
type MarketData interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetHistoricalData(ctx context.Context, symbol string, days int) ([]market.Bar, error)
	GetMarketSnapshot(ctx context.Context, symbols []string) (map[string]market.SnapshotEntry, error)
	GetProviderStatus() map[string]market.ProviderStatus
	Reconfigure(name string) error
}

// Backtester 由 *backtest.Engine 实现。
type Backtester interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Result, error)
}

// RangePolicy 限制单次回测的区间长度（天）。
type RangePolicy struct {
	MinDays int
	MaxDays int
}

type Config struct {
	Addr       string
	Market     MarketData
	Backtester Backtester
	Range      RangePolicy
	// KeepResults 为内存中保留的最近回测结果数量。
	KeepResults int
	// Runs 可选，配置后回测结果会持久化，重启后仍可查询。
	Runs  store.RunArchive
	Clock func() time.Time
}

// Server 提供 /api 下的行情与回测接口。
type Server struct {
	addr       string
	market     MarketData
	backtester Backtester
	policy     RangePolicy
	results    *resultRegistry
	runs       store.RunArchive
	schemas    *requestSchemas
	now        func() time.Time
	router     *gin.Engine
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Market == nil {
		return nil, errors.New("market service 不能为空")
	}
	if cfg.Backtester == nil {
		return nil, errors.New("backtester 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}
	if cfg.Range.MinDays <= 0 {
		cfg.Range.MinDays = 30
	}
	if cfg.Range.MaxDays <= 0 {
		cfg.Range.MaxDays = 1825
	}
	if cfg.KeepResults <= 0 {
		cfg.KeepResults = 50
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	schemas, err := compileRequestSchemas()
	if err != nil {
		return nil, err
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		addr:       cfg.Addr,
		market:     cfg.Market,
		backtester: cfg.Backtester,
		policy:     cfg.Range,
		results:    newResultRegistry(cfg.KeepResults, cfg.Clock),
		runs:       cfg.Runs,
		schemas:    schemas,
		now:        cfg.Clock,
		router:     router,
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	s.registerMarketRoutes(api)
	s.registerBacktestRoutes(api)
	return s, nil
}

// requestLogger 记录每个请求的方法、路径、状态码与耗时。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			path += "?" + q
		}
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Handler 暴露路由，供测试与嵌入使用。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[http] 监听 %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func abort(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}
