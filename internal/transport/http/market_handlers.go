package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tradelab/internal/market"
)

const (
	defaultHistoryDays = 30
	maxSnapshotSymbols = 50
)

func (s *Server) registerMarketRoutes(api *gin.RouterGroup) {
	api.GET("/providers", s.handleProviders)
	api.POST("/providers/:name/reset", s.handleProviderReset)
	// 通配参数以支持 BTC/USD 这类带斜杠的代码。
	api.GET("/price/*symbol", s.handlePrice)
	api.GET("/history/*symbol", s.handleHistory)
	api.POST("/snapshot", s.handleSnapshot)
}

func (s *Server) handleProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": s.market.GetProviderStatus()})
}

func (s *Server) handleProviderReset(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if _, ok := s.market.GetProviderStatus()[name]; !ok {
		abort(c, http.StatusNotFound, fmt.Errorf("unknown provider %q", name))
		return
	}
	if err := s.market.Reconfigure(name); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": name, "status": s.market.GetProviderStatus()[name]})
}

func (s *Server) handlePrice(c *gin.Context) {
	sym := pathSymbol(c)
	if sym == "" {
		abort(c, http.StatusBadRequest, errors.New("symbol 必填"))
		return
	}
	price, err := s.market.GetPrice(c.Request.Context(), sym)
	if err != nil {
		abort(c, marketStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "price": price})
}

func (s *Server) handleHistory(c *gin.Context) {
	sym := pathSymbol(c)
	if sym == "" {
		abort(c, http.StatusBadRequest, errors.New("symbol 必填"))
		return
	}
	days := defaultHistoryDays
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > s.policy.MaxDays {
			abort(c, http.StatusBadRequest, fmt.Errorf("days 需在 1~%d 之间", s.policy.MaxDays))
			return
		}
		days = v
	}
	bars, err := s.market.GetHistoricalData(c.Request.Context(), sym, days)
	if err != nil {
		abort(c, marketStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "days": days, "bars": bars})
}

type snapshotRequest struct {
	Symbols []string `json:"symbols"`
}

func (s *Server) handleSnapshot(c *gin.Context) {
	var req snapshotRequest
	if err := bindValidated(c, s.schemas.snapshot, &req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if len(req.Symbols) == 0 || len(req.Symbols) > maxSnapshotSymbols {
		abort(c, http.StatusBadRequest, fmt.Errorf("symbols 数量需在 1~%d 之间", maxSnapshotSymbols))
		return
	}
	snap, err := s.market.GetMarketSnapshot(c.Request.Context(), req.Symbols)
	if err != nil {
		abort(c, marketStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshot": snap})
}

func pathSymbol(c *gin.Context) string {
	return strings.TrimSpace(strings.Trim(c.Param("symbol"), "/"))
}

func marketStatus(err error) int {
	switch {
	case errors.Is(err, market.ErrNoData):
		return http.StatusNotFound
	case market.KindOf(err) == market.KindInvalidSymbol:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
