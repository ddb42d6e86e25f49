package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradelab/internal/backtest"
)

// RunSummary 是回测归档的列表视图，不含资金曲线与成交明细。
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Symbol         string    `json:"symbol"`
	Start          time.Time `json:"start_date"`
	End            time.Time `json:"end_date"`
	FinalCapital   float64   `json:"final_capital"`
	TotalTrades    int       `json:"total_trades"`
	TotalReturnPct float64   `json:"total_return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunArchive 持久化回测结果，重启后仍可按 run id 取回。
type RunArchive interface {
	SaveRun(ctx context.Context, res *backtest.Result) error
	LoadRun(ctx context.Context, runID string) (*backtest.Result, bool, error)
	ListRuns(ctx context.Context, symbol string, limit int) ([]RunSummary, error)
}

type runModel struct {
	RunID          string         `gorm:"column:run_id;size:64;primaryKey"`
	Symbol         string         `gorm:"column:symbol;size:32;index:idx_runs_symbol"`
	StartDate      datatypes.Date `gorm:"column:start_date"`
	EndDate        datatypes.Date `gorm:"column:end_date"`
	FinalCapital   float64        `gorm:"column:final_capital"`
	TotalTrades    int            `gorm:"column:total_trades"`
	TotalReturnPct float64        `gorm:"column:total_return_pct"`
	MaxDrawdownPct float64        `gorm:"column:max_drawdown_pct"`
	Payload        datatypes.JSON `gorm:"column:payload;type:TEXT"`
	CreatedAt      int64          `gorm:"column:created_at;index:idx_runs_created"`
}

func (runModel) TableName() string { return "backtest_runs" }

var _ RunArchive = (*SQLiteBarStore)(nil)

const defaultRunListLimit = 20

func (s *SQLiteBarStore) SaveRun(ctx context.Context, res *backtest.Result) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run archive 未初始化")
	}
	if res == nil || res.RunID == "" {
		return errors.New("run id 不能为空")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("序列化回测结果失败: %w", err)
	}
	row := runModel{
		RunID:          res.RunID,
		Symbol:         res.Symbol,
		StartDate:      datatypes.Date(res.Start),
		EndDate:        datatypes.Date(res.End),
		FinalCapital:   res.FinalCapital,
		TotalTrades:    res.TotalTrades,
		TotalReturnPct: res.TotalReturnPct,
		MaxDrawdownPct: res.MaxDrawdownPct,
		Payload:        datatypes.JSON(payload),
		CreatedAt:      s.now().Unix(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *SQLiteBarStore) LoadRun(ctx context.Context, runID string) (*backtest.Result, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("run archive 未初始化")
	}
	var row runModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var res backtest.Result
	if err := json.Unmarshal(row.Payload, &res); err != nil {
		return nil, false, fmt.Errorf("解析回测结果 %s 失败: %w", runID, err)
	}
	return &res, true, nil
}

// ListRuns 按创建时间倒序返回摘要，symbol 为空时不过滤。
func (s *SQLiteBarStore) ListRuns(ctx context.Context, symbol string, limit int) ([]RunSummary, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run archive 未初始化")
	}
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	q := s.db.WithContext(ctx).Omit("payload").Order("created_at DESC, run_id ASC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var rows []runModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]RunSummary, len(rows))
	for i, r := range rows {
		out[i] = RunSummary{
			RunID:          r.RunID,
			Symbol:         r.Symbol,
			Start:          time.Time(r.StartDate).UTC(),
			End:            time.Time(r.EndDate).UTC(),
			FinalCapital:   r.FinalCapital,
			TotalTrades:    r.TotalTrades,
			TotalReturnPct: r.TotalReturnPct,
			MaxDrawdownPct: r.MaxDrawdownPct,
			CreatedAt:      time.Unix(r.CreatedAt, 0).UTC(),
		}
	}
	return out, nil
}
