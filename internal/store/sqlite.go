package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tradelab/internal/market"
)

type barModel struct {
	ID     int64   `gorm:"column:id;primaryKey"`
	Symbol string  `gorm:"column:symbol;size:32;not null;uniqueIndex:idx_bars_symbol_ts,priority:1"`
	Ts     int64   `gorm:"column:ts;not null;uniqueIndex:idx_bars_symbol_ts,priority:2"`
	Open   float64 `gorm:"column:open"`
	High   float64 `gorm:"column:high"`
	Low    float64 `gorm:"column:low"`
	Close  float64 `gorm:"column:close"`
	Volume float64 `gorm:"column:volume"`
}

func (barModel) TableName() string { return "bars" }

type fetchModel struct {
	Symbol    string `gorm:"column:symbol;size:32;primaryKey"`
	Days      int    `gorm:"column:days"`
	FetchedAt int64  `gorm:"column:fetched_at"`
}

func (fetchModel) TableName() string { return "bar_fetches" }

// SQLiteBarStore 用 gorm + sqlite 持久化日线与回测归档，进程重启后仍然有效。
type SQLiteBarStore struct {
	db  *gorm.DB
	now func() time.Time
}

var _ BarStore = (*SQLiteBarStore)(nil)

func NewSQLiteBarStore(path string) (*SQLiteBarStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("bar cache: 路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&barModel{}, &fetchModel{}, &runModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &SQLiteBarStore{db: db, now: time.Now}, nil
}

func (s *SQLiteBarStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteBarStore) Save(ctx context.Context, rec FetchRecord, bars []market.Bar) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("bar cache 未初始化")
	}
	if rec.Symbol == "" {
		return errors.New("symbol 不能为空")
	}
	rows := make([]barModel, 0, len(bars))
	for _, b := range bars {
		rows = append(rows, barModel{
			Symbol: rec.Symbol,
			Ts:     b.Time.Unix(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}, {Name: "ts"}},
				DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
			}).CreateInBatches(&rows, 200).Error
			if err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"days", "fetched_at"}),
		}).Create(&fetchModel{
			Symbol:    rec.Symbol,
			Days:      rec.Days,
			FetchedAt: rec.FetchedAt.Unix(),
		}).Error
	})
}

func (s *SQLiteBarStore) LastFetch(ctx context.Context, symbol string) (FetchRecord, bool, error) {
	if s == nil || s.db == nil {
		return FetchRecord{}, false, fmt.Errorf("bar cache 未初始化")
	}
	var row fetchModel
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return FetchRecord{}, false, nil
	}
	if err != nil {
		return FetchRecord{}, false, err
	}
	return FetchRecord{
		Symbol:    row.Symbol,
		Days:      row.Days,
		FetchedAt: time.Unix(row.FetchedAt, 0).UTC(),
	}, true, nil
}

func (s *SQLiteBarStore) Since(ctx context.Context, symbol string, since time.Time) ([]market.Bar, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("bar cache 未初始化")
	}
	var rows []barModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND ts >= ?", symbol, since.Unix()).
		Order("ts ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]market.Bar, len(rows))
	for i, r := range rows {
		out[i] = market.Bar{
			Time:   time.Unix(r.Ts, 0).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out, nil
}
