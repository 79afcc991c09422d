package diagnose

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// RunRecord 一次自检运行的历史记录
type RunRecord struct {
	ID        uint      `gorm:"primaryKey"`
	RunID     string `gorm:"uniqueIndex;size:64"`
	Status    string `gorm:"size:32;index"`
	Passed    int
	Total     int
	PassRatio float64
	DurationS float64
	RanAt     time.Time `gorm:"index"`
}

func (RunRecord) TableName() string { return "doctor_runs" }

// History 用 SQLite 持久化自检运行历史，便于跨次对比环境变化
type History struct {
	db      *gorm.DB
	maxRuns int
	logger  *zap.Logger
}

// NewHistory 打开历史库并迁移表结构。maxRuns <= 0 表示不修剪。
func NewHistory(path string, maxRuns int, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	return &History{
		db:      db,
		maxRuns: maxRuns,
		logger:  logger.With(zap.String("component", "history")),
	}, nil
}

// Record 保存一次运行结果，超出 maxRuns 的最老记录被修剪
func (h *History) Record(ctx context.Context, report *Report) error {
	record := &RunRecord{
		RunID:     report.RunID,
		Status:    string(report.Status),
		Passed:    report.Passed,
		Total:     report.Total,
		PassRatio: report.PassRatio,
		DurationS: report.DurationS,
		RanAt:     report.Timestamp,
	}

	if err := h.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	if h.maxRuns > 0 {
		if err := h.prune(ctx); err != nil {
			h.logger.Warn("failed to prune run history", zap.Error(err))
		}
	}
	return nil
}

// Recent 返回最近的 limit 条记录，新的在前
func (h *History) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []RunRecord
	err := h.db.WithContext(ctx).
		Order("ran_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load run history: %w", err)
	}
	return records, nil
}

// Last 返回最近一次运行，没有记录时返回 gorm.ErrRecordNotFound
func (h *History) Last(ctx context.Context) (*RunRecord, error) {
	var record RunRecord
	err := h.db.WithContext(ctx).Order("ran_at DESC").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// prune 只保留最近 maxRuns 条
func (h *History) prune(ctx context.Context) error {
	var count int64
	if err := h.db.WithContext(ctx).Model(&RunRecord{}).Count(&count).Error; err != nil {
		return err
	}
	if count <= int64(h.maxRuns) {
		return nil
	}

	var cutoff RunRecord
	err := h.db.WithContext(ctx).
		Order("ran_at DESC").
		Offset(h.maxRuns - 1).
		First(&cutoff).Error
	if err != nil {
		return err
	}

	return h.db.WithContext(ctx).
		Where("ran_at < ?", cutoff.RanAt).
		Delete(&RunRecord{}).Error
}

// Close 关闭底层连接
func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
