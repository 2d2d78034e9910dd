package repository

import (
	"context"
	"errors"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncLogRepository 同步日志仓库（只追加）
type SyncLogRepository struct {
	db *gorm.DB
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{db: db}
}

// Create 创建同步日志
func (r *SyncLogRepository) Create(ctx context.Context, log *entity.SyncLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(log).Error
}

// FindLastByReference 查询订单最近一条同步日志
func (r *SyncLogRepository) FindLastByReference(ctx context.Context, referenceID string) (*entity.SyncLog, error) {
	var log entity.SyncLog
	err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at DESC").
		First(&log).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &log, nil
}

// FindAll 查询同步日志列表
func (r *SyncLogRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.SyncLog, int64, error) {
	var items []entity.SyncLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.SyncLog{})

	if syncType := filters["sync_type"]; syncType != "" {
		query = query.Where("sync_type = ?", syncType)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if referenceID := filters["reference_id"]; referenceID != "" {
		query = query.Where("reference_id = ?", referenceID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}
