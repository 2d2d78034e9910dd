package repository

import (
	"context"
	"errors"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"gorm.io/gorm"
)

// QueueRepository 开票队列仓库
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// FindByID 根据ID查找队列条目
func (r *QueueRepository) FindByID(ctx context.Context, id string) (*entity.InvoiceQueueEntry, error) {
	var entry entity.InvoiceQueueEntry
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// FindPendingByOrder 查找订单的pending队列条目
func (r *QueueRepository) FindPendingByOrder(ctx context.Context, orderID, action string) (*entity.InvoiceQueueEntry, error) {
	var entry entity.InvoiceQueueEntry
	err := r.db.WithContext(ctx).
		Where("entity_id = ? AND action = ? AND status = ?", orderID, action, entity.QueueStatusPending).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// CountPendingByOrder 统计订单的pending队列条目数量
func (r *QueueRepository) CountPendingByOrder(ctx context.Context, orderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.InvoiceQueueEntry{}).
		Where("entity_id = ? AND status = ?", orderID, entity.QueueStatusPending).
		Count(&count).Error
	return count, err
}

// FindAll 查询队列（priority小的在前）
func (r *QueueRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.InvoiceQueueEntry, int64, error) {
	var items []entity.InvoiceQueueEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.InvoiceQueueEntry{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if entityID := filters["entity_id"]; entityID != "" {
		query = query.Where("entity_id = ?", entityID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("priority ASC, scheduled_for ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Create 创建队列条目
func (r *QueueRepository) Create(ctx context.Context, entry *entity.InvoiceQueueEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Update 更新队列条目
func (r *QueueRepository) Update(ctx context.Context, entry *entity.InvoiceQueueEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}
