package repository

import (
	"context"
	"errors"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"gorm.io/gorm"
)

// ProductionItemRepository 生产项仓库
type ProductionItemRepository struct {
	db *gorm.DB
}

func NewProductionItemRepository(db *gorm.DB) *ProductionItemRepository {
	return &ProductionItemRepository{db: db}
}

// FindByID 根据ID查找生产项
func (r *ProductionItemRepository) FindByID(ctx context.Context, id string) (*entity.ProductionItem, error) {
	var item entity.ProductionItem
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// FindByOrderID 查询订单下的全部生产项
func (r *ProductionItemRepository) FindByOrderID(ctx context.Context, orderID string) ([]entity.ProductionItem, error) {
	var items []entity.ProductionItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// CountIncompleteByOrder 统计订单下未完成的生产项数量
func (r *ProductionItemRepository) CountIncompleteByOrder(ctx context.Context, orderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ProductionItem{}).
		Where("order_id = ? AND current_stage NOT IN ?", orderID,
			[]string{entity.StageCompleted, entity.StageShipped}).
		Count(&count).Error
	return count, err
}

// CountLockedByOrder 统计订单下质检锁定的生产项数量
func (r *ProductionItemRepository) CountLockedByOrder(ctx context.Context, orderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ProductionItem{}).
		Where("order_id = ? AND qc_locked = true", orderID).
		Count(&count).Error
	return count, err
}

// MarkInvoicedByOrder 将订单下全部生产项标记为已开票
func (r *ProductionItemRepository) MarkInvoicedByOrder(ctx context.Context, orderID string) error {
	return r.db.WithContext(ctx).
		Model(&entity.ProductionItem{}).
		Where("order_id = ?", orderID).
		Update("invoiced", true).Error
}

// Create 创建生产项
func (r *ProductionItemRepository) Create(ctx context.Context, item *entity.ProductionItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// Update 更新生产项
func (r *ProductionItemRepository) Update(ctx context.Context, item *entity.ProductionItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}
