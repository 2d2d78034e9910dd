package repository

import (
	"context"
	"errors"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"gorm.io/gorm"
)

// QCRepository 质检仓库
type QCRepository struct {
	db *gorm.DB
}

func NewQCRepository(db *gorm.DB) *QCRepository {
	return &QCRepository{db: db}
}

// FindByID 根据ID查找质检记录
func (r *QCRepository) FindByID(ctx context.Context, id string) (*entity.QCInspection, error) {
	var inspection entity.QCInspection
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&inspection).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inspection, nil
}

// FindByItemID 查询生产项的质检记录（新的在前）
func (r *QCRepository) FindByItemID(ctx context.Context, itemID string) ([]entity.QCInspection, error) {
	var items []entity.QCInspection
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("inspected_at DESC").
		Find(&items).Error
	return items, err
}

// FindAll 查询质检列表
func (r *QCRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.QCInspection, int64, error) {
	var items []entity.QCInspection
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.QCInspection{})

	if orderID := filters["order_id"]; orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if itemID := filters["item_id"]; itemID != "" {
		query = query.Where("item_id = ?", itemID)
	}
	if inspType := filters["inspection_type"]; inspType != "" {
		query = query.Where("inspection_type = ?", inspType)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("inspected_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// Create 创建质检记录
func (r *QCRepository) Create(ctx context.Context, inspection *entity.QCInspection) error {
	return r.db.WithContext(ctx).Create(inspection).Error
}

// Update 更新质检记录（追加纠正措施，不删除）
func (r *QCRepository) Update(ctx context.Context, inspection *entity.QCInspection) error {
	return r.db.WithContext(ctx).Save(inspection).Error
}
