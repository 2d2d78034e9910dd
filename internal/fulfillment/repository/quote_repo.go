package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuoteRepository 运输报价仓库
type QuoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

// FindByID 根据ID查找报价
func (r *QuoteRepository) FindByID(ctx context.Context, id string) (*entity.ShippingQuote, error) {
	var quote entity.ShippingQuote
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&quote).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &quote, nil
}

// FindByOrderID 查询订单下的全部报价
func (r *QuoteRepository) FindByOrderID(ctx context.Context, orderID string) ([]entity.ShippingQuote, error) {
	var quotes []entity.ShippingQuote
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&quotes).Error
	return quotes, err
}

// CountUndeliveredByOrder 统计订单下未送达的报价（rejected不计）
func (r *QuoteRepository) CountUndeliveredByOrder(ctx context.Context, orderID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.ShippingQuote{}).
		Where("order_id = ? AND status NOT IN ?", orderID,
			[]string{entity.QuoteStatusDelivered, entity.QuoteStatusRejected}).
		Count(&count).Error
	return count, err
}

// FindAll 查询报价列表
func (r *QuoteRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ShippingQuote, int64, error) {
	var items []entity.ShippingQuote
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ShippingQuote{})

	if orderID := filters["order_id"]; orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	}
	if carrier := filters["carrier"]; carrier != "" {
		query = query.Where("carrier = ?", carrier)
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

// GenerateQuoteNo 生成报价编号 SQ-{yyyyMMdd}-{4位}
func (r *QuoteRepository) GenerateQuoteNo(ctx context.Context) (string, error) {
	day := time.Now().Format("20060102")
	prefix := fmt.Sprintf("SQ-%s-", day)

	var maxNo string
	err := r.db.WithContext(ctx).
		Model(&entity.ShippingQuote{}).
		Select("COALESCE(MAX(quote_no), '')").
		Where("quote_no LIKE ?", prefix+"%").
		Scan(&maxNo).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxNo != "" {
		fmt.Sscanf(maxNo, "SQ-"+day+"-%04d", &seq)
	}
	seq++
	return fmt.Sprintf("SQ-%s-%04d", day, seq), nil
}

// Create 创建报价
func (r *QuoteRepository) Create(ctx context.Context, quote *entity.ShippingQuote) error {
	return r.db.WithContext(ctx).Create(quote).Error
}

// Update 更新报价
func (r *QuoteRepository) Update(ctx context.Context, quote *entity.ShippingQuote) error {
	return r.db.WithContext(ctx).Save(quote).Error
}

// QuoteActionRepository 报价操作日志仓库
type QuoteActionRepository struct {
	db *gorm.DB
}

func NewQuoteActionRepository(db *gorm.DB) *QuoteActionRepository {
	return &QuoteActionRepository{db: db}
}

// Create 创建操作日志
func (r *QuoteActionRepository) Create(ctx context.Context, action *entity.ShippingQuoteAction) error {
	if action.ID == "" {
		action.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(action).Error
}

// FindByQuoteID 查询报价的操作日志
func (r *QuoteActionRepository) FindByQuoteID(ctx context.Context, quoteID string) ([]entity.ShippingQuoteAction, error) {
	var actions []entity.ShippingQuoteAction
	err := r.db.WithContext(ctx).
		Where("quote_id = ?", quoteID).
		Order("created_at ASC").
		Find(&actions).Error
	return actions, err
}

// LogAction 便捷记录报价操作日志
func (r *QuoteActionRepository) LogAction(ctx context.Context, quoteID, action, fromStatus, toStatus, notes, operatorID string) {
	row := &entity.ShippingQuoteAction{
		ID:         uuid.New().String()[:32],
		QuoteID:    quoteID,
		Action:     action,
		FromStatus: fromStatus,
		ToStatus:   toStatus,
		Notes:      notes,
		OperatorID: operatorID,
	}
	// 异步写日志，忽略错误
	r.db.WithContext(ctx).Create(row)
}
