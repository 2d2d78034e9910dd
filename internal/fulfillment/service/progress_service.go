package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	progressCacheKeyPrefix = "fulfillment:progress:"
	progressCacheTTL       = 5 * time.Minute
)

// ProgressService 订单进度聚合服务。生产项进度始终从数据库实时计算，
// Redis缓存仅用于展示层加速，任何工序变更后失效
type ProgressService struct {
	itemRepo  *repository.ProductionItemRepository
	orderRepo *repository.OrderRepository
	quoteRepo *repository.QuoteRepository
	rdb       *redis.Client
}

func NewProgressService(itemRepo *repository.ProductionItemRepository, orderRepo *repository.OrderRepository, quoteRepo *repository.QuoteRepository) *ProgressService {
	return &ProgressService{
		itemRepo:  itemRepo,
		orderRepo: orderRepo,
		quoteRepo: quoteRepo,
	}
}

// SetRedisClient 注入Redis客户端（可选，未注入时直接查库）
func (s *ProgressService) SetRedisClient(rdb *redis.Client) {
	s.rdb = rdb
}

// ItemProgress 单个生产项的进度视图
type ItemProgress struct {
	ItemID           string  `json:"item_id"`
	ProductName      string  `json:"product_name"`
	CurrentStage     string  `json:"current_stage"`
	StageProgress    float64 `json:"stage_progress"`
	AbsoluteProgress float64 `json:"absolute_progress"`
	QCLocked         bool    `json:"qc_locked"`
}

// OrderProgress 订单级进度聚合视图
type OrderProgress struct {
	OrderID         string         `json:"order_id"`
	TotalItems      int            `json:"total_items"`
	CompletedItems  int            `json:"completed_items"`
	OverallProgress float64        `json:"overall_progress"`
	StageCounts     map[string]int `json:"stage_counts"`
	Items           []ItemProgress `json:"items"`
	ComputedAt      time.Time      `json:"computed_at"`
}

// GetOrderProgress 计算订单整体进度。整体进度为各生产项绝对进度的算术平均，
// 无生产项时为0
func (s *ProgressService) GetOrderProgress(ctx context.Context, orderID string) (*OrderProgress, error) {
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, progressCacheKeyPrefix+orderID).Result()
		if err == nil {
			var progress OrderProgress
			if jsonErr := json.Unmarshal([]byte(cached), &progress); jsonErr == nil {
				return &progress, nil
			}
		}
	}

	progress, err := s.computeOrderProgress(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if data, err := json.Marshal(progress); err == nil {
			if err := s.rdb.Set(ctx, progressCacheKeyPrefix+orderID, data, progressCacheTTL).Err(); err != nil {
				zap.L().Warn("写入进度缓存失败", zap.String("order_id", orderID), zap.Error(err))
			}
		}
	}
	return progress, nil
}

func (s *ProgressService) computeOrderProgress(ctx context.Context, orderID string) (*OrderProgress, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, err
	}

	items, err := s.itemRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("查询生产项失败: %w", err)
	}

	progress := &OrderProgress{
		OrderID:     orderID,
		TotalItems:  len(items),
		StageCounts: make(map[string]int),
		Items:       make([]ItemProgress, 0, len(items)),
		ComputedAt:  time.Now(),
	}

	var sum float64
	for _, item := range items {
		abs := entity.AbsoluteProgress(item.CurrentStage, item.Progress)
		sum += abs
		progress.StageCounts[item.CurrentStage]++
		if entity.IsTerminalStage(item.CurrentStage) {
			progress.CompletedItems++
		}
		progress.Items = append(progress.Items, ItemProgress{
			ItemID:           item.ID,
			ProductName:      item.ProductName,
			CurrentStage:     item.CurrentStage,
			StageProgress:    item.Progress,
			AbsoluteProgress: abs,
			QCLocked:         item.QCLocked,
		})
	}
	if len(items) > 0 {
		progress.OverallProgress = sum / float64(len(items))
	}
	return progress, nil
}

// CompletionStatus 订单完工检查结果
type CompletionStatus struct {
	AllCompleted    bool  `json:"all_completed"`
	TotalItems      int64 `json:"total_items"`
	IncompleteItems int64 `json:"incomplete_items"`
	LockedItems     int64 `json:"locked_items"`
}

// CheckCompletion 检查订单下所有生产项是否完工（completed或shipped），
// 且没有质检锁定。开票前置条件检查复用此结果
func (s *ProgressService) CheckCompletion(ctx context.Context, orderID string) (*CompletionStatus, error) {
	items, err := s.itemRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("查询生产项失败: %w", err)
	}

	incomplete, err := s.itemRepo.CountIncompleteByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("统计未完工生产项失败: %w", err)
	}
	locked, err := s.itemRepo.CountLockedByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("统计质检锁定生产项失败: %w", err)
	}

	return &CompletionStatus{
		AllCompleted:    len(items) > 0 && incomplete == 0 && locked == 0,
		TotalItems:      int64(len(items)),
		IncompleteItems: incomplete,
		LockedItems:     locked,
	}, nil
}

// OrderSummary 订单汇总视图（进度+财务阶段+物流）
type OrderSummary struct {
	Order             *entity.Order  `json:"order"`
	Progress          *OrderProgress `json:"progress"`
	UndeliveredQuotes int64          `json:"undelivered_quotes"`
}

// GetOrderSummary 获取订单汇总
func (s *ProgressService) GetOrderSummary(ctx context.Context, orderID string) (*OrderSummary, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	progress, err := s.computeOrderProgress(ctx, orderID)
	if err != nil {
		return nil, err
	}

	undelivered, err := s.quoteRepo.CountUndeliveredByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("统计在途运单失败: %w", err)
	}

	return &OrderSummary{
		Order:             order,
		Progress:          progress,
		UndeliveredQuotes: undelivered,
	}, nil
}

// Invalidate 失效订单进度缓存。缓存只是展示加速，删除失败仅记日志
func (s *ProgressService) Invalidate(ctx context.Context, orderID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, progressCacheKeyPrefix+orderID).Err(); err != nil {
		zap.L().Warn("失效进度缓存失败", zap.String("order_id", orderID), zap.Error(err))
	}
}
