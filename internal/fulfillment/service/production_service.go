package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/google/uuid"
)

// ProductionService 生产工序台账服务
type ProductionService struct {
	itemRepo    *repository.ProductionItemRepository
	orderRepo   *repository.OrderRepository
	progressSvc *ProgressService
}

func NewProductionService(itemRepo *repository.ProductionItemRepository, orderRepo *repository.OrderRepository) *ProductionService {
	return &ProductionService{
		itemRepo:  itemRepo,
		orderRepo: orderRepo,
	}
}

// SetProgressService 注入进度聚合服务（工序变更后失效缓存）
func (s *ProductionService) SetProgressService(svc *ProgressService) {
	s.progressSvc = svc
}

// CreateItemRequest 创建生产项请求
type CreateItemRequest struct {
	ProductName string `json:"product_name" binding:"required"`
	SKU         string `json:"sku"`
	AssignedTo  string `json:"assigned_to"`
	Notes       string `json:"notes"`
}

// CreateItem 创建生产项（订单确认时生成）
func (s *ProductionService) CreateItem(ctx context.Context, orderID string, req *CreateItemRequest, operatorID string) (*entity.ProductionItem, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("订单不存在")
	}

	now := time.Now()
	item := &entity.ProductionItem{
		ID:             uuid.New().String()[:32],
		OrderID:        orderID,
		ProductName:    req.ProductName,
		SKU:            req.SKU,
		CurrentStage:   entity.StageCutting,
		Progress:       0,
		StageEnteredAt: &now,
		StageHistory:   entity.StageHistory{},
		AssignedTo:     req.AssignedTo,
		Notes:          req.Notes,
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("创建生产项失败: %w", err)
	}

	s.invalidateProgress(ctx, orderID)
	return item, nil
}

// GetItem 获取生产项详情
func (s *ProductionService) GetItem(ctx context.Context, id string) (*entity.ProductionItem, error) {
	return s.itemRepo.FindByID(ctx, id)
}

// ListItems 查询订单下的生产项
func (s *ProductionService) ListItems(ctx context.Context, orderID string) ([]entity.ProductionItem, error) {
	return s.itemRepo.FindByOrderID(ctx, orderID)
}

// AdvanceStageRequest 工序推进请求
type AdvanceStageRequest struct {
	NewStage string  `json:"new_stage" binding:"required"`
	Progress float64 `json:"progress"`
	Notes    string  `json:"notes"`
}

// AdvanceStage 推进工序。只允许推进到下一道工序，禁止跳序；
// 质检锁定时不允许越过quality_check
func (s *ProductionService) AdvanceStage(ctx context.Context, itemID string, req *AdvanceStageRequest, operatorID string) (*entity.ProductionItem, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if _, ok := entity.StageOrder[req.NewStage]; !ok {
		return nil, &GuardError{Reason: fmt.Sprintf("未知工序: %s", req.NewStage)}
	}
	if req.Progress < 0 || req.Progress > 100 {
		return nil, &GuardError{Reason: "进度必须在0-100之间"}
	}

	expected, ok := entity.NextStage(item.CurrentStage)
	if !ok {
		return nil, &GuardError{Reason: fmt.Sprintf("工序 %s 已是末道工序", item.CurrentStage)}
	}
	if req.NewStage != expected {
		return nil, &GuardError{Reason: fmt.Sprintf("工序不允许跳转: %s 的下一道工序是 %s", item.CurrentStage, expected)}
	}

	if item.QCLocked && entity.StageOrder[req.NewStage] > entity.StageOrder[entity.StageQualityCheck] {
		return nil, &StageBlockedError{ItemID: item.ID}
	}

	now := time.Now()
	// 正常离开的工序退出进度记为100
	item.StageHistory = append(item.StageHistory, entity.StageHistoryEntry{
		Stage:          item.CurrentStage,
		Timestamp:      now,
		ProgressAtExit: 100,
	})
	item.CurrentStage = req.NewStage
	item.Progress = req.Progress
	item.StageEnteredAt = &now
	if req.Notes != "" {
		item.Notes = req.Notes
	}
	if req.NewStage == entity.StageCompleted {
		item.CompletedAt = &now
		item.Progress = 100
	}
	if req.NewStage == entity.StageShipped {
		item.Progress = 100
	}

	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("更新生产项失败: %w", err)
	}

	s.invalidateProgress(ctx, item.OrderID)
	return item, nil
}

// UpdateProgressRequest 工序内进度更新请求
type UpdateProgressRequest struct {
	Progress float64 `json:"progress" binding:"min=0,max=100"`
}

// UpdateProgress 更新当前工序内进度。进度只增不减，不改变工序
func (s *ProductionService) UpdateProgress(ctx context.Context, itemID string, req *UpdateProgressRequest, operatorID string) (*entity.ProductionItem, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if req.Progress < item.Progress {
		return nil, &GuardError{Reason: fmt.Sprintf("进度不能回退: 当前 %.0f%%，提交 %.0f%%", item.Progress, req.Progress)}
	}

	item.Progress = req.Progress
	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("更新进度失败: %w", err)
	}

	s.invalidateProgress(ctx, item.OrderID)
	return item, nil
}

func (s *ProductionService) invalidateProgress(ctx context.Context, orderID string) {
	if s.progressSvc != nil {
		s.progressSvc.Invalidate(ctx, orderID)
	}
}
