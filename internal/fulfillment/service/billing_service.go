package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/shared/accounting"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AccountingGateway 外部财务系统出站接口。
// 调用失败不阻塞本地开票，结果记入SyncLog
type AccountingGateway interface {
	CreateInvoice(ctx context.Context, req accounting.CreateInvoiceRequest) (*accounting.CreateInvoiceResponse, error)
}

// BillingService 订单财务阶段与开票服务
type BillingService struct {
	orderRepo   *repository.OrderRepository
	itemRepo    *repository.ProductionItemRepository
	invoiceRepo *repository.InvoiceRepository
	queueRepo   *repository.QueueRepository
	syncLogRepo *repository.SyncLogRepository
	progressSvc *ProgressService
	gateway     AccountingGateway
}

func NewBillingService(
	orderRepo *repository.OrderRepository,
	itemRepo *repository.ProductionItemRepository,
	invoiceRepo *repository.InvoiceRepository,
	queueRepo *repository.QueueRepository,
	syncLogRepo *repository.SyncLogRepository,
) *BillingService {
	return &BillingService{
		orderRepo:   orderRepo,
		itemRepo:    itemRepo,
		invoiceRepo: invoiceRepo,
		queueRepo:   queueRepo,
		syncLogRepo: syncLogRepo,
	}
}

// SetProgressService 注入进度聚合服务
func (s *BillingService) SetProgressService(svc *ProgressService) {
	s.progressSvc = svc
}

// SetAccountingGateway 注入外部财务系统客户端
func (s *BillingService) SetAccountingGateway(gw AccountingGateway) {
	s.gateway = gw
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	OrderNo      string  `json:"order_no" binding:"required"`
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
	TotalAmount  float64 `json:"total_amount"`
	Currency     string  `json:"currency"`
	Notes        string  `json:"notes"`
}

// CreateOrder 创建订单，财务阶段从in_production起步
func (s *BillingService) CreateOrder(ctx context.Context, req *CreateOrderRequest, operatorID string) (*entity.Order, error) {
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	order := &entity.Order{
		ID:             uuid.New().String()[:32],
		OrderNo:        req.OrderNo,
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		TotalAmount:    req.TotalAmount,
		Currency:       currency,
		FinancialStage: entity.FinancialStageInProduction,
		CreatedBy:      operatorID,
		Notes:          req.Notes,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, &ConflictError{Reason: fmt.Sprintf("订单号已存在: %s", req.OrderNo)}
		}
		return nil, fmt.Errorf("创建订单失败: %w", err)
	}
	return order, nil
}

// GetOrder 获取订单详情
func (s *BillingService) GetOrder(ctx context.Context, id string) (*entity.Order, error) {
	return s.orderRepo.FindByID(ctx, id)
}

// ListOrders 查询订单列表
func (s *BillingService) ListOrders(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Order, int64, error) {
	return s.orderRepo.FindAll(ctx, page, pageSize, filters)
}

// MarkReady 标记订单可开票。要求全部生产项完工且无质检锁定，
// 财务阶段 in_production → ready_to_invoice
func (s *BillingService) MarkReady(ctx context.Context, orderID, operatorID string) (*entity.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.FinancialStage == entity.FinancialStageReadyToInvoice {
		return nil, &ConflictError{Reason: "订单已标记为可开票"}
	}
	if !entity.CanTransitFinancialStage(order.FinancialStage, entity.FinancialStageReadyToInvoice) {
		return nil, &InvalidTransitionError{
			Action:   "markReady",
			Current:  order.FinancialStage,
			Required: entity.FinancialStageInProduction,
		}
	}

	status, err := s.progressSvc.CheckCompletion(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if status.TotalItems == 0 {
		return nil, &GuardError{Reason: "订单没有生产项，不能标记可开票"}
	}
	if status.IncompleteItems > 0 {
		return nil, &GuardError{Reason: fmt.Sprintf("%d 个生产项未完成", status.IncompleteItems)}
	}
	if status.LockedItems > 0 {
		return nil, &GuardError{Reason: fmt.Sprintf("%d 个生产项处于质检锁定", status.LockedItems)}
	}

	order.FinancialStage = entity.FinancialStageReadyToInvoice
	order.ReadyToInvoice = true
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("更新订单失败: %w", err)
	}
	return order, nil
}

// UnmarkReady 取消可开票标记，ready_to_invoice → in_production。
// 已开票的订单不能取消
func (s *BillingService) UnmarkReady(ctx context.Context, orderID, operatorID string) (*entity.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.FinancialStage != entity.FinancialStageReadyToInvoice {
		return nil, &InvalidTransitionError{
			Action:   "unmarkReady",
			Current:  order.FinancialStage,
			Required: entity.FinancialStageReadyToInvoice,
		}
	}

	order.FinancialStage = entity.FinancialStageInProduction
	order.ReadyToInvoice = false
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("更新订单失败: %w", err)
	}
	return order, nil
}

// QueueInvoice 将订单加入开票队列，由外部worker消费。幂等：
// 已有pending条目时返回冲突，不重复入队
func (s *BillingService) QueueInvoice(ctx context.Context, orderID, operatorID string) (*entity.InvoiceQueueEntry, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.FinancialStage != entity.FinancialStageReadyToInvoice {
		return nil, &InvalidTransitionError{
			Action:   "queueInvoice",
			Current:  order.FinancialStage,
			Required: entity.FinancialStageReadyToInvoice,
		}
	}

	if existing, err := s.queueRepo.FindPendingByOrder(ctx, orderID, entity.QueueActionCreate); err == nil {
		return nil, &ConflictError{Reason: fmt.Sprintf("订单已在开票队列中: %s", existing.ID)}
	} else if err != repository.ErrNotFound {
		return nil, err
	}

	// 阶段守卫之外再查一次有效发票，兜住开票成功但阶段回写失败的残留状态
	if count, err := s.invoiceRepo.CountActiveByOrder(ctx, orderID); err != nil {
		return nil, fmt.Errorf("查询发票失败: %w", err)
	} else if count > 0 {
		return nil, &ConflictError{Reason: "订单已存在有效发票"}
	}

	entry := &entity.InvoiceQueueEntry{
		ID:           uuid.New().String()[:32],
		EntityType:   "invoice",
		EntityID:     orderID,
		Action:       entity.QueueActionCreate,
		Priority:     entity.QueuePriorityNormal,
		ScheduledFor: time.Now(),
		Status:       entity.QueueStatusPending,
		CreatedBy:    operatorID,
	}
	if err := s.queueRepo.Create(ctx, entry); err != nil {
		// 并发入队由部分唯一索引兜底
		if repository.IsDuplicateKey(err) {
			return nil, &ConflictError{Reason: "订单已在开票队列中"}
		}
		return nil, fmt.Errorf("创建队列条目失败: %w", err)
	}
	return entry, nil
}

// ListQueue 查询开票队列
func (s *BillingService) ListQueue(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.InvoiceQueueEntry, int64, error) {
	return s.queueRepo.FindAll(ctx, page, pageSize, filters)
}

// ListInvoices 查询发票列表
func (s *BillingService) ListInvoices(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Invoice, int64, error) {
	return s.invoiceRepo.FindAll(ctx, page, pageSize, filters)
}

// GetInvoice 获取发票详情
func (s *BillingService) GetInvoice(ctx context.Context, id string) (*entity.Invoice, error) {
	return s.invoiceRepo.FindByID(ctx, id)
}

// ListSyncLogs 查询同步日志
func (s *BillingService) ListSyncLogs(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.SyncLog, int64, error) {
	return s.syncLogRepo.FindAll(ctx, page, pageSize, filters)
}

// QueueStatus 订单的开票排队状态
type QueueStatus struct {
	OrderID      string          `json:"order_id"`
	PendingCount int64           `json:"pending_count"`
	LastSyncLog  *entity.SyncLog `json:"last_sync_log,omitempty"`
}

// GetQueueStatus 查询订单的排队条目数和最近一次同步结果
func (s *BillingService) GetQueueStatus(ctx context.Context, orderID string) (*QueueStatus, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, err
	}

	pending, err := s.queueRepo.CountPendingByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("统计队列条目失败: %w", err)
	}

	status := &QueueStatus{OrderID: orderID, PendingCount: pending}
	if last, err := s.syncLogRepo.FindLastByReference(ctx, orderID); err == nil {
		status.LastSyncLog = last
	} else if err != repository.ErrNotFound {
		return nil, err
	}
	return status, nil
}

// BulkQueueInvoicesRequest 批量开票请求
type BulkQueueInvoicesRequest struct {
	OrderIDs []string `json:"order_ids" binding:"required,min=1"`
}

// BulkQueueInvoices 批量开票。逐个订单处理，单个失败不影响其余；
// 结束后写一条SyncLog：全部成功为success，部分失败为warning
func (s *BillingService) BulkQueueInvoices(ctx context.Context, req *BulkQueueInvoicesRequest, operatorID string) (*entity.BulkInvoiceResult, error) {
	result := &entity.BulkInvoiceResult{
		TotalRequested: len(req.OrderIDs),
		Created:        []string{},
	}

	for _, orderID := range req.OrderIDs {
		invoice, syncResult, verr := s.invoiceOne(ctx, orderID, operatorID)
		if verr != nil {
			result.Failed++
			result.ValidationErrors = append(result.ValidationErrors, *verr)
			continue
		}
		result.Succeeded++
		result.Created = append(result.Created, orderID)
		result.InvoiceNos = append(result.InvoiceNos, invoice.InvoiceNo)
		if syncResult != nil {
			result.ExternalResults = append(result.ExternalResults, *syncResult)
		}
	}

	status := entity.SyncStatusSuccess
	message := fmt.Sprintf("批量开票完成: %d 成功", result.Succeeded)
	if result.Failed > 0 {
		status = entity.SyncStatusWarning
		message = fmt.Sprintf("批量开票完成: %d 成功, %d 失败", result.Succeeded, result.Failed)
	}
	detail, _ := json.Marshal(result)
	if err := s.syncLogRepo.Create(ctx, &entity.SyncLog{
		SyncType: entity.SyncTypeBulkInvoice,
		Status:   status,
		Message:  message,
		Detail:   detail,
	}); err != nil {
		zap.L().Error("写入同步日志失败", zap.Error(err))
	}

	return result, nil
}

// invoiceOne 对单个订单开票。返回校验失败时不返回error，
// 以便批量调用方把失败收进结果而不中断
func (s *BillingService) invoiceOne(ctx context.Context, orderID, operatorID string) (*entity.Invoice, *entity.ExternalSyncResult, *entity.OrderValidationError) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, nil, &entity.OrderValidationError{OrderID: orderID, Reason: "订单不存在"}
	}
	if order.FinancialStage != entity.FinancialStageReadyToInvoice {
		return nil, nil, &entity.OrderValidationError{
			OrderID: orderID,
			Reason:  fmt.Sprintf("财务阶段为 %s，要求 ready_to_invoice", order.FinancialStage),
		}
	}
	if count, err := s.invoiceRepo.CountActiveByOrder(ctx, orderID); err != nil {
		return nil, nil, &entity.OrderValidationError{OrderID: orderID, Reason: "查询发票失败"}
	} else if count > 0 {
		return nil, nil, &entity.OrderValidationError{OrderID: orderID, Reason: "订单已存在有效发票"}
	}

	now := time.Now()
	invoice := &entity.Invoice{
		ID:          uuid.New().String()[:32],
		InvoiceNo:   GenerateInvoiceNo(order.OrderNo, now),
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount,
		BalanceDue:  order.TotalAmount,
		Currency:    order.Currency,
		Status:      entity.InvoiceStatusIssued,
		CreatedBy:   operatorID,
	}
	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, nil, &entity.OrderValidationError{OrderID: orderID, Reason: "订单已存在有效发票"}
		}
		return nil, nil, &entity.OrderValidationError{OrderID: orderID, Reason: "创建发票失败"}
	}

	// 外部同步失败不回滚本地发票
	syncResult := s.syncInvoice(ctx, order, invoice)

	order.FinancialStage = entity.FinancialStageInvoiced
	order.ReadyToInvoice = false
	if err := s.orderRepo.Update(ctx, order); err != nil {
		zap.L().Error("更新订单财务阶段失败", zap.String("order_id", orderID), zap.Error(err))
	}
	if err := s.itemRepo.MarkInvoicedByOrder(ctx, orderID); err != nil {
		zap.L().Error("标记生产项已开票失败", zap.String("order_id", orderID), zap.Error(err))
	}

	return invoice, syncResult, nil
}

// syncInvoice 向外部财务系统同步发票，返回同步结果。未配置网关时返回nil
func (s *BillingService) syncInvoice(ctx context.Context, order *entity.Order, invoice *entity.Invoice) *entity.ExternalSyncResult {
	if s.gateway == nil {
		return nil
	}

	resp, err := s.gateway.CreateInvoice(ctx, accounting.CreateInvoiceRequest{
		InvoiceNo:   invoice.InvoiceNo,
		OrderNo:     order.OrderNo,
		CustomerID:  order.CustomerID,
		TotalAmount: invoice.TotalAmount,
		Currency:    invoice.Currency,
	})
	if err != nil {
		zap.L().Warn("外部财务系统同步失败",
			zap.String("order_id", order.ID),
			zap.String("invoice_no", invoice.InvoiceNo),
			zap.Error(err))
		return &entity.ExternalSyncResult{OrderID: order.ID, Error: err.Error()}
	}

	invoice.SyncedToAccounting = true
	invoice.ExternalInvoiceID = resp.ExternalInvoiceID
	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		zap.L().Error("更新发票同步状态失败", zap.String("invoice_id", invoice.ID), zap.Error(err))
	}
	return &entity.ExternalSyncResult{OrderID: order.ID, ExternalInvoiceID: resp.ExternalInvoiceID}
}

// CompleteQueueEntry 外部worker消费队列条目的回调：对条目对应的订单开票，
// 成功置completed，失败置failed，并各写一条SyncLog
func (s *BillingService) CompleteQueueEntry(ctx context.Context, entryID, operatorID string) (*entity.SingleInvoiceResult, error) {
	entry, err := s.queueRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != entity.QueueStatusPending {
		return nil, &InvalidTransitionError{
			Action:   "processQueueEntry",
			Current:  entry.Status,
			Required: entity.QueueStatusPending,
		}
	}

	entry.Status = entity.QueueStatusProcessing
	if err := s.queueRepo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("更新队列条目失败: %w", err)
	}

	result := &entity.SingleInvoiceResult{
		OrderID:      entry.EntityID,
		QueueEntryID: entry.ID,
	}

	invoice, syncResult, verr := s.invoiceOne(ctx, entry.EntityID, operatorID)
	if verr != nil {
		entry.Status = entity.QueueStatusFailed
		if err := s.queueRepo.Update(ctx, entry); err != nil {
			zap.L().Error("更新队列条目失败", zap.String("entry_id", entry.ID), zap.Error(err))
		}
		s.writeSingleSyncLog(ctx, entry.EntityID, entity.SyncStatusFailure, verr.Reason, result)
		return nil, &GuardError{Reason: verr.Reason}
	}

	result.InvoiceID = invoice.ID
	result.InvoiceNo = invoice.InvoiceNo
	if syncResult != nil {
		result.ExternalInvoiceID = syncResult.ExternalInvoiceID
		result.ExternalError = syncResult.Error
	}

	entry.Status = entity.QueueStatusCompleted
	if err := s.queueRepo.Update(ctx, entry); err != nil {
		zap.L().Error("更新队列条目失败", zap.String("entry_id", entry.ID), zap.Error(err))
	}

	status := entity.SyncStatusSuccess
	message := fmt.Sprintf("开票完成: %s", invoice.InvoiceNo)
	if result.ExternalError != "" {
		status = entity.SyncStatusWarning
		message = fmt.Sprintf("开票完成但外部同步失败: %s", invoice.InvoiceNo)
	}
	s.writeSingleSyncLog(ctx, entry.EntityID, status, message, result)

	return result, nil
}

func (s *BillingService) writeSingleSyncLog(ctx context.Context, orderID, status, message string, result *entity.SingleInvoiceResult) {
	detail, _ := json.Marshal(result)
	if err := s.syncLogRepo.Create(ctx, &entity.SyncLog{
		SyncType:    entity.SyncTypeSingleInvoice,
		ReferenceID: orderID,
		Status:      status,
		Message:     message,
		Detail:      detail,
	}); err != nil {
		zap.L().Error("写入同步日志失败", zap.Error(err))
	}
}

// CompleteOrder 订单财务闭环，invoiced → completed
func (s *BillingService) CompleteOrder(ctx context.Context, orderID, operatorID string) (*entity.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransitFinancialStage(order.FinancialStage, entity.FinancialStageCompleted) {
		return nil, &InvalidTransitionError{
			Action:   "completeOrder",
			Current:  order.FinancialStage,
			Required: entity.FinancialStageInvoiced,
		}
	}

	order.FinancialStage = entity.FinancialStageCompleted
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("更新订单失败: %w", err)
	}
	return order, nil
}

// OnShipmentDelivered 运单妥投后的回调：已开票订单自动完成财务闭环，
// 其他阶段不动作
func (s *BillingService) OnShipmentDelivered(ctx context.Context, orderID string) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		zap.L().Warn("妥投回调查询订单失败", zap.String("order_id", orderID), zap.Error(err))
		return
	}
	if order.FinancialStage != entity.FinancialStageInvoiced {
		return
	}
	order.FinancialStage = entity.FinancialStageCompleted
	if err := s.orderRepo.Update(ctx, order); err != nil {
		zap.L().Error("妥投回调更新订单失败", zap.String("order_id", orderID), zap.Error(err))
	}
}

// GenerateInvoiceNo 生成发票号: INV-{订单号}-{毫秒时间戳后6位}。
// 同号并发由invoice_no唯一索引兜底
func GenerateInvoiceNo(orderNo string, now time.Time) string {
	millis := fmt.Sprintf("%d", now.UnixMilli())
	return fmt.Sprintf("INV-%s-%s", orderNo, millis[len(millis)-6:])
}
