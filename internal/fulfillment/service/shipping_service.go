package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/ethan273/limn-systems/internal/fulfillment/entity"
	"github.com/ethan273/limn-systems/internal/fulfillment/repository"
	"github.com/ethan273/limn-systems/internal/shared/carrier"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 未填写驳回原因时的默认值
const defaultRejectionReason = "No reason provided"

// TrackingGateway 承运商跟踪出站接口。track动作只读，不改报价状态
type TrackingGateway interface {
	GetTrackingInfo(ctx context.Context, trackingNumber string) (*carrier.TrackingInfo, error)
}

// ShippingService 运输报价服务。报价生命周期独立于财务链路，
// 妥投后通过回调通知财务侧
type ShippingService struct {
	db         *gorm.DB
	quoteRepo  *repository.QuoteRepository
	actionRepo *repository.QuoteActionRepository
	orderRepo  *repository.OrderRepository
	billingSvc *BillingService
	trackingGW TrackingGateway
}

func NewShippingService(
	db *gorm.DB,
	quoteRepo *repository.QuoteRepository,
	actionRepo *repository.QuoteActionRepository,
	orderRepo *repository.OrderRepository,
) *ShippingService {
	return &ShippingService{
		db:         db,
		quoteRepo:  quoteRepo,
		actionRepo: actionRepo,
		orderRepo:  orderRepo,
	}
}

// SetBillingService 注入财务服务（妥投回调）
func (s *ShippingService) SetBillingService(svc *BillingService) {
	s.billingSvc = svc
}

// SetTrackingGateway 注入承运商跟踪客户端
func (s *ShippingService) SetTrackingGateway(gw TrackingGateway) {
	s.trackingGW = gw
}

// CreateQuoteRequest 创建运输报价请求
type CreateQuoteRequest struct {
	Carrier     string  `json:"carrier"`
	ServiceType string  `json:"service_type"`
	Cost        float64 `json:"cost"`
	Currency    string  `json:"currency"`
	TransitDays int     `json:"transit_days"`
	Notes       string  `json:"notes"`
}

// CreateQuote 创建运输报价。已有承运商和报价金额时直接进入quoted，
// 否则从pending起步等待报价
func (s *ShippingService) CreateQuote(ctx context.Context, orderID string, req *CreateQuoteRequest, operatorID string) (*entity.ShippingQuote, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	quoteNo, err := s.quoteRepo.GenerateQuoteNo(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成报价编号失败: %w", err)
	}

	status := entity.QuoteStatusPending
	if req.Carrier != "" && req.Cost > 0 {
		status = entity.QuoteStatusQuoted
	}
	currency := req.Currency
	if currency == "" {
		currency = order.Currency
	}

	quote := &entity.ShippingQuote{
		ID:          uuid.New().String()[:32],
		QuoteNo:     quoteNo,
		OrderID:     order.ID,
		CustomerID:  order.CustomerID,
		Status:      status,
		Carrier:     req.Carrier,
		ServiceType: req.ServiceType,
		Cost:        req.Cost,
		Currency:    currency,
		TransitDays: req.TransitDays,
		CreatedBy:   operatorID,
		Notes:       req.Notes,
	}
	if err := s.quoteRepo.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("创建报价失败: %w", err)
	}

	s.actionRepo.LogAction(ctx, quote.ID, "create", "", status, req.Notes, operatorID)
	s.fillDisplayFields(quote, order)
	return quote, nil
}

// SubmitQuoteRequest 补充报价明细请求
type SubmitQuoteRequest struct {
	Carrier     string  `json:"carrier" binding:"required"`
	ServiceType string  `json:"service_type"`
	Cost        float64 `json:"cost" binding:"required,gt=0"`
	TransitDays int     `json:"transit_days"`
}

// SubmitQuote 补充报价明细，pending → quoted
func (s *ShippingService) SubmitQuote(ctx context.Context, quoteID string, req *SubmitQuoteRequest, operatorID string) (*entity.ShippingQuote, error) {
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status != entity.QuoteStatusPending {
		return nil, &InvalidTransitionError{
			Action:   "submitQuote",
			Current:  quote.Status,
			Required: entity.QuoteStatusPending,
		}
	}

	from := quote.Status
	quote.Carrier = req.Carrier
	quote.ServiceType = req.ServiceType
	quote.Cost = req.Cost
	quote.TransitDays = req.TransitDays
	quote.Status = entity.QuoteStatusQuoted

	if err := s.saveWithAction(ctx, quote, "submitQuote", from, "", operatorID); err != nil {
		return nil, err
	}
	return quote, nil
}

// GetQuote 获取报价详情（附操作日志）
func (s *ShippingService) GetQuote(ctx context.Context, id string) (*entity.ShippingQuote, []entity.ShippingQuoteAction, error) {
	quote, err := s.quoteRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	actions, err := s.actionRepo.FindByQuoteID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("查询操作日志失败: %w", err)
	}
	if order, err := s.orderRepo.FindByID(ctx, quote.OrderID); err == nil {
		s.fillDisplayFields(quote, order)
	}
	return quote, actions, nil
}

// ListQuotes 查询报价列表
func (s *ShippingService) ListQuotes(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.ShippingQuote, int64, error) {
	quotes, total, err := s.quoteRepo.FindAll(ctx, page, pageSize, filters)
	if err != nil {
		return nil, 0, err
	}
	for i := range quotes {
		if order, err := s.orderRepo.FindByID(ctx, quotes[i].OrderID); err == nil {
			s.fillDisplayFields(&quotes[i], order)
		}
	}
	return quotes, total, nil
}

// QuoteActionRequest 报价动作请求
type QuoteActionRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// PerformAction 执行报价动作（approve/reject/book/track）。
// 动作的前置状态由QuoteActionRules约束，track只读
func (s *ShippingService) PerformAction(ctx context.Context, quoteID string, req *QuoteActionRequest, operatorID string) (*entity.ShippingQuote, *carrier.TrackingInfo, error) {
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return nil, nil, err
	}
	if order, err := s.orderRepo.FindByID(ctx, quote.OrderID); err == nil {
		s.fillDisplayFields(quote, order)
	}

	if req.Action == entity.QuoteActionTrack {
		info, err := s.track(ctx, quote)
		return quote, info, err
	}

	allowed, ok := entity.QuoteActionRules[req.Action]
	if !ok {
		return nil, nil, &GuardError{Reason: fmt.Sprintf("未知动作: %s", req.Action)}
	}
	permitted := false
	for _, status := range allowed {
		if quote.Status == status {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, nil, &InvalidTransitionError{
			Action:   req.Action,
			Current:  quote.Status,
			Required: allowed[0],
		}
	}

	from := quote.Status
	now := time.Now()

	switch req.Action {
	case entity.QuoteActionApprove:
		quote.Status = entity.QuoteStatusApproved
		quote.ApprovedBy = operatorID
		quote.ApprovedAt = &now

	case entity.QuoteActionReject:
		quote.Status = entity.QuoteStatusRejected
		// 驳回同样记录决策人和决策时间
		quote.ApprovedBy = operatorID
		quote.ApprovedAt = &now
		reason := req.Reason
		if reason == "" {
			reason = defaultRejectionReason
		}
		quote.RejectionReason = reason

	case entity.QuoteActionBook:
		millis := now.UnixMilli()
		quote.Status = entity.QuoteStatusBooked
		quote.TrackingNumber = GenerateTrackingNumber(now)
		quote.CarrierBookingID = fmt.Sprintf("SEKO-%d", millis)
		pickup := now.AddDate(0, 0, 1)
		delivery := now.AddDate(0, 0, quote.TransitDays+1)
		quote.PickupDate = &pickup
		quote.DeliveryDate = &delivery
	}

	if err := s.saveWithAction(ctx, quote, req.Action, from, req.Notes, operatorID); err != nil {
		return nil, nil, err
	}
	return quote, nil, nil
}

// track 查询承运商跟踪信息，不改状态
func (s *ShippingService) track(ctx context.Context, quote *entity.ShippingQuote) (*carrier.TrackingInfo, error) {
	if quote.TrackingNumber == "" {
		return nil, &GuardError{Reason: "报价尚未预订，没有运单号"}
	}
	if s.trackingGW == nil {
		// 未配置承运商接口时返回本地快照
		return &carrier.TrackingInfo{
			TrackingNumber: quote.TrackingNumber,
			Status:         quote.Status,
		}, nil
	}
	info, err := s.trackingGW.GetTrackingInfo(ctx, quote.TrackingNumber)
	if err != nil {
		return nil, fmt.Errorf("查询跟踪信息失败: %w", err)
	}
	return info, nil
}

// UpdateShipmentStatusRequest 物流状态推进请求
type UpdateShipmentStatusRequest struct {
	NewStatus string `json:"new_status" binding:"required"`
	Notes     string `json:"notes"`
}

// UpdateShipmentStatus 推进物流状态（booked → shipped → delivered）。
// 妥投后通知财务侧完成订单闭环
func (s *ShippingService) UpdateShipmentStatus(ctx context.Context, quoteID string, req *UpdateShipmentStatusRequest, operatorID string) (*entity.ShippingQuote, error) {
	quote, err := s.quoteRepo.FindByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}

	permitted := false
	for _, status := range entity.ValidShipmentTransitions[quote.Status] {
		if status == req.NewStatus {
			permitted = true
			break
		}
	}
	if !permitted {
		required := "booked/shipped"
		if req.NewStatus == entity.QuoteStatusShipped {
			required = entity.QuoteStatusBooked
		} else if req.NewStatus == entity.QuoteStatusDelivered {
			required = entity.QuoteStatusShipped
		}
		return nil, &InvalidTransitionError{
			Action:   "updateShipmentStatus",
			Current:  quote.Status,
			Required: required,
		}
	}

	from := quote.Status
	quote.Status = req.NewStatus
	if err := s.saveWithAction(ctx, quote, "updateShipmentStatus", from, req.Notes, operatorID); err != nil {
		return nil, err
	}

	if req.NewStatus == entity.QuoteStatusDelivered && s.billingSvc != nil {
		s.billingSvc.OnShipmentDelivered(ctx, quote.OrderID)
	}
	return quote, nil
}

// saveWithAction 在同一事务内落库报价变更和操作日志
func (s *ShippingService) saveWithAction(ctx context.Context, quote *entity.ShippingQuote, action, fromStatus, notes, operatorID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(quote).Error; err != nil {
			return err
		}
		return tx.Create(&entity.ShippingQuoteAction{
			ID:         uuid.New().String()[:32],
			QuoteID:    quote.ID,
			Action:     action,
			FromStatus: fromStatus,
			ToStatus:   quote.Status,
			Notes:      notes,
			OperatorID: operatorID,
		}).Error
	})
	if err != nil {
		zap.L().Error("报价状态变更落库失败",
			zap.String("quote_id", quote.ID),
			zap.String("action", action),
			zap.Error(err))
		return fmt.Errorf("更新报价失败: %w", err)
	}
	return nil
}

func (s *ShippingService) fillDisplayFields(quote *entity.ShippingQuote, order *entity.Order) {
	quote.OrderNo = order.OrderNo
	quote.CustomerName = order.CustomerName
}

const base36Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateTrackingNumber 生成运单号: SK{毫秒时间戳}{6位随机base36大写}
func GenerateTrackingNumber(now time.Time) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36Chars))))
		if err != nil {
			suffix[i] = base36Chars[now.UnixNano()%36]
			continue
		}
		suffix[i] = base36Chars[n.Int64()]
	}
	return fmt.Sprintf("SK%d%s", now.UnixMilli(), string(suffix))
}
