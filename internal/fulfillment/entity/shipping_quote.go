package entity

import "time"

// ShippingQuote 运输报价（独立于财务链路的生命周期）
type ShippingQuote struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	QuoteNo    string `json:"quote_no" gorm:"size:50;uniqueIndex;not null"`
	OrderID    string `json:"order_id" gorm:"size:32;not null;index"`
	CustomerID string `json:"customer_id" gorm:"size:32;index"`

	Status      string  `json:"status" gorm:"size:20;not null;default:pending"` // pending/quoted/approved/rejected/booked/shipped/delivered
	Carrier     string  `json:"carrier" gorm:"size:100"`
	ServiceType string  `json:"service_type" gorm:"size:50"` // standard/express/white_glove
	Cost        float64 `json:"cost" gorm:"type:decimal(12,2);default:0"`
	Currency    string  `json:"currency" gorm:"size:10;default:USD"`
	TransitDays int     `json:"transit_days" gorm:"default:0"`

	// 仅booked及之后的状态才有tracking_number
	TrackingNumber   string     `json:"tracking_number" gorm:"size:100"`
	CarrierBookingID string     `json:"carrier_booking_id" gorm:"size:100"`
	PickupDate       *time.Time `json:"pickup_date"`
	DeliveryDate     *time.Time `json:"delivery_date"`

	ApprovedBy      string     `json:"approved_by" gorm:"size:32"`
	ApprovedAt      *time.Time `json:"approved_at"`
	RejectionReason string     `json:"rejection_reason" gorm:"size:500"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"size:500"`

	// 关联查询填充的展示字段
	OrderNo      string `json:"order_no" gorm:"-"`
	CustomerName string `json:"customer_name" gorm:"-"`
}

func (ShippingQuote) TableName() string {
	return "shipping_quotes"
}

// 报价状态
const (
	QuoteStatusPending   = "pending"
	QuoteStatusQuoted    = "quoted"
	QuoteStatusApproved  = "approved"
	QuoteStatusRejected  = "rejected"
	QuoteStatusBooked    = "booked"
	QuoteStatusShipped   = "shipped"
	QuoteStatusDelivered = "delivered"
)

// 报价动作
const (
	QuoteActionApprove = "approve"
	QuoteActionReject  = "reject"
	QuoteActionBook    = "book"
	QuoteActionTrack   = "track"
)

// QuoteActionRules 动作允许的当前状态
// track不改状态，只要求已有tracking_number，不在此表内
var QuoteActionRules = map[string][]string{
	QuoteActionApprove: {QuoteStatusQuoted},
	QuoteActionReject:  {QuoteStatusQuoted, QuoteStatusPending},
	QuoteActionBook:    {QuoteStatusApproved},
}

// ValidShipmentTransitions booked之后的物流状态推进
var ValidShipmentTransitions = map[string][]string{
	QuoteStatusBooked:  {QuoteStatusShipped},
	QuoteStatusShipped: {QuoteStatusDelivered},
}

// ShippingQuoteAction 报价操作日志（只追加）
type ShippingQuoteAction struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	QuoteID    string    `json:"quote_id" gorm:"size:32;not null;index"`
	Action     string    `json:"action" gorm:"size:50;not null"`
	FromStatus string    `json:"from_status" gorm:"size:20"`
	ToStatus   string    `json:"to_status" gorm:"size:20"`
	Notes      string    `json:"notes" gorm:"size:500"`
	OperatorID string    `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ShippingQuoteAction) TableName() string {
	return "shipping_quote_actions"
}
