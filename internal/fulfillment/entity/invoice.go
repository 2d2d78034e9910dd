package entity

import (
	"encoding/json"
	"time"
)

// Invoice 发票（每张发票对应唯一订单）
// 非作废发票的订单唯一性由部分唯一索引兜底（见main.go迁移SQL）
type Invoice struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	InvoiceNo  string `json:"invoice_no" gorm:"size:50;uniqueIndex;not null"`
	OrderID    string `json:"order_id" gorm:"size:32;not null;index"`
	CustomerID string `json:"customer_id" gorm:"size:32;index"`

	TotalAmount float64    `json:"total_amount" gorm:"type:decimal(12,2);not null"`
	BalanceDue  float64    `json:"balance_due" gorm:"type:decimal(12,2);default:0"`
	Currency    string     `json:"currency" gorm:"size:10;default:USD"`
	DueDate     *time.Time `json:"due_date"`
	Status      string     `json:"status" gorm:"size:20;not null;default:issued"` // issued/paid/void

	// 外部财务系统同步结果
	SyncedToAccounting bool   `json:"synced_to_accounting" gorm:"default:false"`
	ExternalInvoiceID  string `json:"external_invoice_id" gorm:"size:100"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// 发票状态
const (
	InvoiceStatusIssued = "issued"
	InvoiceStatusPaid   = "paid"
	InvoiceStatusVoid   = "void"
)

// InvoiceQueueEntry 开票队列条目（由外部worker消费）
// 同一订单同一动作的pending条目唯一，由部分唯一索引兜底
type InvoiceQueueEntry struct {
	ID           string    `json:"id" gorm:"primaryKey;size:32"`
	EntityType   string    `json:"entity_type" gorm:"size:20;not null;default:invoice"`
	EntityID     string    `json:"entity_id" gorm:"size:32;not null;index"` // 订单ID
	Action       string    `json:"action" gorm:"size:20;not null;default:create"`
	Priority     int       `json:"priority" gorm:"default:3"` // 数字越小越优先
	ScheduledFor time.Time `json:"scheduled_for"`
	Status       string    `json:"status" gorm:"size:20;not null;default:pending"` // pending/processing/completed/failed
	CreatedBy    string    `json:"created_by" gorm:"size:32"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (InvoiceQueueEntry) TableName() string {
	return "invoice_queue_entries"
}

// 队列条目状态
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// 队列优先级
const (
	QueuePriorityUrgent = 1
	QueuePriorityHigh   = 2
	QueuePriorityNormal = 3
)

// 队列动作
const (
	QueueActionCreate = "create"
)

// SyncLog 同步日志（只追加，创建后不再修改）
type SyncLog struct {
	ID          string          `json:"id" gorm:"primaryKey;size:32"`
	SyncType    string          `json:"sync_type" gorm:"size:50;not null"` // bulk_invoice/single_invoice
	ReferenceID string          `json:"reference_id" gorm:"size:32;index"` // 订单ID，批量时为空
	Status      string          `json:"status" gorm:"size:20;not null"`    // success/warning/failure
	Message     string          `json:"message" gorm:"type:text"`
	Detail      json.RawMessage `json:"detail" gorm:"type:jsonb"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}

// 同步日志状态
const (
	SyncStatusSuccess = "success"
	SyncStatusWarning = "warning"
	SyncStatusFailure = "failure"
)

// 同步类型
const (
	SyncTypeBulkInvoice   = "bulk_invoice"
	SyncTypeSingleInvoice = "single_invoice"
)

// OrderValidationError 批量操作中单个订单的校验失败记录
type OrderValidationError struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ExternalSyncResult 外部财务系统单个订单的同步结果
type ExternalSyncResult struct {
	OrderID           string `json:"order_id"`
	ExternalInvoiceID string `json:"external_invoice_id,omitempty"`
	Error             string `json:"error,omitempty"`
}

// BulkInvoiceResult 批量开票结果（SyncLog.Detail的结构化载荷）
type BulkInvoiceResult struct {
	TotalRequested   int                    `json:"total_requested"`
	Succeeded        int                    `json:"succeeded"`
	Failed           int                    `json:"failed"`
	Created          []string               `json:"created"` // 成功订单ID
	InvoiceNos       []string               `json:"invoice_nos,omitempty"`
	ValidationErrors []OrderValidationError `json:"validation_errors,omitempty"`
	ExternalResults  []ExternalSyncResult   `json:"external_results,omitempty"`
}

// SingleInvoiceResult 单笔开票结果（SyncLog.Detail的结构化载荷）
type SingleInvoiceResult struct {
	OrderID           string `json:"order_id"`
	QueueEntryID      string `json:"queue_entry_id"`
	InvoiceID         string `json:"invoice_id,omitempty"`
	InvoiceNo         string `json:"invoice_no,omitempty"`
	ExternalInvoiceID string `json:"external_invoice_id,omitempty"`
	ExternalError     string `json:"external_error,omitempty"`
}
