package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// 生产工序（固定顺序）
const (
	StageCutting      = "cutting"
	StageAssembly     = "assembly"
	StageFinishing    = "finishing"
	StageQualityCheck = "quality_check"
	StagePackaging    = "packaging"
	StageCompleted    = "completed"
	StageShipped      = "shipped"
)

// StageSequence 工序固定顺序，advance只允许走到下一道工序
var StageSequence = []string{
	StageCutting,
	StageAssembly,
	StageFinishing,
	StageQualityCheck,
	StagePackaging,
	StageCompleted,
	StageShipped,
}

// StageOrder 工序序号，用显式序号代替字符串比较
var StageOrder = map[string]int{
	StageCutting:      0,
	StageAssembly:     1,
	StageFinishing:    2,
	StageQualityCheck: 3,
	StagePackaging:    4,
	StageCompleted:    5,
	StageShipped:      6,
}

// NextStage 返回下一道工序
func NextStage(stage string) (string, bool) {
	ord, ok := StageOrder[stage]
	if !ok || ord+1 >= len(StageSequence) {
		return "", false
	}
	return StageSequence[ord+1], true
}

// IsTerminalStage completed及之后的工序视为生产完成
func IsTerminalStage(stage string) bool {
	return StageOrder[stage] >= StageOrder[StageCompleted]
}

// AbsoluteProgress 单件绝对进度：6道等宽工序（每道100/6），
// 已完成工序数 × (100/6) + 当前工序进度 × 1/6
func AbsoluteProgress(stage string, progress float64) float64 {
	if IsTerminalStage(stage) {
		return 100
	}
	ord, ok := StageOrder[stage]
	if !ok {
		return 0
	}
	return float64(ord)*100/6 + progress/6
}

// StageHistoryEntry 工序历史记录项
type StageHistoryEntry struct {
	Stage          string    `json:"stage"`
	Timestamp      time.Time `json:"timestamp"`
	ProgressAtExit float64   `json:"progress_at_exit"`
}

// StageHistory 工序历史，JSONB存储
type StageHistory []StageHistoryEntry

func (h StageHistory) Value() (driver.Value, error) {
	if h == nil {
		return json.Marshal(StageHistory{})
	}
	return json.Marshal(h)
}

func (h *StageHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan StageHistory: %v", value)
	}
	return json.Unmarshal(bytes, h)
}

// ProductionItem 生产项（一件待制造的家具，属于一个订单）
type ProductionItem struct {
	ID      string `json:"id" gorm:"primaryKey;size:32"`
	OrderID string `json:"order_id" gorm:"size:32;not null;index"`

	ProductName string `json:"product_name" gorm:"size:200"`
	SKU         string `json:"sku" gorm:"size:64"`

	CurrentStage   string       `json:"current_stage" gorm:"size:20;not null;default:cutting"`
	Progress       float64      `json:"progress" gorm:"type:decimal(5,2);default:0"` // 当前工序内进度 0-100
	StageEnteredAt *time.Time   `json:"stage_entered_at"`
	StageHistory   StageHistory `json:"stage_history" gorm:"type:jsonb"`
	CompletedAt    *time.Time   `json:"completed_at"`

	// 质检锁：仅由QC服务写入，锁定时不允许越过quality_check工序
	QCLocked bool `json:"qc_locked" gorm:"default:false"`
	// 已开票标记，批量开票时置位
	Invoiced bool `json:"invoiced" gorm:"default:false"`

	AssignedTo string    `json:"assigned_to" gorm:"size:32"`
	Notes      string    `json:"notes" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (ProductionItem) TableName() string {
	return "production_items"
}
