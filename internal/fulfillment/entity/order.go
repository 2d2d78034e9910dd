package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// JSONBArray JSONB数组类型
type JSONBArray []interface{}

func (j JSONBArray) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONBArray) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONBArray: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// Order 订单（履约相关切片）
type Order struct {
	ID           string  `json:"id" gorm:"primaryKey;size:32"`
	OrderNo      string  `json:"order_no" gorm:"size:50;uniqueIndex;not null"`
	CustomerID   string  `json:"customer_id" gorm:"size:32;index"`
	CustomerName string  `json:"customer_name" gorm:"size:200"`
	TotalAmount  float64 `json:"total_amount" gorm:"type:decimal(12,2);default:0"`
	Currency     string  `json:"currency" gorm:"size:10;default:USD"`

	// 运营状态（自由文本）与财务阶段（状态机）分开维护
	Status         string `json:"status" gorm:"size:50"`
	FinancialStage string `json:"financial_stage" gorm:"size:20;not null;default:in_production"`
	ReadyToInvoice bool   `json:"ready_to_invoice" gorm:"default:false"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`

	Items []ProductionItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "orders"
}

// 财务阶段
const (
	FinancialStageInProduction   = "in_production"
	FinancialStageReadyToInvoice = "ready_to_invoice"
	FinancialStageInvoiced       = "invoiced"
	FinancialStageCompleted      = "completed"
)

// ValidFinancialTransitions 合法的财务阶段流转
// ready_to_invoice → in_production 仅通过显式"取消标记"动作
var ValidFinancialTransitions = map[string][]string{
	FinancialStageInProduction:   {FinancialStageReadyToInvoice},
	FinancialStageReadyToInvoice: {FinancialStageInvoiced, FinancialStageInProduction},
	FinancialStageInvoiced:       {FinancialStageCompleted},
}

// CanTransitFinancialStage 判断财务阶段流转是否合法
func CanTransitFinancialStage(from, to string) bool {
	for _, s := range ValidFinancialTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
