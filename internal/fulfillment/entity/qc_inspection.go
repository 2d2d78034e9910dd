package entity

import "time"

// QCInspection 质检记录
type QCInspection struct {
	ID      string `json:"id" gorm:"primaryKey;size:32"`
	OrderID string `json:"order_id" gorm:"size:32;not null;index"`
	ItemID  string `json:"item_id" gorm:"size:32;not null;index"`

	Inspector      string     `json:"inspector" gorm:"size:100;not null"`
	InspectionType string     `json:"inspection_type" gorm:"size:50;default:final"` // in_process/final/reinspection
	InspectedAt    time.Time  `json:"inspected_at"`

	QualityScore *float64   `json:"quality_score" gorm:"type:decimal(5,2)"`
	DefectCount  int        `json:"defect_count" gorm:"default:0"`
	DefectTypes  JSONBArray `json:"defect_types" gorm:"type:jsonb"`
	PassFail     *bool      `json:"pass_fail"` // 记录结果前为空

	CorrectiveAction     string     `json:"corrective_action" gorm:"type:text"`
	ReinspectionRequired bool       `json:"reinspection_required" gorm:"default:false"`
	Photos               JSONBArray `json:"photos" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Notes     string    `json:"notes" gorm:"type:text"`
}

func (QCInspection) TableName() string {
	return "qc_inspections"
}

// 检验类型
const (
	InspectionTypeInProcess    = "in_process"
	InspectionTypeFinal        = "final"
	InspectionTypeReinspection = "reinspection"
)
