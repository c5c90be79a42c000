package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ReportModel 影响力报告数据模型
// 每个 (charity_id, project_id) 一行,version 每次写入加一
type ReportModel struct {
	ID               string              `gorm:"primaryKey;type:varchar(64)"`
	CharityID        string              `gorm:"type:varchar(64);not null;uniqueIndex:idx_reports_charity_project"`
	ProjectID        string              `gorm:"type:varchar(64);not null;uniqueIndex:idx_reports_charity_project"`
	ProjectName      string              `gorm:"type:varchar(255)"`
	Status           string              `gorm:"type:varchar(32);not null;index"`
	Data             []byte              `gorm:"type:text"` // 序列化后的报告字段,按原文保存以保留键顺序
	RejectionComment string              `gorm:"type:text"`
	RejectionActive  bool                `gorm:"not null"`
	FundingAmount    decimal.NullDecimal `gorm:"type:numeric(18,2)"` // 资助总额,来自资助记录
	DateFundingGiven *time.Time
	Version          int64      `gorm:"not null"`
	LastUpdated      time.Time  `gorm:"not null;index"`
	SubmittedAt      *time.Time `gorm:"index"`
	ApprovedAt       *time.Time
	RejectedAt       *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ReportModel) TableName() string {
	return "reports"
}

// Validate 验证报告模型
func (rm *ReportModel) Validate() error {
	if rm.ID == "" {
		return errors.New("report ID is required")
	}
	if rm.CharityID == "" {
		return errors.New("charity ID is required")
	}
	if rm.ProjectID == "" {
		return errors.New("project ID is required")
	}
	if rm.Status == "" {
		return errors.New("report status is required")
	}
	return nil
}
