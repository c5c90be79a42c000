package model

import (
	"errors"
	"time"
)

// 审计结果
const (
	AuditResultSuccess = "success"
	AuditResultDenied  = "denied"
	AuditResultFailed  = "failed"
)

// AuditLogModel 审计日志,记录报告和附件的每次操作
type AuditLogModel struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)"`
	UserID        string    `gorm:"type:varchar(64);not null;index"`
	Action        string    `gorm:"type:varchar(64);not null;index"` // register/save_draft/submit/approve/reject/resume/upload
	ResourceType  string    `gorm:"type:varchar(32);not null"`      // report/attachment
	ResourceID    string    `gorm:"type:varchar(160);not null;index"` // charity_id/project_id
	Result        string    `gorm:"type:varchar(16);not null"`
	ReportVersion int64     // 操作后的报告版本,失败时为 0
	RequestID     string    `gorm:"type:varchar(64);index"`
	IP            string    `gorm:"type:varchar(45)"`
	UserAgent     string    `gorm:"type:text"`
	Details       []byte    `gorm:"type:jsonb"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (alm *AuditLogModel) Validate() error {
	switch {
	case alm.ID == "":
		return errors.New("audit log ID is required")
	case alm.UserID == "":
		return errors.New("user ID is required")
	case alm.Action == "":
		return errors.New("action is required")
	case alm.ResourceType == "" || alm.ResourceID == "":
		return errors.New("resource is required")
	}
	switch alm.Result {
	case "":
		alm.Result = AuditResultSuccess
	case AuditResultSuccess, AuditResultDenied, AuditResultFailed:
	default:
		return errors.New("unknown audit result " + alm.Result)
	}
	return nil
}
