package model

import (
	"errors"
	"time"
)

// 事件投递状态
const (
	EventStatusPending   = "pending"
	EventStatusDelivered = "delivered"
	EventStatusFailed    = "failed"
	EventStatusSkipped   = "skipped" // 未配置投递目标
)

// EventModel 事件发件箱,与报告写入在同一事务中保存
type EventModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)"`
	ReportID   string    `gorm:"type:varchar(64);not null;index"`
	Type       string    `gorm:"type:varchar(32);not null;index"`
	Data       []byte    `gorm:"type:jsonb;not null"` // 序列化后的事件数据
	Status     string    `gorm:"type:varchar(32);not null;index"`
	RetryCount int       `gorm:"type:int;not null"`
	LastError  string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.ReportID == "" {
		return errors.New("report ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if len(em.Data) == 0 {
		return errors.New("event data is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}
