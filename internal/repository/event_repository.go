package repository

import (
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"gorm.io/gorm"
)

// EventRepository 事件发件箱仓储接口
type EventRepository interface {
	Save(event *model.EventModel) error
	FindByReportID(reportID string) ([]*model.EventModel, error)
	FindPending(limit int) ([]*model.EventModel, error)
	MarkDelivered(id string) error
	MarkSkipped(id string) error
	MarkFailed(id string, cause error, maxRetries int) error
}

// eventRepository 事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Save 保存事件
func (r *eventRepository) Save(event *model.EventModel) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return r.db.Create(event).Error
}

// FindByReportID 根据报告 ID 查找事件
func (r *eventRepository) FindByReportID(reportID string) ([]*model.EventModel, error) {
	var events []*model.EventModel
	err := r.db.Where("report_id = ?", reportID).Order("created_at ASC").Order("id ASC").Find(&events).Error
	return events, err
}

// FindPending 按创建顺序查找待投递的事件
func (r *eventRepository) FindPending(limit int) ([]*model.EventModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*model.EventModel
	err := r.db.Where("status = ?", model.EventStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// MarkDelivered 标记事件已投递
func (r *eventRepository) MarkDelivered(id string) error {
	return r.setStatus(id, model.EventStatusDelivered, "")
}

// MarkSkipped 标记事件无需投递
func (r *eventRepository) MarkSkipped(id string) error {
	return r.setStatus(id, model.EventStatusSkipped, "")
}

// MarkFailed 记录投递失败,超过最大重试次数后不再投递
func (r *eventRepository) MarkFailed(id string, cause error, maxRetries int) error {
	var event model.EventModel
	if err := r.db.Where("id = ?", id).First(&event).Error; err != nil {
		return err
	}

	status := model.EventStatusPending
	if event.RetryCount+1 >= maxRetries {
		status = model.EventStatusFailed
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.Model(&model.EventModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      status,
		"retry_count": event.RetryCount + 1,
		"last_error":  msg,
		"updated_at":  time.Now(),
	}).Error
}

func (r *eventRepository) setStatus(id, status, lastError string) error {
	return r.db.Model(&model.EventModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"last_error": lastError,
		"updated_at": time.Now(),
	}).Error
}
