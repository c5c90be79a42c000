package repository

import (
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓储接口
// 审计日志只追加,不提供更新和删除
type AuditLogRepository interface {
	Save(log *model.AuditLogModel) error
	FindByResource(resourceType string, resourceID string) ([]*model.AuditLogModel, error)
	FindByRequestID(requestID string) ([]*model.AuditLogModel, error)
	CountByResult(resourceType string, resourceID string) (map[string]int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 追加一条审计日志
func (r *auditLogRepository) Save(log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.Create(log).Error
}

// FindByResource 查询资源的审计日志,最新的在前
func (r *auditLogRepository) FindByResource(resourceType string, resourceID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("created_at DESC").
		Find(&logs).Error
	return logs, err
}

// FindByRequestID 查询同一请求产生的审计日志,按时间顺序
func (r *auditLogRepository) FindByRequestID(requestID string) ([]*model.AuditLogModel, error) {
	var logs []*model.AuditLogModel
	err := r.db.Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// CountByResult 按结果统计资源的操作次数
func (r *auditLogRepository) CountByResult(resourceType string, resourceID string) (map[string]int64, error) {
	var rows []struct {
		Result string
		Count  int64
	}
	err := r.db.Model(&model.AuditLogModel{}).
		Select("result, COUNT(*) AS count").
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Group("result").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Result] = row.Count
	}
	return counts, nil
}
