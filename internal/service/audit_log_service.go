package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/google/uuid"
)

// 审计资源类型
const (
	ResourceReport     = "report"
	ResourceAttachment = "attachment"
)

// AuditEntry 一条待记录的操作
type AuditEntry struct {
	Action        string
	ResourceType  string
	ResourceID    string
	Result        string
	ReportVersion int64
	Details       interface{}
}

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, userID string, entry AuditEntry) error
	ListByResource(resourceType string, resourceID string) ([]*model.AuditLogModel, error)
	ListByRequest(requestID string) ([]*model.AuditLogModel, error)
	CountByResult(resourceType string, resourceID string) (map[string]int64, error)
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
	now       func() time.Time
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
		now:       time.Now,
	}
}

// RecordAction 记录操作审计日志
func (s *auditLogService) RecordAction(ctx context.Context, userID string, entry AuditEntry) error {
	var detailsJSON []byte
	if entry.Details != nil {
		var err error
		if detailsJSON, err = json.Marshal(entry.Details); err != nil {
			return err
		}
	}

	meta := RequestMetaFromContext(ctx)
	auditLog := &model.AuditLogModel{
		ID:            uuid.New().String(),
		UserID:        userID,
		Action:        entry.Action,
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		Result:        entry.Result,
		ReportVersion: entry.ReportVersion,
		RequestID:     meta.RequestID,
		IP:            meta.IP,
		UserAgent:     meta.UserAgent,
		Details:       detailsJSON,
		CreatedAt:     s.now().UTC(),
	}

	return s.auditRepo.Save(auditLog)
}

// ListByResource 查询资源的审计日志,最新的在前
func (s *auditLogService) ListByResource(resourceType string, resourceID string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.FindByResource(resourceType, resourceID)
}

// ListByRequest 查询同一请求的审计日志
func (s *auditLogService) ListByRequest(requestID string) ([]*model.AuditLogModel, error) {
	return s.auditRepo.FindByRequestID(requestID)
}

// CountByResult 按结果统计资源的操作次数
func (s *auditLogService) CountByResult(resourceType string, resourceID string) (map[string]int64, error) {
	return s.auditRepo.CountByResult(resourceType, resourceID)
}
