package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/auth"
	"github.com/Kaz-z/impact-engine-report-builder/internal/blobstore"
	"github.com/Kaz-z/impact-engine-report-builder/internal/metrics"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/utils"
	"github.com/Kaz-z/impact-engine-report-builder/internal/workflow"
	"github.com/sirupsen/logrus"
)

// 附件错误
var (
	ErrInvalidOutcome = &utils.ValidationError{Code: "INVALID_OUTCOME", Message: fmt.Sprintf("outcome must be between 1 and %d", report.MaxOutcomes)}
	ErrEmptyFile      = &utils.ValidationError{Code: "EMPTY_FILE", Message: "file is empty"}
	ErrFileTooLarge   = errors.New("file exceeds maximum upload size")
	ErrTooManyImages  = &utils.ValidationError{Code: "TOO_MANY_IMAGES", Message: fmt.Sprintf("an outcome can have at most %d images", report.MaxImagesPerOutcome)}
)

// 上传类型,用于指标和审计
const (
	UploadKindImage    = "image"
	UploadKindContract = "contract"
)

// AttachmentService 附件服务接口
// 上传后返回文件条目,由调用方写入报告字段
type AttachmentService interface {
	UploadImage(ctx context.Context, key workflow.Key, outcome int, fileName string, data []byte) (*blobstore.FileMetadata, error)
	ListImages(ctx context.Context, key workflow.Key, outcome int) ([]blobstore.FileMetadata, error)
	UploadContract(ctx context.Context, key workflow.Key, fileName string, data []byte) (*blobstore.FileMetadata, error)
}

type attachmentService struct {
	store         blobstore.Store
	authz         auth.Authorizer
	auditLogSvc   AuditLogService
	maxUploadSize int64
	now           func() time.Time
	logger        logrus.FieldLogger
}

// NewAttachmentService 创建附件服务
// authz 为 nil 时不做权限检查
func NewAttachmentService(store blobstore.Store, maxUploadSize int64, auditLogSvc AuditLogService, authz auth.Authorizer) AttachmentService {
	return &attachmentService{
		store:         store,
		authz:         authz,
		auditLogSvc:   auditLogSvc,
		maxUploadSize: maxUploadSize,
		now:           time.Now,
		logger:        logrus.StandardLogger(),
	}
}

// UploadImage 上传成果配图
func (s *attachmentService) UploadImage(ctx context.Context, key workflow.Key, outcome int, fileName string, data []byte) (*blobstore.FileMetadata, error) {
	if err := validateOutcome(outcome); err != nil {
		return nil, err
	}
	name, err := s.prepare(ctx, key, fileName, data, auth.RelationEditor)
	if err != nil {
		return nil, err
	}
	contentType, err := blobstore.DetectImageType(data)
	if err != nil {
		return nil, err
	}

	existing, err := blobstore.ListImages(ctx, s.store, key.CharityID, key.ProjectID, outcome)
	if err != nil {
		return nil, &workflow.StoreError{Op: "list images", Err: err}
	}
	replacing := false
	for _, f := range existing {
		if f.FileName == name {
			replacing = true
			break
		}
	}
	if !replacing && len(existing) >= report.MaxImagesPerOutcome {
		return nil, ErrTooManyImages
	}

	return s.upload(ctx, key, UploadKindImage, blobstore.ImagePath(key.CharityID, key.ProjectID, outcome, name), name, contentType, data)
}

// ListImages 列出成果已上传的配图
func (s *attachmentService) ListImages(ctx context.Context, key workflow.Key, outcome int) ([]blobstore.FileMetadata, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := validateOutcome(outcome); err != nil {
		return nil, err
	}
	if _, err := checkRelation(ctx, s.authz, auth.RelationViewer, auth.ObjectCharity, key.CharityID); err != nil {
		return nil, err
	}

	files, err := blobstore.ListImages(ctx, s.store, key.CharityID, key.ProjectID, outcome)
	if err != nil {
		return nil, &workflow.StoreError{Op: "list images", Err: err}
	}
	return files, nil
}

// UploadContract 上传合作协议
func (s *attachmentService) UploadContract(ctx context.Context, key workflow.Key, fileName string, data []byte) (*blobstore.FileMetadata, error) {
	name, err := s.prepare(ctx, key, fileName, data, auth.RelationEditor)
	if err != nil {
		return nil, err
	}
	contentType, err := blobstore.DetectContractType(name, data)
	if err != nil {
		return nil, err
	}

	return s.upload(ctx, key, UploadKindContract, blobstore.ContractPath(key.CharityID, key.ProjectID, name), name, contentType, data)
}

// prepare 检查标识、权限和文件大小,返回清理后的文件名
func (s *attachmentService) prepare(ctx context.Context, key workflow.Key, fileName string, data []byte, relation string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if _, err := checkRelation(ctx, s.authz, relation, auth.ObjectCharity, key.CharityID); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if s.maxUploadSize > 0 && int64(len(data)) > s.maxUploadSize {
		return "", ErrFileTooLarge
	}
	return utils.SanitizeFileName(fileName)
}

func (s *attachmentService) upload(ctx context.Context, key workflow.Key, kind, objectPath, name, contentType string, data []byte) (*blobstore.FileMetadata, error) {
	url, err := s.store.Upload(ctx, objectPath, data, contentType)
	if err != nil {
		return nil, &workflow.StoreError{Op: "upload " + kind, Err: err}
	}

	meta := &blobstore.FileMetadata{
		Name:        objectPath,
		URL:         url,
		FileName:    name,
		UploadedAt:  s.now().UTC(),
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	metrics.RecordUpload(kind)

	if userID := auth.UserIDFromContext(ctx); userID != "" && s.auditLogSvc != nil {
		entry := AuditEntry{
			Action:       "upload",
			ResourceType: ResourceAttachment,
			ResourceID:   key.String(),
			Result:       model.AuditResultSuccess,
			Details:      map[string]interface{}{"kind": kind, "path": objectPath, "size": meta.Size},
		}
		if err := s.auditLogSvc.RecordAction(ctx, userID, entry); err != nil {
			s.logger.WithError(err).Warn("failed to record audit log")
		}
	}

	return meta, nil
}

// checkRelation 检查当前用户在对象上的关系,未配置权限检查时放行
func checkRelation(ctx context.Context, authz auth.Authorizer, relation, objectType, objectID string) (string, error) {
	userID := auth.UserIDFromContext(ctx)
	if authz == nil {
		return userID, nil
	}
	if userID == "" {
		return "", auth.ErrUnauthenticated
	}

	allowed, err := authz.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return userID, fmt.Errorf("failed to check permission: %w", err)
	}
	if !allowed {
		return userID, fmt.Errorf("%w: %s on %s", auth.ErrForbidden, relation, auth.Object(objectType, objectID))
	}
	return userID, nil
}

func validateOutcome(outcome int) error {
	if outcome < 1 || outcome > report.MaxOutcomes {
		return ErrInvalidOutcome
	}
	return nil
}
