package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/auth"
	"github.com/Kaz-z/impact-engine-report-builder/internal/integration"
	"github.com/Kaz-z/impact-engine-report-builder/internal/metrics"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
	"github.com/Kaz-z/impact-engine-report-builder/internal/utils"
	"github.com/Kaz-z/impact-engine-report-builder/internal/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 请求参数错误
var (
	ErrInvalidFundingAmount = &utils.ValidationError{Code: "INVALID_FUNDING_AMOUNT", Message: "funding amount must be greater than zero"}
	ErrInvalidDate          = &utils.ValidationError{Code: "INVALID_DATE", Message: "date must be YYYY-MM-DD or RFC 3339"}
	ErrInvalidMode          = &utils.ValidationError{Code: "INVALID_MODE", Message: "mode must be lenient or strict"}
	ErrInvalidStatus        = &utils.ValidationError{Code: "INVALID_STATUS", Message: "unknown report status"}
	ErrInvalidSortField     = &utils.ValidationError{Code: "INVALID_SORT_FIELD", Message: "sort field is not allowed"}
)

// ReportService 报告服务接口
type ReportService interface {
	Get(ctx context.Context, key workflow.Key) (*ReportView, error)
	List(ctx context.Context, req *ListReportsRequest) (*ReportPage, error)
	SaveDraft(ctx context.Context, key workflow.Key, req *SaveReportRequest) (*workflow.Report, error)
	Submit(ctx context.Context, key workflow.Key, req *SaveReportRequest) (*workflow.Report, error)
	Approve(ctx context.Context, key workflow.Key, req *VersionRequest) (*workflow.Report, error)
	Reject(ctx context.Context, key workflow.Key, req *RejectReportRequest) (*workflow.Report, error)
	Resume(ctx context.Context, key workflow.Key, req *VersionRequest) (*workflow.Report, error)
	History(ctx context.Context, key workflow.Key) ([]*HistoryEntry, error)
	Validate(req *ValidateReportRequest) (report.Result, error)
	RegisterFunding(ctx context.Context, req *RegisterFundingRequest) (*workflow.Report, error)
	Statistics(ctx context.Context) (map[string]int64, error)
}

// SaveReportRequest 保存草稿或提交报告请求
// @Description 保存草稿或提交报告的请求参数
type SaveReportRequest struct {
	Fields  *report.Fields `json:"fields" swaggertype:"object" binding:"required"` // 报告字段
	Version int64          `json:"version" example:"3"`                            // 读取时的版本,0 表示不检查
}

// VersionRequest 审核通过或恢复编辑请求
// @Description 只携带版本号的请求参数
type VersionRequest struct {
	Version int64 `json:"version" example:"4"` // 读取时的版本,0 表示不检查
}

// RejectReportRequest 驳回报告请求
// @Description 驳回报告的请求参数
type RejectReportRequest struct {
	Comment string `json:"comment" example:"Please attach receipts for outcome 2"` // 驳回意见
	Version int64  `json:"version" example:"4"`                                    // 读取时的版本,0 表示不检查
}

// ValidateReportRequest 校验报告请求
// @Description 只校验不保存
type ValidateReportRequest struct {
	Fields *report.Fields `json:"fields" swaggertype:"object" binding:"required"` // 报告字段
	Mode   string         `json:"mode" example:"strict"`                          // lenient 或 strict,默认 strict
}

// RegisterFundingRequest 登记资助记录请求
// @Description 资助发放后登记项目,创建 not_started 报告
type RegisterFundingRequest struct {
	CharityID        string          `json:"charity_id" example:"charity-001" binding:"required"` // 慈善机构 ID
	ProjectID        string          `json:"project_id" example:"project-001" binding:"required"` // 项目 ID
	ProjectName      string          `json:"project_name" example:"Clean Water"`                  // 项目名称
	FundingAmount    decimal.Decimal `json:"funding_amount" swaggertype:"string" example:"10000"` // 资助金额
	DateFundingGiven string          `json:"date_funding_given" example:"2024-01-15"`             // 资助发放日期
}

// ListReportsRequest 报告列表请求
type ListReportsRequest struct {
	Status    string `form:"status"`
	CharityID string `form:"charity_id"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortBy    string `form:"sort_by"`
	Order     string `form:"order"`
}

// ReportView 报告详情,包含资金分配汇总
// @Description 报告详情
type ReportView struct {
	*workflow.Report
	FundingSummary report.FundingSummary `json:"funding_summary"` // 资金分配汇总
}

// ReportSummary 报告列表项
type ReportSummary struct {
	ID          string     `json:"id"`
	CharityID   string     `json:"charity_id"`
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	Status      string     `json:"status"`
	Version     int64      `json:"version"`
	LastUpdated time.Time  `json:"last_updated"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// ReportPage 报告分页结果
type ReportPage struct {
	Items    []*ReportSummary `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// HistoryEntry 状态历史
type HistoryEntry struct {
	Operation string    `json:"operation"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	Operator  string    `json:"operator"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportServiceOption 报告服务选项
type ReportServiceOption func(*reportService)

// WithAuthorizer 启用 OpenFGA 权限检查
// programme 为评审人所在的资助项目对象 ID
func WithAuthorizer(authz auth.Authorizer, programme string) ReportServiceOption {
	return func(s *reportService) {
		s.authz = authz
		if programme != "" {
			s.programme = programme
		}
	}
}

// WithServiceLogger 设置日志
func WithServiceLogger(logger logrus.FieldLogger) ReportServiceOption {
	return func(s *reportService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type reportService struct {
	workflow    *workflow.Workflow
	store       *integration.ReportStore
	db          *gorm.DB
	authz       auth.Authorizer
	programme   string
	auditLogSvc AuditLogService
	logger      logrus.FieldLogger
}

// NewReportService 创建报告服务
func NewReportService(wf *workflow.Workflow, store *integration.ReportStore, db *gorm.DB, auditLogSvc AuditLogService, opts ...ReportServiceOption) ReportService {
	s := &reportService{
		workflow:    wf,
		store:       store,
		db:          db,
		programme:   "default",
		auditLogSvc: auditLogSvc,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get 获取报告详情
func (s *reportService) Get(ctx context.Context, key workflow.Key) (*ReportView, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, auth.RelationViewer, auth.ObjectCharity, key.CharityID); err != nil {
		return nil, err
	}

	r, err := s.workflow.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ReportView{Report: r, FundingSummary: summarize(r)}, nil
}

// List 分页查询报告
// 指定慈善机构时检查该机构的查看权限,否则要求资助项目的查看权限
func (s *reportService) List(ctx context.Context, req *ListReportsRequest) (*ReportPage, error) {
	filter := &repository.ReportFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
		SortBy:   req.SortBy,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	if req.SortBy != "" && utils.ValidateSortField(req.SortBy, repository.ReportSortFields...) != nil {
		return nil, ErrInvalidSortField
	}
	if req.Order != "" {
		filter.Order = utils.SanitizeSortOrder(req.Order)
	}
	if req.Status != "" {
		if _, err := statemachine.ParseStatus(req.Status); err != nil {
			return nil, ErrInvalidStatus
		}
		filter.Status = &req.Status
	}

	var err error
	if req.CharityID != "" {
		if err = utils.ValidateID(req.CharityID); err != nil {
			return nil, err
		}
		filter.CharityID = &req.CharityID
		_, err = s.authorize(ctx, auth.RelationViewer, auth.ObjectCharity, req.CharityID)
	} else {
		_, err = s.authorize(ctx, auth.RelationViewer, auth.ObjectProgramme, s.programme)
	}
	if err != nil {
		return nil, err
	}

	rows, total, err := repository.NewReportRepository(s.db.WithContext(ctx)).FindByFilter(filter)
	if err != nil {
		return nil, err
	}

	page := &ReportPage{
		Items:    make([]*ReportSummary, 0, len(rows)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for _, row := range rows {
		page.Items = append(page.Items, &ReportSummary{
			ID:          row.ID,
			CharityID:   row.CharityID,
			ProjectID:   row.ProjectID,
			ProjectName: row.ProjectName,
			Status:      row.Status,
			Version:     row.Version,
			LastUpdated: row.LastUpdated,
			SubmittedAt: row.SubmittedAt,
		})
	}
	return page, nil
}

// SaveDraft 保存草稿
func (s *reportService) SaveDraft(ctx context.Context, key workflow.Key, req *SaveReportRequest) (*workflow.Report, error) {
	return s.transition(ctx, key, statemachine.OpSaveDraft, auth.ObjectCharity, key.CharityID, auth.RelationEditor, nil,
		func(opts workflow.OpOptions) (*workflow.Report, error) {
			return s.workflow.SaveDraft(ctx, key, req.Fields, withVersion(opts, req.Version))
		})
}

// Submit 提交报告
func (s *reportService) Submit(ctx context.Context, key workflow.Key, req *SaveReportRequest) (*workflow.Report, error) {
	return s.transition(ctx, key, statemachine.OpSubmit, auth.ObjectCharity, key.CharityID, auth.RelationEditor, nil,
		func(opts workflow.OpOptions) (*workflow.Report, error) {
			return s.workflow.Submit(ctx, key, req.Fields, withVersion(opts, req.Version))
		})
}

// Approve 审核通过
func (s *reportService) Approve(ctx context.Context, key workflow.Key, req *VersionRequest) (*workflow.Report, error) {
	return s.transition(ctx, key, statemachine.OpApprove, auth.ObjectProgramme, s.programme, auth.RelationReviewer, nil,
		func(opts workflow.OpOptions) (*workflow.Report, error) {
			return s.workflow.Approve(ctx, key, withVersion(opts, req.Version))
		})
}

// Reject 驳回报告
func (s *reportService) Reject(ctx context.Context, key workflow.Key, req *RejectReportRequest) (*workflow.Report, error) {
	details := map[string]interface{}{"comment": req.Comment}
	return s.transition(ctx, key, statemachine.OpReject, auth.ObjectProgramme, s.programme, auth.RelationReviewer, details,
		func(opts workflow.OpOptions) (*workflow.Report, error) {
			return s.workflow.Reject(ctx, key, req.Comment, withVersion(opts, req.Version))
		})
}

// Resume 恢复编辑
func (s *reportService) Resume(ctx context.Context, key workflow.Key, req *VersionRequest) (*workflow.Report, error) {
	return s.transition(ctx, key, statemachine.OpResume, auth.ObjectCharity, key.CharityID, auth.RelationEditor, nil,
		func(opts workflow.OpOptions) (*workflow.Report, error) {
			return s.workflow.Resume(ctx, key, withVersion(opts, req.Version))
		})
}

// History 获取状态历史
func (s *reportService) History(ctx context.Context, key workflow.Key) ([]*HistoryEntry, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, auth.RelationViewer, auth.ObjectCharity, key.CharityID); err != nil {
		return nil, err
	}

	r, err := s.workflow.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	entries := make([]*HistoryEntry, 0)
	if r.ID == "" {
		return entries, nil
	}

	rows, err := repository.NewStateHistoryRepository(s.db.WithContext(ctx)).FindByReportID(r.ID)
	if err != nil {
		return nil, &workflow.StoreError{Op: "history", Err: err}
	}
	for _, row := range rows {
		entries = append(entries, &HistoryEntry{
			Operation: row.Operation,
			From:      row.FromState,
			To:        row.ToState,
			Reason:    row.Reason,
			Operator:  row.Operator,
			Version:   row.Version,
			CreatedAt: row.CreatedAt,
		})
	}
	return entries, nil
}

// Validate 校验报告字段,不读写存储
func (s *reportService) Validate(req *ValidateReportRequest) (report.Result, error) {
	mode := report.ModeStrict
	if req.Mode != "" {
		parsed, err := report.ParseMode(req.Mode)
		if err != nil {
			return report.Result{}, ErrInvalidMode
		}
		mode = parsed
	}
	fields := req.Fields
	if fields == nil {
		fields = report.NewFields()
	}
	return s.workflow.Validate(fields, mode), nil
}

// RegisterFunding 登记资助记录
// 评审人登记后,资助项目与慈善机构建立关系,评审人可以查看该机构的报告
func (s *reportService) RegisterFunding(ctx context.Context, req *RegisterFundingRequest) (*workflow.Report, error) {
	key := workflow.Key{CharityID: req.CharityID, ProjectID: req.ProjectID}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if !req.FundingAmount.IsPositive() {
		return nil, ErrInvalidFundingAmount
	}
	funding := workflow.FundingRecord{
		ProjectName: strings.TrimSpace(req.ProjectName),
		Amount:      req.FundingAmount.Round(2),
	}
	if req.DateFundingGiven != "" {
		day, err := parseDay(req.DateFundingGiven)
		if err != nil {
			return nil, err
		}
		funding.DateGiven = &day
	}

	userID, err := s.authorize(ctx, auth.RelationReviewer, auth.ObjectProgramme, s.programme)
	if err != nil {
		s.recordDenied(ctx, userID, "register", key, err, nil)
		return nil, err
	}

	r, err := s.store.RegisterFunding(ctx, key, funding)
	if err != nil {
		return nil, &workflow.StoreError{Op: "register", Err: err}
	}

	// 1. 建立资助项目与慈善机构的关系
	if writer, ok := s.authz.(auth.RelationWriter); ok {
		if err := writer.WriteTuple(ctx, auth.Object(auth.ObjectProgramme, s.programme), auth.ObjectProgramme, auth.Object(auth.ObjectCharity, key.CharityID)); err != nil {
			s.logger.WithError(err).WithField("charity_id", key.CharityID).Warn("failed to link charity to programme")
		}
	}

	// 2. 记录审计日志
	s.audit(ctx, userID, "register", key, model.AuditResultSuccess, r.Version, map[string]interface{}{
		"project_name":   funding.ProjectName,
		"funding_amount": funding.Amount.StringFixed(2),
	})

	return r, nil
}

// Statistics 按状态统计报告数量,所有状态都会出现在结果中
func (s *reportService) Statistics(ctx context.Context) (map[string]int64, error) {
	if _, err := s.authorize(ctx, auth.RelationViewer, auth.ObjectProgramme, s.programme); err != nil {
		return nil, err
	}

	counts, err := repository.NewReportRepository(s.db.WithContext(ctx)).CountByStatus()
	if err != nil {
		return nil, &workflow.StoreError{Op: "statistics", Err: err}
	}
	stats := make(map[string]int64, len(statemachine.AllStatuses()))
	for _, status := range statemachine.AllStatuses() {
		stats[string(status)] = counts[string(status)]
	}
	return stats, nil
}

// transition 执行一次状态操作:权限检查、调用工作流、记录指标和审计日志
func (s *reportService) transition(
	ctx context.Context,
	key workflow.Key,
	op statemachine.Operation,
	objectType string,
	objectID string,
	relation string,
	details map[string]interface{},
	run func(opts workflow.OpOptions) (*workflow.Report, error),
) (*workflow.Report, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	// 1. 权限检查
	userID, err := s.authorize(ctx, relation, objectType, objectID)
	if err != nil {
		metrics.RecordOperationFailure(string(op), failureKind(err))
		s.recordDenied(ctx, userID, string(op), key, err, details)
		return nil, err
	}

	// 2. 执行工作流
	updated, err := run(workflow.OpOptions{Operator: userID})
	if err != nil {
		metrics.RecordOperationFailure(string(op), failureKind(err))
		var verr *workflow.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Result.Violations {
				metrics.RecordViolation(violationMode(op), v.Rule, string(v.Severity))
			}
		}
		failed := map[string]interface{}{"error": err.Error()}
		for k, v := range details {
			failed[k] = v
		}
		s.audit(ctx, userID, string(op), key, model.AuditResultFailed, 0, failed)
		return nil, err
	}

	// 3. 记录业务指标
	for _, t := range updated.Transitions {
		metrics.RecordTransition(string(t.Operation), string(t.From), string(t.To))
	}

	// 4. 记录审计日志
	s.audit(ctx, userID, string(op), key, model.AuditResultSuccess, updated.Version, details)

	return updated, nil
}

// authorize 检查当前用户在对象上的关系,返回用户 ID
func (s *reportService) authorize(ctx context.Context, relation, objectType, objectID string) (string, error) {
	return checkRelation(ctx, s.authz, relation, objectType, objectID)
}

func (s *reportService) recordDenied(ctx context.Context, userID, action string, key workflow.Key, err error, details map[string]interface{}) {
	if errors.Is(err, auth.ErrForbidden) {
		s.audit(ctx, userID, action, key, model.AuditResultDenied, 0, details)
	}
}

// audit 记录审计日志,没有用户时跳过
func (s *reportService) audit(ctx context.Context, userID, action string, key workflow.Key, result string, version int64, details interface{}) {
	if s.auditLogSvc == nil || userID == "" {
		return
	}
	entry := AuditEntry{
		Action:        action,
		ResourceType:  ResourceReport,
		ResourceID:    key.String(),
		Result:        result,
		ReportVersion: version,
		Details:       details,
	}
	if err := s.auditLogSvc.RecordAction(ctx, userID, entry); err != nil {
		s.logger.WithError(err).WithField("action", action).Warn("failed to record audit log")
	}
}

func withVersion(opts workflow.OpOptions, version int64) workflow.OpOptions {
	opts.ExpectedVersion = version
	return opts
}

// validateKey 验证慈善机构 ID 和项目 ID
func validateKey(key workflow.Key) error {
	if err := utils.ValidateID(key.CharityID); err != nil {
		return err
	}
	return utils.ValidateID(key.ProjectID)
}

// summarize 计算资金汇总,资助记录中的总额优先
func summarize(r *workflow.Report) report.FundingSummary {
	fields := r.Fields
	if fields == nil {
		fields = report.NewFields()
	}
	if r.Funding != nil {
		fields = fields.Clone().Set(report.FieldTotalFundingAmount, report.Number(r.Funding.Amount))
	}
	return report.SummarizeFunding(fields)
}

func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, ErrInvalidDate
}

// failureKind 指标中的失败类型
func failureKind(err error) string {
	switch {
	case errors.Is(err, workflow.ErrValidationFailure):
		return "validation"
	case errors.Is(err, workflow.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, workflow.ErrConflict):
		return "conflict"
	case errors.Is(err, workflow.ErrStoreFailure):
		return "store"
	case errors.Is(err, auth.ErrForbidden):
		return "forbidden"
	case errors.Is(err, auth.ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "other"
	}
}

func violationMode(op statemachine.Operation) string {
	switch op {
	case statemachine.OpSubmit:
		return string(report.ModeStrict)
	case statemachine.OpReject:
		return "rejection"
	default:
		return string(report.ModeLenient)
	}
}
