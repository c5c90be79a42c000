package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/lock"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
	"github.com/sirupsen/logrus"
)

// Workflow 报告状态机及其持久化
// 每个操作是一次读-改-写,写入以读取时的版本为条件
type Workflow struct {
	store     DocumentStore
	validator *report.Validator
	locker    lock.Locker
	now       func() time.Time
	logger    logrus.FieldLogger
}

// Option 工作流选项
type Option func(*Workflow)

// WithLocker 设置报告锁
func WithLocker(l lock.Locker) Option {
	return func(w *Workflow) {
		if l != nil {
			w.locker = l
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger 设置日志
func WithLogger(logger logrus.FieldLogger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New 创建工作流
func New(store DocumentStore, validator *report.Validator, opts ...Option) *Workflow {
	if validator == nil {
		validator = report.NewValidator()
	}
	w := &Workflow{
		store:     store,
		validator: validator,
		locker:    lock.Noop{},
		now:       time.Now,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DefaultOperator 未提供操作人时写入历史的名称
const DefaultOperator = "system"

// OpOptions 操作参数
type OpOptions struct {
	// Operator 操作人,写入状态历史
	Operator string
	// ExpectedVersion 非 0 时要求与当前版本一致
	ExpectedVersion int64
}

// Validate 校验字段,不读写存储
func (w *Workflow) Validate(fields *report.Fields, mode report.Mode) report.Result {
	return w.validator.Validate(fields, mode)
}

// Get 读取报告,不存在时返回 not_started 状态的空报告
func (w *Workflow) Get(ctx context.Context, key Key) (*Report, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return w.load(ctx, key)
}

// SaveDraft 保存草稿
// 宽松校验,已提交或已通过的报告不能保存
func (w *Workflow) SaveDraft(ctx context.Context, key Key, fields *report.Fields, opts OpOptions) (*Report, error) {
	return w.mutate(ctx, key, statemachine.OpSaveDraft, opts, func(cur *Report, now time.Time) (*Patch, error) {
		prepared := applyFunding(cur, fields)
		if res := w.validator.Validate(prepared, report.ModeLenient); !res.OK {
			return nil, &ValidationError{Result: res}
		}

		return &Patch{
			Fields:           report.Normalize(prepared),
			Status:           statemachine.StatusDraft,
			RejectionComment: cur.RejectionComment,
			RejectionActive:  cur.RejectionActive,
			LastUpdated:      now,
			SubmittedAt:      cur.SubmittedAt,
			ApprovedAt:       cur.ApprovedAt,
			RejectedAt:       cur.RejectedAt,
		}, nil
	})
}

// Submit 提交报告
// 严格校验失败时返回全部违规,报告不变
func (w *Workflow) Submit(ctx context.Context, key Key, fields *report.Fields, opts OpOptions) (*Report, error) {
	return w.mutate(ctx, key, statemachine.OpSubmit, opts, func(cur *Report, now time.Time) (*Patch, error) {
		prepared := applyFunding(cur, fields)
		if res := w.validator.Validate(prepared, report.ModeStrict); !res.OK {
			return nil, &ValidationError{Result: res}
		}

		normalized := report.Normalize(prepared)
		if _, ok := normalized.Date(report.FieldDateImpactReportSubmitted); !ok {
			day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
			normalized.Set(report.FieldDateImpactReportSubmitted, report.Date(day))
		}

		return &Patch{
			Fields:           normalized,
			Status:           statemachine.StatusSubmitted,
			RejectionComment: cur.RejectionComment,
			RejectionActive:  false,
			LastUpdated:      now,
			SubmittedAt:      &now,
			ApprovedAt:       cur.ApprovedAt,
			RejectedAt:       cur.RejectedAt,
		}, nil
	})
}

// Approve 审核通过,保留历史驳回意见
func (w *Workflow) Approve(ctx context.Context, key Key, opts OpOptions) (*Report, error) {
	return w.mutate(ctx, key, statemachine.OpApprove, opts, func(cur *Report, now time.Time) (*Patch, error) {
		return &Patch{
			Fields:           cur.Fields,
			Status:           statemachine.StatusApproved,
			RejectionComment: cur.RejectionComment,
			RejectionActive:  false,
			LastUpdated:      now,
			SubmittedAt:      cur.SubmittedAt,
			ApprovedAt:       &now,
			RejectedAt:       cur.RejectedAt,
		}, nil
	})
}

// Reject 驳回报告,驳回意见不能为空
func (w *Workflow) Reject(ctx context.Context, key Key, comment string, opts OpOptions) (*Report, error) {
	return w.mutate(ctx, key, statemachine.OpReject, opts, func(cur *Report, now time.Time) (*Patch, error) {
		if res := report.ValidateRejection(comment); !res.OK {
			return nil, &ValidationError{Result: res}
		}

		return &Patch{
			Fields:           cur.Fields,
			Status:           statemachine.StatusRejected,
			RejectionComment: comment,
			RejectionActive:  true,
			LastUpdated:      now,
			SubmittedAt:      cur.SubmittedAt,
			ApprovedAt:       cur.ApprovedAt,
			RejectedAt:       &now,
		}, nil
	})
}

// Resume 被驳回的报告恢复为草稿,驳回意见继续显示直到下次提交
func (w *Workflow) Resume(ctx context.Context, key Key, opts OpOptions) (*Report, error) {
	return w.mutate(ctx, key, statemachine.OpResume, opts, func(cur *Report, now time.Time) (*Patch, error) {
		return &Patch{
			Fields:           cur.Fields,
			Status:           statemachine.StatusDraft,
			RejectionComment: cur.RejectionComment,
			RejectionActive:  cur.RejectionActive,
			LastUpdated:      now,
			SubmittedAt:      cur.SubmittedAt,
			ApprovedAt:       cur.ApprovedAt,
			RejectedAt:       cur.RejectedAt,
		}, nil
	})
}

type buildFunc func(cur *Report, now time.Time) (*Patch, error)

func (w *Workflow) mutate(ctx context.Context, key Key, op statemachine.Operation, opts OpOptions, build buildFunc) (*Report, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	// 1. 获取报告锁
	release, err := w.locker.Obtain(ctx, lock.ReportKey(key.CharityID, key.ProjectID))
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, &ConflictError{Reason: fmt.Sprintf("report %s is locked by another operation", key)}
	}
	if err != nil {
		return nil, &StoreError{Op: "lock", Err: err}
	}
	defer release()

	// 2. 读取当前报告
	cur, err := w.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if opts.ExpectedVersion != 0 && opts.ExpectedVersion != cur.Version {
		return nil, &ConflictError{Expected: opts.ExpectedVersion, Actual: cur.Version}
	}

	// 3. 检查状态转换
	path, err := statemachine.Path(cur.Status, op)
	if err != nil {
		return nil, &StateError{Status: cur.Status, Operation: op}
	}

	// 4. 校验并构建写入内容
	now := w.now()
	patch, err := build(cur, now)
	if err != nil {
		return nil, err
	}
	operator := opts.Operator
	if operator == "" {
		operator = DefaultOperator
	}
	patch.ExpectedVersion = cur.Version
	patch.Transitions = transitionsFor(op, path, operator, patch.RejectionComment)

	// 5. 条件写入
	updated, err := w.store.Put(ctx, key, patch)
	if errors.Is(err, ErrVersionConflict) {
		return nil, &ConflictError{Expected: cur.Version, Actual: w.currentVersion(ctx, key)}
	}
	if err != nil {
		return nil, &StoreError{Op: string(op), Err: err}
	}

	w.logger.WithFields(logrus.Fields{
		"charity_id": key.CharityID,
		"project_id": key.ProjectID,
		"operation":  op,
		"from":       cur.Status,
		"to":         updated.Status,
		"version":    updated.Version,
		"operator":   operator,
	}).Info("report transition")

	updated.Transitions = patch.Transitions
	return updated, nil
}

func (w *Workflow) load(ctx context.Context, key Key) (*Report, error) {
	cur, err := w.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return &Report{
			Key:    key,
			Status: statemachine.StatusNotStarted,
			Fields: report.NewFields(),
		}, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Err: err}
	}
	if cur.Fields == nil {
		cur.Fields = report.NewFields()
	}
	return cur, nil
}

// currentVersion 冲突时尽量返回最新版本,读取失败返回 -1
func (w *Workflow) currentVersion(ctx context.Context, key Key) int64 {
	latest, err := w.store.Get(ctx, key)
	if err != nil {
		return -1
	}
	return latest.Version
}

// applyFunding 资助记录中的总额和日期覆盖同名字段
func applyFunding(cur *Report, fields *report.Fields) *report.Fields {
	prepared := fields.Clone()
	if cur.Funding == nil {
		return prepared
	}
	prepared.Set(report.FieldTotalFundingAmount, report.Number(cur.Funding.Amount))
	if cur.Funding.DateGiven != nil {
		prepared.Set(report.FieldDateFundingStarted, report.Date(*cur.Funding.DateGiven))
	}
	return prepared
}

var transitionReasons = map[statemachine.Operation]string{
	statemachine.OpSaveDraft: "draft saved",
	statemachine.OpSubmit:    "report submitted",
	statemachine.OpApprove:   "report approved",
	statemachine.OpReject:    "report rejected",
	statemachine.OpResume:    "report resumed for editing",
}

func transitionsFor(op statemachine.Operation, path []statemachine.Status, operator, comment string) []Transition {
	ops := []statemachine.Operation{op}
	if len(path) == 3 {
		ops = []statemachine.Operation{statemachine.OpResume, op}
	}

	out := make([]Transition, 0, len(ops))
	for i, o := range ops {
		reason := transitionReasons[o]
		if o == statemachine.OpReject {
			reason = reason + ": " + comment
		}
		out = append(out, Transition{
			Operation: o,
			From:      path[i],
			To:        path[i+1],
			Reason:    reason,
			Operator:  operator,
		})
	}
	return out
}
