package workflow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/config"
	"github.com/Kaz-z/impact-engine-report-builder/internal/database"
	"github.com/Kaz-z/impact-engine-report-builder/internal/integration"
	"github.com/Kaz-z/impact-engine-report-builder/internal/lock"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report/reporttest"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
	"github.com/Kaz-z/impact-engine-report-builder/internal/workflow"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	testKey   = workflow.Key{CharityID: "charity-1", ProjectID: "project-1"}
	testClock = time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
)

// setupTestDBForWorkflow 创建测试数据库
func setupTestDBForWorkflow(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newWorkflow(t *testing.T) (*workflow.Workflow, *integration.ReportStore, *gorm.DB) {
	t.Helper()
	db := setupTestDBForWorkflow(t)
	store := integration.NewReportStore(db)
	wf := workflow.New(store, nil, workflow.WithClock(func() time.Time { return testClock }))
	return wf, store, db
}

func historyOf(t *testing.T, db *gorm.DB, reportID string) []string {
	t.Helper()
	rows, err := repository.NewStateHistoryRepository(db).FindByReportID(reportID)
	require.NoError(t, err)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Operation+":"+r.FromState+"->"+r.ToState)
	}
	return out
}

// TestWorkflow_GetMissing 测试未创建的报告
func TestWorkflow_GetMissing(t *testing.T) {
	wf, _, _ := newWorkflow(t)

	r, err := wf.Get(context.Background(), testKey)
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusNotStarted, r.Status)
	assert.Equal(t, int64(0), r.Version)
	assert.Equal(t, 0, r.Fields.Len())

	_, err = wf.Get(context.Background(), workflow.Key{CharityID: "c"})
	assert.ErrorIs(t, err, workflow.ErrInvalidKey)
}

// TestWorkflow_SaveDraft 测试保存草稿并重新计算结余
func TestWorkflow_SaveDraft(t *testing.T) {
	wf, _, db := newWorkflow(t)
	ctx := context.Background()

	r, err := wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{Operator: "alice"})
	require.NoError(t, err)

	assert.Equal(t, statemachine.StatusDraft, r.Status)
	assert.Equal(t, int64(1), r.Version)
	assert.True(t, r.LastUpdated.Equal(testClock))
	left, ok := r.Fields.Number(report.OutcomeField(1, report.SuffixAmountLeftOver))
	require.True(t, ok)
	assert.True(t, left.Equal(decimal.RequireFromString("149.5")), left.String())

	// 再次保存
	r, err = wf.SaveDraft(ctx, testKey, r.Fields.Set(report.FieldProjectSummary, report.String("Wells")), workflow.OpOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.Version)
	assert.Equal(t, "Wells", r.Fields.String(report.FieldProjectSummary))

	loaded, err := wf.Get(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, loaded.Fields.Equal(r.Fields))

	assert.Equal(t, []string{
		"save_draft:not_started->draft",
		"save_draft:draft->draft",
	}, historyOf(t, db, r.ID))
}

// TestWorkflow_SaveDraftLenientFailure 测试草稿结构错误时报告不变
func TestWorkflow_SaveDraftLenientFailure(t *testing.T) {
	wf, _, _ := newWorkflow(t)
	ctx := context.Background()

	bad := reporttest.DraftFields().Set(report.FieldEmail, report.String("not-an-email"))
	_, err := wf.SaveDraft(ctx, testKey, bad, workflow.OpOptions{})
	require.ErrorIs(t, err, workflow.ErrValidationFailure)

	var verr *workflow.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Result.Has(report.FieldEmail, report.RuleEmail))

	r, err := wf.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusNotStarted, r.Status)
}

// TestWorkflow_SubmitIncomplete 测试提交不完整报告
func TestWorkflow_SubmitIncomplete(t *testing.T) {
	wf, _, _ := newWorkflow(t)
	ctx := context.Background()

	draft, err := wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{})
	require.NoError(t, err)

	_, err = wf.Submit(ctx, testKey, draft.Fields, workflow.OpOptions{})
	require.ErrorIs(t, err, workflow.ErrValidationFailure)

	var verr *workflow.ValidationError
	require.True(t, errors.As(err, &verr))
	steps := verr.ByStep()
	require.NotEmpty(t, steps)
	assert.Equal(t, report.StepProjectDetails, steps[0].Step)

	after, err := wf.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusDraft, after.Status)
	assert.Equal(t, draft.Version, after.Version)
}

// TestWorkflow_SubmitApprove 测试提交并审核通过
func TestWorkflow_SubmitApprove(t *testing.T) {
	wf, _, db := newWorkflow(t)
	ctx := context.Background()

	r, err := wf.Submit(ctx, testKey, reporttest.CompleteFields(), workflow.OpOptions{Operator: "alice"})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusSubmitted, r.Status)
	require.NotNil(t, r.SubmittedAt)
	submitted, ok := r.Fields.Date(report.FieldDateImpactReportSubmitted)
	require.True(t, ok)
	assert.True(t, submitted.Equal(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)))

	// 已提交的报告不能再编辑或提交
	_, err = wf.SaveDraft(ctx, testKey, r.Fields, workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
	_, err = wf.Submit(ctx, testKey, r.Fields, workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	r, err = wf.Approve(ctx, testKey, workflow.OpOptions{Operator: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusApproved, r.Status)
	require.NotNil(t, r.ApprovedAt)

	// 已通过的报告锁定
	for name, op := range map[string]func() error{
		"save_draft": func() error { _, err := wf.SaveDraft(ctx, testKey, r.Fields, workflow.OpOptions{}); return err },
		"submit":     func() error { _, err := wf.Submit(ctx, testKey, r.Fields, workflow.OpOptions{}); return err },
		"approve":    func() error { _, err := wf.Approve(ctx, testKey, workflow.OpOptions{}); return err },
		"reject":     func() error { _, err := wf.Reject(ctx, testKey, "late", workflow.OpOptions{}); return err },
		"resume":     func() error { _, err := wf.Resume(ctx, testKey, workflow.OpOptions{}); return err },
	} {
		err := op()
		assert.ErrorIs(t, err, workflow.ErrInvalidState, name)
		var serr *workflow.StateError
		if assert.True(t, errors.As(err, &serr), name) {
			assert.Equal(t, statemachine.StatusApproved, serr.Status)
		}
	}

	assert.Equal(t, []string{
		"submit:not_started->submitted",
		"approve:submitted->approved",
	}, historyOf(t, db, r.ID))
}

// TestWorkflow_SubmitRequiresContract 测试合作比例较高时需上传合同才能提交
func TestWorkflow_SubmitRequiresContract(t *testing.T) {
	wf, _, db := newWorkflow(t)
	ctx := context.Background()

	fields := reporttest.CompleteFields().
		Set(report.FieldHasPartners, report.Bool(true)).
		Set(report.FieldPartnerOrganizations, report.String("Water Partners Ltd")).
		Set(report.FieldPartnershipInvolvement, reporttest.Num("60"))

	draft, err := wf.SaveDraft(ctx, testKey, fields, workflow.OpOptions{Operator: "alice"})
	require.NoError(t, err)

	_, err = wf.Submit(ctx, testKey, draft.Fields, workflow.OpOptions{Operator: "alice"})
	require.ErrorIs(t, err, workflow.ErrValidationFailure)
	var verr *workflow.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Result.Has(report.FieldPartnerContract, report.RuleContractRequired))

	after, err := wf.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusDraft, after.Status)
	assert.Equal(t, draft.Version, after.Version)

	withContract := after.Fields.Clone().Set(report.FieldPartnerContract, report.Object(report.NewFields().
		Set("url", report.String("https://cdn.example.org/contracts/agreement.pdf")).
		Set("fileName", report.String("agreement.pdf"))))
	r, err := wf.Submit(ctx, testKey, withContract, workflow.OpOptions{Operator: "alice"})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusSubmitted, r.Status)
	assert.Equal(t, "agreement.pdf", r.Fields.Object(report.FieldPartnerContract).String("fileName"))

	assert.Equal(t, []string{
		"save_draft:not_started->draft",
		"submit:draft->submitted",
	}, historyOf(t, db, r.ID))
}

// TestWorkflow_RejectCycle 测试驳回、直接编辑和重新提交
func TestWorkflow_RejectCycle(t *testing.T) {
	wf, _, db := newWorkflow(t)
	ctx := context.Background()

	r, err := wf.Submit(ctx, testKey, reporttest.CompleteFields(), workflow.OpOptions{})
	require.NoError(t, err)

	// 驳回意见不能为空
	_, err = wf.Reject(ctx, testKey, "   ", workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrValidationFailure)

	r, err = wf.Reject(ctx, testKey, "Please add beneficiary numbers", workflow.OpOptions{Operator: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusRejected, r.Status)
	assert.Equal(t, "Please add beneficiary numbers", r.RejectionComment)
	assert.True(t, r.RejectionActive)
	require.NotNil(t, r.RejectedAt)

	// 直接编辑被驳回的报告会先恢复为草稿
	r, err = wf.SaveDraft(ctx, testKey, r.Fields.Set(report.FieldDirectBeneficiaries, reporttest.Num("120")), workflow.OpOptions{})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusDraft, r.Status)
	assert.True(t, r.RejectionActive)
	assert.Equal(t, "Please add beneficiary numbers", r.RejectionComment)

	r, err = wf.Submit(ctx, testKey, r.Fields, workflow.OpOptions{})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusSubmitted, r.Status)
	assert.False(t, r.RejectionActive)
	assert.Equal(t, "Please add beneficiary numbers", r.RejectionComment)

	assert.Equal(t, []string{
		"submit:not_started->submitted",
		"reject:submitted->rejected",
		"resume:rejected->draft",
		"save_draft:draft->draft",
		"submit:draft->submitted",
	}, historyOf(t, db, r.ID))
}

// TestWorkflow_Resume 测试恢复为草稿
func TestWorkflow_Resume(t *testing.T) {
	wf, _, _ := newWorkflow(t)
	ctx := context.Background()

	_, err := wf.Resume(ctx, testKey, workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	_, err = wf.Submit(ctx, testKey, reporttest.CompleteFields(), workflow.OpOptions{})
	require.NoError(t, err)
	_, err = wf.Resume(ctx, testKey, workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	_, err = wf.Reject(ctx, testKey, "Numbers missing", workflow.OpOptions{})
	require.NoError(t, err)
	r, err := wf.Resume(ctx, testKey, workflow.OpOptions{})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusDraft, r.Status)
	assert.Equal(t, "Numbers missing", r.RejectionComment)
	assert.True(t, r.RejectionActive)
}

// TestWorkflow_MissingReportTransitions 测试不存在的报告不能审核
func TestWorkflow_MissingReportTransitions(t *testing.T) {
	wf, _, _ := newWorkflow(t)
	ctx := context.Background()

	_, err := wf.Approve(ctx, testKey, workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
	_, err = wf.Reject(ctx, testKey, "no", workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
}

// TestWorkflow_ExpectedVersion 测试版本检查
func TestWorkflow_ExpectedVersion(t *testing.T) {
	wf, _, _ := newWorkflow(t)
	ctx := context.Background()

	r, err := wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{})
	require.NoError(t, err)

	_, err = wf.SaveDraft(ctx, testKey, r.Fields, workflow.OpOptions{ExpectedVersion: r.Version + 5})
	require.ErrorIs(t, err, workflow.ErrConflict)
	var cerr *workflow.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, r.Version, cerr.Actual)

	_, err = wf.SaveDraft(ctx, testKey, r.Fields, workflow.OpOptions{ExpectedVersion: r.Version})
	assert.NoError(t, err)
}

// TestWorkflow_FundingRecord 测试资助记录覆盖报告中的资助字段
func TestWorkflow_FundingRecord(t *testing.T) {
	wf, store, _ := newWorkflow(t)
	ctx := context.Background()

	given := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	registered, err := store.RegisterFunding(ctx, testKey, workflow.FundingRecord{
		ProjectName: "Clean Water",
		Amount:      decimal.RequireFromString("5000"),
		DateGiven:   &given,
	})
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusNotStarted, registered.Status)
	assert.Equal(t, int64(0), registered.Version)

	// 计划支出 6000 超过资助总额 5000
	_, err = wf.Submit(ctx, testKey, reporttest.CompleteFields(), workflow.OpOptions{})
	var verr *workflow.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Result.Has(report.FieldTotalFundingAmount, report.RuleFundingExceedsTotal))

	r, err := wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{})
	require.NoError(t, err)
	total, _ := r.Fields.Number(report.FieldTotalFundingAmount)
	assert.True(t, total.Equal(decimal.RequireFromString("5000")))
	started, ok := r.Fields.Date(report.FieldDateFundingStarted)
	require.True(t, ok)
	assert.True(t, started.Equal(given))
	require.NotNil(t, r.Funding)
	assert.Equal(t, "Clean Water", r.Funding.ProjectName)
}

// TestWorkflow_Locked 测试报告被其他操作锁定
func TestWorkflow_Locked(t *testing.T) {
	db := setupTestDBForWorkflow(t)
	locker := lock.NewLocalLocker(10 * time.Millisecond)
	wf := workflow.New(integration.NewReportStore(db), nil, workflow.WithLocker(locker))
	ctx := context.Background()

	release, err := locker.Obtain(ctx, lock.ReportKey(testKey.CharityID, testKey.ProjectID))
	require.NoError(t, err)

	_, err = wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrConflict)

	release()
	_, err = wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{})
	assert.NoError(t, err)
}

// failingStore 读写都失败的存储
type failingStore struct {
	getErr error
	putErr error
}

func (s *failingStore) Get(context.Context, workflow.Key) (*workflow.Report, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return nil, workflow.ErrNotFound
}

func (s *failingStore) Put(context.Context, workflow.Key, *workflow.Patch) (*workflow.Report, error) {
	return nil, s.putErr
}

// TestWorkflow_StoreFailure 测试存储失败
func TestWorkflow_StoreFailure(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection refused")

	wf := workflow.New(&failingStore{getErr: cause}, nil)
	_, err := wf.Get(ctx, testKey)
	assert.ErrorIs(t, err, workflow.ErrStoreFailure)
	assert.ErrorIs(t, err, cause)

	wf = workflow.New(&failingStore{putErr: cause}, nil)
	_, err = wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrStoreFailure)
	var serr *workflow.StoreError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "save_draft", serr.Op)
}

// TestWorkflow_ConcurrentWrite 测试写入时版本已变化
func TestWorkflow_ConcurrentWrite(t *testing.T) {
	wf := workflow.New(&failingStore{putErr: workflow.ErrVersionConflict}, nil)

	_, err := wf.SaveDraft(context.Background(), testKey, reporttest.DraftFields(), workflow.OpOptions{})
	assert.ErrorIs(t, err, workflow.ErrConflict)
}

// racingStore 在读取后插入一次并发写入
type racingStore struct {
	*integration.ReportStore
	raced bool
}

func (s *racingStore) Put(ctx context.Context, key workflow.Key, patch *workflow.Patch) (*workflow.Report, error) {
	if !s.raced {
		s.raced = true
		other := *patch
		if _, err := s.ReportStore.Put(ctx, key, &other); err != nil {
			return nil, err
		}
	}
	return s.ReportStore.Put(ctx, key, patch)
}

// TestWorkflow_LostUpdate 测试并发写入不会互相覆盖
func TestWorkflow_LostUpdate(t *testing.T) {
	db := setupTestDBForWorkflow(t)
	store := &racingStore{ReportStore: integration.NewReportStore(db)}
	wf := workflow.New(store, nil)
	ctx := context.Background()

	_, err := wf.SaveDraft(ctx, testKey, reporttest.DraftFields(), workflow.OpOptions{})
	require.ErrorIs(t, err, workflow.ErrConflict)
	var cerr *workflow.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, int64(0), cerr.Expected)
	assert.Equal(t, int64(1), cerr.Actual)

	r, err := wf.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.Version)
}
