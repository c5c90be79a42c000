package repository_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/config"
	"github.com/Kaz-z/impact-engine-report-builder/internal/database"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB 创建测试数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func newReport(charityID, projectID, status string, updated time.Time) *model.ReportModel {
	return &model.ReportModel{
		ID:          uuid.New().String(),
		CharityID:   charityID,
		ProjectID:   projectID,
		ProjectName: "Project " + projectID,
		Status:      status,
		Data:        []byte(`{}`),
		Version:     1,
		LastUpdated: updated,
		CreatedAt:   updated,
		UpdatedAt:   updated,
	}
}

// TestReportRepository_FindByKey 测试按 key 查询
func TestReportRepository_FindByKey(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewReportRepository(db)

	r := newReport("charity-1", "project-1", "draft", time.Now().UTC())
	require.NoError(t, repo.Save(r))

	found, err := repo.FindByKey("charity-1", "project-1")
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)
	assert.Equal(t, "draft", found.Status)

	byID, err := repo.FindByID(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "project-1", byID.ProjectID)

	_, err = repo.FindByKey("charity-1", "missing")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

// TestReportRepository_UniqueKey 测试同一项目只能有一份报告
func TestReportRepository_UniqueKey(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewReportRepository(db)
	now := time.Now().UTC()

	require.NoError(t, db.Create(newReport("c", "p", "draft", now)).Error)
	assert.Error(t, db.Create(newReport("c", "p", "draft", now)).Error)

	_, total, err := repo.FindByFilter(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

// TestReportRepository_FindByFilter 测试过滤、排序和分页
func TestReportRepository_FindByFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewReportRepository(db)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		status := "submitted"
		if i%2 == 1 {
			status = "draft"
		}
		require.NoError(t, repo.Save(newReport("charity-1", fmt.Sprintf("p%d", i), status, base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, repo.Save(newReport("charity-2", "other", "submitted", base)))

	submitted := "submitted"
	reports, total, err := repo.FindByFilter(&repository.ReportFilter{Status: &submitted})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, reports, 4)
	// 默认按最近更新倒序
	assert.Equal(t, "p4", reports[0].ProjectID)

	charity := "charity-1"
	page, total, err := repo.FindByFilter(&repository.ReportFilter{
		CharityID: &charity,
		Page:      2,
		PageSize:  2,
		SortBy:    "last_updated",
		Order:     "asc",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "p2", page[0].ProjectID)
	assert.Equal(t, "p3", page[1].ProjectID)

	_, _, err = repo.FindByFilter(&repository.ReportFilter{SortBy: "status; DROP TABLE reports"})
	assert.Error(t, err)
	_, _, err = repo.FindByFilter(&repository.ReportFilter{Order: "sideways"})
	assert.Error(t, err)
}

// TestReportRepository_CountByStatus 测试按状态统计
func TestReportRepository_CountByStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewReportRepository(db)
	now := time.Now().UTC()

	require.NoError(t, repo.Save(newReport("c", "p1", "draft", now)))
	require.NoError(t, repo.Save(newReport("c", "p2", "draft", now)))
	require.NoError(t, repo.Save(newReport("c", "p3", "approved", now)))

	counts, err := repo.CountByStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["draft"])
	assert.Equal(t, int64(1), counts["approved"])
	assert.Zero(t, counts["rejected"])
}

// TestStateHistoryRepository 测试状态历史
func TestStateHistoryRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewStateHistoryRepository(db)
	now := time.Now().UTC()

	for i, to := range []string{"draft", "submitted", "rejected"} {
		require.NoError(t, repo.Save(&model.StateHistoryModel{
			ID:        uuid.New().String(),
			ReportID:  "report-1",
			Operation: "op",
			ToState:   to,
			Operator:  "alice",
			Version:   int64(i + 1),
			CreatedAt: now,
		}))
	}
	err := repo.Save(&model.StateHistoryModel{ID: "x", ReportID: "report-1"})
	assert.Error(t, err)

	histories, err := repo.FindByReportID("report-1")
	require.NoError(t, err)
	require.Len(t, histories, 3)
	assert.Equal(t, "draft", histories[0].ToState)
	assert.Equal(t, "rejected", histories[2].ToState)
}

// TestEventRepository_Lifecycle 测试发件箱状态流转
func TestEventRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewEventRepository(db)
	now := time.Now().UTC()

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.New().String()
		require.NoError(t, repo.Save(&model.EventModel{
			ID:        ids[i],
			ReportID:  "report-1",
			Type:      "report.saved",
			Data:      []byte(`{"version":1}`),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			UpdatedAt: now,
		}))
	}

	pending, err := repo.FindPending(2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, model.EventStatusPending, pending[0].Status)

	require.NoError(t, repo.MarkDelivered(ids[0]))
	require.NoError(t, repo.MarkSkipped(ids[1]))

	// 第一次失败后仍待投递,达到重试上限后标记失败
	require.NoError(t, repo.MarkFailed(ids[2], errors.New("unavailable"), 2))
	pending, err = repo.FindPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	assert.Equal(t, "unavailable", pending[0].LastError)

	require.NoError(t, repo.MarkFailed(ids[2], errors.New("unavailable"), 2))
	pending, err = repo.FindPending(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	events, err := repo.FindByReportID("report-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, model.EventStatusDelivered, events[0].Status)
	assert.Equal(t, model.EventStatusSkipped, events[1].Status)
	assert.Equal(t, model.EventStatusFailed, events[2].Status)
}

// TestAuditLogRepository 测试审计日志
func TestAuditLogRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAuditLogRepository(db)

	log := &model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       "alice",
		Action:       "submit",
		ResourceType: "report",
		ResourceID:   "c/p",
		RequestID:    "req-1",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.Save(log))
	assert.Equal(t, model.AuditResultSuccess, log.Result)
	require.NoError(t, repo.Save(&model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       "bob",
		Action:       "approve",
		ResourceType: "report",
		ResourceID:   "c/p",
		Result:       model.AuditResultDenied,
		RequestID:    "req-2",
		CreatedAt:    time.Now().UTC(),
	}))

	byRequest, err := repo.FindByRequestID("req-1")
	require.NoError(t, err)
	require.Len(t, byRequest, 1)
	assert.Equal(t, "alice", byRequest[0].UserID)

	counts, err := repo.CountByResult("report", "c/p")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[model.AuditResultSuccess])
	assert.Equal(t, int64(1), counts[model.AuditResultDenied])

	byResource, err := repo.FindByResource("report", "c/p")
	require.NoError(t, err)
	require.Len(t, byResource, 2)

	assert.Error(t, repo.Save(&model.AuditLogModel{ID: "x"}))
}
