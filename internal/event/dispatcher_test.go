package event_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/config"
	"github.com/Kaz-z/impact-engine-report-builder/internal/database"
	"github.com/Kaz-z/impact-engine-report-builder/internal/event"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDBForEvent 创建测试数据库
func setupTestDBForEvent(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func saveEvent(t *testing.T, db *gorm.DB, id, reportID string, op statemachine.Operation, at time.Time) {
	t.Helper()
	typ, err := event.TypeFor(op)
	require.NoError(t, err)
	evt := &event.Event{
		ID:         id,
		Type:       typ,
		ReportID:   reportID,
		CharityID:  "c",
		ProjectID:  reportID,
		Operation:  op,
		OccurredAt: at,
	}
	data, err := evt.Encode()
	require.NoError(t, err)
	require.NoError(t, repository.NewEventRepository(db).Save(&model.EventModel{
		ID:        id,
		ReportID:  reportID,
		Type:      string(typ),
		Data:      data,
		CreatedAt: at,
		UpdatedAt: at,
	}))
}

// TestTypeFor 测试操作到事件类型的映射
func TestTypeFor(t *testing.T) {
	typ, err := event.TypeFor(statemachine.OpResume)
	require.NoError(t, err)
	assert.Equal(t, event.TypeReportResumed, typ)

	_, err = event.TypeFor(statemachine.Operation("archive"))
	assert.Error(t, err)
}

// TestDispatcher_DeliversInOrder 测试按顺序投递
func TestDispatcher_DeliversInOrder(t *testing.T) {
	db := setupTestDBForEvent(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	saveEvent(t, db, "e1", "r1", statemachine.OpSubmit, base)
	saveEvent(t, db, "e2", "r1", statemachine.OpApprove, base.Add(time.Second))

	sink := event.NewMemorySink()
	d := event.NewDispatcher(db, sink, event.DispatcherOptions{})

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	delivered := sink.Events()
	require.Len(t, delivered, 2)
	assert.Equal(t, event.TypeReportSubmitted, delivered[0].Type)
	assert.Equal(t, event.TypeReportApproved, delivered[1].Type)

	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestDispatcher_FailureBlocksReport 测试投递失败后保留顺序并重试
func TestDispatcher_FailureBlocksReport(t *testing.T) {
	db := setupTestDBForEvent(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	saveEvent(t, db, "e1", "r1", statemachine.OpSubmit, base)
	saveEvent(t, db, "e2", "r1", statemachine.OpReject, base.Add(time.Second))

	sink := event.NewMemorySink()
	sink.FailWith(errors.New("pubsub unavailable"))
	d := event.NewDispatcher(db, sink, event.DispatcherOptions{MaxRetries: 3})

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	repo := repository.NewEventRepository(db)
	rows, err := repo.FindByReportID("r1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].RetryCount)
	assert.Equal(t, 0, rows[1].RetryCount)

	sink.FailWith(nil)
	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, sink.Events(), 2)
	assert.Equal(t, "e1", sink.Events()[0].ID)
}

// TestDispatcher_NoSink 测试未配置投递目标时跳过
func TestDispatcher_NoSink(t *testing.T) {
	db := setupTestDBForEvent(t)
	saveEvent(t, db, "e1", "r1", statemachine.OpSaveDraft, time.Now().UTC())

	d := event.NewDispatcher(db, nil, event.DispatcherOptions{})
	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := repository.NewEventRepository(db).FindByReportID("r1")
	require.NoError(t, err)
	assert.Equal(t, model.EventStatusSkipped, rows[0].Status)
}

// TestDispatcher_StartStop 测试后台投递
func TestDispatcher_StartStop(t *testing.T) {
	db := setupTestDBForEvent(t)
	saveEvent(t, db, "e1", "r1", statemachine.OpSubmit, time.Now().UTC())

	sink := event.NewMemorySink()
	d := event.NewDispatcher(db, sink, event.DispatcherOptions{Interval: 10 * time.Millisecond})
	d.Start()
	d.Start()

	assert.Eventually(t, func() bool { return len(sink.Events()) == 1 }, time.Second, 10*time.Millisecond)
	d.Stop()
	d.Stop()
}
