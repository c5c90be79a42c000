package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/event"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
	"github.com/Kaz-z/impact-engine-report-builder/internal/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportStore 基于 gorm 的报告存储
// 报告更新、状态历史和发件箱事件在同一事务中写入
type ReportStore struct {
	db *gorm.DB
}

// NewReportStore 创建报告存储
func NewReportStore(db *gorm.DB) *ReportStore {
	return &ReportStore{db: db}
}

var _ workflow.DocumentStore = (*ReportStore)(nil)

// Get 读取报告
func (s *ReportStore) Get(ctx context.Context, key workflow.Key) (*workflow.Report, error) {
	row, err := repository.NewReportRepository(s.db.WithContext(ctx)).FindByKey(key.CharityID, key.ProjectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report %s: %w", key, err)
	}
	return toReport(row)
}

// Put 按版本条件写入报告
func (s *ReportStore) Put(ctx context.Context, key workflow.Key, patch *workflow.Patch) (*workflow.Report, error) {
	data, err := patch.Fields.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode report fields: %w", err)
	}

	var saved *model.ReportModel
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reports := repository.NewReportRepository(tx)
		version := patch.ExpectedVersion + 1

		// 1. 条件更新
		res := tx.Model(&model.ReportModel{}).
			Where("charity_id = ? AND project_id = ? AND version = ?", key.CharityID, key.ProjectID, patch.ExpectedVersion).
			Updates(map[string]interface{}{
				"data":              data,
				"status":            string(patch.Status),
				"rejection_comment": patch.RejectionComment,
				"rejection_active":  patch.RejectionActive,
				"last_updated":      patch.LastUpdated,
				"submitted_at":      patch.SubmittedAt,
				"approved_at":       patch.ApprovedAt,
				"rejected_at":       patch.RejectedAt,
				"version":           version,
				"updated_at":        time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}

		// 2. 没有匹配行时,版本 0 表示首次创建
		if res.RowsAffected == 0 {
			if patch.ExpectedVersion != 0 {
				return workflow.ErrVersionConflict
			}
			if _, err := reports.FindByKey(key.CharityID, key.ProjectID); err == nil {
				return workflow.ErrVersionConflict
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			now := time.Now()
			row := &model.ReportModel{
				ID:               uuid.New().String(),
				CharityID:        key.CharityID,
				ProjectID:        key.ProjectID,
				ProjectName:      patch.Fields.String(report.FieldProjectName),
				Status:           string(patch.Status),
				Data:             data,
				RejectionComment: patch.RejectionComment,
				RejectionActive:  patch.RejectionActive,
				Version:          version,
				LastUpdated:      patch.LastUpdated,
				SubmittedAt:      patch.SubmittedAt,
				ApprovedAt:       patch.ApprovedAt,
				RejectedAt:       patch.RejectedAt,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.Create(row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return workflow.ErrVersionConflict
				}
				return err
			}
		}

		row, err := reports.FindByKey(key.CharityID, key.ProjectID)
		if err != nil {
			return err
		}

		// 3. 状态历史和发件箱
		if err := recordTransitions(tx, row, patch); err != nil {
			return err
		}
		saved = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toReport(saved)
}

// RegisterFunding 登记资助记录
// 报告不存在时以 not_started 状态创建,已存在时只更新资助信息
func (s *ReportStore) RegisterFunding(ctx context.Context, key workflow.Key, funding workflow.FundingRecord) (*workflow.Report, error) {
	var saved *model.ReportModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reports := repository.NewReportRepository(tx)
		now := time.Now()

		row, err := reports.FindByKey(key.CharityID, key.ProjectID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = &model.ReportModel{
				ID:          uuid.New().String(),
				CharityID:   key.CharityID,
				ProjectID:   key.ProjectID,
				Status:      string(statemachine.StatusNotStarted),
				LastUpdated: now,
				CreatedAt:   now,
			}
		case err != nil:
			return err
		default:
			// 资助信息变化会影响校验,版本加一让并发写入感知
			row.Version++
		}

		row.ProjectName = funding.ProjectName
		row.FundingAmount = decimal.NewNullDecimal(funding.Amount)
		row.DateFundingGiven = funding.DateGiven
		row.UpdatedAt = now
		if err := row.Validate(); err != nil {
			return err
		}
		if err := reports.Save(row); err != nil {
			return err
		}
		saved = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toReport(saved)
}

func recordTransitions(tx *gorm.DB, row *model.ReportModel, patch *workflow.Patch) error {
	histories := repository.NewStateHistoryRepository(tx)
	events := repository.NewEventRepository(tx)
	now := time.Now()

	for i, t := range patch.Transitions {
		created := now.Add(time.Duration(i) * time.Microsecond)
		if err := histories.Save(&model.StateHistoryModel{
			ID:        uuid.New().String(),
			ReportID:  row.ID,
			Operation: string(t.Operation),
			FromState: string(t.From),
			ToState:   string(t.To),
			Reason:    t.Reason,
			Operator:  t.Operator,
			Version:   row.Version,
			CreatedAt: created,
		}); err != nil {
			return fmt.Errorf("failed to save state history: %w", err)
		}

		typ, err := event.TypeFor(t.Operation)
		if err != nil {
			return err
		}
		evt := &event.Event{
			ID:         uuid.New().String(),
			Type:       typ,
			ReportID:   row.ID,
			CharityID:  row.CharityID,
			ProjectID:  row.ProjectID,
			Operation:  t.Operation,
			From:       t.From,
			To:         t.To,
			Version:    row.Version,
			Operator:   t.Operator,
			OccurredAt: patch.LastUpdated,
		}
		if t.Operation == statemachine.OpReject {
			evt.RejectionComment = patch.RejectionComment
		}
		data, err := evt.Encode()
		if err != nil {
			return err
		}
		if err := events.Save(&model.EventModel{
			ID:        evt.ID,
			ReportID:  row.ID,
			Type:      string(typ),
			Data:      data,
			Status:    model.EventStatusPending,
			CreatedAt: created,
			UpdatedAt: created,
		}); err != nil {
			return fmt.Errorf("failed to save outbox event: %w", err)
		}
	}
	return nil
}

func toReport(row *model.ReportModel) (*workflow.Report, error) {
	status, err := statemachine.ParseStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", row.ID, err)
	}

	fields := report.NewFields()
	if len(row.Data) > 0 {
		if fields, err = report.ParseFields(row.Data); err != nil {
			return nil, fmt.Errorf("report %s: failed to decode fields: %w", row.ID, err)
		}
	}

	r := &workflow.Report{
		ID: row.ID,
		Key: workflow.Key{
			CharityID: row.CharityID,
			ProjectID: row.ProjectID,
		},
		Status:           status,
		Fields:           fields,
		RejectionComment: row.RejectionComment,
		RejectionActive:  row.RejectionActive,
		LastUpdated:      row.LastUpdated,
		Version:          row.Version,
		SubmittedAt:      row.SubmittedAt,
		ApprovedAt:       row.ApprovedAt,
		RejectedAt:       row.RejectedAt,
	}
	if row.FundingAmount.Valid {
		r.Funding = &workflow.FundingRecord{
			ProjectName: row.ProjectName,
			Amount:      row.FundingAmount.Decimal,
			DateGiven:   row.DateFundingGiven,
		}
	}
	return r, nil
}
