package repository

import (
	"fmt"
	"strings"

	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/utils"
	"gorm.io/gorm"
)

// ReportRepository 报告仓储接口
type ReportRepository interface {
	Save(report *model.ReportModel) error
	FindByID(id string) (*model.ReportModel, error)
	FindByKey(charityID, projectID string) (*model.ReportModel, error)
	FindByFilter(filter *ReportFilter) ([]*model.ReportModel, int64, error)
	CountByStatus() (map[string]int64, error)
}

// ReportFilter 报告查询过滤器
type ReportFilter struct {
	Status    *string
	CharityID *string
	Page      int
	PageSize  int
	SortBy    string // last_updated, created_at, submitted_at, project_name
	Order     string // asc, desc
}

// ReportSortFields 允许排序的列
var ReportSortFields = []string{"last_updated", "created_at", "submitted_at", "project_name"}

// reportRepository 报告仓储实现
type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建报告仓储
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

// Save 保存报告
func (r *reportRepository) Save(report *model.ReportModel) error {
	return r.db.Save(report).Error
}

// FindByID 根据 ID 查找报告
func (r *reportRepository) FindByID(id string) (*model.ReportModel, error) {
	var report model.ReportModel
	if err := r.db.Where("id = ?", id).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// FindByKey 根据慈善机构和项目查找报告
func (r *reportRepository) FindByKey(charityID, projectID string) (*model.ReportModel, error) {
	var report model.ReportModel
	if err := r.db.Where("charity_id = ? AND project_id = ?", charityID, projectID).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// FindByFilter 分页查询报告,返回当前页和总数
func (r *reportRepository) FindByFilter(filter *ReportFilter) ([]*model.ReportModel, int64, error) {
	if filter == nil {
		filter = &ReportFilter{}
	}

	query := r.db.Model(&model.ReportModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CharityID != nil {
		query = query.Where("charity_id = ?", *filter.CharityID)
	}

	// 1. 统计总数
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count reports: %w", err)
	}

	// 2. 排序
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "last_updated"
	}
	if err := utils.ValidateSortField(sortBy, ReportSortFields...); err != nil {
		return nil, 0, fmt.Errorf("invalid sort field %q: %w", sortBy, err)
	}
	order := filter.Order
	if order == "" {
		order = "desc"
	}
	if err := utils.ValidateSortOrder(order); err != nil {
		return nil, 0, err
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, strings.ToUpper(order))).Order("id ASC")

	// 3. 分页
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	var reports []*model.ReportModel
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&reports).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to query reports: %w", err)
	}
	return reports, total, nil
}

// CountByStatus 按状态统计报告数量
func (r *reportRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.Model(&model.ReportModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
