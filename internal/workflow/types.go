package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
	"github.com/shopspring/decimal"
)

// Key 报告标识,每个 (慈善机构, 项目) 一份报告
type Key struct {
	CharityID string `json:"charity_id"`
	ProjectID string `json:"project_id"`
}

func (k Key) String() string {
	return k.CharityID + "/" + k.ProjectID
}

// ErrInvalidKey 报告标识不完整
var ErrInvalidKey = errors.New("charity ID and project ID are required")

// Validate 验证报告标识
func (k Key) Validate() error {
	if k.CharityID == "" || k.ProjectID == "" {
		return ErrInvalidKey
	}
	return nil
}

// FundingRecord 资助记录,由外部流程创建,报告只读
type FundingRecord struct {
	ProjectName string          `json:"project_name"`
	Amount      decimal.Decimal `json:"funding_amount"`
	DateGiven   *time.Time      `json:"date_funding_given,omitempty"`
}

// Report 影响力报告
type Report struct {
	ID               string              `json:"id"`
	Key              Key                 `json:"key"`
	Status           statemachine.Status `json:"status"`
	Fields           *report.Fields      `json:"fields"`
	RejectionComment string              `json:"rejection_comment,omitempty"`
	RejectionActive  bool                `json:"rejection_active"`
	LastUpdated      time.Time           `json:"last_updated"`
	Version          int64               `json:"version"`
	Funding          *FundingRecord      `json:"funding,omitempty"`
	SubmittedAt      *time.Time          `json:"submitted_at,omitempty"`
	ApprovedAt       *time.Time          `json:"approved_at,omitempty"`
	RejectedAt       *time.Time          `json:"rejected_at,omitempty"`
	// Transitions 本次写操作经过的状态转换,读取时为空
	Transitions []Transition `json:"-"`
}

// Transition 一次状态转换
type Transition struct {
	Operation statemachine.Operation
	From      statemachine.Status
	To        statemachine.Status
	Reason    string
	Operator  string
}

// Patch 一次原子写入
// 字段、状态、驳回意见和更新时间必须同时生效
type Patch struct {
	// ExpectedVersion 读取时的版本,0 表示报告尚不存在
	ExpectedVersion  int64
	Fields           *report.Fields
	Status           statemachine.Status
	RejectionComment string
	RejectionActive  bool
	LastUpdated      time.Time
	SubmittedAt      *time.Time
	ApprovedAt       *time.Time
	RejectedAt       *time.Time
	// Transitions 本次写入经过的状态转换,驳回后直接编辑时包含隐式恢复
	Transitions []Transition
}

var (
	// ErrNotFound 报告不存在
	ErrNotFound = errors.New("report not found")
	// ErrVersionConflict 写入时版本已变化
	ErrVersionConflict = errors.New("report version conflict")
)

// DocumentStore 报告存储
type DocumentStore interface {
	// Get 读取报告,不存在时返回 ErrNotFound
	Get(ctx context.Context, key Key) (*Report, error)
	// Put 按 patch.ExpectedVersion 条件写入,版本不一致时返回 ErrVersionConflict
	Put(ctx context.Context, key Key, patch *Patch) (*Report, error)
}
