package statemachine

import "fmt"

// Status 报告状态
type Status string

const (
	// StatusNotStarted 资助记录已创建,报告尚未保存
	StatusNotStarted Status = "not_started"
	// StatusDraft 草稿
	StatusDraft Status = "draft"
	// StatusSubmitted 已提交,等待审核
	StatusSubmitted Status = "submitted"
	// StatusApproved 已通过
	StatusApproved Status = "approved"
	// StatusRejected 已驳回
	StatusRejected Status = "rejected"
)

var validStatuses = map[Status]bool{
	StatusNotStarted: true,
	StatusDraft:      true,
	StatusSubmitted:  true,
	StatusApproved:   true,
	StatusRejected:   true,
}

// IsValid 判断状态是否合法
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsEditable 判断慈善机构是否可以编辑报告内容
func (s Status) IsEditable() bool {
	return s == StatusNotStarted || s == StatusDraft || s == StatusRejected
}

// IsLocked 已通过的报告不可再修改
func (s Status) IsLocked() bool {
	return s == StatusApproved
}

func (s Status) String() string {
	return string(s)
}

// ParseStatus 解析状态字符串
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown report status %q", s)
	}
	return status, nil
}

// AllStatuses 返回全部状态(按生命周期顺序)
func AllStatuses() []Status {
	return []Status{StatusNotStarted, StatusDraft, StatusSubmitted, StatusApproved, StatusRejected}
}
