package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
)

// Type 事件类型
type Type string

const (
	TypeReportSaved     Type = "report.saved"
	TypeReportSubmitted Type = "report.submitted"
	TypeReportApproved  Type = "report.approved"
	TypeReportRejected  Type = "report.rejected"
	TypeReportResumed   Type = "report.resumed"
)

var operationTypes = map[statemachine.Operation]Type{
	statemachine.OpSaveDraft: TypeReportSaved,
	statemachine.OpSubmit:    TypeReportSubmitted,
	statemachine.OpApprove:   TypeReportApproved,
	statemachine.OpReject:    TypeReportRejected,
	statemachine.OpResume:    TypeReportResumed,
}

// TypeFor 返回操作对应的事件类型
func TypeFor(op statemachine.Operation) (Type, error) {
	t, ok := operationTypes[op]
	if !ok {
		return "", fmt.Errorf("no event type for operation %q", op)
	}
	return t, nil
}

// Event 报告状态转换事件
type Event struct {
	ID               string                 `json:"id"`
	Type             Type                   `json:"type"`
	ReportID         string                 `json:"report_id"`
	CharityID        string                 `json:"charity_id"`
	ProjectID        string                 `json:"project_id"`
	Operation        statemachine.Operation `json:"operation"`
	From             statemachine.Status    `json:"from"`
	To               statemachine.Status    `json:"to"`
	Version          int64                  `json:"version"`
	Operator         string                 `json:"operator"`
	RejectionComment string                 `json:"rejection_comment,omitempty"`
	OccurredAt       time.Time              `json:"occurred_at"`
}

// Encode 序列化事件
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode 反序列化事件
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &e, nil
}
