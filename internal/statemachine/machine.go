package statemachine

import (
	"errors"
	"fmt"
)

// Operation 工作流操作
type Operation string

const (
	OpSaveDraft Operation = "save_draft"
	OpSubmit    Operation = "submit"
	OpApprove   Operation = "approve"
	OpReject    Operation = "reject"
	OpResume    Operation = "resume"
)

// ErrInvalidTransition 非法状态转换
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError 状态转换错误
type TransitionError struct {
	From      Status
	Operation Operation
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: cannot %s report in state %q", e.Operation, e.From)
}

// Is 支持 errors.Is(err, ErrInvalidTransition)
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Edge 状态图中的一条边
type Edge struct {
	From      Status
	Operation Operation
	To        Status
}

// transitions 状态转换表,未列出的组合均为非法
var transitions = map[Status]map[Operation]Status{
	StatusNotStarted: {
		OpSaveDraft: StatusDraft,
		OpSubmit:    StatusSubmitted,
	},
	StatusDraft: {
		OpSaveDraft: StatusDraft,
		OpSubmit:    StatusSubmitted,
	},
	StatusSubmitted: {
		OpApprove: StatusApproved,
		OpReject:  StatusRejected,
	},
	StatusRejected: {
		OpResume: StatusDraft,
	},
	StatusApproved: {},
}

// CanTransition 判断操作在当前状态下是否允许
func CanTransition(from Status, op Operation) bool {
	_, ok := transitions[from][op]
	return ok
}

// Next 计算操作后的目标状态
func Next(from Status, op Operation) (Status, error) {
	to, ok := transitions[from][op]
	if !ok {
		return "", &TransitionError{From: from, Operation: op}
	}
	return to, nil
}

// Path 计算操作路径
// 被驳回的报告在编辑或提交时隐式恢复为草稿,返回值包含经过的所有状态
func Path(from Status, op Operation) ([]Status, error) {
	if from == StatusRejected && (op == OpSaveDraft || op == OpSubmit) {
		resumed, err := Next(from, OpResume)
		if err != nil {
			return nil, err
		}
		to, err := Next(resumed, op)
		if err != nil {
			return nil, err
		}
		return []Status{from, resumed, to}, nil
	}

	to, err := Next(from, op)
	if err != nil {
		return nil, err
	}
	return []Status{from, to}, nil
}

// Edges 返回状态图中的全部边
func Edges() []Edge {
	edges := make([]Edge, 0, 8)
	for _, from := range AllStatuses() {
		for _, op := range []Operation{OpSaveDraft, OpSubmit, OpApprove, OpReject, OpResume} {
			if to, ok := transitions[from][op]; ok {
				edges = append(edges, Edge{From: from, Operation: op, To: to})
			}
		}
	}
	return edges
}
