package workflow

import (
	"errors"
	"fmt"

	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
)

var (
	ErrValidationFailure = errors.New("validation failure")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrStoreFailure      = errors.New("store failure")
)

// ValidationError 校验失败,包含全部违规
type ValidationError struct {
	Result report.Result
}

func (e *ValidationError) Error() string {
	errs := e.Result.Errors()
	if len(errs) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", errs[0].Field, errs[0].Message)
	}
	return fmt.Sprintf("validation failed with %d violations", len(errs))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailure
}

// ByStep 按步骤分组的违规
func (e *ValidationError) ByStep() []report.StepViolations {
	return e.Result.ByStep()
}

// StateError 当前状态不允许该操作
type StateError struct {
	Status    statemachine.Status
	Operation statemachine.Operation
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s report in state %q", e.Operation, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ConflictError 并发冲突
type ConflictError struct {
	Expected int64
	Actual   int64
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return "conflict: " + e.Reason
	}
	return fmt.Sprintf("conflict: expected version %d, actual version %d", e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// StoreError 存储读写失败
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store failure during %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreFailure
}
