package utils

import (
	"errors"
	"strings"
)

// ErrSortFieldNotAllowed 排序字段不在允许列表中
var ErrSortFieldNotAllowed = errors.New("sort field is not allowed")

// ValidateSortField 验证排序字段,只接受允许列表中的列名
func ValidateSortField(field string, allowed ...string) error {
	if field == "" {
		return errors.New("sort field cannot be empty")
	}
	if !identifierPattern.MatchString(field) {
		return errors.New("invalid sort field format")
	}
	for _, a := range allowed {
		if a == field {
			return nil
		}
	}
	return ErrSortFieldNotAllowed
}

// ValidateSortOrder 验证排序方向
func ValidateSortOrder(order string) error {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder != "ASC" && upperOrder != "DESC" {
		return errors.New("sort order must be ASC or DESC")
	}
	return nil
}

// SanitizeSortOrder 清理排序方向,非法值按降序处理
func SanitizeSortOrder(order string) string {
	upperOrder := strings.ToUpper(strings.TrimSpace(order))
	if upperOrder == "ASC" || upperOrder == "DESC" {
		return upperOrder
	}
	return "DESC"
}
