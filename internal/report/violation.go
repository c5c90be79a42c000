package report

import (
	"fmt"
	"sort"
	"strings"
)

// Mode 校验模式
type Mode string

const (
	// ModeLenient 仅校验结构,用于保存草稿
	ModeLenient Mode = "lenient"
	// ModeStrict 完整性与跨字段规则,用于提交
	ModeStrict Mode = "strict"
)

// ParseMode 解析校验模式
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLenient, ModeStrict:
		return Mode(s), nil
	case "":
		return ModeLenient, nil
	}
	return "", fmt.Errorf("unknown validation mode %q", s)
}

// Severity 违规级别
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// 规则名称
const (
	RuleType                 = "type"
	RuleNonNegative          = "non_negative"
	RuleRange                = "range"
	RuleMaxLength            = "max_length"
	RuleMaxWords             = "max_words"
	RuleMaxItems             = "max_items"
	RuleEmail                = "email"
	RuleTelephoneFormat      = "telephone_format"
	RuleFileURLRequired      = "file_url_required"
	RuleFileType             = "file_type"
	RuleWholeNumber          = "whole_number"
	RuleRequired             = "required"
	RuleRequiredWithPartners = "required_with_partners"
	RuleContractRequired     = "contract_required"
	RuleRequiredWithOutcome  = "required_with_outcome"
	RuleFundingExceedsTotal  = "funding_exceeds_total"
	RuleEthnicityDescription = "ethnicity_description_required"
	RulePositive             = "positive"
	RuleGenderSumMismatch    = "gender_sum_mismatch"
	RuleAgeSumMismatch       = "age_sum_mismatch"
	RuleGeographySumMismatch = "geography_sum_mismatch"
	RuleDerivedOverridden    = "derived_overridden"
	RuleTelephoneUnverified  = "telephone_unverified"
)

// Violation 单条校验违规
type Violation struct {
	Field    string   `json:"field"`
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Step     Step     `json:"step"`
}

// StepViolations 按步骤分组的违规
type StepViolations struct {
	Step       Step        `json:"step"`
	Violations []Violation `json:"violations"`
}

// Result 校验结果
type Result struct {
	OK         bool        `json:"ok"`
	Violations []Violation `json:"violations"`
}

// Errors 返回 error 级别的违规
func (r Result) Errors() []Violation {
	return r.filter(SeverityError)
}

// Warnings 返回 warning 级别的违规
func (r Result) Warnings() []Violation {
	return r.filter(SeverityWarning)
}

func (r Result) filter(s Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == s {
			out = append(out, v)
		}
	}
	return out
}

// Has 判断是否包含指定字段和规则的违规
func (r Result) Has(field, rule string) bool {
	for _, v := range r.Violations {
		if v.Field == field && v.Rule == rule {
			return true
		}
	}
	return false
}

// ByStep 按表单步骤分组,步骤顺序与表单一致
func (r Result) ByStep() []StepViolations {
	var groups []StepViolations
	for _, v := range r.Violations {
		if n := len(groups); n > 0 && groups[n-1].Step == v.Step {
			groups[n-1].Violations = append(groups[n-1].Violations, v)
			continue
		}
		groups = append(groups, StepViolations{Step: v.Step, Violations: []Violation{v}})
	}
	return groups
}

// baseField 去掉列表下标和成员名,如 geographyBreakdown[0].city -> geographyBreakdown
func baseField(name string) string {
	if i := strings.IndexAny(name, "[."); i >= 0 {
		return name[:i]
	}
	return name
}

// collector 收集违规并保证输出顺序确定
type collector struct {
	violations []Violation
}

func (c *collector) add(field, rule string, severity Severity, format string, args ...any) {
	c.addInStep(StepOf(baseField(field)), field, rule, severity, format, args...)
}

func (c *collector) addInStep(step Step, field, rule string, severity Severity, format string, args ...any) {
	if step == "" {
		step = StepReview
	}
	c.violations = append(c.violations, Violation{
		Field:    field,
		Rule:     rule,
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
		Step:     step,
	})
}

func (c *collector) errorf(field, rule, format string, args ...any) {
	c.add(field, rule, SeverityError, format, args...)
}

func (c *collector) warnf(field, rule, format string, args ...any) {
	c.add(field, rule, SeverityWarning, format, args...)
}

// result 按步骤、字段目录顺序排序,同一字段保持规则产生顺序
func (c *collector) result() Result {
	sort.SliceStable(c.violations, func(i, j int) bool {
		a, b := c.violations[i], c.violations[j]
		if ra, rb := stepRank(a.Step), stepRank(b.Step); ra != rb {
			return ra < rb
		}
		return fieldOrder(baseField(a.Field)) < fieldOrder(baseField(b.Field))
	})

	ok := true
	for _, v := range c.violations {
		if v.Severity == SeverityError {
			ok = false
			break
		}
	}
	if c.violations == nil {
		c.violations = []Violation{}
	}
	return Result{OK: ok, Violations: c.violations}
}
