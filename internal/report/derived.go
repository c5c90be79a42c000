package report

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountLeftOver 结余 = max(0, planned - spent),保留两位小数
func AmountLeftOver(planned, spent decimal.Decimal) decimal.Decimal {
	left := planned.Sub(spent)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left.Round(2)
}

// OutcomeIncluded 判断成果是否计入(成果 1 始终计入)
func OutcomeIncluded(f *Fields, n int) bool {
	if n == 1 {
		return true
	}
	return f.Bool(IncludeOutcomeField(n))
}

// Normalize 重新计算派生字段,返回新的字段映射
// 结余字段始终重新计算,实际成果开关根据成果描述推导
func Normalize(f *Fields) *Fields {
	out := f.Clone()
	for n := 1; n <= MaxOutcomes; n++ {
		plannedName := OutcomeField(n, SuffixFundingPlanned)
		spentName := OutcomeField(n, SuffixFundingSpent)
		leftName := OutcomeField(n, SuffixAmountLeftOver)
		// 没有任何资金字段的成果不生成结余
		if out.Has(plannedName) || out.Has(spentName) || out.Has(leftName) {
			left := AmountLeftOver(out.NumberOrZero(plannedName), out.NumberOrZero(spentName))
			out.Set(leftName, Number(left))
		}

		if n > 1 && strings.TrimSpace(out.String(OutcomeField(n, SuffixAchieved))) != "" {
			out.Set(IncludeAchievedOutcomeField(n), Bool(true))
		}
	}
	return out
}

// OutcomeFunding 单个成果的资金情况
type OutcomeFunding struct {
	Outcome  int             `json:"outcome"`
	Included bool            `json:"included"`
	Planned  decimal.Decimal `json:"planned"`
	Spent    decimal.Decimal `json:"spent"`
	LeftOver decimal.Decimal `json:"left_over"`
}

// FundingSummary 资金分配汇总
type FundingSummary struct {
	Total     decimal.Decimal  `json:"total"`
	Planned   decimal.Decimal  `json:"planned"`
	Spent     decimal.Decimal  `json:"spent"`
	Remaining decimal.Decimal  `json:"remaining"`
	Surplus   decimal.Decimal  `json:"surplus"`
	Exceeded  bool             `json:"exceeded"`
	Outcomes  []OutcomeFunding `json:"outcomes"`
}

// SummarizeFunding 计算资金分配汇总,仅统计已计入的成果
func SummarizeFunding(f *Fields) FundingSummary {
	summary := FundingSummary{
		Total:     f.NumberOrZero(FieldTotalFundingAmount),
		Planned:   decimal.Zero,
		Spent:     decimal.Zero,
		Surplus:   decimal.Zero,
		Remaining: decimal.Zero,
	}

	for n := 1; n <= MaxOutcomes; n++ {
		of := OutcomeFunding{
			Outcome:  n,
			Included: OutcomeIncluded(f, n),
			Planned:  f.NumberOrZero(OutcomeField(n, SuffixFundingPlanned)),
			Spent:    f.NumberOrZero(OutcomeField(n, SuffixFundingSpent)),
		}
		of.LeftOver = AmountLeftOver(of.Planned, of.Spent)
		if of.Included {
			summary.Planned = summary.Planned.Add(of.Planned)
			summary.Spent = summary.Spent.Add(of.Spent)
			summary.Surplus = summary.Surplus.Add(of.LeftOver)
		}
		summary.Outcomes = append(summary.Outcomes, of)
	}

	summary.Exceeded = summary.Planned.GreaterThan(summary.Total)
	if !summary.Exceeded {
		summary.Remaining = summary.Total.Sub(summary.Planned)
	}
	return summary
}
