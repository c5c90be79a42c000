package report_test

import (
	"testing"

	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report/reporttest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAmountLeftOver 测试结余计算
func TestAmountLeftOver(t *testing.T) {
	cases := []struct {
		planned, spent, want string
	}{
		{"6000", "5500", "500"},
		{"100", "250", "0"},
		{"100.555", "0", "100.56"},
		{"0", "0", "0"},
	}
	for _, tc := range cases {
		got := report.AmountLeftOver(decimal.RequireFromString(tc.planned), decimal.RequireFromString(tc.spent))
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%s - %s = %s", tc.planned, tc.spent, got)
	}
}

// TestNormalize_RecomputesDerivedFields 测试派生字段总是重新计算
func TestNormalize_RecomputesDerivedFields(t *testing.T) {
	f := report.NewFields().
		Set(report.OutcomeField(1, report.SuffixFundingPlanned), reporttest.Num("1000")).
		Set(report.OutcomeField(1, report.SuffixFundingSpent), reporttest.Num("400")).
		Set(report.OutcomeField(1, report.SuffixAmountLeftOver), reporttest.Num("999")).
		Set(report.OutcomeField(2, report.SuffixAchieved), report.String("Trained 40 teachers")).
		Set(report.OutcomeField(3, report.SuffixAchieved), report.String("   "))

	out := report.Normalize(f)

	left, ok := out.Number("outcome1AmountLeftOver")
	require.True(t, ok)
	assert.True(t, left.Equal(decimal.NewFromInt(600)))
	assert.True(t, out.Bool(report.IncludeAchievedOutcomeField(2)))
	assert.False(t, out.Has(report.IncludeAchievedOutcomeField(3)))
	assert.False(t, out.Has("outcome2AmountLeftOver"))

	// 输入不被修改
	orig, _ := f.Number("outcome1AmountLeftOver")
	assert.True(t, orig.Equal(decimal.NewFromInt(999)))
}

// TestNormalize_Idempotent 测试重复归一化结果不变
func TestNormalize_Idempotent(t *testing.T) {
	once := report.Normalize(reporttest.CompleteFields())
	twice := report.Normalize(once)
	assert.True(t, once.Equal(twice))
}

// TestSummarizeFunding 测试资金汇总只统计计入的成果
func TestSummarizeFunding(t *testing.T) {
	f := report.NewFields().
		Set(report.FieldTotalFundingAmount, reporttest.Num("10000")).
		Set(report.OutcomeField(1, report.SuffixFundingPlanned), reporttest.Num("4000")).
		Set(report.OutcomeField(1, report.SuffixFundingSpent), reporttest.Num("3500")).
		Set(report.IncludeOutcomeField(2), report.Bool(true)).
		Set(report.OutcomeField(2, report.SuffixFundingPlanned), reporttest.Num("2500")).
		Set(report.OutcomeField(3, report.SuffixFundingPlanned), reporttest.Num("9000"))

	s := report.SummarizeFunding(f)
	assert.True(t, s.Total.Equal(decimal.NewFromInt(10000)))
	assert.True(t, s.Planned.Equal(decimal.NewFromInt(6500)))
	assert.True(t, s.Remaining.Equal(decimal.NewFromInt(3500)))
	assert.True(t, s.Surplus.Equal(decimal.NewFromInt(3000)))
	assert.False(t, s.Exceeded)
	require.Len(t, s.Outcomes, 3)
	assert.False(t, s.Outcomes[2].Included)

	f.Set(report.IncludeOutcomeField(3), report.Bool(true))
	s = report.SummarizeFunding(f)
	assert.True(t, s.Exceeded)
	assert.True(t, s.Remaining.IsZero())
}
