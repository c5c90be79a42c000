// Package reporttest 提供报告测试数据
package reporttest

import (
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/shopspring/decimal"
)

// Num 由字符串构造数字值
func Num(s string) report.Value {
	return report.Number(decimal.RequireFromString(s))
}

// CompleteFields 返回一份可通过严格校验的报告,资助总额 10000
func CompleteFields() *report.Fields {
	return report.NewFields().
		Set(report.FieldOrganizationName, report.String("Helping Hands")).
		Set(report.FieldCharityRegistrationNumber, report.String("1234567")).
		Set(report.FieldTotalFundingAmount, Num("10000")).
		Set(report.FieldDateFundingStarted, report.Date(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))).
		Set(report.FieldPriorityObjective, report.String("Education")).
		Set(report.FieldCoverageObjective, report.String("Access to schooling")).
		Set(report.FieldProjectName, report.String("Clean Water")).
		Set(report.FieldProjectSummary, report.String("Wells and filters for three villages")).
		Set(report.FieldProjectCountry, report.StringList("Kenya")).
		Set(report.FieldHasPartners, report.Bool(false)).
		Set(report.FieldContactName, report.String("Jane Doe")).
		Set(report.FieldPosition, report.String("Programme Lead")).
		Set(report.FieldEmail, report.String("jane@example.org")).
		Set(report.FieldTelephone, report.String("+44 20 7946 0958")).
		Set(report.FieldLocality, report.String("Kibera")).
		Set(report.FieldRegion, report.String("Nairobi County")).
		Set(report.FieldCity, report.String("Nairobi")).
		Set(report.OutcomeField(1, report.SuffixQualitative), report.String("Safer drinking water")).
		Set(report.OutcomeField(1, report.SuffixQuantitative), report.String("3 wells built")).
		Set(report.OutcomeField(1, report.SuffixFundingPlanned), Num("6000")).
		Set(report.OutcomeField(1, report.SuffixFundingSpent), Num("5500"))
}

// DraftFields 返回只填写了部分内容的草稿
func DraftFields() *report.Fields {
	return report.NewFields().
		Set(report.FieldProjectName, report.String("Clean Water")).
		Set(report.OutcomeField(1, report.SuffixFundingPlanned), Num("800")).
		Set(report.OutcomeField(1, report.SuffixFundingSpent), Num("650.5"))
}
