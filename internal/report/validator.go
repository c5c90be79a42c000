package report

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion 电话号码默认地区
const DefaultPhoneRegion = "GB"

// requiredFields 提交时必填字段及提示
var requiredFields = []struct {
	Field   string
	Message string
}{
	{FieldOrganizationName, "Organization name is required"},
	{FieldTotalFundingAmount, "Total funding amount is required"},
	{FieldDateFundingStarted, "Date funding started is required"},
	{FieldPriorityObjective, "Please select a priority objective"},
	{FieldCoverageObjective, "Please select an objective"},
	{FieldProjectName, "Project name is required"},
	{FieldProjectSummary, "Project summary is required"},
	{FieldProjectCountry, "Please select at least one country"},
	{FieldContactName, "Contact name is required"},
	{FieldPosition, "Position is required"},
	{FieldEmail, "Email is required"},
	{FieldTelephone, "Telephone is required"},
	{FieldLocality, "Locality is required"},
	{FieldRegion, "Region is required"},
	{FieldCity, "City is required"},
	{OutcomeField(1, SuffixQualitative), "Outcome 1 qualitative description is required"},
	{OutcomeField(1, SuffixQuantitative), "Outcome 1 quantitative measure is required"},
}

// contractThreshold 合作方参与比例达到该值时必须上传合同
var contractThreshold = decimal.NewFromInt(50)

var hundred = decimal.NewFromInt(100)

// Validator 报告校验器
// 无状态,可并发使用
type Validator struct {
	shape       *validator.Validate
	phoneRegion string
}

// Option 校验器选项
type Option func(*Validator)

// WithPhoneRegion 设置电话号码校验地区(ISO 3166 代码)
func WithPhoneRegion(region string) Option {
	return func(v *Validator) {
		if region != "" {
			v.phoneRegion = strings.ToUpper(region)
		}
	}
}

// NewValidator 创建校验器
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		shape:       newShapeValidator(),
		phoneRegion: DefaultPhoneRegion,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate 校验字段
// 宽松模式只检查结构,严格模式额外检查必填、跨字段和派生一致性
func (v *Validator) Validate(f *Fields, mode Mode) Result {
	c := &collector{}

	// 1. 结构规则
	checkKinds(c, f, "", topLevelSchema)
	c.shapeViolations(v.shape.Struct(buildShapeForm(f)))
	checkNumbers(c, f)

	if mode != ModeStrict {
		return c.result()
	}

	// 2. 必填规则
	for _, r := range requiredFields {
		if f.IsBlank(r.Field) {
			c.errorf(r.Field, RuleRequired, "%s", r.Message)
		}
	}

	// 3. 跨字段规则
	checkPartners(c, f)
	checkIncludedOutcomes(c, f)
	checkFunding(c, f)
	checkEthnicities(c, f)
	checkGeographyItems(c, f)

	// 4. 派生一致性(仅警告)
	checkBreakdownSums(c, f)
	checkDerived(c, f)
	v.checkTelephone(c, f)

	return c.result()
}

// ValidateRejection 校验驳回意见
func ValidateRejection(comment string) Result {
	c := &collector{}
	if strings.TrimSpace(comment) == "" {
		c.errorf(FieldRejectionComment, RuleRequired, "A rejection comment is required")
	}
	return c.result()
}

// checkKinds 已知字段类型必须与目录一致
func checkKinds(c *collector, f *Fields, prefix string, schema schemaFunc) {
	for _, name := range f.Keys() {
		spec, ok := schema(name)
		if !ok {
			continue
		}
		val, _ := f.Get(name)
		field := prefix + name
		if val.Kind() != spec.Kind {
			c.errorf(field, RuleType, "Expected %s, got %s", spec.Kind, val.Kind())
			continue
		}
		if spec.Item == nil {
			continue
		}
		switch spec.Kind {
		case KindObject:
			obj, _ := val.AsObject()
			checkKinds(c, obj, field+".", itemSchema(spec.Item))
		case KindObjectList:
			items, _ := val.AsObjectList()
			for i, item := range items {
				checkKinds(c, item, fmt.Sprintf("%s[%d].", field, i), itemSchema(spec.Item))
			}
		}
	}
}

func isBeneficiaryCount(name string) bool {
	for _, b := range beneficiaryCountFields {
		if b == name {
			return true
		}
	}
	return false
}

// checkNumbers 数值字段非负、范围和整数规则
func checkNumbers(c *collector, f *Fields) {
	for _, name := range f.Keys() {
		spec, ok := Lookup(name)
		if !ok || spec.Kind != KindNumber {
			continue
		}
		d, ok := f.Number(name)
		if !ok {
			continue
		}

		if name == FieldPartnershipInvolvement {
			if d.IsNegative() || d.GreaterThan(hundred) {
				c.errorf(name, RuleRange, "Must be between 0 and 100")
			}
			continue
		}
		if d.IsNegative() {
			c.errorf(name, RuleNonNegative, "Must be at least 0")
			continue
		}
		if isBeneficiaryCount(name) && !d.IsInteger() {
			c.errorf(name, RuleWholeNumber, "Must be a whole number")
		}
	}

	for i, item := range f.ObjectList(FieldGeographyBreakdown) {
		for _, name := range []string{FieldDirectBeneficiaries, FieldIndirectBeneficiaries} {
			d, ok := item.Number(name)
			if !ok {
				continue
			}
			field := fmt.Sprintf("%s[%d].%s", FieldGeographyBreakdown, i, name)
			if d.IsNegative() {
				c.errorf(field, RuleNonNegative, "Must be at least 0")
			} else if !d.IsInteger() {
				c.errorf(field, RuleWholeNumber, "Must be a whole number")
			}
		}
	}
}

// checkPartners 合作方相关规则,包括合同要求
func checkPartners(c *collector, f *Fields) {
	if !f.Bool(FieldHasPartners) {
		return
	}
	if f.IsBlank(FieldPartnerOrganizations) {
		c.errorf(FieldPartnerOrganizations, RuleRequiredWithPartners,
			"Partner organizations are required when partners are used")
	}

	involvement, ok := f.Number(FieldPartnershipInvolvement)
	if !f.Has(FieldPartnershipInvolvement) {
		c.errorf(FieldPartnershipInvolvement, RuleRequiredWithPartners,
			"Partnership involvement percentage is required when partners are used")
	}
	if ok && involvement.GreaterThanOrEqual(contractThreshold) && !HasContract(f) {
		c.errorf(FieldPartnerContract, RuleContractRequired,
			"A partner contract is required when partnership involvement is %s%% or more", contractThreshold)
	}
}

// HasContract 判断是否已上传合作合同
func HasContract(f *Fields) bool {
	return strings.TrimSpace(f.Object(FieldPartnerContract).String("url")) != ""
}

// checkIncludedOutcomes 计入的成果 2/3 必须填写描述
func checkIncludedOutcomes(c *collector, f *Fields) {
	for n := 2; n <= MaxOutcomes; n++ {
		if !OutcomeIncluded(f, n) {
			continue
		}
		for _, suffix := range []string{SuffixQualitative, SuffixQuantitative} {
			name := OutcomeField(n, suffix)
			if f.IsBlank(name) {
				c.errorf(name, RuleRequiredWithOutcome, "Outcome %d details are required when included", n)
			}
		}
	}
}

// checkFunding 资助总额必须为正,计划资金合计不得超过总额
func checkFunding(c *collector, f *Fields) {
	total, ok := f.Number(FieldTotalFundingAmount)
	if !ok {
		return
	}
	if total.IsZero() {
		c.errorf(FieldTotalFundingAmount, RulePositive, "Amount must be positive")
	}

	summary := SummarizeFunding(f)
	if summary.Exceeded {
		c.addInStep(StepAchievedOutcomes, FieldTotalFundingAmount, RuleFundingExceedsTotal, SeverityError,
			"Planned funding (%s) exceeds the total funding amount (%s)",
			summary.Planned.StringFixed(2), total.StringFixed(2))
	}
}

// checkEthnicities 选择 "please describe" 选项时必须填写说明
func checkEthnicities(c *collector, f *Fields) {
	selected := make(map[string]bool)
	for _, e := range f.StringList(FieldDetailedEthnicities) {
		selected[e] = true
	}
	for _, e := range ethnicityDescriptions {
		if selected[e.Option] && f.IsBlank(e.Field) {
			c.errorf(e.Field, RuleEthnicityDescription, "Please describe %q", strings.TrimSuffix(e.Option, ", please describe"))
		}
	}
}

// checkGeographyItems 地区分布每项必须有国家和城市
func checkGeographyItems(c *collector, f *Fields) {
	for i, item := range f.ObjectList(FieldGeographyBreakdown) {
		if item.IsBlank("country") {
			c.errorf(fmt.Sprintf("%s[%d].country", FieldGeographyBreakdown, i), RuleRequired, "Country is required")
		}
		if item.IsBlank("city") {
			c.errorf(fmt.Sprintf("%s[%d].city", FieldGeographyBreakdown, i), RuleRequired, "City is required")
		}
	}
}

func sumOf(f *Fields, names ...string) (decimal.Decimal, bool) {
	sum := decimal.Zero
	positive := false
	for _, name := range names {
		d := f.NumberOrZero(name)
		if d.IsPositive() {
			positive = true
		}
		sum = sum.Add(d)
	}
	return sum, positive
}

// checkBreakdownSums 性别、年龄、地区分布合计应与受益人总数一致
func checkBreakdownSums(c *collector, f *Fields) {
	groups := []struct {
		total  string
		gender []string
		age    []string
	}{
		{
			total:  FieldDirectBeneficiaries,
			gender: []string{"maleBeneficiaries", "femaleBeneficiaries"},
			age:    []string{"under18Beneficiaries", "age18to34Beneficiaries", "age35to54Beneficiaries", "over55Beneficiaries"},
		},
		{
			total:  FieldIndirectBeneficiaries,
			gender: []string{"maleIndirectBeneficiaries", "femaleIndirectBeneficiaries"},
			age: []string{"under18IndirectBeneficiaries", "age18to34IndirectBeneficiaries",
				"age35to54IndirectBeneficiaries", "over55IndirectBeneficiaries"},
		},
	}

	for _, g := range groups {
		total := f.NumberOrZero(g.total)
		if sum, positive := sumOf(f, g.gender...); positive && !sum.Equal(total) {
			c.warnf(g.total, RuleGenderSumMismatch,
				"Gender breakdown (%s) does not match %s (%s)", sum, g.total, total)
		}
		if sum, positive := sumOf(f, g.age...); positive && !sum.Equal(total) {
			c.warnf(g.total, RuleAgeSumMismatch,
				"Age breakdown (%s) does not match %s (%s)", sum, g.total, total)
		}
	}

	items := f.ObjectList(FieldGeographyBreakdown)
	if len(items) == 0 {
		return
	}
	geoDirect, geoIndirect := decimal.Zero, decimal.Zero
	for _, item := range items {
		geoDirect = geoDirect.Add(item.NumberOrZero(FieldDirectBeneficiaries))
		geoIndirect = geoIndirect.Add(item.NumberOrZero(FieldIndirectBeneficiaries))
	}
	if !geoDirect.Add(geoIndirect).IsPositive() {
		return
	}
	if direct := f.NumberOrZero(FieldDirectBeneficiaries); !geoDirect.Equal(direct) {
		c.warnf(FieldDirectBeneficiaries, RuleGeographySumMismatch,
			"Geography breakdown (%s) does not match %s (%s)", geoDirect, FieldDirectBeneficiaries, direct)
	}
	if indirect := f.NumberOrZero(FieldIndirectBeneficiaries); !geoIndirect.Equal(indirect) {
		c.warnf(FieldIndirectBeneficiaries, RuleGeographySumMismatch,
			"Geography breakdown (%s) does not match %s (%s)", geoIndirect, FieldIndirectBeneficiaries, indirect)
	}
}

// checkDerived 提交的结余与重新计算的值不一致时给出警告
func checkDerived(c *collector, f *Fields) {
	for n := 1; n <= MaxOutcomes; n++ {
		name := OutcomeField(n, SuffixAmountLeftOver)
		supplied, ok := f.Number(name)
		if !ok {
			continue
		}
		expected := AmountLeftOver(
			f.NumberOrZero(OutcomeField(n, SuffixFundingPlanned)),
			f.NumberOrZero(OutcomeField(n, SuffixFundingSpent)),
		)
		if !supplied.Equal(expected) {
			c.warnf(name, RuleDerivedOverridden,
				"Supplied value %s was replaced by the recomputed value %s", supplied, expected)
		}
	}
}

// checkTelephone 号码格式正确但不是有效号码时给出警告
func (v *Validator) checkTelephone(c *collector, f *Fields) {
	tel := strings.TrimSpace(f.String(FieldTelephone))
	if tel == "" || !telephonePattern.MatchString(tel) {
		return
	}
	num, err := libphonenumber.Parse(tel, v.phoneRegion)
	if err != nil || !libphonenumber.IsValidNumber(num) {
		c.warnf(FieldTelephone, RuleTelephoneUnverified,
			"Telephone number could not be verified for region %s", v.phoneRegion)
	}
}
