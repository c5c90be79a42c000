package report

import "fmt"

// Step 表单步骤,用于对校验结果分组
type Step string

const (
	StepProjectDetails   Step = "project_details"
	StepExpectedOutcomes Step = "expected_outcomes"
	StepAchievedOutcomes Step = "achieved_outcomes"
	StepOutcomeAnalysis  Step = "outcome_analysis"
	StepReview           Step = "review"
)

var stepOrder = map[Step]int{
	StepProjectDetails:   0,
	StepExpectedOutcomes: 1,
	StepAchievedOutcomes: 2,
	StepOutcomeAnalysis:  3,
	StepReview:           4,
}

// Steps 按表单顺序返回全部步骤
func Steps() []Step {
	return []Step{StepProjectDetails, StepExpectedOutcomes, StepAchievedOutcomes, StepOutcomeAnalysis, StepReview}
}

// MaxOutcomes 每份报告最多三个成果
const MaxOutcomes = 3

// MaxImagesPerOutcome 每个成果最多上传的配图数量
const MaxImagesPerOutcome = 20

// 常用字段名
const (
	FieldOrganizationName          = "organizationName"
	FieldCharityRegistrationNumber = "charityRegistrationNumber"
	FieldTotalFundingAmount        = "totalFundingAmount"
	FieldDateFundingStarted        = "dateFundingStarted"
	FieldPriorityObjective         = "priorityObjective"
	FieldCoverageObjective         = "coverageObjective"
	FieldProjectName               = "projectName"
	FieldProjectSummary            = "projectSummary"
	FieldProjectCountry            = "projectCountry"
	FieldHasPartners               = "hasPartners"
	FieldPartnerOrganizations      = "partnerOrganizations"
	FieldPartnershipInvolvement    = "partnershipInvolvement"
	FieldPartnerContract           = "partnerContract"
	FieldContactName               = "contactName"
	FieldPosition                  = "position"
	FieldEmail                     = "email"
	FieldTelephone                 = "telephone"
	FieldDateImpactReportSubmitted = "dateImpactReportSubmitted"
	FieldLocality                  = "locality"
	FieldRegion                    = "region"
	FieldCity                      = "city"
	FieldPostcode                  = "postcode"

	FieldDirectBeneficiaries   = "directBeneficiaries"
	FieldIndirectBeneficiaries = "indirectBeneficiaries"
	FieldGeographyBreakdown    = "geographyBreakdown"
	FieldDetailedEthnicities   = "detailedEthnicities"

	// FieldRejectionComment 不属于表单,仅用于驳回校验
	FieldRejectionComment = "rejectionComment"
)

// 成果字段后缀
const (
	SuffixQualitative      = "Qualitative"
	SuffixQuantitative     = "Quantitative"
	SuffixAchieved         = "Achieved"
	SuffixFundingPlanned   = "FundingPlanned"
	SuffixFundingSpent     = "FundingSpent"
	SuffixDifferenceReason = "DifferenceReason"
	SuffixSurplusPlans     = "SurplusPlans"
	SuffixAmountLeftOver   = "AmountLeftOver"
	SuffixImages           = "Images"
	SuffixStory            = "Story"
	SuffixInterviews       = "Interviews"
	SuffixSocialMedia      = "SocialMedia"
)

// OutcomeField 生成成果字段名,如 outcome2FundingPlanned
func OutcomeField(n int, suffix string) string {
	return fmt.Sprintf("outcome%d%s", n, suffix)
}

// IncludeOutcomeField 预期成果开关字段
func IncludeOutcomeField(n int) string {
	return fmt.Sprintf("includeOutcome%d", n)
}

// IncludeAchievedOutcomeField 实际成果开关字段
func IncludeAchievedOutcomeField(n int) string {
	return fmt.Sprintf("includeAchievedOutcome%d", n)
}

// FieldSpec 字段定义
type FieldSpec struct {
	Name string
	Kind Kind
	Step Step
	// Item 对象或对象列表的成员类型
	Item  map[string]Kind
	index int
}

// 文件元数据结构,用于图片与合同
var fileItem = map[string]Kind{
	"name":       KindString,
	"url":        KindString,
	"fileName":   KindString,
	"uploadedAt": KindString,
}

var geographyItem = map[string]Kind{
	"country":               KindString,
	"region":                KindString,
	"city":                  KindString,
	"directBeneficiaries":   KindNumber,
	"indirectBeneficiaries": KindNumber,
}

// beneficiaryCountFields 受益人分组统计字段
var beneficiaryCountFields = []string{
	FieldDirectBeneficiaries,
	FieldIndirectBeneficiaries,
	"maleBeneficiaries",
	"femaleBeneficiaries",
	"under18Beneficiaries",
	"age18to34Beneficiaries",
	"age35to54Beneficiaries",
	"over55Beneficiaries",
	"maleIndirectBeneficiaries",
	"femaleIndirectBeneficiaries",
	"under18IndirectBeneficiaries",
	"age18to34IndirectBeneficiaries",
	"age35to54IndirectBeneficiaries",
	"over55IndirectBeneficiaries",
}

// ethnicityDescriptions "please describe" 选项与补充说明字段的对应关系
var ethnicityDescriptions = []struct {
	Option string
	Field  string
}{
	{"Any other White background, please describe", "otherWhiteBackground"},
	{"Any other Mixed/Multiple ethnic background, please describe", "otherMixedBackground"},
	{"Any other Asian background, please describe", "otherAsianBackground"},
	{"Any other Black/African/Caribbean background, please describe", "otherBlackBackground"},
	{"Any other ethnic group, please describe", "otherEthnicGroup"},
}

var (
	catalog      []FieldSpec
	catalogIndex map[string]int
)

func init() {
	add := func(step Step, kind Kind, item map[string]Kind, names ...string) {
		for _, name := range names {
			catalog = append(catalog, FieldSpec{Name: name, Kind: kind, Step: step, Item: item})
		}
	}

	// 1. 项目信息
	add(StepProjectDetails, KindString, nil, FieldOrganizationName, FieldCharityRegistrationNumber)
	add(StepProjectDetails, KindNumber, nil, FieldTotalFundingAmount)
	add(StepProjectDetails, KindDate, nil, FieldDateFundingStarted)
	add(StepProjectDetails, KindString, nil, FieldPriorityObjective, FieldCoverageObjective, FieldProjectName, FieldProjectSummary)
	add(StepProjectDetails, KindStringList, nil, FieldProjectCountry)
	add(StepProjectDetails, KindBool, nil, FieldHasPartners)
	add(StepProjectDetails, KindString, nil, FieldPartnerOrganizations)
	add(StepProjectDetails, KindNumber, nil, FieldPartnershipInvolvement)
	add(StepProjectDetails, KindObject, fileItem, FieldPartnerContract)
	add(StepProjectDetails, KindString, nil, FieldContactName, FieldPosition, FieldEmail, FieldTelephone)
	add(StepProjectDetails, KindDate, nil, FieldDateImpactReportSubmitted)
	add(StepProjectDetails, KindString, nil, FieldLocality, FieldRegion, FieldCity, FieldPostcode)

	// 2. 预期成果
	for n := 1; n <= MaxOutcomes; n++ {
		if n > 1 {
			add(StepExpectedOutcomes, KindBool, nil, IncludeOutcomeField(n))
		}
		add(StepExpectedOutcomes, KindString, nil, OutcomeField(n, SuffixQualitative), OutcomeField(n, SuffixQuantitative))
	}

	// 3. 实际成果
	for n := 1; n <= MaxOutcomes; n++ {
		if n > 1 {
			add(StepAchievedOutcomes, KindBool, nil, IncludeAchievedOutcomeField(n))
		}
		add(StepAchievedOutcomes, KindString, nil, OutcomeField(n, SuffixAchieved))
		add(StepAchievedOutcomes, KindNumber, nil, OutcomeField(n, SuffixFundingPlanned), OutcomeField(n, SuffixFundingSpent))
		add(StepAchievedOutcomes, KindString, nil, OutcomeField(n, SuffixDifferenceReason), OutcomeField(n, SuffixSurplusPlans))
		add(StepAchievedOutcomes, KindNumber, nil, OutcomeField(n, SuffixAmountLeftOver))
		add(StepAchievedOutcomes, KindObjectList, fileItem, OutcomeField(n, SuffixImages))
		add(StepAchievedOutcomes, KindString, nil,
			OutcomeField(n, SuffixStory), OutcomeField(n, SuffixInterviews), OutcomeField(n, SuffixSocialMedia))
	}

	// 4. 成果分析
	add(StepOutcomeAnalysis, KindNumber, nil, beneficiaryCountFields...)
	add(StepOutcomeAnalysis, KindObjectList, geographyItem, FieldGeographyBreakdown)
	add(StepOutcomeAnalysis, KindStringList, nil, FieldDetailedEthnicities)
	for _, e := range ethnicityDescriptions {
		add(StepOutcomeAnalysis, KindString, nil, e.Field)
	}

	// 5. 审核
	add(StepReview, KindString, nil, FieldRejectionComment)

	catalogIndex = make(map[string]int, len(catalog))
	for i := range catalog {
		catalog[i].index = i
		catalogIndex[catalog[i].Name] = i
	}
}

// Lookup 查找字段定义
func Lookup(name string) (FieldSpec, bool) {
	i, ok := catalogIndex[name]
	if !ok {
		return FieldSpec{}, false
	}
	return catalog[i], true
}

// Catalog 返回全部字段定义(按表单顺序)
func Catalog() []FieldSpec {
	out := make([]FieldSpec, len(catalog))
	copy(out, catalog)
	return out
}

// StepOf 返回字段所属步骤,未知字段返回空
func StepOf(name string) Step {
	if spec, ok := Lookup(name); ok {
		return spec.Step
	}
	return ""
}

// fieldOrder 用于排序,未知字段排在最后
func fieldOrder(name string) int {
	if i, ok := catalogIndex[name]; ok {
		return i
	}
	return len(catalog)
}

func stepRank(s Step) int {
	if r, ok := stepOrder[s]; ok {
		return r
	}
	return len(stepOrder)
}
