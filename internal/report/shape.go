package report

import (
	"errors"
	"net/url"
	"path"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var telephonePattern = regexp.MustCompile(`^\+?[0-9\s]+$`)

// contractExtensions 合同允许的文件类型
var contractExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

// fileForm 图片元数据
type fileForm struct {
	URL string `field:"url" validate:"required"`
}

// contractForm 合同元数据,Document 取 fileName,缺失时取 url 路径
type contractForm struct {
	URL      string `field:"url" validate:"required"`
	Document string `field:"fileName" validate:"omitempty,contractfile"`
}

// shapeForm 字符串与列表字段的结构规则
type shapeForm struct {
	OrganizationName          string        `field:"organizationName" validate:"max=255"`
	CharityRegistrationNumber string        `field:"charityRegistrationNumber" validate:"max=50"`
	ProjectName               string        `field:"projectName" validate:"max=100"`
	ProjectSummary            string        `field:"projectSummary" validate:"maxwords=50"`
	PartnerOrganizations      string        `field:"partnerOrganizations" validate:"max=255"`
	PartnerContract           *contractForm `field:"partnerContract" validate:"omitempty"`
	ContactName               string        `field:"contactName" validate:"max=100"`
	Position                  string        `field:"position" validate:"max=100"`
	Email                     string        `field:"email" validate:"omitempty,email"`
	Telephone                 string        `field:"telephone" validate:"omitempty,telephone"`

	Outcome1Qualitative  string `field:"outcome1Qualitative" validate:"max=500"`
	Outcome1Quantitative string `field:"outcome1Quantitative" validate:"max=255"`
	Outcome2Qualitative  string `field:"outcome2Qualitative" validate:"max=500"`
	Outcome2Quantitative string `field:"outcome2Quantitative" validate:"max=255"`
	Outcome3Qualitative  string `field:"outcome3Qualitative" validate:"max=500"`
	Outcome3Quantitative string `field:"outcome3Quantitative" validate:"max=255"`

	Outcome1Achieved string     `field:"outcome1Achieved" validate:"max=500"`
	Outcome1Images   []fileForm `field:"outcome1Images" validate:"max=20,dive"`
	Outcome1Story    string     `field:"outcome1Story" validate:"max=1500"`
	Outcome2Achieved string     `field:"outcome2Achieved" validate:"max=500"`
	Outcome2Images   []fileForm `field:"outcome2Images" validate:"max=20,dive"`
	Outcome2Story    string     `field:"outcome2Story" validate:"max=1500"`
	Outcome3Achieved string     `field:"outcome3Achieved" validate:"max=500"`
	Outcome3Images   []fileForm `field:"outcome3Images" validate:"max=20,dive"`
	Outcome3Story    string     `field:"outcome3Story" validate:"max=1500"`
}

// newShapeValidator 注册自定义规则
func newShapeValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("field"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// 注册失败只可能是标签名为空,属于编程错误
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(v.RegisterValidation("maxwords", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(strings.Fields(fl.Field().String())) <= limit
	}))
	must(v.RegisterValidation("telephone", func(fl validator.FieldLevel) bool {
		return telephonePattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidation("contractfile", func(fl validator.FieldLevel) bool {
		return contractExtensions[strings.ToLower(path.Ext(fl.Field().String()))]
	}))
	return v
}

// buildShapeForm 只填入类型正确的值,类型错误由 checkKinds 报告
func buildShapeForm(f *Fields) shapeForm {
	form := shapeForm{
		OrganizationName:          f.String(FieldOrganizationName),
		CharityRegistrationNumber: f.String(FieldCharityRegistrationNumber),
		ProjectName:               f.String(FieldProjectName),
		ProjectSummary:            f.String(FieldProjectSummary),
		PartnerOrganizations:      f.String(FieldPartnerOrganizations),
		ContactName:               f.String(FieldContactName),
		Position:                  f.String(FieldPosition),
		Email:                     strings.TrimSpace(f.String(FieldEmail)),
		Telephone:                 strings.TrimSpace(f.String(FieldTelephone)),

		Outcome1Qualitative:  f.String(OutcomeField(1, SuffixQualitative)),
		Outcome1Quantitative: f.String(OutcomeField(1, SuffixQuantitative)),
		Outcome2Qualitative:  f.String(OutcomeField(2, SuffixQualitative)),
		Outcome2Quantitative: f.String(OutcomeField(2, SuffixQuantitative)),
		Outcome3Qualitative:  f.String(OutcomeField(3, SuffixQualitative)),
		Outcome3Quantitative: f.String(OutcomeField(3, SuffixQuantitative)),

		Outcome1Achieved: f.String(OutcomeField(1, SuffixAchieved)),
		Outcome1Images:   fileForms(f.ObjectList(OutcomeField(1, SuffixImages))),
		Outcome1Story:    f.String(OutcomeField(1, SuffixStory)),
		Outcome2Achieved: f.String(OutcomeField(2, SuffixAchieved)),
		Outcome2Images:   fileForms(f.ObjectList(OutcomeField(2, SuffixImages))),
		Outcome2Story:    f.String(OutcomeField(2, SuffixStory)),
		Outcome3Achieved: f.String(OutcomeField(3, SuffixAchieved)),
		Outcome3Images:   fileForms(f.ObjectList(OutcomeField(3, SuffixImages))),
		Outcome3Story:    f.String(OutcomeField(3, SuffixStory)),
	}

	if c := f.Object(FieldPartnerContract); c.Len() > 0 {
		form.PartnerContract = &contractForm{
			URL:      strings.TrimSpace(c.String("url")),
			Document: contractDocument(c),
		}
	}
	return form
}

func fileForms(items []*Fields) []fileForm {
	if len(items) == 0 {
		return nil
	}
	out := make([]fileForm, len(items))
	for i, item := range items {
		out[i] = fileForm{URL: strings.TrimSpace(item.String("url"))}
	}
	return out
}

func contractDocument(c *Fields) string {
	if name := strings.TrimSpace(c.String("fileName")); name != "" {
		return name
	}
	raw := strings.TrimSpace(c.String("url"))
	if raw == "" {
		return ""
	}
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	return raw
}

// shapeViolations 将 validator 错误转换为违规
func (c *collector) shapeViolations(err error) {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		if err != nil {
			c.errorf("", RuleType, "invalid report form: %v", err)
		}
		return
	}

	for _, fe := range ves {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}

		switch fe.Tag() {
		case "max":
			if fe.Kind() == reflect.Slice {
				c.errorf(field, RuleMaxItems, "Maximum %s items", fe.Param())
			} else {
				c.errorf(field, RuleMaxLength, "Maximum %s characters", fe.Param())
			}
		case "maxwords":
			c.errorf(field, RuleMaxWords, "Must be %s words or fewer", fe.Param())
		case "email":
			c.errorf(field, RuleEmail, "Invalid email address")
		case "telephone":
			c.errorf(field, RuleTelephoneFormat, "Invalid telephone format")
		case "required":
			c.errorf(field, RuleFileURLRequired, "File url is required")
		case "contractfile":
			c.errorf(field, RuleFileType, "Contract must be a PDF or Word document")
		default:
			c.errorf(field, fe.Tag(), "Invalid value")
		}
	}
}
