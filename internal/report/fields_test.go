package report_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFields_KeepsOrderAndCoerces 测试按目录类型解码并保留顺序
func TestParseFields_KeepsOrderAndCoerces(t *testing.T) {
	raw := `{
		"projectName": "Clean Water",
		"totalFundingAmount": "1500.50",
		"projectCountry": "Kenya",
		"dateFundingStarted": "2024-01-15",
		"hasPartners": "true",
		"postcode": 12345,
		"outcome1FundingSpent": "",
		"customNote": {"a": 1}
	}`

	f, err := report.ParseFields([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"projectName", "totalFundingAmount", "projectCountry",
		"dateFundingStarted", "hasPartners", "postcode", "customNote",
	}, f.Keys())

	total, ok := f.Number(report.FieldTotalFundingAmount)
	require.True(t, ok)
	assert.True(t, total.Equal(decimal.RequireFromString("1500.5")))

	assert.Equal(t, []string{"Kenya"}, f.StringList(report.FieldProjectCountry))

	started, ok := f.Date(report.FieldDateFundingStarted)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), started)

	assert.True(t, f.Bool(report.FieldHasPartners))
	assert.Equal(t, "12345", f.String(report.FieldPostcode))
	assert.False(t, f.Has("outcome1FundingSpent"))

	custom := f.Object("customNote")
	require.NotNil(t, custom)
	n, ok := custom.Number("a")
	require.True(t, ok)
	assert.True(t, n.Equal(decimal.NewFromInt(1)))
}

// TestParseFields_UncoercibleKeepsKind 测试无法转换的值保留原类型
func TestParseFields_UncoercibleKeepsKind(t *testing.T) {
	f, err := report.ParseFields([]byte(`{"totalFundingAmount":"lots","directBeneficiaries":true}`))
	require.NoError(t, err)

	v, ok := f.Get(report.FieldTotalFundingAmount)
	require.True(t, ok)
	assert.Equal(t, report.KindString, v.Kind())

	v, ok = f.Get(report.FieldDirectBeneficiaries)
	require.True(t, ok)
	assert.Equal(t, report.KindBool, v.Kind())
}

// TestParseFields_NestedItems 测试对象列表按成员类型解码
func TestParseFields_NestedItems(t *testing.T) {
	raw := `{"geographyBreakdown":[{"country":"Kenya","city":"Nairobi","directBeneficiaries":"120"}],
		"outcome1Images":[{"url":"https://cdn.example.org/a.png","fileName":"a.png"}]}`

	f, err := report.ParseFields([]byte(raw))
	require.NoError(t, err)

	geo := f.ObjectList(report.FieldGeographyBreakdown)
	require.Len(t, geo, 1)
	assert.Equal(t, "Nairobi", geo[0].String("city"))
	d, ok := geo[0].Number(report.FieldDirectBeneficiaries)
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.NewFromInt(120)))

	images := f.ObjectList(report.OutcomeField(1, report.SuffixImages))
	require.Len(t, images, 1)
	assert.Equal(t, "a.png", images[0].String("fileName"))
}

// TestParseFields_NumberBounds 测试数值位数上限
func TestParseFields_NumberBounds(t *testing.T) {
	for _, raw := range []string{
		`{"outcome1FundingPlanned":1e500000}`,
		`{"outcome1FundingPlanned":1e-500000}`,
		`{"outcome1FundingPlanned":0e500000}`,
		`{"totalFundingAmount":1234567890123456789}`,
		`{"customNote":{"a":1e400}}`,
	} {
		_, err := report.ParseFields([]byte(raw))
		assert.ErrorIs(t, err, report.ErrNumberOutOfRange, raw)
	}

	f, err := report.ParseFields([]byte(`{"totalFundingAmount":123456789012345678.5,"outcome1FundingPlanned":1.5e3}`))
	require.NoError(t, err)
	total, ok := f.Number(report.FieldTotalFundingAmount)
	require.True(t, ok)
	assert.True(t, total.Equal(decimal.RequireFromString("123456789012345678.5")))
	planned, ok := f.Number("outcome1FundingPlanned")
	require.True(t, ok)
	assert.True(t, planned.Equal(decimal.NewFromInt(1500)))

	// 字符串形式超出上限时不转换,由校验器报告类型错误
	f, err = report.ParseFields([]byte(`{"outcome1FundingPlanned":"1e500000"}`))
	require.NoError(t, err)
	v, ok := f.Get("outcome1FundingPlanned")
	require.True(t, ok)
	assert.Equal(t, report.KindString, v.Kind())

	res := report.NewValidator().Validate(f, report.ModeLenient)
	assert.False(t, res.OK)
	assert.True(t, res.Has("outcome1FundingPlanned", report.RuleType))
}

// TestParseFields_RejectsMixedLists 测试混合类型数组
func TestParseFields_RejectsMixedLists(t *testing.T) {
	_, err := report.ParseFields([]byte(`{"projectCountry":["Kenya", 3]}`))
	assert.ErrorIs(t, err, report.ErrUnsupportedValue)

	_, err = report.ParseFields([]byte(`{"projectCountry":[["Kenya"]]}`))
	assert.ErrorIs(t, err, report.ErrUnsupportedValue)

	_, err = report.ParseFields([]byte(`["not", "an", "object"]`))
	assert.Error(t, err)
}

// TestFields_MarshalRoundTrip 测试编码后再解码结果一致
func TestFields_MarshalRoundTrip(t *testing.T) {
	f := report.NewFields().
		Set(report.FieldProjectName, report.String("Clean Water")).
		Set(report.FieldTotalFundingAmount, report.Number(decimal.RequireFromString("10000.25"))).
		Set(report.FieldDateFundingStarted, report.Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))).
		Set(report.FieldProjectCountry, report.StringList("Kenya", "Uganda")).
		Set(report.FieldHasPartners, report.Bool(false)).
		Set(report.FieldPartnerContract, report.Object(report.NewFields().
			Set("url", report.String("https://cdn.example.org/contract.pdf")))).
		Set(report.OutcomeField(1, report.SuffixImages), report.ObjectList())

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"projectName": "Clean Water",
		"totalFundingAmount": 10000.25,
		"dateFundingStarted": "2024-03-01",
		"projectCountry": ["Kenya", "Uganda"],
		"hasPartners": false,
		"partnerContract": {"url": "https://cdn.example.org/contract.pdf"},
		"outcome1Images": []
	}`, string(data))

	var decoded report.Fields
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, f.Equal(&decoded))
}

// TestFields_CloneIsDeep 测试深拷贝
func TestFields_CloneIsDeep(t *testing.T) {
	contract := report.NewFields().Set("url", report.String("a.pdf"))
	f := report.NewFields().Set(report.FieldPartnerContract, report.Object(contract))

	c := f.Clone()
	contract.Set("url", report.String("b.pdf"))

	assert.Equal(t, "a.pdf", c.Object(report.FieldPartnerContract).String("url"))
	assert.False(t, f.Equal(c))

	c.Delete(report.FieldPartnerContract)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, f.Len())
}
