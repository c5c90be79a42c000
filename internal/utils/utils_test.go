package utils_test

import (
	"strings"
	"testing"

	"github.com/Kaz-z/impact-engine-report-builder/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestValidateSortField 测试排序字段白名单
func TestValidateSortField(t *testing.T) {
	allowed := []string{"last_updated", "created_at"}

	assert.NoError(t, utils.ValidateSortField("last_updated", allowed...))
	assert.ErrorIs(t, utils.ValidateSortField("status", allowed...), utils.ErrSortFieldNotAllowed)
	assert.Error(t, utils.ValidateSortField("created_at; DROP TABLE reports", allowed...))
	assert.Error(t, utils.ValidateSortField("", allowed...))
}

// TestSortOrder 测试排序方向
func TestSortOrder(t *testing.T) {
	assert.NoError(t, utils.ValidateSortOrder("asc"))
	assert.NoError(t, utils.ValidateSortOrder(" DESC "))
	assert.Error(t, utils.ValidateSortOrder("sideways"))

	assert.Equal(t, "ASC", utils.SanitizeSortOrder("asc"))
	assert.Equal(t, "DESC", utils.SanitizeSortOrder("random"))
}

// TestValidateID 测试 ID 格式
func TestValidateID(t *testing.T) {
	assert.NoError(t, utils.ValidateID("charity-42_a"))
	assert.Equal(t, utils.ErrEmptyID, utils.ValidateID(""))
	assert.Equal(t, utils.ErrInvalidIDFormat, utils.ValidateID("charity/42"))
	assert.Equal(t, utils.ErrIDTooLong, utils.ValidateID(strings.Repeat("a", 65)))
}

// TestSanitizeFileName 测试文件名清理
func TestSanitizeFileName(t *testing.T) {
	name, err := utils.SanitizeFileName("../../etc/pass wd.pdf")
	require.NoError(t, err)
	assert.Equal(t, "pass_wd.pdf", name)

	name, err = utils.SanitizeFileName(`C:\photos\school visit.JPG`)
	require.NoError(t, err)
	assert.Equal(t, "school_visit.JPG", name)

	_, err = utils.SanitizeFileName("  ../ ")
	assert.Equal(t, utils.ErrEmptyFileName, err)
}

// TestTrimAndValidate 测试字符串清理
func TestTrimAndValidate(t *testing.T) {
	out, err := utils.TrimAndValidate("  <b>Needs more detail</b> ", 100)
	require.NoError(t, err)
	assert.Equal(t, "&lt;b&gt;Needs more detail&lt;/b&gt;", out)

	_, err = utils.TrimAndValidate("   ", 10)
	assert.Equal(t, utils.ErrEmptyString, err)

	_, err = utils.TrimAndValidate("too long", 3)
	assert.Equal(t, utils.ErrStringTooLong, err)
}
