package database_test

import (
	"sync"
	"testing"

	"github.com/Kaz-z/impact-engine-report-builder/internal/config"
	"github.com/Kaz-z/impact-engine-report-builder/internal/database"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

// TestBuildDSN 测试各驱动的 DSN
func TestBuildDSN(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:   "postgres",
		Host:     "db",
		Port:     5432,
		User:     "u",
		Password: "p",
		DBName:   "reports",
		SSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=reports sslmode=disable", database.BuildDSN(cfg))

	cfg.Driver = "mysql"
	cfg.Port = 3306
	assert.Equal(t, "u:p@tcp(db:3306)/reports?charset=utf8mb4&parseTime=True&loc=UTC", database.BuildDSN(cfg))

	cfg.Driver = "sqlite"
	cfg.Path = "/tmp/reports.db"
	assert.Equal(t, "/tmp/reports.db", database.BuildDSN(cfg))
}

// TestConnect_UnsupportedDriver 测试不支持的驱动
func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := database.Connect(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

// TestMigrate_SQLite 测试 SQLite 迁移可重复执行
func TestMigrate_SQLite(t *testing.T) {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	defer database.Close(db)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{"reports", "state_history", "events", "audit_logs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("reports", "idx_reports_charity_project"))
	assert.True(t, database.CheckHealth(db))
}

// TestCheckHealth_Nil 测试未初始化的连接
func TestCheckHealth_Nil(t *testing.T) {
	assert.False(t, database.CheckHealth(nil))
}

// TestReportDataColumn 测试报告字段列按原文保存,不使用会重排键的 JSON 类型
func TestReportDataColumn(t *testing.T) {
	s, err := schema.Parse(&model.ReportModel{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	field := s.LookUpField("Data")
	require.NotNil(t, field)
	assert.Equal(t, "text", field.TagSettings["TYPE"])

	ddl := database.MySQLTableDDL("reports")
	assert.Contains(t, ddl, "data LONGTEXT")
	assert.NotContains(t, ddl, "data JSON")
}
