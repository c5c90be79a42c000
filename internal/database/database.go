package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/config"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// GetPoolConfig 获取连接池默认配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600,
		ConnMaxIdleTime: 600,
	}
}

// BuildDSN 按驱动构建 DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	switch cfg.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)
	case "sqlite":
		return cfg.Path
	default:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	}
}

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := BuildDSN(cfg)
	switch cfg.Driver {
	case "postgres", "":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 数据库调用链路追踪
	if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName))); err != nil {
		return nil, fmt.Errorf("failed to register tracing plugin: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	poolConfig := GetPoolConfig()
	if cfg.MaxIdleConns > 0 {
		poolConfig.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}
	// SQLite 只允许一个写连接
	if cfg.Driver == "sqlite" {
		poolConfig.MaxOpenConns = 1
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		logrus.WithError(err).WithField("attempt", i+1).Warn("database connection failed")
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// Models 需要迁移的模型
func Models() []interface{} {
	return []interface{}{
		&model.ReportModel{},
		&model.StateHistoryModel{},
		&model.EventModel{},
		&model.AuditLogModel{},
	}
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	name := db.Dialector.Name()

	// SQLite 和 MySQL 不支持 jsonb,手动建表
	switch name {
	case "sqlite", "sqlite3":
		if err := createTables(db, sqliteTables); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	case "mysql":
		if err := createTables(db, mysqlTables); err != nil {
			return fmt.Errorf("failed to create MySQL tables: %w", err)
		}
	default:
		if err := db.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

type tableDDL struct {
	name string
	ddl  string
}

var sqliteTables = []tableDDL{
	{"reports", `
		CREATE TABLE IF NOT EXISTS reports (
			id VARCHAR(64) PRIMARY KEY,
			charity_id VARCHAR(64) NOT NULL,
			project_id VARCHAR(64) NOT NULL,
			project_name VARCHAR(255),
			status VARCHAR(32) NOT NULL,
			data TEXT,
			rejection_comment TEXT,
			rejection_active BOOLEAN NOT NULL DEFAULT 0,
			funding_amount NUMERIC(18,2),
			date_funding_given DATETIME,
			version INTEGER NOT NULL DEFAULT 0,
			last_updated DATETIME NOT NULL,
			submitted_at DATETIME,
			approved_at DATETIME,
			rejected_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"state_history", `
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			report_id VARCHAR(64) NOT NULL,
			operation VARCHAR(32) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			reason TEXT,
			operator VARCHAR(64) NOT NULL,
			version INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`},
	{"events", `
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			report_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			data TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"audit_logs", `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(160) NOT NULL,
			result VARCHAR(16) NOT NULL,
			report_version INTEGER,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)`},
}

var mysqlTables = []tableDDL{
	{"reports", `
		CREATE TABLE IF NOT EXISTS reports (
			id VARCHAR(64) PRIMARY KEY,
			charity_id VARCHAR(64) NOT NULL,
			project_id VARCHAR(64) NOT NULL,
			project_name VARCHAR(255),
			status VARCHAR(32) NOT NULL,
			data LONGTEXT,
			rejection_comment TEXT,
			rejection_active BOOLEAN NOT NULL DEFAULT FALSE,
			funding_amount DECIMAL(18,2),
			date_funding_given DATETIME(3),
			version BIGINT NOT NULL DEFAULT 0,
			last_updated DATETIME(3) NOT NULL,
			submitted_at DATETIME(3),
			approved_at DATETIME(3),
			rejected_at DATETIME(3),
			created_at DATETIME(3) NOT NULL,
			updated_at DATETIME(3) NOT NULL
		) DEFAULT CHARSET=utf8mb4`},
	{"state_history", `
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			report_id VARCHAR(64) NOT NULL,
			operation VARCHAR(32) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			reason TEXT,
			operator VARCHAR(64) NOT NULL,
			version BIGINT NOT NULL,
			created_at DATETIME(3) NOT NULL
		) DEFAULT CHARSET=utf8mb4`},
	{"events", `
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			report_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			data JSON NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			retry_count INT NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME(3) NOT NULL,
			updated_at DATETIME(3) NOT NULL
		) DEFAULT CHARSET=utf8mb4`},
	{"audit_logs", `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(160) NOT NULL,
			result VARCHAR(16) NOT NULL,
			report_version BIGINT,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details JSON,
			created_at DATETIME(3) NOT NULL
		) DEFAULT CHARSET=utf8mb4`},
}

func createTables(db *gorm.DB, tables []tableDDL) error {
	for _, t := range tables {
		if err := db.Exec(t.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

type indexDDL struct {
	name    string
	table   string
	columns string
	unique  bool
}

var indexes = []indexDDL{
	{"idx_reports_charity_project", "reports", "charity_id, project_id", true},
	{"idx_reports_status", "reports", "status", false},
	{"idx_reports_last_updated", "reports", "last_updated", false},
	{"idx_reports_submitted_at", "reports", "submitted_at", false},
	{"idx_history_report_id", "state_history", "report_id", false},
	{"idx_history_created_at", "state_history", "created_at", false},
	{"idx_events_status", "events", "status", false},
	{"idx_events_report_id", "events", "report_id", false},
	{"idx_events_created_at", "events", "created_at", false},
	{"idx_audit_resource", "audit_logs", "resource_type, resource_id", false},
	{"idx_audit_user_id", "audit_logs", "user_id", false},
	{"idx_audit_created_at", "audit_logs", "created_at", false},
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	name := db.Dialector.Name()

	for _, idx := range indexes {
		if name == "mysql" {
			// MySQL 不支持 CREATE INDEX IF NOT EXISTS
			if db.Migrator().HasIndex(idx.table, idx.name) {
				continue
			}
			if err := db.Exec(indexStatement(idx, false)).Error; err != nil {
				return fmt.Errorf("failed to create %s: %w", idx.name, err)
			}
			continue
		}
		if err := db.Exec(indexStatement(idx, true)).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	return nil
}

func indexStatement(idx indexDDL, ifNotExists bool) string {
	kind := "INDEX"
	if idx.unique {
		kind = "UNIQUE INDEX"
	}
	guard := ""
	if ifNotExists {
		guard = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE %s %s%s ON %s(%s)", kind, guard, idx.name, idx.table, idx.columns)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	return Ping(context.Background(), db) == nil
}

// Ping 在超时内检查数据库连接
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database not initialized")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
