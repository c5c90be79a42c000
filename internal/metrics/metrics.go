package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 报告状态转换数
	reportTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_transitions_total",
			Help: "Total number of report status transitions",
		},
		[]string{"operation", "from", "to"},
	)

	// 报告操作失败数
	reportOperationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_operation_failures_total",
			Help: "Total number of failed report operations by kind",
		},
		[]string{"operation", "kind"}, // validation, invalid_state, conflict, store
	)

	// 校验违规数
	validationViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_validation_violations_total",
			Help: "Total number of validation violations by rule",
		},
		[]string{"mode", "rule", "severity"},
	)

	// 事件投递数
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_events_published_total",
			Help: "Total number of outbox events processed",
		},
		[]string{"type", "result"}, // delivered, failed, skipped
	)

	// 附件上传数
	uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_uploads_total",
			Help: "Total number of uploaded report attachments",
		},
		[]string{"kind"}, // image, contract
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 报告状态分布
	reportsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reports_by_status",
			Help: "Number of reports by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(reportTransitionsTotal)
	prometheus.MustRegister(reportOperationFailuresTotal)
	prometheus.MustRegister(validationViolationsTotal)
	prometheus.MustRegister(eventsPublishedTotal)
	prometheus.MustRegister(uploadsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(reportsByStatus)

	// Go 运行时指标,已注册时忽略
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordTransition 记录报告状态转换
func RecordTransition(operation, from, to string) {
	reportTransitionsTotal.WithLabelValues(operation, from, to).Inc()
}

// RecordOperationFailure 记录报告操作失败
func RecordOperationFailure(operation, kind string) {
	reportOperationFailuresTotal.WithLabelValues(operation, kind).Inc()
}

// RecordViolation 记录校验违规
func RecordViolation(mode, rule, severity string) {
	validationViolationsTotal.WithLabelValues(mode, rule, severity).Inc()
}

// RecordEvent 记录事件投递结果
func RecordEvent(eventType, result string) {
	eventsPublishedTotal.WithLabelValues(eventType, result).Inc()
}

// RecordUpload 记录附件上传
func RecordUpload(kind string) {
	uploadsTotal.WithLabelValues(kind).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.InUse))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateReportsByStatus 更新报告状态分布指标
func UpdateReportsByStatus(status string, count float64) {
	reportsByStatus.WithLabelValues(status).Set(count)
}
