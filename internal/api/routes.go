package api

import (
	"net/http"

	"github.com/Kaz-z/impact-engine-report-builder/internal/auth"
	"github.com/Kaz-z/impact-engine-report-builder/internal/config"
	"github.com/Kaz-z/impact-engine-report-builder/internal/metrics"
	"github.com/Kaz-z/impact-engine-report-builder/internal/service"
	"github.com/gin-gonic/gin"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	ReportService     service.ReportService
	AttachmentService service.AttachmentService
	// TokenValidator 为 nil 时从请求头读取用户
	TokenValidator *auth.KeycloakTokenValidator
	HealthChecks   []HealthCheck
	CORS           config.CORSConfig
	RateLimit      config.RateLimitConfig
	Tracing        config.TracingConfig
	MaxUploadSize  int64
}

// SetupRoutes 配置路由
func SetupRoutes(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// 中间件
	router.Use(gin.Recovery())
	if deps.Tracing.Enabled {
		router.Use(TracingMiddleware(deps.Tracing.ServiceName))
	}
	router.Use(RequestIDMiddleware())
	router.Use(RequestLogMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(deps.CORS))
	router.Use(ErrorHandlerMiddleware())
	if deps.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(deps.RateLimit.RPS, deps.RateLimit.Burst))
	}

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "route not found", c.Request.URL.Path)
	})

	// 健康检查
	healthController := NewHealthController(deps.HealthChecks...)
	router.GET("/health", healthController.Check)

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	reportController := NewReportController(deps.ReportService)
	attachmentController := NewAttachmentController(deps.AttachmentService, deps.MaxUploadSize)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	v1.Use(VersionMiddleware())
	if deps.TokenValidator != nil {
		v1.Use(auth.KeycloakAuthMiddleware(deps.TokenValidator))
	} else {
		v1.Use(auth.HeaderUserMiddleware())
	}
	{
		// 资助登记
		v1.POST("/projects", reportController.RegisterFunding)

		// 报告查询和校验
		reports := v1.Group("/reports")
		{
			reports.GET("", reportController.List)
			reports.GET("/statistics", reportController.Statistics)
			reports.POST("/validate", reportController.Validate)
		}

		// 单个报告
		r := v1.Group("/charities/:charityId/projects/:projectId/report")
		{
			r.GET("", reportController.Get)
			r.PUT("/draft", reportController.SaveDraft)
			r.POST("/submit", reportController.Submit)
			r.POST("/approve", reportController.Approve)
			r.POST("/reject", reportController.Reject)
			r.POST("/resume", reportController.Resume)
			r.GET("/history", reportController.History)

			r.GET("/outcomes/:outcome/images", attachmentController.ListImages)
			r.POST("/outcomes/:outcome/images", attachmentController.UploadImage)
			r.POST("/contract", attachmentController.UploadContract)
		}
	}

	return router
}
