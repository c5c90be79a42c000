package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/api"
	"github.com/Kaz-z/impact-engine-report-builder/internal/auth"
	"github.com/Kaz-z/impact-engine-report-builder/internal/blobstore"
	"github.com/Kaz-z/impact-engine-report-builder/internal/config"
	"github.com/Kaz-z/impact-engine-report-builder/internal/database"
	"github.com/Kaz-z/impact-engine-report-builder/internal/event"
	"github.com/Kaz-z/impact-engine-report-builder/internal/integration"
	"github.com/Kaz-z/impact-engine-report-builder/internal/lock"
	"github.com/Kaz-z/impact-engine-report-builder/internal/metrics"
	"github.com/Kaz-z/impact-engine-report-builder/internal/report"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/Kaz-z/impact-engine-report-builder/internal/service"
	"github.com/Kaz-z/impact-engine-report-builder/internal/workflow"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、存储、客户端和服务
type Container struct {
	cfg               *config.Config
	logger            logrus.FieldLogger
	db                *gorm.DB
	redisClient       *redis.Client
	blobStore         blobstore.Store
	gcsStore          *blobstore.GCSStore
	pubsubSink        *event.PubSubSink
	dispatcher        *event.Dispatcher
	collector         *metrics.Collector
	fgaClient         *auth.OpenFGAClient
	authorizer        auth.Authorizer
	keycloakValidator *auth.KeycloakTokenValidator
	workflow          *workflow.Workflow
	reportService     service.ReportService
	attachmentService service.AttachmentService
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件,未配置的外部服务使用本地实现
func NewContainer(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (_ *Container, err error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &Container{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次，初始间隔 1 秒，指数退避
	c.db, err = database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err = database.Migrate(c.db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 初始化报告锁,启用 Redis 时跨实例互斥
	var locker lock.Locker
	if cfg.Redis.Enabled {
		c.redisClient, err = lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		locker = lock.NewRedisLocker(c.redisClient, time.Duration(cfg.Redis.LockTTL)*time.Second, logger)
	} else {
		locker = lock.NewLocalLocker(time.Duration(cfg.Redis.LockWait) * time.Millisecond)
	}

	// 3. 初始化附件存储
	switch cfg.Storage.Provider {
	case "gcs":
		c.gcsStore, err = blobstore.NewGCSStore(ctx, cfg.Storage.Bucket, cfg.Storage.CredentialsJSON, cfg.Storage.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		c.blobStore = c.gcsStore
	default:
		c.blobStore = blobstore.NewMemoryStore(cfg.Storage.PublicBaseURL)
	}

	// 4. 初始化事件投递,未启用 Pub/Sub 时事件只保留在发件箱
	var sink event.Sink
	if cfg.PubSub.Enabled {
		c.pubsubSink, err = event.NewPubSubSink(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic, cfg.PubSub.CredentialsJSON)
		if err != nil {
			return nil, err
		}
		sink = c.pubsubSink
	}
	c.dispatcher = event.NewDispatcher(c.db, sink, event.DispatcherOptions{
		Interval:   time.Duration(cfg.PubSub.PollInterval) * time.Second,
		BatchSize:  cfg.PubSub.BatchSize,
		MaxRetries: cfg.PubSub.MaxRetries,
		Logger:     logger,
	})

	// 5. 初始化权限检查,未配置 store 时不检查
	if cfg.OpenFGA.StoreID != "" {
		c.fgaClient, err = auth.NewOpenFGAClientWithRetry(cfg.OpenFGA.APIURL, cfg.OpenFGA.StoreID, cfg.OpenFGA.ModelID, 3, time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenFGA client: %w", err)
		}
		c.authorizer = auth.NewCachedOpenFGAClient(c.fgaClient, auth.NewPermissionCache(time.Minute))
	} else {
		logger.Warn("openfga store not configured, permission checks disabled")
	}

	// 6. 初始化 Keycloak Token 验证器
	if cfg.Keycloak.Issuer != "" {
		c.keycloakValidator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer)
		c.keycloakValidator.SetJWKSURL(cfg.Keycloak.JWKSURL)
	} else {
		if config.IsProduction(cfg) {
			return nil, errors.New("keycloak.issuer is required in production")
		}
		logger.Warn("keycloak not configured, reading user from X-User-ID header")
	}

	// 7. 初始化工作流和服务
	store := integration.NewReportStore(c.db)
	validator := report.NewValidator(report.WithPhoneRegion(cfg.Validation.PhoneRegion))
	c.workflow = workflow.New(store, validator, workflow.WithLocker(locker), workflow.WithLogger(logger))

	auditLogSvc := service.NewAuditLogService(repository.NewAuditLogRepository(c.db))
	c.reportService = service.NewReportService(c.workflow, store, c.db, auditLogSvc,
		service.WithAuthorizer(c.authorizer, cfg.OpenFGA.Programme),
		service.WithServiceLogger(logger))
	c.attachmentService = service.NewAttachmentService(c.blobStore, cfg.Storage.MaxUploadSize, auditLogSvc, c.authorizer)

	// 8. 初始化指标收集器
	c.collector = metrics.NewCollector(c.db, 30*time.Second)

	return c, nil
}

// Start 启动后台任务
func (c *Container) Start() {
	c.dispatcher.Start()
	c.collector.Start()
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Workflow 获取报告工作流
func (c *Container) Workflow() *workflow.Workflow {
	return c.workflow
}

// ReportService 获取报告服务
func (c *Container) ReportService() service.ReportService {
	return c.reportService
}

// AttachmentService 获取附件服务
func (c *Container) AttachmentService() service.AttachmentService {
	return c.attachmentService
}

// KeycloakValidator 获取 Keycloak Token 验证器,未配置时为 nil
func (c *Container) KeycloakValidator() *auth.KeycloakTokenValidator {
	return c.keycloakValidator
}

// HealthChecks 返回已启用依赖的健康检查
func (c *Container) HealthChecks() []api.HealthCheck {
	checks := []api.HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error { return database.Ping(ctx, c.db) }},
	}
	if c.fgaClient != nil {
		checks = append(checks, api.HealthCheck{Name: "openfga", Check: func(ctx context.Context) error {
			if !c.fgaClient.CheckHealth(ctx) {
				return errors.New("openfga unreachable")
			}
			return nil
		}})
	}
	if c.redisClient != nil {
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return c.redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}

// RouterDeps 构造路由依赖
func (c *Container) RouterDeps() api.RouterDeps {
	return api.RouterDeps{
		ReportService:     c.reportService,
		AttachmentService: c.attachmentService,
		TokenValidator:    c.keycloakValidator,
		HealthChecks:      c.HealthChecks(),
		CORS:              c.cfg.CORS,
		RateLimit:         c.cfg.RateLimit,
		Tracing:           c.cfg.Tracing,
		MaxUploadSize:     c.cfg.Storage.MaxUploadSize,
	}
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	var errs []error

	if c.dispatcher != nil {
		c.dispatcher.Stop()
	}
	if c.collector != nil {
		c.collector.Stop()
	}
	if c.pubsubSink != nil {
		errs = append(errs, c.pubsubSink.Close())
	}
	if c.gcsStore != nil {
		errs = append(errs, c.gcsStore.Close())
	}
	if c.redisClient != nil {
		errs = append(errs, c.redisClient.Close())
	}
	if c.db != nil {
		errs = append(errs, database.Close(c.db))
	}

	return errors.Join(errs...)
}
