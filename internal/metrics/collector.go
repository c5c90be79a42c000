package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/Kaz-z/impact-engine-report-builder/internal/statemachine"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Collector 定期从数据库收集指标
type Collector struct {
	db       *gorm.DB
	reports  repository.ReportRepository
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	started  sync.Once
	running  bool
}

// NewCollector 创建指标收集器
func NewCollector(db *gorm.DB, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		db:       db,
		reports:  repository.NewReportRepository(db),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start 启动指标收集器
func (c *Collector) Start() {
	c.started.Do(func() {
		c.running = true
		go c.collect()
	})
}

// Stop 停止指标收集器
// 未启动时直接返回
func (c *Collector) Stop() {
	c.cancel()
	c.started.Do(func() {})
	if c.running {
		<-c.done
	}
}

func (c *Collector) collect() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.done)

	c.CollectOnce()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.CollectOnce()
		}
	}
}

// CollectOnce 收集一次数据库连接和报告状态分布
func (c *Collector) CollectOnce() {
	_ = UpdateDatabaseConnections(c.db)

	counts, err := c.reports.CountByStatus()
	if err != nil {
		logrus.WithError(err).Warn("failed to collect report status metrics")
		return
	}
	// 没有报告的状态置 0
	for _, status := range statemachine.AllStatuses() {
		UpdateReportsByStatus(string(status), float64(counts[string(status)]))
	}
}
