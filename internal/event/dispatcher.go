package event

import (
	"context"
	"sync"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/metrics"
	"github.com/Kaz-z/impact-engine-report-builder/internal/model"
	"github.com/Kaz-z/impact-engine-report-builder/internal/repository"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DispatcherOptions 发件箱投递参数
type DispatcherOptions struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	Logger     logrus.FieldLogger
}

// Dispatcher 轮询发件箱并把事件投递到 Sink
// sink 为 nil 时事件标记为 skipped
type Dispatcher struct {
	db         *gorm.DB
	sink       Sink
	interval   time.Duration
	batchSize  int
	maxRetries int
	logger     logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher 创建发件箱投递器
func NewDispatcher(db *gorm.DB, sink Sink, opts DispatcherOptions) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		db:         db,
		sink:       sink,
		interval:   opts.Interval,
		batchSize:  opts.BatchSize,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}
}

// Start 启动后台投递
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Stop 停止后台投递并等待当前批次完成
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.WithError(err).Warn("outbox dispatch failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce 投递一批待处理事件,返回成功处理的数量
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	repo := repository.NewEventRepository(d.db.WithContext(ctx))
	pending, err := repo.FindPending(d.batchSize)
	if err != nil {
		return 0, err
	}

	// 同一报告前一个事件失败后,本批次内跳过它后续的事件以保持顺序
	blocked := make(map[string]bool)
	processed := 0
	for _, row := range pending {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if blocked[row.ReportID] {
			continue
		}
		if err := d.dispatch(ctx, repo, row); err != nil {
			blocked[row.ReportID] = true
			continue
		}
		processed++
	}
	return processed, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, repo repository.EventRepository, row *model.EventModel) error {
	logger := d.logger.WithFields(logrus.Fields{
		"event_id":  row.ID,
		"report_id": row.ReportID,
		"type":      row.Type,
	})

	if d.sink == nil {
		metrics.RecordEvent(row.Type, model.EventStatusSkipped)
		return repo.MarkSkipped(row.ID)
	}

	evt, err := Decode(row.Data)
	if err != nil {
		// 无法解析的事件不会自愈,直接标记失败
		logger.WithError(err).Error("dropping undecodable event")
		metrics.RecordEvent(row.Type, model.EventStatusFailed)
		return repo.MarkFailed(row.ID, err, 1)
	}

	if err := d.sink.Publish(ctx, evt); err != nil {
		logger.WithError(err).WithField("retry_count", row.RetryCount+1).Warn("event delivery failed")
		metrics.RecordEvent(row.Type, model.EventStatusFailed)
		if markErr := repo.MarkFailed(row.ID, err, d.maxRetries); markErr != nil {
			logger.WithError(markErr).Error("failed to record delivery failure")
		}
		return err
	}

	metrics.RecordEvent(row.Type, model.EventStatusDelivered)
	logger.Debug("event delivered")
	return repo.MarkDelivered(row.ID)
}
