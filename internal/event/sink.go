package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Sink 事件投递目标
type Sink interface {
	Publish(ctx context.Context, evt *Event) error
}

// PubSubSink 投递到 Google Pub/Sub 主题
type PubSubSink struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubSink 创建 Pub/Sub 投递目标
// credentialsJSON 为空时使用 Application Default Credentials
func NewPubSubSink(ctx context.Context, projectID, topic, credentialsJSON string) (*PubSubSink, error) {
	if projectID == "" || topic == "" {
		return nil, errors.New("pubsub project ID and topic are required")
	}

	var opts []option.ClientOption
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	t := client.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to check topic %q: %w", topic, err)
	}
	if !ok {
		if t, err = client.CreateTopic(ctx, topic); err != nil {
			client.Close()
			return nil, fmt.Errorf("create topic %q: %w", topic, err)
		}
	}
	// 同一报告的事件按顺序投递
	t.EnableMessageOrdering = true

	return &PubSubSink{client: client, topic: t}, nil
}

// Publish 发布事件并等待服务端确认
func (s *PubSubSink) Publish(ctx context.Context, evt *Event) error {
	data, err := evt.Encode()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	orderingKey := evt.CharityID + "/" + evt.ProjectID
	result := s.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: orderingKey,
		Attributes: map[string]string{
			"type":       string(evt.Type),
			"charity_id": evt.CharityID,
			"project_id": evt.ProjectID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		// 失败后需要恢复该 key 才能继续发布
		s.topic.ResumePublish(orderingKey)
		return fmt.Errorf("failed to publish event %s: %w", evt.ID, err)
	}
	return nil
}

// Close 停止主题并关闭客户端
func (s *PubSubSink) Close() error {
	s.topic.Stop()
	return s.client.Close()
}

// MemorySink 保存在内存中的投递目标,用于开发环境
type MemorySink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

// NewMemorySink 创建内存投递目标
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Publish 记录事件
func (s *MemorySink) Publish(_ context.Context, evt *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

// FailWith 之后的投递都返回 err,传 nil 恢复
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Events 已投递的事件
func (s *MemorySink) Events() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}
