package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotObtained 锁被其他操作持有
var ErrNotObtained = errors.New("lock not obtained")

// Locker 按 key 加锁,返回释放函数
type Locker interface {
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// ReportKey 报告锁的 key
func ReportKey(charityID, projectID string) string {
	return "report-lock:" + charityID + ":" + projectID
}

// LocalLocker 进程内锁,用于单实例部署和测试
// 没有持有者和等待者的 key 会被移除
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*localSlot
	wait  time.Duration
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker 创建进程内锁,wait 为获取锁的最长等待时间
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		slots: make(map[string]*localSlot),
		wait:  wait,
	}
}

func (l *LocalLocker) acquire(key string) *localSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[key]
	if !ok {
		s = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) release(key string, s *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// Obtain 获取锁,超时返回 ErrNotObtained
func (l *LocalLocker) Obtain(ctx context.Context, key string) (func(), error) {
	s := l.acquire(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case s.ch <- struct{}{}:
	case <-timer.C:
		l.release(key, s)
		return nil, ErrNotObtained
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

// Noop 不加锁
type Noop struct{}

func (Noop) Obtain(context.Context, string) (func(), error) {
	return func() {}, nil
}
