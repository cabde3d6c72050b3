// internal/services/progress_broker.go
package services

import (
	"sync"
	"time"
)

// ProgressEvent 发布流程的单步进度事件
type ProgressEvent struct {
	RunID     string    `json:"runId"`
	Step      string    `json:"step"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressBroker 把编排器的进度事件广播给 WebSocket 订阅者。
// 投递是尽力而为的：慢订阅者直接丢事件，绝不阻塞发布流程。
type ProgressBroker struct {
	mu          sync.RWMutex
	subscribers map[chan ProgressEvent]struct{}
}

// NewProgressBroker 创建进度广播器
func NewProgressBroker() *ProgressBroker {
	return &ProgressBroker{
		subscribers: make(map[chan ProgressEvent]struct{}),
	}
}

// Subscribe 订阅进度事件
func (b *ProgressBroker) Subscribe() chan ProgressEvent {
	ch := make(chan ProgressEvent, 16)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (b *ProgressBroker) Unsubscribe(ch chan ProgressEvent) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish 广播一条进度事件
func (b *ProgressBroker) Publish(runID, step, message string) {
	event := ProgressEvent{
		RunID:     runID,
		Step:      step,
		Message:   message,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount 当前订阅者数量
func (b *ProgressBroker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
