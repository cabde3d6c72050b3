// internal/services/publish_gate.go
package services

import (
	"sync"
	"time"
)

// PublishGate 进程级唯一的发布执行槽。
// 自动化目标是同一个登录态的浏览器会话，并行驱动会互相踩踏 UI 状态，
// 所以所有发布流程必须串行。获取失败立即返回，不排队。
type PublishGate struct {
	mu sync.Mutex

	stateMu    sync.Mutex
	holder     string
	acquiredAt time.Time
}

// NewPublishGate 创建发布闸门
func NewPublishGate() *PublishGate {
	return &PublishGate{}
}

// TryAcquire 尝试占用执行槽，占用失败立即返回 false
func (g *PublishGate) TryAcquire(holder string) bool {
	if !g.mu.TryLock() {
		return false
	}

	g.stateMu.Lock()
	g.holder = holder
	g.acquiredAt = time.Now()
	g.stateMu.Unlock()
	return true
}

// Release 释放执行槽
func (g *PublishGate) Release() {
	g.stateMu.Lock()
	g.holder = ""
	g.acquiredAt = time.Time{}
	g.stateMu.Unlock()

	g.mu.Unlock()
}

// Holder 返回当前占用者（调试用）
func (g *PublishGate) Holder() (string, time.Time) {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()
	return g.holder, g.acquiredAt
}
