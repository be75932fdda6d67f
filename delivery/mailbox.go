package delivery

import (
	"sync"

	"github.com/BaSui01/voxflow/pipeline"
)

// Mailbox 单槽信箱：同一时刻最多一段"当前"音频。
// 每次状态变化都会关闭并替换 changed，等待方据此被唤醒。
type Mailbox struct {
	mu        sync.Mutex
	current   *pipeline.AudioArtifact
	end       bool
	changed   chan struct{}
	finalOnce sync.Once
	finalSent chan struct{}
}

// NewMailbox 创建空信箱
func NewMailbox() *Mailbox {
	return &Mailbox{
		changed:   make(chan struct{}),
		finalSent: make(chan struct{}),
	}
}

// broadcast 调用方必须持有锁
func (m *Mailbox) broadcast() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Offer 放入当前音频
func (m *Mailbox) Offer(a *pipeline.AudioArtifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = a
	m.broadcast()
}

// SetEnd 标记流结束
func (m *Mailbox) SetEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.end = true
	m.broadcast()
}

// Poll 原子地检查并取走当前音频。
// 没有音频时返回 end 标记以及下次状态变化时关闭的 channel。
func (m *Mailbox) Poll() (a *pipeline.AudioArtifact, end bool, changed <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		a = m.current
		m.current = nil
		m.broadcast()
		return a, false, nil
	}
	return nil, m.end, m.changed
}

// Pending 当前音频是否还没被取走，以及下次状态变化时关闭的 channel
func (m *Mailbox) Pending() (bool, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil, m.changed
}

// Clear 取出并清空当前音频，用于终止时释放
func (m *Mailbox) Clear() *pipeline.AudioArtifact {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.current
	if a != nil {
		m.current = nil
		m.broadcast()
	}
	return a
}

// MarkFinalSent 置位"最终响应已发送"
func (m *Mailbox) MarkFinalSent() {
	m.finalOnce.Do(func() { close(m.finalSent) })
}

// FinalSent 最终响应发出后关闭
func (m *Mailbox) FinalSent() <-chan struct{} {
	return m.finalSent
}
