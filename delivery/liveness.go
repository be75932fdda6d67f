package delivery

import (
	"sync"
	"sync/atomic"
	"time"
)

// Liveness 客户端存活状态：最近一次心跳与终止标记
type Liveness struct {
	base       time.Time
	lastBeat   atomic.Int64 // 相对 base 的单调纳秒
	terminated chan struct{}
	once       sync.Once
}

// NewLiveness 创建存活状态，创建时刻视为一次心跳
func NewLiveness() *Liveness {
	return &Liveness{
		base:       time.Now(),
		terminated: make(chan struct{}),
	}
}

// Beat 记录一次心跳
func (l *Liveness) Beat() {
	l.lastBeat.Store(int64(time.Since(l.base)))
}

// SinceLastBeat 距上次心跳的时长
func (l *Liveness) SinceLastBeat() time.Duration {
	return time.Since(l.base) - time.Duration(l.lastBeat.Load())
}

// Terminate 置位终止标记，只有第一次调用返回 true
func (l *Liveness) Terminate() bool {
	first := false
	l.once.Do(func() {
		close(l.terminated)
		first = true
	})
	return first
}

// Terminated 终止时关闭
func (l *Liveness) Terminated() <-chan struct{} {
	return l.terminated
}

// IsTerminated 是否已终止
func (l *Liveness) IsTerminated() bool {
	select {
	case <-l.terminated:
		return true
	default:
		return false
	}
}
