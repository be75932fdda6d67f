package pipeline

import (
	"context"
	"sync"
)

// Utterance 单槽单写的转写结果。
// 转写阶段结束时（无论是否写入）Done 都会关闭，下游可以提前启动并等待它。
type Utterance struct {
	once     sync.Once
	done     chan struct{}
	text     string
	rejected bool
}

// NewUtterance 创建空的 Utterance
func NewUtterance() *Utterance {
	return &Utterance{done: make(chan struct{})}
}

// Set 写入文本，只有第一次调用生效
func (u *Utterance) Set(text string) bool {
	written := false
	u.once.Do(func() {
		u.text = text
		written = true
		close(u.done)
	})
	return written
}

// Finish 不写入任何内容地结束
func (u *Utterance) Finish() {
	u.once.Do(func() { close(u.done) })
}

// Reject 标记为被拦截，下游语言模型阶段应直接跳过
func (u *Utterance) Reject() {
	u.once.Do(func() {
		u.rejected = true
		close(u.done)
	})
}

// Done 在 Set / Finish / Reject 之后关闭
func (u *Utterance) Done() <-chan struct{} {
	return u.done
}

// Wait 等待结果，未写入时返回空串
func (u *Utterance) Wait(ctx context.Context) (string, error) {
	select {
	case <-u.done:
		return u.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Rejected 只应在 Done 关闭后读取
func (u *Utterance) Rejected() bool {
	select {
	case <-u.done:
		return u.rejected
	default:
		return false
	}
}
