// MockStreamer 的流式补全测试模拟实现。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/voxflow/pipeline"
)

// MockStreamer 逐个发出预设增量
type MockStreamer struct {
	mu        sync.Mutex
	deltas    []string
	startErr  error
	streamErr error
	failAfter int
	delay     time.Duration
	prompts   []string
}

// NewMockStreamer 创建流式补全 Mock
func NewMockStreamer() *MockStreamer {
	return &MockStreamer{failAfter: -1}
}

// WithDeltas 设置要发出的增量
func (m *MockStreamer) WithDeltas(deltas ...string) *MockStreamer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas = deltas
	return m
}

// WithStartError 让 StreamCompletion 直接返回错误
func (m *MockStreamer) WithStartError(err error) *MockStreamer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
	return m
}

// WithStreamError 发出 n 个增量后在流中报告错误
func (m *MockStreamer) WithStreamError(n int, err error) *MockStreamer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.streamErr = err
	return m
}

// WithDelay 每个增量之间的间隔
func (m *MockStreamer) WithDelay(d time.Duration) *MockStreamer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// StreamCompletion 实现 pipeline.CompletionStreamer
func (m *MockStreamer) StreamCompletion(ctx context.Context, prompt string) (<-chan pipeline.TokenDelta, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	deltas := append([]string(nil), m.deltas...)
	startErr, streamErr, failAfter, delay := m.startErr, m.streamErr, m.failAfter, m.delay
	m.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}

	ch := make(chan pipeline.TokenDelta)
	go func() {
		defer close(ch)
		for i, d := range deltas {
			if i == failAfter {
				select {
				case ch <- pipeline.TokenDelta{Err: streamErr}:
				case <-ctx.Done():
				}
				return
			}
			if delay > 0 {
				time.Sleep(delay)
			}
			select {
			case ch <- pipeline.TokenDelta{Text: d}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Prompts 返回收到的提示词
func (m *MockStreamer) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
