// 转写、翻译与内容审查的测试模拟实现。
//
// 支持固定结果、调用计数与错误注入。
package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/voxflow/pipeline"
)

// --- MockTranscriber ---

// MockTranscriber 返回预设文本
type MockTranscriber struct {
	mu        sync.Mutex
	texts     []string
	err       error
	delay     time.Duration
	callCount int
}

// NewMockTranscriber 创建转写 Mock，每次调用依次返回 texts 中的一项，用完后返回最后一项
func NewMockTranscriber(texts ...string) *MockTranscriber {
	return &MockTranscriber{texts: texts}
}

// WithError 设置返回错误
func (m *MockTranscriber) WithError(err error) *MockTranscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 模拟采集耗时
func (m *MockTranscriber) WithDelay(d time.Duration) *MockTranscriber {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Transcribe 实现 pipeline.Transcriber
func (m *MockTranscriber) Transcribe(ctx context.Context) (string, error) {
	m.mu.Lock()
	idx := m.callCount
	m.callCount++
	delay, err := m.delay, m.err
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if len(m.texts) == 0 {
		return "", nil
	}
	if idx >= len(m.texts) {
		idx = len(m.texts) - 1
	}
	return m.texts[idx], nil
}

// CallCount 调用次数
func (m *MockTranscriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// --- MockTranslator ---

// MockTranslator 默认把文本转成大写
type MockTranslator struct {
	fn  func(string) string
	err error
}

// NewMockTranslator 创建翻译 Mock
func NewMockTranslator() *MockTranslator {
	return &MockTranslator{fn: strings.ToUpper}
}

// WithFunc 自定义翻译函数
func (m *MockTranslator) WithFunc(fn func(string) string) *MockTranslator {
	m.fn = fn
	return m
}

// WithError 设置返回错误
func (m *MockTranslator) WithError(err error) *MockTranslator {
	m.err = err
	return m
}

// Translate 实现 pipeline.Translator
func (m *MockTranslator) Translate(_ context.Context, text string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.fn(text), nil
}

// --- MockChecker ---

// MockChecker 命中 blocked 中任一子串即拒绝
type MockChecker struct {
	mu      sync.Mutex
	blocked []string
	err     error
	checked []string
}

// NewMockChecker 创建审查 Mock
func NewMockChecker(blocked ...string) *MockChecker {
	return &MockChecker{blocked: blocked}
}

// WithError 设置返回错误
func (m *MockChecker) WithError(err error) *MockChecker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Check 实现 pipeline.ContentChecker
func (m *MockChecker) Check(_ context.Context, text string) (pipeline.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checked = append(m.checked, text)
	if m.err != nil {
		return pipeline.Verdict{}, m.err
	}
	for _, word := range m.blocked {
		if strings.Contains(text, word) {
			return pipeline.Verdict{Allowed: false, Reason: "blocked: " + word}, nil
		}
	}
	return pipeline.Verdict{Allowed: true}, nil
}

// Checked 返回审查过的文本
func (m *MockChecker) Checked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.checked...)
}
