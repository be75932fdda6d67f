// 合成与播放的测试模拟实现。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/voxflow/pipeline"
)

// --- MockSynthesizer ---

// MockSynthesizer 把句子本身作为内存音频返回
type MockSynthesizer struct {
	mu        sync.Mutex
	failOn    map[string]error
	delay     time.Duration
	created   []*pipeline.AudioArtifact
	callCount int
}

// NewMockSynthesizer 创建合成 Mock
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{failOn: make(map[string]error)}
}

// WithFailure 合成指定句子时返回错误
func (m *MockSynthesizer) WithFailure(sentence string, err error) *MockSynthesizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[sentence] = err
	return m
}

// WithDelay 模拟合成耗时
func (m *MockSynthesizer) WithDelay(d time.Duration) *MockSynthesizer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Synthesize 实现 pipeline.Synthesizer
func (m *MockSynthesizer) Synthesize(ctx context.Context, sentence string) (*pipeline.AudioArtifact, error) {
	m.mu.Lock()
	m.callCount++
	err, fail := m.failOn[sentence]
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, err
	}

	a := pipeline.NewMemoryArtifact(sentence, []byte(sentence), "mp3")
	m.mu.Lock()
	m.created = append(m.created, a)
	m.mu.Unlock()
	return a, nil
}

// Created 返回创建过的全部音频
func (m *MockSynthesizer) Created() []*pipeline.AudioArtifact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*pipeline.AudioArtifact(nil), m.created...)
}

// CallCount 调用次数
func (m *MockSynthesizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// --- MockPlayer ---

// ErrPlayerClosed 播放器已关闭
var ErrPlayerClosed = errors.New("player closed")

// MockPlayer 记录播放过的句子
type MockPlayer struct {
	mu     sync.Mutex
	played []string
	failOn map[string]error
	closed bool
}

// NewMockPlayer 创建播放 Mock
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{failOn: make(map[string]error)}
}

// WithFailure 播放指定句子时返回错误
func (m *MockPlayer) WithFailure(sentence string, err error) *MockPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[sentence] = err
	return m
}

// Play 实现 pipeline.Player
func (m *MockPlayer) Play(_ context.Context, a *pipeline.AudioArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrPlayerClosed
	}
	if err, ok := m.failOn[a.Sentence]; ok {
		return err
	}
	m.played = append(m.played, a.Sentence)
	return nil
}

// Close 实现 pipeline.Player
func (m *MockPlayer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Played 返回播放过的句子
func (m *MockPlayer) Played() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.played...)
}

// Closed 是否已关闭
func (m *MockPlayer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
