package pipeline

import (
	"strings"
	"sync"
)

// Exchange 一问一答
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// History 进程内的对话历史，只保留最近 maxTurns 轮，不做持久化
type History struct {
	mu        sync.RWMutex
	maxTurns  int
	exchanges []Exchange
}

// NewHistory 创建历史。maxTurns <= 0 表示不保留历史。
func NewHistory(maxTurns int) *History {
	return &History{maxTurns: maxTurns}
}

// Append 追加一轮对话
func (h *History) Append(user, assistant string) {
	if h == nil || h.maxTurns <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.exchanges = append(h.exchanges, Exchange{User: user, Assistant: assistant})
	if over := len(h.exchanges) - h.maxTurns; over > 0 {
		h.exchanges = append(h.exchanges[:0:0], h.exchanges[over:]...)
	}
}

// Snapshot 返回历史副本
func (h *History) Snapshot() []Exchange {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Len 当前保留的轮数
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.exchanges)
}

// BuildPrompt 渲染提示词：
//
//	User: <u1>
//	Assistant: <a1>
//	User: <utterance>
func BuildPrompt(history []Exchange, utterance string) string {
	var b strings.Builder
	for _, ex := range history {
		b.WriteString("User: ")
		b.WriteString(ex.User)
		b.WriteString("\nAssistant: ")
		b.WriteString(ex.Assistant)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(utterance)
	return b.String()
}
