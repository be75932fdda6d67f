package adapters

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputClosed 输入已结束，轮次循环据此退出
var ErrInputClosed = errors.New("input closed")

// LineTranscriber 文本模式：每轮从 reader 读一行作为"转写结果"
type LineTranscriber struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	prompt  io.Writer
	lines   chan lineResult
}

type lineResult struct {
	text string
	err  error
}

// NewLineTranscriber 创建行读取转写器，prompt 非空时每轮先输出提示符
func NewLineTranscriber(r io.Reader, prompt io.Writer) *LineTranscriber {
	return &LineTranscriber{
		scanner: bufio.NewScanner(r),
		prompt:  prompt,
	}
}

// Transcribe 实现 pipeline.Transcriber。读取在后台进行，ctx 取消时立即返回，
// 未消费的那一行留给下一轮。
func (t *LineTranscriber) Transcribe(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lines == nil {
		if t.prompt != nil {
			_, _ = io.WriteString(t.prompt, "> ")
		}
		t.lines = make(chan lineResult, 1)
		go t.readLine(t.lines)
	}

	select {
	case res := <-t.lines:
		t.lines = nil
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *LineTranscriber) readLine(out chan<- lineResult) {
	if t.scanner.Scan() {
		out <- lineResult{text: strings.TrimSpace(t.scanner.Text())}
		return
	}
	if err := t.scanner.Err(); err != nil {
		out <- lineResult{err: err}
		return
	}
	out <- lineResult{err: ErrInputClosed}
}
