package pipeline

import (
	"context"
	"fmt"
	"io"
)

// DisplayEventKind 显示事件类型
type DisplayEventKind string

const (
	DisplayUtterance DisplayEventKind = "utterance"
	DisplayToken     DisplayEventKind = "token"
	DisplayEnd       DisplayEventKind = "end"
)

// DisplayEvent 显示通道上的一条事件：用户的话或模型的原始 token
type DisplayEvent struct {
	Kind   DisplayEventKind `json:"kind"`
	Text   string           `json:"text,omitempty"`
	TurnID string           `json:"turn_id,omitempty"`
}

// WriterDisplay 把显示事件写到终端
type WriterDisplay struct {
	w io.Writer
}

// NewWriterDisplay 创建终端显示
func NewWriterDisplay(w io.Writer) *WriterDisplay {
	return &WriterDisplay{w: w}
}

// Consume 消费显示队列直到结束哨兵
func (d *WriterDisplay) Consume(ctx context.Context, in *StageQueue[DisplayEvent]) error {
	for {
		item, err := in.Take(ctx)
		if err != nil {
			return err
		}
		if item.End {
			_, err := fmt.Fprintln(d.w)
			return err
		}

		var werr error
		switch item.Value.Kind {
		case DisplayUtterance:
			_, werr = fmt.Fprintf(d.w, "you> %s\nbot> ", item.Value.Text)
		case DisplayToken:
			_, werr = io.WriteString(d.w, item.Value.Text)
		}
		if werr != nil {
			return werr
		}
	}
}
