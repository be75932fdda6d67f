package pipeline

import (
	"context"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/types"
)

// LanguageModelStage 等待 Utterance，流式调用模型，把增量切成句子送往下游。
// 下游无论如何都会恰好收到一次结束哨兵。
type LanguageModelStage struct {
	stageBase
	in        *Utterance
	out       *StageQueue[string]
	streamer  CompletionStreamer
	history   *History
	display   *StageQueue[DisplayEvent]
	turnID    string
	segOpts   []SegmenterOption
	sentences int
	reply     string
}

// NewLanguageModelStage 创建语言模型阶段
func NewLanguageModelStage(in *Utterance, out *StageQueue[string], streamer CompletionStreamer, opts ...StageOption) *LanguageModelStage {
	return &LanguageModelStage{
		stageBase: newStageBase("language_model", opts),
		in:        in,
		out:       out,
		streamer:  streamer,
	}
}

// WithHistory 启用对话历史
func (s *LanguageModelStage) WithHistory(h *History) *LanguageModelStage {
	s.history = h
	return s
}

// WithDisplay 把每个原始增量镜像到显示队列，结束时追加哨兵
func (s *LanguageModelStage) WithDisplay(display *StageQueue[DisplayEvent], turnID string) *LanguageModelStage {
	s.display = display
	s.turnID = turnID
	return s
}

// WithSegmenterOptions 配置断句
func (s *LanguageModelStage) WithSegmenterOptions(opts ...SegmenterOption) *LanguageModelStage {
	s.segOpts = opts
	return s
}

// Sentences 本轮发出的句子数，Run 返回后读取
func (s *LanguageModelStage) Sentences() int { return s.sentences }

// Reply 本轮完整回复，Run 返回后读取
func (s *LanguageModelStage) Reply() string { return s.reply }

// Run 实现 Stage
func (s *LanguageModelStage) Run(ctx context.Context) error {
	ended := false
	defer func() {
		if !ended {
			s.out.PutEnd()
		}
		if s.display != nil {
			s.display.PutEnd()
		}
	}()

	utterance, err := s.in.Wait(ctx)
	if err != nil {
		return err
	}
	if s.in.Rejected() {
		// 拦截阶段已经写入兜底句和哨兵
		ended = true
		s.logger.Info("utterance rejected upstream, skipping model")
		return nil
	}
	if utterance == "" {
		s.logger.Info("empty utterance, ending stream")
		return nil
	}

	start := time.Now()
	err = safeCall(func() error {
		var err error
		ended, err = s.stream(ctx, utterance)
		return err
	})
	if err != nil {
		s.observe(statusFailed, start)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("completion failed", zap.Error(err))
		return nil
	}
	s.observe(statusOK, start)

	if s.reply != "" {
		s.history.Append(utterance, s.reply)
	}
	s.logger.Info("completion finished",
		zap.Int("sentences", s.sentences),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// stream 返回是否已经发出结束哨兵
func (s *LanguageModelStage) stream(ctx context.Context, utterance string) (bool, error) {
	prompt := BuildPrompt(s.history.Snapshot(), utterance)
	s.logger.Debug("prompt built", zap.String("prompt", prompt))

	deltas, err := s.streamer.StreamCompletion(ctx, prompt)
	if err != nil {
		return false, types.NewError(types.ErrCompletionFailed, "start completion").
			WithStage(s.name).
			WithCause(err)
	}

	var reply strings.Builder
	for item := range Sentences(s.mirror(ctx, deltas), s.segOpts...) {
		if item.End {
			s.out.PutEnd()
			s.reply = reply.String()
			return true, nil
		}
		reply.WriteString(item.Value)
		s.sentences++
		s.out.Put(item.Value)
	}
	return false, nil
}

// mirror 把 channel 转成增量序列，同时镜像到显示队列。
// 流中的错误和 ctx 取消都视为流结束，剩余文本照常冲刷。
func (s *LanguageModelStage) mirror(ctx context.Context, deltas <-chan TokenDelta) iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deltas:
				if !ok {
					return
				}
				if d.Err != nil {
					s.logger.Error("completion stream broke", zap.Error(d.Err))
					return
				}
				if s.display != nil && d.Text != "" {
					s.display.Put(DisplayEvent{Kind: DisplayToken, Text: d.Text, TurnID: s.turnID})
				}
				if !yield(d.Text) {
					return
				}
			}
		}
	}
}
