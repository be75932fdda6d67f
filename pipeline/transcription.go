package pipeline

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// TranscriptionStage 每轮只运行一次：采集并转写，可选翻译，写入 Utterance。
// 出错时 Utterance 保持为空，下游据此直接结束。
type TranscriptionStage struct {
	stageBase
	transcriber Transcriber
	translator  Translator
	out         *Utterance
	display     *StageQueue[DisplayEvent]
	turnID      string
}

// NewTranscriptionStage 创建转写阶段。translator 可为 nil。
func NewTranscriptionStage(transcriber Transcriber, translator Translator, out *Utterance, opts ...StageOption) *TranscriptionStage {
	return &TranscriptionStage{
		stageBase:   newStageBase("transcription", opts),
		transcriber: transcriber,
		translator:  translator,
		out:         out,
	}
}

// WithDisplay 把识别出的文本同步发布到显示队列
func (s *TranscriptionStage) WithDisplay(display *StageQueue[DisplayEvent], turnID string) *TranscriptionStage {
	s.display = display
	s.turnID = turnID
	return s
}

// Run 实现 Stage
func (s *TranscriptionStage) Run(ctx context.Context) error {
	defer s.out.Finish()

	start := time.Now()
	var text string
	err := safeCall(func() error {
		var err error
		text, err = s.transcribe(ctx)
		return err
	})
	if err != nil {
		s.observe(statusFailed, start)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("transcription failed", zap.Error(err))
		return nil
	}
	s.observe(statusOK, start)

	if text == "" {
		s.logger.Info("empty utterance")
		return nil
	}
	s.logger.Info("utterance transcribed", zap.Int("chars", len(text)))

	if s.display != nil {
		s.display.Put(DisplayEvent{Kind: DisplayUtterance, Text: text, TurnID: s.turnID})
	}
	s.out.Set(text)
	return nil
}

func (s *TranscriptionStage) transcribe(ctx context.Context) (string, error) {
	text, err := s.transcriber.Transcribe(ctx)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" || s.translator == nil {
		return text, nil
	}

	translated, err := s.translator.Translate(ctx, text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(translated), nil
}
