package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// GateStage 可选的内容审查阶段，位于转写与语言模型之间。
// 审查不通过（或审查本身出错）时跳过语言模型，直接写入兜底句和哨兵。
type GateStage struct {
	stageBase
	in        *Utterance
	out       *Utterance
	sentences *StageQueue[string]
	checker   ContentChecker
	fallback  string
	display   *StageQueue[DisplayEvent]
	turnID    string
	rejected  bool
}

// NewGateStage 创建审查阶段
func NewGateStage(in, out *Utterance, sentences *StageQueue[string], checker ContentChecker, fallback string, opts ...StageOption) *GateStage {
	return &GateStage{
		stageBase: newStageBase("gate", opts),
		in:        in,
		out:       out,
		sentences: sentences,
		checker:   checker,
		fallback:  fallback,
	}
}

// WithDisplay 兜底句同样发布到显示队列
func (s *GateStage) WithDisplay(display *StageQueue[DisplayEvent], turnID string) *GateStage {
	s.display = display
	s.turnID = turnID
	return s
}

// Rejected 本轮是否被拦截，Run 返回后读取
func (s *GateStage) Rejected() bool { return s.rejected }

// Run 实现 Stage
func (s *GateStage) Run(ctx context.Context) error {
	defer s.out.Finish()

	text, err := s.in.Wait(ctx)
	if err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	start := time.Now()
	var verdict Verdict
	err = safeCall(func() error {
		var err error
		verdict, err = s.checker.Check(ctx, text)
		return err
	})
	if err != nil {
		s.observe(statusFailed, start)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Error("content check failed, using fallback", zap.Error(err))
		s.reject()
		return nil
	}
	s.observe(statusOK, start)

	if !verdict.Allowed {
		s.logger.Info("utterance rejected", zap.String("reason", verdict.Reason))
		s.reject()
		return nil
	}
	s.out.Set(text)
	return nil
}

func (s *GateStage) reject() {
	s.rejected = true
	if s.fallback != "" {
		s.sentences.Put(s.fallback)
		if s.display != nil {
			s.display.Put(DisplayEvent{Kind: DisplayToken, Text: s.fallback, TurnID: s.turnID})
		}
	}
	s.sentences.PutEnd()
	s.out.Reject()
}
