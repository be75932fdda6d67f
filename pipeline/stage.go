package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ⚙️ PipelineStage 通用阶段
// =============================================================================

// Stage 流水线中的一个工作单元。
// Run 返回前必须把结束哨兵交给下游（如果有下游）。
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// StageObserver 记录阶段处理结果，由 internal/metrics 实现
type StageObserver interface {
	ObserveStageItem(stage, status string, duration time.Duration)
}

// Releaser 可释放的负载，阶段失败后清空输入时用到
type Releaser interface {
	Release() error
}

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// StageOption 阶段选项
type StageOption func(*stageBase)

// WithStageLogger 设置日志
func WithStageLogger(logger *zap.Logger) StageOption {
	return func(b *stageBase) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithStageObserver 设置指标观察者
func WithStageObserver(obs StageObserver) StageOption {
	return func(b *stageBase) { b.observer = obs }
}

type stageBase struct {
	name     string
	logger   *zap.Logger
	observer StageObserver
}

func newStageBase(name string, opts []StageOption) stageBase {
	b := stageBase{name: name, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With(zap.String("stage", name))
	return b
}

func (b *stageBase) Name() string { return b.name }

func (b *stageBase) observe(status string, start time.Time) {
	if b.observer != nil {
		b.observer.ObserveStageItem(b.name, status, time.Since(start))
	}
}

// safeCall 把 panic 转成错误，阶段永远不会因为一次处理把下游挂住
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn()
}

// drain 处理失败后丢弃剩余输入直到哨兵，顺带释放资源
func drain[T any](ctx context.Context, in *StageQueue[T], logger *zap.Logger) {
	dropped := 0
	for {
		item, err := in.Take(ctx)
		if err != nil || item.End {
			break
		}
		if r, ok := any(item.Value).(Releaser); ok {
			if err := r.Release(); err != nil {
				logger.Warn("release dropped item failed", zap.Error(err))
			}
		}
		dropped++
	}
	if dropped > 0 {
		logger.Info("dropped pending items", zap.Int("count", dropped))
	}
}

// runLoop take → handle，直到哨兵。handle 出错按结束处理：
// 先调用 finish 通知下游，再清空输入。finish 恰好调用一次。
func runLoop[In any](ctx context.Context, b *stageBase, in *StageQueue[In], handle func(context.Context, In) error, finish func()) error {
	finished := false
	defer func() {
		if !finished {
			finish()
		}
	}()

	for {
		item, err := in.Take(ctx)
		if err != nil {
			return err
		}
		if item.End {
			return nil
		}

		start := time.Now()
		if err := safeCall(func() error { return handle(ctx, item.Value) }); err != nil {
			b.observe(statusFailed, start)
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("stage failed, treating as end of stream", zap.Error(err))
			finished = true
			finish()
			drain(ctx, in, b.logger)
			return nil
		}
		b.observe(statusOK, start)
	}
}

// TransformStage 一进一出的阶段
type TransformStage[In, Out any] struct {
	stageBase
	in  *StageQueue[In]
	out *StageQueue[Out]
	fn  func(context.Context, In) (Out, error)
}

// NewTransformStage 创建转换阶段
func NewTransformStage[In, Out any](name string, in *StageQueue[In], out *StageQueue[Out], fn func(context.Context, In) (Out, error), opts ...StageOption) *TransformStage[In, Out] {
	return &TransformStage[In, Out]{
		stageBase: newStageBase(name, opts),
		in:        in,
		out:       out,
		fn:        fn,
	}
}

// Run 实现 Stage
func (s *TransformStage[In, Out]) Run(ctx context.Context) error {
	return runLoop(ctx, &s.stageBase, s.in, func(ctx context.Context, v In) error {
		out, err := s.fn(ctx, v)
		if err != nil {
			return err
		}
		s.out.Put(out)
		return nil
	}, s.out.PutEnd)
}

// SinkStage 只有输入的阶段
type SinkStage[In any] struct {
	stageBase
	in      *StageQueue[In]
	fn      func(context.Context, In) error
	onClose func() error
}

// NewSinkStage 创建终端阶段，onClose 在退出时调用（可为 nil）
func NewSinkStage[In any](name string, in *StageQueue[In], fn func(context.Context, In) error, onClose func() error, opts ...StageOption) *SinkStage[In] {
	return &SinkStage[In]{
		stageBase: newStageBase(name, opts),
		in:        in,
		fn:        fn,
		onClose:   onClose,
	}
}

// Run 实现 Stage
func (s *SinkStage[In]) Run(ctx context.Context) error {
	return runLoop(ctx, &s.stageBase, s.in, s.fn, func() {
		if s.onClose == nil {
			return
		}
		if err := s.onClose(); err != nil {
			s.logger.Warn("close failed", zap.Error(err))
		}
	})
}
