package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🎼 PipelineOrchestrator 单轮编排
// =============================================================================

const tracerName = "github.com/BaSui01/voxflow/pipeline"

// Collaborators 一轮对话用到的外部协作者
type Collaborators struct {
	Transcriber Transcriber
	Translator  Translator // 可选
	Streamer    CompletionStreamer
	Synthesizer Synthesizer
	Checker     ContentChecker // 可选，非 nil 时启用审查阶段
}

// OrchestratorConfig 编排配置
type OrchestratorConfig struct {
	// 审查不通过时朗读的句子
	FallbackSentence string
	// 断句符，为空时使用 DefaultTerminators
	Terminators []rune
}

// TurnObserver 记录整轮结果
type TurnObserver interface {
	StageObserver
	ObserveTurn(status string, sentences int, duration time.Duration)
}

// Turn 一轮对话的输出端
type Turn struct {
	ID      string
	Audio   AudioConsumer
	Display *StageQueue[DisplayEvent] // 可选
}

// TurnResult 一轮对话的结果
type TurnResult struct {
	ID        string
	Utterance string
	Reply     string
	Sentences int
	Rejected  bool
	Duration  time.Duration
}

// Orchestrator 为每一轮搭建阶段链，并发启动全部阶段，按生产者到消费者的顺序等待
type Orchestrator struct {
	collab   Collaborators
	config   OrchestratorConfig
	history  *History
	observer TurnObserver
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewOrchestrator 创建编排器。history 与 observer 可为 nil。
func NewOrchestrator(collab Collaborators, config OrchestratorConfig, history *History, observer TurnObserver, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		collab:   collab,
		config:   config,
		history:  history,
		observer: observer,
		logger:   logger.With(zap.String("component", "orchestrator")),
		tracer:   otel.Tracer(tracerName),
	}
}

type joinable struct {
	stage Stage
	done  chan struct{}
}

// RunTurn 运行一轮对话。阶段内的失败都在本轮内消化，
// 返回的错误只来自 ctx 取消或音频消费者。
func (o *Orchestrator) RunTurn(ctx context.Context, turn Turn) (*TurnResult, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Audio == nil {
		return nil, errors.New("turn has no audio consumer")
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.turn", trace.WithAttributes(attribute.String("turn.id", turn.ID)))
	defer span.End()

	logger := o.logger.With(zap.String("turn_id", turn.ID))
	start := time.Now()

	var stageOpts []StageOption
	stageOpts = append(stageOpts, WithStageLogger(logger))
	if o.observer != nil {
		stageOpts = append(stageOpts, WithStageObserver(o.observer))
	}
	var segOpts []SegmenterOption
	if len(o.config.Terminators) > 0 {
		segOpts = append(segOpts, WithTerminators(o.config.Terminators...))
	}

	utterance := NewUtterance()
	sentences := NewStageQueue[string]()
	audio := NewStageQueue[*AudioArtifact]()

	transcription := NewTranscriptionStage(o.collab.Transcriber, o.collab.Translator, utterance, stageOpts...)
	stages := []Stage{transcription}

	llmInput := utterance
	var gate *GateStage
	if o.collab.Checker != nil {
		llmInput = NewUtterance()
		gate = NewGateStage(utterance, llmInput, sentences, o.collab.Checker, o.config.FallbackSentence, stageOpts...)
		stages = append(stages, gate)
	}

	llm := NewLanguageModelStage(llmInput, sentences, o.collab.Streamer, stageOpts...).
		WithHistory(o.history).
		WithSegmenterOptions(segOpts...)
	if turn.Display != nil {
		transcription.WithDisplay(turn.Display, turn.ID)
		llm.WithDisplay(turn.Display, turn.ID)
		if gate != nil {
			gate.WithDisplay(turn.Display, turn.ID)
		}
	}

	stages = append(stages,
		llm,
		NewSynthesisStage(sentences, audio, o.collab.Synthesizer, stageOpts...),
		&consumerStage{name: "audio_consumer", consumer: turn.Audio, in: audio},
	)

	g, gctx := errgroup.WithContext(ctx)
	joins := make([]joinable, 0, len(stages))
	for _, st := range stages {
		j := joinable{stage: st, done: make(chan struct{})}
		joins = append(joins, j)
		g.Go(func() error {
			defer close(j.done)
			sctx, sspan := o.tracer.Start(gctx, "pipeline.stage."+j.stage.Name())
			defer sspan.End()
			if err := j.stage.Run(sctx); err != nil {
				sspan.RecordError(err)
				sspan.SetStatus(codes.Error, err.Error())
				return err
			}
			return nil
		})
	}

	for _, j := range joins {
		<-j.done
		logger.Debug("stage joined", zap.String("stage", j.stage.Name()))
	}
	err := g.Wait()

	text, _ := utterance.Wait(context.Background())
	result := &TurnResult{
		ID:        turn.ID,
		Utterance: text,
		Reply:     llm.Reply(),
		Sentences: llm.Sentences(),
		Rejected:  gate != nil && gate.Rejected(),
		Duration:  time.Since(start),
	}
	if result.Rejected {
		result.Reply = o.config.FallbackSentence
		if result.Reply != "" {
			result.Sentences = 1
		}
	}

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("turn finished with error", zap.Error(err))
	} else {
		logger.Info("turn finished",
			zap.Int("sentences", result.Sentences),
			zap.Bool("rejected", result.Rejected),
			zap.Duration("elapsed", result.Duration),
		)
	}
	if o.observer != nil {
		o.observer.ObserveTurn(status, result.Sentences, result.Duration)
	}
	return result, err
}

// consumerStage 把 AudioConsumer 适配成 Stage
type consumerStage struct {
	name     string
	consumer AudioConsumer
	in       *StageQueue[*AudioArtifact]
}

func (c *consumerStage) Name() string { return c.name }

func (c *consumerStage) Run(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.in)
}
