package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/types"
)

// LocalPlayback 在本机依次播放音频，播放完一段释放一段
type LocalPlayback struct {
	player Player
	logger *zap.Logger
	opts   []StageOption
}

// NewLocalPlayback 创建本地播放消费者
func NewLocalPlayback(player Player, logger *zap.Logger, opts ...StageOption) *LocalPlayback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalPlayback{
		player: player,
		logger: logger.With(zap.String("component", "local_playback")),
		opts:   append([]StageOption{WithStageLogger(logger)}, opts...),
	}
}

// Consume 实现 AudioConsumer。收到哨兵后关闭播放器。
func (p *LocalPlayback) Consume(ctx context.Context, in *StageQueue[*AudioArtifact]) error {
	stage := NewSinkStage("playback", in, p.play, p.player.Close, p.opts...)
	return stage.Run(ctx)
}

func (p *LocalPlayback) play(ctx context.Context, artifact *AudioArtifact) error {
	defer func() {
		if err := artifact.Release(); err != nil {
			p.logger.Warn("release audio failed", zap.String("artifact", artifact.ID), zap.Error(err))
		}
	}()

	if err := p.player.Play(ctx, artifact); err != nil {
		return types.NewError(types.ErrPlaybackFailed, "play audio").
			WithStage("playback").
			WithCause(err)
	}
	return nil
}
