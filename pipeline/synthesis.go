package pipeline

import (
	"context"

	"github.com/BaSui01/voxflow/types"
)

// NewSynthesisStage 句子 → 音频。合成失败按流结束处理，下游收到哨兵。
func NewSynthesisStage(in *StageQueue[string], out *StageQueue[*AudioArtifact], synth Synthesizer, opts ...StageOption) *TransformStage[string, *AudioArtifact] {
	return NewTransformStage("synthesis", in, out, func(ctx context.Context, sentence string) (*AudioArtifact, error) {
		artifact, err := synth.Synthesize(ctx, sentence)
		if err != nil {
			return nil, types.NewError(types.ErrSynthesisFailed, "synthesize sentence").
				WithStage("synthesis").
				WithCause(err)
		}
		if artifact.Sentence == "" {
			artifact.Sentence = sentence
		}
		return artifact, nil
	}, opts...)
}
