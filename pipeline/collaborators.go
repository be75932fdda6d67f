package pipeline

import "context"

// =============================================================================
// 🔌 外部协作者接口
// =============================================================================
// 具体厂商协议不在本包内实现，见 adapters/。

// Transcriber 阻塞地采集并转写一句用户语音
type Transcriber interface {
	Transcribe(ctx context.Context) (string, error)
}

// Translator 可选的翻译步骤
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// TokenDelta 模型流式输出的一个片段。Err 非空表示流异常结束。
type TokenDelta struct {
	Text string
	Err  error
}

// CompletionStreamer 流式补全。返回的 channel 在流结束时关闭。
type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, prompt string) (<-chan TokenDelta, error)
}

// Synthesizer 把一句话合成为音频
type Synthesizer interface {
	Synthesize(ctx context.Context, sentence string) (*AudioArtifact, error)
}

// Player 本地播放器，Play 阻塞到播放完成
type Player interface {
	Play(ctx context.Context, artifact *AudioArtifact) error
	Close() error
}

// Verdict 内容审查结果
type Verdict struct {
	Allowed bool
	Reason  string
}

// ContentChecker 可选的内容审查
type ContentChecker interface {
	Check(ctx context.Context, text string) (Verdict, error)
}

// AudioConsumer 音频队列的最终消费者：本地播放或远程投递
type AudioConsumer interface {
	Consume(ctx context.Context, in *StageQueue[*AudioArtifact]) error
}
