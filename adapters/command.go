package adapters

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/pipeline"
	"github.com/BaSui01/voxflow/types"
)

// =============================================================================
// 🎙️ CommandTranscriber
// =============================================================================

// CommandTranscriber 每次调用运行一次录音转写命令，标准输出即文本
type CommandTranscriber struct {
	command Command
	runner  *Runner
}

// NewCommandTranscriber 创建命令转写器
func NewCommandTranscriber(command Command, runner *Runner) *CommandTranscriber {
	return &CommandTranscriber{command: command, runner: runner}
}

// Transcribe 实现 pipeline.Transcriber
func (t *CommandTranscriber) Transcribe(ctx context.Context) (string, error) {
	argv, err := t.command.Expand(nil)
	if err != nil {
		return "", types.NewError(types.ErrTranscriptionFailed, "invalid transcribe command").WithCause(err)
	}
	out, err := t.runner.Run(ctx, argv, "")
	if err != nil {
		return "", types.NewError(types.ErrTranscriptionFailed, "transcribe command failed").WithCause(err)
	}
	return strings.TrimSpace(string(out)), nil
}

// =============================================================================
// 🌐 CommandTranslator
// =============================================================================

// CommandTranslator 翻译命令，{text} 缺省时文本走标准输入
type CommandTranslator struct {
	command Command
	runner  *Runner
}

// NewCommandTranslator 创建命令翻译器
func NewCommandTranslator(command Command, runner *Runner) *CommandTranslator {
	return &CommandTranslator{command: command, runner: runner}
}

// Translate 实现 pipeline.Translator
func (t *CommandTranslator) Translate(ctx context.Context, text string) (string, error) {
	argv, stdin, err := expandInput(t.command, PlaceholderText, text, nil)
	if err != nil {
		return "", types.NewError(types.ErrTranslationFailed, "invalid translate command").WithCause(err)
	}
	out, err := t.runner.Run(ctx, argv, stdin)
	if err != nil {
		return "", types.NewError(types.ErrTranslationFailed, "translate command failed").WithCause(err)
	}
	return strings.TrimSpace(string(out)), nil
}

func expandInput(c Command, placeholder, input string, extra map[string]string) ([]string, string, error) {
	vars := map[string]string{placeholder: input}
	for k, v := range extra {
		vars[k] = v
	}
	argv, err := c.Expand(vars)
	if err != nil {
		return nil, "", err
	}
	if c.Has(placeholder) {
		return argv, "", nil
	}
	return argv, input, nil
}

// =============================================================================
// 💬 CommandStreamer
// =============================================================================

const streamChunkSize = 256

// CommandStreamer 把补全命令的标准输出按到达顺序作为 token 流
type CommandStreamer struct {
	command Command
	runner  *Runner
	logger  *zap.Logger
}

// NewCommandStreamer 创建流式补全命令
func NewCommandStreamer(command Command, runner *Runner, logger *zap.Logger) *CommandStreamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandStreamer{
		command: command,
		runner:  runner,
		logger:  logger.With(zap.String("component", "command_streamer")),
	}
}

// StreamCompletion 实现 pipeline.CompletionStreamer
func (s *CommandStreamer) StreamCompletion(ctx context.Context, prompt string) (<-chan pipeline.TokenDelta, error) {
	argv, stdin, err := expandInput(s.command, PlaceholderPrompt, prompt, nil)
	if err != nil {
		return nil, types.NewError(types.ErrCompletionFailed, "invalid completion command").WithCause(err)
	}

	ctx, cancel := s.runner.context(ctx)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = processWaitDelay
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, types.NewError(types.ErrCompletionFailed, "completion stdout pipe").WithCause(err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, types.NewError(types.ErrCompletionFailed, "start completion command").WithCause(err)
	}

	ch := make(chan pipeline.TokenDelta)
	go func() {
		defer close(ch)
		defer cancel()
		stop := context.AfterFunc(ctx, func() { _ = stdout.Close() })
		defer stop()

		send := func(d pipeline.TokenDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		readErr := readRuneChunks(bufio.NewReader(stdout), func(text string) bool {
			return send(pipeline.TokenDelta{Text: text})
		})
		waitErr := cmd.Wait()

		switch {
		case ctx.Err() != nil:
			s.logger.Debug("completion command stopped", zap.Error(ctx.Err()))
		case readErr != nil:
			send(pipeline.TokenDelta{Err: types.NewError(types.ErrCompletionFailed, "read completion output").WithCause(readErr)})
		case waitErr != nil:
			send(pipeline.TokenDelta{Err: types.NewError(types.ErrCompletionFailed, "completion command failed").
				WithCause(processError(argv[0], waitErr, stderr.String()))})
		}
	}()
	return ch, nil
}

// readRuneChunks 读取到 EOF，只在完整的 UTF-8 字符边界切分
func readRuneChunks(r io.Reader, emit func(string) bool) error {
	buf := make([]byte, streamChunkSize)
	var carry []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completePrefix(data)
			if cut > 0 && !emit(string(data[:cut])) {
				return nil
			}
			carry = append([]byte(nil), data[cut:]...)
		}
		if errors.Is(err, io.EOF) {
			if len(carry) > 0 {
				emit(string(carry))
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// completePrefix 返回末尾不含半个字符的最长前缀长度
func completePrefix(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if utf8.FullRune(data[i:]) {
				return len(data)
			}
			return i
		}
	}
	return len(data)
}

// =============================================================================
// 🔊 CommandSynthesizer
// =============================================================================

// CommandSynthesizer 合成命令。模板含 {output} 时写入工作目录下的唯一文件，
// 否则标准输出即音频。
type CommandSynthesizer struct {
	command Command
	runner  *Runner
	workDir string
	format  string
}

// NewCommandSynthesizer 创建命令合成器
func NewCommandSynthesizer(command Command, runner *Runner, workDir, format string) *CommandSynthesizer {
	if format == "" {
		format = "mp3"
	}
	return &CommandSynthesizer{command: command, runner: runner, workDir: workDir, format: format}
}

// Synthesize 实现 pipeline.Synthesizer
func (s *CommandSynthesizer) Synthesize(ctx context.Context, sentence string) (*pipeline.AudioArtifact, error) {
	toFile := s.command.Has(PlaceholderOutput)

	var path string
	extra := map[string]string{}
	if toFile {
		if err := os.MkdirAll(s.workDir, 0o755); err != nil {
			return nil, types.NewError(types.ErrSynthesisFailed, "create work dir").WithCause(err)
		}
		path = filepath.Join(s.workDir, uuid.NewString()+"."+s.format)
		extra[PlaceholderOutput] = path
	}

	argv, stdin, err := expandInput(s.command, PlaceholderText, sentence, extra)
	if err != nil {
		return nil, types.NewError(types.ErrSynthesisFailed, "invalid synthesize command").WithCause(err)
	}
	out, err := s.runner.Run(ctx, argv, stdin)
	if err != nil {
		if toFile {
			_ = os.Remove(path)
		}
		return nil, types.NewError(types.ErrSynthesisFailed, "synthesize command failed").WithCause(err)
	}

	if !toFile {
		if len(out) == 0 {
			return nil, types.NewError(types.ErrSynthesisFailed, "synthesize command produced no audio")
		}
		return pipeline.NewMemoryArtifact(sentence, out, s.format), nil
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(path)
		return nil, types.NewError(types.ErrSynthesisFailed, fmt.Sprintf("no audio written to %s", path)).WithCause(err)
	}
	return pipeline.NewFileArtifact(sentence, path, s.format), nil
}

// =============================================================================
// ▶️ CommandPlayer
// =============================================================================

// ErrPlayerClosed 播放器已关闭
var ErrPlayerClosed = errors.New("player closed")

// CommandPlayer 以 {file} 调用播放命令，阻塞到命令退出
type CommandPlayer struct {
	command Command
	runner  *Runner
	workDir string

	mu     sync.Mutex
	closed bool
}

// NewCommandPlayer 创建命令播放器
func NewCommandPlayer(command Command, runner *Runner, workDir string) *CommandPlayer {
	return &CommandPlayer{command: command, runner: runner, workDir: workDir}
}

// Play 实现 pipeline.Player。内存音频先落到临时文件。
func (p *CommandPlayer) Play(ctx context.Context, artifact *pipeline.AudioArtifact) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrPlayerClosed
	}

	path := artifact.Path
	if path == "" {
		tmp, err := p.spill(artifact)
		if err != nil {
			return err
		}
		defer os.Remove(tmp)
		path = tmp
	}

	argv, err := p.command.Expand(map[string]string{PlaceholderFile: path})
	if err != nil {
		return fmt.Errorf("invalid play command: %w", err)
	}
	if _, err := p.runner.Run(ctx, argv, ""); err != nil {
		return fmt.Errorf("play %s: %w", artifact.ID, err)
	}
	return nil
}

func (p *CommandPlayer) spill(artifact *pipeline.AudioArtifact) (string, error) {
	data, err := artifact.Bytes()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	f, err := os.CreateTemp(p.workDir, "play-*."+artifact.Format)
	if err != nil {
		return "", fmt.Errorf("create temp audio: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp audio: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp audio: %w", err)
	}
	return f.Name(), nil
}

// Close 实现 pipeline.Player
func (p *CommandPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
