package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AudioArtifact 一段合成好的音频。
// 创建者持有它直到消费者播放或投递完毕，由消费者调用 Release 释放。
type AudioArtifact struct {
	ID        string
	Sentence  string
	Format    string
	Path      string
	Data      []byte
	CreatedAt time.Time

	mu       sync.Mutex
	released bool
}

// NewFileArtifact 创建以文件为载体的音频
func NewFileArtifact(sentence, path, format string) *AudioArtifact {
	return &AudioArtifact{
		ID:        uuid.NewString(),
		Sentence:  sentence,
		Format:    format,
		Path:      path,
		CreatedAt: time.Now(),
	}
}

// NewMemoryArtifact 创建以内存字节为载体的音频
func NewMemoryArtifact(sentence string, data []byte, format string) *AudioArtifact {
	return &AudioArtifact{
		ID:        uuid.NewString(),
		Sentence:  sentence,
		Format:    format,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// ErrArtifactReleased 音频已释放
var ErrArtifactReleased = errors.New("audio artifact already released")

// Bytes 读取音频内容
func (a *AudioArtifact) Bytes() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil, ErrArtifactReleased
	}
	if a.Path == "" {
		return a.Data, nil
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return nil, fmt.Errorf("read audio %s: %w", a.Path, err)
	}
	return data, nil
}

// Release 删除底层文件或丢弃内存数据，可重复调用
func (a *AudioArtifact) Release() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return nil
	}
	a.released = true
	a.Data = nil
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove audio %s: %w", a.Path, err)
	}
	return nil
}

// Released 是否已释放
func (a *AudioArtifact) Released() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// ContentType 根据格式返回 MIME 类型
func (a *AudioArtifact) ContentType() string {
	switch strings.ToLower(a.Format) {
	case "mp3", "mpeg":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg", "opus":
		return "audio/ogg"
	case "flac":
		return "audio/flac"
	case "pcm", "raw":
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}
