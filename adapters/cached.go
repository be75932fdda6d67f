package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/internal/cache"
	"github.com/BaSui01/voxflow/pipeline"
)

const synthesisCacheType = "synthesis"

// AudioCache 合成缓存后端，由 internal/cache.Manager 实现
type AudioCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheObserver 缓存命中统计，由 internal/metrics 实现
type CacheObserver interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type cachedAudio struct {
	Format string `json:"format"`
	Data   []byte `json:"data"`
}

// CachedSynthesizer 按句子的 SHA-256 缓存合成结果。命中时返回内存音频。
// 缓存读写失败只记日志，不影响合成。
type CachedSynthesizer struct {
	next     pipeline.Synthesizer
	cache    AudioCache
	ttl      time.Duration
	observer CacheObserver
	logger   *zap.Logger
}

// NewCachedSynthesizer 包装合成器，observer 可为 nil
func NewCachedSynthesizer(next pipeline.Synthesizer, c AudioCache, ttl time.Duration, observer CacheObserver, logger *zap.Logger) *CachedSynthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSynthesizer{
		next:     next,
		cache:    c,
		ttl:      ttl,
		observer: observer,
		logger:   logger.With(zap.String("component", "synthesis_cache")),
	}
}

// SynthesisKey 句子对应的缓存键
func SynthesisKey(sentence string) string {
	sum := sha256.Sum256([]byte(sentence))
	return "tts:" + hex.EncodeToString(sum[:])
}

// Synthesize 实现 pipeline.Synthesizer
func (s *CachedSynthesizer) Synthesize(ctx context.Context, sentence string) (*pipeline.AudioArtifact, error) {
	key := SynthesisKey(sentence)

	var hit cachedAudio
	err := s.cache.GetJSON(ctx, key, &hit)
	switch {
	case err == nil && len(hit.Data) > 0:
		s.record(true)
		return pipeline.NewMemoryArtifact(sentence, hit.Data, hit.Format), nil
	case err != nil && !cache.IsCacheMiss(err):
		s.logger.Warn("synthesis cache read failed", zap.Error(err))
	}
	s.record(false)

	artifact, err := s.next.Synthesize(ctx, sentence)
	if err != nil {
		return nil, err
	}

	data, err := artifact.Bytes()
	if err != nil {
		s.logger.Warn("read synthesized audio for cache failed", zap.String("artifact", artifact.ID), zap.Error(err))
		return artifact, nil
	}
	if err := s.cache.SetJSON(ctx, key, cachedAudio{Format: artifact.Format, Data: data}, s.ttl); err != nil {
		s.logger.Warn("synthesis cache write failed", zap.Error(err))
	}
	return artifact, nil
}

func (s *CachedSynthesizer) record(hit bool) {
	if s.observer == nil {
		return
	}
	if hit {
		s.observer.RecordCacheHit(synthesisCacheType)
	} else {
		s.observer.RecordCacheMiss(synthesisCacheType)
	}
}
