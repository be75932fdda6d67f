// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 流水线指标
	stageItemsTotal   *prometheus.CounterVec
	stageItemDuration *prometheus.HistogramVec
	turnsTotal        *prometheus.CounterVec
	turnDuration      prometheus.Histogram
	sentencesTotal    prometheus.Counter

	// 投递指标
	pollsTotal         *prometheus.CounterVec
	deliveredBytes     prometheus.Counter
	clientTimeouts     prometheus.Counter
	handshakeTimeouts  prometheus.Counter
	discardedArtifacts prometheus.Counter

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
		},
		[]string{"method", "path"},
	)

	// 流水线指标
	c.stageItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_items_total",
			Help:      "Total number of items processed per pipeline stage",
		},
		[]string{"stage", "status"},
	)

	c.stageItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_item_duration_seconds",
			Help:      "Time spent processing one item per pipeline stage",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"status"},
	)

	c.turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Conversation turn duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	c.sentencesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sentences_total",
			Help:      "Total number of sentences emitted by the segmenter",
		},
	)

	// 投递指标
	c.pollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_polls_total",
			Help:      "Total number of /audio long-poll requests by outcome",
		},
		[]string{"outcome"}, // delivered, end, empty, aborted, error
	)

	c.deliveredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_delivered_bytes_total",
			Help:      "Total bytes of audio delivered to remote clients",
		},
	)

	c.clientTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_timeouts_total",
			Help:      "Total number of delivery sessions terminated by heartbeat timeout",
		},
	)

	c.handshakeTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_timeouts_total",
			Help:      "Total number of turns whose end-of-stream was never acknowledged",
		},
	)

	c.discardedArtifacts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_discarded_total",
			Help:      "Total number of audio artifacts released without being delivered",
		},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// ⚙️ 流水线指标记录
// =============================================================================

// ObserveStageItem 实现 pipeline.StageObserver
func (c *Collector) ObserveStageItem(stage, status string, duration time.Duration) {
	c.stageItemsTotal.WithLabelValues(stage, status).Inc()
	c.stageItemDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveTurn 实现 pipeline.TurnObserver
func (c *Collector) ObserveTurn(status string, sentences int, duration time.Duration) {
	c.turnsTotal.WithLabelValues(status).Inc()
	c.turnDuration.Observe(duration.Seconds())
	c.sentencesTotal.Add(float64(sentences))
}

// =============================================================================
// 📡 投递指标记录
// =============================================================================

// RecordPoll 记录一次 /audio 长轮询的结果
func (c *Collector) RecordPoll(outcome string, bytes int) {
	c.pollsTotal.WithLabelValues(outcome).Inc()
	if bytes > 0 {
		c.deliveredBytes.Add(float64(bytes))
	}
}

// RecordClientTimeout 记录心跳超时
func (c *Collector) RecordClientTimeout() {
	c.clientTimeouts.Inc()
}

// RecordHandshakeTimeout 记录结束握手超时
func (c *Collector) RecordHandshakeTimeout() {
	c.handshakeTimeouts.Inc()
}

// RecordDiscarded 记录未投递即释放的音频
func (c *Collector) RecordDiscarded(n int) {
	c.discardedArtifacts.Add(float64(n))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
