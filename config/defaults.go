// =============================================================================
// 📦 voxflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Pipeline:      DefaultPipelineConfig(),
		Delivery:      DefaultDeliveryConfig(),
		Collaborators: DefaultCollaboratorsConfig(),
		Cache:         DefaultCacheConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":5000",
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    6 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultPipelineConfig 返回默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Mode:             ModeLocal,
		Terminators:      []string{",", "，", "。", "！", "？", "!", "?"},
		FallbackSentence: "Sorry, I can't talk about that.",
		HistoryTurns:     10,
		TurnLimit:        0,
		WorkDir:          filepath.Join(os.TempDir(), "voxflow"),
		AudioFormat:      "mp3",
	}
}

// DefaultDeliveryConfig 返回默认投递配置
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		HeartbeatTimeout: 25 * time.Second,
		MonitorInterval:  time.Second,
		LongPollTimeout:  5 * time.Minute,
		HandshakeTimeout: 30 * time.Second,
	}
}

// DefaultCollaboratorsConfig 返回默认协作者配置，命令模板需由使用者提供
func DefaultCollaboratorsConfig() CollaboratorsConfig {
	return CollaboratorsConfig{
		Timeout:           2 * time.Minute,
		CompletionTimeout: 5 * time.Minute,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		TTL:       24 * time.Hour,
		KeyPrefix: "voxflow:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "voxflow",
		SampleRate:   0.1,
	}
}
