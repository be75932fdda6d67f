package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultPipelineConfig(), cfg.Pipeline)
	assert.Equal(t, DefaultDeliveryConfig(), cfg.Delivery)
	assert.Equal(t, DefaultCollaboratorsConfig(), cfg.Collaborators)
	assert.Equal(t, DefaultCacheConfig(), cfg.Cache)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Greater(t, cfg.WriteTimeout, DefaultDeliveryConfig().LongPollTimeout)
}

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, []rune{',', '，', '。', '！', '？', '!', '?'}, cfg.TerminatorRunes())
	assert.NotEmpty(t, cfg.FallbackSentence)
	assert.Equal(t, 10, cfg.HistoryTurns)
	assert.Zero(t, cfg.TurnLimit)
	assert.NotEmpty(t, cfg.WorkDir)
}

func TestDefaultDeliveryConfig(t *testing.T) {
	cfg := DefaultDeliveryConfig()
	assert.Equal(t, 25*time.Second, cfg.HeartbeatTimeout)
	assert.Equal(t, time.Second, cfg.MonitorInterval)
	assert.Equal(t, 5*time.Minute, cfg.LongPollTimeout)
	assert.Equal(t, 30*time.Second, cfg.HandshakeTimeout)
	assert.False(t, cfg.AllowAnyOrigin)
}

func TestDefaultCollaboratorsConfig(t *testing.T) {
	cfg := DefaultCollaboratorsConfig()
	assert.Empty(t, cfg.Complete)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestDefaultCacheConfig(t *testing.T) {
	cfg := DefaultCacheConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, "voxflow:", cfg.KeyPrefix)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "voxflow", cfg.ServiceName)
}
