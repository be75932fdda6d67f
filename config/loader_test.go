// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, ModeLocal, cfg.Pipeline.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: "127.0.0.1:6000"
  read_timeout: 60s

pipeline:
  mode: remote
  terminators: ["。", "."]
  history_turns: 3
  turn_limit: 5

delivery:
  heartbeat_timeout: 10s
  long_poll_timeout: 1m

collaborators:
  complete: ["ollama", "run", "llama3", "{prompt}"]
  synthesize: ["piper", "--output_file", "{output}"]
  blocked_words: ["secret"]

cache:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:6000", cfg.Server.Addr)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, ModeRemote, cfg.Pipeline.Mode)
	assert.Equal(t, []rune{'。', '.'}, cfg.Pipeline.TerminatorRunes())
	assert.Equal(t, 3, cfg.Pipeline.HistoryTurns)
	assert.Equal(t, 5, cfg.Pipeline.TurnLimit)
	assert.Equal(t, 10*time.Second, cfg.Delivery.HeartbeatTimeout)
	assert.Equal(t, time.Minute, cfg.Delivery.LongPollTimeout)
	assert.Equal(t, 30*time.Second, cfg.Delivery.HandshakeTimeout, "unset keys keep defaults")
	assert.Equal(t, []string{"ollama", "run", "llama3", "{prompt}"}, cfg.Collaborators.Complete)
	assert.Equal(t, []string{"secret"}, cfg.Collaborators.BlockedWords)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Cache.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("VOXFLOW_SERVER_ADDR", ":7000")
	t.Setenv("VOXFLOW_SERVER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("VOXFLOW_PIPELINE_MODE", "remote")
	t.Setenv("VOXFLOW_PIPELINE_TERMINATORS", "。,！")
	t.Setenv("VOXFLOW_DELIVERY_HEARTBEAT_TIMEOUT", "5s")
	t.Setenv("VOXFLOW_DELIVERY_ALLOW_ANY_ORIGIN", "true")
	t.Setenv("VOXFLOW_COLLABORATORS_PLAY", "ffplay -nodisp -autoexit {file}")
	t.Setenv("VOXFLOW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, ModeRemote, cfg.Pipeline.Mode)
	assert.Equal(t, []string{"。", "！"}, cfg.Pipeline.Terminators)
	assert.Equal(t, 5*time.Second, cfg.Delivery.HeartbeatTimeout)
	assert.True(t, cfg.Delivery.AllowAnyOrigin)
	assert.Equal(t, []string{"ffplay", "-nodisp", "-autoexit", "{file}"}, cfg.Collaborators.Play)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":6000"
pipeline:
  fallback_sentence: "from yaml"
  history_turns: 4
`)
	t.Setenv("VOXFLOW_SERVER_ADDR", ":6001")
	t.Setenv("VOXFLOW_PIPELINE_HISTORY_TURNS", "7")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, ":6001", cfg.Server.Addr)
	assert.Equal(t, 7, cfg.Pipeline.HistoryTurns)
	assert.Equal(t, "from yaml", cfg.Pipeline.FallbackSentence)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_ADDR", ":6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, ":6666", cfg.Server.Addr)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("VOXFLOW_DELIVERY_HEARTBEAT_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VOXFLOW_DELIVERY_HEARTBEAT_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("VOXFLOW_PIPELINE_MODE", "bogus")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/voxflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Server.Addr)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: [invalid
  this is not valid yaml
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad mode", func(c *Config) { c.Pipeline.Mode = "stream" }, "pipeline.mode"},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"metrics port", func(c *Config) { c.Server.MetricsPort = 70000 }, "metrics port"},
		{"cert without key", func(c *Config) { c.Server.TLSCertFile = "cert.pem" }, "tls_key_file"},
		{"cert and key", func(c *Config) { c.Server.TLSCertFile, c.Server.TLSKeyFile = "cert.pem", "key.pem" }, ""},
		{"no terminators", func(c *Config) { c.Pipeline.Terminators = nil }, "terminators"},
		{"multi-char terminator", func(c *Config) { c.Pipeline.Terminators = []string{"..."} }, "single character"},
		{"negative history", func(c *Config) { c.Pipeline.HistoryTurns = -1 }, "history_turns"},
		{"zero heartbeat", func(c *Config) { c.Delivery.HeartbeatTimeout = 0 }, "heartbeat_timeout"},
		{"zero long poll", func(c *Config) { c.Delivery.LongPollTimeout = 0 }, "long_poll_timeout"},
		{"zero handshake", func(c *Config) { c.Delivery.HandshakeTimeout = 0 }, "handshake_timeout"},
		{"cache without addr", func(c *Config) { c.Cache.Enabled = true; c.Cache.Addr = "" }, "cache.addr"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_RequireCollaborators(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Collaborators.Complete = []string{"cat"}

	assert.NoError(t, cfg.RequireCollaborators("complete"))

	err := cfg.RequireCollaborators("complete", "synthesize", "play")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesize, play")
}

func TestMustLoad_Success(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":6002\"\n")
	cfg := MustLoad(path)
	assert.Equal(t, ":6002", cfg.Server.Addr)
}

func TestMustLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "server: [")
	assert.Panics(t, func() { MustLoad(path) })
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a , b ,"))
	assert.Equal(t, []string{"whisper", "--model", "base"}, splitList("whisper  --model base"))
	assert.Empty(t, splitList("   "))
}
