package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/voxflow/config"
)

func TestRequiredCollaborators(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		textMode bool
		want     []string
	}{
		{"voice local", config.ModeLocal, false, []string{"complete", "synthesize", "transcribe", "play"}},
		{"voice remote", config.ModeRemote, false, []string{"complete", "synthesize", "transcribe"}},
		{"text local", config.ModeLocal, true, []string{"complete", "synthesize", "play"}},
		{"text remote", config.ModeRemote, true, []string{"complete", "synthesize"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Pipeline.Mode = tt.mode
			assert.Equal(t, tt.want, requiredCollaborators(cfg, tt.textMode))
		})
	}
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := config.DefaultLogConfig()
			cfg.Level = tt.level
			logger := initLogger(cfg)
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestInitLogger_Console(t *testing.T) {
	cfg := config.DefaultLogConfig()
	cfg.Format = "console"
	cfg.OutputPaths = nil
	assert.NotNil(t, initLogger(cfg))
}
