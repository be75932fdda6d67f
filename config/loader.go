// =============================================================================
// 📦 voxflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("voxflow.yaml").
//	    WithEnvPrefix("VOXFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 voxflow 的完整配置结构
type Config struct {
	// Server 投递服务与指标服务
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Pipeline 流水线
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Delivery 远程投递
	Delivery DeliveryConfig `yaml:"delivery" env:"DELIVERY"`

	// Collaborators 外部协作者命令
	Collaborators CollaboratorsConfig `yaml:"collaborators" env:"COLLABORATORS"`

	// Cache 合成缓存
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 投递服务监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// Metrics 端口，0 表示关闭
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需大于长轮询超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端 IP 的请求速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 速率突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 投递服务证书，与私钥同时配置时启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// 投递服务私钥
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// Pipeline modes
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// PipelineConfig 流水线配置
type PipelineConfig struct {
	// 音频去向: local 本地播放, remote 远程投递
	Mode string `yaml:"mode" env:"MODE"`
	// 句子结束符
	Terminators []string `yaml:"terminators" env:"TERMINATORS"`
	// 内容审查拒绝时播报的句子
	FallbackSentence string `yaml:"fallback_sentence" env:"FALLBACK_SENTENCE"`
	// 提示词中保留的历史轮数
	HistoryTurns int `yaml:"history_turns" env:"HISTORY_TURNS"`
	// 轮次上限，0 表示不限
	TurnLimit int `yaml:"turn_limit" env:"TURN_LIMIT"`
	// 合成音频工作目录
	WorkDir string `yaml:"work_dir" env:"WORK_DIR"`
	// 合成音频格式
	AudioFormat string `yaml:"audio_format" env:"AUDIO_FORMAT"`
}

// DeliveryConfig 远程投递配置
type DeliveryConfig struct {
	// 心跳超时
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout" env:"HEARTBEAT_TIMEOUT"`
	// 心跳复查间隔
	MonitorInterval time.Duration `yaml:"monitor_interval" env:"MONITOR_INTERVAL"`
	// 长轮询超时
	LongPollTimeout time.Duration `yaml:"long_poll_timeout" env:"LONG_POLL_TIMEOUT"`
	// 结束握手超时
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	// /live 接受任意 Origin
	AllowAnyOrigin bool `yaml:"allow_any_origin" env:"ALLOW_ANY_ORIGIN"`
}

// CollaboratorsConfig 协作者命令模板（argv，不经过 shell）
type CollaboratorsConfig struct {
	// 录音并转写，标准输出为文本
	Transcribe []string `yaml:"transcribe" env:"TRANSCRIBE"`
	// 可选翻译，{text}
	Translate []string `yaml:"translate" env:"TRANSLATE"`
	// 流式补全，{prompt}
	Complete []string `yaml:"complete" env:"COMPLETE"`
	// 合成，{text} {output}
	Synthesize []string `yaml:"synthesize" env:"SYNTHESIZE"`
	// 本地播放，{file}
	Play []string `yaml:"play" env:"PLAY"`
	// 屏蔽词，非空时启用内容审查
	BlockedWords []string `yaml:"blocked_words" env:"BLOCKED_WORDS"`
	// 单条命令超时，流式补全除外
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 流式补全超时
	CompletionTimeout time.Duration `yaml:"completion_timeout" env:"COMPLETION_TIMEOUT"`
}

// CacheConfig 合成缓存配置
type CacheConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否以 TLS 连接 Redis
	TLS bool `yaml:"tls" env:"TLS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VOXFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 配置文件路径
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 命令模板按空白切分，其余列表按逗号切分
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(splitList(value)))
		}
	}

	return nil
}

func splitList(value string) []string {
	var parts []string
	if strings.Contains(value, ",") {
		parts = strings.Split(value, ",")
	} else {
		parts = strings.Fields(value)
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	switch c.Pipeline.Mode {
	case ModeLocal, ModeRemote:
	default:
		errs = append(errs, fmt.Sprintf("pipeline.mode must be %q or %q", ModeLocal, ModeRemote))
	}
	if len(c.Pipeline.Terminators) == 0 {
		errs = append(errs, "pipeline.terminators must not be empty")
	}
	for _, t := range c.Pipeline.Terminators {
		if utf8.RuneCountInString(t) != 1 {
			errs = append(errs, fmt.Sprintf("pipeline.terminators: %q is not a single character", t))
		}
	}
	if c.Pipeline.HistoryTurns < 0 {
		errs = append(errs, "pipeline.history_turns must not be negative")
	}
	if c.Pipeline.TurnLimit < 0 {
		errs = append(errs, "pipeline.turn_limit must not be negative")
	}

	if c.Delivery.HeartbeatTimeout <= 0 {
		errs = append(errs, "delivery.heartbeat_timeout must be positive")
	}
	if c.Delivery.LongPollTimeout <= 0 {
		errs = append(errs, "delivery.long_poll_timeout must be positive")
	}
	if c.Delivery.HandshakeTimeout <= 0 {
		errs = append(errs, "delivery.handshake_timeout must be positive")
	}

	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache.addr is required when cache is enabled")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of debug, info, warn, error")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TerminatorRunes 断句符转为 rune
func (p PipelineConfig) TerminatorRunes() []rune {
	runes := make([]rune, 0, len(p.Terminators))
	for _, t := range p.Terminators {
		if r, size := utf8.DecodeRuneInString(t); size > 0 && r != utf8.RuneError {
			runes = append(runes, r)
		}
	}
	return runes
}

// RequireCollaborators 检查运行所需的命令模板均已配置
func (c *Config) RequireCollaborators(names ...string) error {
	templates := map[string][]string{
		"transcribe": c.Collaborators.Transcribe,
		"translate":  c.Collaborators.Translate,
		"complete":   c.Collaborators.Complete,
		"synthesize": c.Collaborators.Synthesize,
		"play":       c.Collaborators.Play,
	}
	var missing []string
	for _, name := range names {
		if len(templates[name]) == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("collaborators not configured: %s", strings.Join(missing, ", "))
	}
	return nil
}
