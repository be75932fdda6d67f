// =============================================================================
// voxflow 主入口
// =============================================================================
// 语音对话流水线：转写 → 审查 → 流式补全 → 断句合成 → 播放/投递
//
// 使用方法:
//
//	voxflow serve                       # 语音模式，按配置本地播放或远程投递
//	voxflow serve --config config.yaml  # 指定配置文件
//	voxflow chat                        # 文本模式，每轮从标准输入读一行
//	voxflow version                     # 显示版本信息
//	voxflow health                      # 检查投递服务
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/voxflow/adapters"
	"github.com/BaSui01/voxflow/config"
	"github.com/BaSui01/voxflow/internal/telemetry"
	"github.com/BaSui01/voxflow/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		os.Exit(runServe(os.Args[2:], nil, nil))
	case "chat":
		os.Exit(runServe(os.Args[2:], os.Stdin, os.Stdout))
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖥️ serve / chat 命令
// =============================================================================

// runServe 运行轮次循环。input 非空时为文本模式：每轮读一行代替录音，
// 回复的 token 写到 output。
func runServe(args []string, input io.Reader, output io.Writer) int {
	name := "serve"
	if input != nil {
		name = "chat"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	mode := fs.String("mode", "", "Override pipeline mode (local|remote)")
	turns := fs.Int("turns", -1, "Override turn limit (0 = unlimited)")
	fs.Parse(args)

	// 加载配置
	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	// 命令行覆盖在每次加载后生效，热重载同样保留
	if *mode != "" || *turns >= 0 {
		loader = loader.WithValidator(func(c *config.Config) error {
			if *mode != "" {
				c.Pipeline.Mode = *mode
			}
			if *turns >= 0 {
				c.Pipeline.TurnLimit = *turns
			}
			return nil
		})
	}

	// 缺少命令模板的配置在加载时即被拒绝，热重载也不会换上它
	textMode := input != nil
	loader = loader.WithValidator(func(c *config.Config) error {
		return c.RequireCollaborators(requiredCollaborators(c, textMode)...)
	})

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	// 初始化日志
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting voxflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("mode", cfg.Pipeline.Mode),
	)

	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	var opts []AppOption
	if input != nil {
		opts = append(opts,
			WithTranscriber(adapters.NewLineTranscriber(input, os.Stderr)),
			WithDisplayWriter(output),
		)
	}
	app := NewApp(config.NewReloader(loader, cfg, logger), logger, opts...)

	// 等待关闭信号
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		logger.Error("voxflow stopped with error", zap.Error(err))
		return 1
	}

	logger.Info("voxflow stopped")
	return 0
}

// requiredCollaborators 当前模式需要的命令模板
func requiredCollaborators(c *config.Config, textMode bool) []string {
	required := []string{"complete", "synthesize"}
	if !textMode {
		required = append(required, "transcribe")
	}
	if c.Pipeline.Mode == config.ModeLocal {
		required = append(required, "play")
	}
	return required
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:5000", "Delivery service address")
	fs.Parse(args)

	client := tlsutil.HTTPClient(5 * time.Second)
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("voxflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`voxflow - streaming voice conversation pipeline

Usage:
  voxflow <command> [options]

Commands:
  serve     Run voice turns (local playback or remote delivery)
  chat      Run text turns read from stdin
  version   Show version information
  health    Check the delivery service
  help      Show this help message

Options for 'serve' and 'chat':
  --config <path>   Path to configuration file (YAML)
  --mode <mode>     Override pipeline mode: local or remote
  --turns <n>       Override turn limit (0 = unlimited)

Examples:
  voxflow serve --config /etc/voxflow/config.yaml
  voxflow chat --mode local --turns 3
  voxflow health --addr http://localhost:5000
  voxflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
