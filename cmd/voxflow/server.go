package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/voxflow/adapters"
	"github.com/BaSui01/voxflow/api/handlers"
	"github.com/BaSui01/voxflow/config"
	"github.com/BaSui01/voxflow/delivery"
	"github.com/BaSui01/voxflow/internal/cache"
	"github.com/BaSui01/voxflow/internal/metrics"
	"github.com/BaSui01/voxflow/internal/server"
	"github.com/BaSui01/voxflow/internal/telemetry"
	"github.com/BaSui01/voxflow/pipeline"
)

// =============================================================================
// 🖥️ App 轮次循环
// =============================================================================

// App 按当前配置快照逐轮运行流水线。进程级资源（历史、缓存、指标、
// 限流器）只创建一次，协作者与音频消费者每轮重建。
type App struct {
	reloader *config.Reloader
	logger   *zap.Logger

	transcriber pipeline.Transcriber // 非空时覆盖命令转写（文本模式）
	display     io.Writer            // 非空时把回复写到终端

	metricsHandler http.Handler
	collector      *metrics.Collector
	observer       pipeline.TurnObserver
	history        *pipeline.History
	cache          *cache.Manager
	middleware     Middleware

	metricsManager *server.Manager
	healthHandler  *handlers.HealthHandler

	inputClosed atomic.Bool
	turns       atomic.Int64
	mu          sync.Mutex
	current     *delivery.Service
}

// AppOption App 选项
type AppOption func(*App)

// WithTranscriber 使用给定转写器，忽略 collaborators.transcribe
func WithTranscriber(t pipeline.Transcriber) AppOption {
	return func(a *App) { a.transcriber = t }
}

// WithDisplayWriter 本地模式下把识别结果与回复 token 写到 w
func WithDisplayWriter(w io.Writer) AppOption {
	return func(a *App) { a.display = w }
}

// WithCollector 使用给定指标收集器
func WithCollector(c *metrics.Collector) AppOption {
	return func(a *App) { a.collector = c }
}

// NewApp 创建 App
func NewApp(reloader *config.Reloader, logger *zap.Logger, opts ...AppOption) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		reloader:       reloader,
		logger:         logger,
		metricsHandler: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Turns 已完成的轮数
func (a *App) Turns() int {
	return int(a.turns.Load())
}

// Service 当前轮的投递服务，本地模式或轮次间隙为 nil
func (a *App) Service() *delivery.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Run 运行轮次循环，直到 ctx 取消、达到轮数上限或输入结束
func (a *App) Run(ctx context.Context) error {
	cfg := a.reloader.Current()

	if err := a.init(ctx, cfg); err != nil {
		return err
	}
	defer a.close()

	if err := a.reloader.Watch(ctx); err != nil {
		a.logger.Warn("config hot reload disabled", zap.Error(err))
	}
	defer a.reloader.Stop()

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return a.loop(gctx)
	})

	if a.metricsManager != nil {
		g.Go(func() error {
			select {
			case err := <-a.metricsManager.Errors():
				return fmt.Errorf("metrics server: %w", err)
			case <-gctx.Done():
				return nil
			}
		})
	}

	err := g.Wait()
	cancel()
	return err
}

// init 创建进程级资源
func (a *App) init(ctx context.Context, cfg *config.Config) error {
	if a.collector == nil {
		a.collector = metrics.NewCollector("voxflow", a.logger)
	}

	observers := turnObservers{a.collector}
	instruments, err := telemetry.NewTurnInstruments(otel.GetMeterProvider())
	if err != nil {
		a.logger.Warn("otel turn instruments disabled", zap.Error(err))
	} else {
		observers = append(observers, instruments)
	}
	a.observer = observers

	a.history = pipeline.NewHistory(cfg.Pipeline.HistoryTurns)

	if cfg.Cache.Enabled {
		m, err := cache.NewManager(cache.Config{
			Addr:                cfg.Cache.Addr,
			Password:            cfg.Cache.Password,
			DB:                  cfg.Cache.DB,
			DefaultTTL:          cfg.Cache.TTL,
			KeyPrefix:           cfg.Cache.KeyPrefix,
			PoolSize:            10,
			HealthCheckInterval: 30 * time.Second,
			TLS:                 cfg.Cache.TLS,
		}, a.logger)
		if err != nil {
			a.logger.Warn("synthesis cache unavailable, continuing without it", zap.Error(err))
		} else {
			a.cache = m
		}
	}

	// 限流器跨轮共享，客户端的配额不随轮次重置
	limiter := RateLimiter(ctx, cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, a.logger)
	a.middleware = func(next http.Handler) http.Handler {
		return Chain(next,
			Recovery(a.logger),
			RequestID(),
			RequestLogger(a.logger),
			MetricsMiddleware(a.collector),
			limiter,
		)
	}

	if cfg.Server.MetricsPort > 0 {
		if err := a.startMetricsServer(cfg); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 在独立端口暴露 /metrics 与进程级健康检查
func (a *App) startMetricsServer(cfg *config.Config) error {
	a.healthHandler = handlers.NewHealthHandler(a.logger)
	if a.cache != nil {
		a.healthHandler.RegisterCheck(handlers.NewFuncHealthCheck("redis", a.cache.Ping))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metricsHandler)
	mux.HandleFunc("/health", a.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", a.healthHandler.HandleReady)
	mux.HandleFunc("/version", a.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	a.metricsManager = server.NewManager(mux, serverConfig, a.logger)
	if err := a.metricsManager.Start(); err != nil {
		return err
	}

	a.logger.Info("Metrics server started", zap.Int("port", cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🔁 轮次
// =============================================================================

// errServiceStart 投递服务无法监听，循环就此结束
var errServiceStart = errors.New("failed to start delivery service")

func (a *App) loop(ctx context.Context) error {
	for {
		cfg := a.reloader.Current()
		if limit := cfg.Pipeline.TurnLimit; limit > 0 && a.Turns() >= limit {
			a.logger.Info("turn limit reached", zap.Int("turns", limit))
			return nil
		}

		err := a.runTurn(ctx, cfg)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errServiceStart) {
			return err
		}
		if a.inputClosed.Load() {
			a.logger.Info("input closed")
			return nil
		}
		a.turns.Add(1)

		if err != nil {
			a.logger.Warn("turn failed", zap.Error(err))
		}
	}
}

// runTurn 用配置快照组装并运行一轮
func (a *App) runTurn(ctx context.Context, cfg *config.Config) error {
	collab := a.collaborators(cfg)
	orchestrator := pipeline.NewOrchestrator(collab, pipeline.OrchestratorConfig{
		FallbackSentence: cfg.Pipeline.FallbackSentence,
		Terminators:      cfg.Pipeline.TerminatorRunes(),
	}, a.history, a.observer, a.logger)

	var turn pipeline.Turn
	var displayDone chan error
	if a.display != nil || cfg.Pipeline.Mode == config.ModeRemote {
		turn.Display = pipeline.NewStageQueue[pipeline.DisplayEvent]()
	}

	switch cfg.Pipeline.Mode {
	case config.ModeRemote:
		svc := delivery.NewService(deliveryConfig(cfg), a.logger,
			delivery.WithObserver(a.collector),
			delivery.WithMiddleware(a.middleware),
			delivery.WithDisplay(turn.Display),
		)
		if err := svc.Start(); err != nil {
			return fmt.Errorf("%w: %w", errServiceStart, err)
		}
		a.setService(svc)
		defer func() {
			a.setService(nil)
			sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := svc.Shutdown(sctx); err != nil {
				a.logger.Warn("delivery service shutdown error", zap.Error(err))
			}
		}()
		turn.Audio = svc
	default:
		runner := adapters.NewRunner(cfg.Collaborators.Timeout)
		player := adapters.NewCommandPlayer(adapters.Command(cfg.Collaborators.Play), runner, cfg.Pipeline.WorkDir)
		turn.Audio = pipeline.NewLocalPlayback(player, a.logger, pipeline.WithStageObserver(a.observer))

		if turn.Display != nil {
			displayDone = make(chan error, 1)
			go func() {
				displayDone <- pipeline.NewWriterDisplay(a.display).Consume(ctx, turn.Display)
			}()
		}
	}

	result, err := orchestrator.RunTurn(ctx, turn)
	if displayDone != nil {
		if derr := <-displayDone; derr != nil && ctx.Err() == nil {
			a.logger.Warn("display failed", zap.Error(derr))
		}
	}
	if result != nil && result.Utterance != "" {
		a.logger.Debug("turn result",
			zap.String("turn_id", result.ID),
			zap.Int("sentences", result.Sentences),
			zap.Bool("rejected", result.Rejected),
		)
	}
	return err
}

func (a *App) setService(s *delivery.Service) {
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
}

// collaborators 按配置组装一轮的协作者
func (a *App) collaborators(cfg *config.Config) pipeline.Collaborators {
	c := cfg.Collaborators
	runner := adapters.NewRunner(c.Timeout)

	var collab pipeline.Collaborators
	transcriber := a.transcriber
	if transcriber == nil {
		transcriber = adapters.NewCommandTranscriber(adapters.Command(c.Transcribe), runner)
	}
	collab.Transcriber = &inputWatcher{Transcriber: transcriber, closed: &a.inputClosed}

	if len(c.Translate) > 0 {
		collab.Translator = adapters.NewCommandTranslator(adapters.Command(c.Translate), runner)
	}
	collab.Streamer = adapters.NewCommandStreamer(adapters.Command(c.Complete), adapters.NewRunner(c.CompletionTimeout), a.logger)

	var synth pipeline.Synthesizer = adapters.NewCommandSynthesizer(adapters.Command(c.Synthesize), runner, cfg.Pipeline.WorkDir, cfg.Pipeline.AudioFormat)
	if a.cache != nil {
		synth = adapters.NewCachedSynthesizer(synth, a.cache, cfg.Cache.TTL, a.collector, a.logger)
	}
	collab.Synthesizer = synth

	if len(c.BlockedWords) > 0 {
		collab.Checker = adapters.NewKeywordChecker(c.BlockedWords...)
	}
	return collab
}

// deliveryConfig 把配置映射为投递服务配置
func deliveryConfig(cfg *config.Config) delivery.Config {
	dc := delivery.DefaultConfig()
	dc.Server.Addr = cfg.Server.Addr
	dc.Server.ReadTimeout = cfg.Server.ReadTimeout
	dc.Server.WriteTimeout = cfg.Server.WriteTimeout
	dc.Server.ShutdownTimeout = cfg.Server.ShutdownTimeout
	dc.Server.TLSCertFile = cfg.Server.TLSCertFile
	dc.Server.TLSKeyFile = cfg.Server.TLSKeyFile
	dc.HeartbeatTimeout = cfg.Delivery.HeartbeatTimeout
	dc.MonitorInterval = cfg.Delivery.MonitorInterval
	dc.LongPollTimeout = cfg.Delivery.LongPollTimeout
	dc.HandshakeTimeout = cfg.Delivery.HandshakeTimeout
	dc.AllowAnyOrigin = cfg.Delivery.AllowAnyOrigin
	return dc
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

func (a *App) close() {
	a.logger.Info("Starting graceful shutdown...")

	if a.metricsManager != nil {
		ctx := context.Background()
		if err := a.metricsManager.Shutdown(ctx); err != nil {
			a.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}

	a.logger.Info("Graceful shutdown completed", zap.Int("turns", a.Turns()))
}

// =============================================================================
// 🔧 辅助类型
// =============================================================================

// inputWatcher 记录输入是否已结束
type inputWatcher struct {
	pipeline.Transcriber
	closed *atomic.Bool
}

func (w *inputWatcher) Transcribe(ctx context.Context) (string, error) {
	text, err := w.Transcriber.Transcribe(ctx)
	if errors.Is(err, adapters.ErrInputClosed) {
		w.closed.Store(true)
	}
	return text, err
}

// turnObservers 把轮次事件分发给多个观察者
type turnObservers []pipeline.TurnObserver

func (o turnObservers) ObserveStageItem(stage, status string, duration time.Duration) {
	for _, obs := range o {
		obs.ObserveStageItem(stage, status, duration)
	}
}

func (o turnObservers) ObserveTurn(status string, sentences int, duration time.Duration) {
	for _, obs := range o {
		obs.ObserveTurn(status, sentences, duration)
	}
}
