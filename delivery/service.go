package delivery

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/api/handlers"
	"github.com/BaSui01/voxflow/internal/server"
	"github.com/BaSui01/voxflow/pipeline"
	"github.com/BaSui01/voxflow/types"
)

// =============================================================================
// 📡 RemoteDeliveryService
// =============================================================================

// State 投递状态
type State string

const (
	StateWaiting         State = "waiting_for_first_item"
	StateServing         State = "serving_item"
	StateAwaitingPickup  State = "awaiting_pickup"
	StateEndOfStream     State = "end_of_stream"
	StateEndAcknowledged State = "end_acknowledged"
	StateTerminated      State = "terminated_by_timeout"
)

const (
	// StreamStatusHeader 204 响应通过它告知流已结束
	StreamStatusHeader = "X-Stream-Status"
	streamStatusEnd    = "END"

	noAudioMessage   = "No audio available"
	heartbeatMessage = "Heartbeat received"
)

// Poll outcomes
const (
	PollDelivered = "delivered"
	PollEnd       = "end"
	PollEmpty     = "empty"
	PollAborted   = "aborted"
	PollError     = "error"
)

// Config 投递配置
type Config struct {
	Server server.Config

	// 第一段音频出队后，超过该时长没有心跳即终止
	HeartbeatTimeout time.Duration
	// 心跳监视器最长复查间隔
	MonitorInterval time.Duration
	// /audio 长轮询最长等待
	LongPollTimeout time.Duration
	// 发出结束信号后等待客户端确认的最长时间
	HandshakeTimeout time.Duration
	// /live 是否接受任意 Origin
	AllowAnyOrigin bool
}

// DefaultConfig 返回默认投递配置
func DefaultConfig() Config {
	return Config{
		Server:           server.DefaultConfig(),
		HeartbeatTimeout: 25 * time.Second,
		MonitorInterval:  time.Second,
		LongPollTimeout:  5 * time.Minute,
		HandshakeTimeout: 30 * time.Second,
	}
}

// Observer 投递指标，由 internal/metrics 实现
type Observer interface {
	RecordPoll(outcome string, bytes int)
	RecordClientTimeout()
	RecordHandshakeTimeout()
	RecordDiscarded(n int)
}

// Option 服务选项
type Option func(*Service)

// WithObserver 设置指标观察者
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithMiddleware 包装 HTTP 处理链
func WithMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *Service) { s.middleware = mw }
}

// WithDisplay 通过 /live 推送显示事件
func WithDisplay(display *pipeline.StageQueue[pipeline.DisplayEvent]) Option {
	return func(s *Service) { s.display = display }
}

// Service 一轮对话的远程投递服务
type Service struct {
	config     Config
	logger     *zap.Logger
	observer   Observer
	middleware func(http.Handler) http.Handler

	liveness *Liveness
	mailbox  *Mailbox
	state    atomic.Value

	display      *pipeline.StageQueue[pipeline.DisplayEvent]
	liveAttached atomic.Bool
	displayEnded atomic.Bool

	closing     context.Context
	stopClosing context.CancelFunc

	handler http.Handler
	manager *server.Manager
}

// NewService 创建投递服务
func NewService(config Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	closing, stop := context.WithCancel(context.Background())
	s := &Service{
		config:      config,
		logger:      logger.With(zap.String("component", "delivery")),
		liveness:    NewLiveness(),
		mailbox:     NewMailbox(),
		closing:     closing,
		stopClosing: stop,
	}
	s.state.Store(StateWaiting)
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/audio", s.handleAudio)
	mux.HandleFunc("/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/health", s.handleHealth)

	s.handler = mux
	if s.middleware != nil {
		s.handler = s.middleware(mux)
	}
	return s
}

// Handler 返回 HTTP 处理器
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Start 开始监听（非阻塞）
func (s *Service) Start() error {
	cfg := s.config.Server
	if minWrite := s.config.LongPollTimeout + 30*time.Second; cfg.WriteTimeout > 0 && cfg.WriteTimeout < minWrite {
		cfg.WriteTimeout = minWrite
	}
	s.manager = server.NewManager(s.handler, cfg, s.logger)
	return s.manager.Start()
}

// Addr 实际监听地址
func (s *Service) Addr() string {
	if s.manager == nil {
		return ""
	}
	return s.manager.ListenAddr()
}

// Shutdown 结束挂起的长轮询与直播连接并关闭监听
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopClosing()
	if s.manager == nil {
		return nil
	}
	return s.manager.Shutdown(ctx)
}

// State 当前状态
func (s *Service) State() State {
	return s.state.Load().(State)
}

// Terminated 是否因心跳超时被终止
func (s *Service) Terminated() bool {
	return s.liveness.IsTerminated()
}

// =============================================================================
// 🎯 生产端
// =============================================================================

// Consume 实现 pipeline.AudioConsumer
func (s *Service) Consume(ctx context.Context, in *pipeline.StageQueue[*pipeline.AudioArtifact]) error {
	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	started := false
	for {
		item, err := in.Take(ctx)
		if err != nil {
			s.discard(s.mailbox.Clear())
			return err
		}

		// 模型首包可能很慢，监视器等第一段音频出队后才启动
		if !started {
			started = true
			monitor := NewHeartbeatMonitor(s.liveness, s.config.HeartbeatTimeout, s.config.MonitorInterval, s.onClientTimeout, s.logger)
			go monitor.Run(monitorCtx)
		}

		if s.liveness.IsTerminated() {
			if item.End {
				return s.clientTimeoutError()
			}
			s.discard(item.Value)
			continue
		}

		if item.End {
			s.state.Store(StateEndOfStream)
			s.mailbox.SetEnd()
			return s.awaitFinal(ctx)
		}

		s.state.Store(StateServing)
		s.mailbox.Offer(item.Value)
		s.logger.Debug("audio ready for pickup", zap.String("artifact", item.Value.ID))
		if err := s.awaitPickup(ctx); err != nil {
			return err
		}
	}
}

func (s *Service) awaitPickup(ctx context.Context) error {
	s.state.Store(StateAwaitingPickup)
	for {
		pending, changed := s.mailbox.Pending()
		if !pending {
			return nil
		}
		select {
		case <-changed:
		case <-s.liveness.Terminated():
			s.discard(s.mailbox.Clear())
			return nil
		case <-ctx.Done():
			s.discard(s.mailbox.Clear())
			return ctx.Err()
		}
	}
}

func (s *Service) awaitFinal(ctx context.Context) error {
	timer := time.NewTimer(s.config.HandshakeTimeout)
	defer timer.Stop()

	select {
	case <-s.mailbox.FinalSent():
		s.state.Store(StateEndAcknowledged)
		s.logger.Debug("final END status sent to client")
		return nil
	case <-s.liveness.Terminated():
		return s.clientTimeoutError()
	case <-timer.C:
		s.logger.Warn("timeout waiting for final request",
			zap.Duration("handshake_timeout", s.config.HandshakeTimeout),
		)
		if s.observer != nil {
			s.observer.RecordHandshakeTimeout()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) onClientTimeout() {
	s.state.Store(StateTerminated)
}

// clientTimeoutError 生产端在丢弃完剩余音频后调用，每轮至多一次
func (s *Service) clientTimeoutError() error {
	s.state.Store(StateTerminated)
	if s.observer != nil {
		s.observer.RecordClientTimeout()
	}
	return types.NewError(types.ErrClientTimeout, "remote client stopped sending heartbeats").
		WithStage("delivery")
}

func (s *Service) discard(a *pipeline.AudioArtifact) {
	if a == nil {
		return
	}
	if err := a.Release(); err != nil {
		s.logger.Warn("release audio failed", zap.String("artifact", a.ID), zap.Error(err))
	}
	if s.observer != nil {
		s.observer.RecordDiscarded(1)
	}
}

func (s *Service) recordPoll(outcome string, n int) {
	if s.observer != nil {
		s.observer.RecordPoll(outcome, n)
	}
}

// =============================================================================
// 🌐 HTTP 处理程序
// =============================================================================

func (s *Service) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		handlers.WriteMethodNotAllowed(w, http.MethodGet)
		return
	}

	timer := time.NewTimer(s.config.LongPollTimeout)
	defer timer.Stop()

	for {
		artifact, end, changed := s.mailbox.Poll()
		if artifact != nil {
			s.serveArtifact(w, artifact)
			return
		}
		if end {
			s.serveEnd(w)
			return
		}

		select {
		case <-changed:
		case <-timer.C:
			s.recordPoll(PollEmpty, 0)
			http.Error(w, noAudioMessage, http.StatusNotFound)
			return
		case <-s.liveness.Terminated():
			s.recordPoll(PollAborted, 0)
			http.Error(w, noAudioMessage, http.StatusNotFound)
			return
		case <-s.closing.Done():
			s.recordPoll(PollAborted, 0)
			http.Error(w, noAudioMessage, http.StatusNotFound)
			return
		case <-r.Context().Done():
			s.recordPoll(PollAborted, 0)
			return
		}
	}
}

// serveArtifact 音频已从信箱取走，无论写出是否成功都只投递这一次
func (s *Service) serveArtifact(w http.ResponseWriter, artifact *pipeline.AudioArtifact) {
	defer func() {
		if err := artifact.Release(); err != nil {
			s.logger.Warn("release audio failed", zap.String("artifact", artifact.ID), zap.Error(err))
		}
	}()

	data, err := artifact.Bytes()
	if err != nil {
		s.logger.Error("read audio failed", zap.String("artifact", artifact.ID), zap.Error(err))
		s.recordPoll(PollError, 0)
		handlers.WriteError(w, types.NewError(types.ErrInternalError, "audio unavailable").
			WithStage("delivery").
			WithCause(err), nil)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Artifact-ID", artifact.ID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("write audio failed", zap.String("artifact", artifact.ID), zap.Error(err))
		s.recordPoll(PollError, 0)
		return
	}
	s.recordPoll(PollDelivered, len(data))
}

// serveEnd 204 不能带响应体，结束标记放在头里。响应刷出后才置位确认。
func (s *Service) serveEnd(w http.ResponseWriter) {
	w.Header().Set(StreamStatusHeader, streamStatusEnd)
	w.WriteHeader(http.StatusNoContent)
	if err := http.NewResponseController(w).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("flush END response failed", zap.Error(err))
		s.recordPoll(PollError, 0)
		return
	}
	s.recordPoll(PollEnd, 0)
	s.mailbox.MarkFinalSent()
}

func (s *Service) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		handlers.WriteMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		return
	}
	s.liveness.Beat()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(heartbeatMessage))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, handlers.ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Details: map[string]any{
			"state":                string(s.State()),
			"since_last_heartbeat": s.liveness.SinceLastBeat().String(),
			"terminated":           s.liveness.IsTerminated(),
		},
	})
}

func (s *Service) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.display == nil {
		handlers.WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "live feed disabled", nil)
		return
	}
	if !s.liveAttached.CompareAndSwap(false, true) {
		handlers.WriteErrorMessage(w, http.StatusConflict, types.ErrInvalidRequest, "live feed already attached", nil)
		return
	}
	defer s.liveAttached.Store(false)

	// 直播连接的生命周期与长轮询无关，不受服务器写超时约束
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: s.config.AllowAnyOrigin,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()
	stop := context.AfterFunc(s.closing, cancel)
	defer stop()

	if s.displayEnded.Load() {
		s.writeLiveEnd(ctx, conn)
		return
	}

	for {
		item, err := s.display.Take(ctx)
		if err != nil {
			conn.Close(websocket.StatusGoingAway, "turn closed")
			return
		}
		if item.End {
			s.displayEnded.Store(true)
			s.writeLiveEnd(ctx, conn)
			return
		}
		if err := wsjson.Write(ctx, conn, item.Value); err != nil {
			s.logger.Debug("live feed write failed", zap.Error(err))
			return
		}
	}
}

func (s *Service) writeLiveEnd(ctx context.Context, conn *websocket.Conn) {
	_ = wsjson.Write(ctx, conn, pipeline.DisplayEvent{Kind: pipeline.DisplayEnd})
	conn.Close(websocket.StatusNormalClosure, "end of turn")
}
