// 配置文件变更监听器实现。
//
// 优先使用 fsnotify 监听所在目录，创建失败时退回轮询。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileWatcher 监听配置文件变更，事件经防抖后回调
type FileWatcher struct {
	mu sync.RWMutex

	path          string
	debounceDelay time.Duration
	pollInterval  time.Duration
	forcePolling  bool

	running  bool
	stopChan chan struct{}
	events   chan FileEvent

	callbacks []func(event FileEvent)
	logger    *zap.Logger

	lastModTime time.Time
	existed     bool
}

// FileEvent 文件变更事件
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileOp 文件操作类型
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithDebounceDelay 设置防抖时长
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithPolling 强制使用轮询
func WithPolling() WatcherOption {
	return func(w *FileWatcher) {
		w.forcePolling = true
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher 创建文件监听器，文件可以暂不存在
func NewFileWatcher(path string, opts ...WatcherOption) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watch path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	w := &FileWatcher{
		path:          abs,
		debounceDelay: 100 * time.Millisecond,
		pollInterval:  time.Second,
		stopChan:      make(chan struct{}),
		events:        make(chan FileEvent, 16),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	if _, err := os.Stat(abs); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", abs, err)
		}
		w.logger.Warn("config file does not exist, will watch for creation", zap.String("path", abs))
	}
	return w, nil
}

// OnChange 注册变更回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 开始监听（非阻塞）
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if info, err := os.Stat(w.path); err == nil {
		w.lastModTime = info.ModTime()
		w.existed = true
	}

	mode := "polling"
	if !w.forcePolling {
		notify, err := fsnotify.NewWatcher()
		if err == nil {
			err = notify.Add(filepath.Dir(w.path))
		}
		if err == nil {
			mode = "fsnotify"
			go w.notifyLoop(ctx, notify)
		} else {
			w.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
			if notify != nil {
				_ = notify.Close()
			}
		}
	}
	if mode == "polling" {
		go w.pollLoop(ctx)
	}
	go w.dispatchLoop(ctx)

	w.running = true
	w.logger.Info("file watcher started",
		zap.String("path", w.path),
		zap.String("mode", mode),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop 停止监听
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	close(w.stopChan)
	w.running = false
	w.logger.Info("file watcher stopped")
	return nil
}

func (w *FileWatcher) emit(op FileOp) {
	select {
	case w.events <- FileEvent{Path: w.path, Op: op, Timestamp: time.Now()}:
	default:
		// 防抖窗口内已有待处理事件
	}
}

// notifyLoop 监听目录，只关心目标文件。编辑器的原子替换表现为 Create/Rename。
func (w *FileWatcher) notifyLoop(ctx context.Context, notify *fsnotify.Watcher) {
	defer notify.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-notify.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create):
				w.emit(FileOpCreate)
			case event.Has(fsnotify.Write):
				w.emit(FileOpWrite)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.emit(FileOpRemove)
			}
		case err, ok := <-notify.Errors:
			if !ok {
				return
			}
			w.logger.Debug("fsnotify error", zap.Error(err))
		}
	}
}

// pollLoop 轮询修改时间
func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFile()
		}
	}
}

func (w *FileWatcher) checkFile() {
	w.mu.Lock()
	defer w.mu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		if os.IsNotExist(err) && w.existed {
			w.existed = false
			w.emit(FileOpRemove)
		}
		return
	}

	switch {
	case !w.existed:
		w.existed = true
		w.lastModTime = info.ModTime()
		w.emit(FileOpCreate)
	case info.ModTime().After(w.lastModTime):
		w.lastModTime = info.ModTime()
		w.emit(FileOpWrite)
	}
}

// dispatchLoop 防抖后分发，同一窗口内只保留最后一个事件
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	var (
		pending *FileEvent
		timer   = time.NewTimer(time.Hour)
	)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event := <-w.events:
			pending = &event
			timer.Reset(w.debounceDelay)
		case <-timer.C:
			if pending == nil {
				continue
			}
			event := *pending
			pending = nil

			w.mu.RLock()
			callbacks := append([]func(FileEvent){}, w.callbacks...)
			w.mu.RUnlock()

			w.logger.Debug("dispatching file event",
				zap.String("path", event.Path),
				zap.String("op", event.Op.String()))
			for _, cb := range callbacks {
				cb(event)
			}
		}
	}
}

// Path 监听的绝对路径
func (w *FileWatcher) Path() string {
	return w.path
}

// IsRunning returns whether the watcher is running
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
