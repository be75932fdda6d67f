// 配置重载。
//
// 新配置整体替换旧指针，已发出的快照永不被修改，
// 所以一轮对话开始时取到的配置在整轮内保持不变。
package config

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ConfigChange 一个字段的变更
type ConfigChange struct {
	Path            string `json:"path"`
	OldValue        any    `json:"old_value,omitempty"`
	NewValue        any    `json:"new_value,omitempty"`
	RequiresRestart bool   `json:"requires_restart"`
}

// ReloadCallback 重载成功后调用
type ReloadCallback func(oldConfig, newConfig *Config, changes []ConfigChange)

// 这些段在启动时一次性生效，重载只记录告警
var restartSections = []string{"Server.", "Cache.", "Log.", "Telemetry."}

// 敏感字段不进日志
var sensitiveFields = map[string]bool{
	"Cache.Password": true,
}

// Reloader 持有当前配置，并在文件变化时重新加载
type Reloader struct {
	mu        sync.RWMutex
	loader    *Loader
	current   *Config
	version   int
	callbacks []ReloadCallback
	watcher   *FileWatcher
	logger    *zap.Logger
}

// NewReloader 创建重载器，initial 为已加载的配置
func NewReloader(loader *Loader, initial *Config, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		loader:  loader,
		current: initial,
		version: 1,
		logger:  logger.With(zap.String("component", "config_reloader")),
	}
}

// Current 当前配置快照，调用方不得修改
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version 成功加载的次数
func (r *Reloader) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Reload 重新加载。加载或校验失败时保留当前配置。
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		r.logger.Error("failed to load config, keeping current", zap.Error(err))
		return err
	}
	if err := next.Validate(); err != nil {
		r.logger.Error("invalid config, keeping current", zap.Error(err))
		return fmt.Errorf("invalid config: %w", err)
	}

	r.mu.Lock()
	old := r.current
	changes := DetectChanges(old, next)
	if len(changes) == 0 {
		r.mu.Unlock()
		r.logger.Debug("config unchanged")
		return nil
	}
	r.current = next
	r.version++
	version := r.version
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	requiresRestart := false
	for _, c := range changes {
		r.logChange(c)
		requiresRestart = requiresRestart || c.RequiresRestart
	}
	if requiresRestart {
		r.logger.Warn("some configuration changes require restart to take effect")
	}
	r.logger.Info("configuration reloaded",
		zap.Int("version", version),
		zap.Int("changes", len(changes)))

	return r.notify(callbacks, old, next, changes)
}

func (r *Reloader) notify(callbacks []ReloadCallback, old, next *Config, changes []ConfigChange) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reload callback panicked: %v", rec)
			r.logger.Error("reload callback panicked", zap.Any("panic", rec))
		}
	}()
	for _, cb := range callbacks {
		cb(old, next, changes)
	}
	return nil
}

func (r *Reloader) logChange(c ConfigChange) {
	fields := []zap.Field{
		zap.String("path", c.Path),
		zap.Bool("requires_restart", c.RequiresRestart),
	}
	if !sensitiveFields[c.Path] {
		fields = append(fields, zap.Any("old_value", c.OldValue), zap.Any("new_value", c.NewValue))
	}
	r.logger.Info("configuration changed", fields...)
}

// Watch 监听配置文件，变化时自动 Reload。未设置配置文件时什么都不做。
func (r *Reloader) Watch(ctx context.Context, opts ...WatcherOption) error {
	path := r.loader.ConfigPath()
	if path == "" {
		return nil
	}

	opts = append([]WatcherOption{WithWatcherLogger(r.logger), WithDebounceDelay(500 * time.Millisecond)}, opts...)
	w, err := NewFileWatcher(path, opts...)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.OnChange(func(e FileEvent) {
		if e.Op == FileOpRemove {
			r.logger.Warn("config file removed, keeping current config", zap.String("path", e.Path))
			return
		}
		_ = r.Reload()
	})
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// Stop 停止监听
func (r *Reloader) Stop() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// DetectChanges 逐字段比较两份配置
func DetectChanges(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		oldField, newField := oldVal.Field(i), newVal.Field(i)
		if oldField.Kind() == reflect.Struct {
			compareStructs(path, oldField, newField, changes)
			continue
		}
		if !reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			*changes = append(*changes, ConfigChange{
				Path:            path,
				OldValue:        oldField.Interface(),
				NewValue:        newField.Interface(),
				RequiresRestart: requiresRestart(path),
			})
		}
	}
}

func requiresRestart(path string) bool {
	for _, s := range restartSections {
		if strings.HasPrefix(path, s) {
			return true
		}
	}
	return false
}
