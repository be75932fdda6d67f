package delivery

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HeartbeatMonitor 在超时窗口内没有心跳时终止投递。
// 用定时器等待到截止时刻，最长每 interval 复查一次。
type HeartbeatMonitor struct {
	liveness  *Liveness
	timeout   time.Duration
	interval  time.Duration
	onTimeout func()
	logger    *zap.Logger
}

// NewHeartbeatMonitor 创建心跳监视器，onTimeout 可为 nil
func NewHeartbeatMonitor(liveness *Liveness, timeout, interval time.Duration, onTimeout func(), logger *zap.Logger) *HeartbeatMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &HeartbeatMonitor{
		liveness:  liveness,
		timeout:   timeout,
		interval:  interval,
		onTimeout: onTimeout,
		logger:    logger.With(zap.String("component", "heartbeat_monitor")),
	}
}

// Run 阻塞到超时、已终止或 ctx 结束
func (m *HeartbeatMonitor) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		remaining := m.timeout - m.liveness.SinceLastBeat()
		if remaining <= 0 {
			if m.liveness.Terminate() {
				m.logger.Error("client heartbeat timeout, terminating delivery",
					zap.Duration("timeout", m.timeout),
				)
				if m.onTimeout != nil {
					m.onTimeout()
				}
			}
			return
		}

		timer.Reset(min(remaining, m.interval))
		select {
		case <-ctx.Done():
			return
		case <-m.liveness.Terminated():
			return
		case <-timer.C:
		}
	}
}
