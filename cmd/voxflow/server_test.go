package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voxflow/adapters"
	"github.com/BaSui01/voxflow/config"
	"github.com/BaSui01/voxflow/delivery"
	"github.com/BaSui01/voxflow/internal/metrics"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell commands not available on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
}

// testConfig 用 sh 命令模拟补全、合成与播放，播放记录写到 playLog
func testConfig(t *testing.T, mode string) (*config.Config, string) {
	t.Helper()
	playLog := filepath.Join(t.TempDir(), "played.log")

	cfg := config.DefaultConfig()
	cfg.Server.MetricsPort = 0
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Pipeline.Mode = mode
	cfg.Pipeline.WorkDir = t.TempDir()
	cfg.Collaborators.Complete = []string{"sh", "-c", "cat >/dev/null; printf 'Hi there, friend!'"}
	cfg.Collaborators.Synthesize = []string{"sh", "-c", `printf '%s;' "$1" > "$2"`, "sh", "{text}", "{output}"}
	cfg.Collaborators.Play = []string{"sh", "-c", `cat "$1" >> "$2"`, "sh", "{file}", playLog}
	cfg.Collaborators.Timeout = 5 * time.Second
	cfg.Collaborators.CompletionTimeout = 5 * time.Second
	require.NoError(t, cfg.Validate())
	return cfg, playLog
}

func newTestApp(cfg *config.Config, input string, display io.Writer) *App {
	opts := []AppOption{
		WithCollector(metrics.NewCollector(nextNamespace(), zap.NewNop())),
		WithTranscriber(adapters.NewLineTranscriber(strings.NewReader(input), nil)),
	}
	if display != nil {
		opts = append(opts, WithDisplayWriter(display))
	}
	return NewApp(config.NewReloader(config.NewLoader(), cfg, zap.NewNop()), zap.NewNop(), opts...)
}

func runApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, a.Run(ctx))
	require.NoError(t, ctx.Err(), "app should stop on its own")
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// =============================================================================
// 🧪 本地模式
// =============================================================================

func TestApp_LocalTurnsUntilInputCloses(t *testing.T) {
	requireShell(t)
	cfg, playLog := testConfig(t, config.ModeLocal)
	var display bytes.Buffer

	a := newTestApp(cfg, "hello\nagain\n", &display)
	runApp(t, a)

	assert.Equal(t, 2, a.Turns())

	played := readLog(t, playLog)
	assert.Equal(t, 2, strings.Count(played, "Hi there,;"))
	assert.Equal(t, 2, strings.Count(played, "friend!;"))
	assert.Less(t, strings.Index(played, "Hi there,;"), strings.Index(played, "friend!;"))

	out := display.String()
	assert.Contains(t, out, "you> hello")
	assert.Contains(t, out, "you> again")
	assert.Contains(t, out, "Hi there, friend!")

	entries, err := os.ReadDir(cfg.Pipeline.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "played audio should be released")
}

func TestApp_TurnLimit(t *testing.T) {
	requireShell(t)
	cfg, playLog := testConfig(t, config.ModeLocal)
	cfg.Pipeline.TurnLimit = 1

	a := newTestApp(cfg, "one\ntwo\nthree\n", nil)
	runApp(t, a)

	assert.Equal(t, 1, a.Turns())
	assert.Equal(t, 1, strings.Count(readLog(t, playLog), "friend!;"))
}

func TestApp_BlockedWordsSpeakFallback(t *testing.T) {
	requireShell(t)
	cfg, playLog := testConfig(t, config.ModeLocal)
	cfg.Collaborators.BlockedWords = []string{"secret"}
	cfg.Pipeline.FallbackSentence = "Sorry, no."

	a := newTestApp(cfg, "tell me the SECRET\n", nil)
	runApp(t, a)

	played := readLog(t, playLog)
	assert.Equal(t, "Sorry, no.;", played)
}

func TestApp_CancelStopsLoop(t *testing.T) {
	requireShell(t)
	cfg, _ := testConfig(t, config.ModeLocal)

	// 输入永远不结束
	r, w := io.Pipe()
	defer w.Close()
	a := NewApp(config.NewReloader(config.NewLoader(), cfg, zap.NewNop()), zap.NewNop(),
		WithCollector(metrics.NewCollector(nextNamespace(), zap.NewNop())),
		WithTranscriber(adapters.NewLineTranscriber(r, nil)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
	assert.Equal(t, 0, a.Turns())
}

// =============================================================================
// 🧪 远程模式
// =============================================================================

func TestApp_RemoteTurnDelivered(t *testing.T) {
	requireShell(t)
	cfg, _ := testConfig(t, config.ModeRemote)
	cfg.Pipeline.TurnLimit = 1

	a := newTestApp(cfg, "hello\n", nil)
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	var svc *delivery.Service
	require.Eventually(t, func() bool {
		svc = a.Service()
		return svc != nil
	}, 5*time.Second, 10*time.Millisecond)
	base := "http://" + svc.Addr()

	client := &http.Client{Timeout: 10 * time.Second}
	var bodies []string
	for {
		resp, err := client.Get(base + "/audio")
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		if resp.StatusCode == http.StatusNoContent {
			assert.Equal(t, "END", resp.Header.Get(delivery.StreamStatusHeader))
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
			break
		}
		require.Equal(t, http.StatusOK, resp.StatusCode)
		bodies = append(bodies, string(data))

		hb, err := client.Post(base+"/heartbeat", "text/plain", nil)
		require.NoError(t, err)
		hb.Body.Close()
	}

	assert.Equal(t, []string{"Hi there,;", "friend!;"}, trimAll(bodies))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not stop after the turn limit")
	}
	assert.Equal(t, 1, a.Turns())
	assert.Nil(t, a.Service())
}

func TestApp_RemoteAddressInUse(t *testing.T) {
	requireShell(t)
	cfg, _ := testConfig(t, config.ModeRemote)

	busy := delivery.NewService(deliveryConfig(cfg), zap.NewNop())
	require.NoError(t, busy.Start())
	defer busy.Shutdown(context.Background())
	cfg.Server.Addr = busy.Addr()

	a := newTestApp(cfg, "hello\n", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.Run(ctx)
	assert.ErrorIs(t, err, errServiceStart)
}

func trimAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

// =============================================================================
// 🧪 辅助
// =============================================================================

func TestDeliveryConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Addr = ":7000"
	cfg.Delivery.HeartbeatTimeout = 3 * time.Second
	cfg.Delivery.AllowAnyOrigin = true

	dc := deliveryConfig(cfg)
	assert.Equal(t, ":7000", dc.Server.Addr)
	assert.Equal(t, 3*time.Second, dc.HeartbeatTimeout)
	assert.Equal(t, cfg.Delivery.LongPollTimeout, dc.LongPollTimeout)
	assert.Equal(t, cfg.Delivery.HandshakeTimeout, dc.HandshakeTimeout)
	assert.True(t, dc.AllowAnyOrigin)
}

type countingObserver struct {
	items, turns int
}

func (o *countingObserver) ObserveStageItem(string, string, time.Duration) { o.items++ }
func (o *countingObserver) ObserveTurn(string, int, time.Duration) { o.turns++ }

func TestTurnObservers_FanOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	obs := turnObservers{a, b}

	obs.ObserveStageItem("synthesis", "ok", time.Millisecond)
	obs.ObserveTurn("ok", 2, time.Second)

	assert.Equal(t, 1, a.items)
	assert.Equal(t, 1, b.items)
	assert.Equal(t, 1, a.turns)
	assert.Equal(t, 1, b.turns)
}

// =============================================================================
// 🧪 Metrics 服务器
// =============================================================================

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestApp_MetricsServerEndpoints(t *testing.T) {
	requireShell(t)
	cfg, _ := testConfig(t, config.ModeLocal)
	cfg.Server.MetricsPort = freePort(t)

	r, w := io.Pipe()
	defer w.Close()
	a := NewApp(config.NewReloader(config.NewLoader(), cfg, zap.NewNop()), zap.NewNop(),
		WithCollector(metrics.NewCollector(nextNamespace(), zap.NewNop())),
		WithTranscriber(adapters.NewLineTranscriber(r, nil)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.MetricsPort)
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	for _, path := range []string{"/metrics", "/ready", "/version"} {
		resp, err := http.Get(base + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}

	_, err := http.Get(base + "/health")
	assert.Error(t, err, "metrics server should be shut down")
}
