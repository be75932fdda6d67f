// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/voxflow/pipeline"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 异步断言
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 📬 队列辅助
// =============================================================================

// DrainQueue 取出队列中的负载直到结束哨兵，超时则测试失败
func DrainQueue[T any](t *testing.T, q *pipeline.StageQueue[T], timeout time.Duration) []T {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var out []T
	for {
		item, err := q.Take(ctx)
		if err != nil {
			t.Fatalf("queue did not reach end within %v (got %d items)", timeout, len(out))
			return out
		}
		if item.End {
			return out
		}
		out = append(out, item.Value)
	}
}

// QueueFromSlice 构造一个装好负载和结束哨兵的队列
func QueueFromSlice[T any](values ...T) *pipeline.StageQueue[T] {
	q := pipeline.NewStageQueue[T]()
	for _, v := range values {
		q.Put(v)
	}
	q.PutEnd()
	return q
}

// =============================================================================
// 🔊 音频辅助
// =============================================================================

// TempArtifact 在测试临时目录创建文件型音频
func TempArtifact(t *testing.T, sentence string, data []byte) *pipeline.AudioArtifact {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "audio-*.mp3")
	if err != nil {
		t.Fatalf("create temp audio: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp audio: %v", err)
	}
	return pipeline.NewFileArtifact(sentence, filepath.Clean(f.Name()), "mp3")
}
