package pipeline

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// 📬 StageQueue 阶段间交接队列
// =============================================================================

// Item 是队列中的一个元素：要么是有效负载，要么是流结束哨兵。
// End 为 true 时 Value 无意义。
type Item[T any] struct {
	Value T
	End   bool
}

// ValueItem 构造负载元素
func ValueItem[T any](v T) Item[T] {
	return Item[T]{Value: v}
}

// EndItem 构造结束哨兵
func EndItem[T any]() Item[T] {
	return Item[T]{End: true}
}

// StageQueue 无界 FIFO 队列，支持多生产者多消费者。
// Take 阻塞直到有元素或 ctx 结束。
type StageQueue[T any] struct {
	mu    sync.Mutex
	items []Item[T]
	ready chan struct{}
}

// NewStageQueue 创建空队列
func NewStageQueue[T any]() *StageQueue[T] {
	return &StageQueue[T]{ready: make(chan struct{}, 1)}
}

// Put 追加一个负载
func (q *StageQueue[T]) Put(v T) {
	q.push(ValueItem(v))
}

// PutEnd 追加结束哨兵
func (q *StageQueue[T]) PutEnd() {
	q.push(EndItem[T]())
}

func (q *StageQueue[T]) push(item Item[T]) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.notify()
}

func (q *StageQueue[T]) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TryTake 非阻塞取出队首元素
func (q *StageQueue[T]) TryTake() (Item[T], bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Item[T]{}, false
	}
	item := q.items[0]
	q.items[0] = Item[T]{}
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	// 唤醒令牌只有一个，还有剩余元素时传给下一个等待者
	if remaining > 0 {
		q.notify()
	}
	return item, true
}

// Take 阻塞取出队首元素
func (q *StageQueue[T]) Take(ctx context.Context) (Item[T], error) {
	for {
		if item, ok := q.TryTake(); ok {
			return item, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return Item[T]{}, ctx.Err()
		}
	}
}

// TakeTimeout 最多等待 d，超时返回 false
func (q *StageQueue[T]) TakeTimeout(d time.Duration) (Item[T], bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	item, err := q.Take(ctx)
	if err != nil {
		return Item[T]{}, false
	}
	return item, true
}

// Len 返回当前排队元素数（含哨兵）
func (q *StageQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
