package pipeline

import (
	"context"
	"errors"
	"sync"

	"edu-rag-go/pkg/log"
	"edu-rag-go/pkg/tasks"
)

// ErrQueueClosed 在队列关闭后投递任务时返回。
var ErrQueueClosed = errors.New("任务队列已关闭")

// LocalQueue 是进程内的任务队列，适用于单实例部署和测试。
// 单元级别的互斥由状态机保证，队列本身只负责并发度。
type LocalQueue struct {
	processor tasks.Processor
	ch        chan tasks.UnitProcessingTask
	wg        sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewLocalQueue 启动 workers 个消费协程。
func NewLocalQueue(ctx context.Context, processor tasks.Processor, workers, buffer int) *LocalQueue {
	if workers <= 0 {
		workers = 1
	}
	if buffer <= 0 {
		buffer = 64
	}
	q := &LocalQueue{processor: processor, ch: make(chan tasks.UnitProcessingTask, buffer)}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	log.Infof("[LocalQueue] 本地任务队列已启动, workers: %d", workers)
	return q
}

func (q *LocalQueue) Publish(ctx context.Context, task tasks.UnitProcessingTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for task := range q.ch {
		if err := q.processor.Process(ctx, task); err != nil {
			log.Warnf("[LocalQueue] worker %d 处理单元 %d 结束: %v", id, task.UnitID, err)
		}
	}
}

// Close 停止接收新任务，并等待已入队的任务处理完。
func (q *LocalQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}
