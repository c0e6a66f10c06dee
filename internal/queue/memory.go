package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Broker for running without Redis. Tasks go
// through the same JSON encoding as the Redis queue.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	size   int
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{queues: make(map[string]chan []byte), size: size}
}

func (q *MemoryQueue) ch(name string) chan []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	c, ok := q.queues[name]
	if !ok {
		c = make(chan []byte, q.size)
		q.queues[name] = c
	}
	return c
}

func (q *MemoryQueue) Enqueue(ctx context.Context, queueName string, task *Task) error {
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	select {
	case q.ch(queueName) <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Task, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-q.ch(queueName):
		return decodeTask(data)
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len reports how many tasks are waiting on a queue.
func (q *MemoryQueue) Len(queueName string) int {
	return len(q.ch(queueName))
}

func (q *MemoryQueue) Close() error {
	return nil
}
