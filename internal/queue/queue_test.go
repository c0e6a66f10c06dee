package queue

import (
	"context"
	"testing"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/google/uuid"
)

var (
	_ Broker = (*Queue)(nil)
	_ Broker = (*MemoryQueue)(nil)
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)
	jobID := uuid.New()

	if err := EnqueueRender(ctx, q, jobID, models.RenderOptions{UseTransitions: true, Transition: "dissolve"}); err != nil {
		t.Fatalf("EnqueueRender: %v", err)
	}
	if q.Len(QueueRender) != 1 {
		t.Fatalf("expected 1 queued task, got %d", q.Len(QueueRender))
	}

	task, err := q.Dequeue(ctx, QueueRender, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if task == nil {
		t.Fatal("expected a task")
	}
	if task.JobID != jobID || task.Type != "render_video" {
		t.Errorf("unexpected task: %+v", task)
	}
	if task.ID == uuid.Nil || task.CreatedAt.IsZero() {
		t.Error("expected task id and timestamp to be set")
	}
	if task.Options == nil || !task.Options.UseTransitions || task.Options.Transition != "dissolve" {
		t.Errorf("options lost in transit: %+v", task.Options)
	}
}

func TestMemoryQueueTimeout(t *testing.T) {
	q := NewMemoryQueue(1)
	task, err := q.Dequeue(context.Background(), QueueAnalyze, 10*time.Millisecond)
	if err != nil || task != nil {
		t.Errorf("expected (nil, nil) on timeout, got (%v, %v)", task, err)
	}
}

func TestMemoryQueueCancelled(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Dequeue(ctx, QueueAnalyze, time.Minute); err == nil {
		t.Error("expected context error")
	}
}

func TestQueuesAreSeparate(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(4)

	if err := EnqueueAnalyze(ctx, q, uuid.New()); err != nil {
		t.Fatal(err)
	}
	if task, _ := q.Dequeue(ctx, QueueSegment, 10*time.Millisecond); task != nil {
		t.Errorf("task leaked into another queue: %+v", task)
	}
	if task, _ := q.Dequeue(ctx, QueueAnalyze, time.Second); task == nil {
		t.Error("expected analyze task")
	}
}
