package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueAnalyze  = "queue:analyze_script"
	QueueSegment  = "queue:segment_scenes"
	QueueImages   = "queue:generate_images"
	QueueAudio    = "queue:generate_audio"
	QueueRender   = "queue:render_video"
	QueueWorkflow = "queue:workflow"
)

// Queues lists every queue a worker consumes.
var Queues = []string{QueueAnalyze, QueueSegment, QueueImages, QueueAudio, QueueRender, QueueWorkflow}

// Broker moves tasks between the API and the worker.
type Broker interface {
	Enqueue(ctx context.Context, queueName string, task *Task) error
	// Dequeue blocks up to timeout; it returns (nil, nil) when no task arrived.
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Task, error)
	Close() error
}

// Task is one unit of work for a job.
type Task struct {
	ID        uuid.UUID             `json:"id"`
	Type      string                `json:"type"`
	JobID     uuid.UUID             `json:"job_id"`
	Options   *models.RenderOptions `json:"options,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type Queue struct {
	client *redis.Client
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, task *Task) error {
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Task, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No task available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return decodeTask([]byte(result[1]))
}

func encodeTask(task *Task) ([]byte, error) {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	task.CreatedAt = time.Now()

	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}
	return data, nil
}

func decodeTask(data []byte) (*Task, error) {
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Step helpers, one per queue.

func EnqueueAnalyze(ctx context.Context, b Broker, jobID uuid.UUID) error {
	return b.Enqueue(ctx, QueueAnalyze, &Task{Type: "analyze_script", JobID: jobID})
}

func EnqueueSegment(ctx context.Context, b Broker, jobID uuid.UUID) error {
	return b.Enqueue(ctx, QueueSegment, &Task{Type: "segment_scenes", JobID: jobID})
}

func EnqueueImages(ctx context.Context, b Broker, jobID uuid.UUID) error {
	return b.Enqueue(ctx, QueueImages, &Task{Type: "generate_images", JobID: jobID})
}

func EnqueueAudio(ctx context.Context, b Broker, jobID uuid.UUID) error {
	return b.Enqueue(ctx, QueueAudio, &Task{Type: "generate_audio", JobID: jobID})
}

func EnqueueRender(ctx context.Context, b Broker, jobID uuid.UUID, opts models.RenderOptions) error {
	return b.Enqueue(ctx, QueueRender, &Task{Type: "render_video", JobID: jobID, Options: &opts})
}

func EnqueueWorkflow(ctx context.Context, b Broker, jobID uuid.UUID, opts models.RenderOptions) error {
	return b.Enqueue(ctx, QueueWorkflow, &Task{Type: "workflow", JobID: jobID, Options: &opts})
}
