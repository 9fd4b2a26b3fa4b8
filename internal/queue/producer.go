package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/tally/common/id"
)

type Producer interface {
	// Enqueue adds the task to the stream and returns its ID, assigning one
	// when task.ID is zero.
	Enqueue(ctx context.Context, task Task) (int64, error)
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, task Task) (int64, error) {
	if !task.TaskType.Valid() {
		return 0, fmt.Errorf("enqueue task: unknown task_type %q", task.TaskType)
	}
	if task.ID == 0 {
		task.ID = id.New()
	}
	if task.Attempt <= 0 {
		task.Attempt = 1
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: taskValues(task),
	}).Err(); err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued task",
		"task_id", task.ID,
		"task_type", task.TaskType,
		"requested_by", task.RequestedBy,
		"attempt", task.Attempt)
	return task.ID, nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func taskValues(task Task) map[string]any {
	values := map[string]any{
		"task_id":   task.ID,
		"task_type": string(task.TaskType),
		"attempt":   task.Attempt,
	}
	if task.RequestedBy != "" {
		values["requested_by"] = task.RequestedBy
	}
	if task.TraceID != "" {
		values["trace_id"] = task.TraceID
	}
	return values
}
