package queue

import (
	"context"
	"fmt"
	"strings"

	"storyweaver/harvester/internal/config"
	"storyweaver/harvester/internal/domain/task"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Publisher hands finished work to downstream consumers
type Publisher interface {
	AddTask(ctx context.Context, task task.Task) (string, error) // Returns message ID
	Close() error
}

type RedisQueue struct {
	redisClient *redis.Client
	stream      string
	groupName   string
}

// NewRedisQueue publishes to the configured handoff stream and makes sure the
// consumer group exists so nothing published before the consumer starts is lost
func NewRedisQueue(ctx context.Context, redisClient *redis.Client, cfg config.HandoffConfig) (*RedisQueue, error) {
	q := &RedisQueue{
		redisClient: redisClient,
		stream:      cfg.Stream,
		groupName:   cfg.ConsumerGroup,
	}

	if err := q.CreateGroup(ctx, q.stream, q.groupName); err != nil {
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}
	log.Infof("✅ Stream %s and consumer group %s ready", q.stream, q.groupName)

	return q, nil
}

func (q *RedisQueue) CreateGroup(ctx context.Context, stream, group string) error {
	err := q.redisClient.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		log.Debugf("Group %s already exists for stream %s", group, stream)
		return nil
	}
	return err
}

func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	taskType := t.TaskType()

	taskValue, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	// Fields: task_type, task_data
	messageID, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{
			"task_type": taskType,
			"task_data": string(taskValue),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", q.stream, err)
	}

	log.Debugf("Added task %s to stream %s with message ID: %s", taskType, q.stream, messageID)
	return messageID, nil
}

// Close is a no-op; the Redis client is shared and owned by the container
func (q *RedisQueue) Close() error {
	return nil
}
