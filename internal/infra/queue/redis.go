package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"souq-backend/internal/domain"
)

// RedisQueue — запасной вариант очереди на базе Redis lists для локальной
// разработки без RabbitMQ. Подтверждений нет: сообщение снимается при чтении.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue создаёт очередь по указанному ключу.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Push публикует произвольное сообщение в очередь.
func (q *RedisQueue) Push(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, body).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// Pop блокирующе читает одно сообщение из очереди.
func (q *RedisQueue) Pop(ctx context.Context, out any) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return err
		}
		if len(res) != 2 {
			return errors.New("redis queue: unexpected response")
		}
		if err := json.Unmarshal([]byte(res[1]), out); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		return nil
	}
}

// RedisTaggingQueue адаптирует RedisQueue к domain.TaggingQueue.
type RedisTaggingQueue struct{ Queue *RedisQueue }

// Receive реализует domain.TaggingQueue.
func (q RedisTaggingQueue) Receive(ctx context.Context) (domain.TaggingJob, domain.AckFunc, error) {
	var job domain.TaggingJob
	if err := q.Queue.Pop(ctx, &job); err != nil {
		return domain.TaggingJob{}, nil, err
	}
	return job, func(bool) error { return nil }, nil
}

// RedisEmbeddingQueue адаптирует RedisQueue к domain.EmbeddingQueue.
type RedisEmbeddingQueue struct{ Queue *RedisQueue }

// Receive реализует domain.EmbeddingQueue.
func (q RedisEmbeddingQueue) Receive(ctx context.Context) (domain.EmbeddingJob, domain.AckFunc, error) {
	var job domain.EmbeddingJob
	if err := q.Queue.Pop(ctx, &job); err != nil {
		return domain.EmbeddingJob{}, nil, err
	}
	return job, func(bool) error { return nil }, nil
}

// RedisBus реализует domain.EventBus и domain.Notifier поверх Redis-очередей
// для окружений без RabbitMQ.
type RedisBus struct {
	tagging       *RedisQueue
	embedding     *RedisQueue
	notifications *RedisQueue
}

var _ domain.EventBus = (*RedisBus)(nil)

// NewRedisBus создаёт шину на Redis lists.
func NewRedisBus(client *redis.Client, queues Queues) *RedisBus {
	return &RedisBus{
		tagging:       NewRedisQueue(client, queues.Tagging),
		embedding:     NewRedisQueue(client, queues.Embedding),
		notifications: NewRedisQueue(client, queues.Notifications),
	}
}

// PublishTagging публикует задачу тегирования.
func (b *RedisBus) PublishTagging(ctx context.Context, job domain.TaggingJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return b.tagging.Push(ctx, job)
}

// PublishInterestsChanged публикует сигнал пересчёта вектора интересов профиля.
func (b *RedisBus) PublishInterestsChanged(ctx context.Context, profileID int64) error {
	return b.embedding.Push(ctx, domain.EmbeddingJob{
		ID:          uuid.NewString(),
		Subject:     domain.EmbedProfile,
		ProfileID:   profileID,
		RequestedAt: time.Now().UTC(),
	})
}

// PublishEmbedding публикует сигнал пересчёта вектора контента.
func (b *RedisBus) PublishEmbedding(ctx context.Context, job domain.EmbeddingJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return b.embedding.Push(ctx, job)
}

// Notify передаёт уведомление во внешнюю очередь.
func (b *RedisBus) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return b.notifications.Push(ctx, n)
}
