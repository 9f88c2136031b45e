package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// Queues перечисляет имена очередей шины событий.
type Queues struct {
	Tagging       string
	Embedding     string
	Notifications string
}

// Bus реализует шину событий поверх RabbitMQ: domain.EventBus для публикации
// и приёмники для воркеров. Доставка at-least-once.
type Bus struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queues Queues

	mu        sync.Mutex
	consumers map[string]<-chan amqp.Delivery
}

var _ domain.EventBus = (*Bus)(nil)
var _ domain.Notifier = (*Bus)(nil)

// NewBus подключается к RabbitMQ и объявляет очереди.
func NewBus(url string, queues Queues) (*Bus, error) {
	if url == "" {
		return nil, errors.New("amqp url is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	for _, name := range []string{queues.Tagging, queues.Embedding, queues.Notifications} {
		if name == "" {
			continue
		}
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	return &Bus{conn: conn, ch: ch, queues: queues, consumers: make(map[string]<-chan amqp.Delivery)}, nil
}

// Close закрывает канал и соединение.
func (b *Bus) Close() error {
	if err := b.ch.Close(); err != nil {
		_ = b.conn.Close()
		return err
	}
	return b.conn.Close()
}

func (b *Bus) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	err = b.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", queue, start, err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// PublishTagging публикует задачу тегирования контента.
func (b *Bus) PublishTagging(ctx context.Context, job domain.TaggingJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return b.publish(ctx, b.queues.Tagging, job)
}

// PublishInterestsChanged публикует сигнал пересчёта вектора интересов профиля.
func (b *Bus) PublishInterestsChanged(ctx context.Context, profileID int64) error {
	job := domain.EmbeddingJob{
		ID:          uuid.NewString(),
		Subject:     domain.EmbedProfile,
		ProfileID:   profileID,
		RequestedAt: time.Now().UTC(),
	}
	return b.publish(ctx, b.queues.Embedding, job)
}

// PublishEmbedding публикует сигнал пересчёта вектора контента.
func (b *Bus) PublishEmbedding(ctx context.Context, job domain.EmbeddingJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return b.publish(ctx, b.queues.Embedding, job)
}

// Notify передаёт уведомление внешнему отправителю через очередь.
func (b *Bus) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return b.publish(ctx, b.queues.Notifications, n)
}

func (b *Bus) deliveries(queue string) (<-chan amqp.Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.consumers[queue]; ok {
		return ch, nil
	}
	ch, err := b.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	b.consumers[queue] = ch
	return ch, nil
}

func (b *Bus) receive(ctx context.Context, queue string, out any) (domain.AckFunc, error) {
	deliveries, err := b.deliveries(queue)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return nil, errors.New("amqp: канал доставки закрыт")
		}
		if err := json.Unmarshal(d.Body, out); err != nil {
			_ = d.Nack(false, false)
			return nil, fmt.Errorf("decode message: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return d.Ack(false)
			}
			return d.Nack(false, true)
		}
		return ack, nil
	}
}

// ReceiveTagging блокирующе читает задачу тегирования.
func (b *Bus) ReceiveTagging(ctx context.Context) (domain.TaggingJob, domain.AckFunc, error) {
	var job domain.TaggingJob
	ack, err := b.receive(ctx, b.queues.Tagging, &job)
	if err != nil {
		return domain.TaggingJob{}, nil, err
	}
	return job, ack, nil
}

// ReceiveEmbedding блокирующе читает сигнал пересчёта вектора.
func (b *Bus) ReceiveEmbedding(ctx context.Context) (domain.EmbeddingJob, domain.AckFunc, error) {
	var job domain.EmbeddingJob
	ack, err := b.receive(ctx, b.queues.Embedding, &job)
	if err != nil {
		return domain.EmbeddingJob{}, nil, err
	}
	return job, ack, nil
}

// TaggingConsumer адаптирует Bus к domain.TaggingQueue.
type TaggingConsumer struct{ Bus *Bus }

// Receive реализует domain.TaggingQueue.
func (c TaggingConsumer) Receive(ctx context.Context) (domain.TaggingJob, domain.AckFunc, error) {
	return c.Bus.ReceiveTagging(ctx)
}

// EmbeddingConsumer адаптирует Bus к domain.EmbeddingQueue.
type EmbeddingConsumer struct{ Bus *Bus }

// Receive реализует domain.EmbeddingQueue.
func (c EmbeddingConsumer) Receive(ctx context.Context) (domain.EmbeddingJob, domain.AckFunc, error) {
	return c.Bus.ReceiveEmbedding(ctx)
}
