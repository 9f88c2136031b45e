package domain

import (
	"context"
	"time"
)

// TaggingJob содержит задачу тегирования контента.
type TaggingJob struct {
	ID          string      `json:"job_id"`
	Kind        ContentKind `json:"kind"`
	ContentID   int64       `json:"content_id"`
	RequestedAt time.Time   `json:"requested_at"`
}

// EmbeddingSubject различает, чей вектор надо пересчитать.
type EmbeddingSubject string

const (
	// EmbedContent — вектор единицы контента.
	EmbedContent EmbeddingSubject = "content"
	// EmbedProfile — вектор интересов профиля.
	EmbedProfile EmbeddingSubject = "profile"
)

// EmbeddingJob содержит сигнал на пересчёт вектора. Для Subject == EmbedProfile
// заполняется ProfileID, для EmbedContent — Kind и ContentID.
type EmbeddingJob struct {
	ID          string           `json:"job_id"`
	Subject     EmbeddingSubject `json:"subject"`
	Kind        ContentKind      `json:"kind,omitempty"`
	ContentID   int64            `json:"content_id,omitempty"`
	ProfileID   int64            `json:"profile_id,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
}

// NotificationKind различает поводы уведомлений.
type NotificationKind string

const (
	// NotifyUpvote — автор получил голос «за».
	NotifyUpvote NotificationKind = "upvote"
	// NotifyComment — к посту оставлен новый комментарий.
	NotifyComment NotificationKind = "comment"
)

// Notification описывает уведомление для внешнего отправителя.
type Notification struct {
	ID          string           `json:"notification_id"`
	Kind        NotificationKind `json:"kind"`
	RecipientID int64            `json:"recipient_id"`
	ActorID     int64            `json:"actor_id"`
	TargetKind  ContentKind      `json:"target_kind"`
	TargetID    int64            `json:"target_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

// AckFunc подтверждает обработку сообщения или возвращает его в очередь.
type AckFunc func(success bool) error

// EventBus публикует исходящие сигналы ядра. Доставка at-least-once,
// потребители живут вне процесса; ядро не ждёт их синхронно.
type EventBus interface {
	PublishTagging(ctx context.Context, job TaggingJob) error
	// PublishInterestsChanged публикует сигнал «интересы профиля изменились»;
	// ровно один сигнал на мутирующий вызов, не на тег.
	PublishInterestsChanged(ctx context.Context, profileID int64) error
	PublishEmbedding(ctx context.Context, job EmbeddingJob) error
}

// TaggingQueue — очередь задач тегирования со стороны воркера.
type TaggingQueue interface {
	Receive(ctx context.Context) (TaggingJob, AckFunc, error)
}

// EmbeddingQueue — очередь сигналов пересчёта векторов со стороны воркера.
type EmbeddingQueue interface {
	Receive(ctx context.Context) (EmbeddingJob, AckFunc, error)
}

// Notifier — порт внешнего отправителя уведомлений. Вызовы fire-and-forget:
// ошибка логируется вызывающим, но не прерывает транзакцию.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
