package domain

import (
	"context"
	"time"
)

// TagRepo управляет таксономией тегов и связями контент-тег.
type TagRepo interface {
	// FindByNames возвращает теги, чьё английское ИЛИ арабское имя входит
	// в переданные списки. Один батчевый запрос, сравнение без учёта регистра.
	FindByNames(ctx context.Context, namesEN, namesAR []string) ([]Tag, error)
	// InsertTags вставляет новые теги одним батчем и возвращает созданные строки.
	InsertTags(ctx context.Context, candidates []TagCandidate) ([]Tag, error)
	// ListTags возвращает каталог тегов (для подсказки LLM), не более limit.
	ListTags(ctx context.Context, limit int) ([]Tag, error)
	// LinkContentTags идемпотентно привязывает теги к контенту:
	// повторная привязка — no-op, не ошибка.
	LinkContentTags(ctx context.Context, kind ContentKind, contentID int64, tagIDs []int64) error
	// ListContentTagIDs возвращает id тегов, прикреплённых к контенту.
	ListContentTagIDs(ctx context.Context, kind ContentKind, contentID int64) ([]int64, error)
}

// InterestRepo управляет накопленными интересами профиля.
type InterestRepo interface {
	// AddInterests вставляет только новые пары (профиль, тег); уже имеющиеся
	// пропускаются молча. Возвращает число фактически вставленных пар.
	AddInterests(ctx context.Context, profileID int64, tagIDs []int64) (int, error)
	// ListInterestTags возвращает накопленные теги профиля.
	ListInterestTags(ctx context.Context, profileID int64) ([]Tag, error)
}

// InterestGranter — порт агрегатора интересов для движка голосования
// и сервиса контента.
type InterestGranter interface {
	GrantInterest(ctx context.Context, profileID int64, tagIDs []int64) error
}

// ContentRepo управляет контентом и его векторами.
type ContentRepo interface {
	CreatePost(ctx context.Context, post Post) (Post, error)
	UpdatePost(ctx context.Context, post Post) (Post, error)
	CreateJobPosting(ctx context.Context, job JobPosting) (JobPosting, error)
	CreateComment(ctx context.Context, comment Comment) (Comment, error)
	// GetContentInfo возвращает автора и теги цели; для комментария теги
	// берутся у родительского поста. Несуществующая цель — ErrNotFound.
	GetContentInfo(ctx context.Context, kind ContentKind, id int64) (ContentInfo, error)
	// ContentText возвращает заголовок и тело контента для тегирования
	// и векторизации.
	ContentText(ctx context.Context, kind ContentKind, id int64) (title, body string, err error)
	SetContentLanguage(ctx context.Context, kind ContentKind, id int64, lang string) error
	// GetContentEmbedding возвращает вектор контента; false — вектор ещё
	// не материализован.
	GetContentEmbedding(ctx context.Context, kind ContentKind, id int64) ([]float32, bool, error)
	SetContentEmbedding(ctx context.Context, kind ContentKind, id int64, vec []float32) error
	GetProfileEmbedding(ctx context.Context, profileID int64) ([]float32, bool, error)
	SetProfileEmbedding(ctx context.Context, profileID int64, vec []float32) error
}

// VoteRepo хранит строки голосов: не более одной на пару (цель, голосующий).
type VoteRepo interface {
	GetVote(ctx context.Context, kind ContentKind, targetID, voterID int64) (Vote, bool, error)
	InsertVote(ctx context.Context, kind ContentKind, targetID, voterID int64, isUp bool) error
	UpdateVoteFlag(ctx context.Context, kind ContentKind, targetID, voterID int64, isUp bool) error
	DeleteVote(ctx context.Context, kind ContentKind, targetID, voterID int64) error
	// CountVotes пересчитывает счётчики запросом, а не кэшем на строке контента.
	CountVotes(ctx context.Context, kind ContentKind, targetID int64) (VoteCounts, error)
}

// RankRepo ранжирует кандидатов по векторному расстоянию в хранилище.
type RankRepo interface {
	// RankByDistance возвращает кандидатов в порядке (расстояние ASC, id ASC).
	// after — курсор: строго большее расстояние; excludeID исключает источник
	// из собственной выдачи; limit ограничивает выборку.
	RankByDistance(ctx context.Context, kind ContentKind, query []float32, after *float64, excludeID int64, limit int) ([]RankedItem, error)
	// RankByDistanceOffset — та же сортировка со skip/take-семантикой.
	RankByDistanceOffset(ctx context.Context, kind ContentKind, query []float32, offset, limit int) ([]RankedItem, error)
}

// RecommendationCache — двухъярусный кэш дорогих путей чтения:
// single-flight на ключ внутри процесса, скользящий TTL.
type RecommendationCache interface {
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// TagGenerator — порт LLM-провайдера тегирования.
type TagGenerator interface {
	// GenerateTags возвращает двуязычных кандидатов и определённый язык текста.
	// Неразборчивый ответ после повторов — ошибка ErrValidation.
	GenerateTags(ctx context.Context, title, body string, existing []Tag) (TagSuggestion, error)
}

// Embedder — порт провайдера векторизации текста.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}
