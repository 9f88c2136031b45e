package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// Service реализует ленту и рекомендации поверх векторного ранжирования.
type Service struct {
	log         zerolog.Logger
	rank        domain.RankRepo
	content     domain.ContentRepo
	cache       domain.RecommendationCache
	cacheTTL    time.Duration
	defaultSize int
	maxSize     int
	dim         int
}

// NewService создаёт сервис рекомендаций.
func NewService(log zerolog.Logger, rank domain.RankRepo, content domain.ContentRepo, cache domain.RecommendationCache, cacheTTL time.Duration, defaultSize, maxSize, dim int) *Service {
	if defaultSize <= 0 {
		defaultSize = 20
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	return &Service{
		log:         log.With().Str("component", "feed").Logger(),
		rank:        rank,
		content:     content,
		cache:       cache,
		cacheTTL:    cacheTTL,
		defaultSize: defaultSize,
		maxSize:     maxSize,
		dim:         dim,
	}
}

func (s *Service) clampSize(size int) int {
	if size <= 0 {
		return s.defaultSize
	}
	if size > s.maxSize {
		return s.maxSize
	}
	return size
}

// randomUnitVector возвращает нормированный случайный вектор для холодного
// старта анонимной сессии.
func (s *Service) randomUnitVector() []float32 {
	raw := make([]float64, s.dim)
	var norm float64
	for i := range raw {
		raw[i] = rand.NormFloat64()
		norm += raw[i] * raw[i]
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		norm = 1
	}
	vec := make([]float32, s.dim)
	for i, v := range raw {
		vec[i] = float32(v / norm)
	}
	return vec
}

// resolveVector выбирает вектор запроса: вектор интересов профиля, затем
// вектор из параметров вызова, затем свежий случайный. echo сообщает,
// нужно ли вернуть вектор вызывающему для следующих страниц.
func (s *Service) resolveVector(ctx context.Context, profileID int64, provided []float32) (vec []float32, echo bool, err error) {
	if profileID != 0 {
		stored, ok, err := s.content.GetProfileEmbedding(ctx, profileID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("вектор профиля: %w", err)
		}
		if ok {
			return stored, false, nil
		}
	}
	if len(provided) > 0 {
		if len(provided) != s.dim {
			return nil, false, fmt.Errorf("%w: размерность вектора %d, ожидали %d", domain.ErrValidation, len(provided), s.dim)
		}
		return provided, true, nil
	}
	return s.randomUnitVector(), true, nil
}

// Feed возвращает курсорную страницу ленты: порядок (расстояние, id),
// курсор — расстояние последнего отданного элемента strictly-greater.
func (s *Service) Feed(ctx context.Context, kind domain.ContentKind, profileID int64, provided []float32, after *float64, size int) (domain.CursorPage, error) {
	metrics.IncRecoRequest("feed")
	size = s.clampSize(size)

	vec, echo, err := s.resolveVector(ctx, profileID, provided)
	if err != nil {
		return domain.CursorPage{}, err
	}
	items, err := s.rank.RankByDistance(ctx, kind, vec, after, 0, size+1)
	if err != nil {
		return domain.CursorPage{}, fmt.Errorf("ранжирование ленты: %w", err)
	}

	page := domain.CursorPage{HasMore: len(items) > size}
	if page.HasMore {
		items = items[:size]
	}
	page.Items = items
	if page.HasMore && len(items) > 0 {
		cursor := items[len(items)-1].Distance
		page.NextCursor = &cursor
	}
	if echo {
		page.QueryVector = vec
	}
	return page, nil
}

// FeedPage возвращает оффсетную страницу того же порядка. Страницы
// нумеруются с единицы.
func (s *Service) FeedPage(ctx context.Context, kind domain.ContentKind, profileID int64, provided []float32, pageNum, size int) (domain.OffsetPage, error) {
	metrics.IncRecoRequest("feed_page")
	if pageNum <= 0 {
		pageNum = 1
	}
	size = s.clampSize(size)

	vec, echo, err := s.resolveVector(ctx, profileID, provided)
	if err != nil {
		return domain.OffsetPage{}, err
	}
	items, err := s.rank.RankByDistanceOffset(ctx, kind, vec, (pageNum-1)*size, size+1)
	if err != nil {
		return domain.OffsetPage{}, fmt.Errorf("ранжирование страницы: %w", err)
	}

	page := domain.OffsetPage{HasMore: len(items) > size}
	if page.HasMore {
		items = items[:size]
	}
	page.Items = items
	if echo {
		page.QueryVector = vec
	}
	return page, nil
}

// Similar возвращает контент, ближайший к заданному, исключая его самого.
// Контент без материализованного вектора отдаёт пустую выдачу, не ошибку.
func (s *Service) Similar(ctx context.Context, kind domain.ContentKind, contentID int64, size int) ([]domain.RankedItem, error) {
	metrics.IncRecoRequest("similar")
	if kind != domain.KindPost && kind != domain.KindJob {
		return nil, fmt.Errorf("%w: похожесть не считается для %q", domain.ErrValidation, kind)
	}
	size = s.clampSize(size)

	key := fmt.Sprintf("reco:similar:%s:%d:%d", kind, contentID, size)
	return s.cachedRank(ctx, key, func(ctx context.Context) ([]domain.RankedItem, error) {
		vec, ok, err := s.content.GetContentEmbedding(ctx, kind, contentID)
		if err != nil {
			return nil, fmt.Errorf("вектор контента: %w", err)
		}
		if !ok {
			return []domain.RankedItem{}, nil
		}
		return s.rank.RankByDistance(ctx, kind, vec, nil, contentID, size)
	})
}

// Suggested возвращает профили с близкими интересами. Анонимные сессии
// делят общий ключ кэша и случайный вектор внутри его TTL.
func (s *Service) Suggested(ctx context.Context, profileID int64, size int) ([]domain.RankedItem, error) {
	metrics.IncRecoRequest("suggested")
	size = s.clampSize(size)

	caller := "anonymous"
	if profileID != 0 {
		caller = fmt.Sprintf("%d", profileID)
	}
	key := fmt.Sprintf("reco:suggested:%s:%d", caller, size)
	return s.cachedRank(ctx, key, func(ctx context.Context) ([]domain.RankedItem, error) {
		vec, _, err := s.resolveVector(ctx, profileID, nil)
		if err != nil {
			return nil, err
		}
		return s.rank.RankByDistance(ctx, domain.KindProfile, vec, nil, profileID, size)
	})
}

// cachedRank прогоняет вычисление через двухъярусный кэш в JSON-представлении.
func (s *Service) cachedRank(ctx context.Context, key string, compute func(ctx context.Context) ([]domain.RankedItem, error)) ([]domain.RankedItem, error) {
	payload, err := s.cache.GetOrCompute(ctx, key, s.cacheTTL, func(ctx context.Context) ([]byte, error) {
		items, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []domain.RankedItem{}
		}
		return json.Marshal(items)
	})
	if err != nil {
		return nil, err
	}
	var items []domain.RankedItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("разбор кэшированной выдачи: %w", err)
	}
	return items, nil
}
