package tags

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// Service реализует таксономию тегов и агрегатор интересов.
type Service struct {
	log         zerolog.Logger
	tags        domain.TagRepo
	interests   domain.InterestRepo
	content     domain.ContentRepo
	generator   domain.TagGenerator
	bus         domain.EventBus
	catalogSize int
}

// NewService создаёт сервис тегирования.
func NewService(log zerolog.Logger, tags domain.TagRepo, interests domain.InterestRepo, content domain.ContentRepo, generator domain.TagGenerator, bus domain.EventBus, catalogSize int) *Service {
	if catalogSize <= 0 {
		catalogSize = 200
	}
	return &Service{
		log:         log.With().Str("component", "tags").Logger(),
		tags:        tags,
		interests:   interests,
		content:     content,
		generator:   generator,
		bus:         bus,
		catalogSize: catalogSize,
	}
}

var _ domain.InterestGranter = (*Service)(nil)

// ReconcileTags сопоставляет кандидатов с каталогом и вставляет новые теги.
// Совпадение ищется по английскому ИЛИ арабскому имени без учёта регистра,
// одним батчевым запросом. Возвращает id в порядке кандидатов без дублей.
func (s *Service) ReconcileTags(ctx context.Context, candidates []domain.TagCandidate) ([]int64, error) {
	normalized := make([]domain.TagCandidate, 0, len(candidates))
	seenEN := map[string]bool{}
	seenAR := map[string]bool{}
	for _, c := range candidates {
		c.NameEN = strings.TrimSpace(c.NameEN)
		c.NameAR = strings.TrimSpace(c.NameAR)
		if c.NameEN == "" || c.NameAR == "" {
			continue
		}
		lowEN, lowAR := strings.ToLower(c.NameEN), strings.ToLower(c.NameAR)
		if seenEN[lowEN] || seenAR[lowAR] {
			continue
		}
		seenEN[lowEN] = true
		seenAR[lowAR] = true
		normalized = append(normalized, c)
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	namesEN := make([]string, 0, len(normalized))
	namesAR := make([]string, 0, len(normalized))
	for _, c := range normalized {
		namesEN = append(namesEN, c.NameEN)
		namesAR = append(namesAR, c.NameAR)
	}
	existing, err := s.tags.FindByNames(ctx, namesEN, namesAR)
	if err != nil {
		return nil, fmt.Errorf("поиск тегов по именам: %w", err)
	}
	byEN := make(map[string]domain.Tag, len(existing))
	byAR := make(map[string]domain.Tag, len(existing))
	for _, tag := range existing {
		byEN[strings.ToLower(tag.NameEN)] = tag
		byAR[strings.ToLower(tag.NameAR)] = tag
	}

	ids := make([]int64, 0, len(normalized))
	var novel []domain.TagCandidate
	for _, c := range normalized {
		if tag, ok := byEN[strings.ToLower(c.NameEN)]; ok {
			ids = append(ids, tag.ID)
			continue
		}
		if tag, ok := byAR[strings.ToLower(c.NameAR)]; ok {
			ids = append(ids, tag.ID)
			continue
		}
		novel = append(novel, c)
	}
	metrics.IncTagsReconciled("matched", len(ids))
	if len(novel) > 0 {
		created, err := s.tags.InsertTags(ctx, novel)
		if err != nil {
			return nil, fmt.Errorf("вставка новых тегов: %w", err)
		}
		for _, tag := range created {
			ids = append(ids, tag.ID)
		}
		metrics.IncTagsReconciled("created", len(created))
	}

	seen := make(map[int64]bool, len(ids))
	unique := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	return unique, nil
}

// GrantInterest добавляет теги к интересам профиля и публикует ровно один
// сигнал «интересы изменились» на вызов, не на тег. Ошибка публикации
// логируется, но не откатывает запись интересов.
func (s *Service) GrantInterest(ctx context.Context, profileID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	added, err := s.interests.AddInterests(ctx, profileID, tagIDs)
	if err != nil {
		return fmt.Errorf("запись интересов профиля %d: %w", profileID, err)
	}
	s.log.Debug().Int64("profile_id", profileID).Int("added", added).Msg("интересы профиля пополнены")
	if err := s.bus.PublishInterestsChanged(ctx, profileID); err != nil {
		s.log.Error().Err(err).Int64("profile_id", profileID).Msg("не удалось опубликовать сигнал изменения интересов")
	}
	return nil
}

// HandleTaggingJob выполняет пайплайн тегирования одной единицы контента:
// текст, генерация кандидатов, сверка с каталогом, привязка, язык,
// интересы автора и сигнал на пересчёт вектора.
func (s *Service) HandleTaggingJob(ctx context.Context, job domain.TaggingJob) error {
	if !job.Kind.Taggable() {
		return fmt.Errorf("%w: вид контента %q не тегируется", domain.ErrValidation, job.Kind)
	}
	title, body, err := s.content.ContentText(ctx, job.Kind, job.ContentID)
	if err != nil {
		return fmt.Errorf("текст контента: %w", err)
	}
	catalog, err := s.tags.ListTags(ctx, s.catalogSize)
	if err != nil {
		return fmt.Errorf("каталог тегов: %w", err)
	}
	suggestion, err := s.generator.GenerateTags(ctx, title, body, catalog)
	if err != nil {
		return fmt.Errorf("генерация тегов: %w", err)
	}
	tagIDs, err := s.ReconcileTags(ctx, suggestion.Tags)
	if err != nil {
		return err
	}
	if err := s.tags.LinkContentTags(ctx, job.Kind, job.ContentID, tagIDs); err != nil {
		return fmt.Errorf("привязка тегов: %w", err)
	}
	if suggestion.Language != "" {
		if err := s.content.SetContentLanguage(ctx, job.Kind, job.ContentID, suggestion.Language); err != nil {
			return fmt.Errorf("язык контента: %w", err)
		}
	}
	info, err := s.content.GetContentInfo(ctx, job.Kind, job.ContentID)
	if err != nil {
		return fmt.Errorf("автор контента: %w", err)
	}
	if err := s.GrantInterest(ctx, info.AuthorID, tagIDs); err != nil {
		return err
	}
	if err := s.bus.PublishEmbedding(ctx, domain.EmbeddingJob{
		ID:          uuid.NewString(),
		Subject:     domain.EmbedContent,
		Kind:        job.Kind,
		ContentID:   job.ContentID,
		RequestedAt: time.Now().UTC(),
	}); err != nil {
		s.log.Error().Err(err).Int64("content_id", job.ContentID).Msg("не удалось опубликовать сигнал векторизации")
	}
	s.log.Info().Str("kind", string(job.Kind)).Int64("content_id", job.ContentID).Int("tags", len(tagIDs)).Msg("контент тегирован")
	return nil
}
