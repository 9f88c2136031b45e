package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// Service пересчитывает векторы контента и интересов профилей.
type Service struct {
	log       zerolog.Logger
	content   domain.ContentRepo
	interests domain.InterestRepo
	embedder  domain.Embedder
}

// NewService создаёт сервис векторизации.
func NewService(log zerolog.Logger, content domain.ContentRepo, interests domain.InterestRepo, embedder domain.Embedder) *Service {
	return &Service{
		log:       log.With().Str("component", "embed").Logger(),
		content:   content,
		interests: interests,
		embedder:  embedder,
	}
}

// HandleJob пересчитывает один вектор по сигналу из очереди.
func (s *Service) HandleJob(ctx context.Context, job domain.EmbeddingJob) error {
	var err error
	switch job.Subject {
	case domain.EmbedContent:
		err = s.embedContent(ctx, job.Kind, job.ContentID)
	case domain.EmbedProfile:
		err = s.embedProfile(ctx, job.ProfileID)
	default:
		err = fmt.Errorf("%w: неизвестный предмет векторизации %q", domain.ErrValidation, job.Subject)
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncEmbeddingJob(string(job.Subject), status)
	return err
}

func (s *Service) embedContent(ctx context.Context, kind domain.ContentKind, contentID int64) error {
	title, body, err := s.content.ContentText(ctx, kind, contentID)
	if err != nil {
		return fmt.Errorf("текст контента: %w", err)
	}
	vec, err := s.embedder.EmbedText(ctx, title+"\n\n"+body)
	if err != nil {
		return fmt.Errorf("векторизация контента: %w", err)
	}
	if err := s.content.SetContentEmbedding(ctx, kind, contentID, vec); err != nil {
		return fmt.Errorf("сохранение вектора контента: %w", err)
	}
	s.log.Info().Str("kind", string(kind)).Int64("content_id", contentID).Msg("вектор контента пересчитан")
	return nil
}

// embedProfile собирает текст из накопленных тегов профиля на обоих языках
// и пересчитывает вектор интересов. Профиль без интересов пропускается.
func (s *Service) embedProfile(ctx context.Context, profileID int64) error {
	tags, err := s.interests.ListInterestTags(ctx, profileID)
	if err != nil {
		return fmt.Errorf("интересы профиля: %w", err)
	}
	if len(tags) == 0 {
		s.log.Debug().Int64("profile_id", profileID).Msg("профиль без интересов, вектор не пересчитан")
		return nil
	}
	var sb strings.Builder
	for _, tag := range tags {
		sb.WriteString(tag.NameEN)
		sb.WriteString(" / ")
		sb.WriteString(tag.NameAR)
		if tag.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(tag.Description)
		}
		sb.WriteString("\n")
	}
	vec, err := s.embedder.EmbedText(ctx, sb.String())
	if err != nil {
		return fmt.Errorf("векторизация интересов: %w", err)
	}
	if err := s.content.SetProfileEmbedding(ctx, profileID, vec); err != nil {
		return fmt.Errorf("сохранение вектора профиля: %w", err)
	}
	s.log.Info().Int64("profile_id", profileID).Int("tags", len(tags)).Msg("вектор интересов пересчитан")
	return nil
}
