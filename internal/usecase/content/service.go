package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
)

// Service реализует создание и обновление контента с постановкой
// задач тегирования.
type Service struct {
	log       zerolog.Logger
	repo      domain.ContentRepo
	interests domain.InterestGranter
	notifier  domain.Notifier
	bus       domain.EventBus
}

// NewService создаёт сервис контента.
func NewService(log zerolog.Logger, repo domain.ContentRepo, interests domain.InterestGranter, notifier domain.Notifier, bus domain.EventBus) *Service {
	return &Service{
		log:       log.With().Str("component", "content").Logger(),
		repo:      repo,
		interests: interests,
		notifier:  notifier,
		bus:       bus,
	}
}

func validateText(title, body string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: пустой заголовок", domain.ErrValidation)
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: пустое тело", domain.ErrValidation)
	}
	return nil
}

// enqueueTagging ставит задачу тегирования для любого тегируемого контента;
// ошибка публикации логируется, контент уже сохранён.
func (s *Service) enqueueTagging(ctx context.Context, c domain.Content) {
	err := s.bus.PublishTagging(ctx, domain.TaggingJob{
		ID:          uuid.NewString(),
		Kind:        c.ContentKind(),
		ContentID:   c.ContentID(),
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(c.ContentKind())).Int64("content_id", c.ContentID()).Msg("не удалось поставить задачу тегирования")
	}
}

// CreatePost сохраняет публикацию и ставит её в очередь тегирования.
func (s *Service) CreatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	if err := validateText(post.Title, post.Body); err != nil {
		return domain.Post{}, err
	}
	created, err := s.repo.CreatePost(ctx, post)
	if err != nil {
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}
	s.enqueueTagging(ctx, created)
	return created, nil
}

// UpdatePost обновляет публикацию и перезапускает тегирование:
// привязка тегов идемпотентна, старые привязки не страдают.
func (s *Service) UpdatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	if err := validateText(post.Title, post.Body); err != nil {
		return domain.Post{}, err
	}
	updated, err := s.repo.UpdatePost(ctx, post)
	if err != nil {
		return domain.Post{}, fmt.Errorf("обновление поста: %w", err)
	}
	s.enqueueTagging(ctx, updated)
	return updated, nil
}

// CreateJobPosting сохраняет вакансию и ставит её в очередь тегирования.
func (s *Service) CreateJobPosting(ctx context.Context, job domain.JobPosting) (domain.JobPosting, error) {
	if err := validateText(job.Title, job.Body); err != nil {
		return domain.JobPosting{}, err
	}
	created, err := s.repo.CreateJobPosting(ctx, job)
	if err != nil {
		return domain.JobPosting{}, fmt.Errorf("сохранение вакансии: %w", err)
	}
	s.enqueueTagging(ctx, created)
	return created, nil
}

// CreateComment сохраняет комментарий, пополняет интересы комментатора
// тегами родительского поста и уведомляет автора поста.
func (s *Service) CreateComment(ctx context.Context, comment domain.Comment) (domain.Comment, error) {
	if strings.TrimSpace(comment.Body) == "" {
		return domain.Comment{}, fmt.Errorf("%w: пустое тело комментария", domain.ErrValidation)
	}
	postInfo, err := s.repo.GetContentInfo(ctx, domain.KindPost, comment.PostID)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("родительский пост: %w", err)
	}
	created, err := s.repo.CreateComment(ctx, comment)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("сохранение комментария: %w", err)
	}
	if len(postInfo.TagIDs) > 0 {
		if err := s.interests.GrantInterest(ctx, created.AuthorID, postInfo.TagIDs); err != nil {
			s.log.Error().Err(err).Int64("author_id", created.AuthorID).Msg("не удалось пополнить интересы комментатора")
		}
	}
	if postInfo.AuthorID != created.AuthorID {
		err := s.notifier.Notify(ctx, domain.Notification{
			ID:          uuid.NewString(),
			Kind:        domain.NotifyComment,
			RecipientID: postInfo.AuthorID,
			ActorID:     created.AuthorID,
			TargetKind:  domain.KindPost,
			TargetID:    comment.PostID,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			s.log.Error().Err(err).Int64("post_id", comment.PostID).Msg("не удалось уведомить автора поста")
		}
	}
	return created, nil
}

// Info возвращает сведения о цели; вызывающий проверяет по ним авторство.
func (s *Service) Info(ctx context.Context, kind domain.ContentKind, id int64) (domain.ContentInfo, error) {
	return s.repo.GetContentInfo(ctx, kind, id)
}
