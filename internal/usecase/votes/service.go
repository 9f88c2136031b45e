package votes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// Service реализует переключаемое голосование: не более одной строки
// на пару (цель, голосующий).
type Service struct {
	log       zerolog.Logger
	votes     domain.VoteRepo
	content   domain.ContentRepo
	interests domain.InterestGranter
	notifier  domain.Notifier
}

// NewService создаёт движок голосования.
func NewService(log zerolog.Logger, votes domain.VoteRepo, content domain.ContentRepo, interests domain.InterestGranter, notifier domain.Notifier) *Service {
	return &Service{
		log:       log.With().Str("component", "votes").Logger(),
		votes:     votes,
		content:   content,
		interests: interests,
		notifier:  notifier,
	}
}

func direction(up bool) domain.VoteState {
	if up {
		return domain.VoteUp
	}
	return domain.VoteDown
}

// Cast применяет один клик голосования и возвращает итоговое состояние пары
// вместе с пересчитанными счётчиками. Повтор в ту же сторону снимает голос,
// клик в противоположную переворачивает строку на месте. Интересы и
// уведомления порождает только создание новой строки.
func (s *Service) Cast(ctx context.Context, kind domain.ContentKind, targetID, voterID int64, up bool) (domain.VoteResult, error) {
	info, err := s.content.GetContentInfo(ctx, kind, targetID)
	if err != nil {
		return domain.VoteResult{}, fmt.Errorf("цель голосования: %w", err)
	}

	vote, found, err := s.votes.GetVote(ctx, kind, targetID, voterID)
	if err != nil {
		return domain.VoteResult{}, fmt.Errorf("текущий голос: %w", err)
	}

	var state domain.VoteState
	switch {
	case !found:
		if err := s.votes.InsertVote(ctx, kind, targetID, voterID, up); err != nil {
			return domain.VoteResult{}, fmt.Errorf("создание голоса: %w", err)
		}
		state = direction(up)
		metrics.IncVoteTransition(string(kind), "none_to_"+string(state))
		s.onVoteCreated(ctx, info, voterID, up)
	case vote.IsUp == up:
		if err := s.votes.DeleteVote(ctx, kind, targetID, voterID); err != nil {
			return domain.VoteResult{}, fmt.Errorf("снятие голоса: %w", err)
		}
		state = domain.VoteNone
		metrics.IncVoteTransition(string(kind), string(direction(up))+"_to_none")
	default:
		if err := s.votes.UpdateVoteFlag(ctx, kind, targetID, voterID, up); err != nil {
			return domain.VoteResult{}, fmt.Errorf("переворот голоса: %w", err)
		}
		state = direction(up)
		metrics.IncVoteTransition(string(kind), string(direction(!up))+"_to_"+string(state))
	}

	counts, err := s.votes.CountVotes(ctx, kind, targetID)
	if err != nil {
		return domain.VoteResult{}, fmt.Errorf("пересчёт голосов: %w", err)
	}
	return domain.VoteResult{State: state, Counts: counts}, nil
}

// Counts возвращает пересчитанные счётчики цели.
func (s *Service) Counts(ctx context.Context, kind domain.ContentKind, targetID int64) (domain.VoteCounts, error) {
	if _, err := s.content.GetContentInfo(ctx, kind, targetID); err != nil {
		return domain.VoteCounts{}, err
	}
	return s.votes.CountVotes(ctx, kind, targetID)
}

// Info возвращает сведения о цели; используется вызывающим для проверки
// авторства до применения голоса.
func (s *Service) Info(ctx context.Context, kind domain.ContentKind, targetID int64) (domain.ContentInfo, error) {
	return s.content.GetContentInfo(ctx, kind, targetID)
}

// onVoteCreated пополняет интересы голосующего тегами цели и уведомляет
// автора о голосе «за». Обе операции не прерывают голосование при ошибке.
func (s *Service) onVoteCreated(ctx context.Context, info domain.ContentInfo, voterID int64, up bool) {
	if len(info.TagIDs) > 0 {
		if err := s.interests.GrantInterest(ctx, voterID, info.TagIDs); err != nil {
			s.log.Error().Err(err).Int64("voter_id", voterID).Msg("не удалось пополнить интересы голосующего")
		}
	}
	if up && info.AuthorID != voterID {
		err := s.notifier.Notify(ctx, domain.Notification{
			ID:          uuid.NewString(),
			Kind:        domain.NotifyUpvote,
			RecipientID: info.AuthorID,
			ActorID:     voterID,
			TargetKind:  info.Kind,
			TargetID:    info.ID,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			s.log.Error().Err(err).Int64("author_id", info.AuthorID).Msg("не удалось отправить уведомление о голосе")
		}
	}
}
