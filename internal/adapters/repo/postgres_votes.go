package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// voteTarget возвращает таблицу голосов и колонку цели для данного вида контента.
// Имена подставляются в SQL, поэтому множество значений закрыто.
func voteTarget(kind domain.ContentKind) (table, column string, err error) {
	switch kind {
	case domain.KindPost:
		return "post_votes", "post_id", nil
	case domain.KindJob:
		return "job_votes", "job_id", nil
	case domain.KindComment:
		return "comment_votes", "comment_id", nil
	default:
		return "", "", fmt.Errorf("вид контента %q не поддерживает голосование", kind)
	}
}

// GetVote возвращает текущий голос пользователя, если он есть.
func (p *Postgres) GetVote(ctx context.Context, kind domain.ContentKind, targetID, voterID int64) (domain.Vote, bool, error) {
	table, column, err := voteTarget(kind)
	if err != nil {
		return domain.Vote{}, false, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	vote := domain.Vote{TargetID: targetID, VoterID: voterID}
	start := time.Now()
	err = p.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT is_up, created_at, updated_at FROM %s WHERE %s=$1 AND voter_id=$2
`, table, column), targetID, voterID).Scan(&vote.IsUp, &vote.CreatedAt, &vote.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "votes_get", table, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vote{}, false, nil
	}
	if err != nil {
		return domain.Vote{}, false, err
	}
	return vote, true, nil
}

// InsertVote создаёт запись голоса.
func (p *Postgres) InsertVote(ctx context.Context, kind domain.ContentKind, targetID, voterID int64, isUp bool) error {
	table, column, err := voteTarget(kind)
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
INSERT INTO %s (%s, voter_id, is_up)
VALUES ($1,$2,$3)
ON CONFLICT (%s, voter_id) DO UPDATE SET is_up=EXCLUDED.is_up, updated_at=now()
`, table, column, column), targetID, voterID, isUp)
	metrics.ObserveNetworkRequest("postgres", "votes_insert", table, start, err)
	if isForeignKeyViolation(err) {
		return domain.ErrNotFound
	}
	return err
}

// UpdateVoteFlag переворачивает направление существующего голоса.
func (p *Postgres) UpdateVoteFlag(ctx context.Context, kind domain.ContentKind, targetID, voterID int64, isUp bool) error {
	table, column, err := voteTarget(kind)
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
UPDATE %s SET is_up=$3, updated_at=now() WHERE %s=$1 AND voter_id=$2
`, table, column), targetID, voterID, isUp)
	metrics.ObserveNetworkRequest("postgres", "votes_update", table, start, err)
	return err
}

// DeleteVote удаляет запись голоса.
func (p *Postgres) DeleteVote(ctx context.Context, kind domain.ContentKind, targetID, voterID int64) error {
	table, column, err := voteTarget(kind)
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
DELETE FROM %s WHERE %s=$1 AND voter_id=$2
`, table, column), targetID, voterID)
	metrics.ObserveNetworkRequest("postgres", "votes_delete", table, start, err)
	return err
}

// CountVotes пересчитывает голоса по записям, а не по счётчикам.
func (p *Postgres) CountVotes(ctx context.Context, kind domain.ContentKind, targetID int64) (domain.VoteCounts, error) {
	table, column, err := voteTarget(kind)
	if err != nil {
		return domain.VoteCounts{}, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var counts domain.VoteCounts
	start := time.Now()
	err = p.pool.QueryRow(ctx, fmt.Sprintf(`
SELECT COUNT(*) FILTER (WHERE is_up), COUNT(*) FILTER (WHERE NOT is_up)
FROM %s WHERE %s=$1
`, table, column), targetID).Scan(&counts.Up, &counts.Down)
	metrics.ObserveNetworkRequest("postgres", "votes_count", table, start, err)
	return counts, err
}
