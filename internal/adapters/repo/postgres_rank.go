package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// rankSource возвращает таблицу, колонку вектора и колонку заголовка.
func rankSource(kind domain.ContentKind) (table, embedColumn, titleColumn string, err error) {
	switch kind {
	case domain.KindPost:
		return "posts", "embedding", "title", nil
	case domain.KindJob:
		return "job_postings", "embedding", "title", nil
	case domain.KindProfile:
		return "profiles", "interest_embedding", "display_name", nil
	default:
		return "", "", "", fmt.Errorf("вид контента %q не ранжируется", kind)
	}
}

// RankByDistance возвращает ближайшие записи в порядке (distance, id).
// Курсор after отсекает всё с дистанцией не больше него.
func (p *Postgres) RankByDistance(ctx context.Context, kind domain.ContentKind, query []float32, after *float64, excludeID int64, limit int) ([]domain.RankedItem, error) {
	table, embedColumn, titleColumn, err := rankSource(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var sb strings.Builder
	args := []any{pgvector.NewVector(query)}
	fmt.Fprintf(&sb, `
SELECT id, %s, %s <=> $1 AS distance
FROM %s
WHERE %s IS NOT NULL`, titleColumn, embedColumn, table, embedColumn)
	if excludeID != 0 {
		args = append(args, excludeID)
		fmt.Fprintf(&sb, " AND id <> $%d", len(args))
	}
	if after != nil {
		args = append(args, *after)
		fmt.Fprintf(&sb, " AND %s <=> $1 > $%d", embedColumn, len(args))
	}
	args = append(args, limit)
	fmt.Fprintf(&sb, "\nORDER BY distance, id\nLIMIT $%d", len(args))

	start := time.Now()
	rows, err := p.pool.Query(ctx, sb.String(), args...)
	metrics.ObserveNetworkRequest("postgres", "rank_by_distance", table, start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.RankedItem, 0, limit)
	for rows.Next() {
		item := domain.RankedItem{Kind: kind}
		if err := rows.Scan(&item.ID, &item.Title, &item.Distance); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// RankByDistanceOffset возвращает страницу того же порядка по смещению.
func (p *Postgres) RankByDistanceOffset(ctx context.Context, kind domain.ContentKind, query []float32, offset, limit int) ([]domain.RankedItem, error) {
	table, embedColumn, titleColumn, err := rankSource(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
SELECT id, %s, %s <=> $1 AS distance
FROM %s
WHERE %s IS NOT NULL
ORDER BY distance, id
OFFSET $2 LIMIT $3
`, titleColumn, embedColumn, table, embedColumn), pgvector.NewVector(query), offset, limit)
	metrics.ObserveNetworkRequest("postgres", "rank_by_distance_offset", table, start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.RankedItem, 0, limit)
	for rows.Next() {
		item := domain.RankedItem{Kind: kind}
		if err := rows.Scan(&item.ID, &item.Title, &item.Distance); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
