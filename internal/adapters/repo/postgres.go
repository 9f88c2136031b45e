package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.TagRepo      = (*Postgres)(nil)
	_ domain.InterestRepo = (*Postgres)(nil)
	_ domain.ContentRepo  = (*Postgres)(nil)
	_ domain.VoteRepo     = (*Postgres)(nil)
	_ domain.RankRepo     = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// tagLinkTarget возвращает таблицу и колонку связей контент-тег.
func tagLinkTarget(kind domain.ContentKind) (table, column string, err error) {
	switch kind {
	case domain.KindPost:
		return "post_tags", "post_id", nil
	case domain.KindJob:
		return "job_tags", "job_id", nil
	default:
		return "", "", fmt.Errorf("вид контента %q не тегируется", kind)
	}
}

// FindByNames возвращает теги, совпавшие по английскому или арабскому имени.
func (p *Postgres) FindByNames(ctx context.Context, namesEN, namesAR []string) ([]domain.Tag, error) {
	if len(namesEN) == 0 && len(namesAR) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	lowerEN := make([]string, 0, len(namesEN))
	for _, name := range namesEN {
		lowerEN = append(lowerEN, strings.ToLower(name))
	}
	lowerAR := make([]string, 0, len(namesAR))
	for _, name := range namesAR {
		lowerAR = append(lowerAR, strings.ToLower(name))
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name_en, name_ar, description, created_at
FROM tags
WHERE lower(name_en) = ANY($1) OR lower(name_ar) = ANY($2)
`, lowerEN, lowerAR)
	metrics.ObserveNetworkRequest("postgres", "tags_find_by_names", "tags", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.NameEN, &tag.NameAR, &tag.Description, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// InsertTags вставляет новые теги одним батчем.
func (p *Postgres) InsertTags(ctx context.Context, candidates []domain.TagCandidate) ([]domain.Tag, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, c := range candidates {
		batch.Queue(`
INSERT INTO tags (name_en, name_ar, description)
VALUES ($1,$2,$3)
RETURNING id, name_en, name_ar, description, created_at
`, c.NameEN, c.NameAR, c.Description)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "tags_insert_batch", "tags", start, nil)
	defer br.Close()

	tags := make([]domain.Tag, 0, len(candidates))
	for range candidates {
		var tag domain.Tag
		start = time.Now()
		err := br.QueryRow().Scan(&tag.ID, &tag.NameEN, &tag.NameAR, &tag.Description, &tag.CreatedAt)
		metrics.ObserveNetworkRequest("postgres", "tags_insert", "tags", start, err)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// ListTags возвращает каталог тегов.
func (p *Postgres) ListTags(ctx context.Context, limit int) ([]domain.Tag, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 200
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name_en, name_ar, description, created_at
FROM tags
ORDER BY id
LIMIT $1
`, limit)
	metrics.ObserveNetworkRequest("postgres", "tags_list", "tags", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.NameEN, &tag.NameAR, &tag.Description, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// LinkContentTags идемпотентно привязывает теги к контенту.
func (p *Postgres) LinkContentTags(ctx context.Context, kind domain.ContentKind, contentID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	table, column, err := tagLinkTarget(kind)
	if err != nil {
		return err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, tagID := range tagIDs {
		batch.Queue(fmt.Sprintf(`
INSERT INTO %s (%s, tag_id)
VALUES ($1,$2)
ON CONFLICT (%s, tag_id) DO NOTHING
`, table, column, column), contentID, tagID)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "content_tags_link_batch", table, start, nil)
	defer br.Close()
	for range tagIDs {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "content_tags_link", table, start, err)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrNotFound
			}
			return err
		}
	}
	return nil
}

// ListContentTagIDs возвращает id тегов контента.
func (p *Postgres) ListContentTagIDs(ctx context.Context, kind domain.ContentKind, contentID int64) ([]int64, error) {
	table, column, err := tagLinkTarget(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
SELECT tag_id FROM %s WHERE %s=$1 ORDER BY tag_id
`, table, column), contentID)
	metrics.ObserveNetworkRequest("postgres", "content_tags_list", table, start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddInterests вставляет только новые пары (профиль, тег).
func (p *Postgres) AddInterests(ctx context.Context, profileID int64, tagIDs []int64) (int, error) {
	if len(tagIDs) == 0 {
		return 0, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, tagID := range tagIDs {
		batch.Queue(`
INSERT INTO user_interests (profile_id, tag_id)
VALUES ($1,$2)
ON CONFLICT (profile_id, tag_id) DO NOTHING
`, profileID, tagID)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "user_interests_add_batch", "user_interests", start, nil)
	defer br.Close()

	added := 0
	for range tagIDs {
		start = time.Now()
		res, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "user_interests_add", "user_interests", start, err)
		if err != nil {
			return added, err
		}
		added += int(res.RowsAffected())
	}
	return added, nil
}

// ListInterestTags возвращает накопленные теги профиля.
func (p *Postgres) ListInterestTags(ctx context.Context, profileID int64) ([]domain.Tag, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT t.id, t.name_en, t.name_ar, t.description, t.created_at
FROM user_interests ui JOIN tags t ON t.id = ui.tag_id
WHERE ui.profile_id=$1
ORDER BY t.id
`, profileID)
	metrics.ObserveNetworkRequest("postgres", "user_interests_list", "user_interests", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.NameEN, &tag.NameAR, &tag.Description, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// CreatePost сохраняет публикацию.
func (p *Postgres) CreatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO posts (author_id, title, body, lang)
VALUES ($1,$2,$3,$4)
RETURNING id, created_at, updated_at
`, post.AuthorID, post.Title, post.Body, post.Lang).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	if isForeignKeyViolation(err) {
		return domain.Post{}, domain.ErrNotFound
	}
	return post, err
}

// UpdatePost обновляет заголовок и тело публикации.
func (p *Postgres) UpdatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE posts SET title=$2, body=$3, updated_at=now()
WHERE id=$1
RETURNING author_id, lang, created_at, updated_at
`, post.ID, post.Title, post.Body).Scan(&post.AuthorID, &post.Lang, &post.CreatedAt, &post.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "posts_update", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, domain.ErrNotFound
	}
	return post, err
}

// CreateJobPosting сохраняет вакансию.
func (p *Postgres) CreateJobPosting(ctx context.Context, job domain.JobPosting) (domain.JobPosting, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO job_postings (author_id, title, body, company, location, lang)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, created_at, updated_at
`, job.AuthorID, job.Title, job.Body, job.Company, job.Location, job.Lang).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "job_postings_insert", "job_postings", start, err)
	if isForeignKeyViolation(err) {
		return domain.JobPosting{}, domain.ErrNotFound
	}
	return job, err
}

// CreateComment сохраняет комментарий.
func (p *Postgres) CreateComment(ctx context.Context, comment domain.Comment) (domain.Comment, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO comments (post_id, author_id, body)
VALUES ($1,$2,$3)
RETURNING id, created_at
`, comment.PostID, comment.AuthorID, comment.Body).Scan(&comment.ID, &comment.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "comments_insert", "comments", start, err)
	if isForeignKeyViolation(err) {
		return domain.Comment{}, domain.ErrNotFound
	}
	return comment, err
}

// GetContentInfo возвращает автора и теги цели голосования.
func (p *Postgres) GetContentInfo(ctx context.Context, kind domain.ContentKind, id int64) (domain.ContentInfo, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	info := domain.ContentInfo{ID: id, Kind: kind}
	tagSource := id
	tagKind := kind

	switch kind {
	case domain.KindPost:
		start := time.Now()
		err := p.pool.QueryRow(ctx, `SELECT author_id FROM posts WHERE id=$1`, id).Scan(&info.AuthorID)
		metrics.ObserveNetworkRequest("postgres", "posts_get_author", "posts", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ContentInfo{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.ContentInfo{}, err
		}
	case domain.KindJob:
		start := time.Now()
		err := p.pool.QueryRow(ctx, `SELECT author_id FROM job_postings WHERE id=$1`, id).Scan(&info.AuthorID)
		metrics.ObserveNetworkRequest("postgres", "job_postings_get_author", "job_postings", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ContentInfo{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.ContentInfo{}, err
		}
	case domain.KindComment:
		// Комментарий наследует теги родительского поста.
		start := time.Now()
		err := p.pool.QueryRow(ctx, `SELECT author_id, post_id FROM comments WHERE id=$1`, id).Scan(&info.AuthorID, &tagSource)
		metrics.ObserveNetworkRequest("postgres", "comments_get_author", "comments", start, err)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ContentInfo{}, domain.ErrNotFound
		}
		if err != nil {
			return domain.ContentInfo{}, err
		}
		tagKind = domain.KindPost
	default:
		return domain.ContentInfo{}, fmt.Errorf("вид контента %q не поддерживает голосование", kind)
	}

	tagIDs, err := p.ListContentTagIDs(ctx, tagKind, tagSource)
	if err != nil {
		return domain.ContentInfo{}, err
	}
	info.TagIDs = tagIDs
	return info, nil
}

// ContentText возвращает заголовок и тело контента.
func (p *Postgres) ContentText(ctx context.Context, kind domain.ContentKind, id int64) (string, string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var query, table string
	switch kind {
	case domain.KindPost:
		query, table = `SELECT title, body FROM posts WHERE id=$1`, "posts"
	case domain.KindJob:
		query, table = `SELECT title, body FROM job_postings WHERE id=$1`, "job_postings"
	default:
		return "", "", fmt.Errorf("вид контента %q не содержит текста для тегирования", kind)
	}

	var title, body string
	start := time.Now()
	err := p.pool.QueryRow(ctx, query, id).Scan(&title, &body)
	metrics.ObserveNetworkRequest("postgres", "content_text", table, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", domain.ErrNotFound
	}
	return title, body, err
}

// SetContentLanguage сохраняет определённый пайплайном язык контента.
func (p *Postgres) SetContentLanguage(ctx context.Context, kind domain.ContentKind, id int64, lang string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var query, table string
	switch kind {
	case domain.KindPost:
		query, table = `UPDATE posts SET lang=$2, updated_at=now() WHERE id=$1`, "posts"
	case domain.KindJob:
		query, table = `UPDATE job_postings SET lang=$2, updated_at=now() WHERE id=$1`, "job_postings"
	default:
		return fmt.Errorf("вид контента %q не имеет языка", kind)
	}

	start := time.Now()
	res, err := p.pool.Exec(ctx, query, id, lang)
	metrics.ObserveNetworkRequest("postgres", "content_set_lang", table, start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetContentEmbedding возвращает вектор контента; false — ещё не материализован.
func (p *Postgres) GetContentEmbedding(ctx context.Context, kind domain.ContentKind, id int64) ([]float32, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var query, table string
	switch kind {
	case domain.KindPost:
		query, table = `SELECT embedding FROM posts WHERE id=$1`, "posts"
	case domain.KindJob:
		query, table = `SELECT embedding FROM job_postings WHERE id=$1`, "job_postings"
	default:
		return nil, false, fmt.Errorf("вид контента %q не векторизуется", kind)
	}

	var vec *pgvector.Vector
	start := time.Now()
	err := p.pool.QueryRow(ctx, query, id).Scan(&vec)
	metrics.ObserveNetworkRequest("postgres", "content_get_embedding", table, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if vec == nil {
		return nil, false, nil
	}
	return vec.Slice(), true, nil
}

// SetContentEmbedding сохраняет вектор контента.
func (p *Postgres) SetContentEmbedding(ctx context.Context, kind domain.ContentKind, id int64, vec []float32) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var query, table string
	switch kind {
	case domain.KindPost:
		query, table = `UPDATE posts SET embedding=$2, updated_at=now() WHERE id=$1`, "posts"
	case domain.KindJob:
		query, table = `UPDATE job_postings SET embedding=$2, updated_at=now() WHERE id=$1`, "job_postings"
	default:
		return fmt.Errorf("вид контента %q не векторизуется", kind)
	}

	start := time.Now()
	res, err := p.pool.Exec(ctx, query, id, pgvector.NewVector(vec))
	metrics.ObserveNetworkRequest("postgres", "content_set_embedding", table, start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetProfileEmbedding возвращает вектор интересов профиля.
func (p *Postgres) GetProfileEmbedding(ctx context.Context, profileID int64) ([]float32, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var vec *pgvector.Vector
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT interest_embedding FROM profiles WHERE id=$1`, profileID).Scan(&vec)
	metrics.ObserveNetworkRequest("postgres", "profiles_get_embedding", "profiles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, domain.ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	if vec == nil {
		return nil, false, nil
	}
	return vec.Slice(), true, nil
}

// SetProfileEmbedding сохраняет вектор интересов профиля.
func (p *Postgres) SetProfileEmbedding(ctx context.Context, profileID int64, vec []float32) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE profiles SET interest_embedding=$2, updated_at=now() WHERE id=$1`, profileID, pgvector.NewVector(vec))
	metrics.ObserveNetworkRequest("postgres", "profiles_set_embedding", "profiles", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
