package content

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
)

type fakeRepo struct {
	nextPostID    int64
	nextCommentID int64
	posts         map[int64]domain.Post
	comments      []domain.Comment
	postTags      map[int64][]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextPostID:    1,
		nextCommentID: 1,
		posts:         map[int64]domain.Post{},
		postTags:      map[int64][]int64{},
	}
}

func (f *fakeRepo) CreatePost(_ context.Context, p domain.Post) (domain.Post, error) {
	p.ID = f.nextPostID
	f.nextPostID++
	f.posts[p.ID] = p
	return p, nil
}

func (f *fakeRepo) UpdatePost(_ context.Context, p domain.Post) (domain.Post, error) {
	existing, ok := f.posts[p.ID]
	if !ok {
		return domain.Post{}, domain.ErrNotFound
	}
	existing.Title = p.Title
	existing.Body = p.Body
	f.posts[p.ID] = existing
	return existing, nil
}

func (f *fakeRepo) CreateJobPosting(_ context.Context, j domain.JobPosting) (domain.JobPosting, error) {
	j.ID = 1
	return j, nil
}

func (f *fakeRepo) CreateComment(_ context.Context, c domain.Comment) (domain.Comment, error) {
	c.ID = f.nextCommentID
	f.nextCommentID++
	f.comments = append(f.comments, c)
	return c, nil
}

func (f *fakeRepo) GetContentInfo(_ context.Context, kind domain.ContentKind, id int64) (domain.ContentInfo, error) {
	if kind == domain.KindPost {
		post, ok := f.posts[id]
		if !ok {
			return domain.ContentInfo{}, domain.ErrNotFound
		}
		return domain.ContentInfo{ID: id, Kind: kind, AuthorID: post.AuthorID, TagIDs: f.postTags[id]}, nil
	}
	return domain.ContentInfo{}, domain.ErrNotFound
}

func (f *fakeRepo) ContentText(_ context.Context, _ domain.ContentKind, _ int64) (string, string, error) {
	return "", "", nil
}

func (f *fakeRepo) SetContentLanguage(_ context.Context, _ domain.ContentKind, _ int64, _ string) error {
	return nil
}

func (f *fakeRepo) GetContentEmbedding(_ context.Context, _ domain.ContentKind, _ int64) ([]float32, bool, error) {
	return nil, false, nil
}

func (f *fakeRepo) SetContentEmbedding(_ context.Context, _ domain.ContentKind, _ int64, _ []float32) error {
	return nil
}

func (f *fakeRepo) GetProfileEmbedding(_ context.Context, _ int64) ([]float32, bool, error) {
	return nil, false, nil
}

func (f *fakeRepo) SetProfileEmbedding(_ context.Context, _ int64, _ []float32) error {
	return nil
}

type fakeGranter struct {
	calls int
	last  []int64
}

func (f *fakeGranter) GrantInterest(_ context.Context, _ int64, tagIDs []int64) error {
	f.calls++
	f.last = tagIDs
	return nil
}

type fakeNotifier struct {
	sent []domain.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakeBus struct {
	tagging []domain.TaggingJob
}

func (f *fakeBus) PublishTagging(_ context.Context, job domain.TaggingJob) error {
	f.tagging = append(f.tagging, job)
	return nil
}

func (f *fakeBus) PublishInterestsChanged(_ context.Context, _ int64) error { return nil }

func (f *fakeBus) PublishEmbedding(_ context.Context, _ domain.EmbeddingJob) error { return nil }

func newTestService() (*Service, *fakeRepo, *fakeGranter, *fakeNotifier, *fakeBus) {
	repo := newFakeRepo()
	granter := &fakeGranter{}
	notifier := &fakeNotifier{}
	bus := &fakeBus{}
	return NewService(zerolog.Nop(), repo, granter, notifier, bus), repo, granter, notifier, bus
}

func TestCreatePostEnqueuesTagging(t *testing.T) {
	svc, _, _, _, bus := newTestService()

	post, err := svc.CreatePost(context.Background(), domain.Post{AuthorID: 1, Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(bus.tagging) != 1 {
		t.Fatalf("задач тегирования: %d, ожидали 1", len(bus.tagging))
	}
	job := bus.tagging[0]
	if job.Kind != domain.KindPost || job.ContentID != post.ID {
		t.Errorf("задача: %+v, ожидали пост %d", job, post.ID)
	}
}

func TestCreatePostRejectsEmptyTitle(t *testing.T) {
	svc, _, _, _, bus := newTestService()

	_, err := svc.CreatePost(context.Background(), domain.Post{AuthorID: 1, Title: "  ", Body: "b"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
	if len(bus.tagging) != 0 {
		t.Errorf("задач тегирования: %d, ожидали 0", len(bus.tagging))
	}
}

func TestUpdatePostRetagsContent(t *testing.T) {
	svc, _, _, _, bus := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, domain.Post{AuthorID: 1, Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("создание: %v", err)
	}
	post.Body = "new body"
	if _, err := svc.UpdatePost(ctx, post); err != nil {
		t.Fatalf("обновление: %v", err)
	}
	if len(bus.tagging) != 2 {
		t.Errorf("задач тегирования: %d, ожидали 2 (создание и обновление)", len(bus.tagging))
	}
}

func TestUpdateMissingPostReturnsNotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.UpdatePost(context.Background(), domain.Post{ID: 99, Title: "t", Body: "b"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestCreateCommentGrantsInterestAndNotifies(t *testing.T) {
	svc, repo, granter, notifier, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, domain.Post{AuthorID: 1, Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("создание поста: %v", err)
	}
	repo.postTags[post.ID] = []int64{100, 101}

	_, err = svc.CreateComment(ctx, domain.Comment{PostID: post.ID, AuthorID: 2, Body: "nice"})
	if err != nil {
		t.Fatalf("создание комментария: %v", err)
	}
	if granter.calls != 1 || len(granter.last) != 2 {
		t.Errorf("интересы комментатора: calls=%d tags=%v", granter.calls, granter.last)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Kind != domain.NotifyComment || notifier.sent[0].RecipientID != 1 {
		t.Errorf("уведомления: %+v", notifier.sent)
	}
}

func TestCreateCommentOnOwnPostDoesNotNotify(t *testing.T) {
	svc, _, _, notifier, _ := newTestService()
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, domain.Post{AuthorID: 1, Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("создание поста: %v", err)
	}
	if _, err := svc.CreateComment(ctx, domain.Comment{PostID: post.ID, AuthorID: 1, Body: "self"}); err != nil {
		t.Fatalf("комментарий: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("уведомлений: %d, ожидали 0 для собственного поста", len(notifier.sent))
	}
}

func TestCreateCommentMissingPost(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.CreateComment(context.Background(), domain.Comment{PostID: 404, AuthorID: 2, Body: "x"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}
