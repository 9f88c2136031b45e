package embed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
)

type fakeContentRepo struct {
	title string
	body  string

	contentVec []float32
	profileVec []float32
}

func (f *fakeContentRepo) CreatePost(_ context.Context, p domain.Post) (domain.Post, error) {
	return p, nil
}

func (f *fakeContentRepo) UpdatePost(_ context.Context, p domain.Post) (domain.Post, error) {
	return p, nil
}

func (f *fakeContentRepo) CreateJobPosting(_ context.Context, j domain.JobPosting) (domain.JobPosting, error) {
	return j, nil
}

func (f *fakeContentRepo) CreateComment(_ context.Context, c domain.Comment) (domain.Comment, error) {
	return c, nil
}

func (f *fakeContentRepo) GetContentInfo(_ context.Context, _ domain.ContentKind, _ int64) (domain.ContentInfo, error) {
	return domain.ContentInfo{}, domain.ErrNotFound
}

func (f *fakeContentRepo) ContentText(_ context.Context, _ domain.ContentKind, _ int64) (string, string, error) {
	if f.title == "" && f.body == "" {
		return "", "", domain.ErrNotFound
	}
	return f.title, f.body, nil
}

func (f *fakeContentRepo) SetContentLanguage(_ context.Context, _ domain.ContentKind, _ int64, _ string) error {
	return nil
}

func (f *fakeContentRepo) GetContentEmbedding(_ context.Context, _ domain.ContentKind, _ int64) ([]float32, bool, error) {
	return f.contentVec, f.contentVec != nil, nil
}

func (f *fakeContentRepo) SetContentEmbedding(_ context.Context, _ domain.ContentKind, _ int64, vec []float32) error {
	f.contentVec = vec
	return nil
}

func (f *fakeContentRepo) GetProfileEmbedding(_ context.Context, _ int64) ([]float32, bool, error) {
	return f.profileVec, f.profileVec != nil, nil
}

func (f *fakeContentRepo) SetProfileEmbedding(_ context.Context, _ int64, vec []float32) error {
	f.profileVec = vec
	return nil
}

type fakeInterestRepo struct {
	tags []domain.Tag
}

func (f *fakeInterestRepo) AddInterests(_ context.Context, _ int64, tagIDs []int64) (int, error) {
	return len(tagIDs), nil
}

func (f *fakeInterestRepo) ListInterestTags(_ context.Context, _ int64) ([]domain.Tag, error) {
	return f.tags, nil
}

type fakeEmbedder struct {
	texts []string
	vec   []float32
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	return f.vec, nil
}

func TestHandleJobContent(t *testing.T) {
	content := &fakeContentRepo{title: "Intro", body: "Body text"}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	svc := NewService(zerolog.Nop(), content, &fakeInterestRepo{}, embedder)

	job := domain.EmbeddingJob{ID: "e1", Subject: domain.EmbedContent, Kind: domain.KindPost, ContentID: 3}
	if err := svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(content.contentVec) != 2 {
		t.Errorf("вектор контента не сохранён: %v", content.contentVec)
	}
	if len(embedder.texts) != 1 || !strings.Contains(embedder.texts[0], "Intro") {
		t.Errorf("текст для векторизации: %q", embedder.texts)
	}
}

func TestHandleJobProfileJoinsBothLanguages(t *testing.T) {
	interests := &fakeInterestRepo{tags: []domain.Tag{
		{ID: 1, NameEN: "react", NameAR: "ريأكت", Description: "UI library"},
		{ID: 2, NameEN: "hooks", NameAR: "هووكس"},
	}}
	content := &fakeContentRepo{}
	embedder := &fakeEmbedder{vec: []float32{0.5}}
	svc := NewService(zerolog.Nop(), content, interests, embedder)

	job := domain.EmbeddingJob{ID: "e2", Subject: domain.EmbedProfile, ProfileID: 7}
	if err := svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(embedder.texts) != 1 {
		t.Fatalf("векторизаций: %d, ожидали 1", len(embedder.texts))
	}
	text := embedder.texts[0]
	for _, want := range []string{"react", "ريأكت", "hooks", "هووكس", "UI library"} {
		if !strings.Contains(text, want) {
			t.Errorf("в тексте профиля нет %q: %q", want, text)
		}
	}
	if content.profileVec == nil {
		t.Error("вектор профиля не сохранён")
	}
}

func TestHandleJobProfileWithoutInterestsSkips(t *testing.T) {
	content := &fakeContentRepo{}
	embedder := &fakeEmbedder{vec: []float32{0.5}}
	svc := NewService(zerolog.Nop(), content, &fakeInterestRepo{}, embedder)

	job := domain.EmbeddingJob{ID: "e3", Subject: domain.EmbedProfile, ProfileID: 7}
	if err := svc.HandleJob(context.Background(), job); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(embedder.texts) != 0 {
		t.Errorf("векторизаций: %d, ожидали 0", len(embedder.texts))
	}
}

func TestHandleJobMissingContent(t *testing.T) {
	svc := NewService(zerolog.Nop(), &fakeContentRepo{}, &fakeInterestRepo{}, &fakeEmbedder{})

	job := domain.EmbeddingJob{ID: "e4", Subject: domain.EmbedContent, Kind: domain.KindPost, ContentID: 99}
	err := svc.HandleJob(context.Background(), job)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestHandleJobUnknownSubject(t *testing.T) {
	svc := NewService(zerolog.Nop(), &fakeContentRepo{}, &fakeInterestRepo{}, &fakeEmbedder{})

	err := svc.HandleJob(context.Background(), domain.EmbeddingJob{ID: "e5", Subject: "mystery"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ErrValidation, получили %v", err)
	}
}
