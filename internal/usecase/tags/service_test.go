package tags

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"souq-backend/internal/domain"
)

type fakeTagRepo struct {
	tags   []domain.Tag
	nextID int64

	linked map[string][]int64
}

func newFakeTagRepo(existing ...domain.Tag) *fakeTagRepo {
	nextID := int64(1)
	for _, tag := range existing {
		if tag.ID >= nextID {
			nextID = tag.ID + 1
		}
	}
	return &fakeTagRepo{tags: existing, nextID: nextID, linked: map[string][]int64{}}
}

func (f *fakeTagRepo) FindByNames(_ context.Context, namesEN, namesAR []string) ([]domain.Tag, error) {
	wantEN := map[string]bool{}
	for _, n := range namesEN {
		wantEN[strings.ToLower(n)] = true
	}
	wantAR := map[string]bool{}
	for _, n := range namesAR {
		wantAR[strings.ToLower(n)] = true
	}
	var out []domain.Tag
	for _, tag := range f.tags {
		if wantEN[strings.ToLower(tag.NameEN)] || wantAR[strings.ToLower(tag.NameAR)] {
			out = append(out, tag)
		}
	}
	return out, nil
}

func (f *fakeTagRepo) InsertTags(_ context.Context, candidates []domain.TagCandidate) ([]domain.Tag, error) {
	var created []domain.Tag
	for _, c := range candidates {
		tag := domain.Tag{ID: f.nextID, NameEN: c.NameEN, NameAR: c.NameAR, Description: c.Description}
		f.nextID++
		f.tags = append(f.tags, tag)
		created = append(created, tag)
	}
	return created, nil
}

func (f *fakeTagRepo) ListTags(_ context.Context, limit int) ([]domain.Tag, error) {
	if limit > 0 && len(f.tags) > limit {
		return f.tags[:limit], nil
	}
	return f.tags, nil
}

func (f *fakeTagRepo) LinkContentTags(_ context.Context, kind domain.ContentKind, contentID int64, tagIDs []int64) error {
	key := string(kind) + ":" + itoa(contentID)
	have := map[int64]bool{}
	for _, id := range f.linked[key] {
		have[id] = true
	}
	for _, id := range tagIDs {
		if !have[id] {
			f.linked[key] = append(f.linked[key], id)
		}
	}
	return nil
}

func (f *fakeTagRepo) ListContentTagIDs(_ context.Context, kind domain.ContentKind, contentID int64) ([]int64, error) {
	return f.linked[string(kind)+":"+itoa(contentID)], nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}

type fakeInterestRepo struct {
	pairs map[int64]map[int64]bool
}

func newFakeInterestRepo() *fakeInterestRepo {
	return &fakeInterestRepo{pairs: map[int64]map[int64]bool{}}
}

func (f *fakeInterestRepo) AddInterests(_ context.Context, profileID int64, tagIDs []int64) (int, error) {
	if f.pairs[profileID] == nil {
		f.pairs[profileID] = map[int64]bool{}
	}
	added := 0
	for _, id := range tagIDs {
		if !f.pairs[profileID][id] {
			f.pairs[profileID][id] = true
			added++
		}
	}
	return added, nil
}

func (f *fakeInterestRepo) ListInterestTags(_ context.Context, profileID int64) ([]domain.Tag, error) {
	var tags []domain.Tag
	for id := range f.pairs[profileID] {
		tags = append(tags, domain.Tag{ID: id})
	}
	return tags, nil
}

type fakeBus struct {
	interestsChanged []int64
	embeddings       []domain.EmbeddingJob
	tagging          []domain.TaggingJob
}

func (f *fakeBus) PublishTagging(_ context.Context, job domain.TaggingJob) error {
	f.tagging = append(f.tagging, job)
	return nil
}

func (f *fakeBus) PublishInterestsChanged(_ context.Context, profileID int64) error {
	f.interestsChanged = append(f.interestsChanged, profileID)
	return nil
}

func (f *fakeBus) PublishEmbedding(_ context.Context, job domain.EmbeddingJob) error {
	f.embeddings = append(f.embeddings, job)
	return nil
}

type fakeContentRepo struct {
	title    string
	body     string
	authorID int64
	lang     string
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

func (f *fakeContentRepo) GetContentInfo(_ context.Context, kind domain.ContentKind, id int64) (domain.ContentInfo, error) {
	return domain.ContentInfo{ID: id, Kind: kind, AuthorID: f.authorID}, nil
}

func (f *fakeContentRepo) ContentText(_ context.Context, _ domain.ContentKind, _ int64) (string, string, error) {
	return f.title, f.body, nil
}

func (f *fakeContentRepo) SetContentLanguage(_ context.Context, _ domain.ContentKind, _ int64, lang string) error {
	f.lang = lang
	return nil
}

func (f *fakeContentRepo) GetContentEmbedding(_ context.Context, _ domain.ContentKind, _ int64) ([]float32, bool, error) {
	return nil, false, nil
}

func (f *fakeContentRepo) SetContentEmbedding(_ context.Context, _ domain.ContentKind, _ int64, _ []float32) error {
	return nil
}

func (f *fakeContentRepo) GetProfileEmbedding(_ context.Context, _ int64) ([]float32, bool, error) {
	return nil, false, nil
}

func (f *fakeContentRepo) SetProfileEmbedding(_ context.Context, _ int64, _ []float32) error {
	return nil
}

type fakeGenerator struct {
	suggestion domain.TagSuggestion
}

func (f *fakeGenerator) GenerateTags(_ context.Context, _, _ string, _ []domain.Tag) (domain.TagSuggestion, error) {
	return f.suggestion, nil
}

func newService(tagRepo *fakeTagRepo, interests *fakeInterestRepo, content *fakeContentRepo, gen *fakeGenerator, bus *fakeBus) *Service {
	return NewService(zerolog.Nop(), tagRepo, interests, content, gen, bus, 200)
}

func TestReconcileTagsMatchesByEitherName(t *testing.T) {
	repo := newFakeTagRepo(domain.Tag{ID: 7, NameEN: "react", NameAR: "رياكت"})
	svc := newService(repo, newFakeInterestRepo(), &fakeContentRepo{}, &fakeGenerator{}, &fakeBus{})

	// Транслитерация отличается, но английское имя совпадает.
	ids, err := svc.ReconcileTags(context.Background(), []domain.TagCandidate{
		{NameEN: "React", NameAR: "ريأكت"},
		{NameEN: "hooks", NameAR: "هووكس"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("идентификаторов: %d, ожидали 2", len(ids))
	}
	if ids[0] != 7 {
		t.Errorf("первый id: %d, ожидали существующий тег 7", ids[0])
	}
	if len(repo.tags) != 2 {
		t.Errorf("тегов в каталоге: %d, ожидали 2 (дубликат не создан)", len(repo.tags))
	}
}

func TestReconcileTagsMatchesByArabicName(t *testing.T) {
	repo := newFakeTagRepo(domain.Tag{ID: 3, NameEN: "reactjs", NameAR: "ريأكت"})
	svc := newService(repo, newFakeInterestRepo(), &fakeContentRepo{}, &fakeGenerator{}, &fakeBus{})

	ids, err := svc.ReconcileTags(context.Background(), []domain.TagCandidate{
		{NameEN: "react", NameAR: "ريأكت"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("ожидали совпадение по арабскому имени с тегом 3, получили %v", ids)
	}
}

func TestReconcileTagsIdempotent(t *testing.T) {
	repo := newFakeTagRepo()
	svc := newService(repo, newFakeInterestRepo(), &fakeContentRepo{}, &fakeGenerator{}, &fakeBus{})
	candidates := []domain.TagCandidate{{NameEN: "go", NameAR: "غو"}}

	first, err := svc.ReconcileTags(context.Background(), candidates)
	if err != nil {
		t.Fatalf("первый вызов: %v", err)
	}
	second, err := svc.ReconcileTags(context.Background(), candidates)
	if err != nil {
		t.Fatalf("второй вызов: %v", err)
	}
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("повторная сверка не идемпотентна: %v vs %v", first, second)
	}
	if len(repo.tags) != 1 {
		t.Errorf("тегов в каталоге: %d, ожидали 1", len(repo.tags))
	}
}

func TestReconcileTagsSkipsBlankAndDuplicateCandidates(t *testing.T) {
	repo := newFakeTagRepo()
	svc := newService(repo, newFakeInterestRepo(), &fakeContentRepo{}, &fakeGenerator{}, &fakeBus{})

	ids, err := svc.ReconcileTags(context.Background(), []domain.TagCandidate{
		{NameEN: "  ", NameAR: "غو"},
		{NameEN: "go", NameAR: "غو"},
		{NameEN: "GO", NameAR: "جو"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("идентификаторов: %d, ожидали 1", len(ids))
	}
}

func TestGrantInterestSignalsOncePerCall(t *testing.T) {
	bus := &fakeBus{}
	interests := newFakeInterestRepo()
	svc := newService(newFakeTagRepo(), interests, &fakeContentRepo{}, &fakeGenerator{}, bus)

	if err := svc.GrantInterest(context.Background(), 42, []int64{1, 2, 3}); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(bus.interestsChanged) != 1 {
		t.Fatalf("сигналов: %d, ожидали 1 на вызов", len(bus.interestsChanged))
	}

	// Повтор с теми же тегами: пар не прибавилось, но сигнал снова один.
	if err := svc.GrantInterest(context.Background(), 42, []int64{1, 2, 3}); err != nil {
		t.Fatalf("повторный вызов: %v", err)
	}
	if len(bus.interestsChanged) != 2 {
		t.Errorf("сигналов после повтора: %d, ожидали 2", len(bus.interestsChanged))
	}
	if len(interests.pairs[42]) != 3 {
		t.Errorf("пар интересов: %d, ожидали 3", len(interests.pairs[42]))
	}
}

func TestGrantInterestEmptyTagsNoSignal(t *testing.T) {
	bus := &fakeBus{}
	svc := newService(newFakeTagRepo(), newFakeInterestRepo(), &fakeContentRepo{}, &fakeGenerator{}, bus)

	if err := svc.GrantInterest(context.Background(), 42, nil); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(bus.interestsChanged) != 0 {
		t.Errorf("сигналов: %d, ожидали 0 для пустого списка", len(bus.interestsChanged))
	}
}

func TestHandleTaggingJobPipeline(t *testing.T) {
	repo := newFakeTagRepo(domain.Tag{ID: 1, NameEN: "react", NameAR: "ريأكت"})
	interests := newFakeInterestRepo()
	content := &fakeContentRepo{title: "Intro to hooks", body: "React hooks basics", authorID: 9}
	gen := &fakeGenerator{suggestion: domain.TagSuggestion{
		Language: "en",
		Tags: []domain.TagCandidate{
			{NameEN: "react", NameAR: "رياكت"},
			{NameEN: "hooks", NameAR: "هووكس"},
		},
	}}
	bus := &fakeBus{}
	svc := newService(repo, interests, content, gen, bus)

	job := domain.TaggingJob{ID: "j1", Kind: domain.KindPost, ContentID: 5}
	if err := svc.HandleTaggingJob(context.Background(), job); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	linked, _ := repo.ListContentTagIDs(context.Background(), domain.KindPost, 5)
	if len(linked) != 2 {
		t.Errorf("привязано тегов: %d, ожидали 2", len(linked))
	}
	if linked[0] != 1 {
		t.Errorf("существующий тег переиспользован: получили %v", linked)
	}
	if content.lang != "en" {
		t.Errorf("язык контента: %q, ожидали en", content.lang)
	}
	if len(interests.pairs[9]) != 2 {
		t.Errorf("интересов автора: %d, ожидали 2", len(interests.pairs[9]))
	}
	if len(bus.interestsChanged) != 1 {
		t.Errorf("сигналов интересов: %d, ожидали 1", len(bus.interestsChanged))
	}
	if len(bus.embeddings) != 1 || bus.embeddings[0].Subject != domain.EmbedContent {
		t.Errorf("сигналов векторизации: %+v, ожидали один content", bus.embeddings)
	}
}

func TestHandleTaggingJobRejectsComment(t *testing.T) {
	svc := newService(newFakeTagRepo(), newFakeInterestRepo(), &fakeContentRepo{}, &fakeGenerator{}, &fakeBus{})

	err := svc.HandleTaggingJob(context.Background(), domain.TaggingJob{ID: "j2", Kind: domain.KindComment, ContentID: 1})
	if err == nil {
		t.Fatal("ожидали ошибку для нетегируемого вида")
	}
}
