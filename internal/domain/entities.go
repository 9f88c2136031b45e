package domain

import "time"

// Tag описывает двуязычную категорию контента.
type Tag struct {
	ID          int64
	NameEN      string
	NameAR      string
	Description string
	CreatedAt   time.Time
}

// TagCandidate описывает тег-кандидат из пайплайна тегирования.
type TagCandidate struct {
	NameEN      string `json:"english_name"`
	NameAR      string `json:"arabic_name"`
	Description string `json:"description"`
}

// TagSuggestion содержит результат генерации тегов LLM-провайдером.
type TagSuggestion struct {
	Language string
	Tags     []TagCandidate
}

// Profile описывает профиль пользователя маркетплейса.
type Profile struct {
	ID          int64
	DisplayName string
	Locale      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Post представляет публикацию в ленте.
type Post struct {
	ID        int64
	AuthorID  int64
	Title     string
	Body      string
	Lang      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobPosting представляет вакансию.
type JobPosting struct {
	ID        int64
	AuthorID  int64
	Title     string
	Body      string
	Company   string
	Location  string
	Lang      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment представляет комментарий к посту.
type Comment struct {
	ID        int64
	PostID    int64
	AuthorID  int64
	Body      string
	CreatedAt time.Time
}

// ContentKind различает виды контента, разделяющие поведение тегирования и голосования.
type ContentKind string

const (
	// KindPost — публикация.
	KindPost ContentKind = "post"
	// KindJob — вакансия.
	KindJob ContentKind = "job"
	// KindComment — комментарий (голосуется, но не тегируется и не ранжируется).
	KindComment ContentKind = "comment"
	// KindProfile — профиль (ранжируется по интересам, но не голосуется).
	KindProfile ContentKind = "profile"
)

// Taggable сообщает, прикрепляются ли теги к данному виду контента напрямую.
func (k ContentKind) Taggable() bool {
	return k == KindPost || k == KindJob
}

// Content описывает общую способность поста и вакансии участвовать
// в тегировании и векторизации без рефлексии по конкретному типу.
type Content interface {
	ContentID() int64
	ContentKind() ContentKind
	AuthorProfileID() int64
	ContentText() (title, body string)
}

// ContentID реализует Content.
func (p Post) ContentID() int64 { return p.ID }

// ContentKind реализует Content.
func (p Post) ContentKind() ContentKind { return KindPost }

// AuthorProfileID реализует Content.
func (p Post) AuthorProfileID() int64 { return p.AuthorID }

// ContentText реализует Content.
func (p Post) ContentText() (string, string) { return p.Title, p.Body }

// ContentID реализует Content.
func (j JobPosting) ContentID() int64 { return j.ID }

// ContentKind реализует Content.
func (j JobPosting) ContentKind() ContentKind { return KindJob }

// AuthorProfileID реализует Content.
func (j JobPosting) AuthorProfileID() int64 { return j.AuthorID }

// ContentText реализует Content.
func (j JobPosting) ContentText() (string, string) { return j.Title, j.Body }

// ContentInfo содержит сведения о цели голосования: автора и прикреплённые теги.
// Для комментария теги наследуются от родительского поста.
type ContentInfo struct {
	ID       int64
	Kind     ContentKind
	AuthorID int64
	TagIDs   []int64
}

// Vote хранит единственную строку голоса пары (цель, голосующий).
type Vote struct {
	TargetID  int64
	VoterID   int64
	IsUp      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VoteState описывает состояние пары (цель, голосующий) после перехода.
type VoteState string

const (
	// VoteNone — голос отсутствует.
	VoteNone VoteState = "none"
	// VoteUp — голос «за».
	VoteUp VoteState = "up"
	// VoteDown — голос «против».
	VoteDown VoteState = "down"
)

// VoteCounts содержит пересчитанные счётчики голосов цели.
type VoteCounts struct {
	Up   int
	Down int
}

// VoteResult возвращается движком голосования после перехода.
type VoteResult struct {
	State  VoteState
	Counts VoteCounts
}

// RankedItem описывает один элемент выдачи ранжирования.
type RankedItem struct {
	ID       int64       `json:"id"`
	Kind     ContentKind `json:"kind"`
	Title    string      `json:"title"`
	Distance float64     `json:"distance"`
}

// CursorPage — страница курсорной пагинации ленты.
type CursorPage struct {
	Items      []RankedItem
	NextCursor *float64
	HasMore    bool
	// QueryVector возвращается анонимным сессиям для повторного
	// использования на следующих страницах.
	QueryVector []float32
}

// OffsetPage — страница оффсетной пагинации.
type OffsetPage struct {
	Items   []RankedItem
	HasMore bool
	// QueryVector — см. CursorPage.
	QueryVector []float32
}
