package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"souq-backend/internal/adapters/repo"
	"souq-backend/internal/domain"
	"souq-backend/internal/infra/cache"
	"souq-backend/internal/infra/config"
	"souq-backend/internal/infra/db"
	httpinfra "souq-backend/internal/infra/http"
	applog "souq-backend/internal/infra/log"
	"souq-backend/internal/infra/metrics"
	"souq-backend/internal/infra/queue"
	contentusecase "souq-backend/internal/usecase/content"
	feedusecase "souq-backend/internal/usecase/feed"
	tagsusecase "souq-backend/internal/usecase/tags"
	votesusecase "souq-backend/internal/usecase/votes"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	queues := queue.Queues{
		Tagging:       cfg.Queues.Tagging,
		Embedding:     cfg.Queues.Embedding,
		Notifications: cfg.Queues.Notifications,
	}
	var bus domain.EventBus
	var notifier domain.Notifier
	switch {
	case cfg.RabbitURL != "":
		rabbit, err := queue.NewBus(cfg.RabbitURL, queues)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		bus, notifier = rabbit, rabbit
	case redisClient != nil:
		redisBus := queue.NewRedisBus(redisClient, queues)
		bus, notifier = redisBus, redisBus
		logger.Warn().Msg("api: RabbitMQ не указан, шина событий работает на Redis")
	default:
		logger.Fatal().Msg("api: нужна шина событий (RABBITMQ_URL или REDIS_ADDR)")
	}

	var shared cache.SharedCache
	if redisClient != nil {
		shared = cache.NewRedis(redisClient)
	}
	recoCache := cache.NewTwoTier(cache.NewLocal(cfg.Reco.LocalCacheSize), shared)

	tagsService := tagsusecase.NewService(logger, repoAdapter, repoAdapter, repoAdapter, nil, bus, cfg.Tagging.CatalogSize)
	contentService := contentusecase.NewService(logger, repoAdapter, tagsService, notifier, bus)
	votesService := votesusecase.NewService(logger, repoAdapter, repoAdapter, tagsService, notifier)
	feedService := feedusecase.NewService(logger, repoAdapter, repoAdapter, recoCache, cfg.Reco.CacheTTL, cfg.Reco.DefaultPageSize, cfg.Reco.MaxPageSize, cfg.Embedding.Dim)

	h := &handlers{
		content: contentService,
		votes:   votesService,
		feed:    feedService,
	}

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	server.Router.Route("/api/v1", func(r chi.Router) {
		r.Post("/posts", h.createPost)
		r.Put("/posts/{id}", h.updatePost)
		r.Post("/jobs", h.createJob)
		r.Post("/posts/{id}/comments", h.createComment)

		r.Post("/posts/{id}/vote", h.vote(domain.KindPost))
		r.Post("/jobs/{id}/vote", h.vote(domain.KindJob))
		r.Post("/comments/{id}/vote", h.vote(domain.KindComment))

		r.Get("/feed", h.feedCursor)
		r.Get("/feed/page", h.feedOffset)
		r.Get("/posts/{id}/similar", h.similar(domain.KindPost))
		r.Get("/jobs/{id}/similar", h.similar(domain.KindJob))
		r.Get("/suggested", h.suggested)
	})

	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: сервер остановился с ошибкой")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
	logger.Info().Msg("api: остановлен")
}

type handlers struct {
	content *contentusecase.Service
	votes   *votesusecase.Service
	feed    *feedusecase.Service
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeUsecaseError переводит доменные ошибки в HTTP-статусы.
func writeUsecaseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// callerID извлекает профиль вызывающего из заголовка X-Profile-ID.
func callerID(r *http.Request) (int64, bool) {
	raw := r.Header.Get("X-Profile-ID")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// parseVector разбирает вектор запроса из параметра vector:
// значения через запятую, как его вернула предыдущая страница.
func parseVector(raw string) ([]float32, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("bad vector component %q", part)
		}
		vec = append(vec, float32(v))
	}
	return vec, nil
}

func formatVector(vec []float32) string {
	if len(vec) == 0 {
		return ""
	}
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return strings.Join(parts, ",")
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func feedKind(r *http.Request) (domain.ContentKind, error) {
	switch r.URL.Query().Get("kind") {
	case "", "post":
		return domain.KindPost, nil
	case "job":
		return domain.KindJob, nil
	default:
		return "", fmt.Errorf("unknown kind %q", r.URL.Query().Get("kind"))
	}
}

type postRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type postResponse struct {
	ID        int64     `json:"id"`
	AuthorID  int64     `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Lang      string    `json:"lang,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (h *handlers) createPost(w http.ResponseWriter, r *http.Request) {
	author, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Profile-ID is required")
		return
	}
	defer r.Body.Close()
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	post, err := h.content.CreatePost(r.Context(), domain.Post{AuthorID: author, Title: req.Title, Body: req.Body})
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, postResponse{
		ID: post.ID, AuthorID: post.AuthorID, Title: post.Title, Body: post.Body,
		Lang: post.Lang, CreatedAt: post.CreatedAt, UpdatedAt: post.UpdatedAt,
	})
}

func (h *handlers) updatePost(w http.ResponseWriter, r *http.Request) {
	author, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Profile-ID is required")
		return
	}
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	info, err := h.content.Info(r.Context(), domain.KindPost, id)
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	if info.AuthorID != author {
		writeError(w, http.StatusForbidden, "only the author can edit a post")
		return
	}
	defer r.Body.Close()
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	post, err := h.content.UpdatePost(r.Context(), domain.Post{ID: id, Title: req.Title, Body: req.Body})
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, postResponse{
		ID: post.ID, AuthorID: post.AuthorID, Title: post.Title, Body: post.Body,
		Lang: post.Lang, CreatedAt: post.CreatedAt, UpdatedAt: post.UpdatedAt,
	})
}

type jobRequest struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Company  string `json:"company"`
	Location string `json:"location"`
}

func (h *handlers) createJob(w http.ResponseWriter, r *http.Request) {
	author, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Profile-ID is required")
		return
	}
	defer r.Body.Close()
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := h.content.CreateJobPosting(r.Context(), domain.JobPosting{
		AuthorID: author, Title: req.Title, Body: req.Body,
		Company: req.Company, Location: req.Location,
	})
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         job.ID,
		"author_id":  job.AuthorID,
		"title":      job.Title,
		"company":    job.Company,
		"location":   job.Location,
		"created_at": job.CreatedAt,
	})
}

type commentRequest struct {
	Body string `json:"body"`
}

func (h *handlers) createComment(w http.ResponseWriter, r *http.Request) {
	author, ok := callerID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-Profile-ID is required")
		return
	}
	postID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return
	}
	defer r.Body.Close()
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	comment, err := h.content.CreateComment(r.Context(), domain.Comment{PostID: postID, AuthorID: author, Body: req.Body})
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         comment.ID,
		"post_id":    comment.PostID,
		"author_id":  comment.AuthorID,
		"body":       comment.Body,
		"created_at": comment.CreatedAt,
	})
}

type voteRequest struct {
	Direction string `json:"direction"`
}

type voteResponse struct {
	State string `json:"state"`
	Up    int    `json:"up"`
	Down  int    `json:"down"`
}

func (h *handlers) vote(kind domain.ContentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		voter, ok := callerID(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "X-Profile-ID is required")
			return
		}
		targetID, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid target id")
			return
		}
		defer r.Body.Close()
		var req voteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		var up bool
		switch req.Direction {
		case "up":
			up = true
		case "down":
			up = false
		default:
			writeError(w, http.StatusBadRequest, "direction must be up or down")
			return
		}
		info, err := h.votes.Info(r.Context(), kind, targetID)
		if err != nil {
			writeUsecaseError(w, err)
			return
		}
		if info.AuthorID == voter {
			writeError(w, http.StatusForbidden, "voting on own content is not allowed")
			return
		}
		result, err := h.votes.Cast(r.Context(), kind, targetID, voter, up)
		if err != nil {
			writeUsecaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, voteResponse{
			State: string(result.State),
			Up:    result.Counts.Up,
			Down:  result.Counts.Down,
		})
	}
}

type cursorPageResponse struct {
	Items       []domain.RankedItem `json:"items"`
	NextCursor  *float64            `json:"next_cursor,omitempty"`
	HasMore     bool                `json:"has_more"`
	QueryVector string              `json:"query_vector,omitempty"`
}

func (h *handlers) feedCursor(w http.ResponseWriter, r *http.Request) {
	kind, err := feedKind(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vec, err := parseVector(r.URL.Query().Get("vector"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var after *float64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		after = &v
	}
	profileID, _ := callerID(r)

	page, err := h.feed.Feed(r.Context(), kind, profileID, vec, after, queryInt(r, "size"))
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cursorPageResponse{
		Items:       page.Items,
		NextCursor:  page.NextCursor,
		HasMore:     page.HasMore,
		QueryVector: formatVector(page.QueryVector),
	})
}

type offsetPageResponse struct {
	Items       []domain.RankedItem `json:"items"`
	Page        int                 `json:"page"`
	HasMore     bool                `json:"has_more"`
	QueryVector string              `json:"query_vector,omitempty"`
}

func (h *handlers) feedOffset(w http.ResponseWriter, r *http.Request) {
	kind, err := feedKind(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	vec, err := parseVector(r.URL.Query().Get("vector"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pageNum := queryInt(r, "page")
	if pageNum <= 0 {
		pageNum = 1
	}
	profileID, _ := callerID(r)

	page, err := h.feed.FeedPage(r.Context(), kind, profileID, vec, pageNum, queryInt(r, "size"))
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offsetPageResponse{
		Items:       page.Items,
		Page:        pageNum,
		HasMore:     page.HasMore,
		QueryVector: formatVector(page.QueryVector),
	})
}

func (h *handlers) similar(kind domain.ContentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id")
			return
		}
		items, err := h.feed.Similar(r.Context(), kind, id, queryInt(r, "size"))
		if err != nil {
			writeUsecaseError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

func (h *handlers) suggested(w http.ResponseWriter, r *http.Request) {
	profileID, _ := callerID(r)
	items, err := h.feed.Suggested(r.Context(), profileID, queryInt(r, "size"))
	if err != nil {
		writeUsecaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
