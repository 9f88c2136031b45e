package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})

	RecoRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reco_requests_total",
		Help: "Количество запросов рекомендательных выдач",
	}, []string{"operation"})

	RecoCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reco_cache_lookups_total",
		Help: "Обращения к кэшу рекомендаций по ярусам",
	}, []string{"tier", "outcome"})

	VoteTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vote_transitions_total",
		Help: "Переходы машины состояний голосования",
	}, []string{"kind", "transition"})

	TagsReconciledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tags_reconciled_total",
		Help: "Результаты сверки тегов с таксономией",
	}, []string{"outcome"})

	EmbeddingJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "embedding_jobs_total",
		Help: "Обработанные задачи пересчёта векторов",
	}, []string{"subject", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
		RecoRequestsTotal,
		RecoCacheLookups,
		VoteTransitionsTotal,
		TagsReconciledTotal,
		EmbeddingJobsTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// IncRecoRequest увеличивает счётчик запросов рекомендательной выдачи.
func IncRecoRequest(operation string) {
	RecoRequestsTotal.WithLabelValues(operation).Inc()
}

// ObserveCacheLookup фиксирует результат обращения к ярусу кэша.
func ObserveCacheLookup(tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	RecoCacheLookups.WithLabelValues(tier, outcome).Inc()
}

// IncVoteTransition фиксирует переход машины состояний голосования.
func IncVoteTransition(kind, transition string) {
	VoteTransitionsTotal.WithLabelValues(kind, transition).Inc()
}

// IncEmbeddingJob фиксирует итог обработки задачи пересчёта вектора.
func IncEmbeddingJob(subject, status string) {
	EmbeddingJobsTotal.WithLabelValues(subject, status).Inc()
}

// IncTagsReconciled фиксирует результат сверки тегов.
func IncTagsReconciled(outcome string, n int) {
	if n <= 0 {
		return
	}
	TagsReconciledTotal.WithLabelValues(outcome).Add(float64(n))
}
