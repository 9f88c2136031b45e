package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"souq-backend/internal/adapters/repo"
	"souq-backend/internal/adapters/tagger"
	"souq-backend/internal/domain"
	"souq-backend/internal/infra/config"
	"souq-backend/internal/infra/db"
	applog "souq-backend/internal/infra/log"
	"souq-backend/internal/infra/metrics"
	"souq-backend/internal/infra/openai"
	"souq-backend/internal/infra/queue"
	tagsusecase "souq-backend/internal/usecase/tags"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "tagger")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("tagger: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.OpenAI.APIKey == "" {
		logger.Fatal().Msg("tagger: не указан ключ OpenAI (OPENAI_API_KEY)")
	}
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	generator := tagger.NewLLMTagger(openaiClient, cfg.OpenAI.Model, cfg.Tagging.MaxTags)

	queues := queue.Queues{
		Tagging:       cfg.Queues.Tagging,
		Embedding:     cfg.Queues.Embedding,
		Notifications: cfg.Queues.Notifications,
	}
	var (
		jobs domain.TaggingQueue
		bus  domain.EventBus
	)
	switch {
	case cfg.RabbitURL != "":
		rabbit, err := queue.NewBus(cfg.RabbitURL, queues)
		if err != nil {
			logger.Fatal().Err(err).Msg("tagger: не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		jobs, bus = queue.TaggingConsumer{Bus: rabbit}, rabbit
	case cfg.RedisAddr != "":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		jobs = queue.RedisTaggingQueue{Queue: queue.NewRedisQueue(redisClient, queues.Tagging)}
		bus = queue.NewRedisBus(redisClient, queues)
		logger.Warn().Msg("tagger: RabbitMQ не указан, очередь работает на Redis")
	default:
		logger.Fatal().Msg("tagger: нужна очередь задач (RABBITMQ_URL или REDIS_ADDR)")
	}

	service := tagsusecase.NewService(logger, repoAdapter, repoAdapter, repoAdapter, generator, bus, cfg.Tagging.CatalogSize)

	logger.Info().Msg("tagger: воркер запущен")
	run(ctx, logger, jobs, service)
	logger.Info().Msg("tagger: остановлен")
}

// run крутит цикл обработки до отмены контекста. Постоянные ошибки
// (невалидный ответ модели, исчезнувший контент) подтверждаются и
// выбрасываются, временные возвращают сообщение в очередь.
func run(ctx context.Context, logger zerolog.Logger, jobs domain.TaggingQueue, service *tagsusecase.Service) {
	for {
		job, ack, err := jobs.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("tagger: ошибка чтения очереди")
			continue
		}

		err = service.HandleTaggingJob(ctx, job)
		switch {
		case err == nil:
			if err := ack(true); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("tagger: не удалось подтвердить сообщение")
			}
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
			logger.Warn().Err(err).Str("job_id", job.ID).Int64("content_id", job.ContentID).Msg("tagger: задача отброшена")
			if err := ack(true); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("tagger: не удалось подтвердить сообщение")
			}
		default:
			logger.Error().Err(err).Str("job_id", job.ID).Int64("content_id", job.ContentID).Msg("tagger: задача вернётся в очередь")
			if err := ack(false); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("tagger: не удалось вернуть сообщение")
			}
		}
	}
}
