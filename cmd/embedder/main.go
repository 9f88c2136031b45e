package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	embedderadapter "souq-backend/internal/adapters/embedder"
	"souq-backend/internal/adapters/repo"
	"souq-backend/internal/domain"
	"souq-backend/internal/infra/config"
	"souq-backend/internal/infra/db"
	applog "souq-backend/internal/infra/log"
	"souq-backend/internal/infra/metrics"
	"souq-backend/internal/infra/openai"
	"souq-backend/internal/infra/queue"
	embedusecase "souq-backend/internal/usecase/embed"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "embedder")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("embedder: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	if cfg.OpenAI.APIKey == "" {
		logger.Fatal().Msg("embedder: не указан ключ OpenAI (OPENAI_API_KEY)")
	}
	openaiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	textEmbedder := embedderadapter.NewOpenAI(openaiClient, cfg.OpenAI.EmbeddingModel, cfg.Embedding.Dim)

	queues := queue.Queues{
		Tagging:       cfg.Queues.Tagging,
		Embedding:     cfg.Queues.Embedding,
		Notifications: cfg.Queues.Notifications,
	}
	var jobs domain.EmbeddingQueue
	switch {
	case cfg.RabbitURL != "":
		rabbit, err := queue.NewBus(cfg.RabbitURL, queues)
		if err != nil {
			logger.Fatal().Err(err).Msg("embedder: не удалось подключиться к RabbitMQ")
		}
		defer rabbit.Close()
		jobs = queue.EmbeddingConsumer{Bus: rabbit}
	case cfg.RedisAddr != "":
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		jobs = queue.RedisEmbeddingQueue{Queue: queue.NewRedisQueue(redisClient, queues.Embedding)}
		logger.Warn().Msg("embedder: RabbitMQ не указан, очередь работает на Redis")
	default:
		logger.Fatal().Msg("embedder: нужна очередь задач (RABBITMQ_URL или REDIS_ADDR)")
	}

	service := embedusecase.NewService(logger, repoAdapter, repoAdapter, textEmbedder)

	logger.Info().Msg("embedder: воркер запущен")
	run(ctx, logger, jobs, service)
	logger.Info().Msg("embedder: остановлен")
}

func run(ctx context.Context, logger zerolog.Logger, jobs domain.EmbeddingQueue, service *embedusecase.Service) {
	for {
		job, ack, err := jobs.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("embedder: ошибка чтения очереди")
			continue
		}

		err = service.HandleJob(ctx, job)
		switch {
		case err == nil:
			if err := ack(true); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("embedder: не удалось подтвердить сообщение")
			}
		case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
			logger.Warn().Err(err).Str("job_id", job.ID).Msg("embedder: задача отброшена")
			if err := ack(true); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("embedder: не удалось подтвердить сообщение")
			}
		default:
			logger.Error().Err(err).Str("job_id", job.ID).Msg("embedder: задача вернётся в очередь")
			if err := ack(false); err != nil {
				logger.Error().Err(err).Str("job_id", job.ID).Msg("embedder: не удалось вернуть сообщение")
			}
		}
	}
}
