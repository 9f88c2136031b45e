package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	OpenAI struct {
		APIKey         string        `envconfig:"OPENAI_API_KEY"`
		BaseURL        string        `envconfig:"OPENAI_BASE_URL"`
		Model          string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		EmbeddingModel string        `envconfig:"OPENAI_EMBEDDING_MODEL" default:"text-embedding-3-large"`
		Timeout        time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Embedding struct {
		Dim int `envconfig:"EMBEDDING_DIM" default:"1024"`
	} `envconfig:""`

	Reco struct {
		CacheTTL        time.Duration `envconfig:"RECO_CACHE_TTL" default:"30m"`
		LocalCacheSize  int           `envconfig:"RECO_LOCAL_CACHE_SIZE" default:"1024"`
		DefaultPageSize int           `envconfig:"RECO_DEFAULT_PAGE_SIZE" default:"20"`
		MaxPageSize     int           `envconfig:"RECO_MAX_PAGE_SIZE" default:"100"`
	} `envconfig:""`

	Tagging struct {
		MaxTags     int `envconfig:"TAGGING_MAX_TAGS" default:"5"`
		CatalogSize int `envconfig:"TAGGING_CATALOG_SIZE" default:"200"`
	} `envconfig:""`

	Queues struct {
		Tagging       string `envconfig:"TAGGING_QUEUE" default:"content_tagging"`
		Embedding     string `envconfig:"EMBEDDING_QUEUE" default:"embedding_jobs"`
		Notifications string `envconfig:"NOTIFICATIONS_QUEUE" default:"notifications"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
