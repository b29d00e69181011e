// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"oneof=json console"`
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
	// AdminSecret signs bearer tokens for the job admin API; empty disables it.
	AdminSecret string        `yaml:"admin_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type QueueConfig struct {
	Driver       string        `yaml:"driver" validate:"oneof=postgres gorm"` // postgres | gorm
	DSN          string        `yaml:"dsn"`                                   // gorm sqlite dsn
	LeaseSeconds int           `yaml:"lease_seconds" validate:"gte=10"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Concurrency  int           `yaml:"concurrency" validate:"gte=1"`
	MaxAttempts  int           `yaml:"max_attempts" validate:"gte=1"`
}

type StorageConfig struct {
	URL           string        `yaml:"url"`
	Bucket        string        `yaml:"bucket"`
	ServiceKey    string        `yaml:"service_key"`
	SigningSecret string        `yaml:"signing_secret"`
	SignedURLTTL  time.Duration `yaml:"signed_url_ttl"`
}

type ExtractionConfig struct {
	BatchPages     int           `yaml:"batch_pages" validate:"gte=1"`
	OCRBatchPages  int           `yaml:"ocr_batch_pages" validate:"gte=1"`
	ChunkMinPages  int           `yaml:"chunk_min_pages" validate:"gte=1"`
	ChunkSize      int           `yaml:"chunk_size" validate:"gte=1"`
	TimeoutFloor   time.Duration `yaml:"timeout_floor"`
	TimeoutCap     time.Duration `yaml:"timeout_cap"`
	TimeoutPerMB   time.Duration `yaml:"timeout_per_mb"`
	OCRTimeout     time.Duration `yaml:"ocr_timeout"`
	PreviewWidth   int           `yaml:"preview_width"`
	MaxThumbnails  int           `yaml:"max_thumbnails"`
	TableMinLength int           `yaml:"table_min_length"`
}

type ProviderEndpoint struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxWait  time.Duration `yaml:"max_wait"`
	Poll     time.Duration `yaml:"poll"`
	MaxPages int           `yaml:"max_pages"`
	MaxBytes int64         `yaml:"max_bytes"`
}

type ProvidersConfig struct {
	A   ProviderEndpoint `yaml:"a"`
	B   ProviderEndpoint `yaml:"b"`
	OCR ProviderEndpoint `yaml:"ocr"`
}

type ModelsConfig struct {
	Classify  string `yaml:"classify"`
	Section   string `yaml:"section"`
	Vision    string `yaml:"vision"`
	Embedding string `yaml:"embedding"`
}

type AIConfig struct {
	OpenAIKey        string       `yaml:"openai_key"`
	OpenAIBaseURL    string       `yaml:"openai_base_url"`
	GeminiKey        string       `yaml:"gemini_key"`
	GeminiURL        string       `yaml:"gemini_url"`
	DefaultProvider  string       `yaml:"default_provider"` // openai | gemini
	Models           ModelsConfig `yaml:"models"`
	ConcurrentLimit  int          `yaml:"concurrent_limit"` // max concurrent AI calls
	Embeddings       bool         `yaml:"embeddings"`
	EmbeddingTopN    int          `yaml:"embedding_top_n"`
	MaxOutputTokens  int          `yaml:"max_output_tokens"`
	TokenizerEncoder string       `yaml:"tokenizer_encoding"`
}

type RAGConfig struct {
	MaxSections         int     `yaml:"max_sections" validate:"gte=1"`
	MaxChunksPerSection int     `yaml:"max_chunks_per_section" validate:"gte=1"`
	ExcerptTokens       int     `yaml:"excerpt_tokens" validate:"gte=1"`
	MaxFigures          int     `yaml:"max_figures"`
	VendorConfidence    float64 `yaml:"vendor_confidence"`
	SingleShotChars     int     `yaml:"single_shot_chars"`
}

type VisionConfig struct {
	MaxItems int `yaml:"max_items"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SchedulerConfig struct {
	StatsCron string `yaml:"stats_cron"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Queue      QueueConfig      `yaml:"queue"`
	Storage    StorageConfig    `yaml:"storage"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Providers  ProvidersConfig  `yaml:"providers"`
	AI         AIConfig         `yaml:"ai"`
	RAG        RAGConfig        `yaml:"rag"`
	Vision     VisionConfig     `yaml:"vision"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (missing file is allowed), loads an
// optional .env next to the working directory, applies env overrides and
// defaults, then validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Queue.Driver == "gorm" && c.Queue.DSN == "" {
		return errors.New("queue.dsn is required when queue.driver is gorm")
	}
	if c.Storage.URL == "" {
		return errors.New("storage.url is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// HasLLM reports whether any generation credential is configured.
func (c *Config) HasLLM() bool {
	return c.AI.OpenAIKey != "" || c.AI.GeminiKey != ""
}

func applyEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setStr(&cfg.Database.URL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setStr(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	setStr(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	setStr(&cfg.Storage.URL, "STORAGE_URL")
	setStr(&cfg.Storage.ServiceKey, "STORAGE_SERVICE_KEY")
	setStr(&cfg.Storage.SigningSecret, "STORAGE_SIGNING_SECRET")
	setStr(&cfg.Providers.A.URL, "PROVIDER_A_URL")
	setStr(&cfg.Providers.A.APIKey, "PROVIDER_A_KEY")
	setStr(&cfg.Providers.B.URL, "PROVIDER_B_URL")
	setStr(&cfg.Providers.B.APIKey, "PROVIDER_B_KEY")
	setStr(&cfg.Providers.OCR.URL, "OCR_URL")
	setStr(&cfg.Providers.OCR.APIKey, "OCR_KEY")
	setStr(&cfg.HTTP.AdminSecret, "ADMIN_JWT_SECRET")
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = n
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.TokenTTL <= 0 {
		cfg.HTTP.TokenTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	q := &cfg.Queue
	if q.Driver == "" {
		q.Driver = "postgres"
	}
	if q.LeaseSeconds <= 0 {
		q.LeaseSeconds = 600
	}
	if q.PollInterval <= 0 {
		q.PollInterval = 500 * time.Millisecond
	}
	if q.Concurrency <= 0 {
		q.Concurrency = 1
	}
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 5
	}

	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "documents"
	}
	if cfg.Storage.SignedURLTTL <= 0 {
		cfg.Storage.SignedURLTTL = 15 * time.Minute
	}

	e := &cfg.Extraction
	if e.BatchPages <= 0 {
		e.BatchPages = 10
	}
	if e.OCRBatchPages <= 0 {
		e.OCRBatchPages = 5
	}
	if e.ChunkMinPages <= 0 {
		e.ChunkMinPages = 300
	}
	if e.ChunkSize <= 0 {
		e.ChunkSize = 500
	}
	if e.TimeoutFloor <= 0 {
		e.TimeoutFloor = 60 * time.Second
	}
	if e.TimeoutCap <= 0 {
		e.TimeoutCap = 15 * time.Minute
	}
	if e.TimeoutPerMB <= 0 {
		e.TimeoutPerMB = 6 * time.Second
	}
	if e.OCRTimeout <= 0 {
		e.OCRTimeout = 60 * time.Second
	}
	if e.PreviewWidth <= 0 {
		e.PreviewWidth = 900
	}
	if e.MaxThumbnails <= 0 {
		e.MaxThumbnails = 25
	}
	if e.TableMinLength <= 0 {
		e.TableMinLength = 40
	}

	p := &cfg.Providers
	if p.A.Timeout <= 0 {
		p.A.Timeout = 30 * time.Second
	}
	if p.A.MaxWait <= 0 {
		p.A.MaxWait = 5 * time.Minute
	}
	if p.A.Poll <= 0 {
		p.A.Poll = 2 * time.Second
	}
	if p.A.MaxPages <= 0 {
		p.A.MaxPages = 200
	}
	if p.A.MaxBytes <= 0 {
		p.A.MaxBytes = 40 << 20
	}
	if p.B.Timeout <= 0 {
		p.B.Timeout = 120 * time.Second
	}
	if p.OCR.Timeout <= 0 {
		p.OCR.Timeout = e.OCRTimeout
	}

	a := &cfg.AI
	if a.DefaultProvider == "" {
		if a.OpenAIKey == "" && a.GeminiKey != "" {
			a.DefaultProvider = "gemini"
		} else {
			a.DefaultProvider = "openai"
		}
	}
	if a.Models.Classify == "" {
		a.Models.Classify = "gpt-4o-mini"
	}
	if a.Models.Section == "" {
		a.Models.Section = "gpt-4o"
	}
	if a.Models.Vision == "" {
		a.Models.Vision = "gpt-4o"
	}
	if a.Models.Embedding == "" {
		a.Models.Embedding = "text-embedding-3-small"
	}
	if a.ConcurrentLimit <= 0 {
		a.ConcurrentLimit = 8
	}
	if a.EmbeddingTopN <= 0 {
		a.EmbeddingTopN = 200
	}
	if a.MaxOutputTokens <= 0 {
		a.MaxOutputTokens = 4096
	}
	if a.TokenizerEncoder == "" {
		a.TokenizerEncoder = "cl100k_base"
	}

	r := &cfg.RAG
	if r.MaxSections <= 0 {
		r.MaxSections = 7
	}
	if r.MaxChunksPerSection <= 0 {
		r.MaxChunksPerSection = 6
	}
	if r.ExcerptTokens <= 0 {
		r.ExcerptTokens = 600
	}
	if r.MaxFigures <= 0 {
		r.MaxFigures = 3
	}
	if r.VendorConfidence <= 0 {
		r.VendorConfidence = 0.85
	}
	if r.SingleShotChars <= 0 {
		r.SingleShotChars = 60000
	}

	if cfg.Vision.MaxItems <= 0 || cfg.Vision.MaxItems > 4 {
		cfg.Vision.MaxItems = 4
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "document-jobs"
	}
	if cfg.Scheduler.StatsCron == "" {
		cfg.Scheduler.StatsCron = "@every 30s"
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
