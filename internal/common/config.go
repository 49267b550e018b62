package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/docintake/constants"
)

// Config holds all application configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	OCR        OCRConfig        `mapstructure:"ocr"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Compliance ComplianceConfig `mapstructure:"compliance"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn"`
	Driver           string        `mapstructure:"driver"` // postgres | sqlite
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr"`
	GRPCAddr       string        `mapstructure:"grpc_addr"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second per client IP
	RateBurst      int           `mapstructure:"rate_burst"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	UploadTokenTTL time.Duration `mapstructure:"upload_token_ttl"`
}

// StorageConfig selects the object store holding uploaded bytes.
type StorageConfig struct {
	Backend   string        `mapstructure:"backend"` // fs | gcs
	Root      string        `mapstructure:"root"`
	Bucket    string        `mapstructure:"bucket"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// RedisConfig holds the TTL key-value store connection. Empty Addr uses the in-memory store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	StrategyOrder   []string      `mapstructure:"strategy_order"`
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`
	MinChars        int           `mapstructure:"min_chars"`
	MinQuality      float64       `mapstructure:"min_quality"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`

	Pdftotext     string `mapstructure:"pdftotext"`
	Pdftoppm      string `mapstructure:"pdftoppm"`
	Tesseract     string `mapstructure:"tesseract"`
	TesseractLang string `mapstructure:"tesseract_lang"`
	TessdataDir   string `mapstructure:"tessdata_dir"`
	DPI           int    `mapstructure:"dpi"`
	MaxPages      int    `mapstructure:"max_pages"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	DocumentAIProcessor string `mapstructure:"documentai_processor"` // projects/*/locations/*/processors/*
	DocumentAIEndpoint  string `mapstructure:"documentai_endpoint"`

	OpenAIVisionModel string `mapstructure:"openai_vision_model"`

	RemoteURL    string `mapstructure:"remote_url"`
	RemoteAPIKey string `mapstructure:"remote_api_key"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Extractors      []string      `mapstructure:"extractors"` // ordered: openai, gemini, keyword
	Model           string        `mapstructure:"model"`
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	GeminiModel     string        `mapstructure:"gemini_model"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"`
	Temperature     float32       `mapstructure:"temperature"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxChars        int           `mapstructure:"max_chars"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	LenientOptional bool          `mapstructure:"lenient_optional"`
}

// PipelineConfig tunes the job state machine and its worker queue.
type PipelineConfig struct {
	StuckAfter     time.Duration `mapstructure:"stuck_after"`
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// ComplianceConfig tunes asset matching and reminder dates.
type ComplianceConfig struct {
	MatchThreshold   float64 `mapstructure:"match_threshold"`
	ReminderLeadDays int     `mapstructure:"reminder_lead_days"`
	SeedMasterAssets bool    `mapstructure:"seed_master_assets"`
}

// envBindings keeps the flat environment names operators already use.
var envBindings = map[string]string{
	"database.dsn":                "DB_URL",
	"database.driver":             "DB_DRIVER",
	"database.max_conns":          "DB_MAX_CONNS",
	"database.min_conns":          "DB_MIN_CONNS",
	"database.max_conn_lifetime":  "DB_MAX_CONN_LIFETIME",
	"database.max_conn_idle_time": "DB_MAX_CONN_IDLE_TIME",
	"database.dial_timeout":       "DB_DIAL_TIMEOUT",
	"database.statement_timeout":  "DB_STATEMENT_TIMEOUT",

	"server.http_addr":        "HTTP_ADDR",
	"server.grpc_addr":        "GRPC_ADDR",
	"server.rate_limit":       "RATE_LIMIT_PER_SECOND",
	"server.rate_burst":       "RATE_LIMIT_BURST",
	"server.max_upload_bytes": "MAX_UPLOAD_BYTES",
	"server.idempotency_ttl":  "IDEMPOTENCY_TTL",
	"server.upload_token_ttl": "UPLOAD_TOKEN_TTL",

	"storage.backend":    "STORAGE_BACKEND",
	"storage.root":       "STORAGE_ROOT",
	"storage.bucket":     "GCS_BUCKET",
	"storage.op_timeout": "STORAGE_TIMEOUT",

	"redis.addr":     "REDIS_ADDR",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",
	"redis.prefix":   "REDIS_PREFIX",

	"ocr.strategy_order":       "OCR_STRATEGY_ORDER",
	"ocr.strategy_timeout":     "OCR_STRATEGY_TIMEOUT",
	"ocr.min_chars":            "OCR_MIN_CHARS",
	"ocr.min_quality":          "OCR_MIN_QUALITY",
	"ocr.cache_ttl":            "OCR_CACHE_TTL",
	"ocr.pdftotext":            "PDFTOTEXT_BIN",
	"ocr.pdftoppm":             "PDFTOPPM_BIN",
	"ocr.tesseract":            "TESSERACT_BIN",
	"ocr.tesseract_lang":       "TESSERACT_LANG",
	"ocr.tessdata_dir":         "TESSDATA_PREFIX",
	"ocr.dpi":                  "OCR_DPI",
	"ocr.max_pages":            "OCR_MAX_PAGES",
	"ocr.gemini_api_key":       "GEMINI_API_KEY",
	"ocr.gemini_model":         "GEMINI_VISION_MODEL",
	"ocr.documentai_processor": "DOCUMENTAI_PROCESSOR",
	"ocr.documentai_endpoint":  "DOCUMENTAI_ENDPOINT",
	"ocr.openai_vision_model":  "OPENAI_VISION_MODEL",
	"ocr.remote_url":           "OCR_SERVICE_URL",
	"ocr.remote_api_key":       "OCR_SERVICE_TOKEN",

	"llm.extractors":       "EXTRACTORS",
	"llm.model":            "OPENAI_MODEL",
	"llm.api_key":          "OPENAI_API_KEY",
	"llm.base_url":         "OPENAI_BASE_URL",
	"llm.gemini_model":     "GEMINI_MODEL",
	"llm.gemini_api_key":   "GEMINI_API_KEY",
	"llm.temperature":      "OPENAI_TEMPERATURE",
	"llm.timeout":          "OPENAI_TIMEOUT",
	"llm.max_chars":        "EXTRACT_MAX_CHARS",
	"llm.max_tokens":       "EXTRACT_MAX_TOKENS",
	"llm.lenient_optional": "EXTRACT_LENIENT_OPTIONAL",

	"pipeline.stuck_after":     "STUCK_AFTER",
	"pipeline.workers":         "PIPELINE_WORKERS",
	"pipeline.queue_size":      "PIPELINE_QUEUE_SIZE",
	"pipeline.process_timeout": "PIPELINE_PROCESS_TIMEOUT",

	"compliance.match_threshold":    "COMPLIANCE_MATCH_THRESHOLD",
	"compliance.reminder_lead_days": "REMINDER_LEAD_DAYS",
	"compliance.seed_master_assets": "SEED_MASTER_ASSETS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("database.max_conn_idle_time", 5*time.Minute)
	v.SetDefault("database.dial_timeout", 3*time.Second)
	v.SetDefault("database.statement_timeout", time.Duration(0))

	v.SetDefault("server.http_addr", ":8081")
	v.SetDefault("server.grpc_addr", ":8080")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.max_upload_bytes", constants.DefaultMaxUploadBytes)
	v.SetDefault("server.idempotency_ttl", 24*time.Hour)
	v.SetDefault("server.upload_token_ttl", 15*time.Minute)

	v.SetDefault("storage.backend", "fs")
	v.SetDefault("storage.root", "./tmp/objects")
	v.SetDefault("storage.op_timeout", 30*time.Second)

	v.SetDefault("redis.prefix", "docintake")

	v.SetDefault("ocr.strategy_order", []string{"text_layer", "tesseract", "gemini_vision", "document_ai", "openai_vision", "remote_ocr"})
	v.SetDefault("ocr.strategy_timeout", 60*time.Second)
	v.SetDefault("ocr.min_chars", 40)
	v.SetDefault("ocr.min_quality", 0.35)
	v.SetDefault("ocr.cache_ttl", 7*24*time.Hour)
	v.SetDefault("ocr.pdftotext", "pdftotext")
	v.SetDefault("ocr.pdftoppm", "pdftoppm")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.tesseract_lang", "eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 10)
	v.SetDefault("ocr.gemini_model", "gemini-2.5-flash")
	v.SetDefault("ocr.openai_vision_model", "gpt-4o-mini")

	v.SetDefault("llm.extractors", []string{"openai", "keyword"})
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.gemini_model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", 45*time.Second)
	v.SetDefault("llm.max_chars", 3000)
	v.SetDefault("llm.max_tokens", 1200)
	v.SetDefault("llm.lenient_optional", true)

	v.SetDefault("pipeline.stuck_after", 30*time.Minute)
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.queue_size", 256)
	v.SetDefault("pipeline.process_timeout", 10*time.Minute)

	v.SetDefault("compliance.match_threshold", 0.5)
	v.SetDefault("compliance.reminder_lead_days", 30)
	v.SetDefault("compliance.seed_master_assets", true)
}

// LoadConfig loads configuration from defaults, an optional YAML file named by
// DOCINTAKE_CONFIG, and environment variables (highest precedence).
func LoadConfig() (*Config, error) {
	return loadConfig(os.Getenv("DOCINTAKE_CONFIG"))
}

func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError(constants.ErrCodeConfig, fmt.Sprintf("read config file %s", path), err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, NewAppError(constants.ErrCodeConfig, "bind env "+env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, NewAppError(constants.ErrCodeConfig, "decode config", err)
	}
	// Comma-separated env lists arrive as a single element.
	cfg.OCR.StrategyOrder = splitList(cfg.OCR.StrategyOrder)
	cfg.LLM.Extractors = splitList(cfg.LLM.Extractors)
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError(constants.ErrCodeConfig, "DB_URL is required", ErrInvalidInput)
		}
	case "sqlite":
	default:
		return NewAppError(constants.ErrCodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(constants.ErrCodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	switch c.Storage.Backend {
	case "fs":
		if c.Storage.Root == "" {
			return NewAppError(constants.ErrCodeConfig, "STORAGE_ROOT is required for fs storage", ErrInvalidInput)
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return NewAppError(constants.ErrCodeConfig, "GCS_BUCKET is required for gcs storage", ErrInvalidInput)
		}
	default:
		return NewAppError(constants.ErrCodeConfig, "STORAGE_BACKEND must be fs or gcs", ErrInvalidInput)
	}
	if len(c.OCR.StrategyOrder) == 0 {
		return NewAppError(constants.ErrCodeConfig, "OCR_STRATEGY_ORDER must name at least one strategy", ErrInvalidInput)
	}
	if c.OCR.MinChars < 0 || c.OCR.MinQuality < 0 || c.OCR.MinQuality > 1 {
		return NewAppError(constants.ErrCodeConfig, "OCR quality gate out of range", ErrInvalidInput)
	}
	if c.Compliance.MatchThreshold <= 0 || c.Compliance.MatchThreshold > 1 {
		return NewAppError(constants.ErrCodeConfig, "COMPLIANCE_MATCH_THRESHOLD must be in (0,1]", ErrInvalidInput)
	}
	if c.Compliance.ReminderLeadDays < 0 {
		return NewAppError(constants.ErrCodeConfig, "REMINDER_LEAD_DAYS must be non-negative", ErrInvalidInput)
	}
	if c.Pipeline.StuckAfter <= 0 {
		return NewAppError(constants.ErrCodeConfig, "STUCK_AFTER must be positive", ErrInvalidInput)
	}
	for _, name := range c.LLM.Extractors {
		if name == "openai" && c.LLM.APIKey == "" {
			return NewAppError(constants.ErrCodeConfig, "OPENAI_API_KEY is required when the openai extractor is enabled", ErrInvalidInput)
		}
		if name == "gemini" && c.LLM.GeminiAPIKey == "" {
			return NewAppError(constants.ErrCodeConfig, "GEMINI_API_KEY is required when the gemini extractor is enabled", ErrInvalidInput)
		}
	}
	return nil
}
