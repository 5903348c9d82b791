package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	AI            AIConfig            `mapstructure:"ai"`
	OCR           OCRConfig           `mapstructure:"ocr"`
	OpenFoodFacts OpenFoodFactsConfig `mapstructure:"open_food_facts"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Uploads       UploadConfig        `mapstructure:"uploads"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	DedupWindow   time.Duration       `mapstructure:"dedup_window"`
	LogLevel      string              `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// AIConfig 生成式文字服務設定
type AIConfig struct {
	Provider  string        `mapstructure:"provider"` // gemini | openai
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
}

// Enabled 是否設定了可用的 API Key
func (c AIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// OCRConfig OCR 服務設定
type OCRConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Retries  int           `mapstructure:"retries"`
}

// OpenFoodFactsConfig 產品資料庫查詢設定
type OpenFoodFactsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	Retries        int           `mapstructure:"retries"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// FetchConfig 外部請求共用設定
type FetchConfig struct {
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"` // memory | redis
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// RedisConfig Redis 連線設定
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig 掃描紀錄儲存設定
type StorageConfig struct {
	Driver       string `mapstructure:"driver"` // memory | postgres | sqlite | mysql | redis
	DSN          string `mapstructure:"dsn"`
	HistoryLimit int    `mapstructure:"history_limit"`
	Migrate      bool   `mapstructure:"migrate"`
}

// UploadConfig 上傳設定
type UploadConfig struct {
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
}

// ArchiveConfig 上傳圖片封存（MinIO / S3 相容）
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// CORSConfig 跨域設定
type CORSConfig struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// Origins 將逗號分隔的來源拆成切片
func (c CORSConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 不存在時只使用環境變數與預設值
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string][]string{
		"server.port":             {"PORT"},
		"ai.provider":             {"AI_PROVIDER"},
		"ai.api_key":              {"GEMINI_API_KEY", "OPENAI_API_KEY"},
		"ai.model":                {"AI_MODEL"},
		"ai.base_url":             {"AI_BASE_URL"},
		"ocr.api_key":             {"OCR_API_KEY"},
		"open_food_facts.enabled": {"OFF_ENABLED"},
		"cache.enabled":           {"CACHE_ENABLED"},
		"cache.backend":           {"CACHE_BACKEND"},
		"cache.redis.addr":        {"REDIS_ADDR"},
		"cache.redis.password":    {"REDIS_PASSWORD"},
		"storage.driver":          {"STORAGE_DRIVER"},
		"storage.dsn":             {"DATABASE_URL"},
		"storage.history_limit":   {"HISTORY_LIMIT"},
		"archive.enabled":         {"ARCHIVE_ENABLED"},
		"archive.endpoint":        {"MINIO_ENDPOINT"},
		"archive.bucket":          {"MINIO_BUCKET"},
		"archive.access_key":      {"MINIO_ACCESS_KEY"},
		"archive.secret_key":      {"MINIO_SECRET_KEY"},
		"cors.allowed_origins":    {"ALLOWED_ORIGIN"},
		"rate_limit.enabled":      {"RATE_LIMIT_ENABLED"},
		"rate_limit.requests":     {"RATE_LIMIT_REQUESTS"},
		"rate_limit.window":       {"RATE_LIMIT_WINDOW"},
		"dedup_window":            {"DEDUP_WINDOW"},
		"log_level":               {"LOG_LEVEL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "ingredient-checker")

	// 伺服器設定
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "110s")
	v.SetDefault("server.max_body_bytes", 12<<20)

	// 生成式文字服務
	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.timeout", "25s")
	v.SetDefault("ai.retries", 1)

	// OCR
	v.SetDefault("ocr.endpoint", "https://api.ocr.space/parse/image")
	v.SetDefault("ocr.language", "eng")
	v.SetDefault("ocr.timeout", "25s")
	v.SetDefault("ocr.retries", 1)

	// Open Food Facts
	v.SetDefault("open_food_facts.enabled", true)
	v.SetDefault("open_food_facts.base_url", "https://world.openfoodfacts.org")
	v.SetDefault("open_food_facts.user_agent", "ingredient-checker/1.0")
	v.SetDefault("open_food_facts.timeout", "12s")
	v.SetDefault("open_food_facts.retries", 1)
	v.SetDefault("open_food_facts.max_concurrency", 8)

	v.SetDefault("fetch.base_delay", "1s")

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	// 儲存設定
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.history_limit", 50)
	v.SetDefault("storage.migrate", true)

	v.SetDefault("uploads.max_size_bytes", 10*1024*1024) // 10MB

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.bucket", "label-uploads")
	v.SetDefault("archive.region", "us-east-1")

	v.SetDefault("cors.allowed_origins", "*")

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 30)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	switch config.AI.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("unsupported ai provider %q", config.AI.Provider)
	}
	if config.AI.Retries < 0 || config.OCR.Retries < 0 || config.OpenFoodFacts.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if config.OpenFoodFacts.MaxConcurrency <= 0 {
		return fmt.Errorf("invalid open food facts max concurrency")
	}

	if config.Cache.Enabled {
		switch config.Cache.Backend {
		case "memory":
			if config.Cache.MaxSize <= 0 {
				return fmt.Errorf("invalid cache max size")
			}
			if config.Cache.CleanupInterval <= 0 {
				return fmt.Errorf("invalid cache cleanup interval")
			}
		case "redis":
		default:
			return fmt.Errorf("unsupported cache backend %q", config.Cache.Backend)
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
	}

	switch config.Storage.Driver {
	case "memory", "redis":
	case "postgres", "sqlite", "mysql":
		if strings.TrimSpace(config.Storage.DSN) == "" {
			return fmt.Errorf("storage dsn is required for driver %q", config.Storage.Driver)
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}
	if config.Storage.HistoryLimit <= 0 {
		return fmt.Errorf("invalid history limit")
	}

	if config.Archive.Enabled && (config.Archive.Endpoint == "" || config.Archive.Bucket == "") {
		return fmt.Errorf("archive endpoint and bucket are required when archive is enabled")
	}

	if config.RateLimit.Enabled && (config.RateLimit.Requests <= 0 || config.RateLimit.Window <= 0) {
		return fmt.Errorf("invalid rate limit settings")
	}

	return nil
}
