package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	Backends   BackendsConfig
	Pipeline   PipelineConfig
	Classify   ClassifyConfig
	Settlement SettlementConfig
	Review     ReviewConfig
	Email      EmailConfig
	Report     ReportConfig
	Prompts    PromptsConfig
	CORS       CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds the receipt archive settings. An empty bucket disables
// archival entirely.
type S3Config struct {
	Region         string `mapstructure:"region"`
	Bucket         string `mapstructure:"bucket"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	MaxImageSizeMB int64  `mapstructure:"max_image_size_mb"`
	PresignExpiry  int64  `mapstructure:"presign_expiry"`
}

// BackendConfig holds settings for a single model backend.
type BackendConfig struct {
	Provider    string   `mapstructure:"provider"`
	BaseURL     string   `mapstructure:"base_url"`
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	TimeoutSecs int      `mapstructure:"timeout_secs"`
	Temperature float64  `mapstructure:"temperature"`
	MaxTokens   int      `mapstructure:"max_tokens"`
	Stop        []string `mapstructure:"stop"`
}

// BackendsConfig holds the per-role model backends: a local text model, a
// local vision-language model, and an optional remote failover.
type BackendsConfig struct {
	Text   BackendConfig `mapstructure:"text"`
	Vision BackendConfig `mapstructure:"vision"`
	Remote BackendConfig `mapstructure:"remote"`
}

// RemoteConfig returns the remote backend config, or nil if not configured.
func (b *BackendsConfig) RemoteConfig() *BackendConfig {
	if b.Remote.Provider != "" {
		return &b.Remote
	}
	return nil
}

// PipelineConfig holds orchestration knobs.
type PipelineConfig struct {
	// RetryBound is how many extra model invocations a timeout or malformed
	// output may trigger; total attempts = 1 + RetryBound.
	RetryBound int `mapstructure:"retry_bound"`
	// MaxConcurrent caps in-flight model invocations across all requests.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// ClassifyConfig holds classifier settings.
type ClassifyConfig struct {
	// FuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy
	// category match.
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	Locale         string  `mapstructure:"locale"`
	Currency       string  `mapstructure:"currency"`
}

// SettlementConfig holds settlement rule settings.
type SettlementConfig struct {
	// DelayOverrides is a comma-separated "category=days" list overriding the
	// built-in revenue settlement delays, e.g. "ubereats=10,foodpanda=14".
	DelayOverrides    string `mapstructure:"delay_overrides"`
	SweepIntervalSecs int    `mapstructure:"sweep_interval_secs"`
}

// ReviewConfig holds review-rule settings.
type ReviewConfig struct {
	// Rules is a semicolon-separated "name=expr" list of CEL expressions
	// evaluated against each record; a match flags the record for review.
	Rules       string `mapstructure:"rules"`
	NotifyEmail string `mapstructure:"notify_email"`
}

// EmailConfig holds email delivery settings.
type EmailConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// ReportConfig holds report settings.
type ReportConfig struct {
	// DailyCron is the cron spec for the daily digest email; empty disables it.
	DailyCron string `mapstructure:"daily_cron"`
}

// PromptsConfig holds prompt template settings.
type PromptsConfig struct {
	// File optionally points at a JSON or YAML file whose templates override
	// the built-in defaults; reloadable at runtime.
	File string `mapstructure:"file"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from environment variables with the BISTROBOOKS_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BISTROBOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "bistrobooks")
	v.SetDefault("db.password", "bistrobooks_secret")
	v.SetDefault("db.name", "bistrobooks_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults (bucket empty: receipt archival off)
	v.SetDefault("s3.region", "ap-northeast-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.max_image_size_mb", 10)
	v.SetDefault("s3.presign_expiry", 3600)

	// Backend defaults: LM Studio serving both local models
	v.SetDefault("backends.text.provider", "lmstudio")
	v.SetDefault("backends.text.base_url", "http://localhost:1234")
	v.SetDefault("backends.text.api_key", "")
	v.SetDefault("backends.text.model", "google/gemma-3-1b")
	v.SetDefault("backends.text.timeout_secs", 60)
	v.SetDefault("backends.text.temperature", 0.1)
	v.SetDefault("backends.text.max_tokens", 200)
	v.SetDefault("backends.text.stop", "")
	v.SetDefault("backends.vision.provider", "lmstudio")
	v.SetDefault("backends.vision.base_url", "http://localhost:1234")
	v.SetDefault("backends.vision.api_key", "")
	v.SetDefault("backends.vision.model", "qwen/qwen2.5-vl-3b")
	v.SetDefault("backends.vision.timeout_secs", 90)
	v.SetDefault("backends.vision.temperature", 0.1)
	v.SetDefault("backends.vision.max_tokens", 300)
	v.SetDefault("backends.vision.stop", "")
	v.SetDefault("backends.remote.provider", "")
	v.SetDefault("backends.remote.base_url", "")
	v.SetDefault("backends.remote.api_key", "")
	v.SetDefault("backends.remote.model", "")
	v.SetDefault("backends.remote.timeout_secs", 120)
	v.SetDefault("backends.remote.temperature", 0.1)
	v.SetDefault("backends.remote.max_tokens", 300)
	v.SetDefault("backends.remote.stop", "")

	// Pipeline defaults
	v.SetDefault("pipeline.retry_bound", 1)
	v.SetDefault("pipeline.max_concurrent", 2)

	// Classify defaults
	v.SetDefault("classify.fuzzy_threshold", 0.90)
	v.SetDefault("classify.locale", "zh-TW")
	v.SetDefault("classify.currency", "TWD")

	// Settlement defaults
	v.SetDefault("settlement.delay_overrides", "")
	v.SetDefault("settlement.sweep_interval_secs", 3600)

	// Review defaults
	v.SetDefault("review.rules", "large_amount=amount >= 100000.0;fallback_category=category == 'other'")
	v.SetDefault("review.notify_email", "")

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "ap-northeast-1")
	v.SetDefault("email.from_address", "noreply@bistrobooks.app")
	v.SetDefault("email.from_name", "BistroBooks")

	// Report defaults (08:00 local, empty disables)
	v.SetDefault("report.daily_cron", "0 8 * * *")

	// Prompt defaults
	v.SetDefault("prompts.file", "")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                    "BISTROBOOKS_SERVER_PORT",
		"server.read_timeout":            "BISTROBOOKS_SERVER_READ_TIMEOUT",
		"server.write_timeout":           "BISTROBOOKS_SERVER_WRITE_TIMEOUT",
		"server.environment":             "BISTROBOOKS_SERVER_ENVIRONMENT",
		"db.host":                        "BISTROBOOKS_DB_HOST",
		"db.port":                        "BISTROBOOKS_DB_PORT",
		"db.user":                        "BISTROBOOKS_DB_USER",
		"db.password":                    "BISTROBOOKS_DB_PASSWORD",
		"db.name":                        "BISTROBOOKS_DB_NAME",
		"db.sslmode":                     "BISTROBOOKS_DB_SSLMODE",
		"db.max_open":                    "BISTROBOOKS_DB_MAX_OPEN",
		"db.max_idle":                    "BISTROBOOKS_DB_MAX_IDLE",
		"s3.region":                      "BISTROBOOKS_S3_REGION",
		"s3.bucket":                      "BISTROBOOKS_S3_BUCKET",
		"s3.endpoint":                    "BISTROBOOKS_S3_ENDPOINT",
		"s3.access_key":                  "BISTROBOOKS_S3_ACCESS_KEY",
		"s3.secret_key":                  "BISTROBOOKS_S3_SECRET_KEY",
		"s3.max_image_size_mb":           "BISTROBOOKS_S3_MAX_IMAGE_SIZE_MB",
		"s3.presign_expiry":              "BISTROBOOKS_S3_PRESIGN_EXPIRY",
		"backends.text.provider":         "BISTROBOOKS_BACKENDS_TEXT_PROVIDER",
		"backends.text.base_url":         "BISTROBOOKS_BACKENDS_TEXT_BASE_URL",
		"backends.text.api_key":          "BISTROBOOKS_BACKENDS_TEXT_API_KEY",
		"backends.text.model":            "BISTROBOOKS_BACKENDS_TEXT_MODEL",
		"backends.text.timeout_secs":     "BISTROBOOKS_BACKENDS_TEXT_TIMEOUT_SECS",
		"backends.text.temperature":      "BISTROBOOKS_BACKENDS_TEXT_TEMPERATURE",
		"backends.text.max_tokens":       "BISTROBOOKS_BACKENDS_TEXT_MAX_TOKENS",
		"backends.text.stop":             "BISTROBOOKS_BACKENDS_TEXT_STOP",
		"backends.vision.provider":       "BISTROBOOKS_BACKENDS_VISION_PROVIDER",
		"backends.vision.base_url":       "BISTROBOOKS_BACKENDS_VISION_BASE_URL",
		"backends.vision.api_key":        "BISTROBOOKS_BACKENDS_VISION_API_KEY",
		"backends.vision.model":          "BISTROBOOKS_BACKENDS_VISION_MODEL",
		"backends.vision.timeout_secs":   "BISTROBOOKS_BACKENDS_VISION_TIMEOUT_SECS",
		"backends.vision.temperature":    "BISTROBOOKS_BACKENDS_VISION_TEMPERATURE",
		"backends.vision.max_tokens":     "BISTROBOOKS_BACKENDS_VISION_MAX_TOKENS",
		"backends.vision.stop":           "BISTROBOOKS_BACKENDS_VISION_STOP",
		"backends.remote.provider":       "BISTROBOOKS_BACKENDS_REMOTE_PROVIDER",
		"backends.remote.base_url":       "BISTROBOOKS_BACKENDS_REMOTE_BASE_URL",
		"backends.remote.api_key":        "BISTROBOOKS_BACKENDS_REMOTE_API_KEY",
		"backends.remote.model":          "BISTROBOOKS_BACKENDS_REMOTE_MODEL",
		"backends.remote.timeout_secs":   "BISTROBOOKS_BACKENDS_REMOTE_TIMEOUT_SECS",
		"backends.remote.temperature":    "BISTROBOOKS_BACKENDS_REMOTE_TEMPERATURE",
		"backends.remote.max_tokens":     "BISTROBOOKS_BACKENDS_REMOTE_MAX_TOKENS",
		"backends.remote.stop":           "BISTROBOOKS_BACKENDS_REMOTE_STOP",
		"pipeline.retry_bound":           "BISTROBOOKS_PIPELINE_RETRY_BOUND",
		"pipeline.max_concurrent":        "BISTROBOOKS_PIPELINE_MAX_CONCURRENT",
		"classify.fuzzy_threshold":       "BISTROBOOKS_CLASSIFY_FUZZY_THRESHOLD",
		"classify.locale":                "BISTROBOOKS_CLASSIFY_LOCALE",
		"classify.currency":              "BISTROBOOKS_CLASSIFY_CURRENCY",
		"settlement.delay_overrides":     "BISTROBOOKS_SETTLEMENT_DELAY_OVERRIDES",
		"settlement.sweep_interval_secs": "BISTROBOOKS_SETTLEMENT_SWEEP_INTERVAL_SECS",
		"review.rules":                   "BISTROBOOKS_REVIEW_RULES",
		"review.notify_email":            "BISTROBOOKS_REVIEW_NOTIFY_EMAIL",
		"email.provider":                 "BISTROBOOKS_EMAIL_PROVIDER",
		"email.region":                   "BISTROBOOKS_EMAIL_REGION",
		"email.from_address":             "BISTROBOOKS_EMAIL_FROM_ADDRESS",
		"email.from_name":                "BISTROBOOKS_EMAIL_FROM_NAME",
		"report.daily_cron":              "BISTROBOOKS_REPORT_DAILY_CRON",
		"prompts.file":                   "BISTROBOOKS_PROMPTS_FILE",
		"cors.allowed_origins":           "BISTROBOOKS_CORS_ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if BISTROBOOKS_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("BISTROBOOKS_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:         v.GetString("s3.region"),
		Bucket:         v.GetString("s3.bucket"),
		Endpoint:       v.GetString("s3.endpoint"),
		AccessKey:      v.GetString("s3.access_key"),
		SecretKey:      v.GetString("s3.secret_key"),
		MaxImageSizeMB: v.GetInt64("s3.max_image_size_mb"),
		PresignExpiry:  v.GetInt64("s3.presign_expiry"),
	}
	cfg.Backends = BackendsConfig{
		Text:   loadBackend(v, "backends.text"),
		Vision: loadBackend(v, "backends.vision"),
		Remote: loadBackend(v, "backends.remote"),
	}
	cfg.Pipeline = PipelineConfig{
		RetryBound:    v.GetInt("pipeline.retry_bound"),
		MaxConcurrent: v.GetInt("pipeline.max_concurrent"),
	}
	cfg.Classify = ClassifyConfig{
		FuzzyThreshold: v.GetFloat64("classify.fuzzy_threshold"),
		Locale:         v.GetString("classify.locale"),
		Currency:       v.GetString("classify.currency"),
	}
	cfg.Settlement = SettlementConfig{
		DelayOverrides:    v.GetString("settlement.delay_overrides"),
		SweepIntervalSecs: v.GetInt("settlement.sweep_interval_secs"),
	}
	cfg.Review = ReviewConfig{
		Rules:       v.GetString("review.rules"),
		NotifyEmail: v.GetString("review.notify_email"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
	}
	cfg.Report = ReportConfig{
		DailyCron: v.GetString("report.daily_cron"),
	}
	cfg.Prompts = PromptsConfig{
		File: v.GetString("prompts.file"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}

	return cfg, nil
}

func loadBackend(v *viper.Viper, prefix string) BackendConfig {
	return BackendConfig{
		Provider:    v.GetString(prefix + ".provider"),
		BaseURL:     v.GetString(prefix + ".base_url"),
		APIKey:      v.GetString(prefix + ".api_key"),
		Model:       v.GetString(prefix + ".model"),
		TimeoutSecs: v.GetInt(prefix + ".timeout_secs"),
		Temperature: v.GetFloat64(prefix + ".temperature"),
		MaxTokens:   v.GetInt(prefix + ".max_tokens"),
		Stop:        splitList(v.GetString(prefix + ".stop")),
	}
}

// splitList parses a comma-separated env value into a trimmed slice.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
