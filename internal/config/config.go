// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	PublicURL       string        `yaml:"public_url"` // frontend origin used for checkout redirects
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustProxy honours X-Forwarded-For; enable only behind a load balancer.
	TrustProxy     bool     `yaml:"trust_proxy"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
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

type AIConfig struct {
	OpenAIKey       string  `yaml:"openai_key"`
	GeminiKey       string  `yaml:"gemini_key"`
	GeminiURL       string  `yaml:"gemini_url"`
	DefaultModel    string  `yaml:"default_model"`
	ConcurrentLimit int     `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	MaxPromptTokens int     `yaml:"max_prompt_tokens"`
	MinContentChars int     `yaml:"min_content_chars"`
	Temperature     float64 `yaml:"temperature"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessPath   string `yaml:"success_path"`
	CancelPath    string `yaml:"cancel_path"`
	// TierOverrides maps exact product names to a tier for products whose names
	// don't carry a tier word.
	TierOverrides map[string]string `yaml:"tier_overrides"`
}

type StorageConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UsePathStyle    bool          `yaml:"use_path_style"`
	PresignTTL      time.Duration `yaml:"presign_ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type QuotaConfig struct {
	StarterMonthlyLimit int           `yaml:"starter_monthly_limit"`
	SerializePerUser    bool          `yaml:"serialize_per_user"`
	LockTTL             time.Duration `yaml:"lock_ttl"`
}

type SchedulerConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// CheckoutTTL is how long a hosted checkout may stay pending before it is expired.
	CheckoutTTL time.Duration `yaml:"checkout_ttl"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Quota     QuotaConfig     `yaml:"quota"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads -config and -dev from the command line and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads the YAML file at path, applies .env and environment overrides, then defaults.
// A missing file is not an error when the environment supplies the required values.
func Load(path string, dev bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
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

	applyEnv(&cfg)
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if !dev && cfg.Stripe.SecretKey != "" && cfg.Stripe.WebhookSecret == "" {
		return nil, errors.New("stripe.webhook_secret is required when stripe is enabled")
	}
	for name, tier := range cfg.Stripe.TierOverrides {
		switch strings.ToLower(tier) {
		case "none", "starter", "pro", "agency", "enterprise":
		default:
			return nil, fmt.Errorf("stripe.tier_overrides[%q]: unknown tier %q", name, tier)
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Secrets are usually injected by the platform rather than committed to YAML.
func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&cfg.Database.URL, "DATABASE_URL")
	override(&cfg.Redis.URL, "REDIS_URL")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.AI.OpenAIKey, "OPENAI_API_KEY")
	override(&cfg.AI.GeminiKey, "GEMINI_API_KEY")
	override(&cfg.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	override(&cfg.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	override(&cfg.Storage.AccessKeyID, "S3_ACCESS_KEY_ID")
	override(&cfg.Storage.SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	override(&cfg.Storage.Bucket, "S3_BUCKET")
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
	override(&cfg.HTTP.PublicURL, "PUBLIC_URL")
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	cfg.HTTP.RequestTimeout = durationOr(cfg.HTTP.RequestTimeout, 15*time.Second)
	cfg.HTTP.GenerateTimeout = durationOr(cfg.HTTP.GenerateTimeout, 5*time.Minute)
	cfg.HTTP.ShutdownTimeout = durationOr(cfg.HTTP.ShutdownTimeout, 20*time.Second)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = durationOr(cfg.Redis.TTL, 5*time.Minute)
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 8
	}
	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gpt-4o"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 3000
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 6000
	}
	if cfg.AI.MinContentChars <= 0 {
		cfg.AI.MinContentChars = 500
	}
	if cfg.AI.Temperature <= 0 {
		cfg.AI.Temperature = 0.7
	}
	if cfg.Stripe.SuccessPath == "" {
		cfg.Stripe.SuccessPath = "/dashboard?checkout=success&session_id={CHECKOUT_SESSION_ID}"
	}
	if cfg.Stripe.CancelPath == "" {
		cfg.Stripe.CancelPath = "/pricing?checkout=cancelled"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "ap-southeast-2"
	}
	cfg.Storage.PresignTTL = durationOr(cfg.Storage.PresignTTL, 15*time.Minute)
	if cfg.RateLimit.Requests <= 0 {
		cfg.RateLimit.Requests = 5
	}
	cfg.RateLimit.Window = durationOr(cfg.RateLimit.Window, time.Minute)
	if cfg.Quota.StarterMonthlyLimit <= 0 {
		cfg.Quota.StarterMonthlyLimit = 3
	}
	cfg.Quota.LockTTL = durationOr(cfg.Quota.LockTTL, 2*time.Minute)
	cfg.Scheduler.SweepInterval = durationOr(cfg.Scheduler.SweepInterval, time.Hour)
	cfg.Scheduler.CheckoutTTL = durationOr(cfg.Scheduler.CheckoutTTL, 24*time.Hour)
	if cfg.Worker.Workers <= 0 {
		cfg.Worker.Workers = 4
	}
}

func durationOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
