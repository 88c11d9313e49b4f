package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port string `envconfig:"PORT" default:"8080"`
	Env  string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Redis
	RedisURL string `envconfig:"REDIS_URL" required:"true"`

	// JWT
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// LLM
	LLMProvider       string        `envconfig:"LLM_PROVIDER" default:"openai"`
	OpenAIAPIKey      string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel       string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel       string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	AnthropicAPIKey   string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel    string        `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-haiku-latest"`
	AIChatTimeout     time.Duration `envconfig:"AI_CHAT_TIMEOUT" default:"60s"`
	AIGenerateTimeout time.Duration `envconfig:"AI_GENERATE_TIMEOUT" default:"25s"`
	AIRatePerMinute   int           `envconfig:"AI_RATE_PER_MINUTE" default:"20"`

	// Storage
	StorageType     string `envconfig:"STORAGE_TYPE" default:"local"`
	StoragePath     string `envconfig:"STORAGE_PATH" default:"./uploads"`
	PublicBaseURL   string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3Region        string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3PublicBaseURL string `envconfig:"S3_PUBLIC_BASE_URL"`

	// SMTP
	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     string `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPass     string `envconfig:"SMTP_PASS"`
	SMTPFrom     string `envconfig:"SMTP_FROM" default:"noreply@taamsimcha.app"`
	EmailWorkers int    `envconfig:"EMAIL_WORKERS" default:"2"`
	PDFFontPath  string `envconfig:"PDF_FONT_PATH"`

	// Frontend
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross-field rules envconfig tags cannot express.
func (c *Config) Validate() error {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for provider %q", c.LLMProvider)
		}
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	switch c.StorageType {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}

	if c.AIChatTimeout <= 0 || c.AIGenerateTimeout <= 0 {
		return fmt.Errorf("AI timeouts must be positive")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
