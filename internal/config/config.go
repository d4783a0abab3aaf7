package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

type LogConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // json or console
}

type DBConfig struct {
	DBUser                 string `env:"DB_USER,required"`
	DBPassword             string `env:"DB_PASSWORD,required"`
	DBHost                 string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME,required"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
}

// ToolConfig is the subset operator commands need: they only touch the
// database.
type ToolConfig struct {
	LogConfig
	DBConfig
}

type Config struct {
	Port        string   `env:"PORT" envDefault:"8080"`
	APIPrefix   string   `env:"API_PREFIX" envDefault:"/api/v1"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	LogConfig
	DBConfig

	FirebaseProjectID string `env:"FIREBASE_PROJECT_ID,required"`
	CredentialsFile   string `env:"GOOGLE_APPLICATION_CREDENTIALS_FILE"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"gcs"` // gcs, minio or memory
	StorageBucket  string `env:"STORAGE_BUCKET" envDefault:"item-images"`
	MediaBaseURL   string `env:"MEDIA_BASE_URL" envDefault:"http://localhost:8080"` // memory backend only
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	GeminiAPIKey      string        `env:"GEMINI_API_KEY,required"`
	GeminiModel       string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	AITemperature     float32       `env:"AI_TEMPERATURE" envDefault:"0.7"`
	AIMaxOutputTokens int           `env:"AI_MAX_OUTPUT_TOKENS" envDefault:"2000"`
	AIMaxAttempts     int           `env:"AI_MAX_ATTEMPTS" envDefault:"3"`
	AIBackoffBase     time.Duration `env:"AI_BACKOFF_BASE" envDefault:"2s"`
	AIAttemptTimeout  time.Duration `env:"AI_ATTEMPT_TIMEOUT" envDefault:"90s"`

	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	MaxRequestBytes string        `env:"MAX_REQUEST_BYTES" envDefault:"100M"`
	SignedURLTTL    time.Duration `env:"SIGNED_URL_TTL" envDefault:"1h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadTool() (*ToolConfig, error) {
	var cfg ToolConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case "gcs", "memory":
	case "minio":
		if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("STORAGE_BACKEND=minio requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.AIMaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be >= 1, got %d", c.AIMaxAttempts)
	}
	if c.AITemperature < 0 || c.AITemperature > 2 {
		return fmt.Errorf("AI_TEMPERATURE must be within [0,2], got %v", c.AITemperature)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}
