package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	minLockDuration = 500 * time.Millisecond
	maxBackoffDelay = 24 * time.Hour
)

type Config struct {
	HTTPHost string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`
	GRPCHost string `env:"GRPC_HOST" envDefault:"0.0.0.0"`
	GRPCPort string `env:"GRPC_PORT" envDefault:"9090"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	QueuePrefix   string `env:"QUEUE_PREFIX" envDefault:"mailer"`

	EmailAttempts        int           `env:"EMAIL_ATTEMPTS" envDefault:"3"`
	EmailBackoffType     string        `env:"EMAIL_BACKOFF_TYPE" envDefault:"exponential"`
	EmailBackoffDelay    time.Duration `env:"EMAIL_BACKOFF_DELAY" envDefault:"2s"`
	EmailRetainCompleted int           `env:"EMAIL_RETAIN_COMPLETED" envDefault:"100"`
	EmailRetainFailed    int           `env:"EMAIL_RETAIN_FAILED" envDefault:"500"`

	WorkerConcurrency     int           `env:"WORKER_CONCURRENCY" envDefault:"1"`
	WorkerPollInterval    time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	WorkerLockDuration    time.Duration `env:"WORKER_LOCK_DURATION" envDefault:"30s"`
	WorkerStalledInterval time.Duration `env:"WORKER_STALLED_INTERVAL" envDefault:"30s"`
	WorkerRateLimit       float64       `env:"WORKER_RATE_LIMIT" envDefault:"0"`
	WorkerJobTimeout      time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"1m"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"ses"`
	EmailFrom     string `env:"EMAIL_FROM"`
	AWSRegion     string `env:"AWS_REGION" envDefault:"us-east-1"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`

	MailgunDomain  string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey  string `env:"MAILGUN_API_KEY"`
	MailgunAPIBase string `env:"MAILGUN_API_BASE"`

	// MySQLDSN enables delivery history and the MySQL janitor lock. Empty
	// runs the service on Redis alone.
	MySQLDSN     string        `env:"MYSQL_DSN"`
	MySQLMaxOpen int           `env:"MYSQL_MAX_OPEN" envDefault:"10"`
	MySQLMaxIdle int           `env:"MYSQL_MAX_IDLE" envDefault:"5"`
	MySQLMaxLife time.Duration `env:"MYSQL_MAX_LIFE" envDefault:"30m"`

	JanitorSchedule  string        `env:"JANITOR_SCHEDULE" envDefault:"@every 1m"`
	JanitorLock      string        `env:"JANITOR_LOCK" envDefault:"redis"`
	HistoryRetention time.Duration `env:"HISTORY_RETENTION" envDefault:"720h"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load reads a .env file when present and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.EmailProvider) {
	case "ses", "smtp", "mailgun", "noop":
	default:
		return fmt.Errorf("unsupported EMAIL_PROVIDER: %s", c.EmailProvider)
	}
	switch strings.ToLower(c.EmailBackoffType) {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("unsupported EMAIL_BACKOFF_TYPE: %s", c.EmailBackoffType)
	}
	switch strings.ToLower(c.JanitorLock) {
	case "redis":
	case "mysql":
		if c.MySQLDSN == "" {
			return fmt.Errorf("JANITOR_LOCK=mysql requires MYSQL_DSN")
		}
	default:
		return fmt.Errorf("unsupported JANITOR_LOCK: %s", c.JanitorLock)
	}
	if c.EmailAttempts < 1 {
		return fmt.Errorf("EMAIL_ATTEMPTS must be at least 1")
	}
	if c.WorkerLockDuration < minLockDuration {
		return fmt.Errorf("WORKER_LOCK_DURATION must be at least %s", minLockDuration)
	}
	if c.EmailBackoffDelay > maxBackoffDelay {
		return fmt.Errorf("EMAIL_BACKOFF_DELAY must not exceed %s", maxBackoffDelay)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}
	if strings.ToLower(c.EmailProvider) != "noop" && c.EmailFrom == "" {
		return fmt.Errorf("EMAIL_FROM is required for provider %s", c.EmailProvider)
	}
	return nil
}
