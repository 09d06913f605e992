package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/vibast-solutions/ms-go-mailer/app/lock"
	"github.com/vibast-solutions/ms-go-mailer/app/metrics"
	"github.com/vibast-solutions/ms-go-mailer/app/preparer"
	"github.com/vibast-solutions/ms-go-mailer/app/provider"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"github.com/vibast-solutions/ms-go-mailer/app/repository"
	"github.com/vibast-solutions/ms-go-mailer/app/service"
	"github.com/vibast-solutions/ms-go-mailer/config"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	rdb      *redis.Client
	db       *sql.DB
	store    *queue.RedisStore
	queue    *queue.EmailQueue
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	history  *service.HistoryRecorder
	repo     *repository.EmailHistoryRepository
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// newApp connects to Redis and, when MYSQL_DSN is set, to MySQL.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: newLogger(cfg)}

	a.rdb = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if cfg.MySQLDSN != "" {
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			_ = a.rdb.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db.SetMaxOpenConns(cfg.MySQLMaxOpen)
		db.SetMaxIdleConns(cfg.MySQLMaxIdle)
		db.SetConnMaxLifetime(cfg.MySQLMaxLife)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			_ = a.rdb.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		a.db = db
		a.repo = repository.NewEmailHistoryRepository(db)
		if err := a.repo.EnsureSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to prepare email history table: %w", err)
		}
		a.history = service.NewHistoryRecorder(a.repo, a.log)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	a.store = queue.NewRedisStore(a.rdb, queue.Topic, queue.WithPrefix(cfg.QueuePrefix))
	a.queue = queue.NewEmailQueue(a.store, jobDefaults(cfg), a.listeners())
	if err := a.queue.Init(ctx); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *app) listeners() queue.Listeners {
	listeners := queue.Listeners{queue.NewLogListener(a.log), a.metrics}
	if a.history != nil {
		listeners = append(listeners, a.history)
	}
	return listeners
}

// Close releases Redis and MySQL connections.
func (a *app) Close() {
	if a.queue != nil {
		_ = a.queue.Close()
	} else if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// janitorLocker picks the leader lock backend from JANITOR_LOCK.
func (a *app) janitorLocker() lock.Locker {
	if strings.EqualFold(a.cfg.JanitorLock, "mysql") && a.db != nil {
		return lock.NewMySQLLocker(a.db, 0)
	}
	return lock.NewRedisLocker(a.rdb)
}

func jobDefaults(cfg *config.Config) queue.JobOptions {
	defaults := queue.DefaultJobOptions()
	defaults.Attempts = cfg.EmailAttempts
	defaults.Backoff = queue.Backoff{
		Type:  queue.BackoffType(strings.ToLower(cfg.EmailBackoffType)),
		Delay: cfg.EmailBackoffDelay,
	}
	defaults.RetainCompleted = cfg.EmailRetainCompleted
	defaults.RetainFailed = cfg.EmailRetainFailed
	return defaults
}

func consumerConfig(cfg *config.Config) queue.ConsumerConfig {
	c := queue.DefaultConsumerConfig()
	c.Concurrency = cfg.WorkerConcurrency
	c.PollInterval = cfg.WorkerPollInterval
	c.LockDuration = cfg.WorkerLockDuration
	c.StalledInterval = cfg.WorkerStalledInterval
	c.RateLimit = cfg.WorkerRateLimit
	c.JobTimeout = cfg.WorkerJobTimeout
	return c
}

func buildEmailProvider(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (provider.EmailProvider, error) {
	emailPreparer := preparer.NewChain(preparer.NewRawPreparer(cfg.EmailFrom))

	switch strings.ToLower(cfg.EmailProvider) {
	case "", "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		return provider.NewSESProvider(awsCfg, cfg.EmailFrom, emailPreparer), nil
	case "smtp":
		return provider.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom, emailPreparer), nil
	case "mailgun":
		return provider.NewMailgunProvider(cfg.MailgunDomain, cfg.MailgunAPIKey, cfg.MailgunAPIBase, cfg.EmailFrom), nil
	case "noop":
		return provider.NewNoopProvider(log), nil
	default:
		return nil, fmt.Errorf("unsupported EMAIL_PROVIDER: %s", cfg.EmailProvider)
	}
}
