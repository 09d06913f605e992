package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-mailer/app/lock"
	"github.com/vibast-solutions/ms-go-mailer/app/queue"
	"github.com/vibast-solutions/ms-go-mailer/app/service"
	"github.com/vibast-solutions/ms-go-mailer/config"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume queued messages",
	Long:  "Consume queued messages from the Redis-backed job store.",
}

var (
	consumeDrain       bool
	consumeMetricsAddr string
)

// init registers consume subcommands.
func init() {
	consumeEmailsCmd.Flags().BoolVar(&consumeDrain, "drain", false, "process the jobs currently waiting and exit")
	consumeEmailsCmd.Flags().StringVar(&consumeMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	consumeCmd.AddCommand(consumeEmailsCmd)
	rootCmd.AddCommand(consumeCmd)
}

var consumeEmailsCmd = &cobra.Command{
	Use:   "emails [consumer_name]",
	Short: "Start the email queue consumer",
	Long:  "Start a worker that claims email jobs, sends them through the configured provider and retries failures with backoff.",
	Args:  cobra.ExactArgs(1),
	Run:   runConsumeEmails,
}

// runConsumeEmails starts the email queue consumer worker.
func runConsumeEmails(_ *cobra.Command, args []string) {
	consumerName := args[0]

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()
	log := a.log.WithField("consumer", consumerName)

	emailProvider, err := buildEmailProvider(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to build email provider: %v", err)
	}

	emailService := service.NewEmailService(emailProvider, lock.NewRedisLocker(a.rdb), log,
		service.WithLockPrefix(cfg.QueuePrefix),
		service.WithSendLockTTL(cfg.WorkerLockDuration),
	)
	consumer := queue.NewEmailConsumer(a.store, emailService, a.listeners(), consumerName, consumerConfig(cfg), log)

	if consumeMetricsAddr != "" {
		srv := &http.Server{Addr: consumeMetricsAddr, Handler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})}
		go func() {
			log.Infof("Serving metrics on %s", consumeMetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Metrics server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Received shutdown signal, stopping consumer...")
		cancel()
	}()

	if consumeDrain {
		n, err := consumer.Drain(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Errorf("Drain error after %d jobs: %v", n, err)
			return
		}
		log.Infof("Drained %d jobs", n)
		return
	}

	if err := consumer.Run(ctx); err != nil {
		log.Errorf("Consumer error: %v", err)
		return
	}

	log.Info("Consumer stopped")
}
