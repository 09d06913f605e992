package cmd

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vibast-solutions/ms-go-mailer/app/controller"
	grpcserver "github.com/vibast-solutions/ms-go-mailer/app/grpc"
	"github.com/vibast-solutions/ms-go-mailer/app/janitor"
	"github.com/vibast-solutions/ms-go-mailer/config"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and gRPC servers",
	Long:  "Start the HTTP (Echo) and gRPC servers that accept email send requests and queue administration calls.",
	Run:   runServe,
}

// init registers the serve command.
func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe wires dependencies and starts HTTP and gRPC servers.
func runServe(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	a, err := newApp(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()
	log := a.log

	var history controller.HistoryFinder
	if a.history != nil {
		history = a.history
	}
	emailController := controller.NewEmailController(a.queue, history)
	queueController := controller.NewQueueController(a.queue)

	opts := []janitor.Option{
		janitor.WithObserver(a.metrics),
		janitor.WithLockPrefix(cfg.QueuePrefix),
		janitor.WithListener(a.listeners()),
	}
	if a.repo != nil {
		opts = append(opts, janitor.WithHistory(a.repo, cfg.HistoryRetention))
	}
	jan := janitor.New(a.store, a.janitorLocker(), log, opts...)
	if err := jan.Start(cfg.JanitorSchedule); err != nil {
		log.Fatalf("Failed to start janitor: %v", err)
	}

	e := setupHTTPServer(emailController, queueController, a.registry, log)
	grpcServer, lis := setupGRPCServer(cfg, grpcserver.NewServer(a.queue), log)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
		log.Infof("Starting HTTP server on %s", httpAddr)
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	go func() {
		log.Infof("Starting gRPC server on %s", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("gRPC server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
	jan.Stop(shutdownCtx)

	log.Info("Server stopped")
}

// setupHTTPServer configures the Echo HTTP server and routes.
func setupHTTPServer(emailController *controller.EmailController, queueController *controller.QueueController, gatherer prometheus.Gatherer, log logrus.FieldLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			log.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}).Info("request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	email := e.Group("/email")
	email.POST("/send", emailController.Send)
	email.GET("/history/:id", emailController.History)

	q := e.Group("/queue")
	q.GET("/stats", queueController.Stats)
	q.POST("/pause", queueController.Pause)
	q.POST("/resume", queueController.Resume)
	q.DELETE("/failed", queueController.ClearFailed)
	q.GET("/failed", queueController.Failed)
	q.GET("/jobs/:id", queueController.Job)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return e
}

// setupGRPCServer builds the gRPC server and listener.
func setupGRPCServer(cfg *config.Config, emailServer *grpcserver.Server, log logrus.FieldLogger) (*grpc.Server, net.Listener) {
	grpcAddr := net.JoinHostPort(cfg.GRPCHost, cfg.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatalf("Failed to listen on gRPC port: %v", err)
	}

	grpcServer := grpc.NewServer()
	grpcserver.RegisterEmailQueueServer(grpcServer, emailServer)

	return grpcServer, lis
}
