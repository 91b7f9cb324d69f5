package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/consult-api/config"
	"github.com/jwalitptl/consult-api/internal/email"
	"github.com/jwalitptl/consult-api/internal/handler/health"
	"github.com/jwalitptl/consult-api/internal/repository/cache"
	"github.com/jwalitptl/consult-api/internal/repository/postgres"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/messaging/redis"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

func setupHealthCheck(port int, checks map[string]health.Pinger, registry *prometheus.Registry) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	health.NewHandler(checks).RegisterRoutes(engine)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("worker failed")
	}
}

func run() error {
	_ = godotenv.Load()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// Initialize logger
	l := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"worker_id": workerID()})
	logger.SetGlobal(l)

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database, l)
	if err != nil {
		return err
	}
	defer db.Close()

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), l)
	if err != nil {
		return fmt.Errorf("failed to create Redis broker: %w", err)
	}
	defer broker.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("consult", registry)

	// Initialize repositories
	outboxRepo := postgres.NewOutboxRepository(db)
	doctorRepo := cache.NewDoctorRepository(
		postgres.NewDoctorRepository(db),
		cfg.Cache.DoctorTTL,
		cfg.Cache.CleanupInterval,
	)
	patientRepo := postgres.NewPatientRepository(db)

	processor, err := worker.NewOutboxProcessor(outboxRepo, broker, cfg.Outbox.ToWorkerConfig(), l, m)
	if err != nil {
		return err
	}
	cleanup := worker.NewOutboxCleanupWorker(outboxRepo, cfg.Outbox.RetentionDays, cfg.Outbox.CleanupEvery, l)

	emailSvc := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}, l)
	notifier := notification.NewService(broker, cfg.Outbox.Channel, doctorRepo, patientRepo, emailSvc, m, l, loc)

	// Setup health check endpoints
	healthSrv := setupHealthCheck(cfg.Server.HealthPort, map[string]health.Pinger{
		"database": db,
		"redis":    health.PingFunc(broker.Ping),
	}, registry)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := notifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error(err, "notification dispatcher stopped")
			stop()
		}
	}()

	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error(err, "health check server failed")
			stop()
		}
	}()

	l.Info("worker started", "health_port", cfg.Server.HealthPort)
	<-ctx.Done()
	l.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		l.Error(err, "health server shutdown failed")
	}

	wg.Wait()
	return nil
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
}
