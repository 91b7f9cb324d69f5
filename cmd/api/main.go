package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/consult-api/config"
	appointmentHandler "github.com/jwalitptl/consult-api/internal/handler/appointment"
	doctorHandler "github.com/jwalitptl/consult-api/internal/handler/doctor"
	"github.com/jwalitptl/consult-api/internal/handler/health"
	promHandler "github.com/jwalitptl/consult-api/internal/handler/prometheus"
	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/internal/repository/cache"
	"github.com/jwalitptl/consult-api/internal/repository/postgres"
	"github.com/jwalitptl/consult-api/internal/router"
	"github.com/jwalitptl/consult-api/internal/service/appointment"
	"github.com/jwalitptl/consult-api/internal/service/meeting"
	"github.com/jwalitptl/consult-api/internal/service/schedule"
	"github.com/jwalitptl/consult-api/migrations"
	"github.com/jwalitptl/consult-api/pkg/auth"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

const metricsNamespace = "consult"

func main() {
	rootCmd := &cobra.Command{
		Use:          "consult-api",
		Short:        "Appointment booking API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := postgres.NewDB(ctx, cfg.Database, log)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.NewMigrator(db, migrations.FS).Up(ctx)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "count", applied)
			return nil
		},
	}
}

// tokenCmd mints a patient token for local testing against the API.
func tokenCmd() *cobra.Command {
	var (
		patientID int64
		email     string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a patient access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if patientID <= 0 {
				return fmt.Errorf("--patient-id is required")
			}
			cfg, _, err := bootstrap()
			if err != nil {
				return err
			}
			jwtSvc, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
			if err != nil {
				return err
			}
			token, err := jwtSvc.GenerateAccessToken(patientID, email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&patientID, "patient-id", 0, "patient id to embed")
	cmd.Flags().StringVar(&email, "email", "", "patient email to embed")
	return cmd
}

func bootstrap() (*config.Config, *logger.Logger, error) {
	// .env is optional; real environments set variables directly
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	logger.SetGlobal(log)
	return cfg, log, nil
}

func runServer() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return err
	}

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metricsNamespace, registry)

	// Initialize repositories
	appointmentRepo := postgres.NewAppointmentRepository(db)
	doctorRepo := cache.NewDoctorRepository(
		postgres.NewDoctorRepository(db),
		cfg.Cache.DoctorTTL,
		cfg.Cache.CleanupInterval,
	)

	// Initialize services
	provider := meeting.NewProvider(ctx, meeting.Config{
		CredentialsFile: cfg.Meeting.CredentialsFile,
		Google: meeting.GoogleConfig{
			CalendarID:        cfg.Meeting.CalendarID,
			TimeZone:          cfg.Scheduling.TimeZone,
			Timeout:           cfg.Meeting.Timeout,
			RequestsPerSecond: cfg.Meeting.RequestsPerSec,
			Burst:             cfg.Meeting.Burst,
			BreakerFailures:   cfg.Meeting.BreakerFailures,
			BreakerTimeout:    cfg.Meeting.BreakerTimeout,
		},
	}, log, m)

	appointmentSvc := appointment.NewService(
		appointmentRepo,
		doctorRepo,
		provider,
		appointment.Config{DefaultDuration: cfg.Scheduling.DefaultDuration},
		m,
		log,
	)

	template, err := schedule.NewFixedTemplate(cfg.Scheduling.SlotTemplate)
	if err != nil {
		return err
	}
	scheduleSvc := schedule.NewService(appointmentRepo, doctorRepo, template, loc)

	jwtSvc, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
	if err != nil {
		return err
	}

	if err := middleware.RegisterValidators(); err != nil {
		return fmt.Errorf("failed to register validators: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		health.NewHandler(map[string]health.Pinger{"database": db}),
		promHandler.New(registry, metricsNamespace),
		router.RouterConfig{
			RateLimitEnabled: cfg.RateLimit.Enabled,
			RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:        cfg.RateLimit.Burst,
			RequestTimeout:   cfg.Server.RequestTimeout,
			CORSConfig: middleware.CORSConfig{
				AllowOrigins:     middleware.ParseOrigins(cfg.CORS.AllowedOrigins),
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           cfg.CORS.MaxAge,
			},
		},
		appointmentHandler.NewHandler(appointmentSvc),
		doctorHandler.NewHandler(scheduleSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}
