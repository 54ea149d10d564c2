package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/behavioral-quality/aimsreport/internal/aims"
	"github.com/behavioral-quality/aimsreport/internal/shared/config"
	"github.com/behavioral-quality/aimsreport/internal/shared/metrics"
	secmiddleware "github.com/behavioral-quality/aimsreport/internal/shared/middleware"
)

const version = "0.1.0"

// App holds all application dependencies
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Service *aims.Service
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	source, closeSource, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	rules, err := aims.NewRules(cfg.Report)
	if err != nil {
		return err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Service: aims.NewService(source, rules, logger),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("env", cfg.Server.Env).
			Str("addr", srv.Addr).
			Str("source", source.Name()).
			Str("default_measurement_date", rules.DefaultMeasurementDate.String()).
			Msg("AIMS report server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newRouter(app *App) chi.Router {
	cfg := app.Config.Server

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(app.Logger))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)

	cors := secmiddleware.DefaultCORSConfig()
	if len(cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSOrigins
	}
	r.Use(secmiddleware.CORS(cors))

	// Health checks
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRPS > 0 {
			r.Use(secmiddleware.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
		}
		r.Mount("/reports", aims.NewHandler(app.Service).Routes())
	})

	return r
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "AIMS Screening Compliance Report",
		"version": version,
		"report":  "/api/v1/reports/aims",
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		ready := true
		if err := app.Service.Health(r.Context()); err != nil {
			checks[app.Service.SourceName()] = "not ready: " + err.Error()
			ready = false
		} else {
			checks[app.Service.SourceName()] = "ready"
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[ready],
			"checks": checks,
		})
	}
}
