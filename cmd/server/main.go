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

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"famfinance/internal/app"
	"famfinance/internal/config"
	"famfinance/internal/handlers"
	"famfinance/internal/log"
	"famfinance/internal/metrics"
	"famfinance/internal/security"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger := app.NewLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	oauthProviders := map[string]handlers.OAuthProvider{
		"google": {
			Name:  "google",
			Label: "Google",
			Config: &oauth2.Config{
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
	}

	limiter := security.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	go limiter.Run(ctx, cfg.RateLimitWindow)
	go a.CleanupLoop(ctx, time.Hour)

	// Initialize handlers
	h := &handlers.Handlers{
		Middleware:  handlers.NewMiddleware(a.Auth, a.Access, a.CSRF, limiter, cfg.CronSecret, cfg.TrustProxy),
		Auth:        handlers.NewAuthHandler(a.Auth, a.CSRF, oauthProviders, cfg.OAuthRedirectBaseURL, cfg.AppBaseURL),
		Family:      handlers.NewFamilyHandler(a.Families, a.Auth),
		Budget:      handlers.NewBudgetHandler(a.Budgets),
		Reminder:    handlers.NewReminderHandler(a.Reminders),
		Transaction: handlers.NewTransactionHandler(a.Transactions),
		Bank:        handlers.NewBankHandler(a.Bank),
		Cron:        handlers.NewCronHandler(a.Reminders, a.Budgets, a.EmailQueue),
	}

	// Setup routes
	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h.Chain(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr, "base_url", cfg.AppBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
