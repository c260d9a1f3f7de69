// Storefront - local cart core harness.
// Serves one buyer's reconciled cart to a UI shell (REST) or an agent (MCP).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/ledger"
	"storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/storeapi"
	"storefront/internal/storefront"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	logger := initLogger()

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("store_url", cfg.Store.StoreURL),
		slog.String("domestic_country", cfg.DomesticCountry),
		slog.Bool("persistent_ledger", cfg.LedgerPath != ""),
	)

	backend, err := storeapi.New(storeapi.Config{
		Config: cfg.BuildAdapterConfig(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("creating store api client: %w", err)
	}

	var store ledger.Store
	if cfg.LedgerPath != "" {
		fileStore, err := ledger.NewFileStore(cfg.LedgerPath)
		if err != nil {
			return fmt.Errorf("opening ledger store: %w", err)
		}
		logger.Info("ledger persisted", slog.String("path", fileStore.Path()))
		store = fileStore
	}

	notifications := notify.NewRecorder(0, notify.Log{Logger: logger})

	session, err := storefront.NewSession(ctx, storefront.Config{
		Backend:                backend,
		Store:                  store,
		Notifier:               notifications,
		Logger:                 logger,
		PurchaseLimit:          cfg.PurchaseLimit,
		CustomizationSurcharge: cfg.CustomizationSurcharge,
		DomesticCountry:        cfg.DomesticCountry,
		AddressDebounce:        cfg.AddressDebounce,
		CartTTL:                cfg.CartTTL,
		CouponListTTL:          cfg.CouponListTTL,
		AppConfigTTL:           cfg.AppConfigTTL,
		Fallback:               cfg.Fallback,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	defer session.Close()

	h := handler.New(session, notifications, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
