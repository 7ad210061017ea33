package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"dashgate/internal/api"
	"dashgate/internal/auth/oidc"
	"dashgate/internal/config"
	"dashgate/internal/embed"
	"dashgate/internal/gate"
	"dashgate/internal/observability"
	"dashgate/internal/profile"
	"dashgate/internal/routes"
)

func main() {
	logger := observability.NewLogger(observability.ConfigFromEnv())

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address (host:port)")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	sentryEnabled := false
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      envOr("SENTRY_ENVIRONMENT", "production"),
			Release:          envOr("APP_VERSION", "dev"),
			TracesSampleRate: 1.0,
			AttachStacktrace: true,
		})
		if err != nil {
			logger.Warn("sentry initialization failed", "error", err)
		} else {
			logger.Info("sentry initialized",
				"environment", envOr("SENTRY_ENVIRONMENT", "production"),
				"release", envOr("APP_VERSION", "dev"),
			)
			sentryEnabled = true
		}
	}

	metricsCfg := observability.MetricsConfigFromEnv()
	var metrics *observability.Metrics
	if metricsCfg.Enabled {
		metrics = observability.NewMetrics(metricsCfg)
		logger.Info("metrics enabled", "namespace", metricsCfg.Namespace)
	} else {
		logger.Info("metrics disabled")
	}

	table := routes.DefaultTable()
	if cfg.RouteTableFile != "" {
		table, err = routes.LoadFile(cfg.RouteTableFile)
		if err != nil {
			logger.Error("failed to load route table", "path", cfg.RouteTableFile, "error", err)
			os.Exit(1)
		}
		logger.Info("route table loaded", "path", cfg.RouteTableFile)
	}
	idx, err := routes.BuildIndex(table)
	if err != nil {
		logger.Error("invalid route table", "error", err)
		os.Exit(1)
	}
	logger.Info("route table indexed", "routes", idx.Len())

	ctx := context.Background()
	provider, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		IssuerURL:    cfg.OIDC.IssuerURL,
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURL:  cfg.OIDC.RedirectURL,
		Audience:     cfg.OIDC.Audience,
	})
	if err != nil {
		logger.Error("oidc discovery failed", "issuer", cfg.OIDC.IssuerURL, "error", err)
		os.Exit(1)
	}

	resolver := profile.NewResolver(profile.NewClient(cfg.MgmtBaseURL, nil), logger, metrics)

	var broker *embed.Broker
	if cfg.Embed.Enabled() {
		broker = embed.New(cfg.Embed.BaseURL, cfg.Embed.APIKey, nil, logger, metrics)
		logger.Info("embed broker configured", "upstream", cfg.Embed.BaseURL)
	} else {
		logger.Info("embed broker disabled (set DASHGATE_EMBED_BASE_URL and DASHGATE_EMBED_API_KEY)")
	}

	sessionStore := selectSessionStore(logger, cfg)
	auditLogger := selectAuditLogger(logger, cfg)

	rateCfg := api.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rateCfg.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rateCfg.Burst = cfg.RateLimitBurst
	}
	if rateCfg.Enabled() {
		logger.Info("rate limiting configured",
			"requests_per_second", rateCfg.RequestsPerSecond,
			"burst", rateCfg.Burst,
		)
	} else {
		logger.Info("rate limiting disabled")
	}

	mux := http.NewServeMux()
	srv := api.NewServer(mux, api.ServerConfig{
		Provider:      provider,
		Sessions:      sessionStore,
		Resolver:      resolver,
		Gate:          gate.New(idx, logger, metrics),
		Table:         table,
		Broker:        broker,
		EncryptionKey: cfg.EncryptionKey,
		CookieSecure:  cfg.CookieSecure,
		SessionTTL:    cfg.SessionTTL,
	}, logger, metrics, auditLogger)
	srv.RegisterRoutes()

	// Background session cleanup every 15 minutes.
	go func() {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			n, err := sessionStore.Cleanup(context.Background())
			if err != nil {
				logger.Warn("session cleanup error", "error", err)
			} else if n > 0 {
				logger.Info("cleaned up expired sessions", "count", n)
			}
		}
	}()

	// Order: metrics (outermost) -> requestID -> logging -> rateLimiting
	handler := api.ApplyMiddlewares(
		mux,
		observability.MetricsMiddleware(metrics),
		api.RequestIDMiddleware(),
		api.LoggingMiddleware(logger.Slog()),
		api.RateLimitMiddleware(rateCfg, metrics, logger.Slog()),
	)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("dashgate listening", "addr", cfg.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	}

	logger.Info("shutting down server", "timeout", "15s")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	} else {
		logger.Info("server stopped gracefully")
	}

	// Let fire-and-forget metadata patches finish before exiting.
	resolver.Flush()

	closeStores(logger, sessionStore, auditLogger)

	if sentryEnabled {
		logger.Info("flushing sentry events", "deadline", "2s")
		sentry.Flush(2 * time.Second)
	}

	logger.Info("shutdown complete")
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func closeStores(logger observability.Logger, stores ...any) {
	for _, s := range stores {
		c, ok := s.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}
}
