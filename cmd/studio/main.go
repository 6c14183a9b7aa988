package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/grahamatarrowmedia/ai-doc-phone--app/cmd/studio/internal/handlers"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/cmd/studio/internal/middleware"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/blob"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/circuitbreaker"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/config"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/db"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/llm"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/research"
	"github.com/grahamatarrowmedia/ai-doc-phone--app/internal/tracing"
)

var version = "dev"

func main() {
	configPath, _ := config.ResolvePath()
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, level, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if _, err := os.Stat(configPath); err == nil {
		watcher, err := config.NewWatcher(configPath, logger)
		if err != nil {
			logger.Warn("Config hot reload disabled", zap.Error(err))
		} else {
			watcher.OnChange(config.LogLevelHandler(level, logger))
			if err := watcher.Start(); err != nil {
				logger.Warn("Config hot reload disabled", zap.Error(err))
			} else {
				defer watcher.Stop()
			}
		}
	}

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(ctx)
		}()
	}

	ctx := context.Background()

	// Initialize database
	dbClient, err := db.NewClient(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer dbClient.Close()

	// Redis backs rate limiting and idempotency; without it both are skipped
	var cache *circuitbreaker.RedisWrapper
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		cache = circuitbreaker.NewRedisWrapper(redisClient, cfg.Redis.CircuitBreaker, logger)
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis not reachable, rate limiting and idempotency fail open", zap.Error(err))
		}
	}

	gemini, err := llm.NewGeminiClient(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Fatal("Failed to create generative model client", zap.Error(err))
	}

	var store blob.Store
	if cfg.Storage.Bucket != "" {
		gcs, err := blob.NewGCSStore(ctx, cfg.Storage, logger)
		if err != nil {
			logger.Fatal("Failed to create storage client", zap.Error(err))
		}
		store = gcs
	} else {
		logger.Warn("No storage bucket configured, uploads disabled")
	}

	svc := research.NewService(dbClient, gemini, logger, research.WithTimeout(cfg.LLM.Timeout))

	// Create handlers
	catalog := handlers.NewCatalogHandler(dbClient, logger)
	researchHandler := handlers.NewResearchHandler(svc, logger)
	uploadHandler := handlers.NewUploadHandler(store, cfg.Server.MaxUploadBytes, logger)
	openapiHandler := handlers.NewOpenAPIHandler(version)

	checks := []handlers.Check{
		{Name: "database", Probe: dbClient.Ping},
		{Name: "llm", Probe: func(context.Context) error {
			if gemini.BreakerState() == circuitbreaker.StateOpen {
				return circuitbreaker.ErrCircuitBreakerOpen
			}
			return nil
		}},
	}
	if cache != nil {
		checks = append(checks, handlers.Check{Name: "redis", Optional: true, Probe: func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		}})
	}
	if store != nil {
		checks = append(checks, handlers.Check{Name: "storage", Optional: true, Probe: store.Check})
	}
	healthHandler := handlers.NewHealthHandler(version, logger, checks...).
		WithBreakers(circuitbreaker.GlobalMetricsCollector.States)

	// Create middlewares
	requestLogger := middleware.NewRequestLogger(logger).Middleware
	tracingMiddleware := middleware.NewTracingMiddleware(logger).Middleware
	validationMiddleware := middleware.NewValidationMiddleware(logger).Middleware
	rateLimiter := func(next http.Handler) http.Handler { return next }
	idempotency := func(next http.Handler) http.Handler { return next }
	if cache != nil {
		if cfg.RateLimit.Enabled {
			rateLimiter = middleware.NewRateLimiter(cache, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger).Middleware
		}
		// The lock has to outlive a full model call
		idempotency = middleware.NewIdempotencyMiddleware(cache, cfg.RateLimit.IdempotencyTTL, logger,
			middleware.WithLockTTL(cfg.LLM.Timeout+time.Minute),
		).Middleware
	}

	api := func(h http.HandlerFunc) http.Handler {
		return requestLogger(tracingMiddleware(validationMiddleware(h)))
	}
	// Research submissions call the paid model, so they are limited and replayable
	paid := func(h http.HandlerFunc) http.Handler {
		return requestLogger(tracingMiddleware(validationMiddleware(rateLimiter(idempotency(h)))))
	}

	const (
		project = "/api/projects/{project_id}"
		series  = project + "/series/{series_id}"
		episode = series + "/episodes/{episode_id}"
		report  = episode + "/research/{report_id}"
	)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /readiness", healthHandler.Readiness)
	mux.Handle("GET /api/health", api(healthHandler.APIHealth))
	mux.HandleFunc("GET /openapi.json", openapiHandler.ServeSpec)
	mux.HandleFunc("GET /openapi.yaml", openapiHandler.ServeYAML)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	// Projects
	mux.Handle("GET /api/projects", api(catalog.ListProjects))
	mux.Handle("POST /api/projects", api(catalog.CreateProject))
	mux.Handle("GET "+project, api(catalog.GetProject))
	mux.Handle("PUT "+project, api(catalog.UpdateProject))
	mux.Handle("DELETE "+project, api(catalog.DeleteProject))

	// Series
	mux.Handle("GET "+project+"/series", api(catalog.ListSeries))
	mux.Handle("POST "+project+"/series", api(catalog.CreateSeries))
	mux.Handle("GET "+series, api(catalog.GetSeries))
	mux.Handle("PUT "+series, api(catalog.UpdateSeries))
	mux.Handle("DELETE "+series, api(catalog.DeleteSeries))

	// Episodes
	mux.Handle("GET "+series+"/episodes", api(catalog.ListEpisodes))
	mux.Handle("POST "+series+"/episodes", api(catalog.CreateEpisode))
	mux.Handle("GET "+episode, api(catalog.GetEpisode))
	mux.Handle("PUT "+episode, api(catalog.UpdateEpisode))
	mux.Handle("DELETE "+episode, api(catalog.DeleteEpisode))

	// Research reports
	mux.Handle("GET "+episode+"/research", api(researchHandler.ListReports))
	mux.Handle("POST "+episode+"/research", paid(researchHandler.CreateReport))
	mux.Handle("GET "+report, api(researchHandler.GetReport))
	mux.Handle("PUT "+report, api(researchHandler.UpdateReport))
	mux.Handle("POST "+report+"/complete", api(researchHandler.CompleteReport))
	mux.Handle("POST "+report+"/link-asset", api(researchHandler.LinkAsset))

	// Knowledge base
	mux.Handle("GET "+episode+"/knowledge-base", api(researchHandler.ListKnowledgeBase))
	mux.Handle("POST "+episode+"/knowledge-base", api(researchHandler.AddKnowledgeEntry))

	mux.Handle("POST /api/upload", api(uploadHandler.Upload))

	// Frontend
	mux.Handle("/", handlers.NewSPAHandler(cfg.Static.Dir))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      corsMiddleware(cfg.Server.CORSOrigins, mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("AiM Studio starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("model", gemini.Model()),
			zap.String("database", cfg.Database.Driver),
			zap.Bool("redis", cache != nil),
			zap.Bool("uploads", store != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("AiM Studio shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("AiM Studio stopped")
}

// corsMiddleware adds CORS headers for the configured frontend origins.
// "*" allows any origin.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowAny := slices.Contains(origins, "*")
	allowedHeaders := "Content-Type, Authorization, Idempotency-Key, traceparent, tracestate, X-Request-ID"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAny || slices.Contains(origins, origin)) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
			w.Header().Set("Access-Control-Expose-Headers", strings.Join([]string{
				"X-Trace-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "X-Idempotency-Cached",
			}, ", "))
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			// Handle preflight - headers already set above
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
