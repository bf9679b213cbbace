package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/api/handler"
	"github.com/jmerrifield20/threatlens/internal/app"
	"github.com/jmerrifield20/threatlens/internal/config"
)

// maxRequestBody bounds request bodies; threat models with many components
// are larger than typical API payloads.
const maxRequestBody = 2 << 20

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("threatd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := config.Load(os.Getenv("THREATLENS_CONFIG_DIR"))
	if err != nil {
		return err
	}
	if cfg.ConfigFile == "" {
		logger.Warn("no config file found, using defaults and env vars")
	} else {
		logger.Info("config loaded", zap.String("file", cfg.ConfigFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Wire up layers ────────────────────────────────────────────────────────
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	a.Service.SetMetricsRecord(handler.RecordAnalysis)
	a.Health.SetMetricsRecord(handler.RecordProbe)
	if a.Webhooks != nil {
		a.Webhooks.SetDeliveryRecorder(handler.RecordWebhookDelivery)
	}
	handler.SetPatternsGauge(a.Service.Matcher().Catalog().Len())
	a.Start(ctx, time.Minute)

	analysisHandler := handler.NewAnalysisHandler(a.Service, a.Tokens, logger)
	patternHandler := handler.NewPatternHandler(a.Service, a.Tokens, logger)
	ledgerHandler := handler.NewLedgerHandler(a.Ledger, logger)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
		c.Next()
	})

	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	// Liveness, readiness and metrics (public, no auth)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		status := http.StatusOK
		if !a.Health.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": status == http.StatusOK, "dependencies": a.Health.Snapshot()})
	})
	router.GET("/metrics", handler.MetricsHandler())

	// API v1
	v1 := router.Group("/api/v1")
	analysisHandler.Register(v1)
	patternHandler.Register(v1)
	ledgerHandler.Register(v1)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("threatd HTTP listening",
			zap.Int("port", cfg.Server.HTTPPort),
			zap.Bool("auth", cfg.AuthEnabled()),
			zap.String("ledger", cfg.Ledger.Backend),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP listen: %w", err)
	}
	logger.Info("shutting down threatd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("threatd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
