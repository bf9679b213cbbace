package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/jmerrifield20/threatlens/internal/api/handler"
	"github.com/jmerrifield20/threatlens/internal/app"
	"github.com/jmerrifield20/threatlens/internal/config"
	"github.com/jmerrifield20/threatlens/internal/grpcapi"
	"github.com/jmerrifield20/threatlens/internal/identity"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("threatd-grpc exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ─────────────────────────────────────────────────────────
	cfg, err := config.Load(os.Getenv("THREATLENS_CONFIG_DIR"))
	if err != nil {
		return err
	}
	if cfg.ConfigFile == "" {
		logger.Warn("no config file found, using defaults and env vars")
	}
	grpcPort := cfg.GRPC.Port
	httpPort := cfg.GRPC.GatewayPort

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Analysis service ──────────────────────────────────────────────────────
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

	// ── gRPC server ───────────────────────────────────────────────────────────
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			identity.UnaryServerInterceptor(a.Tokens),
			grpcapi.LoggingInterceptor(logger),
		),
	)
	grpcapi.Register(grpcServer, grpcapi.NewServer(a.Service, logger))

	// Standard gRPC health service, following dependency readiness
	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
	go syncServingStatus(ctx, a, healthSvc)

	// gRPC reflection (for grpcurl and Evans)
	reflection.Register(grpcServer)

	// ── grpc-gateway HTTP/JSON reverse proxy ──────────────────────────────────
	conn, err := grpc.NewClient(
		fmt.Sprintf("localhost:%d", grpcPort),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("dial local gRPC server: %w", err)
	}
	defer conn.Close()

	gwMux, err := grpcapi.NewGateway(conn, logger)
	if err != nil {
		return fmt.Errorf("register grpc-gateway: %w", err)
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/", gwMux)
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"ok","service":"threatd-grpc"}`)
	})
	httpMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Start both servers ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 2)

	go func() {
		logger.Info("threatd gRPC listening",
			zap.Int("port", grpcPort),
			zap.Bool("auth", cfg.AuthEnabled()),
		)
		if err := grpcServer.Serve(grpcLis); err != nil {
			errCh <- fmt.Errorf("gRPC serve: %w", err)
		}
	}()

	go func() {
		logger.Info("threatd HTTP/JSON gateway listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP serve: %w", err)
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	logger.Info("shutting down threatd-grpc...")
	healthSvc.Shutdown()
	cancel() // stop probes and cache janitor

	grpcServer.GracefulStop()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP gateway shutdown", zap.Error(err))
	}

	logger.Info("threatd-grpc stopped")
	return nil
}

// syncServingStatus mirrors dependency readiness into the gRPC health
// service until ctx is cancelled.
func syncServingStatus(ctx context.Context, a *app.App, hs *health.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		st := grpc_health_v1.HealthCheckResponse_SERVING
		if !a.Health.Ready() {
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(grpcapi.ServiceName, st)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
