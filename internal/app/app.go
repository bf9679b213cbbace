// Package app assembles the analysis service and its backing dependencies
// from configuration. Both server binaries start from Build.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/analysis"
	"github.com/jmerrifield20/threatlens/internal/auditlog"
	"github.com/jmerrifield20/threatlens/internal/config"
	"github.com/jmerrifield20/threatlens/internal/dread"
	"github.com/jmerrifield20/threatlens/internal/events"
	"github.com/jmerrifield20/threatlens/internal/health"
	"github.com/jmerrifield20/threatlens/internal/identity"
	"github.com/jmerrifield20/threatlens/internal/mitigation"
	"github.com/jmerrifield20/threatlens/internal/pattern"
)

// App holds the wired service graph.
type App struct {
	Service   *analysis.Service
	Ledger    auditlog.Ledger
	Publisher events.Publisher
	Webhooks  *events.WebhookPublisher // nil = no webhooks
	Tokens    *identity.TokenIssuer // nil = auth disabled
	Health    *health.Checker

	db *pgxpool.Pool // nil = memory ledger
}

// Build wires every component named by cfg. The caller must Close the
// returned App.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}

	// ── Pattern catalog ───────────────────────────────────────────────────────
	catalog := pattern.DefaultCatalog()
	if path := cfg.Patterns.ExtraFile; path != "" {
		extra, err := pattern.LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, p := range extra {
			if err := catalog.Add(p); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
		logger.Info("extra patterns loaded", zap.String("file", path), zap.Int("count", len(extra)))
	}

	svc := analysis.NewService(
		pattern.NewMatcher(catalog, logger),
		dread.NewCalculator(logger),
		mitigation.NewEngine(mitigation.BuiltinRules(), logger),
		logger,
	)
	a.Service = svc

	probes := []health.Probe{}

	// ── Audit ledger ──────────────────────────────────────────────────────────
	switch cfg.Ledger.Backend {
	case "postgres":
		db, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		a.db = db
		logger.Info("connected to postgres")

		ledger, err := auditlog.NewPostgres(ctx, db, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Ledger = ledger
		probes = append(probes, health.ProbeFunc("postgres", db.Ping))
	default:
		a.Ledger = auditlog.NewMemory()
	}
	svc.SetLedger(a.Ledger)
	probes = append(probes, health.ProbeFunc("ledger", func(ctx context.Context) error {
		_, err := a.Ledger.Len(ctx)
		return err
	}))

	if err := a.Ledger.Verify(ctx); err != nil {
		logger.Warn("audit ledger integrity check FAILED", zap.Error(err))
	} else {
		n, _ := a.Ledger.Len(ctx)
		head, _ := a.Ledger.Head(ctx)
		logger.Info("audit ledger verified",
			zap.String("backend", cfg.Ledger.Backend),
			zap.Int("entries", n),
			zap.String("head", head),
		)
	}

	// ── Events ────────────────────────────────────────────────────────────────
	var sinks events.Fanout
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		sinks = append(sinks, kp)
		probes = append(probes, health.ProbeFunc("kafka", kp.Ping))
		logger.Info("kafka publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	if len(cfg.Webhooks.URLs) > 0 {
		a.Webhooks = events.NewWebhookPublisher(cfg.Webhooks.URLs, cfg.Webhooks.Secret, logger)
		sinks = append(sinks, a.Webhooks)
		logger.Info("webhook delivery enabled",
			zap.Int("urls", len(cfg.Webhooks.URLs)),
			zap.Bool("signed", cfg.Webhooks.Secret != ""),
		)
	}
	switch len(sinks) {
	case 0:
		a.Publisher = events.NewNoopPublisher(logger)
	case 1:
		a.Publisher = sinks[0]
	default:
		a.Publisher = sinks
	}
	svc.SetPublisher(a.Publisher)

	// ── Result cache ──────────────────────────────────────────────────────────
	if cfg.Cache.TTL > 0 {
		svc.SetCacheTTL(cfg.Cache.TTL)
		logger.Info("result cache enabled", zap.Duration("ttl", cfg.Cache.TTL))
	}

	// ── Auth ──────────────────────────────────────────────────────────────────
	if cfg.AuthEnabled() {
		tokens, err := identity.NewTokenIssuer([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("token issuer: %w", err)
		}
		a.Tokens = tokens
		logger.Info("bearer token auth enabled", zap.String("issuer", cfg.Auth.Issuer))
	} else {
		logger.Warn("auth.secret not set: pattern changes are unauthenticated")
	}

	a.Health = health.New(health.Config{}, logger, probes...)
	return a, nil
}

// Start runs background work (readiness probes, cache eviction) until ctx
// is cancelled.
func (a *App) Start(ctx context.Context, cacheSweep time.Duration) {
	go a.Health.Start(ctx)
	if cacheSweep > 0 {
		go a.Service.RunCacheJanitor(ctx, cacheSweep)
	}
}

// Close flushes the publisher and releases the database pool.
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	return errors.Join(errs...)
}
