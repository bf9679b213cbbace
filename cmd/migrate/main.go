// cmd/migrate applies the embedded *.sql migrations against the threatlens
// database. It records versions in a golang-migrate compatible
// schema_migrations table (bigint version + dirty flag) so the two tools are
// interchangeable.
//
// Usage:
//
//	go run ./cmd/migrate
//	THREATLENS_DATABASE_URL=postgres://... go run ./cmd/migrate
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jmerrifield20/threatlens/internal/config"
	"github.com/jmerrifield20/threatlens/migrations"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Error("migrate failed", zap.Error(err))
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load(os.Getenv("THREATLENS_CONFIG_DIR"))
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is not set (THREATLENS_DATABASE_URL)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("connected to postgres")

	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	files, err := fs.Glob(migrations.FS, "*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	applied := 0
	for _, f := range files {
		ver, err := versionFromFile(f)
		if err != nil {
			return fmt.Errorf("parse version from %s: %w", f, err)
		}

		var done bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1 AND dirty = false)`,
			ver,
		).Scan(&done); err != nil {
			return fmt.Errorf("check %s: %w", f, err)
		}
		if done {
			logger.Debug("migration already applied", zap.String("file", f))
			continue
		}

		sql, err := fs.ReadFile(migrations.FS, f)
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		// dirty=true first so an interrupted run is visible.
		if _, err := db.Exec(ctx,
			`INSERT INTO schema_migrations (version, dirty) VALUES ($1, true)
			 ON CONFLICT (version) DO UPDATE SET dirty = true`, ver,
		); err != nil {
			return fmt.Errorf("mark dirty %s: %w", f, err)
		}
		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}
		if _, err := db.Exec(ctx,
			`UPDATE schema_migrations SET dirty = false WHERE version = $1`, ver,
		); err != nil {
			return fmt.Errorf("mark clean %s: %w", f, err)
		}

		logger.Info("migration applied", zap.String("file", f), zap.Int64("version", ver))
		applied++
	}

	logger.Info("migrations complete", zap.Int("applied", applied), zap.Int("total", len(files)))
	return nil
}

// versionFromFile extracts the leading integer: "001_audit_ledger.sql" → 1.
func versionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("expected NNN_name.sql")
	}
	return strconv.ParseInt(prefix, 10, 64)
}
