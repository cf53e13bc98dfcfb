package storage

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/config"
	"taskboard/platform"
	"taskboard/records"
)

// Backends accepted in STORAGE_BACKEND.
const (
	BackendPlatform = "platform"
	BackendTable    = "table"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// OpenFromEnv opens the record backend named by STORAGE_BACKEND. Postgres
// schemas are migrated on open.
func OpenFromEnv(ctx context.Context) (records.Store, error) {
	switch backend := config.String("STORAGE_BACKEND", BackendPlatform); backend {
	case BackendPlatform:
		cfg, err := config.Require("PLATFORM_URL", "PROJECT_ID", "PUBLIC_KEY")
		if err != nil {
			return nil, err
		}
		timeout, err := config.Duration("PLATFORM_TIMEOUT", 30*time.Second)
		if err != nil {
			return nil, err
		}
		return platform.New(platform.Options{
			BaseURL:   cfg["PLATFORM_URL"],
			ProjectID: cfg["PROJECT_ID"],
			PublicKey: cfg["PUBLIC_KEY"],
			Timeout:   timeout,
		})
	case BackendTable:
		cfg, err := config.Require("STORAGE_CONNECTION_STRING", "RECORDS_TABLE")
		if err != nil {
			return nil, err
		}
		return NewTableStore(cfg["STORAGE_CONNECTION_STRING"], cfg["RECORDS_TABLE"])
	case BackendPostgres:
		cfg, err := config.Require("DATABASE_URL")
		if err != nil {
			return nil, err
		}
		pool, err := OpenPostgres(ctx, cfg["DATABASE_URL"])
		if err != nil {
			return nil, err
		}
		pg := NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, nil
	case BackendMemory:
		log.Warn("using in-memory record store; data is lost on restart")
		return records.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}
}
