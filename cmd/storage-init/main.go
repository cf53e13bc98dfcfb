package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"

	"taskboard/config"
	"taskboard/storage"
)

func main() {
	if err := config.LoadEnv(os.Getenv("ENV_FILE")); err != nil {
		log.Fatalf("env: %v", err)
	}
	config.SetupLogging()
	log.Info("storage init starting")

	ctx := context.Background()

	if connStr := config.String("STORAGE_CONNECTION_STRING", ""); connStr != "" {
		if err := storage.CreateTables(ctx, connStr, []string{
			os.Getenv("RECORDS_TABLE"),
		}); err != nil {
			log.Fatalf("create tables: %v", err)
		}
		if err := storage.CreateQueues(ctx, connStr, []string{
			os.Getenv("EVENTS_QUEUE"),
		}); err != nil {
			log.Fatalf("create queues: %v", err)
		}
	}

	// Opening a postgres backend migrates its schema.
	store, err := storage.OpenFromEnv(ctx)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	if config.Bool("SKIP_SEED", false) {
		log.Info("storage init complete")
		return
	}
	catalog, err := storage.LoadCatalog(os.Getenv("CATALOG_FILE"))
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	created, err := catalog.Seed(ctx, store)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	log.WithField("created", created).Info("storage init complete")
}
