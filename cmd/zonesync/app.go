package main

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/changes"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/db"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/item"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/materialize"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/share"
)

// app holds the sync stack built on top of the local database.
type app struct {
	db          *db.DB
	registry    *item.Registry
	client      *gateway.Client
	coordinator *share.Coordinator
	loader      *materialize.Loader
}

// openApp opens the configured database, making sure its schema exists,
// and wires the sync components to it. The caller must call close.
func openApp(ctx context.Context) (*app, error) {
	database, err := db.Open(cfg.DatabasePath(), &logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	database.SetPageSize(cfg.PageSize)

	if err := database.InitSchemaContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	registry := catalog.NewRegistry()
	client := gateway.NewClient(database, &logger)
	fetcher := changes.NewFetcher(database, database, &logger)
	materializer := materialize.New(client, registry, &logger)

	return &app{
		db:          database,
		registry:    registry,
		client:      client,
		coordinator: share.New(client, registry, &logger),
		loader:      materialize.NewLoader(client, fetcher, materializer, &logger),
	}, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close database")
	}
}
