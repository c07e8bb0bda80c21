package materialize

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/changes"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/item"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// Loader loads item trees from accepted shares and from the change feeds.
type Loader struct {
	client       *gateway.Client
	fetcher      *changes.Fetcher
	materializer *Materializer
	logger       *zerolog.Logger
}

// NewLoader creates a Loader.
//
// If logger is nil, a default logger writing to stderr is used.
func NewLoader(client *gateway.Client, fetcher *changes.Fetcher, materializer *Materializer, logger *zerolog.Logger) *Loader {
	return &Loader{
		client:       client,
		fetcher:      fetcher,
		materializer: materializer,
		logger:       logging.OrDefault(logger, "loader"),
	}
}

// LoadShare accepts the share described by metadata and materializes its
// root record, read from the shared database, as an item of kind.
func (l *Loader) LoadShare(ctx context.Context, metadata record.ShareMetadata, kind *item.Kind) (item.Item, error) {
	if metadata.RootRecordID == nil {
		return nil, gateway.ErrNoRootRecord
	}

	if _, err := l.client.AcceptShare(ctx, metadata); err != nil {
		return nil, fmt.Errorf("failed to accept share %s: %w", metadata.ShareID, err)
	}

	roots, err := l.client.FetchRecords(ctx, []record.ID{*metadata.RootRecordID}, record.ScopeShared)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch share root: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("failed to fetch share root %s: %w", metadata.RootRecordID, gateway.ErrNotFound)
	}

	it, err := l.materializer.Materialize(ctx, roots[0], kind, true)
	if err != nil {
		return nil, err
	}
	l.logger.Info().Str("share", metadata.ShareID.String()).Str("owner", metadata.OwnerName).Msg("Loaded share")
	return it, nil
}

// FetchChanges reads the changed zones of scope, their changed records, and
// rebuilds the top-level items of kind from them.
func (l *Loader) FetchChanges(ctx context.Context, scope record.Scope, kind *item.Kind) ([]item.Item, error) {
	zones, err := l.fetcher.DatabaseChanges(ctx, scope)
	if err != nil {
		return nil, err
	}

	records, err := l.fetcher.ZoneChanges(ctx, zones, scope)
	if err != nil {
		return nil, err
	}

	items, err := l.materializer.MaterializeChangeSet(ctx, records, kind, nil, scope == record.ScopeShared)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().Stringer("scope", scope).Int("zones", len(zones)).Int("records", len(records)).Int("items", len(items)).Msg("Fetched changes")
	return items, nil
}

// LoadShare is Loader.LoadShare with the result viewed as T.
func LoadShare[T item.Item](ctx context.Context, l *Loader, metadata record.ShareMetadata, kind *item.Kind) (T, error) {
	it, err := l.LoadShare(ctx, metadata, kind)
	if err != nil {
		var zero T
		return zero, err
	}
	return item.As[T](it)
}

// FetchChanges is Loader.FetchChanges with every result viewed as T.
func FetchChanges[T item.Item](ctx context.Context, l *Loader, scope record.Scope, kind *item.Kind) ([]T, error) {
	items, err := l.FetchChanges(ctx, scope, kind)
	if err != nil {
		return nil, err
	}

	typed := make([]T, 0, len(items))
	for _, it := range items {
		t, err := item.As[T](it)
		if err != nil {
			return nil, err
		}
		typed = append(typed, t)
	}
	return typed, nil
}
