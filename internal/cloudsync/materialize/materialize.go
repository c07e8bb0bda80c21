// Package materialize turns backend records into item trees.
//
// Two entry points exist. Materialize walks a single root record and fetches
// its children by reference. MaterializeChangeSet rebuilds trees from a flat
// list of changed records using the records' parent links.
package materialize

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/item"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/parallel"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// Materializer builds items from records.
type Materializer struct {
	client   *gateway.Client
	registry *item.Registry
	logger   *zerolog.Logger
}

// New creates a Materializer.
//
// If logger is nil, a default logger writing to stderr is used.
func New(client *gateway.Client, registry *item.Registry, logger *zerolog.Logger) *Materializer {
	return &Materializer{
		client:   client,
		registry: registry,
		logger:   logging.OrDefault(logger, "materialize"),
	}
}

// Materialize constructs an item of kind from rec. Children are resolved from
// the references stored under the kind's dependent attribute, fetched from the
// scope matching isRemote, and linked to their parent one at a time.
func (m *Materializer) Materialize(ctx context.Context, rec *record.Record, kind *item.Kind, isRemote bool) (item.Item, error) {
	return m.materialize(ctx, rec, kind, nil, isRemote)
}

func (m *Materializer) materialize(ctx context.Context, rec *record.Record, kind *item.Kind, parent item.Item, isRemote bool) (item.Item, error) {
	it, err := kind.New(ctx, rec, isRemote)
	if err != nil {
		return nil, fmt.Errorf("failed to construct %s from record %s: %w", kind.Name, rec.ID, err)
	}
	if parent != nil {
		if err := it.SetParent(ctx, parent); err != nil {
			return nil, fmt.Errorf("failed to set parent of %s: %w", rec.ID, err)
		}
	}

	if !kind.HasDependentItems() {
		return it, nil
	}

	dependent, err := m.registry.Dependent(kind)
	if err != nil {
		return nil, err
	}

	refs := rec.References(kind.DependentItemsRecordAttribute)
	ids := make([]record.ID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}

	children, err := m.client.FetchRecords(ctx, ids, record.ScopeFor(isRemote))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch children of %s: %w", rec.ID, err)
	}
	m.logger.Debug().Str("record", rec.ID.String()).Int("referenced", len(ids)).Int("fetched", len(children)).Msg("Materializing children")

	for _, child := range children {
		if _, err := m.materialize(ctx, child, dependent, it, isRemote); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// MaterializeChangeSet builds the items of kind found in records. When parent
// is set, only records whose parent link names it are used and each new item
// is linked under it. Children of every item are resolved from the same
// records list. Items are built concurrently; the result follows the order of
// records.
func (m *Materializer) MaterializeChangeSet(ctx context.Context, records []*record.Record, kind *item.Kind, parent item.Item, isRemote bool) ([]item.Item, error) {
	matched := make([]*record.Record, 0, len(records))
	for _, rec := range records {
		if rec.Type != kind.RecordType {
			continue
		}
		if parent != nil && rec.ParentName() != parent.RecordID() {
			continue
		}
		matched = append(matched, rec)
	}
	if len(matched) == 0 {
		return nil, nil
	}

	var dependent *item.Kind
	if kind.HasDependentItems() {
		var err error
		if dependent, err = m.registry.Dependent(kind); err != nil {
			return nil, err
		}
	}

	return parallel.Map(ctx, matched, func(ctx context.Context, rec *record.Record) (item.Item, error) {
		it, err := kind.New(ctx, rec, isRemote)
		if err != nil {
			return nil, fmt.Errorf("failed to construct %s from record %s: %w", kind.Name, rec.ID, err)
		}
		if parent != nil {
			if err := it.SetParent(ctx, parent); err != nil {
				return nil, fmt.Errorf("failed to set parent of %s: %w", rec.ID, err)
			}
		}
		if dependent != nil {
			if _, err := m.MaterializeChangeSet(ctx, records, dependent, it, isRemote); err != nil {
				return nil, err
			}
		}
		return it, nil
	})
}
