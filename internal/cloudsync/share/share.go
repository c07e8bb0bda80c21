// Package share pushes item trees to the backend and grants access to them.
//
// ShareItem and UpdateItem run the same strictly ordered pipeline:
//
//  1. link every in-memory child to its structural parent
//  2. resolve the root record (fetch and repopulate, or mint a new id)
//  3. UpdateItem only: include the root's existing share record
//  4. resolve the dependent records, recursively
//  5. ShareItem only: create a share over the root record
//  6. save the root set, then the dependent set, in two separate calls
//
// Any failing step aborts the steps after it.
package share

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

// Coordinator uploads item trees and creates shares. It keeps no state
// between calls.
type Coordinator struct {
	client   *gateway.Client
	registry *item.Registry
	logger   *zerolog.Logger
}

// New creates a Coordinator.
//
// If logger is nil, a default logger writing to stderr is used.
func New(client *gateway.Client, registry *item.Registry, logger *zerolog.Logger) *Coordinator {
	return &Coordinator{
		client:   client,
		registry: registry,
		logger:   logging.OrDefault(logger, "share"),
	}
}

// ShareItem uploads the tree rooted at it and grants public read-write access
// to it through a new share.
func (c *Coordinator) ShareItem(ctx context.Context, it item.Item, title, shareType string) (*record.Share, error) {
	kind, root, err := c.prepareRoot(ctx, it)
	if err != nil {
		return nil, err
	}

	dependents, err := c.dependentRecords(ctx, kind, it, root)
	if err != nil {
		return nil, err
	}

	share := record.NewShare(root)
	share.SetTitle(title)
	share.SetShareType(shareType)
	share.SetPublicPermission(record.PermissionReadWrite)

	if err := c.persist(ctx, it, []*record.Record{root, share.Record}, dependents); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("item", it.RecordID()).
		Str("share", share.ID.Name).
		Int("dependents", len(dependents)).
		Msg("Shared item")
	return share, nil
}

// UpdateItem uploads the current state of the tree rooted at it, keeping any
// existing share in sync.
func (c *Coordinator) UpdateItem(ctx context.Context, it item.Item) error {
	kind, root, err := c.prepareRoot(ctx, it)
	if err != nil {
		return err
	}

	roots := []*record.Record{root}
	if root.Share != nil {
		shares, err := c.client.FetchRecords(ctx, []record.ID{root.Share.ID}, scopeOf(it))
		if err != nil {
			return fmt.Errorf("failed to fetch share of %s: %w", root.ID, err)
		}
		roots = append(roots, shares...)
	}

	dependents, err := c.dependentRecords(ctx, kind, it, root)
	if err != nil {
		return err
	}

	if err := c.persist(ctx, it, roots, dependents); err != nil {
		return err
	}

	c.logger.Info().Str("item", it.RecordID()).Int("dependents", len(dependents)).Msg("Updated item")
	return nil
}

// prepareRoot runs the re-parent pass and resolves the root record.
func (c *Coordinator) prepareRoot(ctx context.Context, it item.Item) (*item.Kind, *record.Record, error) {
	kind, err := c.registry.KindOf(it)
	if err != nil {
		return nil, nil, err
	}

	if err := c.Reparent(ctx, it); err != nil {
		return nil, nil, err
	}

	root, err := c.rootRecord(ctx, kind, it)
	if err != nil {
		return nil, nil, err
	}
	return kind, root, nil
}

// Reparent links every in-memory descendant of it to its structural parent.
// Running it again on the same tree changes nothing.
func (c *Coordinator) Reparent(ctx context.Context, it item.Item) error {
	kind, err := c.registry.KindOf(it)
	if err != nil {
		return err
	}
	if !kind.HasDependentItems() {
		return nil
	}
	dependent, err := c.registry.Dependent(kind)
	if err != nil {
		return err
	}

	for _, child := range it.DependentItems() {
		if err := child.SetParent(ctx, it); err != nil {
			return fmt.Errorf("failed to set parent of %s child: %w", kind.Name, err)
		}
		if dependent.HasDependentItems() {
			if err := c.Reparent(ctx, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// rootRecord fetches and repopulates the record of a persisted item, or mints
// a new record for an unpersisted one.
func (c *Coordinator) rootRecord(ctx context.Context, kind *item.Kind, it item.Item) (*record.Record, error) {
	if id, ok := kind.RecordIDFor(it); ok {
		records, err := c.client.FetchRecords(ctx, []record.ID{id}, scopeOf(it))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch record %s: %w", id, err)
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("failed to fetch record %s: %w", id, gateway.ErrNotFound)
		}
		rec := records[0]
		if err := it.Populate(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to populate record %s: %w", id, err)
		}
		return rec, nil
	}

	return mint(ctx, kind, it, kind.Zone(it))
}

// dependentRecords resolves the records of the children of it, links them
// under root and lists them on root. Grandchildren are resolved the same way
// and appended after all children.
func (c *Coordinator) dependentRecords(ctx context.Context, kind *item.Kind, it item.Item, root *record.Record) ([]*record.Record, error) {
	if !kind.HasDependentItems() {
		return nil, nil
	}
	children := it.DependentItems()
	if len(children) == 0 {
		return nil, nil
	}

	dependent, err := c.registry.Dependent(kind)
	if err != nil {
		return nil, err
	}
	zone := kind.Zone(it)

	byName := make(map[string]item.Item)
	var remoteIDs []record.ID
	var local []item.Item
	for _, child := range children {
		if name := child.RecordID(); name != "" {
			byName[name] = child
			remoteIDs = append(remoteIDs, record.ID{Name: name, Zone: zone})
			continue
		}
		local = append(local, child)
	}

	type pair struct {
		item   item.Item
		record *record.Record
	}

	fetched, err := c.client.FetchRecords(ctx, remoteIDs, scopeOf(it))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dependents of %s: %w", root.ID, err)
	}
	remote, err := parallel.Map(ctx, fetched, func(ctx context.Context, rec *record.Record) (pair, error) {
		child, ok := byName[rec.ID.Name]
		if !ok {
			return pair{}, fmt.Errorf("%w: record %s is not a child of %s", gateway.ErrConsistency, rec.ID, root.ID)
		}
		rec.SetParent(root)
		if err := child.Populate(ctx, rec); err != nil {
			return pair{}, fmt.Errorf("failed to populate record %s: %w", rec.ID, err)
		}
		return pair{child, rec}, nil
	})
	if err != nil {
		return nil, err
	}

	minted, err := parallel.Map(ctx, local, func(ctx context.Context, child item.Item) (pair, error) {
		rec, err := mint(ctx, dependent, child, zone)
		if err != nil {
			return pair{}, err
		}
		rec.SetParent(root)
		return pair{child, rec}, nil
	})
	if err != nil {
		return nil, err
	}

	all := append(remote, minted...)
	records := make([]*record.Record, 0, len(all))
	for _, p := range all {
		records = append(records, p.record)
	}
	root.SetReferences(kind.DependentItemsRecordAttribute, records, record.ActionDeleteSelf)

	nested, err := parallel.FlatMap(ctx, all, func(ctx context.Context, p pair) ([]*record.Record, error) {
		return c.dependentRecords(ctx, dependent, p.item, p.record)
	})
	if err != nil {
		return nil, err
	}
	return append(records, nested...), nil
}

// persist saves the root set, then the dependent set. Errors are returned
// as the backend reported them.
func (c *Coordinator) persist(ctx context.Context, it item.Item, roots, dependents []*record.Record) error {
	scope := scopeOf(it)
	if err := c.client.UpdateRecords(ctx, roots, scope); err != nil {
		return err
	}
	return c.client.UpdateRecords(ctx, dependents, scope)
}

// mint assigns a fresh record id in zone to it and returns its new record.
func mint(ctx context.Context, kind *item.Kind, it item.Item, zone record.ZoneID) (*record.Record, error) {
	id := record.NewID(zone)
	if err := it.SetRecordID(ctx, id.Name); err != nil {
		return nil, fmt.Errorf("failed to assign record id to %s: %w", kind.Name, err)
	}
	rec := record.New(kind.RecordType, id)
	if err := it.Populate(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to populate record %s: %w", id, err)
	}
	return rec, nil
}

func scopeOf(it item.Item) record.Scope {
	return record.ScopeFor(it.IsRemote())
}
