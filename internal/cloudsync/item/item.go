// Package item defines the capability contract domain models implement to take
// part in sync, and the kind registry that carries their type-level metadata.
package item

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// Item is one node of a hierarchical item tree.
type Item interface {
	// KindName names the registered Kind describing this item.
	KindName() string
	// RecordID is the backend record name, or "" if the item was never persisted.
	RecordID() string
	// OwnerName identifies the zone owner; "" means the default owner.
	OwnerName() string
	// IsRemote reports whether the item came from the shared database.
	IsRemote() bool
	// DependentItems lists the item's current in-memory children.
	DependentItems() []Item
	// SetRecordID assigns the backend record name.
	SetRecordID(ctx context.Context, id string) error
	// Populate writes the item's field values onto rec.
	Populate(ctx context.Context, rec *record.Record) error
	// SetParent links the item under parent. Must be idempotent.
	SetParent(ctx context.Context, parent Item) error
}

// Constructor builds an item from a backend record.
type Constructor func(ctx context.Context, rec *record.Record, isRemote bool) (Item, error)

// Kind is the type-level metadata of an item kind.
type Kind struct {
	Name       string
	ZoneName   string
	RecordType string

	// DependentItemsRecordAttribute is the record field holding child references.
	DependentItemsRecordAttribute string
	// DependentItemsKind names the single kind of children, or "" for leaves.
	DependentItemsKind string

	New Constructor
}

// HasDependentItems reports whether items of this kind have children.
func (k *Kind) HasDependentItems() bool {
	return k.DependentItemsKind != ""
}

// Zone returns the zone an item of kind k lives in.
func (k *Kind) Zone(it Item) record.ZoneID {
	return record.NewZoneID(it.OwnerName(), k.ZoneName)
}

// RecordIDFor returns the full record id of a persisted item.
// ok is false if the item has no record id yet.
func (k *Kind) RecordIDFor(it Item) (id record.ID, ok bool) {
	if it.RecordID() == "" {
		return record.ID{}, false
	}
	return record.ID{Name: it.RecordID(), Zone: k.Zone(it)}, true
}

// Registry maps kind names to their descriptors. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// Register adds a kind. Dependent kinds may be registered in any order.
func (r *Registry) Register(k *Kind) error {
	switch {
	case k.Name == "":
		return fmt.Errorf("kind name is required")
	case k.RecordType == "":
		return fmt.Errorf("kind %s: record type is required", k.Name)
	case k.ZoneName == "":
		return fmt.Errorf("kind %s: zone name is required", k.Name)
	case k.New == nil:
		return fmt.Errorf("kind %s: constructor is required", k.Name)
	case k.HasDependentItems() && k.DependentItemsRecordAttribute == "":
		return fmt.Errorf("kind %s: dependent items need a record attribute", k.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[k.Name]; exists {
		return fmt.Errorf("kind %s already registered", k.Name)
	}
	r.kinds[k.Name] = k
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(kinds ...*Kind) *Registry {
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
	return r
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (*Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", gateway.ErrUnknownKind, name)
	}
	return k, nil
}

// Dependent returns the child kind of k.
func (r *Registry) Dependent(k *Kind) (*Kind, error) {
	if !k.HasDependentItems() {
		return nil, fmt.Errorf("kind %s has no dependent items", k.Name)
	}
	return r.Lookup(k.DependentItemsKind)
}

// KindOf returns the kind of it.
func (r *Registry) KindOf(it Item) (*Kind, error) {
	return r.Lookup(it.KindName())
}

// Names returns the registered kind names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// As views it as the concrete type T, failing with gateway.ErrMapping.
func As[T Item](it Item) (T, error) {
	typed, ok := it.(T)
	if !ok {
		var zero T
		kind := "<nil>"
		if it != nil {
			kind = it.KindName()
		}
		return zero, fmt.Errorf("%w: %s is %T", gateway.ErrMapping, kind, zero)
	}
	return typed, nil
}
