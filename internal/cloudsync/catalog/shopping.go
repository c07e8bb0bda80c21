// Package catalog provides the shopping list domain used by zonesync: a
// ShoppingList owning ShoppingItems, both syncable through the item contract.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/item"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
)

// Kind names and record layout.
const (
	ListKindName = "shopping-list"
	ItemKindName = "shopping-item"

	ZoneName       = "shopping"
	ListRecordType = "shoppingList"
	ItemRecordType = "shoppingItem"
	ItemsAttribute = "items"
	ShareType      = "com.zonesync.shopping"

	FieldName      = "name"
	FieldDate      = "date"
	FieldGoodName  = "goodName"
	FieldStoreName = "storeName"
)

// ErrNoParent is returned when a shopping list is asked to take a parent.
var ErrNoParent = errors.New("shopping lists have no parent")

// ListKind describes ShoppingList.
var ListKind = &item.Kind{
	Name:                          ListKindName,
	ZoneName:                      ZoneName,
	RecordType:                    ListRecordType,
	DependentItemsRecordAttribute: ItemsAttribute,
	DependentItemsKind:            ItemKindName,
	New:                           storeList,
}

// ItemKind describes ShoppingItem.
var ItemKind = &item.Kind{
	Name:       ItemKindName,
	ZoneName:   ZoneName,
	RecordType: ItemRecordType,
	New:        storeItem,
}

// NewRegistry returns a registry holding the shopping kinds.
func NewRegistry() *item.Registry {
	return item.NewRegistry().MustRegister(ListKind, ItemKind)
}

// ShoppingList is a named, dated list of items. The list owns its items.
type ShoppingList struct {
	mu     sync.Mutex
	id     string
	owner  string
	remote bool
	items  []*ShoppingItem

	Name string
	Date time.Time
}

// NewShoppingList creates an unpersisted list.
func NewShoppingList(name string, date time.Time) *ShoppingList {
	return &ShoppingList{Name: name, Date: date}
}

func storeList(_ context.Context, rec *record.Record, isRemote bool) (item.Item, error) {
	l := &ShoppingList{
		id:     rec.ID.Name,
		owner:  ownerOf(rec),
		remote: isRemote,
		Name:   rec.String(FieldName),
	}
	if date, ok := rec.Time(FieldDate); ok {
		l.Date = date
	}
	return l, nil
}

func (l *ShoppingList) KindName() string { return ListKindName }

func (l *ShoppingList) RecordID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id
}

func (l *ShoppingList) OwnerName() string { return l.owner }

func (l *ShoppingList) IsRemote() bool { return l.remote }

func (l *ShoppingList) DependentItems() []item.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]item.Item, 0, len(l.items))
	for _, it := range l.items {
		out = append(out, it)
	}
	return out
}

// Items returns a snapshot of the list's items.
func (l *ShoppingList) Items() []*ShoppingItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*ShoppingItem(nil), l.items...)
}

// Add appends items without linking them. The next sync links them.
func (l *ShoppingList) Add(items ...*ShoppingItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, items...)
}

func (l *ShoppingList) SetRecordID(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = id
	return nil
}

func (l *ShoppingList) Populate(_ context.Context, rec *record.Record) error {
	rec.Set(FieldName, l.Name)
	rec.Set(FieldDate, l.Date)
	return nil
}

func (l *ShoppingList) SetParent(context.Context, item.Item) error {
	return ErrNoParent
}

// attach appends it once.
func (l *ShoppingList) attach(it *ShoppingItem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.items {
		if existing == it {
			return
		}
	}
	l.items = append(l.items, it)
}

// ShoppingItem is one good on a list. It keeps only its parent's record id.
type ShoppingItem struct {
	mu       sync.Mutex
	id       string
	owner    string
	remote   bool
	parentID string

	GoodName  string
	StoreName string
}

// NewShoppingItem creates an unpersisted item.
func NewShoppingItem(goodName, storeName string) *ShoppingItem {
	return &ShoppingItem{GoodName: goodName, StoreName: storeName}
}

func storeItem(_ context.Context, rec *record.Record, isRemote bool) (item.Item, error) {
	return &ShoppingItem{
		id:        rec.ID.Name,
		owner:     ownerOf(rec),
		remote:    isRemote,
		parentID:  rec.ParentName(),
		GoodName:  rec.String(FieldGoodName),
		StoreName: rec.String(FieldStoreName),
	}, nil
}

func (i *ShoppingItem) KindName() string { return ItemKindName }

func (i *ShoppingItem) RecordID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id
}

func (i *ShoppingItem) OwnerName() string { return i.owner }

func (i *ShoppingItem) IsRemote() bool { return i.remote }

func (i *ShoppingItem) DependentItems() []item.Item { return nil }

func (i *ShoppingItem) SetRecordID(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.id = id
	return nil
}

func (i *ShoppingItem) Populate(_ context.Context, rec *record.Record) error {
	rec.Set(FieldGoodName, i.GoodName)
	rec.Set(FieldStoreName, i.StoreName)
	return nil
}

// SetParent links the item into parent, which must be a *ShoppingList.
func (i *ShoppingItem) SetParent(_ context.Context, parent item.Item) error {
	list, err := item.As[*ShoppingList](parent)
	if err != nil {
		return err
	}
	list.attach(i)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.parentID = list.RecordID()
	return nil
}

// ParentID returns the record id of the owning list, if known.
func (i *ShoppingItem) ParentID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.parentID
}

func ownerOf(rec *record.Record) string {
	if rec.ID.Zone.IsDefaultOwner() {
		return ""
	}
	return rec.ID.Zone.Owner
}
