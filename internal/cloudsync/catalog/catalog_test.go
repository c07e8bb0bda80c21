package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

var testDate = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestShoppingList_RoundTrip(t *testing.T) {
	ctx := context.Background()
	zone := record.NewZoneID("alice", ZoneName)

	original := record.New(ListRecordType, record.NewID(zone))
	original.Set(FieldName, "Groceries")
	original.Set(FieldDate, testDate)

	it, err := ListKind.New(ctx, original, true)
	require.NoError(t, err)
	list := it.(*ShoppingList)
	assert.Equal(t, original.ID.Name, list.RecordID())
	assert.Equal(t, "alice", list.OwnerName())
	assert.True(t, list.IsRemote())

	fresh := record.New(ListRecordType, original.ID)
	require.NoError(t, list.Populate(ctx, fresh))
	assert.Equal(t, "Groceries", fresh.String(FieldName))
	date, ok := fresh.Time(FieldDate)
	require.True(t, ok)
	assert.True(t, testDate.Equal(date))
}

func TestShoppingItem_RoundTrip(t *testing.T) {
	ctx := context.Background()
	zone := record.NewZoneID("", ZoneName)

	parent := record.New(ListRecordType, record.NewID(zone))
	original := record.New(ItemRecordType, record.NewID(zone))
	original.Set(FieldGoodName, "Milk")
	original.Set(FieldStoreName, "Corner shop")
	original.SetParent(parent)

	it, err := ItemKind.New(ctx, original, false)
	require.NoError(t, err)
	shoppingItem := it.(*ShoppingItem)
	assert.Equal(t, "", shoppingItem.OwnerName())
	assert.Equal(t, parent.ID.Name, shoppingItem.ParentID())

	fresh := record.New(ItemRecordType, original.ID)
	require.NoError(t, shoppingItem.Populate(ctx, fresh))
	assert.Equal(t, original.Fields, fresh.Fields)
}

func TestShoppingItem_SetParentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	list := NewShoppingList("Weekend", testDate)
	require.NoError(t, list.SetRecordID(ctx, "list-1"))
	milk := NewShoppingItem("Milk", "")

	require.NoError(t, milk.SetParent(ctx, list))
	require.NoError(t, milk.SetParent(ctx, list))

	assert.Len(t, list.Items(), 1)
	assert.Equal(t, "list-1", milk.ParentID())
}

func TestShoppingItem_SetParentRejectsOtherKinds(t *testing.T) {
	ctx := context.Background()
	err := NewShoppingItem("Milk", "").SetParent(ctx, NewShoppingItem("Eggs", ""))
	require.ErrorIs(t, err, gateway.ErrMapping)

	err = NewShoppingList("x", testDate).SetParent(ctx, NewShoppingList("y", testDate))
	require.ErrorIs(t, err, ErrNoParent)
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	list, err := r.Lookup(ListKindName)
	require.NoError(t, err)
	dep, err := r.Dependent(list)
	require.NoError(t, err)
	assert.Same(t, ItemKind, dep)
}

func TestListFile_WriteRead(t *testing.T) {
	dir := t.TempDir()

	f := &ListFile{
		Name:  "Party Supplies!",
		Date:  testDate,
		Items: []ItemFile{{GoodName: "Cups"}, {GoodName: "Cake", StoreName: "Bakery"}},
	}
	path, err := WriteListFile(dir, f)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "local-party-supplies.json"), path)

	got, err := ReadListFile(path)
	require.NoError(t, err)
	assert.Equal(t, f.Name, got.Name)
	assert.True(t, f.Date.Equal(got.Date))
	assert.Equal(t, f.Items, got.Items)

	list := got.ToList()
	assert.Len(t, list.Items(), 2)
	assert.Equal(t, "", list.RecordID())

	back := FromList(list)
	assert.Equal(t, got.Items, back.Items)
}

func TestListFile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		file    ListFile
		wantErr bool
	}{
		{"valid", ListFile{Name: "a"}, false},
		{"missing name", ListFile{}, true},
		{"blank good name", ListFile{Name: "a", Items: []ItemFile{{GoodName: " "}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.file.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReadAllListFiles(t *testing.T) {
	dir := t.TempDir()

	_, err := WriteListFile(dir, &ListFile{ID: "abc", Name: "Hardware"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0644))

	lists, err := ReadAllListFiles(dir, logging.Nop())
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "abc", lists[0].ID)

	lists, err = ReadAllListFiles(filepath.Join(dir, "missing"), nil)
	require.NoError(t, err)
	assert.Empty(t, lists)
}
