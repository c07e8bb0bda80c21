package share

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway/gatewaytest"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/item/itemtest"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

var aliceZone = record.NewZoneID("alice", catalog.ZoneName)

func newCoordinator(t *testing.T) (*Coordinator, *gatewaytest.Backend) {
	t.Helper()
	backend := gatewaytest.New()
	client := gateway.NewClient(backend, logging.Nop())
	return New(client, catalog.NewRegistry(), logging.Nop()), backend
}

func localList(goods ...string) *catalog.ShoppingList {
	list := catalog.NewShoppingList("Groceries", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	for _, g := range goods {
		list.Add(catalog.NewShoppingItem(g, "Market"))
	}
	return list
}

// remoteTree stores a shared list with children in the shared scope and
// returns the in-memory list materialized from it.
func remoteTree(t *testing.T, backend *gatewaytest.Backend, withShare bool, goods ...string) (*catalog.ShoppingList, *record.Record) {
	t.Helper()
	ctx := context.Background()

	root := record.New(catalog.ListRecordType, record.NewID(aliceZone))
	root.Set(catalog.FieldName, "Shared")
	stored := []*record.Record{root}

	var children []*record.Record
	for _, g := range goods {
		child := record.New(catalog.ItemRecordType, record.NewID(aliceZone))
		child.Set(catalog.FieldGoodName, g)
		child.SetParent(root)
		children = append(children, child)
	}
	root.SetReferences(catalog.ItemsAttribute, children, record.ActionDeleteSelf)
	stored = append(stored, children...)

	if withShare {
		share := record.NewShare(root)
		stored = append(stored, share.Record)
	}
	backend.Put(record.ScopeShared, stored...)

	it, err := catalog.ListKind.New(ctx, root, true)
	require.NoError(t, err)
	list := it.(*catalog.ShoppingList)
	for _, child := range children {
		ci, err := catalog.ItemKind.New(ctx, child, true)
		require.NoError(t, err)
		list.Add(ci.(*catalog.ShoppingItem))
	}
	return list, root
}

func TestShareItem_LocalTree(t *testing.T) {
	coord, backend := newCoordinator(t)
	list := localList("Milk", "Bread")

	share, err := coord.ShareItem(context.Background(), list, "Family groceries", "shopping")
	require.NoError(t, err)

	assert.Equal(t, []string{gatewaytest.OpModifyRecords, gatewaytest.OpModifyRecords}, backend.Ops())
	calls := backend.CallsOf(gatewaytest.OpModifyRecords)

	rootCall := calls[0]
	require.Len(t, rootCall.Records, 2)
	root := rootCall.Records[0]
	assert.Equal(t, list.RecordID(), root.ID.Name)
	assert.Equal(t, catalog.ListRecordType, root.Type)
	assert.Equal(t, "Groceries", root.String(catalog.FieldName))
	require.NotNil(t, root.Share)
	assert.Equal(t, share.ID, root.Share.ID)
	assert.Equal(t, record.ShareRecordType, rootCall.Records[1].Type)
	assert.Equal(t, record.ScopeLocal, rootCall.Scope)

	assert.Equal(t, "Family groceries", share.Title())
	assert.Equal(t, "shopping", share.ShareType())
	assert.Equal(t, record.PermissionReadWrite, share.PublicPermission())
	rootID, ok := share.RootID()
	require.True(t, ok)
	assert.Equal(t, root.ID, rootID)

	childCall := calls[1]
	require.Len(t, childCall.Records, 2)
	for _, child := range childCall.Records {
		assert.Equal(t, root.ID.Name, child.ParentName())
		assert.Equal(t, root.ID.Zone, child.ID.Zone)
	}
	assert.Len(t, root.References(catalog.ItemsAttribute), 2)

	for _, it := range list.Items() {
		assert.NotEmpty(t, it.RecordID())
	}
}

func TestUpdateItem_RemoteTreeWithShare(t *testing.T) {
	coord, backend := newCoordinator(t)
	list, root := remoteTree(t, backend, true, "Milk", "Eggs")
	list.Name = "Renamed"

	require.NoError(t, coord.UpdateItem(context.Background(), list))

	assert.Equal(t, []string{
		gatewaytest.OpFetchRecords,
		gatewaytest.OpFetchRecords,
		gatewaytest.OpFetchRecords,
		gatewaytest.OpModifyRecords,
		gatewaytest.OpModifyRecords,
	}, backend.Ops())

	fetches := backend.CallsOf(gatewaytest.OpFetchRecords)
	assert.Equal(t, []record.ID{root.ID}, fetches[0].IDs)
	assert.Equal(t, []record.ID{root.Share.ID}, fetches[1].IDs)
	assert.Len(t, fetches[2].IDs, 2)
	for _, f := range fetches {
		assert.Equal(t, record.ScopeShared, f.Scope)
	}

	updates := backend.CallsOf(gatewaytest.OpModifyRecords)
	require.Len(t, updates[0].Records, 2)
	assert.Equal(t, "Renamed", updates[0].Records[0].String(catalog.FieldName))
	assert.Equal(t, record.ShareRecordType, updates[0].Records[1].Type)
	require.Len(t, updates[1].Records, 2)
}

func TestUpdateItem_MixedChildrenOrder(t *testing.T) {
	coord, backend := newCoordinator(t)
	list, root := remoteTree(t, backend, false, "Milk")
	list.Add(catalog.NewShoppingItem("Butter", ""))

	require.NoError(t, coord.UpdateItem(context.Background(), list))

	updates := backend.CallsOf(gatewaytest.OpModifyRecords)
	require.Len(t, updates, 2)
	require.Len(t, updates[0].Records, 1)

	dependents := updates[1].Records
	require.Len(t, dependents, 2)
	assert.Equal(t, "Milk", dependents[0].String(catalog.FieldGoodName))
	assert.Equal(t, "Butter", dependents[1].String(catalog.FieldGoodName))
	assert.Equal(t, root.ID.Zone, dependents[1].ID.Zone)

	refs := updates[0].Records[0].References(catalog.ItemsAttribute)
	require.Len(t, refs, 2)
	assert.Equal(t, dependents[0].ID, refs[0].ID)
	assert.Equal(t, dependents[1].ID, refs[1].ID)
	assert.Equal(t, record.ActionDeleteSelf, refs[1].Action)
}

func TestUpdateItem_ConsistencyError(t *testing.T) {
	coord, backend := newCoordinator(t)
	list, root := remoteTree(t, backend, false, "Milk")

	stranger := record.New(catalog.ItemRecordType, record.NewID(aliceZone))
	backend.OnFetchRecords = func(n int, ids []record.ID, scope record.Scope) ([]gateway.RecordResult, error) {
		if n == 1 {
			return gatewaytest.Found(root.Clone()), nil
		}
		return gatewaytest.Found(stranger), nil
	}

	err := coord.UpdateItem(context.Background(), list)
	require.ErrorIs(t, err, gateway.ErrConsistency)
	assert.Empty(t, backend.CallsOf(gatewaytest.OpModifyRecords))
}

func TestUpdateItem_RootNotFound(t *testing.T) {
	coord, backend := newCoordinator(t)
	list, _ := remoteTree(t, gatewaytest.New(), false)

	err := coord.UpdateItem(context.Background(), list)
	require.ErrorIs(t, err, gateway.ErrNotFound)
	assert.Empty(t, backend.CallsOf(gatewaytest.OpModifyRecords))
}

func TestShareItem_RootFailureSkipsDependents(t *testing.T) {
	coord, backend := newCoordinator(t)
	boom := errors.New("zone not found")
	backend.OnModifyRecords = func(n int, records []*record.Record, scope record.Scope) error {
		return boom
	}

	_, err := coord.ShareItem(context.Background(), localList("Milk"), "t", "s")
	require.ErrorIs(t, err, boom)
	assert.Len(t, backend.CallsOf(gatewaytest.OpModifyRecords), 1)
}

func TestReparent_Idempotent(t *testing.T) {
	ctx := context.Background()
	coord, _ := newCoordinator(t)

	list := localList("Milk", "Bread")
	require.NoError(t, list.SetRecordID(ctx, "list-1"))

	require.NoError(t, coord.Reparent(ctx, list))
	first := parentIDs(list)
	require.NoError(t, coord.Reparent(ctx, list))

	assert.Equal(t, first, parentIDs(list))
	assert.Equal(t, []string{"list-1", "list-1"}, first)
	assert.Len(t, list.Items(), 2)
}

func parentIDs(list *catalog.ShoppingList) []string {
	var ids []string
	for _, it := range list.Items() {
		ids = append(ids, it.ParentID())
	}
	return ids
}

func TestShareItem_ThreeLevels(t *testing.T) {
	ctx := context.Background()
	backend := gatewaytest.New()
	coord := New(gateway.NewClient(backend, logging.Nop()), itemtest.NewRegistry(), logging.Nop())

	board := itemtest.Board("Sprint",
		itemtest.Column("b1", itemtest.Card("b1-c1"), itemtest.Card("b1-c2")),
		itemtest.Column("b2", itemtest.Card("b2-c1"), itemtest.Card("b2-c2")),
	)

	shr, err := coord.ShareItem(ctx, board, "Sprint board", "boards")
	require.NoError(t, err)

	calls := backend.CallsOf(gatewaytest.OpModifyRecords)
	require.Len(t, calls, 2)
	require.Len(t, calls[0].Records, 2)
	root := calls[0].Records[0]
	assert.Equal(t, shr.ID, root.Share.ID)

	// Children first, then grandchildren grouped by child in input order.
	deps := calls[1].Records
	titles := make([]string, 0, len(deps))
	byName := make(map[string]*record.Record, len(deps))
	for _, rec := range deps {
		titles = append(titles, rec.String(itemtest.FieldTitle))
		byName[rec.ID.Name] = rec
	}
	assert.Equal(t, []string{"b1", "b2", "b1-c1", "b1-c2", "b2-c1", "b2-c2"}, titles)

	assert.Len(t, root.References(itemtest.BoardKind.DependentItemsRecordAttribute), 2)
	for _, col := range deps[:2] {
		assert.Equal(t, itemtest.ColumnKind.RecordType, col.Type)
		assert.Equal(t, root.ID.Name, col.ParentName())

		cards := col.References(itemtest.ColumnKind.DependentItemsRecordAttribute)
		require.Len(t, cards, 2)
		for _, ref := range cards {
			card, ok := byName[ref.ID.Name]
			require.True(t, ok, "card %s was not saved", ref.ID.Name)
			assert.Equal(t, col.ID.Name, card.ParentName())
			assert.Equal(t, itemtest.CardKind.RecordType, card.Type)
			assert.Contains(t, card.String(itemtest.FieldTitle), col.String(itemtest.FieldTitle)+"-")
		}
	}

	for _, col := range board.Children() {
		assert.NotEmpty(t, col.RecordID())
		for _, card := range col.Children() {
			assert.NotEmpty(t, card.RecordID())
		}
	}
}
