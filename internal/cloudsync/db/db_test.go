package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/changes"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/materialize"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/share"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

var testZone = record.NewZoneID("", catalog.ZoneName)

// testDB opens a fresh database with the schema in a temp directory
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.InitSchema())
	return db
}

func newRecord(zone record.ZoneID, typ string) *record.Record {
	return record.New(typ, record.NewID(zone))
}

// TestOpen_Success tests successful database creation
func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	db, err := Open(path, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.Equal(t, DefaultPageSize, db.pageSize)
}

// TestInitSchema_Idempotent tests that schema initialization is idempotent
func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)

	require.NoError(t, db.InitSchema(), "second InitSchema")

	for _, table := range []string{"zones", "records", "tokens", "sequence"} {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		require.NoError(t, db.conn.QueryRow(query, table).Scan(&count))
		assert.Equal(t, 1, count, "table %s does not exist", table)
	}

	v, err := db.Version(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
}

// TestClose_Twice tests that closing twice is harmless
func TestClose_Twice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), logging.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Close())
	assert.NoError(t, db.Close(), "second Close")
}

// TestModifyRecords_RoundTrip tests that every supported field type survives storage
func TestModifyRecords_RoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	date := time.Date(2024, 3, 1, 10, 30, 0, 123, time.UTC)
	parent := newRecord(testZone, catalog.ListRecordType)
	child := newRecord(testZone, catalog.ItemRecordType)
	child.SetParent(parent)
	child.Parent.Action = record.ActionDeleteSelf

	parent.Set("name", "Weekend")
	parent.Set("date", date)
	parent.Set("count", 3)
	parent.Set("ratio", 0.5)
	parent.Set("done", true)
	parent.Set("tags", []string{"food", "home"})
	parent.Set("blob", []byte{1, 2, 3})
	parent.SetReferences("items", []*record.Record{child}, record.ActionDeleteSelf)
	shr := record.NewShare(parent)

	require.NoError(t, db.ModifyRecords(ctx, []*record.Record{parent, shr.Record, child}, record.ScopeLocal))

	results, err := db.FetchRecords(ctx, []record.ID{parent.ID, child.ID}, record.ScopeLocal)
	require.NoError(t, err)
	require.Len(t, results, 2)

	got := results[0].Record
	require.NotNil(t, got, "parent missing: %v", results[0].Err)
	assert.Equal(t, catalog.ListRecordType, got.Type)
	assert.Equal(t, "Weekend", got.String("name"))
	d, ok := got.Time("date")
	assert.True(t, ok)
	assert.True(t, d.Equal(date), "date = %v, want %v", d, date)
	assert.Equal(t, int64(3), got.Get("count"))
	assert.Equal(t, 0.5, got.Get("ratio"))
	assert.Equal(t, true, got.Get("done"))
	assert.Equal(t, []string{"food", "home"}, got.Get("tags"))
	assert.Equal(t, []byte{1, 2, 3}, got.Get("blob"))

	refs := got.References("items")
	require.Len(t, refs, 1)
	assert.Equal(t, child.ID, refs[0].ID)
	assert.Equal(t, record.ActionDeleteSelf, refs[0].Action)

	require.NotNil(t, got.Share)
	assert.Equal(t, shr.ID, got.Share.ID)

	gotChild := results[1].Record
	require.NotNil(t, gotChild, "child missing: %v", results[1].Err)
	assert.Equal(t, parent.ID.Name, gotChild.ParentName())
	assert.Equal(t, record.ActionDeleteSelf, gotChild.Parent.Action)
}

// TestModifyRecords_Overwrites tests that saving again replaces every field
func TestModifyRecords_Overwrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	rec := newRecord(testZone, catalog.ItemRecordType)
	rec.Set("goodName", "milk")
	rec.Set("storeName", "corner")
	require.NoError(t, db.ModifyRecords(ctx, []*record.Record{rec}, record.ScopeLocal))

	rec.Set("storeName", nil)
	rec.Set("goodName", "oat milk")
	require.NoError(t, db.ModifyRecords(ctx, []*record.Record{rec}, record.ScopeLocal))

	results, err := db.FetchRecords(ctx, []record.ID{rec.ID}, record.ScopeLocal)
	require.NoError(t, err)
	got := results[0].Record
	require.NotNil(t, got)
	assert.Equal(t, "oat milk", got.String("goodName"))
	assert.Nil(t, got.Get("storeName"))

	count, err := db.RecordCount(ctx, record.ScopeLocal)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	v, err := db.Version(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

// TestModifyRecords_UnsupportedFieldRollsBack tests that a bad record aborts the whole batch
func TestModifyRecords_UnsupportedFieldRollsBack(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	good := newRecord(testZone, catalog.ItemRecordType)
	bad := newRecord(testZone, catalog.ItemRecordType)
	bad.Set("weird", struct{}{})

	require.Error(t, db.ModifyRecords(ctx, []*record.Record{good, bad}, record.ScopeLocal))

	count, err := db.RecordCount(ctx, record.ScopeLocal)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

// TestFetchRecords_Missing tests that unknown ids report ErrNotFound per id
func TestFetchRecords_Missing(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	stored := newRecord(testZone, catalog.ItemRecordType)
	require.NoError(t, db.ModifyRecords(ctx, []*record.Record{stored}, record.ScopeLocal))

	missing := record.NewID(testZone)
	results, err := db.FetchRecords(ctx, []record.ID{missing, stored.ID}, record.ScopeLocal)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, gateway.ErrNotFound)
	assert.NotNil(t, results[1].Record, "stored id error = %v", results[1].Err)

	// Scopes are separate databases
	results, err = db.FetchRecords(ctx, []record.ID{stored.ID}, record.ScopeShared)
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, gateway.ErrNotFound)
}

// TestFetchDatabaseChanges_Pages tests paging through changed zones
func TestFetchDatabaseChanges_Pages(t *testing.T) {
	db := testDB(t)
	db.SetPageSize(1)
	ctx := context.Background()

	zones := []record.ZoneID{
		record.NewZoneID("", "a"),
		record.NewZoneID("", "b"),
		record.NewZoneID("bob", "a"),
	}
	for _, zone := range zones {
		require.NoError(t, db.ModifyRecords(ctx, []*record.Record{newRecord(zone, "t")}, record.ScopeLocal))
	}

	var got []record.ZoneID
	var token record.Token
	for i := 0; i < 3; i++ {
		page, err := db.FetchDatabaseChanges(ctx, record.ScopeLocal, token)
		require.NoError(t, err, "page %d", i)
		require.Len(t, page.ZoneIDs, 1, "page %d", i)
		assert.Equal(t, i < 2, page.MoreComing, "page %d", i)
		got = append(got, page.ZoneIDs...)
		token = page.Token
	}
	assert.Equal(t, zones, got)

	page, err := db.FetchDatabaseChanges(ctx, record.ScopeLocal, token)
	require.NoError(t, err)
	assert.Empty(t, page.ZoneIDs)
	assert.False(t, page.MoreComing)
	assert.Equal(t, record.Token("3"), page.Token)

	// A new write in an old zone shows up again
	require.NoError(t, db.ModifyRecords(ctx, []*record.Record{newRecord(zones[0], "t")}, record.ScopeLocal))
	page, err = db.FetchDatabaseChanges(ctx, record.ScopeLocal, page.Token)
	require.NoError(t, err)
	assert.Equal(t, zones[:1], page.ZoneIDs)
}

// TestFetchDatabaseChanges_InvalidToken tests that unusable tokens ask for a reset
func TestFetchDatabaseChanges_InvalidToken(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, token := range []string{"garbage", "-1", "42"} {
		_, err := db.FetchDatabaseChanges(ctx, record.ScopeLocal, record.Token(token))
		assert.ErrorIs(t, err, gateway.ErrTokenReset, "token %q", token)
	}
}

// TestFetchZoneChanges_PerZoneResults tests paging and per-zone token errors
func TestFetchZoneChanges_PerZoneResults(t *testing.T) {
	db := testDB(t)
	db.SetPageSize(2)
	ctx := context.Background()

	good := record.NewZoneID("", "good")
	bad := record.NewZoneID("", "bad")
	var recs []*record.Record
	for i := 0; i < 3; i++ {
		recs = append(recs, newRecord(good, "t"))
	}
	recs = append(recs, newRecord(bad, "t"))
	require.NoError(t, db.ModifyRecords(ctx, recs, record.ScopeLocal))

	page, err := db.FetchZoneChanges(ctx, record.ScopeLocal, []gateway.ZoneConfig{
		{Zone: good},
		{Zone: bad, PreviousToken: record.Token("nope")},
	})
	require.NoError(t, err)

	require.Len(t, page.Records, 2)
	assert.Equal(t, recs[0].ID, page.Records[0].ID, "records in write order")
	assert.Equal(t, recs[1].ID, page.Records[1].ID, "records in write order")

	res := page.Results[good]
	assert.NoError(t, res.Err)
	assert.True(t, res.MoreComing)
	assert.Equal(t, record.Token("2"), res.Token)
	assert.ErrorIs(t, page.Results[bad].Err, gateway.ErrTokenReset)

	page, err = db.FetchZoneChanges(ctx, record.ScopeLocal, []gateway.ZoneConfig{{Zone: good, PreviousToken: res.Token}})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, recs[2].ID, page.Records[0].ID)
	assert.False(t, page.Results[good].MoreComing)
}

// TestTokens tests the token store
func TestTokens(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	token, err := db.DatabaseToken(ctx, record.ScopeLocal)
	require.NoError(t, err)
	assert.Nil(t, token)

	require.NoError(t, db.SetDatabaseToken(ctx, record.ScopeLocal, record.Token("7")))
	require.NoError(t, db.SetDatabaseToken(ctx, record.ScopeLocal, record.Token("8")), "overwrite")
	require.NoError(t, db.SetZoneToken(ctx, testZone, record.ScopeLocal, record.Token("3")))

	token, err = db.DatabaseToken(ctx, record.ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, record.Token("8"), token)

	token, err = db.DatabaseToken(ctx, record.ScopeShared)
	require.NoError(t, err)
	assert.Nil(t, token, "shared scope has its own token")

	token, err = db.ZoneToken(ctx, testZone, record.ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, record.Token("3"), token)

	require.NoError(t, db.SetZoneToken(ctx, testZone, record.ScopeLocal, nil))
	token, err = db.ZoneToken(ctx, testZone, record.ScopeLocal)
	require.NoError(t, err)
	assert.Nil(t, token)

	token, err = db.DatabaseToken(ctx, record.ScopeLocal)
	require.NoError(t, err)
	assert.Equal(t, record.Token("8"), token, "clearing a zone token touched the database token")
}

// TestAccount tests the always-available account
func TestAccount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, share.SetupUserPermissions(ctx, db, catalog.ListKind))
	require.NoError(t, share.SetupUserPermissions(ctx, db, catalog.ListKind), "second call")

	count, err := db.ZoneCount(ctx, record.ScopeLocal)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// TestAcceptShare_CopiesSubtree tests that accepting copies the root, its
// descendants and the share record into the shared scope
func TestAcceptShare_CopiesSubtree(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	root := newRecord(testZone, catalog.ListRecordType)
	child := newRecord(testZone, catalog.ItemRecordType)
	child.SetParent(root)
	grandchild := newRecord(testZone, "note")
	grandchild.SetParent(child)
	unrelated := newRecord(testZone, catalog.ListRecordType)
	shr := record.NewShare(root)

	all := []*record.Record{root, shr.Record, child, grandchild, unrelated}
	require.NoError(t, db.ModifyRecords(ctx, all, record.ScopeLocal))

	got, err := db.AcceptShare(ctx, record.ShareMetadata{ShareID: shr.ID, RootRecordID: &root.ID, OwnerName: "alice"})
	require.NoError(t, err)
	assert.Equal(t, shr.ID, got.ID)

	count, err := db.RecordCount(ctx, record.ScopeShared)
	require.NoError(t, err)
	assert.EqualValues(t, 4, count)

	results, err := db.FetchRecords(ctx, []record.ID{unrelated.ID}, record.ScopeShared)
	require.NoError(t, err)
	assert.Nil(t, results[0].Record, "unrelated record was copied into the shared scope")
}

// TestAcceptShare_Errors tests the failure modes of accepting a share
func TestAcceptShare_Errors(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	_, err := db.AcceptShare(ctx, record.ShareMetadata{})
	assert.ErrorIs(t, err, gateway.ErrNoRootRecord, "no root")

	missing := record.NewID(testZone)
	_, err = db.AcceptShare(ctx, record.ShareMetadata{RootRecordID: &missing})
	assert.ErrorIs(t, err, gateway.ErrNotFound, "missing root")

	unshared := newRecord(testZone, catalog.ListRecordType)
	require.NoError(t, db.ModifyRecords(ctx, []*record.Record{unshared}, record.ScopeLocal))
	_, err = db.AcceptShare(ctx, record.ShareMetadata{RootRecordID: &unshared.ID})
	assert.ErrorIs(t, err, gateway.ErrNotFound, "unshared root")
}

// TestShareLoadUpdate_EndToEnd runs the whole share flow against the store
func TestShareLoadUpdate_EndToEnd(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	logger := logging.Nop()

	registry := catalog.NewRegistry()
	client := gateway.NewClient(db, logger)
	coordinator := share.New(client, registry, logger)
	fetcher := changes.NewFetcher(db, db, logger)
	loader := materialize.NewLoader(client, fetcher, materialize.New(client, registry, logger), logger)

	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	list := catalog.NewShoppingList("Weekend", date)
	list.Add(catalog.NewShoppingItem("milk", "corner"), catalog.NewShoppingItem("bread", "bakery"))

	shr, err := coordinator.ShareItem(ctx, list, "Weekend", "shopping")
	require.NoError(t, err)
	require.NotEmpty(t, list.RecordID(), "ShareItem did not assign a record id")

	rootID := record.ID{Name: list.RecordID(), Zone: testZone}
	loaded, err := materialize.LoadShare[*catalog.ShoppingList](ctx, loader, record.ShareMetadata{
		ShareID:      shr.ID,
		RootRecordID: &rootID,
		OwnerName:    "alice",
	}, catalog.ListKind)
	require.NoError(t, err)
	assert.Equal(t, "Weekend", loaded.Name)
	assert.True(t, loaded.Date.Equal(date), "date = %v", loaded.Date)
	assert.True(t, loaded.IsRemote())
	require.Len(t, loaded.Items(), 2)

	loaded.Add(catalog.NewShoppingItem("eggs", "farm"))
	require.NoError(t, coordinator.UpdateItem(ctx, loaded))

	// root, share and three items
	count, err := db.RecordCount(ctx, record.ScopeShared)
	require.NoError(t, err)
	assert.EqualValues(t, 5, count)

	lists, err := materialize.FetchChanges[*catalog.ShoppingList](ctx, loader, record.ScopeShared, catalog.ListKind)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	var goods []string
	for _, it := range lists[0].Items() {
		goods = append(goods, it.GoodName)
	}
	assert.ElementsMatch(t, []string{"milk", "bread", "eggs"}, goods)

	// Caught up: the next fetch sees nothing
	lists, err = materialize.FetchChanges[*catalog.ShoppingList](ctx, loader, record.ScopeShared, catalog.ListKind)
	require.NoError(t, err)
	assert.Empty(t, lists)
}
