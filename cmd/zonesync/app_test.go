package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/materialize"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/share"
	"github.com/mschirtzinger/zonesync/internal/config"
)

func useTempConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = config.Default()
	cfg.DataDir = t.TempDir()
	t.Cleanup(func() { cfg = prev })
}

func TestOpenApp_PushThenFetch(t *testing.T) {
	useTempConfig(t)
	ctx := context.Background()

	a, err := openApp(ctx)
	require.NoError(t, err)
	defer a.close()

	require.NoError(t, share.SetupUserPermissions(ctx, a.db, catalog.ListKind))

	list := catalog.NewShoppingList("Weekend", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	list.Add(catalog.NewShoppingItem("Apples", "Market"), catalog.NewShoppingItem("Coffee", ""))
	require.NoError(t, a.coordinator.UpdateItem(ctx, list))
	require.NotEmpty(t, list.RecordID())

	lists, err := materialize.FetchChanges[*catalog.ShoppingList](ctx, a.loader, record.ScopeLocal, catalog.ListKind)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "Weekend", lists[0].Name)
	assert.Len(t, lists[0].Items(), 2)

	again, err := materialize.FetchChanges[*catalog.ShoppingList](ctx, a.loader, record.ScopeLocal, catalog.ListKind)
	require.NoError(t, err)
	assert.Empty(t, again, "tokens persist between fetches")
}

func TestOpenApp_ReopenKeepsTokens(t *testing.T) {
	useTempConfig(t)
	ctx := context.Background()

	a, err := openApp(ctx)
	require.NoError(t, err)
	list := catalog.NewShoppingList("Party", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	require.NoError(t, a.coordinator.UpdateItem(ctx, list))
	_, err = a.loader.FetchChanges(ctx, record.ScopeLocal, catalog.ListKind)
	require.NoError(t, err)
	a.close()

	b, err := openApp(ctx)
	require.NoError(t, err)
	defer b.close()

	items, err := b.loader.FetchChanges(ctx, record.ScopeLocal, catalog.ListKind)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"init", "push", "share", "accept", "fetch", "status", "daemon", "dashboard", "config", "loadtest", "import", "export"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.NotEmpty(t, cmd.GroupID, "%s has no help group", name)
	}
}
