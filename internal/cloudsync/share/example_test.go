package share_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/db"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/share"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// This example shares a list with two items from a fresh database. The list,
// its items and the share grant are stored as four records.
func ExampleCoordinator_ShareItem() {
	dir, err := os.MkdirTemp("", "zonesync-example-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	store, err := db.Open(filepath.Join(dir, "zonesync.db"), logging.Nop())
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	if err := store.InitSchemaContext(ctx); err != nil {
		log.Fatal(err)
	}

	coordinator := share.New(gateway.NewClient(store, logging.Nop()), catalog.NewRegistry(), logging.Nop())

	list := catalog.NewShoppingList("Weekend", time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC))
	list.Add(catalog.NewShoppingItem("Apples", "Market"), catalog.NewShoppingItem("Coffee", ""))

	shr, err := coordinator.ShareItem(ctx, list, "Weekend plans", catalog.ShareType)
	if err != nil {
		log.Fatal(err)
	}

	count, err := store.RecordCount(ctx, record.ScopeLocal)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(shr.Title())
	fmt.Println(shr.PublicPermission())
	fmt.Println("records:", count)
	// Output:
	// Weekend plans
	// readWrite
	// records: 4
}
