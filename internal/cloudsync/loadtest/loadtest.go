// Package loadtest simulates many devices pushing and reading shopping lists
// against one record store at the same time.
//
// Each simulated device pushes its own lists through the share coordinator
// while also reading records back. Afterwards the change feed is read once
// to check that every pushed list and item arrived exactly once.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/changes"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/db"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/gateway"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/materialize"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/parallel"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/share"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// Options controls a load test run.
type Options struct {
	// Devices is the number of concurrent writers.
	Devices int
	// ListsPerDevice is how many lists each device pushes.
	ListsPerDevice int
	// ItemsPerList is the number of items on each list.
	ItemsPerList int
	// ReadsPerPush is how many record reads a device issues after each push.
	ReadsPerPush int
	// PageSize overrides the store's change page size when positive.
	PageSize int
}

// DefaultOptions returns a small run suitable for a laptop.
func DefaultOptions() Options {
	return Options{
		Devices:        10,
		ListsPerDevice: 10,
		ItemsPerList:   5,
		ReadsPerPush:   2,
	}
}

// Validate checks that every count is usable.
func (o Options) Validate() error {
	if o.Devices < 1 {
		return fmt.Errorf("devices must be positive")
	}
	if o.ListsPerDevice < 1 {
		return fmt.Errorf("lists per device must be positive")
	}
	if o.ItemsPerList < 0 {
		return fmt.Errorf("items per list cannot be negative")
	}
	if o.ReadsPerPush < 0 {
		return fmt.Errorf("reads per push cannot be negative")
	}
	return nil
}

// LatencyStats captures the latency distribution of one operation.
type LatencyStats struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Result is the outcome of a run.
type Result struct {
	Options  Options       `json:"options"`
	Elapsed  time.Duration `json:"elapsed"`
	Pushes   LatencyStats  `json:"pushes"`
	Reads    LatencyStats  `json:"reads"`
	Fetch    time.Duration `json:"fetch"`
	Lists    int           `json:"lists"`
	Items    int           `json:"items"`
	Versions int64         `json:"versions"`
}

// PushesPerSecond returns the push throughput of the run.
func (r *Result) PushesPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Pushes.Count) / r.Elapsed.Seconds()
}

// Run opens a fresh store at dbPath and runs the load test against it. The
// database should not exist yet; existing lists would skew the final count.
func Run(ctx context.Context, dbPath string, opts Options, logger *zerolog.Logger) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrDefault(logger, "loadtest")

	store, err := db.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if opts.PageSize > 0 {
		store.SetPageSize(opts.PageSize)
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := share.SetupUserPermissions(ctx, store, catalog.ListKind); err != nil {
		return nil, err
	}

	registry := catalog.NewRegistry()
	client := gateway.NewClient(store, logger)
	coordinator := share.New(client, registry, logger)

	var mu sync.Mutex
	var pushes, reads []time.Duration
	observe := func(dst *[]time.Duration, d time.Duration) {
		mu.Lock()
		*dst = append(*dst, d)
		mu.Unlock()
	}

	zone := record.NewZoneID("", catalog.ZoneName)
	start := time.Now()
	err = parallel.Each(ctx, devices(opts.Devices), func(ctx context.Context, device int) error {
		for n := 0; n < opts.ListsPerDevice; n++ {
			list := generateList(device, n, opts.ItemsPerList)

			began := time.Now()
			if err := coordinator.UpdateItem(ctx, list); err != nil {
				return fmt.Errorf("device %d push %d failed: %w", device, n, err)
			}
			observe(&pushes, time.Since(began))

			id := record.ID{Name: list.RecordID(), Zone: zone}
			for r := 0; r < opts.ReadsPerPush; r++ {
				began := time.Now()
				if _, err := client.FetchRecords(ctx, []record.ID{id}, record.ScopeLocal); err != nil {
					return fmt.Errorf("device %d read %d failed: %w", device, n, err)
				}
				observe(&reads, time.Since(began))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	fetcher := changes.NewFetcher(store, store, logger)
	loader := materialize.NewLoader(client, fetcher, materialize.New(client, registry, logger), logger)

	began := time.Now()
	lists, err := materialize.FetchChanges[*catalog.ShoppingList](ctx, loader, record.ScopeLocal, catalog.ListKind)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch changes: %w", err)
	}
	fetch := time.Since(began)

	version, err := store.Version(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Options:  opts,
		Elapsed:  elapsed,
		Pushes:   computeLatencyStats(pushes),
		Reads:    computeLatencyStats(reads),
		Fetch:    fetch,
		Lists:    len(lists),
		Versions: version,
	}
	for _, l := range lists {
		res.Items += len(l.Items())
	}

	if err := res.verify(); err != nil {
		return res, err
	}
	logger.Info().Int("lists", res.Lists).Dur("elapsed", elapsed).Msg("Load test complete")
	return res, nil
}

// verify checks that the change feed returned every pushed list and item.
func (r *Result) verify() error {
	wantLists := r.Options.Devices * r.Options.ListsPerDevice
	if r.Lists != wantLists {
		return fmt.Errorf("change feed returned %d lists, want %d", r.Lists, wantLists)
	}
	if wantItems := wantLists * r.Options.ItemsPerList; r.Items != wantItems {
		return fmt.Errorf("change feed returned %d items, want %d", r.Items, wantItems)
	}
	return nil
}

// devices numbers the simulated devices from 0.
func devices(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func generateList(device, n, items int) *catalog.ShoppingList {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := catalog.NewShoppingList(fmt.Sprintf("device-%03d list-%03d", device, n), base.AddDate(0, 0, n))
	stores := []string{"Market", "Bakery", ""}
	for i := 0; i < items; i++ {
		list.Add(catalog.NewShoppingItem(fmt.Sprintf("good-%d", i), stores[i%len(stores)]))
	}
	return list
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
	}
}

// Print formats the result for humans.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Devices: %d, lists per device: %d, items per list: %d\n",
		r.Options.Devices, r.Options.ListsPerDevice, r.Options.ItemsPerList)
	fmt.Fprintf(w, "Elapsed: %v (%.1f pushes/s)\n", r.Elapsed.Round(time.Millisecond), r.PushesPerSecond())
	r.Pushes.print(w, "Push")
	r.Reads.print(w, "Read")
	fmt.Fprintf(w, "Change feed: %d lists, %d items in %v\n", r.Lists, r.Items, r.Fetch.Round(time.Millisecond))
	fmt.Fprintf(w, "Store version: %d\n", r.Versions)
}

func (s LatencyStats) print(w io.Writer, name string) {
	if s.Count == 0 {
		fmt.Fprintf(w, "%s latency: no samples\n", name)
		return
	}
	fmt.Fprintf(w, "%s latency (%d): min %v  p50 %v  mean %v  p95 %v  p99 %v  max %v\n",
		name, s.Count, s.Min, s.P50, s.Mean, s.P95, s.P99, s.Max)
}
