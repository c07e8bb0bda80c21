// Package daemon keeps a pair of list directories in sync with the backend.
//
// The daemon:
//  1. Polls the change feeds of every configured scope and writes the
//     fetched lists into the inbox directory
//  2. Watches the outbox directory and pushes every list file written there,
//     then moves it to the inbox with its assigned ids
//  3. Reports what it did to an optional Notifier
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/item"
	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// Fetcher reads changed items from the backend. *materialize.Loader
// implements it.
type Fetcher interface {
	FetchChanges(ctx context.Context, scope record.Scope, kind *item.Kind) ([]item.Item, error)
}

// Pusher uploads item trees. *share.Coordinator implements it.
type Pusher interface {
	UpdateItem(ctx context.Context, it item.Item) error
	ShareItem(ctx context.Context, it item.Item, title, shareType string) (*record.Share, error)
}

// Notifier receives daemon activity. Implementations must not block.
type Notifier interface {
	SyncComplete(scope record.Scope, lists int)
	ItemPushed(id, name string)
	ShareCreated(id, shareID, title string)
	SyncError(op string, err error)
}

// Config holds configuration for the daemon.
type Config struct {
	// PollInterval is how often the change feeds are read
	PollInterval time.Duration

	// DebounceInterval is how long a changed outbox file must stay quiet
	// before it is pushed
	DebounceInterval time.Duration

	// Scopes lists the databases to poll
	Scopes []record.Scope

	// Logger for daemon activity
	Logger *zerolog.Logger

	// Notifier is told about every poll and push; may be nil
	Notifier Notifier
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     30 * time.Second,
		DebounceInterval: 200 * time.Millisecond,
		Scopes:           []record.Scope{record.ScopeLocal, record.ScopeShared},
	}
}

// Daemon orchestrates change polling and outbox pushes.
type Daemon struct {
	fetcher   Fetcher
	pusher    Pusher
	inboxDir  string
	outboxDir string
	config    *Config
	logger    *zerolog.Logger
	notifier  Notifier

	watcher       *FileWatcher
	changeQueue   map[string]time.Time // path -> last event
	changeQueueMu sync.Mutex

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a daemon with the default configuration.
func New(fetcher Fetcher, pusher Pusher, inboxDir, outboxDir string) (*Daemon, error) {
	return NewWithConfig(fetcher, pusher, inboxDir, outboxDir, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(fetcher Fetcher, pusher Pusher, inboxDir, outboxDir string, config *Config) (*Daemon, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if pusher == nil {
		return nil, fmt.Errorf("pusher cannot be nil")
	}
	if inboxDir == "" {
		return nil, fmt.Errorf("inboxDir cannot be empty")
	}
	if outboxDir == "" {
		return nil, fmt.Errorf("outboxDir cannot be empty")
	}
	if filepath.Clean(inboxDir) == filepath.Clean(outboxDir) {
		return nil, fmt.Errorf("inboxDir and outboxDir must differ")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive")
	}

	for _, dir := range []string{inboxDir, outboxDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	notifier := config.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	return &Daemon{
		fetcher:     fetcher,
		pusher:      pusher,
		inboxDir:    inboxDir,
		outboxDir:   outboxDir,
		config:      config,
		logger:      logging.OrDefault(config.Logger, "daemon"),
		notifier:    notifier,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
	}, nil
}

// Start runs the daemon until ctx is cancelled or Stop is called.
//
// The daemon will:
//  1. Push every list already waiting in the outbox
//  2. Poll all configured scopes once
//  3. Start watching the outbox
//  4. Poll periodically and push outbox changes after debouncing
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.logger.Info().Str("inbox", d.inboxDir).Str("outbox", d.outboxDir).Msg("Starting daemon")

	if err := d.PushPending(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Some outbox lists were not pushed")
	}
	if err := d.PollOnce(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("Initial poll failed")
	}

	if err := d.watcher.Start(d.outboxDir); err != nil {
		cancel()
		return fmt.Errorf("failed to watch outbox: %w", err)
	}

	d.wg.Add(3)
	go d.watchFileEvents(ctx)
	go d.processChangeQueue(ctx)
	go d.pollLoop(ctx)

	<-ctx.Done()
	d.logger.Info().Msg("Shutdown signal received")
	return d.Stop()
}

// Stop gracefully shuts down the daemon. It is safe to call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.logger.Info().Msg("Stopping daemon")
		if d.cancel != nil {
			d.cancel()
		}
		if err := d.watcher.Stop(); err != nil {
			d.logger.Warn().Err(err).Msg("Error closing watcher")
		}
		d.wg.Wait()
		d.logger.Info().Msg("Daemon stopped")
	})
	return nil
}

// PollOnce reads the change feeds of every configured scope and writes the
// fetched lists into the inbox. A failing scope does not stop the others.
func (d *Daemon) PollOnce(ctx context.Context) error {
	var errs []error
	for _, scope := range d.config.Scopes {
		n, err := d.pollScope(ctx, scope)
		if err != nil {
			d.notifier.SyncError("fetch", err)
			errs = append(errs, fmt.Errorf("scope %s: %w", scope, err))
			continue
		}
		d.notifier.SyncComplete(scope, n)
	}
	return errors.Join(errs...)
}

func (d *Daemon) pollScope(ctx context.Context, scope record.Scope) (int, error) {
	items, err := d.fetcher.FetchChanges(ctx, scope, catalog.ListKind)
	if err != nil {
		return 0, err
	}

	for _, it := range items {
		list, err := item.As[*catalog.ShoppingList](it)
		if err != nil {
			return 0, err
		}
		path, err := catalog.WriteListFile(d.inboxDir, catalog.FromList(list))
		if err != nil {
			return 0, err
		}
		d.logger.Debug().Stringer("scope", scope).Str("file", path).Msg("Wrote fetched list")
	}

	if len(items) > 0 {
		d.logger.Info().Stringer("scope", scope).Int("lists", len(items)).Msg("Fetched changes")
	}
	return len(items), nil
}

// PushPending pushes every list file currently in the outbox.
func (d *Daemon) PushPending(ctx context.Context) error {
	entries, err := os.ReadDir(d.outboxDir)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !catalog.IsListFile(entry.Name()) {
			continue
		}
		if err := d.PushFile(ctx, filepath.Join(d.outboxDir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PushFile uploads the list stored at path, sharing it first if the file
// asks for it. On success the list is written to the inbox with its assigned
// ids and path is removed. On failure path is left in place.
func (d *Daemon) PushFile(ctx context.Context, path string) error {
	f, err := catalog.ReadListFile(path)
	if err != nil {
		d.notifier.SyncError("push", err)
		return err
	}
	list := f.ToList()

	if f.ShareTitle != "" {
		shr, err := d.pusher.ShareItem(ctx, list, f.ShareTitle, catalog.ShareType)
		if err != nil {
			err = fmt.Errorf("failed to share %s: %w", path, err)
			d.notifier.SyncError("share", err)
			return err
		}
		d.notifier.ShareCreated(list.RecordID(), shr.ID.Name, f.ShareTitle)
	} else {
		if err := d.pusher.UpdateItem(ctx, list); err != nil {
			err = fmt.Errorf("failed to push %s: %w", path, err)
			d.notifier.SyncError("push", err)
			return err
		}
	}
	d.notifier.ItemPushed(list.RecordID(), list.Name)

	written, err := catalog.WriteListFile(d.inboxDir, catalog.FromList(list))
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pushed file %s: %w", path, err)
	}

	d.logger.Info().Str("file", filepath.Base(path)).Str("id", list.RecordID()).Str("inbox", written).Msg("Pushed list")
	return nil
}

func (d *Daemon) watchFileEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			// Deletes include our own removal after a push.
			if event.Op == OpDelete {
				continue
			}
			d.logger.Debug().Stringer("op", event.Op).Str("file", event.Path).Msg("File event")
			d.queueChange(event.Path)

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

func (d *Daemon) processChangeQueue(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges(ctx)
		}
	}
}

// processPendingChanges pushes files that have been quiet for long enough.
func (d *Daemon) processPendingChanges(ctx context.Context) {
	now := time.Now()

	d.changeQueueMu.Lock()
	var due []string
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		due = append(due, path)
		delete(d.changeQueue, path)
	}
	d.changeQueueMu.Unlock()

	for _, path := range due {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := d.PushFile(ctx, path); err != nil {
			d.logger.Error().Err(err).Str("file", path).Msg("Push failed")
		}
	}
}

func (d *Daemon) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := d.PollOnce(ctx); err != nil {
				d.logger.Error().Err(err).Msg("Poll failed")
			}
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) SyncComplete(record.Scope, int) {}
func (nopNotifier) ItemPushed(string, string) {}
func (nopNotifier) ShareCreated(string, string, string) {}
func (nopNotifier) SyncError(string, error) {}
