package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/catalog"
)

// EventOp is what happened to a list file.
type EventOp int

const (
	OpCreate EventOp = iota
	OpModify
	// OpDelete covers removal and renaming away; a rename target shows up
	// as its own OpCreate.
	OpDelete
)

var opNames = [...]string{OpCreate: "create", OpModify: "modify", OpDelete: "delete"}

func (op EventOp) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "unknown"
	}
	return opNames[op]
}

// fsnotify ops in the order they are checked; a combined event takes the
// first match.
var opTable = []struct {
	fs fsnotify.Op
	op EventOp
}{
	{fsnotify.Create, OpCreate},
	{fsnotify.Write, OpModify},
	{fsnotify.Remove, OpDelete},
	{fsnotify.Rename, OpDelete},
}

// FileEvent is a change to a list file in the watched directory. Path is
// absolute.
type FileEvent struct {
	Path string
	Op   EventOp
}

// FileWatcher reports list files appearing or changing in one directory.
// Subdirectories, temp files and hidden files are ignored. A watcher can be
// started once; Stop releases it for good.
type FileWatcher struct {
	fsw  *fsnotify.Watcher
	out  chan FileEvent
	errs chan error

	mu     sync.Mutex
	dir    string
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewFileWatcher creates an idle watcher; call Start to begin watching.
func NewFileWatcher() (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		fsw:  fsw,
		out:  make(chan FileEvent, 100),
		errs: make(chan error, 10),
	}, nil
}

// Start watches dir until Stop is called.
func (fw *FileWatcher) Start(dir string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	switch {
	case fw.closed:
		return fmt.Errorf("watcher is closed")
	case fw.cancel != nil:
		return fmt.Errorf("already watching %s", fw.dir)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	if err := fw.fsw.Add(abs); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}
	fw.dir = abs

	ctx, cancel := context.WithCancel(context.Background())
	fw.cancel = cancel
	fw.wg.Add(1)
	go fw.run(ctx)
	return nil
}

// Stop ends watching and closes the Events and Errors channels once the
// event loop has exited. Further calls do nothing.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	cancel := fw.cancel
	fw.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := fw.fsw.Close()
	fw.wg.Wait()

	close(fw.out)
	close(fw.errs)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (fw *FileWatcher) Events() <-chan FileEvent { return fw.out }

func (fw *FileWatcher) Errors() <-chan error { return fw.errs }

// IsRunning reports whether the watcher has been started and not stopped.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.cancel != nil && !fw.closed
}

func (fw *FileWatcher) run(ctx context.Context) {
	defer fw.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case raw, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			ev, keep := fw.convertEvent(raw)
			if !keep {
				continue
			}
			select {
			case fw.out <- ev:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			select {
			case fw.errs <- err:
			case <-ctx.Done():
				return
			}
		}
	}
}

// convertEvent keeps events for list files directly inside the watched
// directory and maps their op.
func (fw *FileWatcher) convertEvent(raw fsnotify.Event) (FileEvent, bool) {
	if !catalog.IsListFile(filepath.Base(raw.Name)) {
		return FileEvent{}, false
	}
	path, err := filepath.Abs(raw.Name)
	if err != nil || filepath.Dir(path) != fw.dir {
		return FileEvent{}, false
	}

	for _, entry := range opTable {
		if raw.Has(entry.fs) {
			return FileEvent{Path: path, Op: entry.op}, true
		}
	}
	return FileEvent{}, false
}
