package dir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/aretw0/silo/pkg/core"
)

// DebounceInterval coalesces bursts of file events for the same document.
const DebounceInterval = 50 * time.Millisecond

// Watch streams changes to documents whose identity matches pattern
// (doublestar syntax, empty means every document). The channel is closed
// when ctx ends.
func (c *Collection) Watch(ctx context.Context, pattern string) (<-chan core.Change, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, &core.InvalidArgumentError{Arg: "pattern", Reason: fmt.Sprintf("invalid pattern %q", pattern)}
	}
	if _, err := os.Stat(c.path); err != nil {
		if c.conn.config.ReadOnly {
			return nil, fmt.Errorf("watch %s: %w", c.name, err)
		}
		if err := os.MkdirAll(c.path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create collection directory: %w", err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.path, err)
	}

	known := make(map[string]bool)
	if entries, err := os.ReadDir(c.path); err == nil {
		for _, de := range entries {
			known[de.Name()] = true
		}
	}

	out := make(chan core.Change)
	w := &watchWorker{
		coll:      c,
		pattern:   pattern,
		watcher:   watcher,
		out:       out,
		done:      make(chan struct{}),
		known:     known,
		debouncer: newDebouncer(DebounceInterval),
	}
	c.conn.setWatcherActive(true)

	logger := c.conn.config.Logger
	lifecycle.Go(ctx, w.run, lifecycle.WithErrorHandler(func(err error) {
		logger.Error("watcher stopped", "collection", c.name, "error", err)
	}))
	return out, nil
}

type watchWorker struct {
	coll      *Collection
	pattern   string
	watcher   *fsnotify.Watcher
	out       chan core.Change
	done      chan struct{}
	debouncer *debouncer

	// files present in the directory; atomic rewrites surface as creates,
	// so a create of a known file is reported as a modification
	known map[string]bool
}

func (w *watchWorker) run(ctx context.Context) error {
	defer close(w.out)
	defer w.coll.conn.setWatcherActive(false)
	defer w.watcher.Close()

	err := w.loop(ctx)

	// in-flight timers may still send; wait for them before closing out
	close(w.done)
	w.debouncer.stopAndWait()
	return err
}

func (w *watchWorker) loop(ctx context.Context) error {
	logger := w.coll.conn.config.Logger
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			logger.Debug("event received", "name", event.Name, "op", event.Op.String())
			change, ok := w.translate(event)
			if !ok {
				continue
			}
			w.debouncer.add(change.ID, func() {
				change.Timestamp = time.Now().Unix()
				select {
				case w.out <- change:
				case <-w.done:
				case <-ctx.Done():
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Error("fsnotify error", "error", err)
		}
	}
}

// translate maps a file event to a document change. Temp files, foreign
// extensions and identities outside the pattern are dropped.
func (w *watchWorker) translate(event fsnotify.Event) (core.Change, bool) {
	base := filepath.Base(event.Name)
	if isTempFile(base) || filepath.Ext(base) != w.coll.ext() {
		return core.Change{}, false
	}

	var kind core.ChangeType
	switch {
	case event.Has(fsnotify.Create):
		kind = core.ChangeCreate
		if w.known[base] {
			kind = core.ChangeModify
		}
		w.known[base] = true
	case event.Has(fsnotify.Write):
		kind = core.ChangeModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind = core.ChangeDelete
		delete(w.known, base)
	default:
		return core.Change{}, false
	}

	id, err := decodeName(strings.TrimSuffix(base, w.coll.ext()))
	if err != nil {
		w.coll.conn.config.Logger.Debug("undecodable file name", "path", event.Name, "error", err)
		return core.Change{}, false
	}
	if ok, _ := doublestar.Match(w.pattern, id); !ok {
		return core.Change{}, false
	}
	return core.Change{Type: kind, ID: id}, true
}

// debouncer runs the last function added per key once the key has been
// quiet for delay.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timers  map[string]*time.Timer
	seq     map[string]uint64
	stopped bool
	wg      sync.WaitGroup
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
		seq:    make(map[string]uint64),
	}
}

func (d *debouncer) add(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[key]; ok && t.Stop() {
		d.wg.Done()
	}
	d.seq[key]++
	gen := d.seq[key]
	d.wg.Add(1)
	d.timers[key] = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.seq[key] == gen {
			delete(d.timers, key)
			delete(d.seq, key)
		}
		d.mu.Unlock()
		fn()
	})
}

// stopAndWait drops pending calls and waits for running ones.
func (d *debouncer) stopAndWait() {
	d.mu.Lock()
	d.stopped = true
	for key, t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
