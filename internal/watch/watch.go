// Package watch turns filesystem activity under the scan roots into
// debounced, single-flight sync cycles.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vmunix/nfosync/internal/events"
	"github.com/vmunix/nfosync/internal/lock"
	"github.com/vmunix/nfosync/internal/nfo"
)

// ErrRootRemoved is returned by Run when a watched root disappears.
var ErrRootRemoved = errors.New("watched directory removed")

// Triggers passed to the cycle function.
const (
	TriggerInitial = "initial"
	TriggerWatch   = "watch"
)

// State is the coordinator's externally visible state.
type State string

const (
	StateIdle            State = "idle"
	StateDebouncePending State = "debounce-pending"
	StateRunning         State = "running"
)

// Cycle runs one full sync. Errors are logged and do not stop the watch.
type Cycle func(ctx context.Context, trigger string) error

// Options configures a Coordinator.
type Options struct {
	Roots    []string
	Debounce time.Duration
	Lock     lock.TryLocker // defaults to an in-process lock
	Events   *events.Bus
}

// Coordinator owns the debounce timer and the single-flight lock.
type Coordinator struct {
	roots    []string
	debounce time.Duration
	lock     lock.TryLocker
	bus      *events.Bus
	cycle    Cycle
	log      *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	timer   *time.Timer
	gen     uint64
	pending int // qualifying events coalesced into the armed timer

	running atomic.Bool
	dropped atomic.Int64
	cycles  sync.WaitGroup
}

// New creates a coordinator. Nothing is watched until Run.
func New(opts Options, cycle Cycle, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if opts.Lock == nil {
		opts.Lock = lock.NewLocal()
	}
	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		roots = append(roots, filepath.Clean(r))
	}
	return &Coordinator{
		roots:    roots,
		debounce: opts.Debounce,
		lock:     opts.Lock,
		bus:      opts.Events,
		cycle:    cycle,
		log:      log.With("component", "watch"),
		ctx:      context.Background(),
	}
}

// State reports whether a cycle is running, a trigger is armed, or neither.
func (c *Coordinator) State() State {
	if c.running.Load() {
		return StateRunning
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		return StateDebouncePending
	}
	return StateIdle
}

// Dropped returns how many fired triggers found a cycle already running.
func (c *Coordinator) Dropped() int64 {
	return c.dropped.Load()
}

// Run watches the roots until ctx is canceled. It runs one cycle
// immediately, then one per quiet period after qualifying events.
func (c *Coordinator) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for _, root := range c.roots {
		if err := c.addTree(watcher, root); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	defer c.stop()

	c.log.Info("watching for sidecar changes", "roots", c.roots, "debounce", c.debounce)
	c.cycles.Add(1)
	go func() {
		defer c.cycles.Done()
		c.runCycle(ctx, TriggerInitial, 0)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if err := c.handle(watcher, ev); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.log.Error("watcher error", "error", err)
		}
	}
}

func (c *Coordinator) handle(watcher *fsnotify.Watcher, ev fsnotify.Event) error {
	name := filepath.Clean(ev.Name)

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		for _, root := range c.roots {
			if name == root {
				return fmt.Errorf("%w: %s", ErrRootRemoved, root)
			}
		}
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := c.addTree(watcher, name); err != nil {
				c.log.Warn("failed to watch new directory", "path", name, "error", err)
			}
			// a directory moved in may already hold sidecars
			c.schedule(name)
			return nil
		}
	}

	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
		c.Notify(name)
	}
	return nil
}

// Notify reports activity on path. Only sidecar paths arm the timer.
func (c *Coordinator) Notify(path string) {
	if !nfo.IsSidecar(path) {
		return
	}
	c.schedule(path)
}

// schedule replaces the armed timer so the cycle starts one quiet period
// after the last event.
func (c *Coordinator) schedule(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	c.pending++
	gen := c.gen
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
	c.log.Debug("change detected", "path", path, "pending", c.pending)
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.timer == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	pending := c.pending
	c.pending = 0
	ctx := c.ctx
	c.cycles.Add(1)
	c.mu.Unlock()

	defer c.cycles.Done()
	if ctx.Err() != nil {
		return
	}
	c.runCycle(ctx, TriggerWatch, pending)
}

func (c *Coordinator) runCycle(ctx context.Context, trigger string, pending int) {
	ok, err := c.lock.TryLock()
	if err != nil {
		c.log.Error("failed to acquire sync lock", "error", err)
		return
	}
	if !ok {
		c.dropped.Add(1)
		c.log.Info("sync already running, dropping trigger", "trigger", trigger, "pending", pending)
		c.bus.Publish(ctx, &events.WatchDropped{
			BaseEvent: events.NewBaseEvent(events.EventWatchDropped, events.EntityRun, trigger),
			Pending:   pending,
		})
		return
	}
	defer func() {
		if err := c.lock.Unlock(); err != nil {
			c.log.Error("failed to release sync lock", "error", err)
		}
	}()

	c.running.Store(true)
	defer c.running.Store(false)

	if err := c.cycle(ctx, trigger); err != nil && ctx.Err() == nil {
		c.log.Error("sync cycle failed", "trigger", trigger, "error", err)
	}
}

// stop disarms the timer and waits for running cycles to return.
func (c *Coordinator) stop() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.mu.Unlock()
	c.cycles.Wait()
}

// addTree watches dir and every directory below it.
func (c *Coordinator) addTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			c.log.Warn("skipping unreadable directory", "path", path, "error", err)
			return fs.SkipDir
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
