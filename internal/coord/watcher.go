package coord

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const (
	debounceDelay   = 50 * time.Millisecond
	eventBufferSize = 100
)

// LockOp classifies a lock file change.
type LockOp string

// Lock operations.
const (
	LockCreated LockOp = "created"
	LockUpdated LockOp = "updated"
	LockRemoved LockOp = "removed"
)

// LockEvent reports a change to another process's lock file.
type LockEvent struct {
	AgentID string
	Op      LockOp
}

// Watcher observes the locks directory with fsnotify so a process can react
// to other processes' claims without polling. Events are debounced per agent:
// a writer's temp-file dance collapses into one event.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan LockEvent

	mu       sync.Mutex
	closed   bool
	debounce map[string]*time.Timer // agentID -> pending delivery

	wg sync.WaitGroup
}

// NewWatcher starts watching the coordinator's locks directory.
func NewWatcher(ctx context.Context, c *Coordinator) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(c.LocksDir()); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsw,
		events:   make(chan LockEvent, eventBufferSize),
		debounce: make(map[string]*time.Timer),
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return w, nil
}

// Events returns the debounced lock event stream.
func (w *Watcher) Events() <-chan LockEvent {
	return w.events
}

// Close stops the watcher, cancels pending deliveries, and waits for the
// event loop to drain.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for id, timer := range w.debounce {
		timer.Stop()
		delete(w.debounce, id)
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// loop drains fsnotify until the context cancels or the watcher closes. The
// events channel is deliberately never closed: pending debounce timers may
// still deliver, and receivers select on their own context anyway.
func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Debug().Err(err).Msg("lock watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, lockSuffix) {
		return
	}
	agentID := strings.TrimSuffix(name, lockSuffix)

	var op LockOp
	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		op = LockRemoved
	case event.Has(fsnotify.Create):
		op = LockCreated
	case event.Has(fsnotify.Write):
		op = LockUpdated
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.debounce[agentID]; ok {
		timer.Stop()
	}
	w.debounce[agentID] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.debounce, agentID)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}

		select {
		case w.events <- LockEvent{AgentID: agentID, Op: op}:
		default:
			log.Debug().Str("agent", agentID).Msg("lock event dropped, buffer full")
		}
	})
}
