package loader

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of change observed on a watched document.
type Op int

const (
	Created Op = iota + 1
	Modified
	Removed
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event is a change to a document with a supported extension.
type Event struct {
	Path string
	Op   Op
}

// DefaultDebounce is how long a path must stay quiet before its change is
// reported.
const DefaultDebounce = 300 * time.Millisecond

// Watcher reports changes to loadable documents in a directory. Bursts of
// events on one path, such as the create and write of a single save, are
// coalesced into one event.
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	log      *slog.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher that filters events by l's extensions.
func NewWatcher(l *Loader, log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{watcher: w, loader: l, log: log, debounce: DefaultDebounce}, nil
}

type pending struct {
	op   Op
	last time.Time
}

// merge folds a new op into the one still waiting for the same path.
func merge(prev, next Op) Op {
	switch {
	case next == Removed:
		return Removed
	case prev == Created:
		return Created
	case prev == Removed:
		return Modified
	}
	return next
}

// Watch starts monitoring dir. The returned channel closes when ctx is done
// or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan Event, 100)
	go func() {
		defer close(events)
		waiting := map[string]pending{}
		tick := time.NewTicker(w.debounce / 4)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.loader.Supports(ev.Name) {
					continue
				}
				var op Op
				switch {
				case ev.Op&fsnotify.Create == fsnotify.Create:
					op = Created
				case ev.Op&fsnotify.Write == fsnotify.Write:
					op = Modified
				case ev.Op&fsnotify.Remove == fsnotify.Remove:
					op = Removed
				default:
					continue
				}
				if p, ok := waiting[ev.Name]; ok {
					op = merge(p.op, op)
				}
				waiting[ev.Name] = pending{op: op, last: time.Now()}
			case now := <-tick.C:
				for _, path := range slices.Sorted(maps.Keys(waiting)) {
					p := waiting[path]
					if now.Sub(p.last) < w.debounce {
						continue
					}
					delete(waiting, path)
					select {
					case events <- Event{Path: path, Op: p.op}:
					case <-ctx.Done():
						return
					}
				}
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.WarnContext(ctx, "watch error", "dir", dir, "error", err)
			}
		}
	}()
	return events, nil
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}
