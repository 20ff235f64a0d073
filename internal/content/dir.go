package content

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/abhisek/instructoria/internal/lesson"
	"github.com/abhisek/instructoria/internal/logger"
)

const (
	lessonExt     = ".json"
	watchDebounce = 250 * time.Millisecond
)

// Dir serves lessons from <root>/<id>.json. Parsed documents are cached
// until the file changes (see Watch) or Invalidate is called.
type Dir struct {
	root     string
	log      *logger.Logger
	group    singleflight.Group
	debounce time.Duration
	readFile func(string) ([]byte, error)

	mu    sync.RWMutex
	cache map[string]*lesson.Content
	// gen counts invalidations per id. A load only caches its result if
	// no invalidation happened since it started reading.
	gen map[string]uint64
}

// NewDir returns a Dir rooted at root.
func NewDir(root string, log *logger.Logger) *Dir {
	if log == nil {
		log = logger.Nop()
	}
	return &Dir{
		root:     root,
		log:      log,
		debounce: watchDebounce,
		readFile: os.ReadFile,
		cache:    make(map[string]*lesson.Content),
		gen:      make(map[string]uint64),
	}
}

// Root returns the directory being served.
func (d *Dir) Root() string { return d.root }

func (d *Dir) Get(ctx context.Context, id string) (*lesson.Content, error) {
	if !validID(id) {
		return nil, fmt.Errorf("lesson %q: %w", id, lesson.ErrNotFound)
	}

	d.mu.RLock()
	doc, ok := d.cache[id]
	d.mu.RUnlock()
	if ok {
		return doc, nil
	}

	v, err, _ := d.group.Do(id, func() (any, error) {
		return d.load(id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*lesson.Content), nil
}

func (d *Dir) load(id string) (*lesson.Content, error) {
	d.mu.RLock()
	gen := d.gen[id]
	d.mu.RUnlock()

	path := filepath.Join(d.root, id+lessonExt)
	data, err := d.readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("lesson %q: %w", id, lesson.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read lesson %q: %w", id, err)
	}

	doc, err := lesson.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lesson %q: %w", id, err)
	}

	d.mu.Lock()
	fresh := d.gen[id] == gen
	if fresh {
		d.cache[id] = doc
	}
	d.mu.Unlock()
	d.log.Debug("content.loaded", "lesson_id", id, "activities", doc.TotalActivities(), "cached", fresh)
	return doc, nil
}

// List returns the ids of every lesson file, sorted.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != lessonExt {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), lessonExt))
	}
	slices.Sort(ids)
	return ids, nil
}

// Invalidate drops the cached document for id. A load already in flight
// still answers its callers but does not repopulate the cache.
func (d *Dir) Invalidate(id string) {
	d.mu.Lock()
	delete(d.cache, id)
	d.gen[id]++
	d.mu.Unlock()
	d.group.Forget(id)
}

// Watch invalidates cached lessons when their files change. Bursts of
// events for one file (editors often write several times per save) are
// collapsed: a lesson is invalidated once its events have been quiet for
// the debounce window. It blocks until ctx is cancelled.
func (d *Dir) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(d.root); err != nil {
		return fmt.Errorf("watch %s: %w", d.root, err)
	}
	d.log.Info("content.watching", "dir", d.root)

	pending := newDebouncer(d.debounce)
	tick := time.NewTicker(max(d.debounce/4, 10*time.Millisecond))
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			for _, id := range pending.settled(now) {
				d.Invalidate(id)
				d.log.Info("content.invalidated", "lesson_id", id)
			}
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(ev.Name) != lessonExt {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			id := strings.TrimSuffix(filepath.Base(ev.Name), lessonExt)
			pending.touch(id, time.Now())
			d.log.Debug("content.changed", "lesson_id", id, "op", ev.Op.String())
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.log.Warn("content.watch_error", "error", err)
		}
	}
}

// debouncer tracks the last event time per lesson id.
type debouncer struct {
	wait    time.Duration
	pending map[string]time.Time
}

func newDebouncer(wait time.Duration) *debouncer {
	return &debouncer{wait: wait, pending: make(map[string]time.Time)}
}

func (b *debouncer) touch(id string, at time.Time) {
	b.pending[id] = at
}

// settled removes and returns, sorted, the ids whose last event is at least
// wait old at now.
func (b *debouncer) settled(now time.Time) []string {
	var ids []string
	for id, at := range b.pending {
		if now.Sub(at) >= b.wait {
			ids = append(ids, id)
			delete(b.pending, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// validID rejects ids that would escape the lesson directory.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}
