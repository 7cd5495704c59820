package watcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/armon/go-radix"
)

// registry maps each settling path to its pending change. It is a patricia tree so
// that everything under a directory is a single prefix walk.
//
// registry has no lock of its own; the owning Watcher's mutex guards every call.
type registry struct {
	quiet time.Duration
	tree  *radix.Tree
}

func newRegistry(quiet time.Duration) *registry {
	return &registry{
		quiet: quiet,
		tree:  radix.New(),
	}
}

// push inserts path with a fresh deadline. It is a no-op when path is already tracked.
func (r *registry) push(path string, kind ChangeKind, now time.Time) bool {
	if path == "" {
		return false
	}
	if _, exists := r.tree.Get(path); exists {
		return false
	}
	r.tree.Insert(path, &PendingChange{
		Path:  path,
		Kind:  kind,
		DueAt: now.Add(r.quiet),
	})
	return true
}

// touch pushes the deadline of a tracked path out by one quiet period
func (r *registry) touch(path string, now time.Time) bool {
	item, ok := r.lookup(path)
	if !ok {
		return false
	}
	item.DueAt = now.Add(r.quiet)
	return true
}

// updateKind replaces the kind of a tracked path
func (r *registry) updateKind(path string, kind ChangeKind) bool {
	item, ok := r.lookup(path)
	if !ok {
		return false
	}
	item.Kind = kind
	return true
}

func (r *registry) pop(path string) (PendingChange, bool) {
	value, deleted := r.tree.Delete(path)
	if !deleted {
		return PendingChange{}, false
	}
	return *value.(*PendingChange), true
}

func (r *registry) get(path string) (PendingChange, bool) {
	item, ok := r.lookup(path)
	if !ok {
		return PendingChange{}, false
	}
	return *item, true
}

func (r *registry) has(path string) bool {
	_, ok := r.tree.Get(path)
	return ok
}

func (r *registry) len() int {
	return r.tree.Len()
}

func (r *registry) isEmpty() bool {
	return r.tree.Len() == 0
}

// entriesUnder returns every tracked path strictly inside dir, in lexical order.
// The separator is appended before the walk so /a/b never matches /a/bc/file.
func (r *registry) entriesUnder(dir string) []string {
	prefix := strings.TrimRight(dir, string(filepath.Separator))
	prefix += string(filepath.Separator)

	var paths []string
	r.tree.WalkPrefix(prefix, func(key string, _ interface{}) bool {
		paths = append(paths, key)
		return false
	})
	return paths
}

// earliest returns the entry with the smallest deadline. Ties go to the lexically first path.
func (r *registry) earliest() (PendingChange, bool) {
	var next *PendingChange
	r.tree.Walk(func(_ string, value interface{}) bool {
		item := value.(*PendingChange)
		if next == nil || item.DueAt.Before(next.DueAt) {
			next = item
		}
		return false
	})
	if next == nil {
		return PendingChange{}, false
	}
	return *next, true
}

// snapshot copies every pending change in lexical path order
func (r *registry) snapshot() []PendingChange {
	items := make([]PendingChange, 0, r.tree.Len())
	r.tree.Walk(func(_ string, value interface{}) bool {
		items = append(items, *value.(*PendingChange))
		return false
	})
	return items
}

func (r *registry) lookup(path string) (*PendingChange, bool) {
	value, ok := r.tree.Get(path)
	if !ok {
		return nil, false
	}
	return value.(*PendingChange), true
}
