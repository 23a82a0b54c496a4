package backend

import (
	"fmt"
	"os"
	"sync"
)

// CleanupRegistry collects the artifacts created during one invocation:
// scratch files, temp directories, anything the engine's own cleanup cannot
// be trusted to remove. Release reclaims them in reverse registration order
// and reports every failure rather than stopping at the first.
//
// One registry belongs to exactly one invocation; the executor creates a
// fresh one per run and releases it before the next run starts.
type CleanupRegistry struct {
	mu    sync.Mutex
	items []cleanupItem
}

type cleanupItem struct {
	name string
	fn   func() error
}

func NewCleanupRegistry() *CleanupRegistry {
	return &CleanupRegistry{}
}

// AddPath registers a file or directory tree for removal.
func (r *CleanupRegistry) AddPath(path string) {
	r.AddFunc(path, func() error {
		return os.RemoveAll(path)
	})
}

// AddFunc registers an arbitrary release action, e.g. closing a connection
// or stopping a worker pool.
func (r *CleanupRegistry) AddFunc(name string, fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, cleanupItem{name: name, fn: fn})
}

// Len returns the number of registered artifacts.
func (r *CleanupRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Release runs all registered actions in reverse registration order and
// drains the registry. Failures are collected and returned; they are
// non-fatal to the measurement but must be surfaced as caveats.
func (r *CleanupRegistry) Release() []error {
	r.mu.Lock()
	items := r.items
	r.items = nil
	r.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", items[i].name, err))
		}
	}
	return errs
}
