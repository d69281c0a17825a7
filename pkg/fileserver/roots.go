// Package fileserver owns the daemon's in-memory list of filesystem roots
// served to remote nodes over uavcan.file.* (spec.md §4.9), described only
// by its interface here since the uavcan.file server side is out of scope
// (SPEC_FULL.md §4.9 Non-goals).
//
// Grounded on original_source/docs/file_server.hpp and
// src/daemon/engine/cyphal/file_provider.hpp's root-list management.
package fileserver

import "sync"

// Roots is an ordered, in-memory list of filesystem root paths. The order
// matters: uavcan.file.List responses enumerate roots front-to-back, so
// Push/Pop expose both ends deliberately (spec.md §4.9's pop_root/push_root
// "is_back" flag).
type Roots struct {
	mu    sync.Mutex
	paths []string
}

// NewRoots creates an empty root list.
func NewRoots() *Roots {
	return &Roots{}
}

// List returns a snapshot of the current roots, front to back.
func (r *Roots) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.paths))
	copy(out, r.paths)
	return out
}

// Push inserts path at the back of the list, or the front if atBack is
// false.
func (r *Roots) Push(path string, atBack bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if atBack {
		r.paths = append(r.paths, path)
		return
	}
	r.paths = append([]string{path}, r.paths...)
}

// Reset replaces the entire root list, front to back, used when
// internal/config reloads the file_server.roots section from disk.
func (r *Roots) Reset(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append([]string(nil), paths...)
}

// Pop removes and returns the root at the back of the list, or the front
// if atBack is false. ok is false if the list is empty.
func (r *Roots) Pop(atBack bool) (path string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return "", false
	}
	if atBack {
		last := len(r.paths) - 1
		path = r.paths[last]
		r.paths = r.paths[:last]
		return path, true
	}
	path = r.paths[0]
	r.paths = r.paths[1:]
	return path, true
}
