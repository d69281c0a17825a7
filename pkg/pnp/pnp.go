// Package pnp tracks plug-and-play node-ID allocations (spec.md §4.11),
// described only by its interface here since the actual Cyphal PnP
// allocation protocol exchange is out of scope (SPEC_FULL.md §4.11: the
// allocator "streams back ... as allocations are granted by the (external)
// Cyphal PnP protocol exchange").
//
// Grounded on original_source/docs/pnp_node_id_allocator.hpp's
// PnPNodeIDAllocator.
package pnp

import (
	"sync"

	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

// UniqueID is the 128-bit hardware unique-id carried in PnP allocation
// requests (pnp_node_id_allocator.hpp's UID).
type UniqueID [16]byte

// Entry maps one allocated node-id to the unique-id that requested it, if
// known (pnp_node_id_allocator.hpp's Entry: "For some node-IDs there may be
// no unique-ID").
type Entry struct {
	NodeID   cyphal.NodeID
	UniqueID *UniqueID
}

// Allocator is the collaborator internal/service.PnpService consumes.
type Allocator interface {
	SetEnabled(enabled bool)
	IsEnabled() bool
	Table() []Entry
	DropTable()

	// Subscribe registers cb to be called exactly once per unique-id when
	// an allocation for it completes; allocating is asynchronous since it
	// depends on the external PnP protocol exchange. cancel unregisters
	// and, if still pending, abandons that request.
	Subscribe(id UniqueID, cb func(cyphal.NodeID)) (cancel func())
}

// InMemoryAllocator is an Allocator whose table is populated by Grant
// calls. A real deployment wires Grant to the Cyphal PnP protocol's
// allocation responses (out of scope here).
type InMemoryAllocator struct {
	mu           sync.Mutex
	enabled      bool
	table        []Entry
	waiters      map[UniqueID][]func(cyphal.NodeID)
	waiterTokens map[UniqueID][]*int
}

// NewInMemoryAllocator creates an enabled allocator with an empty table.
func NewInMemoryAllocator() *InMemoryAllocator {
	return &InMemoryAllocator{
		enabled:      true,
		waiters:      make(map[UniqueID][]func(cyphal.NodeID)),
		waiterTokens: make(map[UniqueID][]*int),
	}
}

// SetEnabled implements Allocator.
func (a *InMemoryAllocator) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled implements Allocator.
func (a *InMemoryAllocator) IsEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Table implements Allocator.
func (a *InMemoryAllocator) Table() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Entry, len(a.table))
	copy(out, a.table)
	return out
}

// DropTable implements Allocator.
func (a *InMemoryAllocator) DropTable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.table = nil
}

// Subscribe implements Allocator.
func (a *InMemoryAllocator) Subscribe(id UniqueID, cb func(cyphal.NodeID)) (cancel func()) {
	a.mu.Lock()
	token := new(int)
	a.waiterTokens[id] = append(a.waiterTokens[id], token)
	a.waiters[id] = append(a.waiters[id], cb)
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		tokens := a.waiterTokens[id]
		for i, t := range tokens {
			if t == token {
				a.waiterTokens[id] = append(tokens[:i], tokens[i+1:]...)
				a.waiters[id] = append(a.waiters[id][:i], a.waiters[id][i+1:]...)
				break
			}
		}
	}
}

// Grant records a completed allocation and notifies any waiters registered
// for uid.
func (a *InMemoryAllocator) Grant(uid UniqueID, nodeID cyphal.NodeID) {
	a.mu.Lock()
	u := uid
	a.table = append(a.table, Entry{NodeID: nodeID, UniqueID: &u})
	waiters := a.waiters[uid]
	delete(a.waiters, uid)
	delete(a.waiterTokens, uid)
	a.mu.Unlock()

	for _, cb := range waiters {
		cb(nodeID)
	}
}
