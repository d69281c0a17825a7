// Package monitor maintains a table of observed Cyphal node-ids fed by
// heartbeat observations (spec.md §4.10), described only by its interface
// here since the uavcan.node.Heartbeat subscription itself is out of scope
// (SPEC_FULL.md §4.10 Non-goals: no historical persistence, no GetInfo
// polling).
//
// Grounded on original_source/docs/monitor.hpp's Monitor::Snapshot/Avatar.
package monitor

import (
	"sort"
	"sync"
	"time"

	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

// Avatar is the latest known state of one remote node (monitor.hpp's
// Avatar, trimmed to the health/mode fields this module actually
// round-trips; GetInfo/port-list caching is out of scope).
type Avatar struct {
	NodeID          cyphal.NodeID `json:"node_id"`
	Online          bool          `json:"online"`
	LastHeartbeatAt time.Time     `json:"last_heartbeat_at"`
	Health          uint8         `json:"health"`
	Mode            uint8         `json:"mode"`
}

// Snapshot is a point-in-time view of the network, ordered by node-id
// (monitor.hpp: "The table is ordered by node-ID").
type Snapshot struct {
	Table []Avatar
}

// Event is delivered to subscribers when a node is added, removed, or
// changes health/mode.
type Event struct {
	Avatar  Avatar
	Removed bool
}

// Monitor is the collaborator internal/service.MonitorService consumes.
type Monitor interface {
	Snapshot() Snapshot
	Subscribe(cb func(Event)) (cancel func())
}

// InMemoryTable is a Monitor fed by Observe/MarkOffline calls. A real deployment
// wires Observe to a Cyphal heartbeat subscription (out of scope here); this
// type is the synchronous table the subscription would update.
type InMemoryTable struct {
	mu          sync.Mutex
	table       map[cyphal.NodeID]Avatar
	subscribers map[int]func(Event)
	nextSubID   int
}

// NewInMemoryTable creates an empty table.
func NewInMemoryTable() *InMemoryTable {
	return &InMemoryTable{
		table:       make(map[cyphal.NodeID]Avatar),
		subscribers: make(map[int]func(Event)),
	}
}

// Observe records a heartbeat observation, marking the node online and
// notifying subscribers.
func (t *InMemoryTable) Observe(a Avatar) {
	t.mu.Lock()
	a.Online = true
	t.table[a.NodeID] = a
	subs := t.snapshotSubscribers()
	t.mu.Unlock()

	for _, cb := range subs {
		cb(Event{Avatar: a})
	}
}

// MarkOffline flags nodeID offline without discarding its last known state
// (monitor.hpp: "If not online, the other fields contain the latest known
// information").
func (t *InMemoryTable) MarkOffline(nodeID cyphal.NodeID) {
	t.mu.Lock()
	a, ok := t.table[nodeID]
	if !ok {
		t.mu.Unlock()
		return
	}
	a.Online = false
	t.table[nodeID] = a
	subs := t.snapshotSubscribers()
	t.mu.Unlock()

	for _, cb := range subs {
		cb(Event{Avatar: a})
	}
}

func (t *InMemoryTable) snapshotSubscribers() []func(Event) {
	out := make([]func(Event), 0, len(t.subscribers))
	for _, cb := range t.subscribers {
		out = append(out, cb)
	}
	return out
}

// Snapshot implements Monitor.
func (t *InMemoryTable) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Avatar, 0, len(t.table))
	for _, a := range t.table {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return Snapshot{Table: out}
}

// Subscribe implements Monitor.
func (t *InMemoryTable) Subscribe(cb func(Event)) (cancel func()) {
	t.mu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = cb
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}
