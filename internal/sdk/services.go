package sdk

import (
	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/service"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

// ExecCmd issues an Execute-Command request and resolves a
// node_id->ExecCmdResponse map (spec.md §4.7 map-style, partial results
// kept on failure per original_source's ExecCmdClient::Result union, which
// carries a Success map regardless of how many nodes actually answered).
func ExecCmd(r *router.ClientRouter, req service.ExecCmdRequest) *executor.Sender[Outcome[map[cyphal.NodeID]service.ExecCmdResponse]] {
	payload, err := channel.JSONCodec[service.ExecCmdRequest]{}.Marshal(req)
	if err != nil {
		sender := executor.NewSender[Outcome[map[cyphal.NodeID]service.ExecCmdResponse]]()
		sender.Resolve(Outcome[map[cyphal.NodeID]service.ExecCmdResponse]{Err: err})
		return sender
	}
	return MapSend(r, service.ExecCmdServiceName, channel.JSONCodec[service.ExecCmdResponse]{},
		func(resp service.ExecCmdResponse) cyphal.NodeID { return resp.NodeID }, true, payload)
}

// RegisterList lists register names per node (spec.md §4.7 list-style).
func RegisterList(r *router.ClientRouter, req service.RegisterListRequest) *executor.Sender[Outcome[[]service.RegisterListEntry]] {
	payload, err := channel.JSONCodec[service.RegisterListRequest]{}.Marshal(req)
	if err != nil {
		sender := executor.NewSender[Outcome[[]service.RegisterListEntry]]()
		sender.Resolve(Outcome[[]service.RegisterListEntry]{Err: err})
		return sender
	}
	return ListSend(r, service.RegisterListServiceName, channel.JSONCodec[service.RegisterListEntry]{}, payload)
}

type registerValueKey struct {
	NodeID cyphal.NodeID
	Name   string
}

// RegisterRead reads named registers per node, keyed by (node, name)
// (spec.md §4.7 map-style, partial results kept).
func RegisterRead(r *router.ClientRouter, req service.RegisterReadRequest) *executor.Sender[Outcome[map[registerValueKey]service.RegisterValueEntry]] {
	payload, err := channel.JSONCodec[service.RegisterReadRequest]{}.Marshal(req)
	if err != nil {
		sender := executor.NewSender[Outcome[map[registerValueKey]service.RegisterValueEntry]]()
		sender.Resolve(Outcome[map[registerValueKey]service.RegisterValueEntry]{Err: err})
		return sender
	}
	return MapSend(r, service.RegisterReadServiceName, channel.JSONCodec[service.RegisterValueEntry]{},
		func(e service.RegisterValueEntry) registerValueKey { return registerValueKey{e.NodeID, e.Name} }, true, payload)
}

// RegisterWrite writes register values per node, same accumulation as
// RegisterRead.
func RegisterWrite(r *router.ClientRouter, req service.RegisterWriteRequest) *executor.Sender[Outcome[map[registerValueKey]service.RegisterValueEntry]] {
	payload, err := channel.JSONCodec[service.RegisterWriteRequest]{}.Marshal(req)
	if err != nil {
		sender := executor.NewSender[Outcome[map[registerValueKey]service.RegisterValueEntry]]()
		sender.Resolve(Outcome[map[registerValueKey]service.RegisterValueEntry]{Err: err})
		return sender
	}
	return MapSend(r, service.RegisterWriteServiceName, channel.JSONCodec[service.RegisterValueEntry]{},
		func(e service.RegisterValueEntry) registerValueKey { return registerValueKey{e.NodeID, e.Name} }, true, payload)
}

// ListRoots lists the daemon's file-server roots (spec.md §4.7 list-style).
func ListRoots(r *router.ClientRouter) *executor.Sender[Outcome[[]service.RootEntry]] {
	return ListSend(r, service.ListRootsServiceName, channel.JSONCodec[service.RootEntry]{}, nil)
}

// PushRoot adds a root (spec.md §4.7 unit-style).
func PushRoot(r *router.ClientRouter, path string, atBack bool) *executor.Sender[Outcome[struct{}]] {
	payload, err := channel.JSONCodec[service.RootRequest]{}.Marshal(service.RootRequest{Path: path, AtBack: atBack})
	if err != nil {
		sender := executor.NewSender[Outcome[struct{}]]()
		sender.Resolve(Outcome[struct{}]{Err: err})
		return sender
	}
	return UnitSend(r, service.PushRootServiceName, payload)
}

// PopRoot removes a root and resolves the popped path, if any (modeled as
// list-style with at most one item, since pop_root streams one RootResult
// before completing).
func PopRoot(r *router.ClientRouter, atBack bool) *executor.Sender[Outcome[[]service.RootResult]] {
	payload, err := channel.JSONCodec[service.RootRequest]{}.Marshal(service.RootRequest{AtBack: atBack})
	if err != nil {
		sender := executor.NewSender[Outcome[[]service.RootResult]]()
		sender.Resolve(Outcome[[]service.RootResult]{Err: err})
		return sender
	}
	return ListSend(r, service.PopRootServiceName, channel.JSONCodec[service.RootResult]{}, payload)
}

// MonitorSnapshot fetches the current node table (spec.md §4.7 list-style).
func MonitorSnapshot(r *router.ClientRouter) *executor.Sender[Outcome[[]monitorAvatarAlias]] {
	return ListSend(r, service.MonitorSnapshotServiceName, channel.JSONCodec[monitorAvatarAlias]{}, nil)
}

// monitorAvatarAlias mirrors pkg/monitor.Avatar's JSON shape without
// importing pkg/monitor here, keeping internal/sdk's dependency surface to
// internal/service's wire types only.
type monitorAvatarAlias = struct {
	NodeID          cyphal.NodeID `json:"node_id"`
	Online          bool          `json:"online"`
	LastHeartbeatAt string        `json:"last_heartbeat_at"`
	Health          uint8         `json:"health"`
	Mode            uint8         `json:"mode"`
}

// PnpAllocate requests node-id allocation for the given unique-ids
// (spec.md §4.7 map-style, keyed by unique-id).
func PnpAllocate(r *router.ClientRouter, uniqueIDs [][16]byte, timeoutMillis int64) *executor.Sender[Outcome[map[[16]byte]service.PnpAllocateEntry]] {
	payload, err := channel.JSONCodec[service.PnpAllocateRequest]{}.Marshal(service.PnpAllocateRequest{UniqueIDs: uniqueIDs, TimeoutMillis: timeoutMillis})
	if err != nil {
		sender := executor.NewSender[Outcome[map[[16]byte]service.PnpAllocateEntry]]()
		sender.Resolve(Outcome[map[[16]byte]service.PnpAllocateEntry]{Err: err})
		return sender
	}
	return MapSend(r, service.PnpAllocateServiceName, channel.JSONCodec[service.PnpAllocateEntry]{},
		func(e service.PnpAllocateEntry) [16]byte { return e.UniqueID }, true, payload)
}
