// PnP node-ID allocation service (spec.md §4.11), grounded on
// original_source/docs/pnp_node_id_allocator.hpp.
package service

import (
	"time"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
	"github.com/ocvsmd-go/ocvsmd/pkg/pnp"
)

// PnpAllocateServiceName is the fixed service name (spec.md §4.11).
const PnpAllocateServiceName = "ocvsmd.svc.pnp.allocate"

// PnpAllocateRequest requests node-id allocation for each listed
// unique-id, completing when every one is granted or timeout_ms elapses
// (spec.md §4.11: "completes on the requesting channel's end or a
// configured timeout").
type PnpAllocateRequest struct {
	UniqueIDs     [][16]byte `json:"unique_ids"`
	TimeoutMillis int64      `json:"timeout_ms"`
}

// PnpAllocateEntry is one streamed grant.
type PnpAllocateEntry struct {
	UniqueID [16]byte `json:"unique_id"`
	NodeID   uint16   `json:"allocated_node_id"`
}

// PnpService hosts the allocate operation over one pnp.Allocator.
type PnpService struct {
	exec  *executor.Executor
	alloc pnp.Allocator
	log   *ipclog.Logger
}

// NewPnpService constructs the service host.
func NewPnpService(exec *executor.Executor, alloc pnp.Allocator, log *ipclog.Logger) *PnpService {
	return &PnpService{exec: exec, alloc: alloc, log: log.Fork("pnp")}
}

// RegisterWith binds the allocate operation to r.
func (s *PnpService) RegisterWith(r *router.ServerRouter) error {
	return r.RegisterService(PnpAllocateServiceName, s.allocateFactory)
}

func (s *PnpService) allocateFactory(raw *router.ServerChannel) router.ChannelHandler {
	codec := channel.JSONCodec[PnpAllocateEntry]{}
	var cancels []func()
	remaining := 0
	var timeoutCancel executor.CancelFunc
	done := false

	finish := func(code ipcerr.Code) {
		if done {
			return
		}
		done = true
		if timeoutCancel != nil {
			timeoutCancel()
		}
		for _, c := range cancels {
			c()
		}
		raw.Complete(code)
	}

	onGrant := func(uid [16]byte, nodeID cyphal.NodeID) {
		// pnp.Allocator.Subscribe delivers on whichever goroutine calls
		// Grant; resubmit onto the executor to preserve single-ownership,
		// same pattern as ExecCmdService's promise callbacks.
		s.exec.Submit(func() {
			if done {
				return
			}
			payload, err := codec.Marshal(PnpAllocateEntry{UniqueID: uid, NodeID: uint16(nodeID)})
			if err == nil {
				if err := raw.Send(payload); err != nil {
					s.log.Warnf("allocate: failed to send grant: %s", err)
				}
			}
			remaining--
			if remaining == 0 {
				finish(ipcerr.OK)
			}
		})
	}

	return func(ev router.ChannelEvent) {
		switch ev.Kind {
		case router.EventInput:
			req, err := channel.JSONCodec[PnpAllocateRequest]{}.Unmarshal(ev.Payload)
			if err != nil {
				finish(ipcerr.EINVAL)
				return
			}
			if len(req.UniqueIDs) == 0 {
				finish(ipcerr.OK)
				return
			}
			remaining = len(req.UniqueIDs)
			for _, uidBytes := range req.UniqueIDs {
				uid := uidBytes
				cancel := s.alloc.Subscribe(pnp.UniqueID(uid), func(nodeID cyphal.NodeID) { onGrant(uid, nodeID) })
				cancels = append(cancels, cancel)
			}
			if req.TimeoutMillis > 0 {
				deadline := time.Now().Add(time.Duration(req.TimeoutMillis) * time.Millisecond)
				timeoutCancel = s.exec.Schedule(deadline, func() { finish(ipcerr.ETIMEDOUT) })
			}
		case router.EventCompleted:
			finish(ipcerr.ECANCELED)
		}
	}
}
