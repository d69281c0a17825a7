// Package service hosts the daemon-side service FSMs of spec.md §4.6:
// for each inbound channel, a per-request state machine that owns Cyphal
// client/promise pairs, fans a request out to N remote nodes, and streams
// partial results back on the originating channel.
package service

import (
	"time"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

// ExecCmdServiceName is the fixed textual service name clients open a
// channel against (spec.md §4.6, original_source's ExecCmdSpec).
const ExecCmdServiceName = "ocvsmd.svc.node.exec_cmd"

// ExecCmdRequest is the request payload of the Execute-Command service:
// a timeout, a (possibly duplicate-containing) list of target node ids,
// and the embedded ExecuteCommand arguments.
type ExecCmdRequest struct {
	TimeoutMillis int64           `json:"timeout_ms"`
	NodeIDs       []cyphal.NodeID `json:"node_ids"`
	Command       uint16          `json:"command"`
	Parameter     string          `json:"parameter"`
}

// ExecCmdResponse is one per-node result streamed as a channel Input
// (spec.md §4.6 step 3).
type ExecCmdResponse struct {
	NodeID cyphal.NodeID `json:"node_id"`
	Status uint8         `json:"status"`
	Output string        `json:"output"`
}

// ExecCmdService registers the Execute-Command FSM factory with a
// ServerRouter, grounded on ExecCmdServiceImpl::registerWithContext
// (exec_cmd_service.cpp) binding the same fixed service name to a fresh
// Fsm per inbound channel.
type ExecCmdService struct {
	exec         *executor.Executor
	presentation cyphal.Presentation
	log          *ipclog.Logger

	nextFsmID uint64
	fsms      map[uint64]*execCmdFsm
}

// NewExecCmdService constructs the service host; call RegisterWith to bind
// it to a ServerRouter.
func NewExecCmdService(exec *executor.Executor, presentation cyphal.Presentation, log *ipclog.Logger) *ExecCmdService {
	return &ExecCmdService{
		exec:         exec,
		presentation: presentation,
		log:          log.Fork("exec_cmd"),
		fsms:         make(map[uint64]*execCmdFsm),
	}
}

// RegisterWith binds this service's factory to r under ExecCmdServiceName.
func (s *ExecCmdService) RegisterWith(r *router.ServerRouter) error {
	return r.RegisterService(ExecCmdServiceName, s.factory)
}

func (s *ExecCmdService) factory(raw *router.ServerChannel) router.ChannelHandler {
	id := s.nextFsmID
	s.nextFsmID++

	fsm := &execCmdFsm{id: id, service: s, log: s.log.Fork("fsm=%d", id)}
	s.fsms[id] = fsm

	typed, handler := channel.NewServerChannel[struct{}, ExecCmdResponse](
		raw, channel.JSONCodec[struct{}]{}, channel.JSONCodec[ExecCmdResponse]{}, fsm.onChannelEvent,
	)
	fsm.channel = typed

	return func(ev router.ChannelEvent) {
		if ev.Kind == router.EventInput {
			// The first (and only) Input carries the actual request;
			// decode it directly as ExecCmdRequest rather than through
			// the typed channel's In=struct{} placeholder, mirroring
			// how the C++ factory receives the decoded Request before
			// constructing the Fsm (ExecCmdServiceImpl::operator()).
			// Inputs after the fan-out has started are ignored.
			if fsm.fan != nil {
				return
			}
			req, err := channel.JSONCodec[ExecCmdRequest]{}.Unmarshal(ev.Payload)
			if err != nil {
				fsm.complete(ipcerr.EINVAL)
				return
			}
			fsm.start(req)
			return
		}
		handler(ev)
	}
}

func (s *ExecCmdService) releaseFsm(id uint64) {
	delete(s.fsms, id)
}

type execCmdFsm struct {
	id      uint64
	service *ExecCmdService
	log     *ipclog.Logger
	channel *channel.ServerChannel[struct{}, ExecCmdResponse]
	fan     *fanOut
}

// onChannelEvent handles events the typed channel veneer would otherwise
// deliver; exec_cmd's FSM only cares about Completed (client-initiated
// cancellation, spec.md §4.6 step 6) — Connected and further Input are
// ignored exactly as ExecCmdServiceImpl::Fsm::handleEvent does.
func (f *execCmdFsm) onChannelEvent(ev channel.Event[struct{}]) {
	if ev.Kind == channel.Completed {
		f.log.Debugf("client cancelled (fsm=%d)", f.id)
		if f.fan != nil {
			f.fan.cancelAll()
		}
		f.complete(ipcerr.ECANCELED)
	}
}

func (f *execCmdFsm) start(req ExecCmdRequest) {
	f.fan = newFanOut(f.service.exec, f.service.presentation, f.log, ExecCmdServiceName, f.complete)
	f.fan.buildPayload = func(cyphal.NodeID) ([]byte, error) {
		return channel.JSONCodec[execRequestPayload]{}.Marshal(execRequestPayload{Command: req.Command, Parameter: req.Parameter})
	}
	f.fan.onResult = func(nodeID cyphal.NodeID, payload []byte) {
		resp, err := channel.JSONCodec[execResponsePayload]{}.Unmarshal(payload)
		if err != nil {
			f.log.Warnf("malformed response from node %d (fsm=%d)", nodeID, f.id)
			return
		}
		if err := f.channel.Send(ExecCmdResponse{NodeID: nodeID, Status: resp.Status, Output: resp.Output}); err != nil {
			f.log.Warnf("failed to stream response for node %d: %s (fsm=%d)", nodeID, err, f.id)
		}
	}
	f.fan.start(req.NodeIDs, time.Duration(req.TimeoutMillis)*time.Millisecond)
}

type execRequestPayload struct {
	Command   uint16 `json:"command"`
	Parameter string `json:"parameter"`
}

type execResponsePayload struct {
	Status uint8  `json:"status"`
	Output string `json:"output"`
}

func (f *execCmdFsm) complete(code ipcerr.Code) {
	f.channel.Complete(code)
	f.service.releaseFsm(f.id)
}
