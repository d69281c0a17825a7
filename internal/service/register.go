// Register service FSMs (spec.md §4.8), grounded on
// original_source/docs/register_client.hpp's RegisterClient::list/read/write
// multicast operations. Each operation fans a request out to the unique
// node-ids named in the request, same skeleton as ExecCmdService: per-node
// MakeClient/Request failures complete the whole channel immediately
// (translated through pkg/cyphal.FailureToCode); per-node promise failures
// are logged and dropped without completing the channel; the channel
// completes with OK once every dispatched node has resolved.
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

// Service names, grounded on the naming convention of
// original_source/src/common/svc/node/exec_cmd_spec.hpp's svc_full_name,
// applied to the register operations register_client.hpp describes.
const (
	RegisterListServiceName  = "ocvsmd.svc.node.register_list"
	RegisterReadServiceName  = "ocvsmd.svc.node.register_read"
	RegisterWriteServiceName = "ocvsmd.svc.node.register_write"
)

// RegisterListRequest requests the register names known to each node.
type RegisterListRequest struct {
	NodeIDs       []cyphal.NodeID `json:"node_ids"`
	TimeoutMillis int64           `json:"timeout_ms"`
}

// RegisterListEntry is one streamed name (spec.md §4.8).
type RegisterListEntry struct {
	NodeID cyphal.NodeID `json:"node_id"`
	Name   string        `json:"name"`
}

// RegisterReadRequest reads the named registers from each node.
type RegisterReadRequest struct {
	NodeIDs       []cyphal.NodeID `json:"node_ids"`
	Names         []string        `json:"names"`
	TimeoutMillis int64           `json:"timeout_ms"`
}

// RegisterWriteRequest writes the given name/value pairs to each node.
type RegisterWriteRequest struct {
	NodeIDs       []cyphal.NodeID   `json:"node_ids"`
	Values        map[string]string `json:"values"`
	TimeoutMillis int64             `json:"timeout_ms"`
}

// RegisterValueEntry is one streamed (node, name, value-or-error) result of
// register_read/register_write.
type RegisterValueEntry struct {
	NodeID cyphal.NodeID `json:"node_id"`
	Name   string        `json:"name"`
	Value  string        `json:"value,omitempty"`
	Err    string        `json:"err,omitempty"`
}

// RegisterService hosts the three register operations.
type RegisterService struct {
	exec         *executor.Executor
	presentation cyphal.Presentation
	log          *ipclog.Logger
}

// NewRegisterService constructs the service host.
func NewRegisterService(exec *executor.Executor, presentation cyphal.Presentation, log *ipclog.Logger) *RegisterService {
	return &RegisterService{exec: exec, presentation: presentation, log: log.Fork("register")}
}

// RegisterWith binds all three operations to r.
func (s *RegisterService) RegisterWith(r *router.ServerRouter) error {
	if err := r.RegisterService(RegisterListServiceName, s.listFactory); err != nil {
		return err
	}
	if err := r.RegisterService(RegisterReadServiceName, s.readFactory); err != nil {
		return err
	}
	return r.RegisterService(RegisterWriteServiceName, s.writeFactory)
}

// The fanOut skeleton shared with ExecCmdService lives in fanout.go.

func (s *RegisterService) listFactory(raw *router.ServerChannel) router.ChannelHandler {
	f := newFanOut(s.exec, s.presentation, s.log, RegisterListServiceName, raw.Complete)
	f.buildPayload = func(cyphal.NodeID) ([]byte, error) { return nil, nil }
	f.onResult = func(nodeID cyphal.NodeID, payload []byte) {
		resp, err := channel.JSONCodec[registerListResponsePayload]{}.Unmarshal(payload)
		if err != nil {
			s.log.Warnf("malformed register_list response from node %d", nodeID)
			return
		}
		for _, name := range resp.Names {
			entryPayload, _ := channel.JSONCodec[RegisterListEntry]{}.Marshal(RegisterListEntry{NodeID: nodeID, Name: name})
			if err := raw.Send(entryPayload); err != nil {
				s.log.Warnf("register_list: failed to stream entry for node %d: %s", nodeID, err)
			}
		}
	}

	return func(ev router.ChannelEvent) {
		switch ev.Kind {
		case router.EventInput:
			req, err := channel.JSONCodec[RegisterListRequest]{}.Unmarshal(ev.Payload)
			if err != nil {
				raw.Complete(ipcerr.EINVAL)
				return
			}
			f.start(req.NodeIDs, time.Duration(req.TimeoutMillis)*time.Millisecond)
		case router.EventCompleted:
			f.cancelAll()
		}
	}
}

type registerListResponsePayload struct {
	Names []string `json:"names"`
}

func (s *RegisterService) readFactory(raw *router.ServerChannel) router.ChannelHandler {
	f := newFanOut(s.exec, s.presentation, s.log, RegisterReadServiceName, raw.Complete)
	var names []string
	f.buildPayload = func(cyphal.NodeID) ([]byte, error) {
		return channel.JSONCodec[registerNamesPayload]{}.Marshal(registerNamesPayload{Names: names})
	}
	f.onResult = func(nodeID cyphal.NodeID, payload []byte) {
		resp, err := channel.JSONCodec[registerValuesPayload]{}.Unmarshal(payload)
		if err != nil {
			s.log.Warnf("malformed register_read response from node %d", nodeID)
			return
		}
		for _, v := range resp.Values {
			entryPayload, _ := channel.JSONCodec[RegisterValueEntry]{}.Marshal(RegisterValueEntry{
				NodeID: nodeID, Name: v.Name, Value: v.Value, Err: v.Err,
			})
			if err := raw.Send(entryPayload); err != nil {
				s.log.Warnf("register_read: failed to stream entry for node %d: %s", nodeID, err)
			}
		}
	}

	return func(ev router.ChannelEvent) {
		switch ev.Kind {
		case router.EventInput:
			req, err := channel.JSONCodec[RegisterReadRequest]{}.Unmarshal(ev.Payload)
			if err != nil {
				raw.Complete(ipcerr.EINVAL)
				return
			}
			names = req.Names
			f.start(req.NodeIDs, time.Duration(req.TimeoutMillis)*time.Millisecond)
		case router.EventCompleted:
			f.cancelAll()
		}
	}
}

func (s *RegisterService) writeFactory(raw *router.ServerChannel) router.ChannelHandler {
	f := newFanOut(s.exec, s.presentation, s.log, RegisterWriteServiceName, raw.Complete)
	var values map[string]string
	f.buildPayload = func(cyphal.NodeID) ([]byte, error) {
		return channel.JSONCodec[registerWritePayload]{}.Marshal(registerWritePayload{Values: values})
	}
	f.onResult = func(nodeID cyphal.NodeID, payload []byte) {
		resp, err := channel.JSONCodec[registerValuesPayload]{}.Unmarshal(payload)
		if err != nil {
			s.log.Warnf("malformed register_write response from node %d", nodeID)
			return
		}
		for _, v := range resp.Values {
			entryPayload, _ := channel.JSONCodec[RegisterValueEntry]{}.Marshal(RegisterValueEntry{
				NodeID: nodeID, Name: v.Name, Value: v.Value, Err: v.Err,
			})
			if err := raw.Send(entryPayload); err != nil {
				s.log.Warnf("register_write: failed to stream entry for node %d: %s", nodeID, err)
			}
		}
	}

	return func(ev router.ChannelEvent) {
		switch ev.Kind {
		case router.EventInput:
			req, err := channel.JSONCodec[RegisterWriteRequest]{}.Unmarshal(ev.Payload)
			if err != nil {
				raw.Complete(ipcerr.EINVAL)
				return
			}
			values = req.Values
			f.start(req.NodeIDs, time.Duration(req.TimeoutMillis)*time.Millisecond)
		case router.EventCompleted:
			f.cancelAll()
		}
	}
}

type registerNamesPayload struct {
	Names []string `json:"names"`
}

type registerValueResult struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Err   string `json:"err,omitempty"`
}

type registerValuesPayload struct {
	Values []registerValueResult `json:"values"`
}

type registerWritePayload struct {
	Values map[string]string `json:"values"`
}
