// Monitor snapshot/subscribe service (spec.md §4.10), grounded on
// original_source/docs/monitor.hpp.
package service

import (
	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/monitor"
)

// Service names, following the naming convention of
// original_source/src/common/svc/node/exec_cmd_spec.hpp's svc_full_name.
const (
	MonitorSnapshotServiceName  = "ocvsmd.svc.monitor.snapshot"
	MonitorSubscribeServiceName = "ocvsmd.svc.monitor.subscribe"
)

// MonitorService hosts the snapshot and subscribe operations over one
// monitor.Monitor.
type MonitorService struct {
	exec *executor.Executor
	mon  monitor.Monitor
	log  *ipclog.Logger
}

// NewMonitorService constructs the service host.
func NewMonitorService(exec *executor.Executor, mon monitor.Monitor, log *ipclog.Logger) *MonitorService {
	return &MonitorService{exec: exec, mon: mon, log: log.Fork("monitor")}
}

// RegisterWith binds both operations to r.
func (s *MonitorService) RegisterWith(r *router.ServerRouter) error {
	if err := r.RegisterService(MonitorSnapshotServiceName, s.snapshotFactory); err != nil {
		return err
	}
	return r.RegisterService(MonitorSubscribeServiceName, s.subscribeFactory)
}

// snapshotFactory streams one monitor.Avatar per known node, list-style,
// then completes (spec.md §4.10: "snapshot is list-style").
func (s *MonitorService) snapshotFactory(raw *router.ServerChannel) router.ChannelHandler {
	codec := channel.JSONCodec[monitor.Avatar]{}
	return func(ev router.ChannelEvent) {
		if ev.Kind != router.EventInput {
			return
		}
		for _, a := range s.mon.Snapshot().Table {
			payload, err := codec.Marshal(a)
			if err != nil {
				continue
			}
			if err := raw.Send(payload); err != nil {
				s.log.Warnf("snapshot: failed to send avatar for node %d: %s", a.NodeID, err)
			}
		}
		raw.Complete(ipcerr.OK)
	}
}

// subscribeFactory streams a monitor.Event per add/remove/change until the
// client completes the channel (spec.md §4.10: "...until the client
// cancels the channel").
func (s *MonitorService) subscribeFactory(raw *router.ServerChannel) router.ChannelHandler {
	codec := channel.JSONCodec[monitor.Event]{}
	var cancel func()

	return func(ev router.ChannelEvent) {
		switch ev.Kind {
		case router.EventInput:
			if cancel != nil {
				return // already subscribed
			}
			cancel = s.mon.Subscribe(func(e monitor.Event) {
				// Monitor callbacks may arrive on a foreign goroutine (the
				// heartbeat-subscription thread); resubmit onto the
				// executor to preserve single-ownership, same pattern as
				// ExecCmdService's promise callbacks.
				s.exec.Submit(func() {
					if cancel == nil {
						return // unsubscribed since this event was queued
					}
					payload, err := codec.Marshal(e)
					if err != nil {
						return
					}
					if err := raw.Send(payload); err != nil {
						s.log.Warnf("subscribe: failed to send event: %s", err)
					}
				})
			})
		case router.EventCompleted:
			if cancel != nil {
				cancel()
				cancel = nil
			}
		}
	}
}
