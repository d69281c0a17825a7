package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

func newTestExec(t *testing.T) *executor.Executor {
	t.Helper()
	exec := executor.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go exec.Run(ctx)
	return exec
}

func TestExecCmdFanOutPartialTimeout(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)

	pres := cyphal.NewFakePresentation()
	pres.Scripts["ocvsmd.svc.node.exec_cmd/42"] = cyphal.FakeScript{
		Response: mustMarshalExecResponse(t, 0, "ok"),
	}
	pres.Scripts["ocvsmd.svc.node.exec_cmd/43"] = cyphal.FakeScript{
		PromiseFailure: &cyphal.PromiseFailure{Kind: cyphal.PromiseFailureTimeout},
	}

	svc := NewExecCmdService(exec, pres, log)
	srv, err := router.ListenServerRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()
	if err := svc.RegisterWith(srv); err != nil {
		t.Fatalf("RegisterWith: %v", err)
	}

	cli, err := router.DialClientRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}
	defer cli.Close()

	events := make(chan router.ChannelEvent, 8)
	ch := cli.OpenChannel(ExecCmdServiceName, func(ev router.ChannelEvent) { events <- ev })

	req := ExecCmdRequest{NodeIDs: []cyphal.NodeID{42, 43, 42}, TimeoutMillis: 1000}
	payload, err := channel.JSONCodec[ExecCmdRequest]{}.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := ch.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ev := waitForEvent(t, events)
	if ev.Kind != router.EventInput {
		t.Fatalf("expected Input, got %+v", ev)
	}
	resp, err := channel.JSONCodec[ExecCmdResponse]{}.Unmarshal(ev.Payload)
	if err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.NodeID != 42 || resp.Status != 0 || resp.Output != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	ev = waitForEvent(t, events)
	if ev.Kind != router.EventCompleted || ev.ErrorCode != ipcerr.OK {
		t.Fatalf("expected success completion, got %+v", ev)
	}
}

func TestExecCmdEmptyNodeIDsCompletesImmediately(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)
	pres := cyphal.NewFakePresentation()

	svc := NewExecCmdService(exec, pres, log)
	srv, err := router.ListenServerRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()
	svc.RegisterWith(srv)

	cli, err := router.DialClientRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}
	defer cli.Close()

	events := make(chan router.ChannelEvent, 8)
	ch := cli.OpenChannel(ExecCmdServiceName, func(ev router.ChannelEvent) { events <- ev })

	payload, _ := channel.JSONCodec[ExecCmdRequest]{}.Marshal(ExecCmdRequest{})
	ch.Send(payload)

	ev := waitForEvent(t, events)
	if ev.Kind != router.EventCompleted || ev.ErrorCode != ipcerr.OK {
		t.Fatalf("expected immediate success completion, got %+v", ev)
	}
}

func TestExecCmdMakeClientFailureTranslatesToENOMEM(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)
	pres := cyphal.NewFakePresentation()
	pres.MakeClientFailures["ocvsmd.svc.node.exec_cmd/7"] = &cyphal.MakeFailure{Kind: cyphal.FailureMemory}

	svc := NewExecCmdService(exec, pres, log)
	srv, err := router.ListenServerRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()
	svc.RegisterWith(srv)

	cli, err := router.DialClientRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}
	defer cli.Close()

	events := make(chan router.ChannelEvent, 8)
	ch := cli.OpenChannel(ExecCmdServiceName, func(ev router.ChannelEvent) { events <- ev })

	payload, _ := channel.JSONCodec[ExecCmdRequest]{}.Marshal(ExecCmdRequest{NodeIDs: []cyphal.NodeID{7}})
	ch.Send(payload)

	ev := waitForEvent(t, events)
	if ev.Kind != router.EventCompleted || ev.ErrorCode != ipcerr.ENOMEM {
		t.Fatalf("expected ENOMEM completion, got %+v", ev)
	}
}

// TestExecCmdPartialDispatchFailureCancelsDispatchedPromises covers the
// case where one node's MakeClient succeeds (registering a promise) while
// another node's MakeClient fails in the same fan-out: the already
// dispatched promise must be cancelled, not abandoned, when the FSM
// completes on the translated failure code.
func TestExecCmdPartialDispatchFailureCancelsDispatchedPromises(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)

	pres := cyphal.NewFakePresentation()
	pres.Scripts["ocvsmd.svc.node.exec_cmd/42"] = cyphal.FakeScript{
		Delay:    time.Second,
		Response: mustMarshalExecResponse(t, 0, "ok"),
	}
	pres.MakeClientFailures["ocvsmd.svc.node.exec_cmd/43"] = &cyphal.MakeFailure{Kind: cyphal.FailureMemory}

	svc := NewExecCmdService(exec, pres, log)
	srv, err := router.ListenServerRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()
	svc.RegisterWith(srv)

	cli, err := router.DialClientRouter(exec, log, "unix", sock, route.ProtocolVersion{Major: 1})
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}
	defer cli.Close()

	events := make(chan router.ChannelEvent, 8)
	ch := cli.OpenChannel(ExecCmdServiceName, func(ev router.ChannelEvent) { events <- ev })

	req := ExecCmdRequest{NodeIDs: []cyphal.NodeID{42, 43}, TimeoutMillis: 1000}
	payload, err := channel.JSONCodec[ExecCmdRequest]{}.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := ch.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ev := waitForEvent(t, events)
	if ev.Kind != router.EventCompleted || ev.ErrorCode != ipcerr.ENOMEM {
		t.Fatalf("expected ENOMEM completion, got %+v", ev)
	}

	if !pres.Cancelled(ExecCmdServiceName, 42) {
		t.Fatalf("node 42's promise was left pending instead of cancelled on partial dispatch failure")
	}
}

func mustMarshalExecResponse(t *testing.T, status uint8, output string) []byte {
	t.Helper()
	b, err := channel.JSONCodec[execResponsePayload]{}.Marshal(execResponsePayload{Status: status, Output: output})
	if err != nil {
		t.Fatalf("marshal exec response: %v", err)
	}
	return b
}

func waitForEvent(t *testing.T, ch chan router.ChannelEvent) router.ChannelEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for channel event")
		return router.ChannelEvent{}
	}
}
