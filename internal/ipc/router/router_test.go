package router

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
)

const testServiceName = "ocvsmd.svc.test.echo"

func protocolVersion() route.ProtocolVersion {
	return route.ProtocolVersion{Major: 1, Minor: 0}
}

func newTestExecutor(t *testing.T) *executor.Executor {
	t.Helper()
	exec := executor.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go exec.Run(ctx)
	return exec
}

// echoFactory replies to every Input with the same bytes, then completes
// with 0 once it observes a zero-length "done" marker.
func echoFactory(received chan<- []byte) ServiceFactory {
	return func(ch *ServerChannel) ChannelHandler {
		return func(ev ChannelEvent) {
			switch ev.Kind {
			case EventInput:
				received <- ev.Payload
				if len(ev.Payload) == 0 {
					ch.Complete(ipcerr.OK)
					return
				}
				ch.Send(ev.Payload)
			case EventCompleted:
			}
		}
	}
}

func TestClientServerChannelRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExecutor(t)
	log := ipclog.New(ipclog.LevelDebug)

	srv, err := ListenServerRouter(exec, log, "unix", sock, protocolVersion())
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()

	received := make(chan []byte, 8)
	if err := srv.RegisterService(testServiceName, echoFactory(received)); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}

	cli, err := DialClientRouter(exec, log, "unix", sock, protocolVersion())
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}
	defer cli.Close()

	events := make(chan ChannelEvent, 8)
	ch := cli.OpenChannel(testServiceName, func(ev ChannelEvent) { events <- ev })

	if err := ch.Send([]byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Kind != EventInput || string(ev.Payload) != "hello" {
		t.Fatalf("unexpected echo: %+v", ev)
	}

	if err := ch.Send(nil); err != nil {
		t.Fatalf("Send(done): %v", err)
	}

	ev = waitEvent(t, events)
	if ev.Kind != EventCompleted || ev.ErrorCode != ipcerr.OK {
		t.Fatalf("expected completion, got %+v", ev)
	}
}

func TestServerUnknownServiceReplyENOSYS(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExecutor(t)
	log := ipclog.New(ipclog.LevelDebug)

	srv, err := ListenServerRouter(exec, log, "unix", sock, protocolVersion())
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()

	cli, err := DialClientRouter(exec, log, "unix", sock, protocolVersion())
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}
	defer cli.Close()

	events := make(chan ChannelEvent, 8)
	ch := cli.OpenChannel("ocvsmd.svc.test.unregistered", func(ev ChannelEvent) { events <- ev })
	if err := ch.Send([]byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ev := waitEvent(t, events)
	if ev.Kind != EventCompleted || ev.ErrorCode != ipcerr.ENOSYS {
		t.Fatalf("expected ENOSYS completion, got %+v", ev)
	}
}

func TestRegisterServiceCollision(t *testing.T) {
	exec := newTestExecutor(t)
	log := ipclog.New(ipclog.LevelDebug)
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")

	srv, err := ListenServerRouter(exec, log, "unix", sock, protocolVersion())
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()

	if err := srv.RegisterService(testServiceName, echoFactory(make(chan []byte, 1))); err != nil {
		t.Fatalf("first RegisterService: %v", err)
	}
	err = srv.RegisterService(testServiceName, echoFactory(make(chan []byte, 1)))
	if ipcerr.CodeOf(err) != ipcerr.EEXIST {
		t.Fatalf("expected EEXIST, got %v", err)
	}
}

func TestClientDisconnectCompletesChannelsWithShutdown(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExecutor(t)
	log := ipclog.New(ipclog.LevelDebug)

	srv, err := ListenServerRouter(exec, log, "unix", sock, protocolVersion())
	if err != nil {
		t.Fatalf("ListenServerRouter: %v", err)
	}
	defer srv.Close()
	srv.RegisterService(testServiceName, echoFactory(make(chan []byte, 8)))

	cli, err := DialClientRouter(exec, log, "unix", sock, protocolVersion())
	if err != nil {
		t.Fatalf("DialClientRouter: %v", err)
	}

	events := make(chan ChannelEvent, 8)
	ch := cli.OpenChannel(testServiceName, func(ev ChannelEvent) { events <- ev })
	if err := ch.Send([]byte("x")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitEvent(t, events) // echoed input

	cli.Close()

	ev := waitEvent(t, events)
	if ev.Kind != EventCompleted || ev.ErrorCode != ipcerr.ESHUTDOWN {
		t.Fatalf("expected ESHUTDOWN completion on disconnect, got %+v", ev)
	}
}

func waitEvent(t *testing.T, ch chan ChannelEvent) ChannelEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for channel event")
		return ChannelEvent{}
	}
}
