package service

import (
	"path/filepath"
	"testing"

	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/fileserver"
)

func TestFileServerRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)

	roots := fileserver.NewRoots()
	roots.Push("/a", true)
	roots.Push("/b", true)

	svc := NewFileServerService(roots, log)
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

	// list_roots
	events := make(chan router.ChannelEvent, 8)
	ch := cli.OpenChannel(ListRootsServiceName, func(ev router.ChannelEvent) { events <- ev })
	ch.Send(nil)

	var got []string
	for {
		ev := waitForEvent(t, events)
		if ev.Kind == router.EventCompleted {
			if ev.ErrorCode != ipcerr.OK {
				t.Fatalf("unexpected completion code: %v", ev.ErrorCode)
			}
			break
		}
		entry, err := channel.JSONCodec[RootEntry]{}.Unmarshal(ev.Payload)
		if err != nil {
			t.Fatalf("unmarshal entry: %v", err)
		}
		got = append(got, entry.Path)
	}
	if len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Fatalf("unexpected roots: %v", got)
	}

	// push_root
	pushEvents := make(chan router.ChannelEvent, 4)
	pushCh := cli.OpenChannel(PushRootServiceName, func(ev router.ChannelEvent) { pushEvents <- ev })
	payload, _ := channel.JSONCodec[RootRequest]{}.Marshal(RootRequest{Path: "/c", AtBack: false})
	pushCh.Send(payload)
	ev := waitForEvent(t, pushEvents)
	if ev.Kind != router.EventCompleted || ev.ErrorCode != ipcerr.OK {
		t.Fatalf("push_root: unexpected completion: %+v", ev)
	}

	if got := roots.List(); len(got) != 3 || got[0] != "/c" {
		t.Fatalf("unexpected roots after push: %v", got)
	}

	// pop_root
	popEvents := make(chan router.ChannelEvent, 4)
	popCh := cli.OpenChannel(PopRootServiceName, func(ev router.ChannelEvent) { popEvents <- ev })
	popPayload, _ := channel.JSONCodec[RootRequest]{}.Marshal(RootRequest{AtBack: true})
	popCh.Send(popPayload)

	ev = waitForEvent(t, popEvents)
	if ev.Kind != router.EventInput {
		t.Fatalf("expected pop_root result Input, got %+v", ev)
	}
	result, err := channel.JSONCodec[RootResult]{}.Unmarshal(ev.Payload)
	if err != nil {
		t.Fatalf("unmarshal pop result: %v", err)
	}
	if !result.Found || result.Path != "/b" {
		t.Fatalf("unexpected pop result: %+v", result)
	}
	ev = waitForEvent(t, popEvents)
	if ev.Kind != router.EventCompleted || ev.ErrorCode != ipcerr.OK {
		t.Fatalf("pop_root: unexpected completion: %+v", ev)
	}
}
