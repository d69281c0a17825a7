package service

import (
	"path/filepath"
	"testing"

	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/pnp"
)

func TestPnpAllocateGrantsAndCompletes(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "ocvsmd.sock")
	exec := newTestExec(t)
	log := ipclog.New(ipclog.LevelDebug)

	alloc := pnp.NewInMemoryAllocator()

	svc := NewPnpService(exec, alloc, log)
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
	ch := cli.OpenChannel(PnpAllocateServiceName, func(ev router.ChannelEvent) { events <- ev })

	var uid [16]byte
	uid[0] = 0xAB
	payload, _ := channel.JSONCodec[PnpAllocateRequest]{}.Marshal(PnpAllocateRequest{UniqueIDs: [][16]byte{uid}, TimeoutMillis: 5000})
	ch.Send(payload)

	exec.Submit(func() { alloc.Grant(pnp.UniqueID(uid), 77) })

	ev := waitForEvent(t, events)
	if ev.Kind != router.EventInput {
		t.Fatalf("expected grant Input, got %+v", ev)
	}
	entry, err := channel.JSONCodec[PnpAllocateEntry]{}.Unmarshal(ev.Payload)
	if err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.NodeID != 77 || entry.UniqueID != uid {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	ev = waitForEvent(t, events)
	if ev.Kind != router.EventCompleted || ev.ErrorCode != ipcerr.OK {
		t.Fatalf("expected success completion, got %+v", ev)
	}
}
